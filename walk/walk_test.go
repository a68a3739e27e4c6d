package walk

import (
	"testing"

	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

func mustBlob(t *testing.T, store objstore.Store, content string) oid.GitOid {
	t.Helper()
	id, err := store.WriteBlob([]byte(content))
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestIterTreeNonRecursive(t *testing.T) {
	store := objstore.NewFake()
	fileA := mustBlob(t, store, "a")
	subFile := mustBlob(t, store, "b")
	subTree, err := store.WriteTree([]objstore.TreeEntry{
		{Name: "inner.txt", Id: subFile, Mode: objstore.ModeBlob},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}
	rootTree, err := store.WriteTree([]objstore.TreeEntry{
		{Name: "a.txt", Id: fileA, Mode: objstore.ModeBlob},
		{Name: "sub", Id: subTree, Mode: objstore.ModeTree},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	err = IterTree(store, rootTree, false, func(id oid.GitOid, base, name string, mode objstore.Filemode) error {
		names = append(names, name)
		if base != "" {
			t.Errorf("base = %q, want empty at top level", base)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("IterTree: %v", err)
	}
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "sub" {
		t.Errorf("names = %v, want [a.txt sub] (no descent)", names)
	}
}

func TestIterTreeRecursive(t *testing.T) {
	store := objstore.NewFake()
	subFile := mustBlob(t, store, "b")
	subTree, err := store.WriteTree([]objstore.TreeEntry{
		{Name: "inner.txt", Id: subFile, Mode: objstore.ModeBlob},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}
	rootTree, err := store.WriteTree([]objstore.TreeEntry{
		{Name: "sub", Id: subTree, Mode: objstore.ModeTree},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}

	var gotBase, gotName string
	var count int
	err = IterTree(store, rootTree, true, func(id oid.GitOid, base, name string, mode objstore.Filemode) error {
		count++
		if mode != objstore.ModeTree {
			gotBase, gotName = base, name
		}
		return nil
	})
	if err != nil {
		t.Fatalf("IterTree: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2 (sub dir + inner.txt)", count)
	}
	if gotBase != "sub" || gotName != "inner.txt" {
		t.Errorf("base/name = %q/%q, want sub/inner.txt", gotBase, gotName)
	}
}

func TestMaybeBoundary(t *testing.T) {
	interior, _ := oid.ParseGitOid("1111111111111111111111111111111111111111")
	explicit, _ := oid.ParseGitOid("2222222222222222222222222222222222222222")
	grafted, _ := oid.ParseGitOid("3333333333333333333333333333333333333333")

	explicitSet := map[oid.GitOid]bool{explicit: true}
	isGraft := func(c oid.GitOid) bool { return c == grafted }

	if b := MaybeBoundary(interior, explicitSet, isGraft); b != BoundaryInterior {
		t.Errorf("interior: got %v, want BoundaryInterior", b)
	}
	if b := MaybeBoundary(explicit, explicitSet, isGraft); b != BoundaryExplicit {
		t.Errorf("explicit: got %v, want BoundaryExplicit", b)
	}
	if b := MaybeBoundary(grafted, explicitSet, isGraft); b != BoundaryGraft {
		t.Errorf("grafted: got %v, want BoundaryGraft", b)
	}
	// explicit takes priority over graft when both would apply.
	both := map[oid.GitOid]bool{grafted: true}
	if b := MaybeBoundary(grafted, both, isGraft); b != BoundaryExplicit {
		t.Errorf("explicit-over-graft: got %v, want BoundaryExplicit", b)
	}
	// nil isGraft never synthesizes a graft boundary.
	if b := MaybeBoundary(grafted, nil, nil); b != BoundaryInterior {
		t.Errorf("nil isGraft: got %v, want BoundaryInterior", b)
	}
}

func TestDiffTreeAddedDeletedModified(t *testing.T) {
	store := objstore.NewFake()
	unchanged := mustBlob(t, store, "same")
	oldContent := mustBlob(t, store, "old")
	newContent := mustBlob(t, store, "new")
	deletedContent := mustBlob(t, store, "gone")
	addedContent := mustBlob(t, store, "fresh")

	aTree, err := store.WriteTree([]objstore.TreeEntry{
		{Name: "keep.txt", Id: unchanged, Mode: objstore.ModeBlob},
		{Name: "changed.txt", Id: oldContent, Mode: objstore.ModeBlob},
		{Name: "removed.txt", Id: deletedContent, Mode: objstore.ModeBlob},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}
	bTree, err := store.WriteTree([]objstore.TreeEntry{
		{Name: "keep.txt", Id: unchanged, Mode: objstore.ModeBlob},
		{Name: "changed.txt", Id: newContent, Mode: objstore.ModeBlob},
		{Name: "added.txt", Id: addedContent, Mode: objstore.ModeBlob},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}

	got := make(map[string]DiffStatus)
	err = DiffTree(store, aTree, bTree, false, func(a, b DiffEntry, similarity int, status DiffStatus) error {
		path := a.Path
		if path == "" {
			path = b.Path
		}
		got[path] = status
		return nil
	})
	if err != nil {
		t.Fatalf("DiffTree: %v", err)
	}

	want := map[string]DiffStatus{
		"changed.txt": DiffStatusModified,
		"removed.txt": DiffStatusDeleted,
		"added.txt":   DiffStatusAdded,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v (keep.txt must not appear - unchanged)", got, want)
	}
	for path, status := range want {
		if got[path] != status {
			t.Errorf("status[%s] = %v, want %v", path, got[path], status)
		}
	}
}

func TestDiffTreeTypeChanged(t *testing.T) {
	store := objstore.NewFake()
	content := mustBlob(t, store, "x")
	aTree, err := store.WriteTree([]objstore.TreeEntry{
		{Name: "thing", Id: content, Mode: objstore.ModeBlob},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}
	bTree, err := store.WriteTree([]objstore.TreeEntry{
		{Name: "thing", Id: content, Mode: objstore.ModeBlobExecutable},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}

	var status DiffStatus
	var calls int
	err = DiffTree(store, aTree, bTree, false, func(a, b DiffEntry, similarity int, s DiffStatus) error {
		calls++
		status = s
		return nil
	})
	if err != nil {
		t.Fatalf("DiffTree: %v", err)
	}
	if calls != 1 || status != DiffStatusTypeChanged {
		t.Errorf("calls=%d status=%v, want 1 call with DiffStatusTypeChanged", calls, status)
	}
}
