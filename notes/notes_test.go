package notes

import (
	"testing"

	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

func mustHgNode(t *testing.T, hex string) oid.HgNode {
	t.Helper()
	n, err := oid.ParseHgNode(hex)
	if err != nil {
		t.Fatalf("ParseHgNode(%q): %v", hex, err)
	}
	return n
}

func mustGitOid(t *testing.T, hex string) oid.GitOid {
	t.Helper()
	id, err := oid.ParseGitOid(hex)
	if err != nil {
		t.Fatalf("ParseGitOid(%q): %v", hex, err)
	}
	return id
}

func TestHg2GitPutResolve(t *testing.T) {
	store := objstore.NewFake()
	m := NewHg2Git(store.Notes("refs/cinnabar/hg2git"))

	node := mustHgNode(t, "0123456789abcdef0123456789abcdef01234567")
	gid := mustGitOid(t, "fedcba9876543210fedcba9876543210fedcba98")

	ok, err := m.Put(node, gid)
	if err != nil || !ok {
		t.Fatalf("Put: ok=%v err=%v", ok, err)
	}

	got, ok, err := m.Resolve(node)
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if got != gid {
		t.Errorf("Resolve() = %s, want %s", got, gid)
	}
}

func TestHg2GitConflictIgnored(t *testing.T) {
	store := objstore.NewFake()
	m := NewHg2Git(store.Notes("refs/cinnabar/hg2git"))

	node := mustHgNode(t, "0123456789abcdef0123456789abcdef01234567")
	first := mustGitOid(t, "1111111111111111111111111111111111111111")
	second := mustGitOid(t, "2222222222222222222222222222222222222222")

	if ok, err := m.Put(node, first); err != nil || !ok {
		t.Fatalf("first Put: ok=%v err=%v", ok, err)
	}
	if ok, err := m.Put(node, second); err != nil || ok {
		t.Fatalf("second Put should be rejected (conflict policy: ignore): ok=%v err=%v", ok, err)
	}

	got, _, _ := m.Resolve(node)
	if got != first {
		t.Errorf("Resolve() = %s, want original %s kept", got, first)
	}
}

func TestHg2GitResolvePrefix(t *testing.T) {
	store := objstore.NewFake()
	m := NewHg2Git(store.Notes("refs/cinnabar/hg2git"))

	node := mustHgNode(t, "0123456789abcdef0123456789abcdef01234567")
	gid := mustGitOid(t, "fedcba9876543210fedcba9876543210fedcba98")
	if _, err := m.t.Put(toArray(node.Bytes()), append([]byte(nil), gid.Bytes()...)); err != nil {
		t.Fatal(err)
	}

	got, ok, err := m.ResolvePrefix("0123456789")
	if err != nil || !ok {
		t.Fatalf("ResolvePrefix: ok=%v err=%v", ok, err)
	}
	if got != gid {
		t.Errorf("ResolvePrefix() = %s, want %s", got, gid)
	}
}

func TestResolveMiss(t *testing.T) {
	store := objstore.NewFake()
	m := NewHg2Git(store.Notes("refs/cinnabar/hg2git"))

	node := mustHgNode(t, "0000000000000000000000000000000000000000")
	_, ok, err := m.Resolve(node)
	if err != nil {
		t.Fatalf("Resolve: err=%v", err)
	}
	if ok {
		t.Error("Resolve() on unmapped node should report ok=false (spec §7: Resolution miss)")
	}
}

func TestFilesMetaPartial(t *testing.T) {
	store := objstore.NewFake()
	m := NewFilesMeta(store.Notes("refs/cinnabar/files-meta"))

	node := mustHgNode(t, "0000000000000000000000000000000000000001")
	_, ok, err := m.Get(node)
	if err != nil || ok {
		t.Fatalf("absent files_meta entry should report ok=false, not error: ok=%v err=%v", ok, err)
	}
}
