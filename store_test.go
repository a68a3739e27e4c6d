package hgbridge

import (
	"strings"
	"testing"

	"lab.nexedi.com/kirr/hgbridge/internal/config"
	"lab.nexedi.com/kirr/hgbridge/manifest"
	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
	"lab.nexedi.com/kirr/hgbridge/verify"
)

// Scenario 1: empty repo.
func TestInitEmptyRepo(t *testing.T) {
	store := objstore.NewFake()
	s, err := Init(store, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	if s.InitPhase2() {
		t.Error("InitPhase2() = true on an empty repo, want false")
	}
	if s.Root().Flags != 0 {
		t.Errorf("Flags = %v, want 0", s.Root().Flags)
	}
}

// Scenario 2/3 combined through the bundled facade: encode a flat
// manifest, generate it back, and verify the hash closure.
func TestStoreRoundTripAndVerify(t *testing.T) {
	store := objstore.NewFake()
	s, err := Init(store, config.Default())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	node, _ := oid.ParseHgNode("1111111111111111111111111111111111111111")
	entries := []manifest.Entry{{Path: "a", Node: node}}
	treeId, err := manifest.Encode(store, entries)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := s.GenerateManifest(treeId)
	if err != nil {
		t.Fatalf("GenerateManifest: %v", err)
	}
	want := manifest.FormatFlat(entries)
	if string(got) != string(want) {
		t.Errorf("GenerateManifest = %q, want %q", got, want)
	}

	var p1, p2 oid.HgNode
	wantNode := verify.HgSha1(got, p1, p2)
	ok, err := s.CheckManifest(treeId, p1, p2, wantNode)
	if err != nil {
		t.Fatalf("CheckManifest: %v", err)
	}
	if !ok {
		t.Error("CheckManifest = false, want true")
	}

	// corrupting the trailer must make verification fail without
	// breaking GenerateManifest (scenario 6).
	corrupt := append([]byte(nil), wantNode.Bytes()...)
	corrupt[0] ^= 1
	badNode, err := oid.HgNodeFromBytes(corrupt)
	if err != nil {
		t.Fatal(err)
	}
	ok, err = s.CheckManifest(treeId, p1, p2, badNode)
	if err != nil {
		t.Fatalf("CheckManifest: %v", err)
	}
	if ok {
		t.Error("CheckManifest = true with a corrupted trailer, want false")
	}
}

func TestStoreCheckFile(t *testing.T) {
	store := objstore.NewFake()
	s, err := Init(store, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	content := []byte("hello\n")
	var p1, p2 oid.HgNode
	node := verify.HgSha1(content, p1, p2)

	blobId, err := store.WriteBlob(content)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.hg2git.Put(node, blobId); err != nil {
		t.Fatal(err)
	}

	ok, err := s.CheckFile(node, p1, p2)
	if err != nil {
		t.Fatalf("CheckFile: %v", err)
	}
	if !ok {
		t.Error("CheckFile = false, want true")
	}
}

func TestStoreReloadIdempotent(t *testing.T) {
	store := objstore.NewFake()
	s, err := Init(store, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	s.AddHead(oid.GitOid{})
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	first := s.ManifestHeads()
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	second := s.ManifestHeads()
	if len(first) != 0 || len(second) != 0 {
		t.Errorf("ManifestHeads after reload = %v / %v, want both empty (invariant 9)", first, second)
	}
}

func TestStoreIterTree(t *testing.T) {
	store := objstore.NewFake()
	s, err := Init(store, nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	blob, err := store.WriteBlob([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	tree, err := store.WriteTree([]objstore.TreeEntry{
		{Name: "f", Id: blob, Mode: objstore.ModeBlob},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	err = s.IterTree(tree, false, func(id oid.GitOid, base, name string, mode objstore.Filemode) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		t.Fatalf("IterTree: %v", err)
	}
	if strings.Join(names, ",") != "f" {
		t.Errorf("names = %v, want [f]", names)
	}
}
