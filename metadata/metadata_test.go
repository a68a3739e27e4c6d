package metadata

import (
	"testing"

	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

// Scenario 1: empty repo.
func TestInitEmptyRepo(t *testing.T) {
	store := objstore.NewFake()
	root, err := Init(store, MetadataRef)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if root.Roots != (SubRoots{}) {
		t.Errorf("Roots = %+v, want all zero", root.Roots)
	}
	if root.Flags != 0 {
		t.Errorf("Flags = %v, want 0", root.Flags)
	}
	if len(root.Replace) != 0 {
		t.Errorf("Replace = %v, want empty", root.Replace)
	}
}

// writeMetadataRoot writes a minimal-but-valid metadata-root commit
// (five zero-id sub-roots, the given flag message) and points
// MetadataRef at it, for Init tests that need a non-empty repo.
func writeMetadataRoot(t *testing.T, store objstore.Store, message string) {
	t.Helper()
	var zero oid.GitOid
	commitId, err := store.WriteCommit(zero, []oid.GitOid{zero, zero, zero, zero, zero}, message)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateRef(MetadataRef, oid.GitOid{}, commitId); err != nil {
		t.Fatal(err)
	}
}

// spec §3 "Feature flags": a non-empty repo advertising neither
// recognized flag is old-format, same as the explicit legacy flag.
func TestInitRejectsEmptyFlags(t *testing.T) {
	store := objstore.NewFake()
	writeMetadataRoot(t, store, "")
	if _, err := Init(store, MetadataRef); err != ErrOldFormat {
		t.Errorf("Init: err = %v, want ErrOldFormat", err)
	}
}

// spec §3: any ref under refs/cinnabar/branches/ marks an old-format repo.
func TestInitRejectsLegacyBranchesRef(t *testing.T) {
	store := objstore.NewFake()
	writeMetadataRoot(t, store, "files-meta")
	blobId, err := store.WriteBlob([]byte("branch"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateRef(LegacyBranchesRefPrefix+"default", oid.GitOid{}, blobId); err != nil {
		t.Fatal(err)
	}
	if _, err := Init(store, MetadataRef); err != ErrOldFormat {
		t.Errorf("Init: err = %v, want ErrOldFormat", err)
	}
}

// spec §3: any legacy replace ref also marks an old-format repo.
func TestInitRejectsLegacyReplaceRef(t *testing.T) {
	store := objstore.NewFake()
	writeMetadataRoot(t, store, "files-meta")
	blobId, err := store.WriteBlob([]byte("replace"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateRef(LegacyReplaceRefPrefix+"1111111111111111111111111111111111111111", oid.GitOid{}, blobId); err != nil {
		t.Fatal(err)
	}
	if _, err := Init(store, MetadataRef); err != ErrOldFormat {
		t.Errorf("Init: err = %v, want ErrOldFormat", err)
	}
}

// a well-formed metadata root with a recognized flag and no legacy refs
// must load cleanly - the negative cases above must not over-trigger.
func TestInitAcceptsWellFormedRoot(t *testing.T) {
	store := objstore.NewFake()
	writeMetadataRoot(t, store, "files-meta")
	root, err := Init(store, MetadataRef)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if root.Flags&FlagFilesMeta == 0 {
		t.Errorf("Flags = %v, want FlagFilesMeta set", root.Flags)
	}
}

func TestParseFlagsRecognized(t *testing.T) {
	flags, err := ParseFlags([]string{"files-meta", "unified-manifests-v2"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if flags&FlagFilesMeta == 0 || flags&FlagUnifiedManifestsV2 == 0 {
		t.Errorf("flags = %v, want both bits set", flags)
	}
}

func TestParseFlagsLegacyRejected(t *testing.T) {
	_, err := ParseFlags([]string{"unified-manifests"})
	if err != ErrOldFormat {
		t.Errorf("err = %v, want ErrOldFormat", err)
	}
}

func TestParseFlagsUnknownRejected(t *testing.T) {
	_, err := ParseFlags([]string{"some-future-flag"})
	if _, ok := err.(*ErrNewerFormat); !ok {
		t.Errorf("err = %v (%T), want *ErrNewerFormat", err, err)
	}
}

func TestFormatFlagsDeterministic(t *testing.T) {
	got := FormatFlags(FlagUnifiedManifestsV2 | FlagFilesMeta)
	want := "files-meta unified-manifests-v2"
	if got != want {
		t.Errorf("FormatFlags() = %q, want %q", got, want)
	}
}

// Invariant 8: replace-map injectivity - no self-reference, no duplicates.
func TestBuildReplaceMapSkipsSelfReference(t *testing.T) {
	store := objstore.NewFake()
	selfId, err := store.WriteBlob([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	treeId, err := store.WriteTree([]objstore.TreeEntry{
		{Name: selfId.String(), Id: selfId, Mode: objstore.ModeBlob},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}
	replace, err := buildReplaceMap(store, treeId)
	if err != nil {
		t.Fatalf("buildReplaceMap: %v", err)
	}
	if len(replace) != 0 {
		t.Errorf("replace = %v, want empty (self-reference dropped)", replace)
	}
}

func TestBuildReplaceMapRejectsDuplicates(t *testing.T) {
	store := objstore.NewFake()
	oldId, err := oid.ParseGitOid("1111111111111111111111111111111111111111")
	if err != nil {
		t.Fatal(err)
	}
	newA, err := store.WriteBlob([]byte("a"))
	if err != nil {
		t.Fatal(err)
	}
	newB, err := store.WriteBlob([]byte("b"))
	if err != nil {
		t.Fatal(err)
	}
	dupTreeId, err := store.WriteTree([]objstore.TreeEntry{
		{Name: oldId.String(), Id: newA, Mode: objstore.ModeBlob},
		{Name: oldId.String(), Id: newB, Mode: objstore.ModeBlob},
	}, oid.GitOid{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buildReplaceMap(store, dupTreeId); err == nil {
		t.Error("buildReplaceMap should reject duplicate old ids")
	}
}
