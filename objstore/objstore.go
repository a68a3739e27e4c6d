// Package objstore defines the narrow interface the metadata translation
// core uses to talk to a Git-compatible object store (see spec §4.1 / §6).
//
// The core packages (manifest/verify/gittree/metadata/notes) never import
// git2go - they program against this interface, which keeps them testable
// with an in-memory fake (see objstore/fake.go). git2go is used only by
// internal/git, internal/git2store (the Store implementation over it) and
// walk's RevList/GitDiffTree.
package objstore

import (
	"errors"

	"lab.nexedi.com/kirr/hgbridge/oid"
)

// ObjectKind identifies the type of a Git object as stored in the odb.
type ObjectKind int

const (
	KindBlob ObjectKind = iota
	KindTree
	KindCommit
	KindTag
)

func (k ObjectKind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindTree:
		return "tree"
	case KindCommit:
		return "commit"
	case KindTag:
		return "tag"
	default:
		return "unknown"
	}
}

// Filemode is a Git tree entry mode. The gitlink value (0160000) is
// overloaded by this system to carry Mercurial file nodes - see spec §3.
type Filemode uint32

const (
	ModeTree           Filemode = 0040000
	ModeBlob           Filemode = 0100644
	ModeBlobExecutable Filemode = 0100755
	ModeSymlink        Filemode = 0120000
	ModeGitlink        Filemode = 0160000
)

// TreeEntry is one entry of a Git tree, as given to WriteTree or returned
// from ReadTree.
type TreeEntry struct {
	Name string
	Id   oid.GitOid
	Mode Filemode
}

// Object is the decoded payload of an object read from the store.
type Object struct {
	Id   oid.GitOid
	Kind ObjectKind
	Data []byte
}

// Store is the facade the metadata core is built against. Implementations
// must be safe for use by one goroutine at a time (see spec §5) - callers
// that want concurrency shard by process or by their own Store instance.
type Store interface {
	// ReadObject fetches an object by id, regardless of its kind.
	ReadObject(id oid.GitOid) (Object, error)

	// ReadTree decodes a tree object's entries; convenience over
	// ReadObject for callers that don't need the raw bytes.
	ReadTree(id oid.GitOid) ([]TreeEntry, error)

	// WriteBlob stores content verbatim and returns its id. Writes are
	// deduplicating by content hash - repeated writes of the same bytes
	// are idempotent and cheap.
	WriteBlob(content []byte) (oid.GitOid, error)

	// WriteTree stores a new tree from entries. reference, if non-zero,
	// names a tree the implementation MAY use as a structural hint to
	// share unchanged sub-trees with; it must never affect the resulting
	// id - see spec §4.1.
	WriteTree(entries []TreeEntry, reference oid.GitOid) (oid.GitOid, error)

	// WriteCommit stores a new commit.
	WriteCommit(tree oid.GitOid, parents []oid.GitOid, message string) (oid.GitOid, error)

	// ReadRef resolves a ref to the object id it points at. Returns
	// ErrRefNotFound if the ref does not exist.
	ReadRef(name string) (oid.GitOid, error)

	// UpdateRef atomically moves name from old to new. old may be the
	// zero id to mean "ref must not currently exist".
	UpdateRef(name string, old, new oid.GitOid) error

	// ForEachRef calls cb for every ref under prefix, in unspecified
	// order; iteration stops at the first error cb returns.
	ForEachRef(prefix string, cb func(name string, id oid.GitOid) error) error

	// Notes is the key/value notes-tree facade (hg2git, git2hg,
	// files_meta - see spec §4.2), rooted at notesRef.
	Notes(notesRef string) NotesTree
}

// NotesTree is a single Git-notes-backed key/value mapping from a
// 20-byte id (a Mercurial node for hg2git/files_meta, a Git commit id for
// git2hg; looked up in full or by abbreviated hex prefix) to an
// arbitrary byte blob, as described in spec §4.2.
type NotesTree interface {
	// Get looks up the note attached to id. ok is false if there is none.
	Get(id [oid.RawSize]byte) (data []byte, ok bool, err error)

	// GetPrefix looks up by abbreviated (shorter than RawSize*2 hex
	// chars) key, returning the unique match or ok=false if zero or
	// more than one entry share the prefix.
	GetPrefix(prefixHex string) (data []byte, ok bool, err error)

	// Put inserts id -> data. If id already has a note, the existing
	// note is kept and Put reports ok=false (conflict policy: ignore -
	// see spec §4.2).
	Put(id [oid.RawSize]byte, data []byte) (ok bool, err error)

	// Root returns the current root tree id of the notes tree, 0 if
	// empty/uninitialized.
	Root() oid.GitOid
}

// ErrRefNotFound is returned by ReadRef when name does not exist.
var ErrRefNotFound = errors.New("objstore: ref not found")
