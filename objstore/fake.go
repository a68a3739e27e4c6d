package objstore

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"

	"lab.nexedi.com/kirr/hgbridge/oid"
)

// Fake is an in-memory Store used by package tests that want to exercise
// manifest/verify/gittree/metadata/notes logic without a real libgit2
// repository - mirrors the role abhinav-git-spice's in-memory
// GitRepository fake plays for its own state package.
type Fake struct {
	objects map[oid.GitOid]Object
	refs    map[string]oid.GitOid
	notes   map[string]*FakeNotes
}

func NewFake() *Fake {
	return &Fake{
		objects: make(map[oid.GitOid]Object),
		refs:    make(map[string]oid.GitOid),
		notes:   make(map[string]*FakeNotes),
	}
}

var _ Store = (*Fake)(nil)

func hashOf(kind ObjectKind, data []byte) oid.GitOid {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(data))
	h.Write(data)
	id, _ := oid.GitOidFromBytes(h.Sum(nil))
	return id
}

func (f *Fake) ReadObject(id oid.GitOid) (Object, error) {
	obj, ok := f.objects[id]
	if !ok {
		return Object{}, fmt.Errorf("objstore/fake: no such object %s", id)
	}
	return obj, nil
}

func (f *Fake) ReadTree(id oid.GitOid) ([]TreeEntry, error) {
	obj, err := f.ReadObject(id)
	if err != nil {
		return nil, err
	}
	if obj.Kind != KindTree {
		return nil, fmt.Errorf("objstore/fake: %s is not a tree", id)
	}
	return decodeFakeTree(obj.Data), nil
}

func (f *Fake) WriteBlob(content []byte) (oid.GitOid, error) {
	id := hashOf(KindBlob, content)
	f.objects[id] = Object{Id: id, Kind: KindBlob, Data: append([]byte(nil), content...)}
	return id, nil
}

func (f *Fake) WriteTree(entries []TreeEntry, reference oid.GitOid) (oid.GitOid, error) {
	sorted := append([]TreeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	data := encodeFakeTree(sorted)
	id := hashOf(KindTree, data)
	f.objects[id] = Object{Id: id, Kind: KindTree, Data: data}
	return id, nil
}

func (f *Fake) WriteCommit(tree oid.GitOid, parents []oid.GitOid, message string) (oid.GitOid, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "tree %s\n", tree)
	for _, p := range parents {
		fmt.Fprintf(&b, "parent %s\n", p)
	}
	b.WriteString("\n")
	b.WriteString(message)
	data := []byte(b.String())
	id := hashOf(KindCommit, data)
	f.objects[id] = Object{Id: id, Kind: KindCommit, Data: data}
	return id, nil
}

func (f *Fake) ReadRef(name string) (oid.GitOid, error) {
	id, ok := f.refs[name]
	if !ok {
		return oid.GitOid{}, ErrRefNotFound
	}
	return id, nil
}

func (f *Fake) UpdateRef(name string, old, new oid.GitOid) error {
	cur, ok := f.refs[name]
	if !ok {
		cur = oid.GitOid{}
	}
	if cur != old {
		return fmt.Errorf("objstore/fake: ref %s: current %s != expected old %s", name, cur, old)
	}
	f.refs[name] = new
	return nil
}

func (f *Fake) ForEachRef(prefix string, cb func(name string, id oid.GitOid) error) error {
	names := make([]string, 0, len(f.refs))
	for name := range f.refs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := cb(name, f.refs[name]); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) Notes(notesRef string) NotesTree {
	n, ok := f.notes[notesRef]
	if !ok {
		n = &FakeNotes{entries: make(map[[oid.RawSize]byte][]byte)}
		f.notes[notesRef] = n
	}
	return n
}

// FakeNotes is an in-memory NotesTree.
type FakeNotes struct {
	entries map[[oid.RawSize]byte][]byte
}

var _ NotesTree = (*FakeNotes)(nil)

func (n *FakeNotes) Get(id [oid.RawSize]byte) ([]byte, bool, error) {
	data, ok := n.entries[id]
	return data, ok, nil
}

func (n *FakeNotes) GetPrefix(prefixHex string) ([]byte, bool, error) {
	var found []byte
	matches := 0
	for id, data := range n.entries {
		hexId := fmt.Sprintf("%x", id[:])
		if strings.HasPrefix(hexId, prefixHex) {
			matches++
			found = data
		}
	}
	if matches != 1 {
		return nil, false, nil
	}
	return found, true, nil
}

func (n *FakeNotes) Put(id [oid.RawSize]byte, data []byte) (bool, error) {
	if _, ok := n.entries[id]; ok {
		return false, nil
	}
	n.entries[id] = append([]byte(nil), data...)
	return true, nil
}

func (n *FakeNotes) Root() oid.GitOid {
	// Fake notes are not tree-addressed; report zero unless non-empty.
	if len(n.entries) == 0 {
		return oid.GitOid{}
	}
	return hashOf(KindTree, []byte(fmt.Sprintf("%d entries", len(n.entries))))
}

// encodeFakeTree/decodeFakeTree give the in-memory fake a trivial,
// deterministic tree byte encoding - good enough for content-hash
// identity in tests, not meant to match git's real tree format.
func encodeFakeTree(entries []TreeEntry) []byte {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%o %s\x00%s\n", e.Mode, e.Name, e.Id)
	}
	return []byte(b.String())
}

func decodeFakeTree(data []byte) []TreeEntry {
	var entries []TreeEntry
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		var mode uint32
		rest := line
		for i, c := range rest {
			if c == ' ' {
				fmt.Sscanf(rest[:i], "%o", &mode)
				rest = rest[i+1:]
				break
			}
		}
		parts := strings.SplitN(rest, "\x00", 2)
		if len(parts) != 2 {
			continue
		}
		id, _ := oid.ParseGitOid(parts[1])
		entries = append(entries, TreeEntry{Name: parts[0], Id: id, Mode: Filemode(mode)})
	}
	return entries
}
