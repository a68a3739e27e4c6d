// Copyright (C) 2015-2016  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

package manifest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"lab.nexedi.com/kirr/go123/mem"

	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

// Generator reconstructs the flat Mercurial manifest for an encoded tree
// (spec §4.4). Unlike the C original's single-slot {tree_id, flat_bytes,
// seen-set} cache, this reimplementation memoizes per-subtree fragments
// (each in the subtree's own path namespace, reprefixed by the caller)
// keyed by tree id in a bounded ristretto cache - a tree object is
// immutable and content-addressed, so a fragment computed for it once is
// valid forever, which gives the same "reuse unchanged subtrees" benefit
// as the original's "seen"-mark scheme without needing an explicit
// generation counter (see DESIGN.md's Open Question resolution).
type Generator struct {
	store objstore.Store
	cache *ristretto.Cache[oid.GitOid, []byte]
	group singleflight.Group
}

func NewGenerator(store objstore.Store) (*Generator, error) {
	return NewGeneratorSized(store, 100_000, 64<<20, 64)
}

// NewGeneratorSized is NewGenerator with explicit ristretto sizing,
// for callers wiring cache knobs in from config.Config.
func NewGeneratorSized(store objstore.Store, numCounters, maxCost, bufferItems int64) (*Generator, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[oid.GitOid, []byte]{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: generator cache: %w", err)
	}
	return &Generator{store: store, cache: cache}, nil
}

// Close releases the generator's cache - part of Store.Close's teardown
// (spec §5 "freed by done").
func (g *Generator) Close() {
	g.cache.Close()
}

// Generate returns the flat Mercurial-manifest bytes for the encoded
// tree treeId (spec §4.4 "generate(tree_id)"). The returned slice is
// owned by the cache and must not be mutated by the caller (spec §6
// "Return value identity").
func (g *Generator) Generate(treeId oid.GitOid) ([]byte, error) {
	if treeId.IsZero() {
		return nil, nil
	}
	return g.fragment(treeId)
}

func (g *Generator) fragment(treeId oid.GitOid) ([]byte, error) {
	if v, ok := g.cache.Get(treeId); ok {
		return v, nil
	}
	v, err, _ := g.group.Do(treeId.String(), func() (any, error) {
		if v, ok := g.cache.Get(treeId); ok {
			return v, nil
		}
		data, err := g.computeFragment(treeId)
		if err != nil {
			return nil, err
		}
		g.cache.Set(treeId, data, int64(len(data)))
		g.cache.Wait()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (g *Generator) computeFragment(treeId oid.GitOid) ([]byte, error) {
	rawEntries, err := g.store.ReadTree(treeId)
	if err != nil {
		return nil, fmt.Errorf("manifest: read tree %s: %w", treeId, err)
	}

	ordered := newOrderedChildren[objstore.TreeEntry]()
	for _, e := range rawEntries {
		if !strings.HasPrefix(e.Name, "_") {
			return nil, &ErrCorrupt{fmt.Sprintf("entry %q in tree %s lacks required _ prefix", e.Name, treeId)}
		}
		name := e.Name[1:]
		ordered.Put(nameKey{name: name, isDir: e.Mode == objstore.ModeTree}, e)
	}

	var buf bytes.Buffer
	for it := ordered.Iterator(); it.Next(); {
		key := it.Key()
		e := it.Value()
		if e.Mode == objstore.ModeTree {
			sub, err := g.fragment(e.Id)
			if err != nil {
				return nil, err
			}
			buf.Write(reprefixLines(sub, key.name))
			continue
		}
		flag, err := flagFromMode(e.Mode)
		if err != nil {
			return nil, &ErrCorrupt{fmt.Sprintf("entry %q: %v", e.Name, err)}
		}
		node, err := oid.HgNodeFromBytes(e.Id.Bytes())
		if err != nil {
			return nil, err
		}
		buf.Write(FormatFlat([]Entry{{Path: key.name, Node: node, Flag: flag}}))
	}
	return buf.Bytes(), nil
}

// reprefixLines prepends prefix+"/" to the path portion of every line of
// a subtree fragment, composing it into its parent's path namespace.
func reprefixLines(data []byte, prefix string) []byte {
	lines := splitlines(mem.String(data), "\n")
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(prefix)
		b.WriteByte('/')
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
