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
	"fmt"

	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

// gitlinkMode returns the pseudo-gitlink mode (spec §3 "Encoding rules")
// a manifest entry's flag maps to.
func gitlinkMode(flag Flag) (objstore.Filemode, error) {
	switch flag {
	case FlagNone:
		return 0160644, nil
	case FlagExecutable:
		return 0160755, nil
	case FlagSymlink:
		return 0160000, nil
	default:
		return 0, fmt.Errorf("manifest: invalid flag %q", flag)
	}
}

// flagFromMode is the inverse of gitlinkMode, used by the decoder/generator.
func flagFromMode(mode objstore.Filemode) (Flag, error) {
	perm := mode & 0777
	switch perm {
	case 0644:
		return FlagNone, nil
	case 0755:
		return FlagExecutable, nil
	case 0000:
		return FlagSymlink, nil
	default:
		return 0, fmt.Errorf("manifest: invalid gitlink perm bits %o", mode)
	}
}

type trieNode struct {
	children *children
	entry    *Entry // set iff this node is a file (leaf)
}

type children = mapChildren

// mapChildren is a thin ordered map of component -> *trieNode.
type mapChildren struct {
	order []string
	byKey map[string]*trieNode
}

func newChildren() *mapChildren {
	return &mapChildren{byKey: make(map[string]*trieNode)}
}

func (c *mapChildren) getOrCreate(name string) *trieNode {
	if n, ok := c.byKey[name]; ok {
		return n
	}
	n := &trieNode{}
	c.byKey[name] = n
	c.order = append(c.order, name)
	return n
}

// Encode builds the encoded manifest tree hierarchy for entries (spec
// §4.3) and writes it to store, returning the root tree id. entries need
// not be pre-sorted.
func Encode(store objstore.Store, entries []Entry) (oid.GitOid, error) {
	root := &trieNode{children: newChildren()}
	for _, e := range entries {
		comps := splitPath(e.Path)
		node := root
		for _, c := range comps[:len(comps)-1] {
			if node.children == nil {
				node.children = newChildren()
			}
			node = node.children.getOrCreate(c)
		}
		if node.children == nil {
			node.children = newChildren()
		}
		leaf := node.children.getOrCreate(comps[len(comps)-1])
		entryCopy := e
		leaf.entry = &entryCopy
	}
	return writeTrieNode(store, root)
}

func writeTrieNode(store objstore.Store, node *trieNode) (oid.GitOid, error) {
	ordered := newOrderedChildren[*trieNode]()
	for _, name := range node.children.order {
		child := node.children.byKey[name]
		ordered.Put(nameKey{name: name, isDir: child.entry == nil}, child)
	}

	var out []objstore.TreeEntry
	for it := ordered.Iterator(); it.Next(); {
		key := it.Key()
		child := it.Value()
		encName := "_" + key.name
		if child.entry != nil {
			mode, err := gitlinkMode(child.entry.Flag)
			if err != nil {
				return oid.GitOid{}, err
			}
			gid, err := oid.GitOidFromBytes(child.entry.Node.Bytes())
			if err != nil {
				return oid.GitOid{}, err
			}
			out = append(out, objstore.TreeEntry{Name: encName, Id: gid, Mode: mode})
		} else {
			subId, err := writeTrieNode(store, child)
			if err != nil {
				return oid.GitOid{}, err
			}
			out = append(out, objstore.TreeEntry{Name: encName, Id: subId, Mode: objstore.ModeTree})
		}
	}
	return store.WriteTree(out, oid.GitOid{})
}
