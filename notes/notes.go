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

// Package notes implements the three Mercurial<->Git identity maps -
// hg2git, git2hg and files_meta - as typed views over an objstore
// notes tree (see spec §3, §4.2).
package notes

import (
	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

// Hg2Git maps a Mercurial node to a Git object id (blob or commit).
type Hg2Git struct {
	t objstore.NotesTree
}

func NewHg2Git(t objstore.NotesTree) *Hg2Git { return &Hg2Git{t} }

// Resolve looks up the full node; abbreviated lookups go through
// ResolvePrefix - see spec §4.2 and §6 "resolve_hg(notes, node, len)".
func (m *Hg2Git) Resolve(node oid.HgNode) (oid.GitOid, bool, error) {
	raw, ok, err := m.t.Get(toArray(node.Bytes()))
	if err != nil || !ok {
		return oid.GitOid{}, ok, err
	}
	return decodeGitOid(raw)
}

func (m *Hg2Git) ResolvePrefix(hexPrefix string) (oid.GitOid, bool, error) {
	raw, ok, err := m.t.GetPrefix(hexPrefix)
	if err != nil || !ok {
		return oid.GitOid{}, ok, err
	}
	return decodeGitOid(raw)
}

// Put records node -> id. Returns false if node was already mapped (the
// existing mapping is kept - conflict policy "ignore", spec §4.2).
func (m *Hg2Git) Put(node oid.HgNode, id oid.GitOid) (bool, error) {
	return m.t.Put(toArray(node.Bytes()), append([]byte(nil), id.Bytes()...))
}

func (m *Hg2Git) Root() oid.GitOid { return m.t.Root() }

// Git2Hg maps a Git commit id to an encoded Mercurial changeset-meta blob.
type Git2Hg struct {
	t objstore.NotesTree
}

func NewGit2Hg(t objstore.NotesTree) *Git2Hg { return &Git2Hg{t} }

func (m *Git2Hg) Get(commit oid.GitOid) ([]byte, bool, error) {
	return m.t.Get(toArray(commit.Bytes()))
}

func (m *Git2Hg) Put(commit oid.GitOid, meta []byte) (bool, error) {
	return m.t.Put(toArray(commit.Bytes()), meta)
}

func (m *Git2Hg) Root() oid.GitOid { return m.t.Root() }

// FilesMeta maps a Mercurial file node to an extra-metadata blob. Most
// file nodes have no entry here: absence means "no extra metadata", not
// an error (spec §3, `files_meta` note: "Partial; missing = no extra
// metadata").
type FilesMeta struct {
	t objstore.NotesTree
}

func NewFilesMeta(t objstore.NotesTree) *FilesMeta { return &FilesMeta{t} }

func (m *FilesMeta) Get(node oid.HgNode) ([]byte, bool, error) {
	return m.t.Get(toArray(node.Bytes()))
}

func (m *FilesMeta) Put(node oid.HgNode, meta []byte) (bool, error) {
	return m.t.Put(toArray(node.Bytes()), meta)
}

func (m *FilesMeta) Root() oid.GitOid { return m.t.Root() }

func toArray(b []byte) [oid.RawSize]byte {
	var a [oid.RawSize]byte
	copy(a[:], b)
	return a
}

func decodeGitOid(raw []byte) (oid.GitOid, bool, error) {
	id, err := oid.GitOidFromBytes(raw)
	if err != nil {
		return oid.GitOid{}, false, err
	}
	return id, true, nil
}
