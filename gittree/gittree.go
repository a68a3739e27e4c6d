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

// Package gittree translates an encoded Mercurial manifest tree into a
// real, checkoutable Git tree (spec §4.6, create_git_tree).
package gittree

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"lab.nexedi.com/kirr/hgbridge/notes"
	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
	"lab.nexedi.com/kirr/hgbridge/verify"
)

// emptyFileNode is Mercurial's node for a zero-byte file revision:
// hg_sha1("", null, null). It is NOT the all-zero/null node id (spec
// §3's separate "none" sentinel) - it is this specific, non-zero hash,
// and it is the one translateEntry must substitute the empty Git blob
// for without ever consulting hg2git (invariant 6).
var emptyFileNode = verify.HgSha1(nil, oid.HgNode{}, oid.HgNode{})

// Translator implements create_git_tree. It resolves each encoded file
// node through hg2git and caches (encodedTreeId) -> realTreeId results
// for the no-merge-tree case (spec §4.6 "Cache").
type Translator struct {
	store     objstore.Store
	hg2git    *notes.Hg2Git
	cache     *ristretto.Cache[oid.GitOid, oid.GitOid]
	group     singleflight.Group
	emptyBlob oid.GitOid
	haveEmpty bool
}

func New(store objstore.Store, hg2git *notes.Hg2Git) (*Translator, error) {
	return NewSized(store, hg2git, 100_000, 100_000, 64)
}

// NewSized is New with explicit ristretto sizing, for callers wiring
// cache knobs in from config.Config.
func NewSized(store objstore.Store, hg2git *notes.Hg2Git, numCounters, maxCost, bufferItems int64) (*Translator, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[oid.GitOid, oid.GitOid]{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("gittree: cache: %w", err)
	}
	return &Translator{store: store, hg2git: hg2git, cache: cache}, nil
}

// Close releases the translator's cache (spec §5 "freed by done").
func (tr *Translator) Close() { tr.cache.Close() }

// EnsureEmptyBlob returns the empty Git blob's id, creating it on first
// demand (spec §6 "ensure_empty_blob() -> id").
func (tr *Translator) EnsureEmptyBlob() (oid.GitOid, error) {
	if tr.haveEmpty {
		return tr.emptyBlob, nil
	}
	id, err := tr.store.WriteBlob(nil)
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("gittree: ensure empty blob: %w", err)
	}
	tr.emptyBlob = id
	tr.haveEmpty = true
	return id, nil
}

// Reload drops the translation cache (spec §4.6 "reload clears them" and
// §4.7 "Reload sequence").
func (tr *Translator) Reload() {
	tr.cache.Clear()
}

// CreateGitTree is create_git_tree: given an encoded manifest tree id
// and an optional reference real-Git-tree hint, returns the id of the
// equivalent real Git tree. When mergeTreeId is non-zero, the translator
// merges two encoded manifest trees (spec §4.6 "Merge mode") and the
// cache is bypassed, per spec.
func (tr *Translator) CreateGitTree(encodedTreeId, reference, mergeTreeId oid.GitOid) (oid.GitOid, error) {
	if !mergeTreeId.IsZero() {
		return tr.translateMerge(encodedTreeId, mergeTreeId, reference)
	}
	if cached, ok := tr.cache.Get(encodedTreeId); ok {
		return cached, nil
	}
	v, err, _ := tr.group.Do(encodedTreeId.String(), func() (any, error) {
		if cached, ok := tr.cache.Get(encodedTreeId); ok {
			return cached, nil
		}
		id, err := tr.translate(encodedTreeId, reference)
		if err != nil {
			return oid.GitOid{}, err
		}
		tr.cache.Set(encodedTreeId, id, 1)
		tr.cache.Wait()
		return id, nil
	})
	if err != nil {
		return oid.GitOid{}, err
	}
	return v.(oid.GitOid), nil
}

// translate performs the single-tree (no merge) translation, including
// the double-slash quirk (spec §4.6): an empty-name entry "_" is
// recursed into as if it replaced the outer tree.
func (tr *Translator) translate(encodedTreeId, reference oid.GitOid) (oid.GitOid, error) {
	entries, err := tr.store.ReadTree(encodedTreeId)
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("gittree: read %s: %w", encodedTreeId, err)
	}

	var out []objstore.TreeEntry
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, "_") {
			return oid.GitOid{}, fmt.Errorf("gittree: entry %q in %s lacks required _ prefix", e.Name, encodedTreeId)
		}
		name := e.Name[1:]

		if name == "" {
			// double-slash quirk, no merge-tree: recurse as if this
			// inner tree replaced the outer one (spec §4.6).
			return tr.CreateGitTree(e.Id, reference, oid.GitOid{})
		}

		entry, err := tr.translateEntry(name, e, oid.GitOid{})
		if err != nil {
			return oid.GitOid{}, err
		}
		out = append(out, entry)
	}
	return tr.store.WriteTree(out, reference)
}

func (tr *Translator) translateEntry(name string, e objstore.TreeEntry, reference oid.GitOid) (objstore.TreeEntry, error) {
	if e.Mode == objstore.ModeTree {
		subId, err := tr.CreateGitTree(e.Id, reference, oid.GitOid{})
		if err != nil {
			return objstore.TreeEntry{}, err
		}
		return objstore.TreeEntry{Name: name, Id: subId, Mode: objstore.ModeTree}, nil
	}

	node, err := oid.HgNodeFromBytes(e.Id.Bytes())
	if err != nil {
		return objstore.TreeEntry{}, err
	}
	mode, err := canonicalMode(e.Mode)
	if err != nil {
		return objstore.TreeEntry{}, err
	}

	var blobId oid.GitOid
	if isEmptyFileNode(node) {
		// invariant 6: hg2git is never consulted for the empty-file node.
		blobId, err = tr.EnsureEmptyBlob()
		if err != nil {
			return objstore.TreeEntry{}, err
		}
	} else {
		resolved, ok, err := tr.hg2git.Resolve(node)
		if err != nil {
			return objstore.TreeEntry{}, fmt.Errorf("gittree: resolve %s: %w", node, err)
		}
		if !ok {
			return objstore.TreeEntry{}, fmt.Errorf("gittree: unresolved file node %s", node)
		}
		blobId = resolved
	}
	return objstore.TreeEntry{Name: name, Id: blobId, Mode: mode}, nil
}

// translateMerge implements §4.6 "Merge mode": walk both encoded trees,
// preferring a's file entries and recursing into both for overlapping
// directories.
func (tr *Translator) translateMerge(aTreeId, bTreeId, reference oid.GitOid) (oid.GitOid, error) {
	aEntries, err := tr.store.ReadTree(aTreeId)
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("gittree: read %s: %w", aTreeId, err)
	}
	bEntries, err := tr.store.ReadTree(bTreeId)
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("gittree: read %s: %w", bTreeId, err)
	}

	aByName := make(map[string]objstore.TreeEntry, len(aEntries))
	bByName := make(map[string]objstore.TreeEntry, len(bEntries))
	order := make([]string, 0, len(aEntries)+len(bEntries))
	seen := make(map[string]bool, len(aEntries)+len(bEntries))

	for _, e := range bEntries {
		if !strings.HasPrefix(e.Name, "_") {
			return oid.GitOid{}, fmt.Errorf("gittree: entry %q in %s lacks required _ prefix", e.Name, bTreeId)
		}
		bByName[e.Name[1:]] = e
	}

	for _, e := range aEntries {
		if !strings.HasPrefix(e.Name, "_") {
			return oid.GitOid{}, fmt.Errorf("gittree: entry %q in %s lacks required _ prefix", e.Name, aTreeId)
		}
		name := e.Name[1:]
		if name == "" {
			// merge-tree supplied: empty-name quirk entries are ignored.
			continue
		}
		aByName[name] = e
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}
	for name := range bByName {
		if name == "" {
			continue
		}
		if !seen[name] {
			seen[name] = true
			order = append(order, name)
		}
	}

	var out []objstore.TreeEntry
	for _, name := range order {
		a, aOk := aByName[name]
		b, bOk := bByName[name]

		switch {
		case aOk && bOk && a.Mode == objstore.ModeTree && b.Mode == objstore.ModeTree:
			subId, err := tr.translateMerge(a.Id, b.Id, oid.GitOid{})
			if err != nil {
				return oid.GitOid{}, err
			}
			out = append(out, objstore.TreeEntry{Name: name, Id: subId, Mode: objstore.ModeTree})
		case aOk:
			entry, err := tr.translateEntry(name, a, oid.GitOid{})
			if err != nil {
				return oid.GitOid{}, err
			}
			out = append(out, entry)
		default:
			entry, err := tr.translateEntry(name, b, oid.GitOid{})
			if err != nil {
				return oid.GitOid{}, err
			}
			out = append(out, entry)
		}
	}
	return tr.store.WriteTree(out, reference)
}

// canonicalMode normalizes a gitlink mode to S_IFREG|perm or S_IFLNK,
// then through Git's own mode canonicalization (spec §4.6 "Modes").
func canonicalMode(mode objstore.Filemode) (objstore.Filemode, error) {
	perm := mode & 0777
	switch perm {
	case 0644:
		return objstore.ModeBlob, nil
	case 0755:
		return objstore.ModeBlobExecutable, nil
	case 0000:
		return objstore.ModeSymlink, nil
	default:
		return 0, fmt.Errorf("gittree: invalid gitlink mode %o", mode)
	}
}

// isEmptyFileNode reports whether node is Mercurial's well-known empty-
// file node, hg_sha1("", null, null) - distinct from the all-zero
// "none" node id (spec §3).
func isEmptyFileNode(node oid.HgNode) bool {
	return node == emptyFileNode
}
