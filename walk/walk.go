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

// Package walk implements the revision-walk and diff adapters of spec
// §4.8: rev_list, diff_tree, and the store-generic iter_tree.
package walk

import (
	"fmt"

	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

// IterTree is iter_tree(tree_id, cb, recursive): a DFS over tree_id,
// invoking cb(id, base, name, mode) for every entry (spec §4.8). When
// recursive, the walk descends into subtrees; it is implemented purely
// against objstore.Store so it needs no git2go-specific walker.
func IterTree(store objstore.Store, treeId oid.GitOid, recursive bool, cb func(id oid.GitOid, base, name string, mode objstore.Filemode) error) error {
	return iterTree(store, treeId, "", recursive, cb)
}

func iterTree(store objstore.Store, treeId oid.GitOid, base string, recursive bool, cb func(id oid.GitOid, base, name string, mode objstore.Filemode) error) error {
	if treeId.IsZero() {
		return nil
	}
	entries, err := store.ReadTree(treeId)
	if err != nil {
		return fmt.Errorf("walk: read tree %s: %w", treeId, err)
	}
	for _, e := range entries {
		if err := cb(e.Id, base, e.Name, e.Mode); err != nil {
			return err
		}
		if recursive && e.Mode == objstore.ModeTree {
			subBase := e.Name
			if base != "" {
				subBase = base + "/" + e.Name
			}
			if err := iterTree(store, e.Id, subBase, recursive, cb); err != nil {
				return err
			}
		}
	}
	return nil
}

// Boundary classifies a commit yielded by a revision walk (spec §4.8
// "maybe_boundary").
type Boundary int

const (
	BoundaryInterior Boundary = 0
	BoundaryExplicit Boundary = 1
	BoundaryGraft    Boundary = 2
)

// GraftLookup reports whether commit has a grafted, parentless record -
// the condition under which a walk boundary is synthesized as
// BoundaryGraft rather than being explicit (spec §4.8).
type GraftLookup func(commit oid.GitOid) bool

// MaybeBoundary classifies commit as interior, an explicit boundary (the
// caller listed it in explicitBoundary), or a synthesized shallow-graft
// boundary.
func MaybeBoundary(commit oid.GitOid, explicitBoundary map[oid.GitOid]bool, isGraft GraftLookup) Boundary {
	if explicitBoundary[commit] {
		return BoundaryExplicit
	}
	if isGraft != nil && isGraft(commit) {
		return BoundaryGraft
	}
	return BoundaryInterior
}

// DiffStatus mirrors the status codes spec §4.8 "diff_tree" callbacks
// carry alongside each (a-entry, b-entry, similarity) tuple.
type DiffStatus int

const (
	DiffStatusUnknown DiffStatus = iota
	DiffStatusAdded
	DiffStatusDeleted
	DiffStatusModified
	DiffStatusRenamed
	DiffStatusCopied
	DiffStatusTypeChanged
)

// DiffEntry is one side of a diff_tree delta.
type DiffEntry struct {
	Path string
	Id   oid.GitOid
	Mode objstore.Filemode
}

// DiffTreeCallback receives one delta per call; aEntry/bEntry are zero-
// valued on the added/deleted side respectively.
type DiffTreeCallback func(aEntry, bEntry DiffEntry, similarity int, status DiffStatus) error

// ErrInvalidStatus is raised when a delta carries status == 0 from the
// underlying diff engine - spec §4.8 calls this "a fatal internal
// invariant violation", distinct from the DiffStatusUnknown entries this
// package filters out itself.
var ErrInvalidStatus = fmt.Errorf("walk: diff_tree: status 0 is an internal invariant violation")

// pathEntry/pathTree give a small, store-generic two-tree diff so
// diff_tree's contract (spec §4.8) can be exercised without a real
// git2go Diff - GitDiffTree (gitwalk.go) is the git2go-native path for
// production use through internal/git's Diff wrapper; this pure-function
// version is what
// drives the package's own tests and any caller without a repository
// handy (e.g. verifying a hand-built pair of encoded manifest trees).
func DiffTree(store objstore.Store, aTree, bTree oid.GitOid, recursive bool, cb DiffTreeCallback) error {
	aEntries, err := flattenTree(store, aTree, "", recursive)
	if err != nil {
		return err
	}
	bEntries, err := flattenTree(store, bTree, "", recursive)
	if err != nil {
		return err
	}

	aByPath := make(map[string]DiffEntry, len(aEntries))
	for _, e := range aEntries {
		aByPath[e.Path] = e
	}
	bByPath := make(map[string]DiffEntry, len(bEntries))
	for _, e := range bEntries {
		bByPath[e.Path] = e
	}

	seen := make(map[string]bool, len(aEntries)+len(bEntries))
	order := make([]string, 0, len(aEntries)+len(bEntries))
	for _, e := range aEntries {
		if !seen[e.Path] {
			seen[e.Path] = true
			order = append(order, e.Path)
		}
	}
	for _, e := range bEntries {
		if !seen[e.Path] {
			seen[e.Path] = true
			order = append(order, e.Path)
		}
	}

	for _, path := range order {
		a, aOk := aByPath[path]
		b, bOk := bByPath[path]

		var status DiffStatus
		switch {
		case aOk && !bOk:
			status = DiffStatusDeleted
		case !aOk && bOk:
			status = DiffStatusAdded
		case a.Id == b.Id && a.Mode == b.Mode:
			continue // unchanged, not part of the diff
		case a.Mode != b.Mode:
			status = DiffStatusTypeChanged
		default:
			status = DiffStatusModified
		}

		if status == DiffStatusUnknown {
			return ErrInvalidStatus
		}
		if err := cb(a, b, 100, status); err != nil {
			return err
		}
	}
	return nil
}

func flattenTree(store objstore.Store, treeId oid.GitOid, base string, recursive bool) ([]DiffEntry, error) {
	var out []DiffEntry
	err := iterTree(store, treeId, base, recursive, func(id oid.GitOid, entryBase, name string, mode objstore.Filemode) error {
		path := name
		if entryBase != "" {
			path = entryBase + "/" + name
		}
		if mode == objstore.ModeTree && recursive {
			return nil // descending further handled by iterTree itself; don't emit the directory node as a leaf
		}
		out = append(out, DiffEntry{Path: path, Id: id, Mode: mode})
		return nil
	})
	return out, err
}
