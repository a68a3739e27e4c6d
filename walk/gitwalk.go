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

package walk

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v31"

	"lab.nexedi.com/kirr/hgbridge/internal/git"
	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

// RevList is rev_list (spec §4.8): creates a revision walker over repo
// from a pass-through list of ref names (each pushed with PushRef; raw
// object ids are not accepted) and lets the caller pull
// commits one at a time through cb. isGraft classifies shallow-graft
// boundaries (spec's "maybe_boundary" == 2); pass nil if the caller has
// no graft records.
func RevList(repo *git.Repository, args []string, explicitBoundary map[oid.GitOid]bool, isGraft GraftLookup, cb func(commit oid.GitOid, boundary Boundary) error) error {
	w, err := repo.NewRevWalk()
	if err != nil {
		return fmt.Errorf("walk: rev_list: new walk: %w", err)
	}
	defer w.Free()
	w.Sorting(git2go.SortTopological | git2go.SortTime)

	for _, arg := range args {
		if err := w.PushRef(arg); err != nil {
			return fmt.Errorf("walk: rev_list: push %q: %w", arg, err)
		}
	}

	for {
		gid, ok, err := w.Next()
		if err != nil {
			return fmt.Errorf("walk: rev_list: %w", err)
		}
		if !ok {
			return nil
		}
		commit, err := oid.GitOidFromBytes(gid[:])
		if err != nil {
			return err
		}
		boundary := MaybeBoundary(commit, explicitBoundary, isGraft)
		if err := cb(commit, boundary); err != nil {
			return err
		}
	}
}

// GitDiffTree is the git2go-backed counterpart to DiffTree: a recursive
// diff between exactly two commits' trees (spec §4.8 "diff_tree"),
// delivered as (a-entry, b-entry, similarity, status) tuples. Entries
// with DiffStatusUnknown are filtered; a zero status is the fatal
// internal invariant violation spec §4.8 calls out.
func GitDiffTree(repo *git.Repository, aCommit, bCommit oid.GitOid, cb DiffTreeCallback) error {
	var aGid, bGid git.Oid
	copy(aGid[:], aCommit.Bytes())
	copy(bGid[:], bCommit.Bytes())

	aC, err := repo.LookupCommit(&aGid)
	if err != nil {
		return fmt.Errorf("walk: diff_tree: lookup %s: %w", aCommit, err)
	}
	bC, err := repo.LookupCommit(&bGid)
	if err != nil {
		return fmt.Errorf("walk: diff_tree: lookup %s: %w", bCommit, err)
	}
	aTree, err := aC.Tree()
	if err != nil {
		return fmt.Errorf("walk: diff_tree: tree of %s: %w", aCommit, err)
	}
	bTree, err := bC.Tree()
	if err != nil {
		return fmt.Errorf("walk: diff_tree: tree of %s: %w", bCommit, err)
	}

	diff, err := repo.DiffTreeToTree(aTree, bTree, &git2go.DiffOptions{Flags: git2go.DiffNormal})
	if err != nil {
		return fmt.Errorf("walk: diff_tree: %w", err)
	}
	defer diff.Free()

	// rewrite delete+add pairs into DeltaRenamed/DeltaCopied and compute
	// Similarity, or fromDeltaType's rename/copy branches never fire and
	// the similarity score in the callback tuple stays zero (spec §4.8).
	if err := diff.FindSimilar(nil); err != nil {
		return fmt.Errorf("walk: diff_tree: find similar: %w", err)
	}

	var cbErr error
	err = diff.ForEach(func(delta git2go.DiffDelta, progress float64) error {
		if delta.Status == git2go.DeltaUnmodified {
			return ErrInvalidStatus
		}
		status := fromDeltaType(delta.Status)
		if status == DiffStatusUnknown {
			return nil // filtered, per spec §4.8
		}

		aEntry, err := toDiffEntry(delta.OldFile)
		if err != nil {
			cbErr = err
			return err
		}
		bEntry, err := toDiffEntry(delta.NewFile)
		if err != nil {
			cbErr = err
			return err
		}

		if err := cb(aEntry, bEntry, int(delta.Similarity), status); err != nil {
			cbErr = err
			return err
		}
		return nil
	}, git2go.DiffDetailFiles)
	if cbErr != nil {
		return cbErr
	}
	return err
}

func toDiffEntry(f git2go.DiffFile) (DiffEntry, error) {
	if f.Path == "" {
		return DiffEntry{}, nil
	}
	id, err := oid.GitOidFromBytes(f.Oid[:])
	if err != nil {
		return DiffEntry{}, err
	}
	return DiffEntry{Path: f.Path, Id: id, Mode: objstore.Filemode(f.Mode)}, nil
}

func fromDeltaType(s git2go.Delta) DiffStatus {
	switch s {
	case git2go.DeltaAdded, git2go.DeltaUntracked:
		return DiffStatusAdded
	case git2go.DeltaDeleted:
		return DiffStatusDeleted
	case git2go.DeltaModified:
		return DiffStatusModified
	case git2go.DeltaRenamed:
		return DiffStatusRenamed
	case git2go.DeltaCopied:
		return DiffStatusCopied
	case git2go.DeltaTypeChange:
		return DiffStatusTypeChanged
	default:
		return DiffStatusUnknown
	}
}
