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

package git2store

import (
	"encoding/hex"
	"fmt"

	"lab.nexedi.com/kirr/hgbridge/internal/git"
	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

// notesTree implements objstore.NotesTree over git2go's native notes API
// (see spec §4.2 and SPEC_FULL.md §6: the fan-out git-notes already
// performs internally is not worth reimplementing by hand).
type notesTree struct {
	repo *git.Repository
	ref  string
}

func (n *notesTree) Get(id [oid.RawSize]byte) ([]byte, bool, error) {
	var gid git.Oid
	copy(gid[:], id[:])
	data, ok, err := n.repo.Notes(n.ref).Read(&gid)
	if err != nil {
		return nil, false, fmt.Errorf("notes(%s): read %x: %w", n.ref, id, err)
	}
	return data, ok, nil
}

// GetPrefix implements the abbreviated hg2git lookup of SPEC_FULL.md §7:
// libgit2 exposes no prefix-scan primitive over a notes tree, so the
// notes ref is walked once, comparing prefixHex against the hex form of
// each note's key.
func (n *notesTree) GetPrefix(prefixHex string) ([]byte, bool, error) {
	var data []byte
	matches := 0
	err := n.repo.Notes(n.ref).ForEach(func(_, annotatedId *git.Oid) error {
		if hasHexPrefix(annotatedId, prefixHex) {
			matches++
			if matches == 1 {
				d, ok, err := n.repo.Notes(n.ref).Read(annotatedId)
				if err != nil {
					return err
				}
				if ok {
					data = d
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("notes(%s): prefix scan %s: %w", n.ref, prefixHex, err)
	}
	if matches != 1 {
		return nil, false, nil
	}
	return data, true, nil
}

func hasHexPrefix(id *git.Oid, prefixHex string) bool {
	full := hex.EncodeToString(id[:])
	return len(full) >= len(prefixHex) && full[:len(prefixHex)] == prefixHex
}

func (n *notesTree) Put(id [oid.RawSize]byte, data []byte) (bool, error) {
	var gid git.Oid
	copy(gid[:], id[:])

	// conflict policy: ignore (keep existing) - see spec §4.2
	if _, ok, err := n.repo.Notes(n.ref).Read(&gid); err != nil {
		return false, fmt.Errorf("notes(%s): read %x: %w", n.ref, id, err)
	} else if ok {
		return false, nil
	}

	sig, err := n.repo.DefaultSignature()
	if err != nil {
		return false, fmt.Errorf("notes(%s): signature: %w", n.ref, err)
	}
	if err := n.repo.Notes(n.ref).Create(sig, &gid, string(data)); err != nil {
		return false, fmt.Errorf("notes(%s): put %x: %w", n.ref, id, err)
	}
	return true, nil
}

func (n *notesTree) Root() oid.GitOid {
	ref, err := n.repo.References.Lookup(n.ref)
	if err != nil {
		return oid.GitOid{}
	}
	return fromGitOid(ref.Target())
}

var _ objstore.NotesTree = (*notesTree)(nil)
