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

// Package git2store implements objstore.Store over a libgit2-backed
// repository via internal/git. Besides internal/git itself, the only other
// code in this module that uses git2go is walk's RevList/GitDiffTree;
// everything else programs against objstore's interfaces, per spec §4.1/§6.
package git2store

import (
	"fmt"

	git2go "github.com/libgit2/git2go/v31"

	"lab.nexedi.com/kirr/hgbridge/internal/git"
	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

// Store implements objstore.Store backed by one on-disk Git repository.
type Store struct {
	repo *git.Repository
}

var _ objstore.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	repo, err := git.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("git2store: open %s: %w", path, err)
	}
	return &Store{repo: repo}, nil
}

func toGitOid(id oid.GitOid) *git.Oid {
	var o git.Oid
	copy(o[:], id.Bytes())
	return &o
}

func fromGitOid(o *git.Oid) oid.GitOid {
	id, err := oid.GitOidFromBytes(o[:])
	if err != nil {
		// git2go's Oid is always exactly 20 bytes; this would be a
		// programming bug, not a runtime condition.
		panic(err)
	}
	return id
}

func kindOf(t git.ObjectType) objstore.ObjectKind {
	switch t {
	case git.ObjectTree:
		return objstore.KindTree
	case git.ObjectCommit:
		return objstore.KindCommit
	case git.ObjectTag:
		return objstore.KindTag
	default:
		return objstore.KindBlob
	}
}

func (s *Store) ReadObject(id oid.GitOid) (objstore.Object, error) {
	odb, err := s.repo.Odb()
	if err != nil {
		return objstore.Object{}, fmt.Errorf("git2store: odb: %w", err)
	}
	obj, err := odb.Read(toGitOid(id))
	if err != nil {
		return objstore.Object{}, fmt.Errorf("git2store: read %s: %w", id, err)
	}
	return objstore.Object{
		Id:   id,
		Kind: kindOf(obj.Type()),
		Data: obj.Data(),
	}, nil
}

func (s *Store) ReadTree(id oid.GitOid) ([]objstore.TreeEntry, error) {
	tree, err := s.repo.LookupTree(toGitOid(id))
	if err != nil {
		return nil, fmt.Errorf("git2store: read tree %s: %w", id, err)
	}
	n := tree.EntryCount()
	entries := make([]objstore.TreeEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		e := tree.EntryByIndex(i)
		entries = append(entries, objstore.TreeEntry{
			Name: e.Name,
			Id:   fromGitOid(e.Id),
			Mode: objstore.Filemode(e.Filemode),
		})
	}
	return entries, nil
}

func (s *Store) WriteBlob(content []byte) (oid.GitOid, error) {
	odb, err := s.repo.Odb()
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("git2store: odb: %w", err)
	}
	gid, err := odb.Write(content, git.ObjectBlob)
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("git2store: write blob: %w", err)
	}
	return fromGitOid(gid), nil
}

func (s *Store) WriteTree(entries []objstore.TreeEntry, reference oid.GitOid) (oid.GitOid, error) {
	// reference is not used: a builder seeded from it would keep the
	// reference tree's entries that entries does not list.
	tb, err := s.repo.TreeBuilder()
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("git2store: tree builder: %w", err)
	}
	defer tb.Free()

	for _, e := range entries {
		if err := tb.Insert(e.Name, toGitOid(e.Id), git2go.Filemode(e.Mode)); err != nil {
			return oid.GitOid{}, fmt.Errorf("git2store: insert %s: %w", e.Name, err)
		}
	}
	gid, err := tb.Write()
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("git2store: write tree: %w", err)
	}
	return fromGitOid(gid), nil
}

func (s *Store) WriteCommit(tree oid.GitOid, parents []oid.GitOid, message string) (oid.GitOid, error) {
	sig, err := s.repo.DefaultSignature()
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("git2store: signature: %w", err)
	}
	parentIds := make([]*git.Oid, len(parents))
	for i, p := range parents {
		parentIds[i] = toGitOid(p)
	}
	gid, err := s.repo.CreateCommit(sig, message, toGitOid(tree), parentIds)
	if err != nil {
		return oid.GitOid{}, fmt.Errorf("git2store: write commit: %w", err)
	}
	return fromGitOid(gid), nil
}

func (s *Store) ReadRef(name string) (oid.GitOid, error) {
	ref, err := s.repo.References.Lookup(name)
	if err != nil {
		if git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
			return oid.GitOid{}, objstore.ErrRefNotFound
		}
		return oid.GitOid{}, fmt.Errorf("git2store: read ref %s: %w", name, err)
	}
	return fromGitOid(ref.Target()), nil
}

func (s *Store) UpdateRef(name string, old, new oid.GitOid) error {
	cur, err := s.ReadRef(name)
	switch {
	case err == objstore.ErrRefNotFound:
		if !old.IsZero() {
			return fmt.Errorf("git2store: update ref %s: does not exist, wanted old=%s", name, old)
		}
	case err != nil:
		return err
	default:
		if cur != old {
			return fmt.Errorf("git2store: update ref %s: current %s != expected old %s", name, cur, old)
		}
	}
	_, err = s.repo.References.Create(name, toGitOid(new), true, "hgbridge: update "+name)
	if err != nil {
		return fmt.Errorf("git2store: update ref %s: %w", name, err)
	}
	return nil
}

func (s *Store) ForEachRef(prefix string, cb func(name string, id oid.GitOid) error) error {
	return s.repo.References.ForEachRef(prefix, func(name string) error {
		id, err := s.ReadRef(name)
		if err != nil {
			return err
		}
		return cb(name, id)
	})
}

func (s *Store) Notes(notesRef string) objstore.NotesTree {
	return &notesTree{repo: s.repo, ref: notesRef}
}

// Repo exposes the underlying safe repository handle for callers of
// walk's RevList/GitDiffTree, which need lower-level git2go-adjacent
// operations (RevWalk, Diff) not covered by the narrow objstore.Store facade.
func (s *Store) Repo() *git.Repository { return s.repo }
