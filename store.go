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

// Package hgbridge bundles the Mercurial<->Git metadata translation core
// into a single Store context (spec §9 "Global state"): the notes
// trees, the manifest generator and its cache, the git-tree translator
// and its cache, and the parsed metadata root, all threaded explicitly
// rather than kept as process-wide singletons the way the C original
// does.
package hgbridge

import (
	"fmt"

	"lab.nexedi.com/kirr/hgbridge/gittree"
	"lab.nexedi.com/kirr/hgbridge/internal/config"
	"lab.nexedi.com/kirr/hgbridge/internal/git2store"
	"lab.nexedi.com/kirr/hgbridge/internal/logging"
	"lab.nexedi.com/kirr/hgbridge/manifest"
	"lab.nexedi.com/kirr/hgbridge/metadata"
	"lab.nexedi.com/kirr/hgbridge/notes"
	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
	"lab.nexedi.com/kirr/hgbridge/verify"
	"lab.nexedi.com/kirr/hgbridge/walk"
)

// Store is the bundled context every public operation of this package
// is a method on. Construct one with Init; tear it down with Close.
type Store struct {
	store objstore.Store
	cfg   *config.Config
	Log   *logging.Log

	hg2git    *notes.Hg2Git
	git2hg    *notes.Git2Hg
	filesMeta *notes.FilesMeta

	gen   *manifest.Generator
	trans *gittree.Translator

	root *metadata.Root

	// manifestHeads is the working head set maintained by
	// reset_manifest_heads/add_head (spec §6).
	manifestHeads oid.Set[oid.GitOid]
}

// Open is the on-disk convenience entry point for Init: it opens path
// as a libgit2 repository via internal/git2store and bundles it into a
// Store the same way Init does for any other objstore.Store. cfgPath
// is passed to config.Load ("" uses config.Default()).
func Open(path, cfgPath string) (*Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("hgbridge: open %s: %w", path, err)
	}
	backend, err := git2store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("hgbridge: open %s: %w", path, err)
	}
	return Init(backend, cfg)
}

// Init is init(argv0) (spec §6): bundles objectStore - any
// objstore.Store, real or fake - into a Store and loads the metadata
// root named by cfg.Refs.Metadata. A nil cfg uses config.Default().
func Init(objectStore objstore.Store, cfg *config.Config) (*Store, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	hg2git := notes.NewHg2Git(objectStore.Notes(cfg.Refs.Hg2Git))
	git2hg := notes.NewGit2Hg(objectStore.Notes(cfg.Refs.Git2Hg))
	filesMeta := notes.NewFilesMeta(objectStore.Notes(cfg.Refs.FilesMeta))

	gen, err := manifest.NewGeneratorSized(objectStore,
		cfg.ManifestCache.NumCounters, cfg.ManifestCache.MaxCost, cfg.ManifestCache.BufferItems)
	if err != nil {
		return nil, fmt.Errorf("hgbridge: init: %w", err)
	}
	trans, err := gittree.NewSized(objectStore, hg2git,
		cfg.GitTreeCache.NumCounters, cfg.GitTreeCache.MaxCost, cfg.GitTreeCache.BufferItems)
	if err != nil {
		gen.Close()
		return nil, fmt.Errorf("hgbridge: init: %w", err)
	}

	root, err := metadata.Init(objectStore, cfg.Refs.Metadata)
	if err != nil {
		gen.Close()
		trans.Close()
		return nil, fmt.Errorf("hgbridge: init: %w", err)
	}

	return &Store{
		store:         objectStore,
		cfg:           cfg,
		Log:           logging.New(cfg.Verbosity),
		hg2git:        hg2git,
		git2hg:        git2hg,
		filesMeta:     filesMeta,
		gen:           gen,
		trans:         trans,
		root:          root,
		manifestHeads: oid.NewSet[oid.GitOid](),
	}, nil
}

// InitPhase2 is init_phase2() (spec §6): reports whether the repository
// actually carries bridge metadata, without treating a fresh repository
// as an error (spec §7 "Not-a-repository").
func (s *Store) InitPhase2() bool {
	return !s.root.Roots.Metadata.IsZero()
}

// Reload is reload() (spec §6): re-reads the metadata root, clears the
// git-tree translation cache and the manifest head set, and leaves the
// rest of the Store (object store, notes handles, and the manifest
// generator's fragment cache, whose entries are keyed by immutable tree
// ids) untouched. Calling Reload
// twice in a row leaves the same in-memory state (invariant 9).
func (s *Store) Reload() error {
	root, err := metadata.Init(s.store, s.cfg.Refs.Metadata)
	if err != nil {
		return fmt.Errorf("hgbridge: reload: %w", err)
	}
	s.root = root
	s.trans.Reload()
	s.manifestHeads = oid.NewSet[oid.GitOid]()
	return nil
}

// Close is done() (spec §6): releases the caches. The Store must not be
// used afterward.
func (s *Store) Close() {
	s.gen.Close()
	s.trans.Close()
}

// Root returns the currently loaded metadata root.
func (s *Store) Root() *metadata.Root { return s.root }

// ResolveHg is resolve_hg(notes, node, len) (spec §6): looks a
// Mercurial node up in hg2git, honoring an abbreviated hex prefix when
// hexLen is less than a full 40-hex node.
func (s *Store) ResolveHg(node oid.HgNode, hexLen int) (oid.GitOid, bool, error) {
	if hexLen >= oid.RawSize*2 {
		return s.hg2git.Resolve(node)
	}
	return s.hg2git.ResolvePrefix(node.String()[:hexLen])
}

// Git2Hg exposes the changeset-meta map for callers needing the raw
// blob behind a translated commit (spec §3 "git2hg").
func (s *Store) Git2Hg() *notes.Git2Hg { return s.git2hg }

// FilesMeta exposes the per-file extra-metadata map (spec §3 "files_meta").
func (s *Store) FilesMeta() *notes.FilesMeta { return s.filesMeta }

// GenerateManifest is generate_manifest(tree_id) (spec §6): returns the
// flat Mercurial manifest bytes for an encoded tree, served from the
// generator's cache.
func (s *Store) GenerateManifest(treeId oid.GitOid) ([]byte, error) {
	return s.gen.Generate(treeId)
}

// CheckManifest is check_manifest(tree_id, out_node?) (spec §6).
func (s *Store) CheckManifest(treeId oid.GitOid, p1, p2, wantNode oid.HgNode) (bool, error) {
	flat, err := s.gen.Generate(treeId)
	if err != nil {
		return false, err
	}
	return verify.CheckManifest(flat, p1, p2, wantNode), nil
}

// CheckFile is check_file(node, p1, p2) (spec §6): resolves node
// through hg2git and verifies the blob's hg_sha1 closure against the
// ranked (p1,p2) fallback tuples (spec §4.5).
func (s *Store) CheckFile(node, p1, p2 oid.HgNode) (bool, error) {
	gitId, ok, err := s.hg2git.Resolve(node)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	obj, err := s.store.ReadObject(gitId)
	if err != nil {
		return false, err
	}
	return verify.CheckFile(obj.Data, node, p1, p2), nil
}

// CreateGitTree is create_git_tree(encoded_tree_id, reference?) (spec §6).
func (s *Store) CreateGitTree(encodedTreeId, reference, mergeTreeId oid.GitOid) (oid.GitOid, error) {
	return s.trans.CreateGitTree(encodedTreeId, reference, mergeTreeId)
}

// EnsureEmptyBlob is ensure_empty_blob() -> id (spec §6).
func (s *Store) EnsureEmptyBlob() (oid.GitOid, error) {
	return s.trans.EnsureEmptyBlob()
}

// IterTree is iter_tree(tree_id, cb, recursive) (spec §6).
func (s *Store) IterTree(treeId oid.GitOid, recursive bool, cb func(id oid.GitOid, base, name string, mode objstore.Filemode) error) error {
	return walk.IterTree(s.store, treeId, recursive, cb)
}

// ResetManifestHeads is reset_manifest_heads() (spec §6): drops the
// working head set back to empty.
func (s *Store) ResetManifestHeads() {
	s.manifestHeads = oid.NewSet[oid.GitOid]()
}

// AddHead is add_head(heads, id) (spec §6): records id as a manifest
// head.
func (s *Store) AddHead(id oid.GitOid) {
	s.manifestHeads.Add(id)
}

// ManifestHeads returns the current working head set.
func (s *Store) ManifestHeads() []oid.GitOid {
	return s.manifestHeads.Elements()
}
