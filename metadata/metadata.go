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

// Package metadata implements the top-level metadata-root bookkeeping:
// locating the six sub-roots, parsing feature flags, and rebuilding the
// replace map (spec §4.7).
package metadata

import (
	"fmt"
	"sort"
	"strings"

	"lab.nexedi.com/kirr/hgbridge/objstore"
	"lab.nexedi.com/kirr/hgbridge/oid"
)

// Flags are the feature flags advertised by the metadata-root commit
// message (spec §3 "Feature flags").
type Flags uint32

const (
	FlagFilesMeta Flags = 1 << iota
	FlagUnifiedManifestsV2
)

// ErrOldFormat is returned when the metadata root indicates a pre-
// files-meta / legacy "unified-manifests" repository that must be
// upgraded externally (spec §7 "Version mismatch").
var ErrOldFormat = fmt.Errorf("metadata: repository uses an old metadata format, upgrade externally")

// ErrNewerFormat is returned when the metadata root carries a flag this
// implementation does not recognize (spec §7 "Version mismatch").
type ErrNewerFormat struct{ Flag string }

func (e *ErrNewerFormat) Error() string {
	return fmt.Sprintf("metadata: unrecognized flag %q (repository needs a newer bridge)", e.Flag)
}

// SubRoots are the six sub-roots of the metadata root: the commit's five
// positional parents in the fixed order spec §3 names (changesets,
// manifests, hg2git, git2hg, files-meta), plus the metadata commit itself.
type SubRoots struct {
	Changesets oid.GitOid
	Manifests  oid.GitOid
	Hg2Git     oid.GitOid
	Git2Hg     oid.GitOid
	FilesMeta  oid.GitOid
	Metadata   oid.GitOid
}

// Root is the parsed state of refs/cinnabar/metadata.
type Root struct {
	Roots   SubRoots
	Flags   Flags
	Replace map[oid.GitOid]oid.GitOid
}

const MetadataRef = "refs/cinnabar/metadata"

// Legacy ref prefixes that mark an old-format repository needing an
// external upgrade, alongside the legacy "unified-manifests" flag and
// an empty flag set (spec §3 "Feature flags").
const (
	LegacyBranchesRefPrefix = "refs/cinnabar/branches/"
	LegacyReplaceRefPrefix  = "refs/cinnabar/replace/"
)

// Init loads the metadata root. A missing ref is not an error (spec §7
// "Not-a-repository" / scenario 1 "Empty repo"): Root is returned with
// all sub-roots zero and Flags == 0.
func Init(store objstore.Store, ref string) (*Root, error) {
	id, err := store.ReadRef(ref)
	if err == objstore.ErrRefNotFound {
		return &Root{Replace: map[oid.GitOid]oid.GitOid{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("metadata: read ref %s: %w", ref, err)
	}

	obj, err := store.ReadObject(id)
	if err != nil {
		return nil, fmt.Errorf("metadata: read metadata commit %s: %w", id, err)
	}
	tree, parents, message, err := objstore.ParseCommit(obj.Data)
	if err != nil {
		return nil, fmt.Errorf("metadata: parse metadata commit: %w", err)
	}
	if len(parents) != 5 {
		return nil, fmt.Errorf("metadata: metadata commit has %d parents, want 5", len(parents))
	}

	roots := SubRoots{
		Changesets: parents[0],
		Manifests:  parents[1],
		Hg2Git:     parents[2],
		Git2Hg:     parents[3],
		FilesMeta:  parents[4],
		Metadata:   id,
	}

	flags, err := ParseFlags(strings.Fields(message))
	if err != nil {
		return nil, err
	}
	// spec §3 "Feature flags": absence of both recognized flags marks
	// the store as old-format just as surely as the legacy flag does.
	if flags == 0 {
		return nil, ErrOldFormat
	}
	if oldFormat, err := hasAnyRef(store, LegacyBranchesRefPrefix); err != nil {
		return nil, fmt.Errorf("metadata: scan %s: %w", LegacyBranchesRefPrefix, err)
	} else if oldFormat {
		return nil, ErrOldFormat
	}
	if oldFormat, err := hasAnyRef(store, LegacyReplaceRefPrefix); err != nil {
		return nil, fmt.Errorf("metadata: scan %s: %w", LegacyReplaceRefPrefix, err)
	} else if oldFormat {
		return nil, ErrOldFormat
	}

	replace, err := buildReplaceMap(store, tree)
	if err != nil {
		return nil, err
	}

	return &Root{Roots: roots, Flags: flags, Replace: replace}, nil
}

// hasAnyRef reports whether any ref under prefix exists.
func hasAnyRef(store objstore.Store, prefix string) (bool, error) {
	found := false
	err := store.ForEachRef(prefix, func(name string, id oid.GitOid) error {
		found = true
		return errStopForEach
	})
	if err != nil && err != errStopForEach {
		return false, err
	}
	return found, nil
}

// errStopForEach is a private sentinel used to short-circuit
// ForEachRef once a single matching ref has been seen - callers never
// observe it.
var errStopForEach = fmt.Errorf("metadata: stop")

// ParseFlags parses the metadata commit's whitespace-separated flag
// list (spec §4.7; separator format resolved in SPEC_FULL.md §7).
func ParseFlags(fields []string) (Flags, error) {
	var flags Flags
	for _, f := range fields {
		switch f {
		case "files-meta":
			flags |= FlagFilesMeta
		case "unified-manifests-v2":
			flags |= FlagUnifiedManifestsV2
		case "unified-manifests":
			return 0, ErrOldFormat
		default:
			return 0, &ErrNewerFormat{Flag: f}
		}
	}
	return flags, nil
}

// FormatFlags re-serializes flags, sorted, single-spaced, for
// deterministic commit messages across runs (SPEC_FULL.md §7).
func FormatFlags(flags Flags) string {
	var fields []string
	if flags&FlagFilesMeta != 0 {
		fields = append(fields, "files-meta")
	}
	if flags&FlagUnifiedManifestsV2 != 0 {
		fields = append(fields, "unified-manifests-v2")
	}
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// buildReplaceMap rebuilds the replace map from the metadata commit's
// tree (spec §4.7): entry names must be 40-hex lowercase Git ids (else
// skipped), self-referencing entries are dropped, duplicates are fatal
// (invariant 8). Skipped and dropped entries are not reported: no warning
// is emitted and the returned map gives no trace of them.
func buildReplaceMap(store objstore.Store, treeId oid.GitOid) (map[oid.GitOid]oid.GitOid, error) {
	replace := make(map[oid.GitOid]oid.GitOid)
	if treeId.IsZero() {
		return replace, nil
	}
	entries, err := store.ReadTree(treeId)
	if err != nil {
		return nil, fmt.Errorf("metadata: read replace tree %s: %w", treeId, err)
	}
	for _, e := range entries {
		old, err := oid.ParseGitOid(e.Name)
		if err != nil || !isLowerHex(e.Name) {
			// malformed entry name: skipped silently.
			continue
		}
		if old == e.Id {
			// self-referencing: skipped silently.
			continue
		}
		if _, dup := replace[old]; dup {
			return nil, fmt.Errorf("metadata: duplicate replace entry for %s", old)
		}
		replace[old] = e.Id
	}
	return replace, nil
}

func isLowerHex(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
