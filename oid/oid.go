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

// Package oid defines the two disjoint 20-byte id namespaces the bridge
// operates on: Git object ids and Mercurial node ids. They are kept as
// distinct Go types precisely so the two namespaces can never be
// accidentally cross-used - see spec's Design Notes, "Hash identity with
// two namespaces".
package oid

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const RawSize = 20

// GitOid is a Git object id (sha1 of the object as git computes it).
//
// GitOid and HgNode are both 20-byte content hashes but live in disjoint
// namespaces - see spec's Design Notes on "Hash identity with two
// namespaces". They are intentionally distinct types so the compiler
// rejects accidental cross-use; there is no direct conversion between
// them. Code that must carry one in the other's slot (the gitlink entries
// of an encoded manifest tree) goes explicitly through Bytes and
// GitOidFromBytes/HgNodeFromBytes.
type GitOid struct {
	raw [RawSize]byte
}

// HgNode is a Mercurial node id (changeset, manifest or file revision).
type HgNode struct {
	raw [RawSize]byte
}

var _ fmt.Stringer = GitOid{}
var _ fmt.Stringer = HgNode{}

func (id GitOid) String() string { return hex.EncodeToString(id.raw[:]) }
func (id HgNode) String() string { return hex.EncodeToString(id.raw[:]) }

func (id GitOid) Bytes() []byte { return id.raw[:] }
func (id HgNode) Bytes() []byte { return id.raw[:] }

func (id GitOid) IsZero() bool { return id == GitOid{} }
func (id HgNode) IsZero() bool { return id == HgNode{} }

func ParseGitOid(s string) (GitOid, error) {
	raw, err := parseHex(s)
	return GitOid{raw}, err
}

func ParseHgNode(s string) (HgNode, error) {
	raw, err := parseHex(s)
	return HgNode{raw}, err
}

// GitOidFromBytes wraps a 20-byte slice as a GitOid without hex decoding.
func GitOidFromBytes(b []byte) (GitOid, error) {
	raw, err := rawFromBytes(b)
	return GitOid{raw}, err
}

// HgNodeFromBytes wraps a 20-byte slice as a HgNode without hex decoding.
func HgNodeFromBytes(b []byte) (HgNode, error) {
	raw, err := rawFromBytes(b)
	return HgNode{raw}, err
}

func parseHex(s string) ([RawSize]byte, error) {
	var raw [RawSize]byte
	if hex.DecodedLen(len(s)) != RawSize {
		return raw, fmt.Errorf("oid: %q: invalid length", s)
	}
	_, err := hex.Decode(raw[:], []byte(s))
	if err != nil {
		return raw, fmt.Errorf("oid: %q: %w", s, err)
	}
	return raw, nil
}

func rawFromBytes(b []byte) ([RawSize]byte, error) {
	var raw [RawSize]byte
	if len(b) != RawSize {
		return raw, fmt.Errorf("oid: %d raw bytes (want %d)", len(b), RawSize)
	}
	copy(raw[:], b)
	return raw, nil
}

// ByGitOid / ByHgNode sort slices lexicographically by raw bytes, for
// callers that need a stable cross-run ordering.
type ByGitOid []GitOid
type ByHgNode []HgNode

func (p ByGitOid) Len() int           { return len(p) }
func (p ByGitOid) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p ByGitOid) Less(i, j int) bool { return bytes.Compare(p[i].raw[:], p[j].raw[:]) < 0 }

func (p ByHgNode) Len() int           { return len(p) }
func (p ByHgNode) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p ByHgNode) Less(i, j int) bool { return bytes.Compare(p[i].raw[:], p[j].raw[:]) < 0 }

// MinMaxHgNode returns (p1, p2) reordered lexicographically smallest-first,
// as required by hg_sha1 (see package verify).
func MinMaxHgNode(p1, p2 HgNode) (lo, hi HgNode) {
	if bytes.Compare(p1.raw[:], p2.raw[:]) <= 0 {
		return p1, p2
	}
	return p2, p1
}
