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

// Package verify recomputes Mercurial node hashes and compares them
// against stored nodes (spec §4.5).
package verify

import (
	"crypto/sha1"

	"lab.nexedi.com/kirr/hgbridge/oid"
)

// HgSha1 computes the Mercurial node hash of data given its two
// Mercurial parents (spec §4.5):
//
//	hg_sha1(data, p1, p2) = SHA1(min(p1,p2) || max(p1,p2) || data)
//
// Missing parents are represented by the zero HgNode.
func HgSha1(data []byte, p1, p2 oid.HgNode) oid.HgNode {
	lo, hi := oid.MinMaxHgNode(p1, p2)
	h := sha1.New()
	h.Write(lo.Bytes())
	h.Write(hi.Bytes())
	h.Write(data)
	sum := h.Sum(nil)
	node, _ := oid.HgNodeFromBytes(sum)
	return node
}

// CheckManifest reports whether flatManifest - the regenerated flat
// Mercurial manifest for some encoded tree - hashes (via HgSha1, using
// p1/p2 taken from the parent manifest commits) to wantNode, the trailer
// node id recorded on that manifest commit (spec §4.5
// "check_manifest(tree_id)").
func CheckManifest(flatManifest []byte, p1, p2, wantNode oid.HgNode) bool {
	return HgSha1(flatManifest, p1, p2) == wantNode
}

// CheckFile reports whether node is a valid Mercurial file hash given
// candidate parents (p1, p2), trying the ranked sequence of fallback
// parent tuples spec §4.5 documents to absorb known Mercurial quirks.
func CheckFile(data []byte, node, p1, p2 oid.HgNode) bool {
	var zero oid.HgNode
	candidates := [][2]oid.HgNode{
		{p1, p2},
		{p1, zero},
		{p2, zero},
		{p1, p1},
		{zero, zero},
	}
	for _, c := range candidates {
		if HgSha1(data, c[0], c[1]) == node {
			return true
		}
	}
	return false
}
