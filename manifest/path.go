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

package manifest

import (
	"strings"

	"github.com/emirpasic/gods/v2/maps/treemap"
)

// nameKey is one path component at a single tree level, tagged with
// whether it names a directory - Git's base_name_compare sorts
// directory names as if they carried a trailing slash, so "a" < "a.c"
// < "a/x" (spec §4.4 "Ordering").
type nameKey struct {
	name  string
	isDir bool
}

func (k nameKey) sortKey() string {
	if k.isDir {
		return k.name + "/"
	}
	return k.name
}

func baseNameCompare(a, b nameKey) int {
	return strings.Compare(a.sortKey(), b.sortKey())
}

// newOrderedChildren returns a map of single-level tree children ordered
// by Git's base_name_compare, used by both the encoder (§4.3) and the
// incremental generator (§4.4) whenever a tree level is walked.
func newOrderedChildren[V any]() *treemap.Map[nameKey, V] {
	return treemap.NewWith[nameKey, V](baseNameCompare)
}

// splitPath splits a manifest path into its components.
func splitPath(path string) []string {
	return strings.Split(path, "/")
}
