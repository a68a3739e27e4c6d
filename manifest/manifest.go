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

// Package manifest implements the translation between a flat Mercurial
// manifest and its encoded Git tree representation (spec §4.3), and the
// incremental regeneration of the flat form from a tree (spec §4.4).
package manifest

import (
	"fmt"
	"strings"

	"lab.nexedi.com/kirr/go123/mem"

	"lab.nexedi.com/kirr/hgbridge/oid"
)

// Flag is the Mercurial file-flag carried alongside a manifest entry.
type Flag byte

const (
	FlagNone       Flag = 0
	FlagExecutable Flag = 'x'
	FlagSymlink    Flag = 'l'
)

// Entry is one line of a flat Mercurial manifest: a path, the Mercurial
// node of the file revision at that path, and its flag.
type Entry struct {
	Path string
	Node oid.HgNode
	Flag Flag
}

// ErrCorrupt is the error class for structural manifest violations (spec
// §7 "Corrupt metadata" - fatal, not a verifier disagreement).
type ErrCorrupt struct {
	Reason string
}

func (e *ErrCorrupt) Error() string { return "manifest: corrupt: " + e.Reason }

// ParseFlat decodes the flat on-disk form: lines of "path\0hex[flag]".
func ParseFlat(data []byte) ([]Entry, error) {
	lines := splitlines(mem.String(data), "\n")
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		path, rest, err := headtail(line, "\x00")
		if err != nil {
			return nil, &ErrCorrupt{fmt.Sprintf("manifest line %q has no NUL separator", line)}
		}
		hexNode := rest
		flag := FlagNone
		if n := len(rest); n > 0 {
			switch rest[n-1] {
			case 'x':
				flag = FlagExecutable
				hexNode = rest[:n-1]
			case 'l':
				flag = FlagSymlink
				hexNode = rest[:n-1]
			}
		}
		node, err := oid.ParseHgNode(hexNode)
		if err != nil {
			return nil, &ErrCorrupt{fmt.Sprintf("manifest line %q: %v", line, err)}
		}
		entries = append(entries, Entry{Path: path, Node: node, Flag: flag})
	}
	return entries, nil
}

// FormatFlat re-serializes entries to the flat on-disk form, in the
// order given - callers are responsible for presenting entries already
// sorted by path (the generator gets this order from baseNameCompare in
// path.go).
func FormatFlat(entries []Entry) []byte {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Path)
		b.WriteByte(0)
		b.WriteString(e.Node.String())
		if e.Flag != FlagNone {
			b.WriteByte(byte(e.Flag))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// splitlines splits s into lines by sep, dropping one trailing empty
// element - local copy of the teacher's util.go helper (manifest cannot
// import the root package without an import cycle: root imports
// manifest, not the other way around).
func splitlines(s, sep string) []string {
	sv := strings.Split(s, sep)
	l := len(sv)
	if l > 0 && sv[l-1] == "" {
		sv = sv[:l-1]
	}
	return sv
}

// headtail splits (head+sep+tail) -> head, tail.
func headtail(s, sep string) (head, tail string, err error) {
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("headtail: %q has no %q", s, sep)
	}
	return parts[0], parts[1], nil
}
