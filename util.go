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

// Miscellaneous string helpers of package hgbridge.
package hgbridge

import (
	"fmt"
	"strings"
)

// splitlines splits s into lines by sep. The last line, if it is empty, is
// omitted from the result (rationale: strings.Split("hello\nworld\n", "\n")
// -> ["hello", "world", ""], which is one too many for our callers).
func splitlines(s, sep string) []string {
	sv := strings.Split(s, sep)
	l := len(sv)
	if l > 0 && sv[l-1] == "" {
		sv = sv[:l-1]
	}
	return sv
}

// headtail splits (head+sep+tail) -> head, tail, at the first sep; it
// returns an error when s does not contain sep.
func headtail(s, sep string) (head, tail string, err error) {
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("headtail: %q has no %q", s, sep)
	}
	return parts[0], parts[1], nil
}
