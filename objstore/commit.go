package objstore

import (
	"fmt"
	"strings"

	"lab.nexedi.com/kirr/hgbridge/oid"
)

// ParseCommit decodes the standard Git commit wire format (the same
// bytes Object.Data carries for a KindCommit object) into its tree,
// ordered parents, and message body. It is independent of any
// particular Store implementation - both Fake and the libgit2-backed
// store produce this exact format.
func ParseCommit(data []byte) (tree oid.GitOid, parents []oid.GitOid, message string, err error) {
	parts := strings.SplitN(string(data), "\n\n", 2)
	header := parts[0]
	if len(parts) == 2 {
		message = parts[1]
	}

	lines := strings.Split(header, "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "tree ") {
		return oid.GitOid{}, nil, "", fmt.Errorf("objstore: commit missing tree header")
	}
	tree, err = oid.ParseGitOid(strings.TrimPrefix(lines[0], "tree "))
	if err != nil {
		return oid.GitOid{}, nil, "", fmt.Errorf("objstore: commit tree header: %w", err)
	}

	for _, l := range lines[1:] {
		if !strings.HasPrefix(l, "parent ") {
			continue
		}
		p, err := oid.ParseGitOid(strings.TrimPrefix(l, "parent "))
		if err != nil {
			return oid.GitOid{}, nil, "", fmt.Errorf("objstore: commit parent header: %w", err)
		}
		parents = append(parents, p)
	}
	return tree, parents, message, nil
}
