package verify

import (
	"crypto/sha1"
	"testing"

	"lab.nexedi.com/kirr/hgbridge/oid"
)

func hgnode(t *testing.T, hex string) oid.HgNode {
	t.Helper()
	n, err := oid.ParseHgNode(hex)
	if err != nil {
		t.Fatalf("ParseHgNode(%q): %v", hex, err)
	}
	return n
}

func TestHgSha1MatchesDefinition(t *testing.T) {
	p1 := hgnode(t, "2222222222222222222222222222222222222222")
	p2 := hgnode(t, "1111111111111111111111111111111111111111")
	data := []byte("hello world")

	h := sha1.New()
	h.Write(p2.Bytes()) // min(p1,p2) - p2 < p1 lexicographically here
	h.Write(p1.Bytes())
	h.Write(data)
	want := h.Sum(nil)

	got := HgSha1(data, p1, p2)
	if got.String() != fmtHex(want) {
		t.Errorf("HgSha1() = %s, want %s", got, fmtHex(want))
	}
}

func fmtHex(b []byte) string {
	n, _ := oid.HgNodeFromBytes(b)
	return n.String()
}

func TestHgSha1ParentOrderIndependent(t *testing.T) {
	p1 := hgnode(t, "1111111111111111111111111111111111111111")
	p2 := hgnode(t, "2222222222222222222222222222222222222222")
	data := []byte("payload")

	a := HgSha1(data, p1, p2)
	b := HgSha1(data, p2, p1)
	if a != b {
		t.Errorf("HgSha1 not order-independent: %s != %s", a, b)
	}
}

func TestCheckManifest(t *testing.T) {
	p1 := hgnode(t, "1111111111111111111111111111111111111111")
	p2 := hgnode(t, "2222222222222222222222222222222222222222")
	data := []byte("a\x00" + "3333333333333333333333333333333333333333" + "\n")
	node := HgSha1(data, p1, p2)

	if !CheckManifest(data, p1, p2, node) {
		t.Error("CheckManifest should accept a correctly-hashed manifest")
	}

	// scenario 6: corrupt the trailer by changing its first hex digit.
	var corrupt oid.HgNode
	corruptHex := []byte(node.String())
	if corruptHex[0] == '0' {
		corruptHex[0] = '1'
	} else {
		corruptHex[0] = '0'
	}
	corrupt, _ = oid.ParseHgNode(string(corruptHex))
	if CheckManifest(data, p1, p2, corrupt) {
		t.Error("CheckManifest should reject a corrupted trailer")
	}
}

func TestCheckFileFallbackTuples(t *testing.T) {
	p1 := hgnode(t, "1111111111111111111111111111111111111111")
	p2 := hgnode(t, "2222222222222222222222222222222222222222")
	data := []byte("file content")

	var zero oid.HgNode
	cases := []struct {
		name   string
		node   oid.HgNode
	}{
		{"p1,p2", HgSha1(data, p1, p2)},
		{"p1,0", HgSha1(data, p1, zero)},
		{"p2,0", HgSha1(data, p2, zero)},
		{"p1,p1", HgSha1(data, p1, p1)},
		{"0,0", HgSha1(data, zero, zero)},
	}
	for _, c := range cases {
		if !CheckFile(data, c.node, p1, p2) {
			t.Errorf("CheckFile should accept node computed via (%s)", c.name)
		}
	}

	if CheckFile(data, hgnode(t, "9999999999999999999999999999999999999999"), p1, p2) {
		t.Error("CheckFile should reject an unrelated node")
	}
}
