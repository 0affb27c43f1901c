package types

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestDigestOf(t *testing.T) {
	c := qt.New(t)

	expected := sha256.Sum256([]byte("secretalice42"))
	c.Assert(DigestOf([]byte("secret"), []byte("alice"), []byte("42")), qt.Equals, Digest(expected))
	c.Assert(DigestOf([]byte("secretalice42")).String(), qt.HasLen, 64)

	tag := sha256.Sum256([]byte("tag"))
	c.Assert(TaggedDigest("tag", []byte("data")), qt.Equals, DigestOf(tag[:], []byte("data")))
	c.Assert(TaggedDigest("tag", []byte("data")), qt.Not(qt.Equals), TaggedDigest("other", []byte("data")))
}

func TestDigestJSON(t *testing.T) {
	c := qt.New(t)

	d := DigestOf([]byte("program"))
	data, err := json.Marshal(d)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `"`+d.String()+`"`)

	var decoded Digest
	c.Assert(json.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(decoded, qt.Equals, d)

	// 0x prefix is accepted
	c.Assert(json.Unmarshal([]byte(`"0x`+d.String()+`"`), &decoded), qt.IsNil)
	c.Assert(decoded, qt.Equals, d)

	err = json.Unmarshal([]byte(`"abcd"`), &decoded)
	c.Assert(errors.Is(err, ErrDecoding), qt.IsTrue)
}

func TestHexBytes(t *testing.T) {
	c := qt.New(t)

	b := HexBytes{0xde, 0xad, 0xbe, 0xef}
	c.Assert(b.String(), qt.Equals, "0xdeadbeef")
	c.Assert(b.Hex(), qt.Equals, "deadbeef")

	data, err := json.Marshal(b)
	c.Assert(err, qt.IsNil)
	var decoded HexBytes
	c.Assert(json.Unmarshal(data, &decoded), qt.IsNil)
	c.Assert(decoded, qt.DeepEquals, b)

	_, err = HexStringToHexBytes("0xzz")
	c.Assert(err, qt.IsNotNil)
}
