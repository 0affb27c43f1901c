package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DigestSize is the size in bytes of a Digest.
const DigestSize = sha256.Size

// Digest is a SHA-256 digest. It identifies guest programs, journals and
// receipt claims.
type Digest [DigestSize]byte

// DigestOf returns the SHA-256 digest of the concatenation of the data
// provided.
func DigestOf(data ...[]byte) Digest {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var digest Digest
	copy(digest[:], h.Sum(nil))
	return digest
}

// TaggedDigest returns SHA-256(SHA-256(tag) || data...). Domain separated
// digests avoid collisions between structures with the same byte layout.
func TaggedDigest(tag string, data ...[]byte) Digest {
	tagDigest := sha256.Sum256([]byte(tag))
	return DigestOf(append([][]byte{tagDigest[:]}, data...)...)
}

// DigestFromBytes returns a Digest from a 32 bytes slice.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, fmt.Errorf("%w: invalid digest length %d", ErrDecoding, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// DigestFromHex decodes a hex encoded digest, with or without 0x prefix.
func DigestFromHex(s string) (Digest, error) {
	b, err := HexStringToHexBytes(s)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %w", ErrDecoding, err)
	}
	return DigestFromBytes(b)
}

// Bytes returns a copy of the digest as a byte slice.
func (d Digest) Bytes() []byte {
	return bytes.Clone(d[:])
}

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether every byte of the digest is zero.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Equal reports whether both digests are the same.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid digest: %w", err)
	}
	digest, err := DigestFromHex(s)
	if err != nil {
		return err
	}
	*d = digest
	return nil
}
