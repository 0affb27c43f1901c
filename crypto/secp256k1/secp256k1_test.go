package secp256k1

import (
	"crypto/sha256"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-disclosure/types"
)

// Demonstration key pair distributed with the castvote examples.
const (
	demoPrivateKey = "WatoiP9UiA3fqB08TVHjBGniYDXUz/04mAGRLb7tyQY="
	demoPublicKey  = "BLZgb3PHEJ6B7Xta+jR4CEn1g3NluqLxNNRlrDfhPTbMATkwv04TOAJJMWuSlrtOfuO9SQNIdGeLlL+ppflRHN4="
)

func TestKeyImport(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	priv, err := ParsePrivateKey(demoPrivateKey)
	c.Assert(err, qt.IsNil)
	c.Assert(EncodePrivateKey(priv), qt.Equals, demoPrivateKey)

	pub, err := ParsePublicKey(demoPublicKey)
	c.Assert(err, qt.IsNil)
	c.Assert(MarshalPublicKey(pub), qt.HasLen, PublicKeySize)
	c.Assert(EncodePublicKey(pub), qt.Equals, demoPublicKey)
	c.Assert(EncodePublicKey(&priv.PublicKey), qt.Equals, demoPublicKey)

	_, err = ParsePrivateKey("not base64!")
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)
	_, err = ParsePrivateKey("AAEC")
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)
	_, err = ParsePublicKey("AAEC")
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)
}

func TestSignVerify(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	priv, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	message := `{"id":"alice","name":"Alice","age":21,"is_student":true}`
	hash := sha256.Sum256([]byte(message))

	sig, err := Sign(priv, hash[:])
	c.Assert(err, qt.IsNil)
	c.Assert(sig, qt.HasLen, SignatureSize)
	c.Assert(Verify(&priv.PublicKey, hash[:], sig), qt.IsNil)
	c.Assert(VerifyBool(&priv.PublicKey, hash[:], sig), qt.IsTrue)

	// tampered message
	tampered := sha256.Sum256([]byte("This is a tampered message."))
	err = Verify(&priv.PublicKey, tampered[:], sig)
	c.Assert(errors.Is(err, types.ErrInvalidSignature), qt.IsTrue)

	// other key
	other, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	err = Verify(&other.PublicKey, hash[:], sig)
	c.Assert(errors.Is(err, types.ErrInvalidSignature), qt.IsTrue)

	// wrong lengths are decoding errors
	err = Verify(&priv.PublicKey, hash[:], sig[:63])
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)
	err = Verify(&priv.PublicKey, hash[:31], sig)
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)
	c.Assert(VerifyBool(&priv.PublicKey, hash[:], append(sig, 0)), qt.IsFalse)
	_, err = Sign(priv, hash[:16])
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)
}

func TestSignatureIsOverCurveDigest(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	priv, err := ParsePrivateKey(demoPrivateKey)
	c.Assert(err, qt.IsNil)
	hash := sha256.Sum256([]byte("hello"))
	sig, err := Sign(priv, hash[:])
	c.Assert(err, qt.IsNil)

	// signing is deterministic (RFC6979)
	again, err := Sign(priv, hash[:])
	c.Assert(err, qt.IsNil)
	c.Assert(again, qt.DeepEquals, sig)

	r, s, err := SplitSignature(sig)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Sign(), qt.Equals, 1)
	c.Assert(s.Sign(), qt.Equals, 1)
	c.Assert(CurveDigest(hash[:]), qt.Equals, sha256.Sum256(hash[:]))

	_, _, err = SplitSignature(sig[1:])
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)
}

func TestCompressedPublicKey(t *testing.T) {
	c := qt.New(t)
	t.Parallel()

	priv, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	compressed := append([]byte{0x02 + byte(priv.PublicKey.Y.Bit(0))}, leftPad32(priv.PublicKey.X.Bytes())...)
	pub, err := UnmarshalPublicKey(compressed)
	c.Assert(err, qt.IsNil)
	c.Assert(pub.X.Cmp(priv.PublicKey.X), qt.Equals, 0)
	c.Assert(pub.Y.Cmp(priv.PublicKey.Y), qt.Equals, 0)
}

func leftPad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}
