// secp256k1 package implements the signature primitive used to authenticate
// vote submissions. Signatures are 64 raw bytes (r || s) over a 32 bytes
// message hash. The message hash is digested once more with SHA-256 before
// the curve operation, which makes the signatures interoperable with the
// signer/verifier of the deployed voter wallets. Signatures are always low-S.
package secp256k1

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/vocdoni/zk-disclosure/types"
)

const (
	// HashSize is the size of the message hash to be signed.
	HashSize = 32
	// SignatureSize is the size of a raw r || s signature.
	SignatureSize = 64
	// PublicKeySize is the size of a SEC1 uncompressed public key.
	PublicKeySize = 65
	// CompressedPublicKeySize is the size of a SEC1 compressed public key.
	CompressedPublicKeySize = 33
	// PrivateKeySize is the size of a private key scalar.
	PrivateKeySize = 32
)

// GenerateKey creates a new random secp256k1 key pair.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ethcrypto.GenerateKey()
}

// ParsePrivateKey decodes a base64 encoded 32 bytes private key scalar.
func ParsePrivateKey(b64 string) (*ecdsa.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not valid base64: %w", types.ErrDecoding, err)
	}
	if len(raw) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d", types.ErrDecoding, PrivateKeySize, len(raw))
	}
	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecoding, err)
	}
	return key, nil
}

// ParsePublicKey decodes a base64 encoded SEC1 public key. Both the
// uncompressed (65 bytes) and the compressed (33 bytes) forms are accepted.
func ParsePublicKey(b64 string) (*ecdsa.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: public key is not valid base64: %w", types.ErrDecoding, err)
	}
	return UnmarshalPublicKey(raw)
}

// UnmarshalPublicKey decodes a SEC1 encoded public key.
func UnmarshalPublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	var (
		key *ecdsa.PublicKey
		err error
	)
	switch len(raw) {
	case PublicKeySize:
		key, err = ethcrypto.UnmarshalPubkey(raw)
	case CompressedPublicKeySize:
		key, err = ethcrypto.DecompressPubkey(raw)
	default:
		return nil, fmt.Errorf("%w: invalid public key length %d", types.ErrDecoding, len(raw))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrDecoding, err)
	}
	return key, nil
}

// MarshalPublicKey returns the SEC1 uncompressed encoding of the public key.
func MarshalPublicKey(pub *ecdsa.PublicKey) []byte {
	return ethcrypto.FromECDSAPub(pub)
}

// EncodePublicKey returns the base64 SEC1 uncompressed encoding of the key.
func EncodePublicKey(pub *ecdsa.PublicKey) string {
	return base64.StdEncoding.EncodeToString(MarshalPublicKey(pub))
}

// EncodePrivateKey returns the base64 encoding of the private key scalar.
func EncodePrivateKey(priv *ecdsa.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(ethcrypto.FromECDSA(priv))
}

// CurveDigest returns the digest that is actually signed for the message hash
// provided, SHA-256(hash).
func CurveDigest(hash []byte) [32]byte {
	return sha256.Sum256(hash)
}

// Sign signs the 32 bytes message hash with the private key. It returns the
// 64 bytes r || s signature.
func Sign(priv *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	if len(hash) != HashSize {
		return nil, fmt.Errorf("%w: message hash must be %d bytes, got %d", types.ErrDecoding, HashSize, len(hash))
	}
	digest := CurveDigest(hash)
	sig, err := ethcrypto.Sign(digest[:], priv)
	if err != nil {
		return nil, fmt.Errorf("error signing message hash: %w", err)
	}
	// drop the recovery id
	return sig[:SignatureSize], nil
}

// Verify checks the 64 bytes r || s signature of the 32 bytes message hash
// against the public key. It returns types.ErrDecoding for malformed inputs
// and types.ErrInvalidSignature if the signature does not match.
func Verify(pub *ecdsa.PublicKey, hash, sig []byte) error {
	if pub == nil {
		return fmt.Errorf("%w: missing public key", types.ErrDecoding)
	}
	if len(hash) != HashSize {
		return fmt.Errorf("%w: message hash must be %d bytes, got %d", types.ErrDecoding, HashSize, len(hash))
	}
	if len(sig) != SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes, got %d", types.ErrDecoding, SignatureSize, len(sig))
	}
	digest := CurveDigest(hash)
	if !ethcrypto.VerifySignature(MarshalPublicKey(pub), digest[:], sig) {
		return types.ErrInvalidSignature
	}
	return nil
}

// VerifyBool is the boolean form of Verify, malformed inputs are reported as
// invalid signatures.
func VerifyBool(pub *ecdsa.PublicKey, hash, sig []byte) bool {
	return Verify(pub, hash, sig) == nil
}

// SplitSignature returns the r and s components of a 64 bytes signature.
func SplitSignature(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != SignatureSize {
		return nil, nil, fmt.Errorf("%w: signature must be %d bytes, got %d", types.ErrDecoding, SignatureSize, len(sig))
	}
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:])
	return r, s, nil
}
