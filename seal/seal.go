// Package seal encodes receipts into the seal format accepted by on-chain
// verifiers: a 4-byte selector identifying the verifier followed by the
// proof bytes.
package seal

import (
	"fmt"

	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

// SelectorSize is the size of the verifier selector that prefixes a seal.
const SelectorSize = 4

// Encode returns the seal of the receipt. Only fake and Groth16 receipts can
// be encoded, other variants return types.ErrUnsupportedProofVariant.
func Encode(receipt *zkvm.Receipt) ([]byte, error) {
	if receipt == nil {
		return nil, fmt.Errorf("%w: nil receipt", types.ErrUnsupportedProofVariant)
	}
	switch inner := receipt.Inner.(type) {
	case *zkvm.FakeReceipt:
		digest := inner.Claim.Digest()
		seal := make([]byte, SelectorSize, SelectorSize+types.DigestSize)
		return append(seal, digest[:]...), nil
	case *zkvm.Groth16Receipt:
		if len(inner.Seal) == 0 {
			return nil, fmt.Errorf("%w: groth16 receipt without seal", types.ErrUnsupportedProofVariant)
		}
		seal := make([]byte, 0, SelectorSize+len(inner.Seal))
		seal = append(seal, inner.VerifierParameters[:SelectorSize]...)
		return append(seal, inner.Seal...), nil
	case nil:
		return nil, fmt.Errorf("%w: receipt without inner proof", types.ErrUnsupportedProofVariant)
	default:
		return nil, fmt.Errorf("%w: %s receipts", types.ErrUnsupportedProofVariant, inner.Kind())
	}
}

// Selector returns the verifier selector of a seal.
func Selector(seal []byte) ([SelectorSize]byte, error) {
	var selector [SelectorSize]byte
	if len(seal) < SelectorSize {
		return selector, fmt.Errorf("%w: seal of %d bytes has no selector", types.ErrStructural, len(seal))
	}
	copy(selector[:], seal)
	return selector, nil
}
