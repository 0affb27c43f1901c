// Package verifier finalizes receipts: it checks them against a pinned
// program identity and decodes the disclosure record they commit to.
package verifier

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vocdoni/zk-disclosure/disclosure"
	"github.com/vocdoni/zk-disclosure/seal"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

// Finalize verifies the receipt with v against programID and decodes the
// disclosure record of its journal. Verification failures return
// types.ErrReceiptVerification and malformed journals types.ErrStructural.
func Finalize(v zkvm.Verifier, receipt *zkvm.Receipt, programID types.Digest) (*disclosure.Record, error) {
	if receipt == nil {
		return nil, fmt.Errorf("%w: nil receipt", types.ErrReceiptVerification)
	}
	if err := v.Verify(receipt, programID); err != nil {
		if errors.Is(err, types.ErrReceiptVerification) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrReceiptVerification, err)
	}
	record, _, err := disclosure.DecodeJournal(receipt.Journal)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SealVerifier is a verifier that knows the parameters of the proof systems
// it accepts, so it can rebuild receipts from seals.
type SealVerifier interface {
	zkvm.Verifier
	VerifierParameters(kind zkvm.ReceiptKind) (types.Digest, bool)
}

// VerifySeal rebuilds the receipt of a seal and its journal and finalizes it
// against programID. A zero selector denotes a fake receipt, any other one
// must match the Groth16 verifier parameters of v.
func VerifySeal(v SealVerifier, sealBytes, journal []byte, programID types.Digest) (*disclosure.Record, error) {
	selector, err := seal.Selector(sealBytes)
	if err != nil {
		return nil, err
	}
	body := sealBytes[seal.SelectorSize:]
	receiptClaim := zkvm.NewReceiptClaim(programID, journal)

	var inner zkvm.InnerReceipt
	if selector == ([seal.SelectorSize]byte{}) {
		digest := receiptClaim.Digest()
		if !bytes.Equal(body, digest[:]) {
			return nil, fmt.Errorf("%w: fake seal does not commit to the claim", types.ErrReceiptVerification)
		}
		inner = &zkvm.FakeReceipt{Claim: receiptClaim}
	} else {
		params, ok := v.VerifierParameters(zkvm.KindGroth16)
		if !ok || !bytes.Equal(params[:seal.SelectorSize], selector[:]) {
			return nil, fmt.Errorf("%w: unknown verifier selector %x", types.ErrReceiptVerification, selector)
		}
		inner = &zkvm.Groth16Receipt{
			Seal:               bytes.Clone(body),
			VerifierParameters: params,
			Claim:              receiptClaim,
		}
	}
	return Finalize(v, &zkvm.Receipt{Inner: inner, Journal: journal}, programID)
}

// ProgramID returns the identity of the program, the value verifiers pin.
func ProgramID(program *zkvm.Program) types.Digest {
	return program.ID()
}
