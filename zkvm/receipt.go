package zkvm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/vocdoni/zk-disclosure/types"
)

// ReceiptKind identifies the proof system of an inner receipt.
type ReceiptKind uint8

const (
	// KindFake receipts carry no proof, they are produced in dev mode.
	KindFake ReceiptKind = iota
	// KindGroth16 receipts carry a succinct Groth16 proof over BN254 that
	// can be verified on-chain.
	KindGroth16
	// KindPlonk receipts carry a PLONK proof over BN254, which only needs a
	// universal setup.
	KindPlonk
)

func (k ReceiptKind) String() string {
	switch k {
	case KindFake:
		return "fake"
	case KindGroth16:
		return "groth16"
	case KindPlonk:
		return "plonk"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseReceiptKind returns the kind named by s.
func ParseReceiptKind(s string) (ReceiptKind, error) {
	switch strings.ToLower(s) {
	case "fake":
		return KindFake, nil
	case "groth16":
		return KindGroth16, nil
	case "plonk":
		return KindPlonk, nil
	default:
		return 0, fmt.Errorf("unknown receipt kind %q", s)
	}
}

// ReceiptClaimTag is the domain tag of receipt claim digests.
const ReceiptClaimTag = "zkdisclosure.ReceiptClaim"

// ReceiptClaim is the statement attested by a receipt.
type ReceiptClaim struct {
	ProgramID     types.Digest `json:"programId"`
	JournalDigest types.Digest `json:"journalDigest"`
	ExitCode      uint32       `json:"exitCode"`
}

// NewReceiptClaim returns the claim of a successful run of the program that
// produced the journal.
func NewReceiptClaim(programID types.Digest, journal []byte) ReceiptClaim {
	return ReceiptClaim{
		ProgramID:     programID,
		JournalDigest: types.DigestOf(journal),
	}
}

// Digest returns the commitment to the claim.
func (c ReceiptClaim) Digest() types.Digest {
	exitCode := binary.LittleEndian.AppendUint32(nil, c.ExitCode)
	return types.TaggedDigest(ReceiptClaimTag, c.ProgramID[:], c.JournalDigest[:], exitCode)
}

// CheckClaim checks that the claim attests a successful run of programID
// that produced the journal provided.
func CheckClaim(claim ReceiptClaim, journal []byte, programID types.Digest) error {
	if claim.ProgramID != programID {
		return fmt.Errorf("%w: claim for program %s, expected %s",
			types.ErrReceiptVerification, claim.ProgramID, programID)
	}
	if claim.ExitCode != 0 {
		return fmt.Errorf("%w: guest exit code %d", types.ErrReceiptVerification, claim.ExitCode)
	}
	if digest := types.DigestOf(journal); claim.JournalDigest != digest {
		return fmt.Errorf("%w: journal digest %s does not match the claim %s",
			types.ErrReceiptVerification, digest, claim.JournalDigest)
	}
	return nil
}

// InnerReceipt is the proof part of a receipt. The set of inner receipts is
// closed: FakeReceipt, Groth16Receipt and PlonkReceipt.
type InnerReceipt interface {
	Kind() ReceiptKind
	claim() ReceiptClaim
}

// FakeReceipt carries the claim without any proof.
type FakeReceipt struct {
	Claim ReceiptClaim
}

func (*FakeReceipt) Kind() ReceiptKind     { return KindFake }
func (r *FakeReceipt) claim() ReceiptClaim { return r.Claim }

// Groth16Receipt carries a Groth16 proof of the claim.
type Groth16Receipt struct {
	// Seal is the proof encoded as the 8 field elements expected by
	// Solidity verifiers.
	Seal []byte
	// Proof is the raw gnark encoding of the proof.
	Proof []byte
	// VerifierParameters identifies the verifying key the proof checks
	// against.
	VerifierParameters types.Digest
	Claim              ReceiptClaim
}

func (*Groth16Receipt) Kind() ReceiptKind     { return KindGroth16 }
func (r *Groth16Receipt) claim() ReceiptClaim { return r.Claim }

// PlonkReceipt carries a PLONK proof of the claim.
type PlonkReceipt struct {
	Proof              []byte
	VerifierParameters types.Digest
	Claim              ReceiptClaim
}

func (*PlonkReceipt) Kind() ReceiptKind     { return KindPlonk }
func (r *PlonkReceipt) claim() ReceiptClaim { return r.Claim }

// Receipt is the result of a proving run: a journal and the inner receipt
// attesting it.
type Receipt struct {
	Inner   InnerReceipt
	Journal []byte
}

// Claim returns the claim attested by the receipt.
func (r *Receipt) Claim() (ReceiptClaim, error) {
	if r == nil || r.Inner == nil {
		return ReceiptClaim{}, fmt.Errorf("%w: receipt without inner proof", types.ErrReceiptVerification)
	}
	return r.Inner.claim(), nil
}

// Kind returns the kind of the inner receipt.
func (r *Receipt) Kind() (ReceiptKind, error) {
	if r == nil || r.Inner == nil {
		return 0, fmt.Errorf("%w: receipt without inner proof", types.ErrReceiptVerification)
	}
	return r.Inner.Kind(), nil
}
