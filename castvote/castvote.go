// Package castvote runs the host side of a disclosure vote: it signs the vote
// payload, checks the signature locally, proves the payload with the guest
// program, verifies the receipt and writes the resulting artifact files.
package castvote

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/vocdoni/zk-disclosure/crypto/secp256k1"
	"github.com/vocdoni/zk-disclosure/disclosure"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/prover"
	"github.com/vocdoni/zk-disclosure/seal"
	"github.com/vocdoni/zk-disclosure/storage"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/verifier"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

// TamperedMessage is signed over by nobody. The signature of every vote is
// checked against it to make sure the verification rejects other messages.
const TamperedMessage = "This is a tampered message."

// Vote is a vote payload to be signed and proven.
type Vote struct {
	Message string
	PollID  uint64
	// OutputDir is the directory of the artifact files. If empty, no files
	// are written.
	OutputDir string
}

// Result is the outcome of a vote proven and verified. PLONK receipts have
// no seal, Artifacts.Seal is empty for them.
type Result struct {
	Record    *disclosure.Record
	Receipt   *zkvm.Receipt
	Signature string
	Artifacts *storage.Artifacts
}

// Sign signs the SHA-256 hash of the message and returns the base64
// signature.
func Sign(key *ecdsa.PrivateKey, message string) (string, error) {
	hash := sha256.Sum256([]byte(message))
	sig, err := secp256k1.Sign(key, hash[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// CheckSignature verifies the base64 signature of the message and checks
// that the same signature does not verify TamperedMessage.
func CheckSignature(pub *ecdsa.PublicKey, signature, message string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64: %w", types.ErrDecoding, err)
	}
	hash := sha256.Sum256([]byte(message))
	if err := secp256k1.Verify(pub, hash[:], sig); err != nil {
		return err
	}
	tampered := sha256.Sum256([]byte(TamperedMessage))
	if secp256k1.VerifyBool(pub, tampered[:], sig) {
		return fmt.Errorf("%w: signature verifies a tampered message", types.ErrInvalidSignature)
	}
	return nil
}

// Run signs and proves the vote with the pipeline. The receipt is verified
// and decoded before any artifact file is written, so a failed vote leaves
// the output directory untouched.
func Run(ctx context.Context, pipeline *prover.Pipeline, key *ecdsa.PrivateKey, vote *Vote) (*Result, error) {
	signature, err := Sign(key, vote.Message)
	if err != nil {
		return nil, err
	}
	if err := CheckSignature(&key.PublicKey, signature, vote.Message); err != nil {
		return nil, fmt.Errorf("local signature check: %w", err)
	}
	log.Debugw("vote signed", "poll", vote.PollID, "signature", signature)
	return Prove(ctx, pipeline, signature, vote)
}

// Prove proves an already signed vote. See Run.
func Prove(ctx context.Context, pipeline *prover.Pipeline, signature string, vote *Vote) (*Result, error) {
	receipt, err := pipeline.Prove(ctx, signature, vote.Message, vote.PollID)
	if err != nil {
		return nil, err
	}
	encodedSeal, err := encodeSeal(receipt)
	if err != nil {
		return nil, err
	}
	record, err := verifier.Finalize(pipeline.Engine(), receipt, pipeline.ProgramID())
	if err != nil {
		return nil, err
	}
	_, payload, err := disclosure.DecodeJournal(receipt.Journal)
	if err != nil {
		return nil, err
	}
	artifacts := &storage.Artifacts{
		Seal:       encodedSeal,
		Journal:    receipt.Journal,
		JournalABI: payload,
		ImageID:    pipeline.ProgramID(),
	}
	if vote.OutputDir != "" {
		if err := storage.WriteArtifacts(vote.OutputDir, artifacts); err != nil {
			return nil, err
		}
		log.Infow("vote artifacts written", "dir", vote.OutputDir, "nullifier", record.Nullifier)
	}
	return &Result{
		Record:    record,
		Receipt:   receipt,
		Signature: signature,
		Artifacts: artifacts,
	}, nil
}

// encodeSeal returns the seal of the receipt, or nil for PLONK receipts,
// which on-chain verifiers do not accept.
func encodeSeal(receipt *zkvm.Receipt) ([]byte, error) {
	if kind, err := receipt.Kind(); err == nil && kind == zkvm.KindPlonk {
		log.Warnw("plonk receipt has no seal, the seal artifact is skipped")
		return nil, nil
	}
	return seal.Encode(receipt)
}
