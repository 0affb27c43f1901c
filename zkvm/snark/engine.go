// Package snark implements a zkvm engine that backs receipts with Groth16 or
// PLONK proofs of the claim circuit over BN254.
package snark

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/logger"
	"github.com/vocdoni/zk-disclosure/circuits/claim"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

// plainSealSize is the size of the Solidity encoding of a proof without
// commitments: the Ar, Bs and Krs points.
const plainSealSize = 8 * 32

// Engine proves guest runs with the claim circuit. It is bound to the
// registered public key: proofs only verify against that key.
type Engine struct {
	publicKey *ecdsa.PublicKey
	keys      map[zkvm.ReceiptKind]*Keys
	devMode   bool
}

var _ zkvm.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithKeys registers the keys of one or more proof systems.
func WithKeys(keys ...*Keys) Option {
	return func(e *Engine) {
		for _, k := range keys {
			if k != nil {
				e.keys[k.Kind()] = k
			}
		}
	}
}

// WithDevMode makes the engine produce and accept fake receipts.
func WithDevMode() Option {
	return func(e *Engine) {
		e.devMode = true
	}
}

// New returns an engine for the registered public key.
func New(publicKey *ecdsa.PublicKey, opts ...Option) (*Engine, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("missing registered public key")
	}
	setGnarkLogger()
	e := &Engine{
		publicKey: publicKey,
		keys:      make(map[zkvm.ReceiptKind]*Keys),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DevMode reports whether the engine handles fake receipts.
func (e *Engine) DevMode() bool {
	return e.devMode
}

// VerifierParameters returns the verifier parameters of the keys registered
// for the proof system, if any.
func (e *Engine) VerifierParameters(kind zkvm.ReceiptKind) (types.Digest, bool) {
	k, ok := e.keys[kind]
	if !ok {
		return types.Digest{}, false
	}
	return k.VerifierParameters(), true
}

// Prove executes the program and proves the run with the proof system
// selected by opts.
func (e *Engine) Prove(ctx context.Context, program *zkvm.Program, input []byte, opts zkvm.ProverOpts) (*zkvm.Receipt, error) {
	session, err := zkvm.Execute(ctx, program, input)
	if err != nil {
		return nil, err
	}
	if opts.Kind == zkvm.KindFake {
		if !e.devMode {
			return nil, fmt.Errorf("%w: fake receipts require dev mode", types.ErrProving)
		}
		return &zkvm.Receipt{
			Inner:   &zkvm.FakeReceipt{Claim: session.Claim},
			Journal: session.Journal,
		}, nil
	}
	keys, ok := e.keys[opts.Kind]
	if !ok || !keys.CanProve() {
		return nil, fmt.Errorf("%w: no proving keys for %s receipts", types.ErrProving, opts.Kind)
	}
	w := session.Witness
	if w == nil {
		return nil, fmt.Errorf("%w: guest did not attest a witness", types.ErrProving)
	}
	if w.PublicKey == nil || !w.PublicKey.Equal(e.publicKey) {
		return nil, fmt.Errorf("%w: witness key is not the registered key", types.ErrProving)
	}
	assignment, err := claim.Assign(session.Claim.ProgramID, session.Claim.Digest(), w)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrProving, err)
	}
	fullWitness, err := frontend.NewWitness(assignment, claim.Curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create witness: %w", types.ErrProving, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrProving, err)
	}

	start := time.Now()
	var inner zkvm.InnerReceipt
	switch opts.Kind {
	case zkvm.KindGroth16:
		proof, err := groth16.Prove(keys.ccs, keys.groth16PK, fullWitness)
		if err != nil {
			return nil, fmt.Errorf("%w: groth16 prover failed: %w", types.ErrProving, err)
		}
		seal, err := solidityProof(proof)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrProving, err)
		}
		var raw bytes.Buffer
		if _, err := proof.WriteRawTo(&raw); err != nil {
			return nil, fmt.Errorf("%w: failed to encode proof: %w", types.ErrProving, err)
		}
		inner = &zkvm.Groth16Receipt{
			Seal:               seal,
			Proof:              raw.Bytes(),
			VerifierParameters: keys.VerifierParameters(),
			Claim:              session.Claim,
		}
	case zkvm.KindPlonk:
		proof, err := plonk.Prove(keys.ccs, keys.plonkPK, fullWitness)
		if err != nil {
			return nil, fmt.Errorf("%w: plonk prover failed: %w", types.ErrProving, err)
		}
		var raw bytes.Buffer
		if _, err := proof.WriteRawTo(&raw); err != nil {
			return nil, fmt.Errorf("%w: failed to encode proof: %w", types.ErrProving, err)
		}
		inner = &zkvm.PlonkReceipt{
			Proof:              raw.Bytes(),
			VerifierParameters: keys.VerifierParameters(),
			Claim:              session.Claim,
		}
	}
	log.Infow("receipt proven",
		"kind", opts.Kind.String(),
		"program", session.Claim.ProgramID.String(),
		"took", time.Since(start).String())
	return &zkvm.Receipt{Inner: inner, Journal: session.Journal}, nil
}

// Verify checks that the receipt attests a successful run of programID
// that produced the receipt journal.
func (e *Engine) Verify(receipt *zkvm.Receipt, programID types.Digest) error {
	if _, err := receipt.Kind(); err != nil {
		return err
	}
	switch inner := receipt.Inner.(type) {
	case *zkvm.FakeReceipt:
		if !e.devMode {
			return fmt.Errorf("%w: fake receipts are only accepted in dev mode", types.ErrReceiptVerification)
		}
		return zkvm.VerifyFake(receipt, programID)
	case *zkvm.Groth16Receipt:
		keys, publicWitness, err := e.prepareVerify(zkvm.KindGroth16, inner.VerifierParameters, inner.Claim, receipt.Journal, programID)
		if err != nil {
			return err
		}
		proof, err := groth16Proof(inner)
		if err != nil {
			return fmt.Errorf("%w: %w", types.ErrReceiptVerification, err)
		}
		if err := groth16.Verify(proof, keys.groth16VK, publicWitness); err != nil {
			return fmt.Errorf("%w: invalid groth16 proof: %w", types.ErrReceiptVerification, err)
		}
		return nil
	case *zkvm.PlonkReceipt:
		keys, publicWitness, err := e.prepareVerify(zkvm.KindPlonk, inner.VerifierParameters, inner.Claim, receipt.Journal, programID)
		if err != nil {
			return err
		}
		proof := plonk.NewProof(claim.Curve)
		if _, err := proof.ReadFrom(bytes.NewReader(inner.Proof)); err != nil {
			return fmt.Errorf("%w: malformed plonk proof: %w", types.ErrReceiptVerification, err)
		}
		if err := plonk.Verify(proof, keys.plonkVK, publicWitness); err != nil {
			return fmt.Errorf("%w: invalid plonk proof: %w", types.ErrReceiptVerification, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown inner receipt %T", types.ErrReceiptVerification, inner)
	}
}

// prepareVerify checks the claim and the verifier parameters of a receipt
// and returns the keys and the public witness to verify its proof with.
func (e *Engine) prepareVerify(kind zkvm.ReceiptKind, params types.Digest, receiptClaim zkvm.ReceiptClaim,
	journal []byte, programID types.Digest,
) (*Keys, witness.Witness, error) {
	keys, ok := e.keys[kind]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no verifying key for %s receipts", types.ErrReceiptVerification, kind)
	}
	if params != keys.VerifierParameters() {
		return nil, nil, fmt.Errorf("%w: unknown verifier parameters %s", types.ErrReceiptVerification, params)
	}
	if err := zkvm.CheckClaim(receiptClaim, journal, programID); err != nil {
		return nil, nil, err
	}
	assignment, err := claim.PublicAssignment(programID, receiptClaim.Digest(), e.publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", types.ErrReceiptVerification, err)
	}
	publicWitness, err := frontend.NewWitness(assignment, claim.Curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to create public witness: %w", types.ErrReceiptVerification, err)
	}
	return keys, publicWitness, nil
}

// groth16Proof decodes the proof of the receipt. Receipts rebuilt from a seal
// carry no raw proof, which is then decoded from the seal itself.
func groth16Proof(inner *zkvm.Groth16Receipt) (groth16.Proof, error) {
	if len(inner.Proof) == 0 {
		return proofFromSeal(inner.Seal)
	}
	proof := groth16.NewProof(claim.Curve)
	if _, err := proof.ReadFrom(bytes.NewReader(inner.Proof)); err != nil {
		return nil, fmt.Errorf("malformed groth16 proof: %w", err)
	}
	seal, err := solidityProof(proof)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(seal, inner.Seal) {
		return nil, fmt.Errorf("seal does not match the proof")
	}
	return proof, nil
}

// proofFromSeal decodes a proof from its Solidity encoding. Proofs without
// commitments are encoded as the bare Ar, Bs and Krs points, the empty
// commitment fields are appended before decoding them.
func proofFromSeal(seal []byte) (groth16.Proof, error) {
	encoded := seal
	if len(seal) == plainSealSize {
		var empty bytes.Buffer
		if _, err := new(groth16_bn254.Proof).WriteRawTo(&empty); err != nil {
			return nil, fmt.Errorf("failed to encode an empty proof: %w", err)
		}
		encoded = append(bytes.Clone(seal), empty.Bytes()[plainSealSize:]...)
	}
	proof := new(groth16_bn254.Proof)
	if _, err := proof.ReadFrom(bytes.NewReader(encoded)); err != nil {
		return nil, fmt.Errorf("malformed groth16 seal: %w", err)
	}
	if !bytes.Equal(proof.MarshalSolidity(), seal) {
		return nil, fmt.Errorf("non canonical groth16 seal")
	}
	return proof, nil
}

// solidityProof returns the proof encoded as expected by the Solidity
// verifier exported from the verifying key.
func solidityProof(proof groth16.Proof) ([]byte, error) {
	p, ok := proof.(*groth16_bn254.Proof)
	if !ok {
		return nil, fmt.Errorf("unexpected groth16 proof type %T", proof)
	}
	return p.MarshalSolidity(), nil
}

// setGnarkLogger routes the gnark logs through the package logger.
func setGnarkLogger() {
	logger.Set(log.Logger().With().Str("component", "gnark").Logger())
}
