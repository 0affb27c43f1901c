// zkvm package defines the boundary between the disclosure protocol and the
// proving engines. A guest Program is executed by Execute against an Env
// that provides its private input and collects its public journal. Engines
// turn the execution into a Receipt: the journal plus an inner proof that
// attests the claim "program P produced this journal".
//
// Two families of engines exist:
//   - DevEngine, which runs the guest and emits Fake receipts. It performs no
//     proving at all and is only meant for development and tests.
//   - zkvm/snark engines, which prove the claim with a gnark Groth16 or PLONK
//     circuit.
package zkvm

import (
	"context"

	"github.com/vocdoni/zk-disclosure/types"
)

// Program is a guest program. Image is the canonical binary description of
// the program and determines its identity. Entry is the code executed for
// every proving run.
type Program struct {
	Name  string
	Image []byte
	Entry func(env *Env) error
}

// ID returns the program identity, the SHA-256 content hash of its image.
func (p *Program) ID() types.Digest {
	return ComputeProgramID(p.Image)
}

// ComputeProgramID returns the identity of a program image.
func ComputeProgramID(image []byte) types.Digest {
	return types.DigestOf(image)
}

// ProverOpts configures a proving run.
type ProverOpts struct {
	// Kind selects the proof system of the resulting receipt.
	Kind ReceiptKind
}

// DefaultProverOpts returns the options for a succinct, on-chain verifiable
// receipt.
func DefaultProverOpts() ProverOpts {
	return ProverOpts{Kind: KindGroth16}
}

// Prover produces receipts for guest programs.
type Prover interface {
	// Prove executes the program with the input provided and returns a
	// receipt for the run. Guest failures are reported as errors and never
	// produce a receipt.
	Prove(ctx context.Context, program *Program, input []byte, opts ProverOpts) (*Receipt, error)
}

// Verifier checks receipts.
type Verifier interface {
	// Verify checks that the receipt attests an execution of the program
	// identified by programID that produced the receipt journal.
	Verify(receipt *Receipt, programID types.Digest) error
}

// Engine is a proving engine able to produce and check its own receipts.
type Engine interface {
	Prover
	Verifier
}
