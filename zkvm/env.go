package zkvm

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/zk-disclosure/types"
)

var (
	inputEncMode cbor.EncMode
	inputDecMode cbor.DecMode
)

func init() {
	var err error
	if inputEncMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(fmt.Sprintf("invalid cbor encoding options: %v", err))
	}
	if inputDecMode, err = (cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}).DecMode(); err != nil {
		panic(fmt.Sprintf("invalid cbor decoding options: %v", err))
	}
}

// EncodeInput serializes a guest input value with the deterministic CBOR
// encoding expected by Env.Read.
func EncodeInput(v any) ([]byte, error) {
	data, err := inputEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error encoding guest input: %w", err)
	}
	return data, nil
}

// Witness is the private witness of a guest run. It never reaches the
// journal, SNARK engines use it to assign the claim circuit.
type Witness struct {
	// PublicKey is the key the message signature was checked against.
	PublicKey *ecdsa.PublicKey
	// Message is the signed message.
	Message []byte
	R, S    *big.Int
	// Salt is the nullifier salt.
	Salt []byte
	// ImageMeta is the digest of the program metadata that follows the salt
	// digest in the program image.
	ImageMeta types.Digest
	PollID    uint64
}

// Env is the execution environment of a guest run: a private input channel
// that can be read once, a public journal and a private witness channel
// consumed by the engine.
type Env struct {
	input     []byte
	inputRead bool
	journal   bytes.Buffer
	committed bool
	witness   *Witness
}

func newEnv(input []byte) *Env {
	return &Env{input: input}
}

// Read decodes the guest input into v. The input can only be read once.
// Malformed input returns types.ErrDecoding.
func (e *Env) Read(v any) error {
	if e.inputRead {
		return fmt.Errorf("guest input already consumed")
	}
	e.inputRead = true
	if err := inputDecMode.Unmarshal(e.input, v); err != nil {
		return fmt.Errorf("%w: malformed guest input: %w", types.ErrDecoding, err)
	}
	return nil
}

// Commit appends data to the public journal.
func (e *Env) Commit(data []byte) error {
	if _, err := e.journal.Write(data); err != nil {
		return fmt.Errorf("error writing journal: %w", err)
	}
	e.committed = true
	return nil
}

// Attest hands the witness of the run to the engine. Only one witness can
// be attested per run.
func (e *Env) Attest(w *Witness) error {
	if w == nil || w.PublicKey == nil || w.R == nil || w.S == nil || len(w.Message) == 0 {
		return fmt.Errorf("incomplete guest witness")
	}
	if e.witness != nil {
		return fmt.Errorf("guest witness already attested")
	}
	e.witness = w
	return nil
}
