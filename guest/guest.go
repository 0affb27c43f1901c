// guest package implements the castvote guest program. Given a signed vote
// payload and a poll id, the guest verifies the signature against the
// registered voter key, derives the voter nullifier for the poll and commits
// the disclosure record as its journal:
//
//	ReadInput -> HashMessage -> VerifySignature -> DeriveDisclosure -> EncodeJournal -> Commit
//
// Any failure aborts the run before Commit, so a run either commits the full
// record or nothing at all.
package guest

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vocdoni/zk-disclosure/circuits/claim"
	"github.com/vocdoni/zk-disclosure/crypto/secp256k1"
	"github.com/vocdoni/zk-disclosure/disclosure"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

const (
	// ProgramName is the name of the guest program.
	ProgramName = "castvote"
	// Version of the guest. It is part of the program image, along with the
	// digest of the guest logic.
	Version uint32 = 2
)

// Config holds the values the guest program is built with. Both are part of
// the program identity. The salt is at most claim.MaxSaltSize bytes.
type Config struct {
	// PublicKey is the registered voter key signatures are checked against.
	PublicKey *ecdsa.PublicKey
	// Salt is mixed into every nullifier.
	Salt []byte
}

// Input is the guest input: the base64 signature, the raw message and the
// poll id.
type Input struct {
	_         struct{} `cbor:",toarray"`
	Signature string
	Message   string
	PollID    uint64
}

// EncodeInput returns the guest input channel bytes for a signed message.
func EncodeInput(signature, message string, pollID uint64) ([]byte, error) {
	return zkvm.EncodeInput(Input{Signature: signature, Message: message, PollID: pollID})
}

// metadata describes the guest program. Its digest follows the salt digest
// in the program image.
type metadata struct {
	_         struct{} `cbor:",toarray"`
	Name      string
	Version   uint32
	PublicKey []byte
	Logic     []byte
}

// Guest is the castvote guest program.
type Guest struct {
	publicKey *ecdsa.PublicKey
	salt      []byte
	meta      types.Digest
	program   *zkvm.Program
}

// New builds the guest program for the configuration provided.
func New(conf Config) (*Guest, error) {
	if conf.PublicKey == nil {
		return nil, fmt.Errorf("missing voter public key")
	}
	if len(conf.Salt) == 0 {
		return nil, fmt.Errorf("missing nullifier salt")
	}
	if len(conf.Salt) > claim.MaxSaltSize {
		return nil, fmt.Errorf("nullifier salt of %d bytes exceeds %d bytes", len(conf.Salt), claim.MaxSaltSize)
	}
	meta, err := metadataDigest(conf.PublicKey, LogicDigest())
	if err != nil {
		return nil, err
	}
	g := &Guest{
		publicKey: conf.PublicKey,
		salt:      append([]byte{}, conf.Salt...),
		meta:      meta,
	}
	g.program = &zkvm.Program{
		Name:  ProgramName,
		Image: claim.Image(g.salt, meta),
		Entry: g.run,
	}
	return g, nil
}

// metadataDigest returns the digest of the program metadata for the key
// and the guest logic digest.
func metadataDigest(pub *ecdsa.PublicKey, logic types.Digest) (types.Digest, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return types.Digest{}, fmt.Errorf("error creating metadata encoder: %w", err)
	}
	data, err := em.Marshal(metadata{
		Name:      ProgramName,
		Version:   Version,
		PublicKey: secp256k1.MarshalPublicKey(pub),
		Logic:     logic[:],
	})
	if err != nil {
		return types.Digest{}, fmt.Errorf("error encoding program metadata: %w", err)
	}
	return types.DigestOf(data), nil
}

// Program returns the guest program.
func (g *Guest) Program() *zkvm.Program {
	return g.program
}

// ID returns the program identity of the guest.
func (g *Guest) ID() types.Digest {
	return g.program.ID()
}

// PublicKey returns the voter key the guest checks signatures against.
func (g *Guest) PublicKey() *ecdsa.PublicKey {
	return g.publicKey
}

// run is the guest entry point.
func (g *Guest) run(env *zkvm.Env) error {
	enter(StateReadInput)
	var in Input
	if err := env.Read(&in); err != nil {
		return abort(StateReadInput, err)
	}

	enter(StateHashMessage)
	hash := sha256.Sum256([]byte(in.Message))

	enter(StateVerifySignature)
	sig, err := base64.StdEncoding.DecodeString(in.Signature)
	if err != nil {
		return abort(StateVerifySignature, fmt.Errorf("%w: signature is not valid base64: %w", types.ErrDecoding, err))
	}
	if err := secp256k1.Verify(g.publicKey, hash[:], sig); err != nil {
		return abort(StateVerifySignature, err)
	}

	enter(StateDeriveDisclosure)
	fields, err := extractFields(in.Message)
	if err != nil {
		return abort(StateDeriveDisclosure, err)
	}
	record := &disclosure.Record{
		Nullifier: disclosure.DeriveNullifier(g.salt, fields.id, in.PollID),
		Age:       fields.age,
		IsStudent: fields.isStudent,
		PollID:    in.PollID,
	}

	enter(StateEncodeJournal)
	journal, err := disclosure.EncodeJournal(record)
	if err != nil {
		return abort(StateEncodeJournal, err)
	}

	enter(StateCommit)
	r, s, err := secp256k1.SplitSignature(sig)
	if err != nil {
		return abort(StateCommit, err)
	}
	if err := env.Attest(&zkvm.Witness{
		PublicKey: g.publicKey,
		Message:   []byte(in.Message),
		R:         r,
		S:         s,
		Salt:      g.salt,
		ImageMeta: g.meta,
		PollID:    in.PollID,
	}); err != nil {
		return abort(StateCommit, err)
	}
	return env.Commit(journal)
}

func enter(s State) {
	log.Debugw("guest state", "program", ProgramName, "state", s.String())
}

// AbortError is returned by the guest when a run is aborted.
type AbortError struct {
	State State
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted at %s: %v", e.State, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

func abort(s State, err error) error {
	return &AbortError{State: s, Err: err}
}

// AbortState returns the state where the run of err was aborted, if err comes
// from an aborted guest run.
func AbortState(err error) (State, bool) {
	var abortErr *AbortError
	if errors.As(err, &abortErr) {
		return abortErr.State, true
	}
	return 0, false
}
