package zkvm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-disclosure/types"
)

type echoInput struct {
	_       struct{} `cbor:",toarray"`
	Message string
	Fail    bool
}

var errEchoFailed = errors.New("echo failed")

func echoProgram() *Program {
	return &Program{
		Name:  "echo",
		Image: []byte("echo program v1"),
		Entry: func(env *Env) error {
			var in echoInput
			if err := env.Read(&in); err != nil {
				return err
			}
			if in.Fail {
				return errEchoFailed
			}
			return env.Commit([]byte(in.Message))
		},
	}
}

func TestProgramID(t *testing.T) {
	c := qt.New(t)

	image := []byte("guest program image")
	id := ComputeProgramID(image)
	c.Assert(ComputeProgramID(image), qt.Equals, id)
	c.Assert(ComputeProgramID(append([]byte{}, image...)), qt.Equals, id)

	// any single byte modification changes the identity
	for i := range image {
		modified := append([]byte{}, image...)
		modified[i] ^= 0x01
		c.Assert(ComputeProgramID(modified), qt.Not(qt.Equals), id, qt.Commentf("byte %d", i))
	}
	c.Assert(ComputeProgramID(append(append([]byte{}, image...), 0)), qt.Not(qt.Equals), id)

	p := &Program{Image: image}
	c.Assert(p.ID(), qt.Equals, id)
}

func TestExecute(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	program := echoProgram()

	input, err := EncodeInput(echoInput{Message: "hello"})
	c.Assert(err, qt.IsNil)
	session, err := Execute(ctx, program, input)
	c.Assert(err, qt.IsNil)
	c.Assert(string(session.Journal), qt.Equals, "hello")
	c.Assert(session.Claim.ProgramID, qt.Equals, program.ID())
	c.Assert(session.Claim.JournalDigest, qt.Equals, types.DigestOf([]byte("hello")))
	c.Assert(session.Witness, qt.IsNil)

	// aborted runs do not return a journal
	input, err = EncodeInput(echoInput{Message: "hello", Fail: true})
	c.Assert(err, qt.IsNil)
	session, err = Execute(ctx, program, input)
	c.Assert(session, qt.IsNil)
	c.Assert(errors.Is(err, types.ErrProving), qt.IsTrue)
	c.Assert(errors.Is(err, errEchoFailed), qt.IsTrue)

	// malformed input
	_, err = Execute(ctx, program, []byte{0xff, 0x00})
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)
	_, err = Execute(ctx, program, nil)
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)

	// canceled context
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Execute(canceled, program, input)
	c.Assert(errors.Is(err, context.Canceled), qt.IsTrue)

	_, err = Execute(ctx, &Program{Name: "empty"}, input)
	c.Assert(errors.Is(err, types.ErrProving), qt.IsTrue)
}

func TestExecuteGuestMisbehavior(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	input, err := EncodeInput(echoInput{Message: "hello"})
	c.Assert(err, qt.IsNil)

	panicking := &Program{Name: "panic", Entry: func(env *Env) error {
		if err := env.Commit([]byte("partial")); err != nil {
			return err
		}
		panic("boom")
	}}
	session, err := Execute(ctx, panicking, input)
	c.Assert(session, qt.IsNil)
	c.Assert(err, qt.ErrorMatches, ".*guest panic panicked: boom")

	silent := &Program{Name: "silent", Entry: func(env *Env) error { return nil }}
	_, err = Execute(ctx, silent, input)
	c.Assert(err, qt.ErrorMatches, ".*finished without journal")

	doubleRead := &Program{Name: "double", Entry: func(env *Env) error {
		var in echoInput
		if err := env.Read(&in); err != nil {
			return err
		}
		return env.Read(&in)
	}}
	_, err = Execute(ctx, doubleRead, input)
	c.Assert(err, qt.ErrorMatches, ".*guest input already consumed")
}

func TestDevEngine(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	program := echoProgram()
	engine := NewDevEngine()

	input, err := EncodeInput(echoInput{Message: "hello"})
	c.Assert(err, qt.IsNil)
	receipt, err := engine.Prove(ctx, program, input, DefaultProverOpts())
	c.Assert(err, qt.IsNil)
	kind, err := receipt.Kind()
	c.Assert(err, qt.IsNil)
	c.Assert(kind, qt.Equals, KindFake)
	c.Assert(engine.Verify(receipt, program.ID()), qt.IsNil)

	// other program
	err = engine.Verify(receipt, ComputeProgramID([]byte("other")))
	c.Assert(errors.Is(err, types.ErrReceiptVerification), qt.IsTrue)

	// tampered journal
	tampered := &Receipt{Inner: receipt.Inner, Journal: []byte("bye")}
	err = engine.Verify(tampered, program.ID())
	c.Assert(errors.Is(err, types.ErrReceiptVerification), qt.IsTrue)

	// non fake receipts
	groth16 := &Receipt{Inner: &Groth16Receipt{Claim: receipt.Inner.claim()}, Journal: receipt.Journal}
	err = engine.Verify(groth16, program.ID())
	c.Assert(err, qt.ErrorMatches, ".*expected a fake receipt, got groth16")
	err = engine.Verify(&Receipt{Journal: receipt.Journal}, program.ID())
	c.Assert(errors.Is(err, types.ErrReceiptVerification), qt.IsTrue)
}

func TestReceiptClaim(t *testing.T) {
	c := qt.New(t)

	claim := NewReceiptClaim(ComputeProgramID([]byte("p")), []byte("journal"))
	c.Assert(claim.Digest(), qt.Equals, claim.Digest())

	other := claim
	other.ExitCode = 1
	c.Assert(other.Digest(), qt.Not(qt.Equals), claim.Digest())
	err := CheckClaim(other, []byte("journal"), claim.ProgramID)
	c.Assert(err, qt.ErrorMatches, ".*guest exit code 1")
	c.Assert(CheckClaim(claim, []byte("journal"), claim.ProgramID), qt.IsNil)
}

func TestReceiptKind(t *testing.T) {
	c := qt.New(t)

	for _, kind := range []ReceiptKind{KindFake, KindGroth16, KindPlonk} {
		parsed, err := ParseReceiptKind(kind.String())
		c.Assert(err, qt.IsNil)
		c.Assert(parsed, qt.Equals, kind)
	}
	_, err := ParseReceiptKind("stark")
	c.Assert(err, qt.IsNotNil)
	c.Assert(ReceiptKind(9).String(), qt.Equals, fmt.Sprintf("unknown(%d)", 9))
}
