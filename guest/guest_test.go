package guest

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"
	"testing/fstest"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-disclosure/circuits/claim"
	"github.com/vocdoni/zk-disclosure/crypto/secp256k1"
	"github.com/vocdoni/zk-disclosure/disclosure"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

const aliceMessage = `{"id":"alice","name":"Alice","age":21,"is_student":true}`

func newTestGuest(c *qt.C) (*Guest, *ecdsa.PrivateKey) {
	priv, err := secp256k1.GenerateKey()
	c.Assert(err, qt.IsNil)
	g, err := New(Config{PublicKey: &priv.PublicKey, Salt: []byte("secret")})
	c.Assert(err, qt.IsNil)
	return g, priv
}

func sign(c *qt.C, priv *ecdsa.PrivateKey, message string) string {
	hash := sha256.Sum256([]byte(message))
	sig, err := secp256k1.Sign(priv, hash[:])
	c.Assert(err, qt.IsNil)
	return base64.StdEncoding.EncodeToString(sig)
}

func execute(c *qt.C, g *Guest, signature, message string, pollID uint64) (*zkvm.Session, error) {
	input, err := EncodeInput(signature, message, pollID)
	c.Assert(err, qt.IsNil)
	return zkvm.Execute(context.Background(), g.Program(), input)
}

func TestGuestCommitsDisclosure(t *testing.T) {
	c := qt.New(t)
	g, priv := newTestGuest(c)

	session, err := execute(c, g, sign(c, priv, aliceMessage), aliceMessage, 42)
	c.Assert(err, qt.IsNil)

	record, _, err := disclosure.DecodeJournal(session.Journal)
	c.Assert(err, qt.IsNil)
	expectedNullifier := sha256.Sum256([]byte("secretalice42"))
	c.Assert(record.Nullifier, qt.Equals, types.Digest(expectedNullifier).String())
	c.Assert(record.Age, qt.Equals, uint32(21))
	c.Assert(record.IsStudent, qt.IsTrue)
	c.Assert(record.PollID, qt.Equals, uint64(42))

	// the voter identity never reaches the journal
	c.Assert(bytes.Contains(session.Journal, []byte("alice")), qt.IsFalse)
	c.Assert(bytes.Contains(session.Journal, []byte("Alice")), qt.IsFalse)

	// the claim binds the program and the journal
	c.Assert(session.Claim.ProgramID, qt.Equals, g.ID())
	c.Assert(session.Claim.JournalDigest, qt.Equals, types.DigestOf(session.Journal))

	// the witness is attested for the engine
	c.Assert(session.Witness, qt.IsNotNil)
	c.Assert(string(session.Witness.Message), qt.Equals, aliceMessage)
	c.Assert(session.Witness.PublicKey, qt.Equals, g.PublicKey())
	c.Assert(session.Witness.Salt, qt.DeepEquals, []byte("secret"))
	c.Assert(session.Witness.PollID, qt.Equals, uint64(42))
	c.Assert(zkvm.ComputeProgramID(claim.Image(session.Witness.Salt, session.Witness.ImageMeta)), qt.Equals, g.ID())
	sig, err := base64.StdEncoding.DecodeString(sign(c, priv, aliceMessage))
	c.Assert(err, qt.IsNil)
	r, s, err := secp256k1.SplitSignature(sig)
	c.Assert(err, qt.IsNil)
	c.Assert(session.Witness.R.Cmp(r), qt.Equals, 0)
	c.Assert(session.Witness.S.Cmp(s), qt.Equals, 0)
}

func TestGuestAbortsOnInvalidSignature(t *testing.T) {
	c := qt.New(t)
	g, priv := newTestGuest(c)

	// signature over a different message
	session, err := execute(c, g, sign(c, priv, "This is a tampered message."), aliceMessage, 42)
	c.Assert(session, qt.IsNil)
	c.Assert(errors.Is(err, types.ErrInvalidSignature), qt.IsTrue)
	c.Assert(errors.Is(err, types.ErrProving), qt.IsTrue)
	state, ok := AbortState(err)
	c.Assert(ok, qt.IsTrue)
	c.Assert(state, qt.Equals, StateVerifySignature)

	// signature of another key
	other, err := secp256k1.GenerateKey()
	c.Assert(err, qt.IsNil)
	_, err = execute(c, g, sign(c, other, aliceMessage), aliceMessage, 42)
	c.Assert(errors.Is(err, types.ErrInvalidSignature), qt.IsTrue)

	// malformed signatures are decoding errors
	valid, err := base64.StdEncoding.DecodeString(sign(c, priv, aliceMessage))
	c.Assert(err, qt.IsNil)
	for _, signature := range []string{
		"not base64!",
		base64.StdEncoding.EncodeToString(valid[:63]),
		base64.StdEncoding.EncodeToString(append(valid, 0)),
		"",
	} {
		_, err = execute(c, g, signature, aliceMessage, 42)
		c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue, qt.Commentf("signature %q", signature))
		state, _ := AbortState(err)
		c.Assert(state, qt.Equals, StateVerifySignature)
	}
}

func TestGuestAbortsOnMalformedPayload(t *testing.T) {
	c := qt.New(t)
	g, priv := newTestGuest(c)

	for _, message := range []string{
		`not json`,
		`{"name":"Alice","age":21,"is_student":true}`,
		`{"id":7,"age":21,"is_student":true}`,
		`{"id":null,"age":21,"is_student":true}`,
		`{"id":"alice","is_student":true}`,
		`{"id":"alice","age":-1,"is_student":true}`,
		`{"id":"alice","age":21.5,"is_student":true}`,
		`{"id":"alice","age":4294967296,"is_student":true}`,
		`{"id":"alice","age":"21","is_student":true}`,
		`{"id":"alice","age":21}`,
		`{"id":"alice","age":21,"is_student":"yes"}`,
		`{"id":"alice","age":21,"is_student":true} {}`,
		`["alice",21,true]`,
		// fields the claim circuit can not locate
		`{"id": "alice","age":21,"is_student":true}`,
		`{"id":"alice","age": 21,"is_student":true}`,
		`{"id":"alice","age":21 ,"is_student":true}`,
		`{"id":"alice","age":21,"is_student": true}`,
		`{"id":"al\u0069ce","age":21,"is_student":true}`,
		`{"id":"alice","age":21,"is_student":true,"meta":{"id":"bob"}}`,
		`{"id" : "alice","age":21,"is_student":true,"meta":{"id":"bob"}}`,
		`{"id":"` + strings.Repeat("a", claim.MaxVoterIDSize+1) + `","age":21,"is_student":true}`,
		`{"id":"alice","age":21,"is_student":true,"pad":"` + strings.Repeat("x", claim.MaxMessageSize) + `"}`,
	} {
		session, err := execute(c, g, sign(c, priv, message), message, 42)
		c.Assert(session, qt.IsNil)
		c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue, qt.Commentf("message %s: %v", message, err))
		state, ok := AbortState(err)
		c.Assert(ok, qt.IsTrue)
		c.Assert(state, qt.Equals, StateDeriveDisclosure, qt.Commentf("message %s", message))
	}
}

func TestGuestBoundaryValues(t *testing.T) {
	c := qt.New(t)
	g, priv := newTestGuest(c)

	message := `{"id":"bob","age":4294967295,"is_student":false,"extra":{"nested":[1,2,3]}}`
	session, err := execute(c, g, sign(c, priv, message), message, 0)
	c.Assert(err, qt.IsNil)
	record, _, err := disclosure.DecodeJournal(session.Journal)
	c.Assert(err, qt.IsNil)
	c.Assert(record.Age, qt.Equals, uint32(4294967295))
	c.Assert(record.IsStudent, qt.IsFalse)
	c.Assert(record.PollID, qt.Equals, uint64(0))
	c.Assert(record.Nullifier, qt.Equals, disclosure.DeriveNullifier([]byte("secret"), "bob", 0))
}

func TestGuestMalformedInput(t *testing.T) {
	c := qt.New(t)
	g, _ := newTestGuest(c)

	// two elements instead of three
	input, err := zkvm.EncodeInput([]any{"sig", "message"})
	c.Assert(err, qt.IsNil)
	session, err := zkvm.Execute(context.Background(), g.Program(), input)
	c.Assert(session, qt.IsNil)
	c.Assert(errors.Is(err, types.ErrDecoding), qt.IsTrue)
	state, _ := AbortState(err)
	c.Assert(state, qt.Equals, StateReadInput)
}

func TestProgramIdentity(t *testing.T) {
	c := qt.New(t)
	priv, err := secp256k1.GenerateKey()
	c.Assert(err, qt.IsNil)

	g1, err := New(Config{PublicKey: &priv.PublicKey, Salt: []byte("secret")})
	c.Assert(err, qt.IsNil)
	g2, err := New(Config{PublicKey: &priv.PublicKey, Salt: []byte("secret")})
	c.Assert(err, qt.IsNil)
	c.Assert(g1.ID(), qt.Equals, g2.ID())
	c.Assert(g1.Program().Image, qt.DeepEquals, g2.Program().Image)

	otherSalt, err := New(Config{PublicKey: &priv.PublicKey, Salt: []byte("pepper")})
	c.Assert(err, qt.IsNil)
	c.Assert(otherSalt.ID(), qt.Not(qt.Equals), g1.ID())

	other, err := secp256k1.GenerateKey()
	c.Assert(err, qt.IsNil)
	otherKey, err := New(Config{PublicKey: &other.PublicKey, Salt: []byte("secret")})
	c.Assert(err, qt.IsNil)
	c.Assert(otherKey.ID(), qt.Not(qt.Equals), g1.ID())

	// the salt itself is not part of the image
	c.Assert(bytes.Contains(g1.Program().Image, []byte("secret")), qt.IsFalse)

	// the guest logic is part of the identity
	meta, err := metadataDigest(&priv.PublicKey, LogicDigest())
	c.Assert(err, qt.IsNil)
	c.Assert(zkvm.ComputeProgramID(claim.Image([]byte("secret"), meta)), qt.Equals, g1.ID())
	otherLogic, err := metadataDigest(&priv.PublicKey, types.DigestOf([]byte("other logic")))
	c.Assert(err, qt.IsNil)
	c.Assert(zkvm.ComputeProgramID(claim.Image([]byte("secret"), otherLogic)), qt.Not(qt.Equals), g1.ID())

	_, err = New(Config{PublicKey: &priv.PublicKey, Salt: bytes.Repeat([]byte{1}, claim.MaxSaltSize+1)})
	c.Assert(err, qt.IsNotNil)

	_, err = New(Config{Salt: []byte("secret")})
	c.Assert(err, qt.IsNotNil)
	_, err = New(Config{PublicKey: &priv.PublicKey})
	c.Assert(err, qt.IsNotNil)
}

func TestLogicDigest(t *testing.T) {
	c := qt.New(t)
	files := fstest.MapFS{}
	for _, name := range []string{"guest.go", "payload.go", "state.go"} {
		data, err := os.ReadFile(name)
		c.Assert(err, qt.IsNil)
		files[name] = &fstest.MapFile{Data: data}
	}
	guestDigest, circuitDigest := claim.DigestFS(files), claim.SourceDigest()
	c.Assert(LogicDigest(), qt.Equals, types.TaggedDigest(logicTag, guestDigest[:], circuitDigest[:]))

	// any change of a source file moves the digest
	files["payload.go"].Data = append(files["payload.go"].Data, '\n')
	c.Assert(claim.DigestFS(files), qt.Not(qt.Equals), guestDigest)
}

func TestStateString(t *testing.T) {
	c := qt.New(t)
	c.Assert(StateVerifySignature.String(), qt.Equals, "verifySignature")
	c.Assert(State(42).String(), qt.Equals, "state(42)")
}
