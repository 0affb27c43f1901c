package processor

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/zk-disclosure/castvote"
	"github.com/vocdoni/zk-disclosure/crypto/secp256k1"
	"github.com/vocdoni/zk-disclosure/guest"
	"github.com/vocdoni/zk-disclosure/prover"
	"github.com/vocdoni/zk-disclosure/storage"
	"github.com/vocdoni/zk-disclosure/zkvm"
	"go.vocdoni.io/dvote/db/metadb"
)

const aliceMessage = `{"id":"alice","name":"Alice","age":21,"is_student":true}`

func setup(c *qt.C) (*storage.Storage, *prover.Pipeline, *ecdsa.PrivateKey) {
	stg, err := storage.New(metadb.NewTest(c.TB))
	c.Assert(err, qt.IsNil)
	priv, err := secp256k1.GenerateKey()
	c.Assert(err, qt.IsNil)
	g, err := guest.New(guest.Config{PublicKey: &priv.PublicKey, Salt: []byte("secret")})
	c.Assert(err, qt.IsNil)
	pipeline, err := prover.New(zkvm.NewDevEngine(), g.Program(), zkvm.ProverOpts{Kind: zkvm.KindFake})
	c.Assert(err, qt.IsNil)
	return stg, pipeline, priv
}

func pushVote(c *qt.C, stg *storage.Storage, priv *ecdsa.PrivateKey, message string, pollID uint64) uuid.UUID {
	signature, err := castvote.Sign(priv, message)
	c.Assert(err, qt.IsNil)
	job := &storage.Job{Signature: signature, Message: message, PollID: pollID}
	c.Assert(stg.PushJob(job), qt.IsNil)
	return job.ID
}

func waitJob(c *qt.C, stg *storage.Storage, id uuid.UUID) *storage.Job {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := stg.Job(id)
		c.Assert(err, qt.IsNil)
		if job.Status.Finished() {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	c.Fatalf("job %s not finished in time", id)
	return nil
}

func TestProcessor(t *testing.T) {
	c := qt.New(t)
	stg, pipeline, priv := setup(c)

	p, err := New(stg, pipeline, 2)
	c.Assert(err, qt.IsNil)
	p.SetPollInterval(10 * time.Millisecond)
	c.Assert(p.Start(context.Background()), qt.IsNil)
	defer func() { c.Assert(p.Stop(), qt.IsNil) }()
	c.Assert(p.Start(context.Background()), qt.ErrorMatches, "processor already running")

	aliceJob := pushVote(c, stg, priv, aliceMessage, 42)
	job := waitJob(c, stg, aliceJob)
	c.Assert(job.Status, qt.Equals, storage.JobDone, qt.Commentf("error: %s", job.Error))
	expected := sha256.Sum256([]byte("secretalice42"))
	c.Assert(job.Nullifier, qt.Equals, fmt.Sprintf("%x", expected))
	c.Assert(job.Message, qt.Equals, "")

	vote, err := stg.VoteRecord(job.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(vote.Record.Age, qt.Equals, uint32(21))
	c.Assert(vote.JobID, qt.Equals, aliceJob.String())
	c.Assert(vote.ProgramID, qt.Equals, pipeline.ProgramID())

	// a second vote of the same voter in the same poll is rejected
	again := waitJob(c, stg, pushVote(c, stg, priv, aliceMessage, 42))
	c.Assert(again.Status, qt.Equals, storage.JobFailed)
	c.Assert(again.Error, qt.Matches, ".*nullifier already used.*")

	// other polls produce other nullifiers
	other := waitJob(c, stg, pushVote(c, stg, priv, aliceMessage, 43))
	c.Assert(other.Status, qt.Equals, storage.JobDone)
	count, err := stg.CountNullifiers()
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 2)
	c.Assert(stg.CountPendingJobs(), qt.Equals, 0)
}

func TestProcessJobInvalidSignature(t *testing.T) {
	c := qt.New(t)
	stg, pipeline, priv := setup(c)
	p, err := New(stg, pipeline, 1)
	c.Assert(err, qt.IsNil)

	signature, err := castvote.Sign(priv, aliceMessage)
	c.Assert(err, qt.IsNil)
	job := &storage.Job{Signature: signature, Message: castvote.TamperedMessage, PollID: 42}
	c.Assert(p.ProcessJob(context.Background(), job), qt.IsNotNil)
	c.Assert(job.Status, qt.Equals, storage.JobFailed)
	c.Assert(job.Error, qt.Matches, ".*cryptographic verification failure.*")
	c.Assert(job.Nullifier, qt.Equals, "")

	count, err := stg.CountNullifiers()
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 0)
}

func TestNewValidation(t *testing.T) {
	c := qt.New(t)
	_, err := New(nil, nil, 1)
	c.Assert(err, qt.IsNotNil)
}
