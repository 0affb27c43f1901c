package service

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-disclosure/castvote"
	"github.com/vocdoni/zk-disclosure/config"
	"github.com/vocdoni/zk-disclosure/crypto/secp256k1"
	"github.com/vocdoni/zk-disclosure/guest"
	"github.com/vocdoni/zk-disclosure/prover"
	"github.com/vocdoni/zk-disclosure/storage"
	"github.com/vocdoni/zk-disclosure/zkvm"
	"go.vocdoni.io/dvote/db/metadb"
)

func testSetup(c *qt.C) (*storage.Storage, *prover.Pipeline, *ecdsa.PrivateKey) {
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

func TestProverService(t *testing.T) {
	c := qt.New(t)
	stg, pipeline, priv := testSetup(c)

	ps, err := NewProver(stg, pipeline, 2)
	c.Assert(err, qt.IsNil)
	ps.Processor().SetPollInterval(10 * time.Millisecond)

	// queued before start, proven once the workers run
	message := `{"id":"dave","age":40,"is_student":false}`
	signature, err := castvote.Sign(priv, message)
	c.Assert(err, qt.IsNil)
	job := &storage.Job{Signature: signature, Message: message, PollID: 5}
	c.Assert(stg.PushJob(job), qt.IsNil)

	ctx := context.Background()
	c.Assert(ps.Start(ctx), qt.IsNil)
	defer ps.Stop()
	c.Assert(ps.Start(ctx), qt.ErrorMatches, "prover service already running")

	deadline := time.Now().Add(10 * time.Second)
	for {
		stored, err := stg.Job(job.ID)
		c.Assert(err, qt.IsNil)
		if stored.Status.Finished() {
			c.Assert(stored.Status, qt.Equals, storage.JobDone, qt.Commentf("error: %s", stored.Error))
			break
		}
		if time.Now().After(deadline) {
			c.Fatal("job not proven in time")
		}
		time.Sleep(20 * time.Millisecond)
	}

	ps.Stop()
	c.Assert(ps.Start(ctx), qt.IsNil)
}

func TestNewPipeline(t *testing.T) {
	c := qt.New(t)
	priv, err := secp256k1.GenerateKey()
	c.Assert(err, qt.IsNil)
	conf := &config.Config{
		PublicKey:   secp256k1.EncodePublicKey(&priv.PublicKey),
		Salt:        "secret",
		ReceiptKind: "fake",
	}
	_, err = NewPipeline(conf)
	c.Assert(err, qt.ErrorMatches, "fake receipts require dev mode")

	conf.DevMode = true
	pipeline, err := NewPipeline(conf)
	c.Assert(err, qt.IsNil)
	g, err := guest.New(guest.Config{PublicKey: &priv.PublicKey, Salt: []byte("secret")})
	c.Assert(err, qt.IsNil)
	c.Assert(pipeline.ProgramID(), qt.Equals, g.ID())

	conf.ReceiptKind = "groth16"
	_, err = NewPipeline(conf)
	c.Assert(err, qt.ErrorMatches, "missing groth16 verifying key hash")
}
