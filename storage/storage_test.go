package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/zk-disclosure/disclosure"
	"github.com/vocdoni/zk-disclosure/types"
	"go.vocdoni.io/dvote/db/metadb"
)

func newTestStorage(c *qt.C) *Storage {
	stg, err := New(metadb.NewTest(c.TB))
	c.Assert(err, qt.IsNil)
	return stg
}

func TestJobQueue(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(c)

	_, _, err := stg.NextJob()
	c.Assert(err, qt.ErrorIs, ErrNoMoreElements)

	first := &Job{Signature: "sig1", Message: "msg1", PollID: 1}
	second := &Job{Signature: "sig2", Message: "msg2", PollID: 2}
	c.Assert(stg.PushJob(first), qt.IsNil)
	c.Assert(stg.PushJob(second), qt.IsNil)
	c.Assert(first.ID, qt.Not(qt.Equals), uuid.Nil)
	c.Assert(stg.CountPendingJobs(), qt.Equals, 2)

	stored, err := stg.Job(first.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Status, qt.Equals, JobPending)
	c.Assert(stored.Message, qt.Equals, "msg1")

	// jobs come out in order and reserved jobs are skipped
	job, key, err := stg.NextJob()
	c.Assert(err, qt.IsNil)
	c.Assert(job.ID, qt.Equals, first.ID)
	c.Assert(job.Status, qt.Equals, JobProving)
	job2, key2, err := stg.NextJob()
	c.Assert(err, qt.IsNil)
	c.Assert(job2.ID, qt.Equals, second.ID)
	_, _, err = stg.NextJob()
	c.Assert(err, qt.ErrorIs, ErrNoMoreElements)

	// unfinished jobs can not be marked as done
	c.Assert(stg.MarkJobDone(key, job), qt.IsNotNil)

	job.Status = JobDone
	job.Nullifier = "ab"
	c.Assert(stg.MarkJobDone(key, job), qt.IsNil)
	done, err := stg.Job(first.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(done.Status, qt.Equals, JobDone)
	c.Assert(done.Message, qt.Equals, "")
	c.Assert(done.Signature, qt.Equals, "")
	c.Assert(done.FinishedAt > 0, qt.IsTrue)
	c.Assert(stg.CountPendingJobs(), qt.Equals, 1)

	// a restart releases the reservation of the second job
	released, err := stg.ReleaseReservations()
	c.Assert(err, qt.IsNil)
	c.Assert(released, qt.Equals, 1)
	again, againKey, err := stg.NextJob()
	c.Assert(err, qt.IsNil)
	c.Assert(again.ID, qt.Equals, second.ID)
	c.Assert(againKey, qt.DeepEquals, key2)

	_, err = stg.Job(uuid.New())
	c.Assert(err, qt.ErrorIs, ErrNotFound)
}

func testVote(voterID string, pollID uint64) *VoteRecord {
	return &VoteRecord{
		Record: disclosure.Record{
			Nullifier: disclosure.DeriveNullifier([]byte("secret"), voterID, pollID),
			Age:       30,
			IsStudent: true,
			PollID:    pollID,
		},
		Seal:      []byte{0, 0, 0, 0, 1},
		Journal:   []byte("journal"),
		ProgramID: types.DigestOf([]byte("program")),
	}
}

func TestNullifierRegistry(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(c)

	emptyRoot, err := stg.NullifierRoot()
	c.Assert(err, qt.IsNil)

	alice := testVote("alice", 42)
	c.Assert(stg.RegisterVote(alice), qt.IsNil)
	root, err := stg.NullifierRoot()
	c.Assert(err, qt.IsNil)
	c.Assert(bytes.Equal(root, emptyRoot), qt.IsFalse)

	// double vote in the same poll
	c.Assert(stg.RegisterVote(testVote("alice", 42)), qt.ErrorIs, ErrNullifierAlreadyUsed)
	// same voter, another poll
	c.Assert(stg.RegisterVote(testVote("alice", 43)), qt.IsNil)
	count, err := stg.CountNullifiers()
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 2)

	stored, err := stg.VoteRecord(alice.Record.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Record, qt.DeepEquals, alice.Record)
	c.Assert(stored.ProgramID, qt.Equals, alice.ProgramID)

	_, err = stg.VoteRecord(testVote("bob", 42).Record.Nullifier)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	_, err = stg.VoteRecord("not a nullifier")
	c.Assert(err, qt.ErrorIs, types.ErrDecoding)
}

func TestRegisterVoteOverOrphanLeaf(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(c)

	alice := testVote("alice", 42)
	key, err := disclosure.NullifierBytes(alice.Record.Nullifier)
	c.Assert(err, qt.IsNil)
	// a registry leaf left without its vote record
	c.Assert(stg.nullifiers.Add(key, []byte("stale leaf")), qt.IsNil)
	_, err = stg.VoteRecord(alice.Record.Nullifier)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	c.Assert(stg.RegisterVote(alice), qt.IsNil)
	count, err := stg.CountNullifiers()
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 1)
	stored, err := stg.VoteRecord(alice.Record.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Record, qt.DeepEquals, alice.Record)
	proof, err := stg.NullifierProof(alice.Record.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(bytes.Equal(proof.Value, []byte("stale leaf")), qt.IsFalse)
	valid, err := VerifyNullifierProof(alice.Record.Nullifier, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsTrue)

	c.Assert(stg.RegisterVote(testVote("alice", 42)), qt.ErrorIs, ErrNullifierAlreadyUsed)
}

func TestPollVotes(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(c)

	for _, voter := range []string{"alice", "bob", "carol"} {
		c.Assert(stg.RegisterVote(testVote(voter, 42)), qt.IsNil)
	}
	c.Assert(stg.RegisterVote(testVote("alice", 43)), qt.IsNil)
	// poll 42 shares no index prefix with poll 42<<8
	c.Assert(stg.RegisterVote(testVote("dave", 42<<8)), qt.IsNil)

	votes, err := stg.PollVotes(42)
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 3)
	for i, vote := range votes {
		c.Assert(vote.Record.PollID, qt.Equals, uint64(42))
		if i > 0 {
			c.Assert(votes[i-1].Record.Nullifier < vote.Record.Nullifier, qt.IsTrue)
		}
	}
	votes, err = stg.PollVotes(43)
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 1)
	votes, err = stg.PollVotes(7)
	c.Assert(err, qt.IsNil)
	c.Assert(votes, qt.HasLen, 0)
}

func TestNullifierProof(t *testing.T) {
	c := qt.New(t)
	stg := newTestStorage(c)
	alice := testVote("alice", 42)
	c.Assert(stg.RegisterVote(alice), qt.IsNil)
	c.Assert(stg.RegisterVote(testVote("bob", 42)), qt.IsNil)

	proof, err := stg.NullifierProof(alice.Record.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Inclusion, qt.IsTrue)
	valid, err := VerifyNullifierProof(alice.Record.Nullifier, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsTrue)

	carol := testVote("carol", 42)
	proof, err = stg.NullifierProof(carol.Record.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(proof.Inclusion, qt.IsFalse)
	valid, err = VerifyNullifierProof(carol.Record.Nullifier, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(valid, qt.IsFalse)
}

func TestArtifactFiles(t *testing.T) {
	c := qt.New(t)
	dir := filepath.Join(t.TempDir(), "castvote")
	a := &Artifacts{
		Seal:       []byte{0xde, 0xad, 0xbe, 0xef},
		Journal:    []byte("journal"),
		JournalABI: []byte("payload"),
		ImageID:    types.DigestOf([]byte("image")),
	}
	c.Assert(WriteArtifacts(dir, a), qt.IsNil)

	content, err := os.ReadFile(filepath.Join(dir, SealFile))
	c.Assert(err, qt.IsNil)
	c.Assert(string(content), qt.Equals, "deadbeef")
	content, err = os.ReadFile(filepath.Join(dir, ImageIDFile))
	c.Assert(err, qt.IsNil)
	c.Assert(string(content), qt.Equals, a.ImageID.String())

	read, err := ReadArtifacts(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(read, qt.DeepEquals, a)

	// no temporary files left behind
	entries, err := os.ReadDir(dir)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 4)

	// receipts without seal only skip the seal file
	noSeal := filepath.Join(t.TempDir(), "noseal")
	a.Seal = nil
	c.Assert(WriteArtifacts(noSeal, a), qt.IsNil)
	_, err = os.Stat(filepath.Join(noSeal, SealFile))
	c.Assert(os.IsNotExist(err), qt.IsTrue)
	read, err = ReadArtifacts(noSeal)
	c.Assert(err, qt.IsNil)
	c.Assert(read.Seal, qt.HasLen, 0)
	c.Assert(read.Journal, qt.DeepEquals, a.Journal)

	empty := filepath.Join(t.TempDir(), "empty")
	c.Assert(WriteArtifacts(empty, &Artifacts{}), qt.IsNotNil)
	_, err = os.Stat(empty)
	c.Assert(os.IsNotExist(err), qt.IsTrue)
}
