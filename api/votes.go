package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vocdoni/zk-disclosure/castvote"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/storage"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/verifier"
)

// newVote queues a signed vote payload to be proven
// POST /votes
func (a *API) newVote(w http.ResponseWriter, r *http.Request) {
	vote := &Vote{}
	if err := json.NewDecoder(r.Body).Decode(vote); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if vote.Signature == "" || vote.Message == "" {
		ErrMalformedVote.With("missing signature or message").Write(w)
		return
	}
	// the guest would reject it anyway, there is no point in queueing it
	if err := castvote.CheckSignature(a.publicKey, vote.Signature, vote.Message); err != nil {
		if errors.Is(err, types.ErrDecoding) {
			ErrMalformedVote.WithErr(err).Write(w)
			return
		}
		ErrInvalidSignature.WithErr(err).Write(w)
		return
	}
	job := &storage.Job{
		Signature: vote.Signature,
		Message:   vote.Message,
		PollID:    vote.PollID,
	}
	if err := a.storage.PushJob(job); err != nil {
		ErrStorageFailure.Withf("could not queue vote: %v", err).Write(w)
		return
	}
	log.Debugw("vote queued", "job", job.ID.String(), "poll", job.PollID)
	httpWriteJSON(w, &NewJob{JobID: job.ID})
}

// voteJob returns the status of a prove job
// GET /votes/{jobId}
func (a *API) voteJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, JobURLParam))
	if err != nil {
		ErrMalformedJobID.WithErr(err).Write(w)
		return
	}
	job, err := a.job(id)
	if err != nil {
		storageError(err, ErrJobNotFound).Write(w)
		return
	}
	status := &JobStatus{
		JobID:      job.ID,
		Status:     job.Status,
		Error:      job.Error,
		PollID:     job.PollID,
		Nullifier:  job.Nullifier,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.Status == storage.JobDone {
		vote, err := a.storage.VoteRecord(job.Nullifier)
		if err != nil {
			storageError(err, ErrNullifierNotFound).Write(w)
			return
		}
		status.Record = &vote.Record
		status.Seal = vote.Seal
		status.Journal = vote.Journal
	}
	httpWriteJSON(w, status)
}

// verifyVote verifies a seal and its journal, returning the disclosed record
// POST /votes/verify
func (a *API) verifyVote(w http.ResponseWriter, r *http.Request) {
	req := &VerifyVote{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	v, ok := a.pipeline.Engine().(verifier.SealVerifier)
	if !ok {
		ErrVerifierUnavailable.Withf("engine %T cannot verify seals", a.pipeline.Engine()).Write(w)
		return
	}
	programID := a.pipeline.ProgramID()
	if req.ProgramID != nil {
		programID = *req.ProgramID
	}
	record, err := verifier.VerifySeal(v, req.Seal, req.Journal, programID)
	if err != nil {
		ErrInvalidReceipt.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &VerifiedVote{ProgramID: programID, Record: record})
}

// job returns the job from the cache or the storage. Only finished jobs are
// cached, the others can still change.
func (a *API) job(id uuid.UUID) (*storage.Job, error) {
	if cached, err := a.jobs.Get(id); err == nil {
		return cached.(*storage.Job), nil
	}
	job, err := a.storage.Job(id)
	if err != nil {
		return nil, err
	}
	if job.Status.Finished() {
		if err := a.jobs.Set(id, job); err != nil {
			log.Warnw("failed to cache job", "job", id.String(), "error", err.Error())
		}
	}
	return job, nil
}
