package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/zk-disclosure/log"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// jobQueuePrefix holds the queue order of pending jobs.
var jobQueuePrefix = []byte("q/")

// JobStatus is the state of a prove job.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobProving JobStatus = "proving"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Finished reports whether the status is final.
func (s JobStatus) Finished() bool {
	return s == JobDone || s == JobFailed
}

// Job is a request to prove a signed vote payload. The signature and the
// message are dropped once the job finishes.
type Job struct {
	ID         uuid.UUID `cbor:"1,keyasint"`
	Signature  string    `cbor:"2,keyasint,omitempty"`
	Message    string    `cbor:"3,keyasint,omitempty"`
	PollID     uint64    `cbor:"4,keyasint"`
	Status     JobStatus `cbor:"5,keyasint"`
	Error      string    `cbor:"6,keyasint,omitempty"`
	Nullifier  string    `cbor:"7,keyasint,omitempty"`
	CreatedAt  int64     `cbor:"8,keyasint"`
	FinishedAt int64     `cbor:"9,keyasint,omitempty"`
}

// queueKey returns the key that orders the job in the queue: the creation
// time followed by the job id.
func (j *Job) queueKey() []byte {
	key := binary.BigEndian.AppendUint64(nil, uint64(j.CreatedAt))
	return append(key, j.ID[:]...)
}

// PushJob stores a new job as pending and appends it to the queue. The job
// id is assigned if it is not set.
func (s *Storage) PushJob(job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.Status = JobPending
	job.CreatedAt = time.Now().UnixNano()

	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if err := s.setArtifact(jobPrefix, job.ID[:], job); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), jobQueuePrefix)
	if err := wTx.Set(job.queueKey(), job.ID[:]); err != nil {
		wTx.Discard()
		return fmt.Errorf("queue job: %w", err)
	}
	return wTx.Commit()
}

// Job returns the job with the id provided or ErrNotFound.
func (s *Storage) Job(id uuid.UUID) (*Job, error) {
	job := &Job{}
	if err := s.getArtifact(jobPrefix, id[:], job); err != nil {
		return nil, err
	}
	return job, nil
}

// NextJob returns the oldest non-reserved job, reserves it and marks it as
// proving. It returns the job and its queue key, which must be passed to
// MarkJobDone. If there are no jobs available, returns ErrNoMoreElements.
func (s *Storage) NextJob() (*Job, []byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	pr := prefixeddb.NewPrefixedReader(s.db, jobQueuePrefix)
	var chosenKey, chosenID []byte
	if err := pr.Iterate(nil, func(k, v []byte) bool {
		if s.isReserved(jobReservationPrefix, k) {
			return true
		}
		// copy, the iterator reuses its buffers
		chosenKey = append([]byte{}, k...)
		chosenID = append([]byte{}, v...)
		return false
	}); err != nil {
		return nil, nil, fmt.Errorf("iterate jobs: %w", err)
	}
	if chosenKey == nil {
		return nil, nil, ErrNoMoreElements
	}
	id, err := uuid.FromBytes(chosenID)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid queued job id: %w", err)
	}
	job := &Job{}
	if err := s.getArtifact(jobPrefix, id[:], job); err != nil {
		return nil, nil, fmt.Errorf("load job %s: %w", id, err)
	}
	if err := s.setReservation(jobReservationPrefix, chosenKey); err != nil {
		return nil, nil, ErrNoMoreElements
	}
	job.Status = JobProving
	if err := s.setArtifact(jobPrefix, id[:], job); err != nil {
		return nil, nil, fmt.Errorf("update job: %w", err)
	}
	return job, chosenKey, nil
}

// MarkJobDone removes the job from the queue and stores its final state.
// The job payload is dropped.
func (s *Storage) MarkJobDone(queueKey []byte, job *Job) error {
	if !job.Status.Finished() {
		return fmt.Errorf("job %s is not finished: %s", job.ID, job.Status)
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if err := s.deleteArtifact(jobReservationPrefix, queueKey); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), jobQueuePrefix)
	if err := wTx.Delete(queueKey); err != nil {
		wTx.Discard()
		return fmt.Errorf("delete queued job: %w", err)
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("delete queued job: %w", err)
	}
	job.Signature, job.Message = "", ""
	job.FinishedAt = time.Now().UnixNano()
	return s.setArtifact(jobPrefix, job.ID[:], job)
}

// ReleaseReservations puts every reserved job back in the queue. It is meant
// to be called on startup, when no worker can hold a reservation.
func (s *Storage) ReleaseReservations() (int, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var keys [][]byte
	pr := prefixeddb.NewPrefixedReader(s.db, jobReservationPrefix)
	if err := pr.Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte{}, k...))
		return true
	}); err != nil {
		return 0, fmt.Errorf("iterate reservations: %w", err)
	}
	for _, k := range keys {
		if err := s.deleteArtifact(jobReservationPrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
			return 0, fmt.Errorf("delete reservation: %w", err)
		}
	}
	if len(keys) > 0 {
		log.Infow("released job reservations", "count", len(keys))
	}
	return len(keys), nil
}

// CountPendingJobs returns the number of queued jobs, reserved or not.
func (s *Storage) CountPendingJobs() int {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	count := 0
	pr := prefixeddb.NewPrefixedReader(s.db, jobQueuePrefix)
	if err := pr.Iterate(nil, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		log.Warnw("failed to count pending jobs", "error", err.Error())
	}
	return count
}
