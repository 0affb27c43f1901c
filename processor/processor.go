package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vocdoni/zk-disclosure/castvote"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/prover"
	"github.com/vocdoni/zk-disclosure/storage"
)

// DefaultPollInterval is the time a worker waits for new jobs when the queue
// is empty.
const DefaultPollInterval = time.Second

var processedJobsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zkdisclosure",
	Subsystem: "processor",
	Name:      "jobs_total",
	Help:      "Number of prove jobs processed by result",
}, []string{"result"})

// Processor proves the queued vote jobs with a pool of workers and registers
// the resulting vote records in the nullifier registry.
type Processor struct {
	stg          *storage.Storage
	pipeline     *prover.Pipeline
	workers      int
	pollInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a processor running the number of workers provided.
func New(stg *storage.Storage, pipeline *prover.Pipeline, workers int) (*Processor, error) {
	if stg == nil || pipeline == nil {
		return nil, fmt.Errorf("missing storage or prover pipeline")
	}
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		stg:          stg,
		pipeline:     pipeline,
		workers:      workers,
		pollInterval: DefaultPollInterval,
	}, nil
}

// SetPollInterval changes the time workers wait on an empty queue. It must
// be called before Start.
func (p *Processor) SetPollInterval(d time.Duration) {
	p.pollInterval = d
}

// Start launches the workers in background. Jobs left reserved by a
// previous run are queued again first.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return fmt.Errorf("processor already running")
	}
	if _, err := p.stg.ReleaseReservations(); err != nil {
		return fmt.Errorf("failed to release job reservations: %w", err)
	}
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	log.Infow("prover workers started", "workers", p.workers, "program", p.pipeline.ProgramID().String())
	return nil
}

// Stop cancels the workers and waits for them to return. A proof in
// progress runs to completion first.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	p.wg.Wait()
	p.cancel = nil
	return nil
}

func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		job, key, err := p.stg.NextJob()
		if err != nil {
			if !errors.Is(err, storage.ErrNoMoreElements) {
				log.Errorw(err, "failed to get next job")
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
			continue
		}

		log.Debugw("new job to prove", "job", job.ID.String(), "poll", job.PollID, "worker", id)
		startTime := time.Now()
		if err := p.ProcessJob(ctx, job); err != nil {
			log.Warnw("prove job failed", "job", job.ID.String(), "error", err.Error())
		} else {
			log.Debugw("prove job done", "job", job.ID.String(), "took", time.Since(startTime).String())
		}
		if err := p.stg.MarkJobDone(key, job); err != nil {
			log.Errorw(err, "failed to mark job done")
		}
	}
}

// ProcessJob proves the job and registers the vote record. The job status
// is updated with the outcome, and the error returned is also stored in the
// job.
func (p *Processor) ProcessJob(ctx context.Context, job *storage.Job) error {
	err := p.processJob(ctx, job)
	if err != nil {
		job.Status = storage.JobFailed
		job.Error = err.Error()
		processedJobsMetric.WithLabelValues("failed").Inc()
		return err
	}
	job.Status = storage.JobDone
	processedJobsMetric.WithLabelValues("done").Inc()
	return nil
}

func (p *Processor) processJob(ctx context.Context, job *storage.Job) error {
	res, err := castvote.Prove(ctx, p.pipeline, job.Signature, &castvote.Vote{
		Message: job.Message,
		PollID:  job.PollID,
	})
	if err != nil {
		return err
	}
	job.Nullifier = res.Record.Nullifier
	return p.stg.RegisterVote(&storage.VoteRecord{
		Record:    *res.Record,
		Seal:      res.Artifacts.Seal,
		Journal:   res.Receipt.Journal,
		ProgramID: p.pipeline.ProgramID(),
		JobID:     job.ID.String(),
	})
}
