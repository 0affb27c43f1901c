package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/processor"
	"github.com/vocdoni/zk-disclosure/prover"
	"github.com/vocdoni/zk-disclosure/storage"
)

// ProverService represents a service that proves the queued votes in
// background.
type ProverService struct {
	processor *processor.Processor
	mu        sync.Mutex
	running   bool
}

// NewProver creates a new ProverService instance with the number of workers
// provided.
func NewProver(stg *storage.Storage, pipeline *prover.Pipeline, workers int) (*ProverService, error) {
	p, err := processor.New(stg, pipeline, workers)
	if err != nil {
		return nil, err
	}
	return &ProverService{processor: p}, nil
}

// Processor returns the underlying job processor.
func (ps *ProverService) Processor() *processor.Processor {
	return ps.processor
}

// Start begins the vote proving service. It returns an error if the service is already running.
func (ps *ProverService) Start(ctx context.Context) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.running {
		return fmt.Errorf("prover service already running")
	}
	if err := ps.processor.Start(ctx); err != nil {
		return err
	}
	ps.running = true
	return nil
}

// Stop halts the vote proving service, waiting for the proofs in progress.
func (ps *ProverService) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.running {
		return
	}
	if err := ps.processor.Stop(); err != nil {
		log.Warnw("prover service stopped", "error", err)
	}
	ps.running = false
}
