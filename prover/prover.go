// Package prover drives the proving of signed vote payloads: it encodes the
// guest input, runs the engine and self-verifies every receipt before
// handing it out.
package prover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/vocdoni/zk-disclosure/guest"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/types"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

var (
	proofsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zkdisclosure",
		Subsystem: "prover",
		Name:      "proofs_total",
		Help:      "Number of proving runs by receipt kind and result",
	}, []string{"kind", "result"})

	provingLatencyMetric = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zkdisclosure",
		Subsystem: "prover",
		Name:      "proving_duration_seconds",
		Help:      "Duration of successful proving runs, self-verification included",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
	}, []string{"kind"})
)

// Vote is a signed vote payload to be proven.
type Vote struct {
	// Signature is the base64 encoded 64-byte secp256k1 signature.
	Signature string `json:"signature"`
	// Message is the signed JSON payload.
	Message string `json:"message"`
	PollID  uint64 `json:"pollId"`
}

// Result is the outcome of proving a single vote of a batch.
type Result struct {
	Receipt *zkvm.Receipt
	Err     error
}

// Pipeline proves votes for a guest program with a proving engine.
type Pipeline struct {
	engine    zkvm.Engine
	program   *zkvm.Program
	programID types.Digest
	opts      zkvm.ProverOpts
}

// New returns a pipeline that proves runs of program with the engine and
// options provided.
func New(engine zkvm.Engine, program *zkvm.Program, opts zkvm.ProverOpts) (*Pipeline, error) {
	if engine == nil {
		return nil, fmt.Errorf("missing proving engine")
	}
	if program == nil || program.Entry == nil {
		return nil, fmt.Errorf("missing guest program")
	}
	return &Pipeline{
		engine:    engine,
		program:   program,
		programID: program.ID(),
		opts:      opts,
	}, nil
}

// ProgramID returns the identity of the program the pipeline proves.
func (p *Pipeline) ProgramID() types.Digest {
	return p.programID
}

// Opts returns the prover options of the pipeline.
func (p *Pipeline) Opts() zkvm.ProverOpts {
	return p.opts
}

// Engine returns the engine used by the pipeline.
func (p *Pipeline) Engine() zkvm.Engine {
	return p.engine
}

// Prove proves the signed message for the poll. The returned receipt has
// already been verified against the program identity. Proving failures
// return types.ErrProving, keeping the guest abort cause, and receipts
// that do not verify return types.ErrReceiptVerification.
func (p *Pipeline) Prove(ctx context.Context, signature, message string, pollID uint64) (*zkvm.Receipt, error) {
	kind := p.opts.Kind.String()
	start := time.Now()
	receipt, err := p.prove(ctx, signature, message, pollID)
	if err != nil {
		proofsMetric.WithLabelValues(kind, "failed").Inc()
		return nil, err
	}
	proofsMetric.WithLabelValues(kind, "succeeded").Inc()
	provingLatencyMetric.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	return receipt, nil
}

func (p *Pipeline) prove(ctx context.Context, signature, message string, pollID uint64) (*zkvm.Receipt, error) {
	input, err := guest.EncodeInput(signature, message, pollID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrProving, err)
	}
	receipt, err := p.engine.Prove(ctx, p.program, input, p.opts)
	if err != nil {
		if errors.Is(err, types.ErrProving) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrProving, err)
	}
	if err := p.engine.Verify(receipt, p.programID); err != nil {
		log.Warnw("self verification of a fresh receipt failed",
			"program", p.programID.String(), "kind", p.opts.Kind.String(), "error", err.Error())
		if errors.Is(err, types.ErrReceiptVerification) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", types.ErrReceiptVerification, err)
	}
	return receipt, nil
}

// ProveBatch proves the votes in parallel with up to workers concurrent
// runs. It returns one result per vote, in the same order. A failed vote
// does not stop the others.
func (p *Pipeline) ProveBatch(ctx context.Context, votes []Vote, workers int) []Result {
	if workers <= 0 {
		workers = 1
	}
	results := make([]Result, len(votes))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, vote := range votes {
		eg.Go(func() error {
			receipt, err := p.Prove(egCtx, vote.Signature, vote.Message, vote.PollID)
			results[i] = Result{Receipt: receipt, Err: err}
			return nil
		})
	}
	// the workers never return errors, they are stored in the results
	_ = eg.Wait()
	return results
}
