package service

import (
	"context"
	"time"

	"github.com/vocdoni/zk-disclosure/circuits"
	"golang.org/x/sync/errgroup"
)

// DownloadArtifacts downloads the circuit artifacts of every set concurrently.
func DownloadArtifacts(ctx context.Context, timeout time.Duration, artifacts ...*circuits.CircuitArtifacts) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, a := range artifacts {
		if a == nil {
			continue
		}
		g.Go(func() error {
			return a.DownloadAll(ctx)
		})
	}
	return g.Wait()
}
