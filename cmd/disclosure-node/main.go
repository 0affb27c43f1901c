package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vocdoni/zk-disclosure/api"
	"github.com/vocdoni/zk-disclosure/config"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/service"
	"github.com/vocdoni/zk-disclosure/storage"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

func main() {
	conf, err := config.Load("disclosure-node", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	conf.Apply()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if conf.HasArtifacts() {
		log.Infow("downloading circuit artifacts", "dir", conf.ArtifactsDir)
		if err := service.DownloadArtifacts(ctx, conf.DownloadTimeout, conf.Artifacts()); err != nil {
			log.Fatalf("failed to download circuit artifacts: %v", err)
		}
	}
	pipeline, err := service.NewPipeline(conf)
	if err != nil {
		log.Fatalf("failed to create the proving pipeline: %v", err)
	}
	pub, err := conf.VoterPublicKey()
	if err != nil {
		log.Fatal(err)
	}

	database, err := metadb.New(db.TypePebble, conf.DataDir)
	if err != nil {
		log.Fatalf("failed to open the database: %v", err)
	}
	stg, err := storage.New(database)
	if err != nil {
		log.Fatalf("failed to open the storage: %v", err)
	}
	defer stg.Close()

	prover, err := service.NewProver(stg, pipeline, conf.ProverWorkers)
	if err != nil {
		log.Fatal(err)
	}
	if err := prover.Start(ctx); err != nil {
		log.Fatalf("failed to start the prover service: %v", err)
	}
	defer prover.Stop()

	apiService := service.NewAPI(api.APIConfig{
		Host:         conf.APIHost,
		Port:         conf.APIPort,
		Storage:      stg,
		Pipeline:     pipeline,
		PublicKey:    pub,
		JobCacheSize: conf.JobCacheSize,
		JobCacheTTL:  conf.JobCacheTTL,
	})
	if err := apiService.Start(ctx); err != nil {
		log.Fatalf("failed to start the API service: %v", err)
	}
	defer apiService.Stop()

	log.Infow("disclosure node running",
		"program", pipeline.ProgramID().String(),
		"kind", pipeline.Opts().Kind.String(),
		"pending", stg.CountPendingJobs())
	<-ctx.Done()
	log.Info("shutting down")
}
