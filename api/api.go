package api

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/bluele/gcache"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/prover"
	"github.com/vocdoni/zk-disclosure/storage"
)

const (
	DefaultJobCacheSize = 1024
	DefaultJobCacheTTL  = 10 * time.Minute
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host     string
	Port     int
	Storage  *storage.Storage
	Pipeline *prover.Pipeline
	// PublicKey is the registered voter key. Votes whose signature does not
	// verify with it are rejected before being queued.
	PublicKey *ecdsa.PublicKey
	// JobCacheSize and JobCacheTTL configure the cache of finished jobs.
	JobCacheSize int
	JobCacheTTL  time.Duration
}

// API type represents the API HTTP server of the disclosure node.
type API struct {
	router    *chi.Mux
	storage   *storage.Storage
	pipeline  *prover.Pipeline
	publicKey *ecdsa.PublicKey
	jobs      gcache.Cache
	host      string
	port      int
	server    *http.Server
	listener  net.Listener
}

// New creates a new API instance with the given configuration. The server is
// not started until Start is called.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage instance")
	}
	if conf.Pipeline == nil || conf.PublicKey == nil {
		return nil, fmt.Errorf("missing prover pipeline or public key")
	}
	if conf.JobCacheSize <= 0 {
		conf.JobCacheSize = DefaultJobCacheSize
	}
	if conf.JobCacheTTL <= 0 {
		conf.JobCacheTTL = DefaultJobCacheTTL
	}
	a := &API{
		storage:   conf.Storage,
		pipeline:  conf.Pipeline,
		publicKey: conf.PublicKey,
		jobs:      gcache.New(conf.JobCacheSize).LRU().Expiration(conf.JobCacheTTL).Build(),
		host:      conf.Host,
		port:      conf.Port,
	}
	a.initRouter()
	return a, nil
}

// Start listens on the configured address and serves the API in background.
func (a *API) Start() error {
	if a.server != nil {
		return fmt.Errorf("API server already running")
	}
	l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", a.host, a.port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	a.listener = l
	a.server = &http.Server{Handler: a.router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Infow("starting API server", "address", l.Addr().String())
		if err := a.server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Errorw(err, "API server failed")
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (a *API) Stop(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown(ctx)
	a.server, a.listener = nil, nil
	return err
}

// Addr returns the address the server listens on, or nil if it is not
// running.
func (a *API) Addr() net.Addr {
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	a.router.Get(InfoEndpoint, a.info)
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST")
	a.router.Post(VotesEndpoint, a.newVote)
	log.Infow("register handler", "endpoint", VerifyVoteEndpoint, "method", "POST")
	a.router.Post(VerifyVoteEndpoint, a.verifyVote)
	log.Infow("register handler", "endpoint", VoteJobEndpoint, "method", "GET")
	a.router.Get(VoteJobEndpoint, a.voteJob)
	log.Infow("register handler", "endpoint", PollVotesEndpoint, "method", "GET")
	a.router.Get(PollVotesEndpoint, a.pollVotes)
	log.Infow("register handler", "endpoint", NullifiersRootEndpoint, "method", "GET")
	a.router.Get(NullifiersRootEndpoint, a.nullifiersRoot)
	log.Infow("register handler", "endpoint", NullifierEndpoint, "method", "GET")
	a.router.Get(NullifierEndpoint, a.nullifier)
	log.Infow("register handler", "endpoint", NullifierProofEndpoint, "method", "GET")
	a.router.Get(NullifierProofEndpoint, a.nullifierProof)
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Handle(MetricsEndpoint, promhttp.Handler())
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}
