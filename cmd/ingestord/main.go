// Command ingestord is the daemon that serves the GitHub webhook receiver
// and runs the ingestion/processing pipeline, wiring pkg/config,
// pkg/storage/postgres, pkg/tokenpool, pkg/ciprovider/github,
// pkg/orchestrator, and pkg/webhook together the way boskos/cmd/boskos's
// main wires ranch.Ranch, handlers.NewBoskosHandler, and an http.Server.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	githubadapter "github.com/devci-tools/buildfeatures/pkg/ciprovider/github"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/config"
	"github.com/devci-tools/buildfeatures/pkg/gitbackend"
	"github.com/devci-tools/buildfeatures/pkg/logging"
	"github.com/devci-tools/buildfeatures/pkg/metrics"
	"github.com/devci-tools/buildfeatures/pkg/orchestrator"
	"github.com/devci-tools/buildfeatures/pkg/orchestrator/inprocpool"
	"github.com/devci-tools/buildfeatures/pkg/resource"
	"github.com/devci-tools/buildfeatures/pkg/scanintegration"
	"github.com/devci-tools/buildfeatures/pkg/storage"
	"github.com/devci-tools/buildfeatures/pkg/storage/memory"
	"github.com/devci-tools/buildfeatures/pkg/storage/postgres"
	"github.com/devci-tools/buildfeatures/pkg/tokenpool"
	"github.com/devci-tools/buildfeatures/pkg/webhook"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	addr        = flag.String("addr", ":8080", "address to serve the webhook receiver and metrics on")
	concurrency = flag.Int("concurrency", 8, "in-process chord dispatcher concurrency")
	inMemory    = flag.Bool("in-memory-store", false, "use the in-memory store instead of postgres (local/dev only)")
)

func main() {
	flag.Parse()

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		logrus.WithError(err).Fatal("ingestord: failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("ingestord: invalid configuration")
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat)
	metrics.Register()

	var store storage.Store
	if *inMemory {
		store = memory.New()
	} else {
		pg, err := postgres.Open(cfg.DSN())
		if err != nil {
			logrus.WithError(err).Fatal("ingestord: failed to open database")
		}
		if err := pg.Migrate(context.Background()); err != nil {
			logrus.WithError(err).Fatal("ingestord: failed to run migrations")
		}
		defer pg.Close()
		store = pg
	}

	redisPool := &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", cfg.RedisAddr)
		},
		MaxIdle:     16,
		IdleTimeout: 5 * time.Minute,
	}
	defer redisPool.Close()

	pool := tokenpool.New(redisPool, string(common.ProviderGitHubActions))
	if cfg.GitHubTokens != "" {
		if err := pool.Seed(strings.Split(cfg.GitHubTokens, ",")); err != nil {
			logrus.WithError(err).Warning("ingestord: failed to seed github token pool")
		}
	}
	githubAdapter := githubadapter.NewFromPool(pool, nil)

	locks := resource.NewLockManager(redisPool)
	layout := resource.Layout{BaseDir: cfg.ReposDir}
	acquirer := resource.NewAcquirer(layout, &gitbackend.Shell{}, locks, nil)

	dispatcher := inprocpool.New(*concurrency)

	svc := &orchestrator.Service{
		Store:          store,
		Adapters:       map[common.ProviderKind]ciprovider.Adapter{common.ProviderGitHubActions: githubAdapter},
		Acquirer:       acquirer,
		Dispatcher:     dispatcher,
		BuildsPerPage:  cfg.IngestionBuildsPerPage,
		BuildsPerBatch: cfg.ProcessingBuildsPerBatch,
	}

	// Scan-integration dispatch is entirely optional: a deployment with
	// neither SONAR_HOST_URL nor TRIVY_RESULTS_DIR set runs the pipeline
	// exactly as it did before the scan subsystem existed.
	var tools []scanintegration.Tool
	if cfg.SonarHostURL != "" {
		tools = append(tools, &scanintegration.SonarQubeTool{
			HostURL:          cfg.SonarHostURL,
			Token:            cfg.SonarToken,
			ProjectKeyPrefix: cfg.SonarProjectKey,
		})
	}
	if cfg.TrivyResultsDir != "" {
		tools = append(tools, &scanintegration.TrivyTool{ResultsDir: cfg.TrivyResultsDir})
	}
	if len(tools) > 0 {
		svc.Scanner = &scanintegration.Dispatcher{
			Store:           scanintegration.NewMemoryStore(),
			Tools:           tools,
			Resolver:        orchestrator.NewScanResolver(svc),
			BuildsPerQuery:  cfg.ScanBuildsPerQuery,
			CommitsPerBatch: cfg.ScanCommitsPerBatch,
			BatchDelay:      time.Duration(cfg.ScanBatchDelaySeconds) * time.Second,
		}
	}

	// App-token minting (signing an App JWT and calling the installation
	// access-token endpoint) isn't wired to a live credential source here;
	// the cache still serves its webhook role of invalidating stale
	// entries, it just never gets to mint a fresh one in this deployment.
	tokens := resource.NewAppTokenCache(nil, 5*time.Minute)

	webhookServer := webhook.NewServer(webhook.Config{
		Secret:     []byte(cfg.GitHubWebhookSecret),
		Store:      store,
		Adapter:    githubAdapter,
		Dispatcher: svc,
		Tokens:     tokens,
	})

	mux := http.NewServeMux()
	mux.Handle("/webhooks/github", webhookServer.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: *addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logrus.WithField("addr", *addr).Info("ingestord: serving")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("ingestord: server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("ingestord: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warning("ingestord: graceful shutdown failed")
	}
}
