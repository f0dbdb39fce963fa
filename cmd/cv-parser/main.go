package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/joseph-ayodele/cv-parser/constants"
	"github.com/joseph-ayodele/cv-parser/internal/common"
	"github.com/joseph-ayodele/cv-parser/internal/core"
	"github.com/joseph-ayodele/cv-parser/internal/metrics"
	"github.com/joseph-ayodele/cv-parser/internal/pdftext"
	"github.com/joseph-ayodele/cv-parser/internal/queue"
	repo "github.com/joseph-ayodele/cv-parser/internal/repository"
	"github.com/joseph-ayodele/cv-parser/internal/server"
	"github.com/joseph-ayodele/cv-parser/internal/storage"
	"github.com/joseph-ayodele/cv-parser/internal/supabase"
	"github.com/joseph-ayodele/cv-parser/internal/worker"
)

func main() {
	// a missing .env is fine; real deployments use the environment
	_ = godotenv.Load()

	cfg, err := common.LoadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := common.NewLogger(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, closeStore, err := openDocumentStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up document store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	extractor := pdftext.NewExtractor(pdftext.Config{
		Engine:    cfg.Extract.Engine,
		Pdftotext: cfg.Extract.Pdftotext,
		MaxPages:  cfg.Extract.MaxPages,
	}, logger)
	processor := core.NewProcessor(logger, store, extractor, m)

	q, err := queue.NewRedisQueue(ctx, queue.Options{
		URL:         cfg.Queue.RedisURL,
		Name:        cfg.Queue.Name,
		Prefix:      cfg.Queue.Prefix,
		ConsumerID:  cfg.Queue.ConsumerID,
		PollTimeout: cfg.Queue.PollTimeout,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Backoff:     cfg.Queue.Backoff,
		MaxBackoff:  cfg.Queue.MaxBackoff,
		ResultTTL:   cfg.Queue.ResultTTL,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to queue", "error", err, "queue", cfg.Queue.Name)
		os.Exit(1)
	}
	if n, err := q.RecoverStale(ctx); err != nil {
		logger.Warn("failed to recover stale jobs", "error", err)
	} else if n > 0 {
		logger.Info("recovered stale jobs", "count", n)
	}

	health := server.NewHealth()
	srv, err := server.New(cfg.Server.HTTPAddr, cfg.Server.GRPCHealthAddr, health, reg, logger)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		_ = q.Close()
		os.Exit(1)
	}
	srv.Start()

	loop := worker.NewLoop(q, processor, logger,
		worker.WithConcurrency(cfg.Worker.Concurrency),
		worker.WithJobTimeout(cfg.Worker.JobTimeout),
		worker.WithOnStateChange(health.OnStateChange),
		worker.WithMetrics(m),
	)

	logger.Info("cv-parser listening", "queue", cfg.Queue.Name, "object_store", cfg.ObjectStore, "record_store", cfg.RecordStore)
	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(ctx) }()

	<-ctx.Done()
	logger.Info("shutting down...")

	// The notifier stays registered until main returns, so a second signal
	// cannot kill the process while jobs are still running.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	done, err := drain(runErr, sigs, cfg.Worker.ShutdownTimeout, logger)
	if !done {
		logger.Error("shutdown timed out with jobs in flight", "in_flight", loop.InFlight())
		os.Exit(1)
	}
	if err != nil {
		logger.Error("worker stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}

// openDocumentStore builds the download/update pair selected by OBJECT_STORE
// and RECORD_STORE. The returned func releases whatever was opened.
func openDocumentStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (core.DocumentStore, func(), error) {
	var sb *supabase.Client
	if cfg.ObjectStore == constants.ObjectStoreSupabase || cfg.RecordStore == constants.RecordStoreSupabase {
		c, err := supabase.NewClient(supabase.Config{
			URL:            cfg.Supabase.URL,
			ServiceRoleKey: cfg.Supabase.ServiceRoleKey,
			Bucket:         cfg.Supabase.Bucket,
			Table:          cfg.Database.CandidatesTable,
			Timeout:        cfg.Supabase.Timeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := c.Ping(pingCtx); err != nil {
			// reachability can recover; jobs fail as transient until it does
			logger.Warn("supabase not reachable at startup", "error", err)
		}
		cancel()
		sb = c
	}
	if cfg.ObjectStore == constants.ObjectStoreSupabase && cfg.RecordStore == constants.RecordStoreSupabase {
		return sb, func() {}, nil
	}

	var objects storage.ObjectStore = sb
	if cfg.ObjectStore == constants.ObjectStoreS3 {
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		objects = s3
	}

	switch cfg.RecordStore {
	case constants.RecordStorePostgres:
		drv, pool, err := repo.Open(ctx, repo.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.HealthCheck(ctx, pool, 5*time.Second, logger); err != nil {
			repo.Close(drv, pool, logger)
			return nil, nil, err
		}
		records := repo.NewCandidateRepository(drv, cfg.Database.CandidatesTable, logger)
		return core.NewDocumentStore(objects, records), func() { repo.Close(drv, pool, logger) }, nil

	case constants.RecordStoreSQLite:
		drv, err := repo.OpenSQLite(ctx, cfg.Database.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		records := repo.NewCandidateRepository(drv, cfg.Database.CandidatesTable, logger)
		return core.NewDocumentStore(objects, records), func() { repo.Close(drv, nil, logger) }, nil

	default:
		return core.NewDocumentStore(objects, sb), func() {}, nil
	}
}
