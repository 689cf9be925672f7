package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-catalog-service/internal/config"
	"github.com/helixir/paper-catalog-service/internal/database"
	"github.com/helixir/paper-catalog-service/internal/events"
	"github.com/helixir/paper-catalog-service/internal/ingest"
	"github.com/helixir/paper-catalog-service/internal/observability"
	"github.com/helixir/paper-catalog-service/internal/papersources/openalex"
	"github.com/helixir/paper-catalog-service/internal/repository"
	"github.com/helixir/paper-catalog-service/internal/snapshot"
)

// app holds the dependencies shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics
	db      *database.DB
}

// newApp loads configuration, sets up logging and metrics, and connects to
// the database.
func newApp(ctx context.Context, cmd *cobra.Command, component string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", component).Logger()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	db, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Debug().Msg("database connection established")

	return &app{cfg: cfg, logger: logger, metrics: metrics, db: db}, nil
}

func (a *app) close() {
	a.db.Close()
}

// lock takes the single-writer advisory lock. A held lock is reported as an
// error naming the key.
func (a *app) lock(ctx context.Context) (*database.AdvisoryLock, error) {
	lock, err := a.db.TryAdvisoryLock(ctx, a.cfg.Ingest.LockKey)
	if err != nil {
		if database.IsLockHeld(err) {
			return nil, fmt.Errorf("another ingestion process holds lock %d: %w", a.cfg.Ingest.LockKey, err)
		}
		return nil, err
	}
	a.logger.Debug().Int64("lock_key", lock.Key()).Msg("advisory lock acquired")
	return lock, nil
}

func (a *app) unlock(lock *database.AdvisoryLock) {
	// The run context may already be cancelled; unlock on a fresh one.
	if err := lock.Release(context.Background()); err != nil {
		a.logger.Warn().Err(err).Msg("failed to release advisory lock")
	}
}

// openAlexClient builds the source client from configuration.
func (a *app) openAlexClient() *openalex.Client {
	oa := a.cfg.OpenAlex
	client := openalex.New(openalex.Config{
		BaseURL:    oa.BaseURL,
		Email:      oa.Email,
		APIKey:     oa.APIKey,
		Timeout:    oa.Timeout,
		RateLimit:  oa.RateLimit,
		BurstSize:  oa.BurstSize,
		MaxRetries: oa.MaxRetries,
		PageSize:   oa.PageSize,
		PageDelay:  oa.PageDelay,
		WorksSort:  a.cfg.Ingest.Sort,
	})
	if a.metrics != nil {
		client = client.WithMetrics(a.metrics)
	}
	return client
}

// pipeline wires the ingestion pipeline. The returned publisher must be
// closed by the caller.
func (a *app) pipeline() (*ingest.Pipeline, events.Publisher, error) {
	publisher, err := events.New(a.cfg.Kafka, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create event publisher: %w", err)
	}

	source := a.openAlexClient()
	catalog := repository.NewPgCatalogRepository(a.db)

	var enricher *ingest.Enricher
	if a.cfg.Ingest.EnrichAuthors {
		enricher = ingest.NewEnricher(source, catalog, a.logger)
	}

	p := ingest.NewPipeline(
		source,
		ingest.NewNormalizer(a.cfg.OpenAlex.StrictIDPrefix),
		ingest.NewWriter(catalog, publisher, a.metrics, a.logger),
		enricher,
		ingest.Options{
			MaxRecords:    a.cfg.Ingest.MaxRecords,
			PerBucket:     a.cfg.Ingest.PerBucket,
			WorkDelay:     a.cfg.Ingest.WorkDelay,
			Categories:    a.cfg.Ingest.Categories,
			EnrichAuthors: a.cfg.Ingest.EnrichAuthors,
		},
		a.metrics,
		a.logger,
	)
	return p, publisher, nil
}

func (a *app) closePublisher(publisher events.Publisher) {
	if err := publisher.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close event publisher")
	}
}

// shipper builds the S3 snapshot shipper.
func (a *app) shipper(ctx context.Context) (*snapshot.Shipper, error) {
	client, err := snapshot.NewS3Client(ctx, a.cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}
	return snapshot.NewShipper(client, a.cfg.S3, a.logger), nil
}
