package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/ingest"
	"github.com/helixir/paper-catalog-service/internal/observability"
	"github.com/helixir/paper-catalog-service/internal/repository"
	httpserver "github.com/helixir/paper-catalog-service/internal/server/http"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingestion and the weekly counter reset on cron schedules",
	Long: `Schedule keeps running: it starts the category loop on schedule.ingest_cron,
zeroes paper.weekly_count on schedule.weekly_reset_cron and serves /healthz,
/readyz, /metrics and /status. A tick that fires while the previous run is
still going is skipped.`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().Bool("run-now", false, "start one ingestion run immediately (overrides schedule.run_on_start)")

	rootCmd.AddCommand(scheduleCmd)
}

// runner is the part of the pipeline the scheduler drives.
type runner interface {
	Run(ctx context.Context, ro ingest.RunOptions) (*domain.RunSummary, error)
}

// weeklyResetter zeroes the weekly view counters.
type weeklyResetter interface {
	ResetWeeklyCounts(ctx context.Context) (int64, error)
}

// scheduledIngest runs the pipeline for cron ticks and the optional startup
// run. At most one run is in flight.
type scheduledIngest struct {
	ctx    context.Context
	runner runner
	logger zerolog.Logger
	mu     sync.Mutex
}

// Run implements cron.Job.
func (s *scheduledIngest) Run() {
	s.run(domain.TriggerCron)
}

func (s *scheduledIngest) run(trigger string) {
	if !s.mu.TryLock() {
		s.logger.Warn().Str("trigger", trigger).Msg("ingestion already running, skipping")
		return
	}
	defer s.mu.Unlock()

	summary, err := s.runner.Run(s.ctx, ingest.RunOptions{Trigger: trigger})
	if err != nil {
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("scheduled ingestion failed")
		return
	}
	s.logger.Info().
		Str("run_id", summary.RunID).
		Int("written", summary.Written).
		Int("skipped", summary.Skipped).
		Strs("failed_categories", summary.FailedCategories).
		Msg("scheduled ingestion finished")
}

// wait blocks until no run is in flight or ctx ends.
func (s *scheduledIngest) wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		s.mu.Unlock()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// weeklyReset zeroes paper.weekly_count.
func weeklyReset(ctx context.Context, repo weeklyResetter, metrics *observability.Metrics, logger zerolog.Logger) func() {
	return func() {
		n, err := repo.ResetWeeklyCounts(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("weekly count reset failed")
			return
		}
		if metrics != nil {
			metrics.RecordWeeklyReset()
		}
		logger.Info().Int64("papers", n).Msg("weekly counts reset")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// newScheduler registers the ingestion and reset jobs.
func newScheduler(cfg scheduleSpec, job *scheduledIngest, reset func(), logger zerolog.Logger) (*cron.Cron, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))

	ingestJob := cron.NewChain(cron.SkipIfStillRunning(cl)).Then(job)
	if _, err := c.AddJob(cfg.ingest, ingestJob); err != nil {
		return nil, fmt.Errorf("invalid ingest schedule %q: %w", cfg.ingest, err)
	}
	if _, err := c.AddFunc(cfg.weeklyReset, reset); err != nil {
		return nil, fmt.Errorf("invalid weekly reset schedule %q: %w", cfg.weeklyReset, err)
	}
	return c, nil
}

type scheduleSpec struct {
	ingest      string
	weeklyReset string
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cmd, "schedule")
	if err != nil {
		return err
	}
	defer a.close()

	lock, err := a.lock(ctx)
	if err != nil {
		return err
	}
	defer a.unlock(lock)

	pipeline, publisher, err := a.pipeline()
	if err != nil {
		return err
	}
	defer a.closePublisher(publisher)

	job := &scheduledIngest{ctx: ctx, runner: pipeline, logger: a.logger}
	reset := weeklyReset(ctx, repository.NewPgCatalogRepository(a.db), a.metrics, a.logger)
	scheduler, err := newScheduler(scheduleSpec{
		ingest:      a.cfg.Schedule.IngestCron,
		weeklyReset: a.cfg.Schedule.WeeklyResetCron,
	}, job, reset, a.logger)
	if err != nil {
		return err
	}

	srv := httpserver.NewServer(httpserver.Config{
		Address:         a.cfg.Server.Address(),
		MetricsPath:     a.cfg.Metrics.Path,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		AllowedOrigins:  a.cfg.Server.AllowedOrigins,
	}, a.db, pipeline, a.logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	scheduler.Start()
	a.logger.Info().
		Str("ingest_cron", a.cfg.Schedule.IngestCron).
		Str("weekly_reset_cron", a.cfg.Schedule.WeeklyResetCron).
		Str("address", a.cfg.Server.Address()).
		Msg("scheduler started")

	runNow := a.cfg.Schedule.RunOnStart
	if cmd.Flags().Changed("run-now") {
		runNow, _ = cmd.Flags().GetBool("run-now")
	}
	if runNow {
		go job.run(domain.TriggerStartup)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutdown signal received")
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("ops server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("ops server shutdown failed")
	}

	// Running jobs see the cancelled command context and stop between statements.
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
	}
	if !job.wait(shutdownCtx) {
		a.logger.Warn().Msg("timed out waiting for running ingestion")
	}

	a.logger.Info().Msg("scheduler stopped")
	return runErr
}
