// Package ingest turns OpenAlex works into catalog rows.
//
// A run walks the level-1 concepts, pages through each concept's most cited
// works, keeps the top works of every publication-year bucket, normalizes
// them and writes them through the Writer. Everything happens on the calling
// goroutine; the fixed sleeps between pages and between works keep the run
// within the source's polite rate.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/observability"
	"github.com/helixir/paper-catalog-service/internal/papersources"
	"github.com/helixir/paper-catalog-service/internal/papersources/openalex"
)

// Pipeline defaults.
const (
	DefaultMaxRecords = 1000
	DefaultWorkDelay  = 100 * time.Millisecond
)

// Source is the OpenAlex surface a run needs. *openalex.Client implements it.
type Source interface {
	AuthorSource
	Level1Concepts() *openalex.Paginator[openalex.Concept]
	WorksByConcept(conceptID string, maxRecords int) *openalex.Paginator[openalex.Work]
	Work(ctx context.Context, id string) (*openalex.Work, error)
}

var _ Source = (*openalex.Client)(nil)

// Options configures a Pipeline.
type Options struct {
	// MaxRecords caps the works fetched per category.
	MaxRecords int
	// PerBucket is how many works are kept per year bucket.
	PerBucket int
	// WorkDelay is slept between consecutive work writes.
	WorkDelay time.Duration
	// Categories restricts runs to these concept ids. Empty means every level-1 concept.
	Categories []string
	// EnrichAuthors fetches author profiles after each category.
	EnrichAuthors bool
}

func (o *Options) applyDefaults() {
	if o.MaxRecords <= 0 {
		o.MaxRecords = DefaultMaxRecords
	}
	if o.PerBucket <= 0 {
		o.PerBucket = DefaultPerBucket
	}
	if o.WorkDelay < 0 {
		o.WorkDelay = 0
	}
}

// RunOptions configures one run.
type RunOptions struct {
	// Trigger records who started the run (domain.TriggerCLI, TriggerCron, ...).
	Trigger string
	// Categories overrides Options.Categories for this run.
	Categories []string
}

// category is a concept selected for a run.
type category struct {
	alexID string
	name   string
}

// Pipeline runs ingestion.
type Pipeline struct {
	source     Source
	normalizer *Normalizer
	writer     *Writer
	enricher   *Enricher
	opts       Options
	metrics    *observability.Metrics
	logger     zerolog.Logger

	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
	newRunID func() string

	mu      sync.RWMutex
	lastRun *domain.RunSummary
}

// NewPipeline creates a Pipeline. enricher may be nil; it is only used when
// opts.EnrichAuthors is set.
func NewPipeline(
	source Source,
	normalizer *Normalizer,
	writer *Writer,
	enricher *Enricher,
	opts Options,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{
		source:     source,
		normalizer: normalizer,
		writer:     writer,
		enricher:   enricher,
		opts:       opts,
		metrics:    metrics,
		logger:     logger.With().Str("component", "pipeline").Logger(),
		sleep:      papersources.Sleep,
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
}

// LastRun returns the summary of the most recent finished run, or nil.
func (p *Pipeline) LastRun() *domain.RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRun
}

// Run ingests every selected category. A category whose listing fails is
// recorded and skipped; records that cannot be normalized or written are
// skipped with a reason. Run only returns an error when the category list
// cannot be obtained or ctx ends, and even then the partial summary is returned.
func (p *Pipeline) Run(ctx context.Context, ro RunOptions) (*domain.RunSummary, error) {
	if ro.Trigger == "" {
		ro.Trigger = domain.TriggerCLI
	}

	summary := domain.NewRunSummary(p.newRunID(), ro.Trigger, p.now().UTC())
	ctx = observability.WithRun(ctx, summary.RunID, summary.Trigger)
	logger := observability.WithRunContext(p.logger, summary.RunID, summary.Trigger)

	if p.metrics != nil {
		p.metrics.RecordRunStarted()
	}
	logger.Info().Msg("ingestion run started")

	categories, err := p.categories(ctx, ro)
	if err != nil {
		return p.finish(logger, summary, fmt.Errorf("list categories: %w", err))
	}
	logger.Info().Int("categories", len(categories)).Msg("categories selected")

	enriched := map[string]bool{}
	for _, cat := range categories {
		if err := ctx.Err(); err != nil {
			return p.finish(logger, summary, err)
		}

		cs, err := p.runCategory(ctx, logger, cat, enriched)
		summary.AddCategory(cs)
		if p.metrics != nil {
			p.metrics.RecordCategory(!cs.Failed())
		}
		if err != nil {
			return p.finish(logger, summary, err)
		}
	}

	return p.finish(logger, summary, nil)
}

func (p *Pipeline) finish(logger zerolog.Logger, summary *domain.RunSummary, err error) (*domain.RunSummary, error) {
	summary.FinishedAt = p.now().UTC()
	if err != nil {
		summary.Error = err.Error()
	}

	duration := summary.Duration().Seconds()
	finished := float64(summary.FinishedAt.Unix())
	if p.metrics != nil {
		if err != nil {
			p.metrics.RecordRunFailed(duration, finished)
		} else {
			p.metrics.RecordRunCompleted(duration, finished)
		}
	}

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Int("categories", len(summary.Categories)).
		Int("failed_categories", len(summary.FailedCategories)).
		Int("written", summary.Written).
		Int("skipped", summary.Skipped).
		Interface("skip_reasons", summary.SkipReasons).
		Dur("duration", summary.Duration()).
		Msg("ingestion run finished")

	p.mu.Lock()
	p.lastRun = summary
	p.mu.Unlock()

	return summary, err
}

func (p *Pipeline) categories(ctx context.Context, ro RunOptions) ([]category, error) {
	ids := ro.Categories
	if len(ids) == 0 {
		ids = p.opts.Categories
	}
	if len(ids) > 0 {
		out := make([]category, 0, len(ids))
		for _, id := range ids {
			out = append(out, category{alexID: bareConceptID(id)})
		}
		return out, nil
	}

	var out []category
	concepts := p.source.Level1Concepts()
	for concepts.Next(ctx) {
		c := concepts.Record()
		id, err := p.normalizer.extract(c.ID, MarkerConcept)
		if err != nil {
			p.logger.Warn().Str("concept", c.ID).Err(err).Msg("skipping concept with unusable id")
			continue
		}
		out = append(out, category{alexID: id, name: c.DisplayName})
	}
	if err := concepts.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// bareConceptID accepts "C41008148", an OpenAlex URL or a bare id.
func bareConceptID(id string) string {
	if bare, err := ExtractIDStrict(id, MarkerConcept); err == nil {
		return bare
	}
	return id
}

// runCategory returns an error only when ctx ended; any other failure is
// recorded on the summary.
func (p *Pipeline) runCategory(ctx context.Context, runLogger zerolog.Logger, cat category, enriched map[string]bool) (*domain.CategorySummary, error) {
	start := p.now()
	cs := domain.NewCategorySummary(cat.alexID, cat.name)
	defer func() { cs.Duration = p.now().Sub(start) }()

	ctx = observability.WithCategory(ctx, cat.alexID)
	logger := observability.WithCategoryContext(runLogger, cat.alexID, cat.name)

	var works []openalex.Work
	pages := p.source.WorksByConcept(MarkerConcept+cat.alexID, p.opts.MaxRecords)
	for pages.Next(ctx) {
		works = append(works, pages.Record())
	}
	cs.Fetched = len(works)

	if err := pages.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			cs.Error = ctxErr.Error()
			return cs, ctxErr
		}
		cs.Error = err.Error()
		logger.Warn().Err(err).Int("fetched", cs.Fetched).Msg("category fetch failed, moving on")
		return cs, nil
	}

	sample := SampleByYear(works, p.opts.PerBucket)
	cs.Selected = len(sample.Works)
	if p.metrics != nil {
		p.metrics.RecordWorksFetched(cs.Fetched, cs.Selected)
	}
	logger.Info().
		Int("fetched", cs.Fetched).
		Int("selected", cs.Selected).
		Ints("bucket_candidates", sample.Candidates[:]).
		Ints("bucket_selected", sample.Selected[:]).
		Int("undated", sample.Undated).
		Msg("works sampled")

	var written []domain.AuthorRef
	for i, work := range sample.Works {
		if i > 0 {
			if err := p.sleep(ctx, p.opts.WorkDelay); err != nil {
				cs.Error = err.Error()
				return cs, err
			}
		}

		result, err := p.ingest(ctx, logger, work, cat.alexID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				cs.Error = ctxErr.Error()
				return cs, ctxErr
			}
			reason := domain.SkipReason(err)
			cs.Skip(reason)
			if p.metrics != nil {
				p.metrics.RecordWorkSkipped(reason)
			}
			logger.Warn().Err(err).Str("work", work.IDString()).Str("reason", reason).Msg("work skipped")
			continue
		}

		cs.Written++
		cs.Rows.Merge(result.Rows)
		written = append(written, result.Authors...)
	}

	if p.opts.EnrichAuthors {
		if err := p.enrich(ctx, logger, written, enriched); err != nil {
			cs.Error = err.Error()
			return cs, err
		}
	}

	logger.Info().
		Int("written", cs.Written).
		Int("skipped", cs.Skipped).
		Msg("category finished")
	return cs, nil
}

func (p *Pipeline) ingest(ctx context.Context, logger zerolog.Logger, work openalex.Work, target string) (domain.WriteResult, error) {
	nw, err := p.normalizer.Normalize(work, target)
	if err != nil {
		return domain.WriteResult{}, err
	}
	if nw.DroppedAuthors > 0 {
		logger.Debug().
			Str("alex_paper_id", nw.AlexPaperID).
			Int("dropped_authors", nw.DroppedAuthors).
			Msg("authorships without usable id dropped")
	}
	return p.writer.Write(ctx, nw)
}

// enrich visits each author once per run. Per-author failures are logged.
func (p *Pipeline) enrich(ctx context.Context, logger zerolog.Logger, refs []domain.AuthorRef, done map[string]bool) error {
	if p.enricher == nil {
		return nil
	}
	for _, ref := range refs {
		if done[ref.AlexID] {
			continue
		}
		done[ref.AlexID] = true

		if err := p.enricher.Enrich(ctx, ref); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn().Err(err).Str("alex_author_id", ref.AlexID).Msg("author enrichment failed")
		}
	}
	return nil
}

// IngestWork fetches and stores a single work by id. The category is the
// work's first level-1 concept.
func (p *Pipeline) IngestWork(ctx context.Context, id string) (domain.WriteResult, error) {
	logger := p.logger.With().Str("work", id).Logger()

	work, err := p.source.Work(ctx, id)
	if err != nil {
		return domain.WriteResult{}, fmt.Errorf("fetch work %s: %w", id, err)
	}

	result, err := p.ingest(ctx, logger, *work, "")
	if err != nil {
		var mre *domain.MalformedRecordError
		if errors.As(err, &mre) && p.metrics != nil {
			p.metrics.RecordWorkSkipped(mre.Reason)
		}
		return result, err
	}

	if p.opts.EnrichAuthors {
		if err := p.enrich(ctx, logger, result.Authors, map[string]bool{}); err != nil {
			return result, err
		}
	}

	logger.Info().
		Int64("paper_id", result.PaperID).
		Bool("created", result.PaperCreated).
		Int("authors", len(result.Authors)).
		Msg("work ingested")
	return result, nil
}
