package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/events"
	"github.com/helixir/paper-catalog-service/internal/observability"
	"github.com/helixir/paper-catalog-service/internal/repository"
)

// Writer stores normalized works in dependency order:
// category and institution, authors, paper, abstract and year citations, then
// author links. Each statement commits on its own; a failure leaves earlier
// rows in place and a retry converges through the upserts.
type Writer struct {
	repo      repository.CatalogRepository
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewWriter creates a Writer. A nil publisher disables events and a nil
// metrics skips recording.
func NewWriter(repo repository.CatalogRepository, publisher events.Publisher, metrics *observability.Metrics, logger zerolog.Logger) *Writer {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Writer{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With().Str("component", "writer").Logger(),
	}
}

// Write upserts every row of nw and publishes a paper event when the paper
// row was created.
func (w *Writer) Write(ctx context.Context, nw *NormalizedWork) (domain.WriteResult, error) {
	result := domain.WriteResult{Rows: domain.Tally{}}
	logger := observability.WithWorkContext(observability.LoggerFromContext(ctx, w.logger), nw.AlexPaperID, nw.Year)

	var categoryID *int64
	if nw.Category != nil {
		res, err := w.repo.UpsertCategory(ctx, &domain.Category{Name: nw.Category.Name, AlexID: nw.Category.AlexID})
		if err != nil {
			return result, err
		}
		w.count(&result, domain.TableCategory, res.Inserted)
		categoryID = &res.ID
	}

	var institutionID *int64
	if nw.Institution != nil {
		res, err := w.repo.UpsertInstitution(ctx, &domain.Institution{
			Name:        nw.Institution.Name,
			CountryCode: nw.Institution.CountryCode,
			AlexID:      nw.Institution.AlexID,
		})
		if err != nil {
			return result, err
		}
		w.count(&result, domain.TableInstitution, res.Inserted)
		institutionID = &res.ID
	}

	for i, na := range nw.Authors {
		author := &domain.Author{Name: na.Name, AlexID: na.AlexID}
		// The paper institution is the first author's first affiliation.
		if i == 0 {
			author.InstitutionID = institutionID
		}
		res, err := w.repo.UpsertAuthor(ctx, author)
		if err != nil {
			return result, err
		}
		w.count(&result, domain.TableAuthor, res.Inserted)
		result.Authors = append(result.Authors, domain.AuthorRef{ID: res.ID, AlexID: na.AlexID})
	}

	paper := &domain.Paper{
		Title:            nw.Title,
		CategoryID:       categoryID,
		InstitutionID:    institutionID,
		Citation:         nw.Citation,
		OpenAccess:       nw.OpenAccess,
		Locations:        nw.Locations,
		AnnouncementDate: nw.AnnouncementDate,
		Submit:           nw.Submit,
		AlexID:           nw.AlexPaperID,
	}
	res, err := w.repo.UpsertPaper(ctx, paper)
	if err != nil {
		return result, err
	}
	w.count(&result, domain.TablePaper, res.Inserted)
	result.PaperID = res.ID
	result.PaperCreated = res.Inserted

	inserted, err := w.repo.UpsertAbstract(ctx, &domain.Abstract{PaperID: res.ID, Context: nw.Abstract})
	if err != nil {
		return result, err
	}
	w.count(&result, domain.TableAbstract, inserted)

	inserted, err = w.repo.UpsertYearCitation(ctx, &domain.YearCitation{PaperID: res.ID, Counts: nw.YearCitations})
	if err != nil {
		return result, err
	}
	w.count(&result, domain.TableYearCitation, inserted)

	for _, ref := range result.Authors {
		linked, err := w.repo.LinkAuthorPaper(ctx, domain.AuthorPaper{PaperID: res.ID, AuthorID: ref.ID})
		if err != nil {
			return result, err
		}
		w.count(&result, domain.TableAuthorPaper, linked)
	}

	if result.PaperCreated {
		w.publish(ctx, logger, domain.PaperCreatedEvent{ID: res.ID, Title: nw.Title, AlexPaperID: nw.AlexPaperID})
	}

	logger.Debug().
		Int64("paper_id", res.ID).
		Bool("created", res.Inserted).
		Int("authors", len(result.Authors)).
		Msg("work written")

	return result, nil
}

func (w *Writer) count(result *domain.WriteResult, table string, inserted bool) {
	result.Rows.Add(table, inserted)
	if w.metrics != nil {
		w.metrics.RecordRowWritten(table, inserted)
	}
}

// publish never fails the write.
func (w *Writer) publish(ctx context.Context, logger zerolog.Logger, event domain.PaperCreatedEvent) {
	err := w.publisher.PublishPaperCreated(ctx, event)
	if w.metrics != nil {
		w.metrics.RecordEventPublished(err == nil)
	}
	if err != nil {
		logger.Warn().Err(err).Int64("paper_id", event.ID).Msg("failed to publish paper event")
	}
}
