package ingest

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/papersources/openalex"
	"github.com/helixir/paper-catalog-service/internal/repository"
)

// AuthorSource looks up author profiles and their works.
type AuthorSource interface {
	Author(ctx context.Context, id string) (*openalex.AuthorProfile, error)
	AuthorWorks(ctx context.Context, id string) ([]openalex.Work, error)
}

// Enricher fills an author's citation total and main topics.
type Enricher struct {
	source AuthorSource
	repo   repository.CatalogRepository
	logger zerolog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(source AuthorSource, repo repository.CatalogRepository, logger zerolog.Logger) *Enricher {
	return &Enricher{
		source: source,
		repo:   repo,
		logger: logger.With().Str("component", "enricher").Logger(),
	}
}

// Enrich fetches the author's profile and first page of works, then stores
// the citation total and the three concepts with the highest summed score.
func (e *Enricher) Enrich(ctx context.Context, ref domain.AuthorRef) error {
	key := MarkerAuthor + ref.AlexID

	profile, err := e.source.Author(ctx, key)
	if err != nil {
		return fmt.Errorf("fetch author %s: %w", key, err)
	}

	works, err := e.source.AuthorWorks(ctx, key)
	if err != nil {
		return fmt.Errorf("fetch works of author %s: %w", key, err)
	}

	topics := TopTopics(works)
	if err := e.repo.UpdateAuthorEnrichment(ctx, ref.ID, profile.CitedByCount, topics); err != nil {
		return err
	}

	e.logger.Debug().
		Str("alex_author_id", ref.AlexID).
		Int("citation_total", profile.CitedByCount).
		Int("works", len(works)).
		Msg("author enriched")
	return nil
}

// TopTopics sums concept scores by display name across works and returns the
// three best names, highest first. Equal scores are ordered by name.
func TopTopics(works []openalex.Work) [3]*string {
	scores := map[string]float64{}
	for _, w := range works {
		for _, c := range w.Concepts {
			if c.DisplayName == "" {
				continue
			}
			scores[c.DisplayName] += c.Score
		}
	}

	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if scores[names[i]] != scores[names[j]] {
			return scores[names[i]] > scores[names[j]]
		}
		return names[i] < names[j]
	})

	var out [3]*string
	for i := 0; i < len(out) && i < len(names); i++ {
		name := names[i]
		out[i] = &name
	}
	return out
}
