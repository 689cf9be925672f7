package repository

import (
	"context"

	"github.com/helixir/paper-catalog-service/internal/domain"
)

// CatalogRepository holds the upsert writer's statements. Every upsert is keyed
// by the entity's external id and never overwrites an external or surrogate id.
type CatalogRepository interface {
	// UpsertCategory inserts a category or renames the existing one.
	UpsertCategory(ctx context.Context, c *domain.Category) (domain.UpsertResult, error)

	// UpsertInstitution inserts an institution or refreshes its name and country.
	// A nil external id never conflicts, so such rows are always inserted.
	UpsertInstitution(ctx context.Context, inst *domain.Institution) (domain.UpsertResult, error)

	// UpsertAuthor inserts an author or updates it in place. Nil institution,
	// citation total and topics keep the stored values.
	UpsertAuthor(ctx context.Context, a *domain.Author) (domain.UpsertResult, error)

	// UpdateAuthorEnrichment stores the citation total and main topics of an author.
	UpdateAuthorEnrichment(ctx context.Context, authorID int64, citationTotal int, topics [3]*string) error

	// UpsertPaper inserts a paper or updates its mutable fields. weekly_count is not written.
	UpsertPaper(ctx context.Context, p *domain.Paper) (domain.UpsertResult, error)

	// UpsertAbstract inserts or replaces the abstract of a paper.
	UpsertAbstract(ctx context.Context, a *domain.Abstract) (bool, error)

	// UpsertYearCitation inserts or replaces the recent yearly citations of a paper.
	UpsertYearCitation(ctx context.Context, yc *domain.YearCitation) (bool, error)

	// LinkAuthorPaper links an author to a paper. It reports false when the link existed.
	LinkAuthorPaper(ctx context.Context, link domain.AuthorPaper) (bool, error)

	// ResetWeeklyCounts zeroes paper.weekly_count and returns the rows touched.
	ResetWeeklyCounts(ctx context.Context) (int64, error)
}
