package repository

import (
	"context"
	"time"

	"github.com/helixir/paper-catalog-service/internal/domain"
)

// ExternalAuthor is an author row whose institution is named by external id.
type ExternalAuthor struct {
	Name              string
	AlexID            string
	InstitutionAlexID *string
	CitationTotal     *int
	Topics            [3]*string
}

// ExternalPaper is a paper row whose category and institution are named by
// external id.
type ExternalPaper struct {
	AlexID            string
	Title             string
	CategoryAlexID    *string
	InstitutionAlexID *string
	Citation          int
	OpenAccess        bool
	Locations         *string
	AnnouncementDate  *time.Time
	Submit            *string
}

// SnapshotRepository reads whole tables for export and writes rows whose foreign
// keys are external ids, resolving them on the target with subselects. A
// reference that resolves to no row fails the statement with a not-null
// violation (see IsUnresolvedReference).
type SnapshotRepository interface {
	// TableExists reports whether table is present in the connected database.
	TableExists(ctx context.Context, table string) (bool, error)
	// CountRows returns the number of rows in table.
	CountRows(ctx context.Context, table string) (int64, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListInstitutions(ctx context.Context) ([]domain.Institution, error)
	ListAuthors(ctx context.Context) ([]domain.Author, error)
	ListPapers(ctx context.Context) ([]domain.Paper, error)
	ListAbstracts(ctx context.Context) ([]domain.Abstract, error)
	ListYearCitations(ctx context.Context) ([]domain.YearCitation, error)
	ListAuthorPapers(ctx context.Context) ([]domain.AuthorPaper, error)
	ListGuests(ctx context.Context) ([]domain.Guest, error)
	ListGuestFavorites(ctx context.Context) ([]domain.GuestFavorite, error)
	ListGuestCategoryCounts(ctx context.Context) ([]domain.GuestCategoryCount, error)

	ImportAuthor(ctx context.Context, a ExternalAuthor) (domain.UpsertResult, error)
	ImportPaper(ctx context.Context, p ExternalPaper) (domain.UpsertResult, error)
	ImportAbstract(ctx context.Context, alexPaperID string, text *string) (bool, error)
	ImportYearCitation(ctx context.Context, alexPaperID string, counts [3]int) (bool, error)
	ImportAuthorPaper(ctx context.Context, alexPaperID, alexAuthorID string) (bool, error)
	UpsertGuest(ctx context.Context, g *domain.Guest) (domain.UpsertResult, error)
	ImportGuestFavorite(ctx context.Context, guestName, alexPaperID string) (bool, error)
	ImportGuestCategoryCount(ctx context.Context, guestName, alexCategoryID string, count int) (bool, error)
}
