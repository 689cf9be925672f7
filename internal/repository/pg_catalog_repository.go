package repository

import (
	"context"
	"fmt"

	"github.com/helixir/paper-catalog-service/internal/domain"
)

var _ CatalogRepository = (*PgCatalogRepository)(nil)

// PgCatalogRepository is a PostgreSQL implementation of CatalogRepository.
type PgCatalogRepository struct {
	db DBTX
}

// NewPgCatalogRepository creates a new PostgreSQL catalog repository.
func NewPgCatalogRepository(db DBTX) *PgCatalogRepository {
	return &PgCatalogRepository{db: db}
}

func (r *PgCatalogRepository) UpsertCategory(ctx context.Context, c *domain.Category) (domain.UpsertResult, error) {
	if c == nil {
		return domain.UpsertResult{}, domain.NewValidationError("category", "category cannot be nil")
	}
	if c.AlexID == "" {
		return domain.UpsertResult{}, domain.NewValidationError("alex_category_id", "external id is required")
	}

	query := `
		INSERT INTO category (category_name, alex_category_id)
		VALUES ($1, $2)
		ON CONFLICT (alex_category_id) DO UPDATE SET
			category_name = EXCLUDED.category_name
		RETURNING category_id, (xmax = 0) AS inserted`

	var res domain.UpsertResult
	if err := r.db.QueryRow(ctx, query, c.Name, c.AlexID).Scan(&res.ID, &res.Inserted); err != nil {
		return domain.UpsertResult{}, writeError(domain.TableCategory, "upsert", err)
	}
	c.ID = res.ID
	return res, nil
}

func (r *PgCatalogRepository) UpsertInstitution(ctx context.Context, inst *domain.Institution) (domain.UpsertResult, error) {
	if inst == nil {
		return domain.UpsertResult{}, domain.NewValidationError("institution", "institution cannot be nil")
	}

	query := `
		INSERT INTO institution (institution_name, country_code, alex_institution_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (alex_institution_id) DO UPDATE SET
			institution_name = EXCLUDED.institution_name,
			country_code = EXCLUDED.country_code
		RETURNING institution_id, (xmax = 0) AS inserted`

	var res domain.UpsertResult
	if err := r.db.QueryRow(ctx, query, inst.Name, inst.CountryCode, inst.AlexID).Scan(&res.ID, &res.Inserted); err != nil {
		return domain.UpsertResult{}, writeError(domain.TableInstitution, "upsert", err)
	}
	inst.ID = res.ID
	return res, nil
}

func (r *PgCatalogRepository) UpsertAuthor(ctx context.Context, a *domain.Author) (domain.UpsertResult, error) {
	if a == nil {
		return domain.UpsertResult{}, domain.NewValidationError("author", "author cannot be nil")
	}
	if a.AlexID == "" {
		return domain.UpsertResult{}, domain.NewValidationError("alex_author_id", "external id is required")
	}

	query := `
		INSERT INTO author (
			author_name, alex_author_id, institution_id, citation_total,
			main_topic_1, main_topic_2, main_topic_3
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (alex_author_id) DO UPDATE SET
			author_name = EXCLUDED.author_name,
			institution_id = COALESCE(EXCLUDED.institution_id, author.institution_id),
			citation_total = COALESCE(EXCLUDED.citation_total, author.citation_total),
			main_topic_1 = COALESCE(EXCLUDED.main_topic_1, author.main_topic_1),
			main_topic_2 = COALESCE(EXCLUDED.main_topic_2, author.main_topic_2),
			main_topic_3 = COALESCE(EXCLUDED.main_topic_3, author.main_topic_3)
		RETURNING author_id, (xmax = 0) AS inserted`

	var res domain.UpsertResult
	err := r.db.QueryRow(ctx, query,
		a.Name,
		a.AlexID,
		a.InstitutionID,
		a.CitationTotal,
		a.Topics[0],
		a.Topics[1],
		a.Topics[2],
	).Scan(&res.ID, &res.Inserted)
	if err != nil {
		return domain.UpsertResult{}, writeError(domain.TableAuthor, "upsert", err)
	}
	a.ID = res.ID
	return res, nil
}

func (r *PgCatalogRepository) UpdateAuthorEnrichment(ctx context.Context, authorID int64, citationTotal int, topics [3]*string) error {
	query := `
		UPDATE author SET
			citation_total = $2,
			main_topic_1 = $3,
			main_topic_2 = $4,
			main_topic_3 = $5
		WHERE author_id = $1`

	tag, err := r.db.Exec(ctx, query, authorID, citationTotal, topics[0], topics[1], topics[2])
	if err != nil {
		return writeError(domain.TableAuthor, "enrich", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("author", fmt.Sprintf("%d", authorID))
	}
	return nil
}

func (r *PgCatalogRepository) UpsertPaper(ctx context.Context, p *domain.Paper) (domain.UpsertResult, error) {
	if p == nil {
		return domain.UpsertResult{}, domain.NewValidationError("paper", "paper cannot be nil")
	}
	if p.AlexID == "" {
		return domain.UpsertResult{}, domain.NewValidationError("alex_paper_id", "external id is required")
	}

	query := `
		INSERT INTO paper (
			title, category_id, institution_id, citation, open_access,
			locations, announcement_date, submit, alex_paper_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (alex_paper_id) DO UPDATE SET
			title = EXCLUDED.title,
			category_id = EXCLUDED.category_id,
			institution_id = EXCLUDED.institution_id,
			citation = EXCLUDED.citation,
			open_access = EXCLUDED.open_access,
			locations = EXCLUDED.locations,
			announcement_date = EXCLUDED.announcement_date,
			submit = EXCLUDED.submit
		RETURNING paper_id, (xmax = 0) AS inserted`

	var res domain.UpsertResult
	err := r.db.QueryRow(ctx, query,
		p.Title,
		p.CategoryID,
		p.InstitutionID,
		p.Citation,
		p.OpenAccess,
		p.Locations,
		p.AnnouncementDate,
		p.Submit,
		p.AlexID,
	).Scan(&res.ID, &res.Inserted)
	if err != nil {
		return domain.UpsertResult{}, writeError(domain.TablePaper, "upsert", err)
	}
	p.ID = res.ID
	return res, nil
}

func (r *PgCatalogRepository) UpsertAbstract(ctx context.Context, a *domain.Abstract) (bool, error) {
	if a == nil {
		return false, domain.NewValidationError("abstract", "abstract cannot be nil")
	}

	query := `
		INSERT INTO abstract (paper_id, context)
		VALUES ($1, $2)
		ON CONFLICT (paper_id) DO UPDATE SET
			context = EXCLUDED.context
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	if err := r.db.QueryRow(ctx, query, a.PaperID, a.Context).Scan(&inserted); err != nil {
		return false, writeError(domain.TableAbstract, "upsert", err)
	}
	return inserted, nil
}

func (r *PgCatalogRepository) UpsertYearCitation(ctx context.Context, yc *domain.YearCitation) (bool, error) {
	if yc == nil {
		return false, domain.NewValidationError("yearcitation", "year citation cannot be nil")
	}

	query := `
		INSERT INTO yearcitation (paper_id, recent_year1_count, recent_year2_count, recent_year3_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (paper_id) DO UPDATE SET
			recent_year1_count = EXCLUDED.recent_year1_count,
			recent_year2_count = EXCLUDED.recent_year2_count,
			recent_year3_count = EXCLUDED.recent_year3_count
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := r.db.QueryRow(ctx, query, yc.PaperID, yc.Counts[0], yc.Counts[1], yc.Counts[2]).Scan(&inserted)
	if err != nil {
		return false, writeError(domain.TableYearCitation, "upsert", err)
	}
	return inserted, nil
}

func (r *PgCatalogRepository) LinkAuthorPaper(ctx context.Context, link domain.AuthorPaper) (bool, error) {
	query := `
		INSERT INTO authorpaper (paper_id, author_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	tag, err := r.db.Exec(ctx, query, link.PaperID, link.AuthorID)
	if err != nil {
		return false, writeError(domain.TableAuthorPaper, "link", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgCatalogRepository) ResetWeeklyCounts(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE paper SET weekly_count = 0 WHERE weekly_count <> 0`)
	if err != nil {
		return 0, writeError(domain.TablePaper, "reset weekly counts of", err)
	}
	return tag.RowsAffected(), nil
}
