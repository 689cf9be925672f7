package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/helixir/paper-catalog-service/internal/domain"
)

var _ SnapshotRepository = (*PgSnapshotRepository)(nil)

// PgSnapshotRepository is a PostgreSQL implementation of SnapshotRepository.
type PgSnapshotRepository struct {
	db DBTX
}

// NewPgSnapshotRepository creates a new PostgreSQL snapshot repository.
func NewPgSnapshotRepository(db DBTX) *PgSnapshotRepository {
	return &PgSnapshotRepository{db: db}
}

func (r *PgSnapshotRepository) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, pq.QuoteIdentifier(table)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to probe table %s: %w", table, err)
	}
	return exists, nil
}

func (r *PgSnapshotRepository) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM `+pq.QuoteIdentifier(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// listAll runs query and scans every row with scan.
func listAll[T any](ctx context.Context, db DBTX, table, query string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return out, nil
}

func (r *PgSnapshotRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return listAll(ctx, r.db, domain.TableCategory,
		`SELECT category_id, category_name, alex_category_id FROM category ORDER BY category_id`,
		func(rows pgx.Rows) (domain.Category, error) {
			var c domain.Category
			err := rows.Scan(&c.ID, &c.Name, &c.AlexID)
			return c, err
		})
}

func (r *PgSnapshotRepository) ListInstitutions(ctx context.Context) ([]domain.Institution, error) {
	return listAll(ctx, r.db, domain.TableInstitution,
		`SELECT institution_id, institution_name, country_code, alex_institution_id FROM institution ORDER BY institution_id`,
		func(rows pgx.Rows) (domain.Institution, error) {
			var i domain.Institution
			err := rows.Scan(&i.ID, &i.Name, &i.CountryCode, &i.AlexID)
			return i, err
		})
}

func (r *PgSnapshotRepository) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	return listAll(ctx, r.db, domain.TableAuthor,
		`SELECT author_id, author_name, alex_author_id, institution_id, citation_total,
			main_topic_1, main_topic_2, main_topic_3
		FROM author ORDER BY author_id`,
		func(rows pgx.Rows) (domain.Author, error) {
			var a domain.Author
			err := rows.Scan(&a.ID, &a.Name, &a.AlexID, &a.InstitutionID, &a.CitationTotal,
				&a.Topics[0], &a.Topics[1], &a.Topics[2])
			return a, err
		})
}

func (r *PgSnapshotRepository) ListPapers(ctx context.Context) ([]domain.Paper, error) {
	return listAll(ctx, r.db, domain.TablePaper,
		`SELECT paper_id, title, category_id, institution_id, citation, open_access,
			locations, announcement_date, submit, alex_paper_id, weekly_count
		FROM paper ORDER BY paper_id`,
		func(rows pgx.Rows) (domain.Paper, error) {
			var p domain.Paper
			err := rows.Scan(&p.ID, &p.Title, &p.CategoryID, &p.InstitutionID, &p.Citation, &p.OpenAccess,
				&p.Locations, &p.AnnouncementDate, &p.Submit, &p.AlexID, &p.WeeklyCount)
			return p, err
		})
}

func (r *PgSnapshotRepository) ListAbstracts(ctx context.Context) ([]domain.Abstract, error) {
	return listAll(ctx, r.db, domain.TableAbstract,
		`SELECT paper_id, context FROM abstract ORDER BY paper_id`,
		func(rows pgx.Rows) (domain.Abstract, error) {
			var a domain.Abstract
			err := rows.Scan(&a.PaperID, &a.Context)
			return a, err
		})
}

func (r *PgSnapshotRepository) ListYearCitations(ctx context.Context) ([]domain.YearCitation, error) {
	return listAll(ctx, r.db, domain.TableYearCitation,
		`SELECT paper_id, recent_year1_count, recent_year2_count, recent_year3_count
		FROM yearcitation ORDER BY paper_id`,
		func(rows pgx.Rows) (domain.YearCitation, error) {
			var yc domain.YearCitation
			err := rows.Scan(&yc.PaperID, &yc.Counts[0], &yc.Counts[1], &yc.Counts[2])
			return yc, err
		})
}

func (r *PgSnapshotRepository) ListAuthorPapers(ctx context.Context) ([]domain.AuthorPaper, error) {
	return listAll(ctx, r.db, domain.TableAuthorPaper,
		`SELECT paper_id, author_id FROM authorpaper ORDER BY paper_id, author_id`,
		func(rows pgx.Rows) (domain.AuthorPaper, error) {
			var ap domain.AuthorPaper
			err := rows.Scan(&ap.PaperID, &ap.AuthorID)
			return ap, err
		})
}

func (r *PgSnapshotRepository) ListGuests(ctx context.Context) ([]domain.Guest, error) {
	return listAll(ctx, r.db, domain.TableGuest,
		`SELECT guest_id, guestname, pwd, interest_1, interest_2, interest_3 FROM guest ORDER BY guest_id`,
		func(rows pgx.Rows) (domain.Guest, error) {
			var g domain.Guest
			err := rows.Scan(&g.ID, &g.Name, &g.Pwd, &g.Interests[0], &g.Interests[1], &g.Interests[2])
			return g, err
		})
}

func (r *PgSnapshotRepository) ListGuestFavorites(ctx context.Context) ([]domain.GuestFavorite, error) {
	return listAll(ctx, r.db, domain.TableGuestFavorite,
		`SELECT guest_id, paper_id FROM guestfavorite ORDER BY guest_id, paper_id`,
		func(rows pgx.Rows) (domain.GuestFavorite, error) {
			var f domain.GuestFavorite
			err := rows.Scan(&f.GuestID, &f.PaperID)
			return f, err
		})
}

func (r *PgSnapshotRepository) ListGuestCategoryCounts(ctx context.Context) ([]domain.GuestCategoryCount, error) {
	return listAll(ctx, r.db, domain.TableGuestCategoryCount,
		`SELECT guest_id, category_id, count FROM guestcategorycount ORDER BY guest_id, category_id`,
		func(rows pgx.Rows) (domain.GuestCategoryCount, error) {
			var c domain.GuestCategoryCount
			err := rows.Scan(&c.GuestID, &c.CategoryID, &c.Count)
			return c, err
		})
}

func (r *PgSnapshotRepository) ImportAuthor(ctx context.Context, a ExternalAuthor) (domain.UpsertResult, error) {
	if a.AlexID == "" {
		return domain.UpsertResult{}, domain.NewValidationError("alex_author_id", "external id is required")
	}

	query := `
		INSERT INTO author (
			author_name, alex_author_id, institution_id, citation_total,
			main_topic_1, main_topic_2, main_topic_3
		) VALUES (
			$1, $2,
			(SELECT institution_id FROM institution WHERE alex_institution_id = $3),
			$4, $5, $6, $7
		)
		ON CONFLICT (alex_author_id) DO UPDATE SET
			author_name = EXCLUDED.author_name,
			institution_id = EXCLUDED.institution_id,
			citation_total = EXCLUDED.citation_total,
			main_topic_1 = EXCLUDED.main_topic_1,
			main_topic_2 = EXCLUDED.main_topic_2,
			main_topic_3 = EXCLUDED.main_topic_3
		RETURNING author_id, (xmax = 0) AS inserted`

	var res domain.UpsertResult
	err := r.db.QueryRow(ctx, query,
		a.Name, a.AlexID, a.InstitutionAlexID, a.CitationTotal,
		a.Topics[0], a.Topics[1], a.Topics[2],
	).Scan(&res.ID, &res.Inserted)
	if err != nil {
		return domain.UpsertResult{}, writeError(domain.TableAuthor, "import", err)
	}
	return res, nil
}

func (r *PgSnapshotRepository) ImportPaper(ctx context.Context, p ExternalPaper) (domain.UpsertResult, error) {
	if p.AlexID == "" {
		return domain.UpsertResult{}, domain.NewValidationError("alex_paper_id", "external id is required")
	}

	query := `
		INSERT INTO paper (
			title, category_id, institution_id, citation, open_access,
			locations, announcement_date, submit, alex_paper_id
		) VALUES (
			$1,
			(SELECT category_id FROM category WHERE alex_category_id = $2),
			(SELECT institution_id FROM institution WHERE alex_institution_id = $3),
			$4, $5, $6, $7, $8, $9
		)
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
		p.Title, p.CategoryAlexID, p.InstitutionAlexID, p.Citation, p.OpenAccess,
		p.Locations, p.AnnouncementDate, p.Submit, p.AlexID,
	).Scan(&res.ID, &res.Inserted)
	if err != nil {
		return domain.UpsertResult{}, writeError(domain.TablePaper, "import", err)
	}
	return res, nil
}

func (r *PgSnapshotRepository) ImportAbstract(ctx context.Context, alexPaperID string, text *string) (bool, error) {
	query := `
		INSERT INTO abstract (paper_id, context)
		VALUES ((SELECT paper_id FROM paper WHERE alex_paper_id = $1), $2)
		ON CONFLICT (paper_id) DO UPDATE SET
			context = EXCLUDED.context
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	if err := r.db.QueryRow(ctx, query, alexPaperID, text).Scan(&inserted); err != nil {
		return false, writeError(domain.TableAbstract, "import", err)
	}
	return inserted, nil
}

func (r *PgSnapshotRepository) ImportYearCitation(ctx context.Context, alexPaperID string, counts [3]int) (bool, error) {
	query := `
		INSERT INTO yearcitation (paper_id, recent_year1_count, recent_year2_count, recent_year3_count)
		VALUES ((SELECT paper_id FROM paper WHERE alex_paper_id = $1), $2, $3, $4)
		ON CONFLICT (paper_id) DO UPDATE SET
			recent_year1_count = EXCLUDED.recent_year1_count,
			recent_year2_count = EXCLUDED.recent_year2_count,
			recent_year3_count = EXCLUDED.recent_year3_count
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	if err := r.db.QueryRow(ctx, query, alexPaperID, counts[0], counts[1], counts[2]).Scan(&inserted); err != nil {
		return false, writeError(domain.TableYearCitation, "import", err)
	}
	return inserted, nil
}

func (r *PgSnapshotRepository) ImportAuthorPaper(ctx context.Context, alexPaperID, alexAuthorID string) (bool, error) {
	query := `
		INSERT INTO authorpaper (paper_id, author_id)
		VALUES (
			(SELECT paper_id FROM paper WHERE alex_paper_id = $1),
			(SELECT author_id FROM author WHERE alex_author_id = $2)
		)
		ON CONFLICT DO NOTHING`

	tag, err := r.db.Exec(ctx, query, alexPaperID, alexAuthorID)
	if err != nil {
		return false, writeError(domain.TableAuthorPaper, "import", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgSnapshotRepository) UpsertGuest(ctx context.Context, g *domain.Guest) (domain.UpsertResult, error) {
	if g == nil || g.Name == "" {
		return domain.UpsertResult{}, domain.NewValidationError("guestname", "guest name is required")
	}

	query := `
		INSERT INTO guest (guestname, pwd, interest_1, interest_2, interest_3)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (guestname) DO UPDATE SET
			pwd = EXCLUDED.pwd,
			interest_1 = EXCLUDED.interest_1,
			interest_2 = EXCLUDED.interest_2,
			interest_3 = EXCLUDED.interest_3
		RETURNING guest_id, (xmax = 0) AS inserted`

	var res domain.UpsertResult
	err := r.db.QueryRow(ctx, query, g.Name, g.Pwd, g.Interests[0], g.Interests[1], g.Interests[2]).
		Scan(&res.ID, &res.Inserted)
	if err != nil {
		return domain.UpsertResult{}, writeError(domain.TableGuest, "upsert", err)
	}
	g.ID = res.ID
	return res, nil
}

func (r *PgSnapshotRepository) ImportGuestFavorite(ctx context.Context, guestName, alexPaperID string) (bool, error) {
	query := `
		INSERT INTO guestfavorite (guest_id, paper_id)
		VALUES (
			(SELECT guest_id FROM guest WHERE guestname = $1),
			(SELECT paper_id FROM paper WHERE alex_paper_id = $2)
		)
		ON CONFLICT DO NOTHING`

	tag, err := r.db.Exec(ctx, query, guestName, alexPaperID)
	if err != nil {
		return false, writeError(domain.TableGuestFavorite, "import", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PgSnapshotRepository) ImportGuestCategoryCount(ctx context.Context, guestName, alexCategoryID string, count int) (bool, error) {
	query := `
		INSERT INTO guestcategorycount (guest_id, category_id, count)
		VALUES (
			(SELECT guest_id FROM guest WHERE guestname = $1),
			(SELECT category_id FROM category WHERE alex_category_id = $2),
			$3
		)
		ON CONFLICT (guest_id, category_id) DO UPDATE SET
			count = EXCLUDED.count
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	if err := r.db.QueryRow(ctx, query, guestName, alexCategoryID, count).Scan(&inserted); err != nil {
		return false, writeError(domain.TableGuestCategoryCount, "import", err)
	}
	return inserted, nil
}
