//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-catalog-service/internal/database"
	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/repository"
)

func strPtr(s string) *string { return &s }

func TestPgCatalogRepository_Integration(t *testing.T) {
	cleanTables(t, sourceDB)
	repo := repository.NewPgCatalogRepository(sourceDB)
	ctx := context.Background()

	cat, err := repo.UpsertCategory(ctx, &domain.Category{Name: "Computer science", AlexID: "C41008148"})
	require.NoError(t, err)
	assert.True(t, cat.Inserted)

	t.Run("category upsert is keyed by external id", func(t *testing.T) {
		again, err := repo.UpsertCategory(ctx, &domain.Category{Name: "Computer Science", AlexID: "C41008148"})
		require.NoError(t, err)
		assert.False(t, again.Inserted)
		assert.Equal(t, cat.ID, again.ID)

		var name string
		require.NoError(t, sourceDB.QueryRow(ctx, `SELECT category_name FROM category WHERE category_id = $1`, cat.ID).Scan(&name))
		assert.Equal(t, "Computer Science", name)
	})

	inst, err := repo.UpsertInstitution(ctx, &domain.Institution{Name: strPtr("MIT"), CountryCode: strPtr("US"), AlexID: strPtr("I63966007")})
	require.NoError(t, err)

	t.Run("institutions without an external id never merge", func(t *testing.T) {
		first, err := repo.UpsertInstitution(ctx, &domain.Institution{Name: strPtr("Unknown")})
		require.NoError(t, err)
		second, err := repo.UpsertInstitution(ctx, &domain.Institution{Name: strPtr("Unknown")})
		require.NoError(t, err)
		assert.True(t, second.Inserted)
		assert.NotEqual(t, first.ID, second.ID)
	})

	author, err := repo.UpsertAuthor(ctx, &domain.Author{Name: "Ada Lovelace", AlexID: "A5023888391", InstitutionID: &inst.ID})
	require.NoError(t, err)

	date := time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC)
	paper := &domain.Paper{
		Title:            "Attention Is All You Need",
		CategoryID:       &cat.ID,
		InstitutionID:    &inst.ID,
		Citation:         90000,
		OpenAccess:       true,
		Locations:        strPtr("https://arxiv.org/abs/1706.03762"),
		AnnouncementDate: &date,
		AlexID:           "W2963403868",
	}
	created, err := repo.UpsertPaper(ctx, paper)
	require.NoError(t, err)
	assert.True(t, created.Inserted)

	t.Run("paper rewrite updates in place", func(t *testing.T) {
		paper.Citation = 95000
		updated, err := repo.UpsertPaper(ctx, paper)
		require.NoError(t, err)
		assert.False(t, updated.Inserted)
		assert.Equal(t, created.ID, updated.ID)

		var citation int
		require.NoError(t, sourceDB.QueryRow(ctx, `SELECT citation FROM paper WHERE paper_id = $1`, created.ID).Scan(&citation))
		assert.Equal(t, 95000, citation)
	})

	t.Run("abstract, year citations and links are one row per key", func(t *testing.T) {
		for range 2 {
			_, err := repo.UpsertAbstract(ctx, &domain.Abstract{PaperID: created.ID, Context: strPtr("The dominant sequence transduction models")})
			require.NoError(t, err)
			_, err = repo.UpsertYearCitation(ctx, &domain.YearCitation{PaperID: created.ID, Counts: [3]int{5, 2, 0}})
			require.NoError(t, err)
			_, err = repo.LinkAuthorPaper(ctx, domain.AuthorPaper{PaperID: created.ID, AuthorID: author.ID})
			require.NoError(t, err)
		}

		for _, table := range []string{"abstract", "yearcitation", "authorpaper"} {
			var n int
			require.NoError(t, sourceDB.QueryRow(ctx, `SELECT count(*) FROM `+table).Scan(&n))
			assert.Equal(t, 1, n, table)
		}
	})

	t.Run("enrichment fills citation total and topics", func(t *testing.T) {
		require.NoError(t, repo.UpdateAuthorEnrichment(ctx, author.ID, 77, [3]*string{strPtr("Neural networks"), nil, nil}))

		var total *int
		var topic *string
		require.NoError(t, sourceDB.QueryRow(ctx,
			`SELECT citation_total, main_topic_1 FROM author WHERE author_id = $1`, author.ID).Scan(&total, &topic))
		require.NotNil(t, total)
		assert.Equal(t, 77, *total)
		assert.Equal(t, "Neural networks", *topic)
	})

	t.Run("negative citation violates a constraint", func(t *testing.T) {
		_, err := repo.UpsertPaper(ctx, &domain.Paper{Title: "Broken", Citation: -1, AlexID: "W1"})
		var cve *domain.ConstraintViolationError
		require.ErrorAs(t, err, &cve)
		assert.Equal(t, domain.TablePaper, cve.Table)
	})

	t.Run("weekly counts reset", func(t *testing.T) {
		_, err := sourceDB.Exec(ctx, `UPDATE paper SET weekly_count = 12`)
		require.NoError(t, err)

		n, err := repo.ResetWeeklyCounts(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = repo.ResetWeeklyCounts(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestPgSnapshotRepository_UnresolvedReference(t *testing.T) {
	cleanTables(t, targetDB)
	repo := repository.NewPgSnapshotRepository(targetDB)
	ctx := context.Background()

	// Optional references that resolve to nothing become NULL.
	res, err := repo.ImportPaper(ctx, repository.ExternalPaper{
		AlexID:         "W42",
		Title:          "Orphan",
		CategoryAlexID: strPtr("C999"),
	})
	require.NoError(t, err)
	var categoryID *int64
	require.NoError(t, targetDB.QueryRow(ctx, `SELECT category_id FROM paper WHERE paper_id = $1`, res.ID).Scan(&categoryID))
	assert.Nil(t, categoryID)

	// Required ones fail the statement.
	_, err = repo.ImportAuthorPaper(ctx, "W42", "A42")
	require.Error(t, err)
	assert.True(t, repository.IsUnresolvedReference(err))

	_, err = repo.ImportAbstract(ctx, "W404", strPtr("text"))
	require.Error(t, err)
	assert.True(t, repository.IsUnresolvedReference(err))

	exists, err := repo.TableExists(ctx, domain.TablePaper)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.TableExists(ctx, "no_such_table")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAdvisoryLock_Integration(t *testing.T) {
	ctx := context.Background()
	const key = 7_201_202_599

	lock, err := sourceDB.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)

	// The same key on another session is refused.
	_, err = targetDB.TryAdvisoryLock(ctx, key)
	require.Error(t, err)
	assert.True(t, database.IsLockHeld(err))

	require.NoError(t, lock.Release(ctx))

	again, err := targetDB.TryAdvisoryLock(ctx, key)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestMigrator_Idempotent(t *testing.T) {
	migrator, err := database.NewMigrator(sourceDB, migrationsPath, zerolog.Nop())
	require.NoError(t, err)
	defer migrator.Close()

	require.NoError(t, migrator.Up())

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.EqualValues(t, 2, version)
	assert.False(t, dirty)
}
