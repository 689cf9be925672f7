//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/repository"
	"github.com/helixir/paper-catalog-service/internal/snapshot"
)

// seedSource writes a small catalog with every table populated.
func seedSource(t *testing.T, ctx context.Context) {
	t.Helper()
	catalog := repository.NewPgCatalogRepository(sourceDB)
	snaps := repository.NewPgSnapshotRepository(sourceDB)

	cs, err := catalog.UpsertCategory(ctx, &domain.Category{Name: "Computer science", AlexID: "C41008148"})
	require.NoError(t, err)
	bio, err := catalog.UpsertCategory(ctx, &domain.Category{Name: "Biology", AlexID: "C86803240"})
	require.NoError(t, err)

	mit, err := catalog.UpsertInstitution(ctx, &domain.Institution{Name: strPtr("MIT"), CountryCode: strPtr("US"), AlexID: strPtr("I63966007")})
	require.NoError(t, err)

	ada, err := catalog.UpsertAuthor(ctx, &domain.Author{Name: "Ada Lovelace", AlexID: "A1", InstitutionID: &mit.ID})
	require.NoError(t, err)
	require.NoError(t, catalog.UpdateAuthorEnrichment(ctx, ada.ID, 77, [3]*string{strPtr("Neural networks"), strPtr("Logic"), nil}))
	alan, err := catalog.UpsertAuthor(ctx, &domain.Author{Name: "Alan Turing", AlexID: "A2"})
	require.NoError(t, err)

	d1 := time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC)
	p1, err := catalog.UpsertPaper(ctx, &domain.Paper{
		Title: "Attention Is All You Need", CategoryID: &cs.ID, InstitutionID: &mit.ID,
		Citation: 90000, OpenAccess: true, Locations: strPtr("https://arxiv.org/abs/1706.03762"),
		AnnouncementDate: &d1, AlexID: "W2963403868",
	})
	require.NoError(t, err)
	p2, err := catalog.UpsertPaper(ctx, &domain.Paper{Title: "On Growth and Form", CategoryID: &bio.ID, Citation: 12, AlexID: "W100"})
	require.NoError(t, err)

	_, err = catalog.UpsertAbstract(ctx, &domain.Abstract{PaperID: p1.ID, Context: strPtr("The dominant sequence transduction models")})
	require.NoError(t, err)
	_, err = catalog.UpsertAbstract(ctx, &domain.Abstract{PaperID: p2.ID})
	require.NoError(t, err)
	_, err = catalog.UpsertYearCitation(ctx, &domain.YearCitation{PaperID: p1.ID, Counts: [3]int{5, 2, 0}})
	require.NoError(t, err)
	for _, link := range []domain.AuthorPaper{{PaperID: p1.ID, AuthorID: ada.ID}, {PaperID: p1.ID, AuthorID: alan.ID}, {PaperID: p2.ID, AuthorID: alan.ID}} {
		_, err = catalog.LinkAuthorPaper(ctx, link)
		require.NoError(t, err)
	}

	_, err = snaps.UpsertGuest(ctx, &domain.Guest{Name: "reader", Pwd: "hash", Interests: [3]*string{strPtr("ml"), nil, nil}})
	require.NoError(t, err)
	_, err = snaps.ImportGuestFavorite(ctx, "reader", "W2963403868")
	require.NoError(t, err)
	_, err = snaps.ImportGuestCategoryCount(ctx, "reader", "C41008148", 4)
	require.NoError(t, err)
}

func exportDB(t *testing.T, ctx context.Context, db repository.DBTX, dir string) *snapshot.ExportReport {
	t.Helper()
	report, err := snapshot.NewExporter(repository.NewPgSnapshotRepository(db), nil, zerolog.Nop()).Export(ctx, dir)
	require.NoError(t, err)
	return report
}

func TestSnapshotRoundTrip_Integration(t *testing.T) {
	ctx := context.Background()
	cleanTables(t, sourceDB)
	cleanTables(t, targetDB)

	// Offset the target's sequences so internal ids differ between databases.
	for _, seq := range []string{"category_category_id_seq", "institution_institution_id_seq", "author_author_id_seq", "paper_paper_id_seq", "guest_guest_id_seq"} {
		_, err := targetDB.Exec(ctx, `SELECT setval($1, 1000)`, seq)
		require.NoError(t, err)
	}

	seedSource(t, ctx)

	sourceDir := filepath.Join(t.TempDir(), "source")
	exported := exportDB(t, ctx, sourceDB, sourceDir)
	assert.Equal(t, 2, exported.Rows[domain.TablePaper])
	assert.Zero(t, exported.Dropped)

	importer := snapshot.NewImporter(
		repository.NewPgCatalogRepository(targetDB),
		repository.NewPgSnapshotRepository(targetDB),
		nil,
		zerolog.Nop(),
	)
	report, err := importer.Import(ctx, sourceDir)
	require.NoError(t, err)
	created, updated, skipped := report.Totals()
	assert.Zero(t, skipped)
	assert.Zero(t, updated)
	assert.Positive(t, created)

	// Exporting the target reproduces the source snapshot.
	targetDir := filepath.Join(t.TempDir(), "target")
	exportDB(t, ctx, targetDB, targetDir)
	for _, name := range []string{"category.json", "institution.json", "author.json", "paper.json", "authorpaper.json", "guest.json", "guestfavorite.json", "guestcategorycount.json"} {
		want, err := os.ReadFile(filepath.Join(sourceDir, name))
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(targetDir, name))
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(got), name)
	}

	t.Run("second import creates nothing", func(t *testing.T) {
		again, err := importer.Import(ctx, sourceDir)
		require.NoError(t, err)
		created, _, skipped := again.Totals()
		assert.Zero(t, created)
		assert.Zero(t, skipped)
	})
}
