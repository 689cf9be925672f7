package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/observability"
	"github.com/helixir/paper-catalog-service/internal/repository"
)

const opImport = "import"

// ImportOrder is the order tables are loaded in; every table only references
// tables before it.
var ImportOrder = []string{
	domain.TableCategory,
	domain.TableInstitution,
	domain.TableAuthor,
	domain.TablePaper,
	domain.TableAbstract,
	domain.TableYearCitation,
	domain.TableAuthorPaper,
	domain.TableGuest,
	domain.TableGuestFavorite,
	domain.TableGuestCategoryCount,
}

// TableReport describes the import of one table.
type TableReport struct {
	Table   string              `json:"table"`
	Files   []string            `json:"files,omitempty"`
	Read    int                 `json:"read"`
	Counts  domain.EntityCounts `json:"counts"`
	Skipped int                 `json:"skipped"`
	Reasons map[string]int      `json:"skip_reasons,omitempty"`
	// Missing is set when the target table does not exist.
	Missing bool `json:"missing,omitempty"`
}

func (r *TableReport) skip(reason string) {
	r.Skipped++
	r.Reasons[reason]++
}

// ImportReport describes a finished import.
type ImportReport struct {
	Dir      string        `json:"dir"`
	Tables   []TableReport `json:"tables"`
	Duration time.Duration `json:"duration_ns"`
}

// Totals sums created, updated and skipped rows across tables.
func (r *ImportReport) Totals() (created, updated, skipped int) {
	for _, t := range r.Tables {
		created += t.Counts.Created
		updated += t.Counts.Updated
		skipped += t.Skipped
	}
	return created, updated, skipped
}

// Importer loads a snapshot directory into the connected database.
type Importer struct {
	catalog  repository.CatalogRepository
	snapshot repository.SnapshotRepository
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewImporter creates an Importer. metrics may be nil.
func NewImporter(catalog repository.CatalogRepository, snapshot repository.SnapshotRepository, metrics *observability.Metrics, logger zerolog.Logger) *Importer {
	return &Importer{
		catalog:  catalog,
		snapshot: snapshot,
		metrics:  metrics,
		logger:   logger.With().Str("component", "importer").Logger(),
	}
}

// Import loads every table of the snapshot in dir in ImportOrder. Rows that
// cannot be written are skipped with a reason; a target table that does not
// exist is skipped with a warning. Import fails on unreadable files, an
// unsupported manifest version, or when ctx ends.
func (im *Importer) Import(ctx context.Context, dir string) (*ImportReport, error) {
	start := time.Now()

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("snapshot path is not a directory: %s", dir)
	}
	if err := checkManifest(dir); err != nil {
		return nil, err
	}

	var (
		categories   []CategoryRecord
		institutions []InstitutionRecord
		authors      []AuthorRecord
		papers       []PaperRecord
		links        []AuthorPaperRecord
		guests       []GuestRecord
		favorites    []GuestFavoriteRecord
		views        []GuestCategoryCountRecord
		files        = map[string][]string{}
	)
	if categories, files[domain.TableCategory], err = loadRecords[CategoryRecord](dir, domain.TableCategory); err != nil {
		return nil, err
	}
	if institutions, files[domain.TableInstitution], err = loadRecords[InstitutionRecord](dir, domain.TableInstitution); err != nil {
		return nil, err
	}
	if authors, files[domain.TableAuthor], err = loadRecords[AuthorRecord](dir, domain.TableAuthor); err != nil {
		return nil, err
	}
	if papers, files[domain.TablePaper], err = loadRecords[PaperRecord](dir, domain.TablePaper); err != nil {
		return nil, err
	}
	if links, files[domain.TableAuthorPaper], err = loadRecords[AuthorPaperRecord](dir, domain.TableAuthorPaper); err != nil {
		return nil, err
	}
	if guests, files[domain.TableGuest], err = loadRecords[GuestRecord](dir, domain.TableGuest); err != nil {
		return nil, err
	}
	if favorites, files[domain.TableGuestFavorite], err = loadRecords[GuestFavoriteRecord](dir, domain.TableGuestFavorite); err != nil {
		return nil, err
	}
	if views, files[domain.TableGuestCategoryCount], err = loadRecords[GuestCategoryCountRecord](dir, domain.TableGuestCategoryCount); err != nil {
		return nil, err
	}
	// Abstracts and year citations travel inside paper records.
	files[domain.TableAbstract] = files[domain.TablePaper]
	files[domain.TableYearCitation] = files[domain.TablePaper]

	report := &ImportReport{Dir: dir}
	for _, table := range ImportOrder {
		tr := TableReport{Table: table, Files: files[table], Reasons: map[string]int{}}

		var err error
		switch table {
		case domain.TableCategory:
			err = importRows(ctx, im, &tr, categories, im.importCategory)
		case domain.TableInstitution:
			err = importRows(ctx, im, &tr, institutions, im.importInstitution)
		case domain.TableAuthor:
			err = importRows(ctx, im, &tr, authors, im.importAuthor)
		case domain.TablePaper:
			err = importRows(ctx, im, &tr, papers, im.importPaper)
		case domain.TableAbstract:
			withAbstract := make([]PaperRecord, 0, len(papers))
			for _, p := range papers {
				if p.Abstract.Set {
					withAbstract = append(withAbstract, p)
				}
			}
			err = importRows(ctx, im, &tr, withAbstract, im.importAbstract)
		case domain.TableYearCitation:
			err = importRows(ctx, im, &tr, papers, im.importYearCitation)
		case domain.TableAuthorPaper:
			err = importRows(ctx, im, &tr, links, im.importAuthorPaper)
		case domain.TableGuest:
			err = importRows(ctx, im, &tr, guests, im.importGuest)
		case domain.TableGuestFavorite:
			err = importRows(ctx, im, &tr, favorites, im.importGuestFavorite)
		case domain.TableGuestCategoryCount:
			err = importRows(ctx, im, &tr, views, im.importGuestCategoryCount)
		}
		report.Tables = append(report.Tables, tr)
		if err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
	}

	report.Duration = time.Since(start)
	if im.metrics != nil {
		im.metrics.RecordSnapshotDuration(opImport, report.Duration.Seconds())
	}
	created, updated, skipped := report.Totals()
	im.logger.Info().
		Str("dir", dir).
		Int("created", created).
		Int("updated", updated).
		Int("skipped", skipped).
		Dur("duration", report.Duration).
		Msg("import finished")

	return report, nil
}

// importRows writes rows one statement at a time. It returns an error only
// when the table probe fails or ctx ends.
func importRows[T any](ctx context.Context, im *Importer, tr *TableReport, rows []T, write func(context.Context, T) (bool, error)) error {
	tr.Read = len(rows)
	logger := observability.WithTableContext(im.logger, tr.Table, strings.Join(tr.Files, ","))

	exists, err := im.snapshot.TableExists(ctx, tr.Table)
	if err != nil {
		return err
	}
	if !exists {
		tr.Missing = true
		logger.Warn().Int("rows", len(rows)).Msg("target table does not exist, skipping")
		return nil
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		inserted, err := write(ctx, row)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			reason := importSkipReason(err)
			tr.skip(reason)
			logger.Warn().Err(err).Int("row", i).Str("reason", reason).Msg("row skipped")
			continue
		}
		if inserted {
			tr.Counts.Created++
		} else {
			tr.Counts.Updated++
		}
	}

	if im.metrics != nil {
		im.metrics.RecordSnapshotTable(opImport, tr.Table, tr.Counts.Created+tr.Counts.Updated)
		im.metrics.RecordSnapshotSkips(tr.Table, tr.Reasons)
	}
	logger.Info().
		Int("read", tr.Read).
		Int("created", tr.Counts.Created).
		Int("updated", tr.Counts.Updated).
		Int("skipped", tr.Skipped).
		Msg("table imported")
	return nil
}

func importSkipReason(err error) string {
	if repository.IsUnresolvedReference(err) {
		return domain.SkipUnresolvedReference
	}
	return domain.SkipReason(err)
}

func missingKey(field string) error {
	return domain.NewMalformedRecordError("record", "", domain.SkipInvalidID, field+" is empty")
}

func (im *Importer) importCategory(ctx context.Context, r CategoryRecord) (bool, error) {
	if r.AlexCategoryID == "" {
		return false, missingKey("alex_category_id")
	}
	res, err := im.catalog.UpsertCategory(ctx, &domain.Category{Name: r.CategoryName, AlexID: r.AlexCategoryID})
	return res.Inserted, err
}

func (im *Importer) importInstitution(ctx context.Context, r InstitutionRecord) (bool, error) {
	res, err := im.catalog.UpsertInstitution(ctx, &domain.Institution{
		Name:        r.InstitutionName,
		CountryCode: r.CountryCode,
		AlexID:      r.AlexInstitutionID,
	})
	return res.Inserted, err
}

func (im *Importer) importAuthor(ctx context.Context, r AuthorRecord) (bool, error) {
	if r.AlexAuthorID == "" {
		return false, missingKey("alex_author_id")
	}
	res, err := im.snapshot.ImportAuthor(ctx, repository.ExternalAuthor{
		Name:              r.AuthorName,
		AlexID:            r.AlexAuthorID,
		InstitutionAlexID: r.InstitutionAlexID,
		CitationTotal:     r.CitationTotal,
		Topics:            [3]*string{r.MainTopic1, r.MainTopic2, r.MainTopic3},
	})
	return res.Inserted, err
}

func (im *Importer) importPaper(ctx context.Context, r PaperRecord) (bool, error) {
	if r.AlexPaperID == "" {
		return false, missingKey("alex_paper_id")
	}
	p := repository.ExternalPaper{
		AlexID:            r.AlexPaperID,
		Title:             r.Title,
		CategoryAlexID:    r.CategoryAlexID,
		InstitutionAlexID: r.InstitutionAlexID,
		Citation:          r.Citation,
		OpenAccess:        r.OpenAccess,
		Locations:         r.Locations,
		Submit:            r.Submit,
	}
	if r.AnnouncementDate != nil && *r.AnnouncementDate != "" {
		d, err := time.Parse(dateLayout, *r.AnnouncementDate)
		if err != nil {
			return false, domain.NewMalformedRecordError("paper", r.AlexPaperID, domain.SkipValidation,
				fmt.Sprintf("announcement_date %q is not YYYY-MM-DD", *r.AnnouncementDate))
		}
		p.AnnouncementDate = &d
	}
	res, err := im.snapshot.ImportPaper(ctx, p)
	return res.Inserted, err
}

func (im *Importer) importAbstract(ctx context.Context, r PaperRecord) (bool, error) {
	return im.snapshot.ImportAbstract(ctx, r.AlexPaperID, r.Abstract.Value)
}

func (im *Importer) importYearCitation(ctx context.Context, r PaperRecord) (bool, error) {
	return im.snapshot.ImportYearCitation(ctx, r.AlexPaperID, recentCounts(r.CitedByYear))
}

func (im *Importer) importAuthorPaper(ctx context.Context, r AuthorPaperRecord) (bool, error) {
	return im.snapshot.ImportAuthorPaper(ctx, r.AlexPaperID, r.AlexAuthorID)
}

func (im *Importer) importGuest(ctx context.Context, r GuestRecord) (bool, error) {
	if r.GuestName == "" {
		return false, missingKey("guestname")
	}
	res, err := im.snapshot.UpsertGuest(ctx, &domain.Guest{
		Name:      r.GuestName,
		Pwd:       r.Pwd,
		Interests: [3]*string{r.Interest1, r.Interest2, r.Interest3},
	})
	return res.Inserted, err
}

func (im *Importer) importGuestFavorite(ctx context.Context, r GuestFavoriteRecord) (bool, error) {
	return im.snapshot.ImportGuestFavorite(ctx, r.GuestName, r.AlexPaperID)
}

func (im *Importer) importGuestCategoryCount(ctx context.Context, r GuestCategoryCountRecord) (bool, error) {
	return im.snapshot.ImportGuestCategoryCount(ctx, r.GuestName, r.AlexCategoryID, r.Count)
}

// recentCounts orders entries by year, most recent first, and keeps three
// counts, zero padded.
func recentCounts(years []YearCount) [3]int {
	sorted := make([]YearCount, len(years))
	copy(sorted, years)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Year > sorted[j].Year })

	var out [3]int
	for i := 0; i < len(out) && i < len(sorted); i++ {
		out[i] = sorted[i].Count
	}
	return out
}

// shardFiles returns the files holding table: <table>.json, <table>_*.json and
// <plural>_*.json, sorted and without duplicates.
func shardFiles(dir, table string) ([]string, error) {
	patterns := []string{table + ".json", table + "_*.json"}
	for _, prefix := range shardPrefixes[table] {
		patterns = append(patterns, prefix+"_*.json")
	}

	seen := map[string]bool{}
	var out []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s files: %w", table, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// loadRecords reads and concatenates every file of table. No file means no rows.
func loadRecords[T any](dir, table string) ([]T, []string, error) {
	files, err := shardFiles(dir, table)
	if err != nil {
		return nil, nil, err
	}

	var out []T
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		}
		var rows []T
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
		}
		out = append(out, rows...)
	}
	return out, files, nil
}

// checkManifest rejects snapshots written by a newer format. A snapshot
// without a manifest is accepted.
func checkManifest(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode manifest: %w", err)
	}
	if m.FormatVersion > FormatVersion {
		return fmt.Errorf("snapshot format version %d is newer than supported version %d", m.FormatVersion, FormatVersion)
	}
	return nil
}
