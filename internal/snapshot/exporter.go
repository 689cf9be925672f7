package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.yaml.in/yaml/v3"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/observability"
	"github.com/helixir/paper-catalog-service/internal/repository"
)

const opExport = "export"

// ExportReport describes a finished export.
type ExportReport struct {
	Dir        string
	ExportedAt time.Time
	// Rows counts the records written per file stem.
	Rows map[string]int
	// Missing lists source tables that did not exist and were exported empty.
	Missing []string
	// Dropped counts rows left out because a referenced row was absent.
	Dropped int
}

// Exporter writes the catalog to a snapshot directory.
type Exporter struct {
	repo    repository.SnapshotRepository
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewExporter creates an Exporter. metrics may be nil.
func NewExporter(repo repository.SnapshotRepository, metrics *observability.Metrics, logger zerolog.Logger) *Exporter {
	return &Exporter{
		repo:    repo,
		metrics: metrics,
		logger:  logger.With().Str("component", "exporter").Logger(),
		now:     time.Now,
	}
}

// tables holds every source table read in full.
type tables struct {
	categories    []domain.Category
	institutions  []domain.Institution
	authors       []domain.Author
	papers        []domain.Paper
	abstracts     []domain.Abstract
	yearCitations []domain.YearCitation
	authorPapers  []domain.AuthorPaper
	guests        []domain.Guest
	favorites     []domain.GuestFavorite
	categoryViews []domain.GuestCategoryCount
}

// Export reads every table and writes the snapshot files and manifest into dir.
func (e *Exporter) Export(ctx context.Context, dir string) (*ExportReport, error) {
	start := e.now()
	report := &ExportReport{Dir: dir, ExportedAt: start.UTC(), Rows: map[string]int{}}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	t, err := e.read(ctx, report)
	if err != nil {
		return nil, err
	}

	categoryAlex := make(map[int64]string, len(t.categories))
	for _, c := range t.categories {
		categoryAlex[c.ID] = c.AlexID
	}
	institutionAlex := make(map[int64]*string, len(t.institutions))
	for _, i := range t.institutions {
		institutionAlex[i.ID] = i.AlexID
	}
	authorAlex := make(map[int64]string, len(t.authors))
	for _, a := range t.authors {
		authorAlex[a.ID] = a.AlexID
	}
	paperAlex := make(map[int64]string, len(t.papers))
	for _, p := range t.papers {
		paperAlex[p.ID] = p.AlexID
	}
	guestNames := make(map[int64]string, len(t.guests))
	for _, g := range t.guests {
		guestNames[g.ID] = g.Name
	}
	abstracts := make(map[int64]*string, len(t.abstracts))
	for _, a := range t.abstracts {
		abstracts[a.PaperID] = a.Context
	}
	citations := make(map[int64][3]int, len(t.yearCitations))
	for _, yc := range t.yearCitations {
		citations[yc.PaperID] = yc.Counts
	}

	categoryRef := func(id *int64) *string {
		if id == nil {
			return nil
		}
		if alex, ok := categoryAlex[*id]; ok {
			return &alex
		}
		return nil
	}
	institutionRef := func(id *int64) *string {
		if id == nil {
			return nil
		}
		return institutionAlex[*id]
	}

	categories := make([]CategoryRecord, 0, len(t.categories))
	for _, c := range t.categories {
		categories = append(categories, CategoryRecord{AlexCategoryID: c.AlexID, CategoryName: c.Name})
	}

	institutions := make([]InstitutionRecord, 0, len(t.institutions))
	for _, i := range t.institutions {
		institutions = append(institutions, InstitutionRecord{
			AlexInstitutionID: i.AlexID,
			InstitutionName:   i.Name,
			CountryCode:       i.CountryCode,
		})
	}

	authors := make([]AuthorRecord, 0, len(t.authors))
	for _, a := range t.authors {
		authors = append(authors, AuthorRecord{
			AlexAuthorID:      a.AlexID,
			AuthorName:        a.Name,
			InstitutionAlexID: institutionRef(a.InstitutionID),
			CitationTotal:     a.CitationTotal,
			MainTopic1:        a.Topics[0],
			MainTopic2:        a.Topics[1],
			MainTopic3:        a.Topics[2],
		})
	}

	exportYear := report.ExportedAt.Year()
	papers := make([]PaperRecord, 0, len(t.papers))
	for _, p := range t.papers {
		rec := PaperRecord{
			AlexPaperID:       p.AlexID,
			Title:             p.Title,
			CategoryAlexID:    categoryRef(p.CategoryID),
			InstitutionAlexID: institutionRef(p.InstitutionID),
			Citation:          p.Citation,
			OpenAccess:        p.OpenAccess,
			Locations:         p.Locations,
			Submit:            p.Submit,
			Abstract:          Some(abstracts[p.ID]),
			CitedByYear:       citedByYear(citations[p.ID], exportYear),
		}
		if p.AnnouncementDate != nil {
			d := p.AnnouncementDate.Format(dateLayout)
			rec.AnnouncementDate = &d
		}
		papers = append(papers, rec)
	}

	links := make([]AuthorPaperRecord, 0, len(t.authorPapers))
	for _, ap := range t.authorPapers {
		paper, okP := paperAlex[ap.PaperID]
		author, okA := authorAlex[ap.AuthorID]
		if !okP || !okA {
			report.Dropped++
			continue
		}
		links = append(links, AuthorPaperRecord{AlexPaperID: paper, AlexAuthorID: author})
	}

	guests := make([]GuestRecord, 0, len(t.guests))
	for _, g := range t.guests {
		guests = append(guests, GuestRecord{
			GuestName: g.Name,
			Pwd:       g.Pwd,
			Interest1: g.Interests[0],
			Interest2: g.Interests[1],
			Interest3: g.Interests[2],
		})
	}

	favorites := make([]GuestFavoriteRecord, 0, len(t.favorites))
	for _, f := range t.favorites {
		guest, okG := guestNames[f.GuestID]
		paper, okP := paperAlex[f.PaperID]
		if !okG || !okP {
			report.Dropped++
			continue
		}
		favorites = append(favorites, GuestFavoriteRecord{GuestName: guest, AlexPaperID: paper})
	}

	views := make([]GuestCategoryCountRecord, 0, len(t.categoryViews))
	for _, v := range t.categoryViews {
		guest, okG := guestNames[v.GuestID]
		category, okC := categoryAlex[v.CategoryID]
		if !okG || !okC {
			report.Dropped++
			continue
		}
		views = append(views, GuestCategoryCountRecord{GuestName: guest, AlexCategoryID: category, Count: v.Count})
	}

	files := map[string]any{
		"category":           categories,
		"institution":        institutions,
		"author":             authors,
		"paper":              papers,
		"authorpaper":        links,
		"guest":              guests,
		"guestfavorite":      favorites,
		"guestcategorycount": views,
	}
	counts := map[string]int{
		"category":           len(categories),
		"institution":        len(institutions),
		"author":             len(authors),
		"paper":              len(papers),
		"authorpaper":        len(links),
		"guest":              len(guests),
		"guestfavorite":      len(favorites),
		"guestcategorycount": len(views),
	}

	for _, table := range exportedTables {
		path := filepath.Join(dir, table+".json")
		if err := writeJSON(path, files[table]); err != nil {
			return nil, err
		}
		report.Rows[table] = counts[table]
		if e.metrics != nil {
			e.metrics.RecordSnapshotTable(opExport, table, counts[table])
		}
		tableLogger := observability.WithTableContext(e.logger, table, path)
		tableLogger.Info().
			Int("rows", counts[table]).
			Msg("table exported")
	}

	manifest := Manifest{FormatVersion: FormatVersion, ExportedAt: report.ExportedAt, Tables: report.Rows}
	if err := writeManifest(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return nil, err
	}

	duration := e.now().Sub(start)
	if e.metrics != nil {
		e.metrics.RecordSnapshotDuration(opExport, duration.Seconds())
	}
	if report.Dropped > 0 {
		e.logger.Warn().Int("dropped", report.Dropped).Msg("rows with dangling references were not exported")
	}
	e.logger.Info().
		Str("dir", dir).
		Interface("rows", report.Rows).
		Dur("duration", duration).
		Msg("export finished")

	return report, nil
}

func (e *Exporter) read(ctx context.Context, report *ExportReport) (*tables, error) {
	var t tables
	var err error

	if t.categories, err = readTable(ctx, e, report, domain.TableCategory, e.repo.ListCategories); err != nil {
		return nil, err
	}
	if t.institutions, err = readTable(ctx, e, report, domain.TableInstitution, e.repo.ListInstitutions); err != nil {
		return nil, err
	}
	if t.authors, err = readTable(ctx, e, report, domain.TableAuthor, e.repo.ListAuthors); err != nil {
		return nil, err
	}
	if t.papers, err = readTable(ctx, e, report, domain.TablePaper, e.repo.ListPapers); err != nil {
		return nil, err
	}
	if t.abstracts, err = readTable(ctx, e, report, domain.TableAbstract, e.repo.ListAbstracts); err != nil {
		return nil, err
	}
	if t.yearCitations, err = readTable(ctx, e, report, domain.TableYearCitation, e.repo.ListYearCitations); err != nil {
		return nil, err
	}
	if t.authorPapers, err = readTable(ctx, e, report, domain.TableAuthorPaper, e.repo.ListAuthorPapers); err != nil {
		return nil, err
	}
	if t.guests, err = readTable(ctx, e, report, domain.TableGuest, e.repo.ListGuests); err != nil {
		return nil, err
	}
	if t.favorites, err = readTable(ctx, e, report, domain.TableGuestFavorite, e.repo.ListGuestFavorites); err != nil {
		return nil, err
	}
	if t.categoryViews, err = readTable(ctx, e, report, domain.TableGuestCategoryCount, e.repo.ListGuestCategoryCounts); err != nil {
		return nil, err
	}
	return &t, nil
}

// readTable lists a table, treating a missing table as empty.
func readTable[T any](ctx context.Context, e *Exporter, report *ExportReport, table string, list func(context.Context) ([]T, error)) ([]T, error) {
	exists, err := e.repo.TableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		report.Missing = append(report.Missing, table)
		e.logger.Warn().Str("table", table).Msg("source table missing, exporting it empty")
		return nil, nil
	}
	return list(ctx)
}

// citedByYear labels counts from exportYear backwards, most recent first.
func citedByYear(counts [3]int, exportYear int) []YearCount {
	out := make([]YearCount, len(counts))
	for i, c := range counts {
		out[i] = YearCount{Year: exportYear - i, Count: c}
	}
	return out
}

// writeJSON writes v as indented JSON through a temp file and rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, data)
}

func writeManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
