package snapshot

import (
	"context"
	"sort"
	"sync"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/repository"
)

// memStore is an in-memory catalog that implements both repositories and
// resolves external ids the way the import statements do.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	missing map[string]bool

	categories    map[int64]domain.Category
	institutions  map[int64]domain.Institution
	authors       map[int64]domain.Author
	papers        map[int64]domain.Paper
	abstracts     map[int64]domain.Abstract
	yearCitations map[int64]domain.YearCitation
	authorPapers  map[domain.AuthorPaper]bool
	guests        map[int64]domain.Guest
	favorites     map[domain.GuestFavorite]bool
	views         map[[2]int64]int
}

var (
	_ repository.CatalogRepository  = (*memStore)(nil)
	_ repository.SnapshotRepository = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		missing:       map[string]bool{},
		categories:    map[int64]domain.Category{},
		institutions:  map[int64]domain.Institution{},
		authors:       map[int64]domain.Author{},
		papers:        map[int64]domain.Paper{},
		abstracts:     map[int64]domain.Abstract{},
		yearCitations: map[int64]domain.YearCitation{},
		authorPapers:  map[domain.AuthorPaper]bool{},
		guests:        map[int64]domain.Guest{},
		favorites:     map[domain.GuestFavorite]bool{},
		views:         map[[2]int64]int{},
	}
}

func unresolved(table string) error {
	return &domain.ConstraintViolationError{Table: table, Code: "23502"}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) categoryByAlex(alex string) (int64, bool) {
	for id, c := range m.categories {
		if c.AlexID == alex {
			return id, true
		}
	}
	return 0, false
}

func (m *memStore) institutionByAlex(alex *string) *int64 {
	if alex == nil {
		return nil
	}
	for id, i := range m.institutions {
		if i.AlexID != nil && *i.AlexID == *alex {
			id := id
			return &id
		}
	}
	return nil
}

func (m *memStore) authorByAlex(alex string) (int64, bool) {
	for id, a := range m.authors {
		if a.AlexID == alex {
			return id, true
		}
	}
	return 0, false
}

func (m *memStore) paperByAlex(alex string) (int64, bool) {
	for id, p := range m.papers {
		if p.AlexID == alex {
			return id, true
		}
	}
	return 0, false
}

func (m *memStore) guestByName(name string) (int64, bool) {
	for id, g := range m.guests {
		if g.Name == name {
			return id, true
		}
	}
	return 0, false
}

func sortedValues[K comparable, V any](in map[K]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// CatalogRepository

func (m *memStore) UpsertCategory(_ context.Context, c *domain.Category) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.categoryByAlex(c.AlexID); ok {
		c.ID = id
		m.categories[id] = *c
		return domain.UpsertResult{ID: id}, nil
	}
	c.ID = m.id()
	m.categories[c.ID] = *c
	return domain.UpsertResult{ID: c.ID, Inserted: true}, nil
}

func (m *memStore) UpsertInstitution(_ context.Context, inst *domain.Institution) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id := m.institutionByAlex(inst.AlexID); id != nil {
		inst.ID = *id
		m.institutions[*id] = *inst
		return domain.UpsertResult{ID: *id}, nil
	}
	inst.ID = m.id()
	m.institutions[inst.ID] = *inst
	return domain.UpsertResult{ID: inst.ID, Inserted: true}, nil
}

func (m *memStore) UpsertAuthor(_ context.Context, a *domain.Author) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.authorByAlex(a.AlexID); ok {
		a.ID = id
		m.authors[id] = *a
		return domain.UpsertResult{ID: id}, nil
	}
	a.ID = m.id()
	m.authors[a.ID] = *a
	return domain.UpsertResult{ID: a.ID, Inserted: true}, nil
}

func (m *memStore) UpdateAuthorEnrichment(_ context.Context, authorID int64, citationTotal int, topics [3]*string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.authors[authorID]
	a.CitationTotal = &citationTotal
	a.Topics = topics
	m.authors[authorID] = a
	return nil
}

func (m *memStore) UpsertPaper(_ context.Context, p *domain.Paper) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.paperByAlex(p.AlexID); ok {
		p.ID = id
		m.papers[id] = *p
		return domain.UpsertResult{ID: id}, nil
	}
	p.ID = m.id()
	m.papers[p.ID] = *p
	return domain.UpsertResult{ID: p.ID, Inserted: true}, nil
}

func (m *memStore) UpsertAbstract(_ context.Context, a *domain.Abstract) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.abstracts[a.PaperID]
	m.abstracts[a.PaperID] = *a
	return !existed, nil
}

func (m *memStore) UpsertYearCitation(_ context.Context, yc *domain.YearCitation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.yearCitations[yc.PaperID]
	m.yearCitations[yc.PaperID] = *yc
	return !existed, nil
}

func (m *memStore) LinkAuthorPaper(_ context.Context, link domain.AuthorPaper) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.authorPapers[link] {
		return false, nil
	}
	m.authorPapers[link] = true
	return true, nil
}

func (m *memStore) ResetWeeklyCounts(context.Context) (int64, error) { return 0, nil }

// SnapshotRepository

func (m *memStore) TableExists(_ context.Context, table string) (bool, error) {
	return !m.missing[table], nil
}

func (m *memStore) CountRows(context.Context, string) (int64, error) { return 0, nil }

func (m *memStore) ListCategories(context.Context) ([]domain.Category, error) {
	return sortedValues(m.categories, func(a, b domain.Category) bool { return a.ID < b.ID }), nil
}

func (m *memStore) ListInstitutions(context.Context) ([]domain.Institution, error) {
	return sortedValues(m.institutions, func(a, b domain.Institution) bool { return a.ID < b.ID }), nil
}

func (m *memStore) ListAuthors(context.Context) ([]domain.Author, error) {
	return sortedValues(m.authors, func(a, b domain.Author) bool { return a.ID < b.ID }), nil
}

func (m *memStore) ListPapers(context.Context) ([]domain.Paper, error) {
	return sortedValues(m.papers, func(a, b domain.Paper) bool { return a.ID < b.ID }), nil
}

func (m *memStore) ListAbstracts(context.Context) ([]domain.Abstract, error) {
	return sortedValues(m.abstracts, func(a, b domain.Abstract) bool { return a.PaperID < b.PaperID }), nil
}

func (m *memStore) ListYearCitations(context.Context) ([]domain.YearCitation, error) {
	return sortedValues(m.yearCitations, func(a, b domain.YearCitation) bool { return a.PaperID < b.PaperID }), nil
}

func (m *memStore) ListAuthorPapers(context.Context) ([]domain.AuthorPaper, error) {
	var out []domain.AuthorPaper
	for link := range m.authorPapers {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaperID != out[j].PaperID {
			return out[i].PaperID < out[j].PaperID
		}
		return out[i].AuthorID < out[j].AuthorID
	})
	return out, nil
}

func (m *memStore) ListGuests(context.Context) ([]domain.Guest, error) {
	return sortedValues(m.guests, func(a, b domain.Guest) bool { return a.ID < b.ID }), nil
}

func (m *memStore) ListGuestFavorites(context.Context) ([]domain.GuestFavorite, error) {
	var out []domain.GuestFavorite
	for f := range m.favorites {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GuestID != out[j].GuestID {
			return out[i].GuestID < out[j].GuestID
		}
		return out[i].PaperID < out[j].PaperID
	})
	return out, nil
}

func (m *memStore) ListGuestCategoryCounts(context.Context) ([]domain.GuestCategoryCount, error) {
	var out []domain.GuestCategoryCount
	for k, n := range m.views {
		out = append(out, domain.GuestCategoryCount{GuestID: k[0], CategoryID: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GuestID != out[j].GuestID {
			return out[i].GuestID < out[j].GuestID
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out, nil
}

func (m *memStore) ImportAuthor(_ context.Context, a repository.ExternalAuthor) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := domain.Author{
		Name:          a.Name,
		AlexID:        a.AlexID,
		InstitutionID: m.institutionByAlex(a.InstitutionAlexID),
		CitationTotal: a.CitationTotal,
		Topics:        a.Topics,
	}
	if id, ok := m.authorByAlex(a.AlexID); ok {
		row.ID = id
		m.authors[id] = row
		return domain.UpsertResult{ID: id}, nil
	}
	row.ID = m.id()
	m.authors[row.ID] = row
	return domain.UpsertResult{ID: row.ID, Inserted: true}, nil
}

func (m *memStore) ImportPaper(_ context.Context, p repository.ExternalPaper) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := domain.Paper{
		Title:            p.Title,
		InstitutionID:    m.institutionByAlex(p.InstitutionAlexID),
		Citation:         p.Citation,
		OpenAccess:       p.OpenAccess,
		Locations:        p.Locations,
		AnnouncementDate: p.AnnouncementDate,
		Submit:           p.Submit,
		AlexID:           p.AlexID,
	}
	if p.CategoryAlexID != nil {
		if id, ok := m.categoryByAlex(*p.CategoryAlexID); ok {
			row.CategoryID = &id
		}
	}
	if id, ok := m.paperByAlex(p.AlexID); ok {
		row.ID = id
		row.WeeklyCount = m.papers[id].WeeklyCount
		m.papers[id] = row
		return domain.UpsertResult{ID: id}, nil
	}
	row.ID = m.id()
	m.papers[row.ID] = row
	return domain.UpsertResult{ID: row.ID, Inserted: true}, nil
}

func (m *memStore) ImportAbstract(_ context.Context, alexPaperID string, text *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid, ok := m.paperByAlex(alexPaperID)
	if !ok {
		return false, unresolved(domain.TableAbstract)
	}
	_, existed := m.abstracts[pid]
	m.abstracts[pid] = domain.Abstract{PaperID: pid, Context: text}
	return !existed, nil
}

func (m *memStore) ImportYearCitation(_ context.Context, alexPaperID string, counts [3]int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid, ok := m.paperByAlex(alexPaperID)
	if !ok {
		return false, unresolved(domain.TableYearCitation)
	}
	_, existed := m.yearCitations[pid]
	m.yearCitations[pid] = domain.YearCitation{PaperID: pid, Counts: counts}
	return !existed, nil
}

func (m *memStore) ImportAuthorPaper(_ context.Context, alexPaperID, alexAuthorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid, okP := m.paperByAlex(alexPaperID)
	aid, okA := m.authorByAlex(alexAuthorID)
	if !okP || !okA {
		return false, unresolved(domain.TableAuthorPaper)
	}
	link := domain.AuthorPaper{PaperID: pid, AuthorID: aid}
	if m.authorPapers[link] {
		return false, nil
	}
	m.authorPapers[link] = true
	return true, nil
}

func (m *memStore) UpsertGuest(_ context.Context, g *domain.Guest) (domain.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.guestByName(g.Name); ok {
		g.ID = id
		m.guests[id] = *g
		return domain.UpsertResult{ID: id}, nil
	}
	g.ID = m.id()
	m.guests[g.ID] = *g
	return domain.UpsertResult{ID: g.ID, Inserted: true}, nil
}

func (m *memStore) ImportGuestFavorite(_ context.Context, guestName, alexPaperID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gid, okG := m.guestByName(guestName)
	pid, okP := m.paperByAlex(alexPaperID)
	if !okG || !okP {
		return false, unresolved(domain.TableGuestFavorite)
	}
	f := domain.GuestFavorite{GuestID: gid, PaperID: pid}
	if m.favorites[f] {
		return false, nil
	}
	m.favorites[f] = true
	return true, nil
}

func (m *memStore) ImportGuestCategoryCount(_ context.Context, guestName, alexCategoryID string, count int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gid, okG := m.guestByName(guestName)
	cid, okC := m.categoryByAlex(alexCategoryID)
	if !okG || !okC {
		return false, unresolved(domain.TableGuestCategoryCount)
	}
	key := [2]int64{gid, cid}
	_, existed := m.views[key]
	m.views[key] = count
	return !existed, nil
}
