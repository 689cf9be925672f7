package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/repository"
)

// memRepo is an in-memory CatalogRepository keyed by external id.
type memRepo struct {
	mu sync.Mutex

	calls        []string
	nextID       int64
	categories   map[string]int64
	institutions map[string]int64
	authors      map[string]int64
	authorRows   map[int64]domain.Author
	papers       map[string]int64
	paperRows    map[int64]domain.Paper
	abstracts    map[int64]*string
	citations    map[int64][3]int
	links        map[domain.AuthorPaper]bool
	enrichments  map[int64]int

	failOn map[string]error
}

var _ repository.CatalogRepository = (*memRepo)(nil)

func newMemRepo() *memRepo {
	return &memRepo{
		categories:   map[string]int64{},
		institutions: map[string]int64{},
		authors:      map[string]int64{},
		authorRows:   map[int64]domain.Author{},
		papers:       map[string]int64{},
		paperRows:    map[int64]domain.Paper{},
		abstracts:    map[int64]*string{},
		citations:    map[int64][3]int{},
		links:        map[domain.AuthorPaper]bool{},
		enrichments:  map[int64]int{},
		failOn:       map[string]error{},
	}
}

func (r *memRepo) record(table string) error {
	r.calls = append(r.calls, table)
	return r.failOn[table]
}

func (r *memRepo) upsert(m map[string]int64, key string) domain.UpsertResult {
	if id, ok := m[key]; ok {
		return domain.UpsertResult{ID: id}
	}
	r.nextID++
	m[key] = r.nextID
	return domain.UpsertResult{ID: r.nextID, Inserted: true}
}

func (r *memRepo) UpsertCategory(_ context.Context, c *domain.Category) (domain.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(domain.TableCategory); err != nil {
		return domain.UpsertResult{}, err
	}
	res := r.upsert(r.categories, c.AlexID)
	c.ID = res.ID
	return res, nil
}

func (r *memRepo) UpsertInstitution(_ context.Context, inst *domain.Institution) (domain.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(domain.TableInstitution); err != nil {
		return domain.UpsertResult{}, err
	}
	if inst.AlexID == nil {
		r.nextID++
		inst.ID = r.nextID
		return domain.UpsertResult{ID: r.nextID, Inserted: true}, nil
	}
	res := r.upsert(r.institutions, *inst.AlexID)
	inst.ID = res.ID
	return res, nil
}

func (r *memRepo) UpsertAuthor(_ context.Context, a *domain.Author) (domain.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(domain.TableAuthor); err != nil {
		return domain.UpsertResult{}, err
	}
	res := r.upsert(r.authors, a.AlexID)
	a.ID = res.ID
	stored := r.authorRows[res.ID]
	stored.ID, stored.Name, stored.AlexID = res.ID, a.Name, a.AlexID
	if a.InstitutionID != nil {
		stored.InstitutionID = a.InstitutionID
	}
	r.authorRows[res.ID] = stored
	return res, nil
}

func (r *memRepo) UpdateAuthorEnrichment(_ context.Context, authorID int64, citationTotal int, topics [3]*string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("enrich"); err != nil {
		return err
	}
	a, ok := r.authorRows[authorID]
	if !ok {
		return domain.NewNotFoundError("author", fmt.Sprint(authorID))
	}
	a.CitationTotal = &citationTotal
	a.Topics = topics
	r.authorRows[authorID] = a
	r.enrichments[authorID]++
	return nil
}

func (r *memRepo) UpsertPaper(_ context.Context, p *domain.Paper) (domain.UpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(domain.TablePaper); err != nil {
		return domain.UpsertResult{}, err
	}
	res := r.upsert(r.papers, p.AlexID)
	p.ID = res.ID
	r.paperRows[res.ID] = *p
	return res, nil
}

func (r *memRepo) UpsertAbstract(_ context.Context, a *domain.Abstract) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(domain.TableAbstract); err != nil {
		return false, err
	}
	_, existed := r.abstracts[a.PaperID]
	r.abstracts[a.PaperID] = a.Context
	return !existed, nil
}

func (r *memRepo) UpsertYearCitation(_ context.Context, yc *domain.YearCitation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(domain.TableYearCitation); err != nil {
		return false, err
	}
	_, existed := r.citations[yc.PaperID]
	r.citations[yc.PaperID] = yc.Counts
	return !existed, nil
}

func (r *memRepo) LinkAuthorPaper(_ context.Context, link domain.AuthorPaper) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record(domain.TableAuthorPaper); err != nil {
		return false, err
	}
	if r.links[link] {
		return false, nil
	}
	r.links[link] = true
	return true, nil
}

func (r *memRepo) ResetWeeklyCounts(context.Context) (int64, error) {
	return 0, nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PaperCreatedEvent
	err    error
}

func (p *recordingPublisher) PublishPaperCreated(_ context.Context, e domain.PaperCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }
