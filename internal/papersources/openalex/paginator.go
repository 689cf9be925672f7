package openalex

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/helixir/paper-catalog-service/internal/domain"
)

// startCursor asks OpenAlex for the first page of a cursor walk.
const startCursor = "*"

// Paginator walks a cursor-paginated list endpoint lazily. It is finite and
// cannot be restarted: once Next returns false the walk is over, and Err
// reports why it stopped early, if it did.
//
//	p := client.WorksByConcept("C41008148", 1000)
//	for p.Next(ctx) {
//	    work := p.Record()
//	}
//	if err := p.Err(); err != nil { ... }
//
// Every page fetch is followed by the client's PageDelay.
type Paginator[T any] struct {
	client     *Client
	endpoint   string
	path       string
	query      url.Values
	maxRecords int

	cursor  string
	buf     []T
	idx     int
	current T
	fetched int
	pages   int
	done    bool
	err     error
}

func newPaginator[T any](c *Client, endpoint, path string, query url.Values, maxRecords int) *Paginator[T] {
	return &Paginator[T]{
		client:     c,
		endpoint:   endpoint,
		path:       path,
		query:      query,
		maxRecords: maxRecords,
		cursor:     startCursor,
	}
}

// Next advances to the next record, fetching a new page when the current one
// is used up. It returns false when the cursor is exhausted, the record cap is
// reached, or a page failed.
func (p *Paginator[T]) Next(ctx context.Context) bool {
	if p.err != nil || p.capped() {
		return false
	}

	for p.idx >= len(p.buf) {
		if p.done {
			return false
		}
		if err := p.fetchPage(ctx); err != nil {
			p.err = err
			return false
		}
	}

	p.current = p.buf[p.idx]
	p.idx++
	p.fetched++
	return true
}

// Record returns the record Next advanced to.
func (p *Paginator[T]) Record() T {
	return p.current
}

// Err returns the error that ended the walk, or nil.
func (p *Paginator[T]) Err() error {
	return p.err
}

// Fetched returns how many records have been yielded.
func (p *Paginator[T]) Fetched() int {
	return p.fetched
}

// Pages returns how many pages have been fetched.
func (p *Paginator[T]) Pages() int {
	return p.pages
}

func (p *Paginator[T]) capped() bool {
	return p.maxRecords > 0 && p.fetched >= p.maxRecords
}

func (p *Paginator[T]) fetchPage(ctx context.Context) error {
	query := url.Values{}
	for k, vs := range p.query {
		query[k] = vs
	}
	query.Set("per-page", strconv.Itoa(p.client.config.PageSize))
	query.Set("cursor", p.cursor)

	var page Page[T]
	err := p.client.get(ctx, p.endpoint, p.path, query, &page)
	if err == nil {
		err = validatePage(page)
		if err != nil {
			err = &domain.FetchError{Source: sourceName, URL: p.path, Cause: err}
		}
	}
	if err != nil {
		return err
	}

	p.pages++
	p.buf = *page.Results
	p.idx = 0
	p.cursor = page.Meta.NextCursor
	if p.cursor == "" || len(p.buf) == 0 {
		p.done = true
	}

	return p.client.sleep(ctx, p.client.config.PageDelay)
}

func validatePage[T any](page Page[T]) error {
	switch {
	case page.Meta == nil:
		return errors.New("response has no meta")
	case page.Results == nil:
		return errors.New("response has no results")
	}
	return nil
}
