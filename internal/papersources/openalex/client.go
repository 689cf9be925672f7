package openalex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-catalog-service/internal/domain"
	"github.com/helixir/paper-catalog-service/internal/observability"
	"github.com/helixir/paper-catalog-service/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the largest per-page value OpenAlex accepts.
	MaxPageSize = 200

	// DefaultPageDelay is the pause after every page fetch.
	DefaultPageDelay = 120 * time.Millisecond

	// DefaultWorksSort ranks works by citations, highest first.
	DefaultWorksSort = "cited_by_count:desc"

	// sourceName labels errors and metrics.
	sourceName = "openalex"

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"

	// maxBodyBytes bounds a decoded response body.
	maxBodyBytes = 10 << 20
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL is the OpenAlex API base URL.
	BaseURL string

	// Email is the contact email for the polite pool.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	// APIKey is sent as api_key when set.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the transport retry count for 429/5xx. Zero surfaces a
	// failed page immediately.
	MaxRetries int

	// PageSize is the per-page value, capped at MaxPageSize.
	PageSize int

	// PageDelay is slept after every page fetch.
	PageDelay time.Duration

	// WorksSort is the sort expression for concept work listings.
	WorksSort string
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	if c.PageDelay == 0 {
		c.PageDelay = DefaultPageDelay
	}
	if c.WorksSort == "" {
		c.WorksSort = DefaultWorksSort
	}
}

// Client reads works, concepts and authors from OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.Client
	metrics    *observability.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := "paper-catalog-service/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	return NewWithHTTPClient(cfg, papersources.NewClient(papersources.Options{
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RateLimit,
		Burst:             cfg.BurstSize,
		Retry:             papersources.RetryPolicy{MaxRetries: cfg.MaxRetries},
		Header:            http.Header{"User-Agent": {userAgent}, "Accept": {"application/json"}},
	}))
}

// NewWithHTTPClient creates a client on top of an existing transport.
func NewWithHTTPClient(cfg Config, httpClient *papersources.Client) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		sleep:      papersources.Sleep,
	}
}

// WithMetrics makes the client record request metrics.
func (c *Client) WithMetrics(m *observability.Metrics) *Client {
	c.metrics = m
	return c
}

// WorksByConcept returns a paginator over the works tagged with conceptID
// (e.g. "C41008148"), sorted by WorksSort, yielding at most maxRecords works.
func (c *Client) WorksByConcept(conceptID string, maxRecords int) *Paginator[Work] {
	query := url.Values{}
	query.Set("filter", "concepts.id:"+conceptID)
	query.Set("sort", c.config.WorksSort)
	return newPaginator[Work](c, "works", "/works", query, maxRecords)
}

// Level1Concepts returns a paginator over every level-1 concept.
func (c *Client) Level1Concepts() *Paginator[Concept] {
	query := url.Values{}
	query.Set("filter", "level:1")
	return newPaginator[Concept](c, "concepts", "/concepts", query, 0)
}

// Work fetches a single work. id may be a full OpenAlex URL, "W123" or "123".
func (c *Client) Work(ctx context.Context, id string) (*Work, error) {
	workID := strings.TrimPrefix(strings.TrimSpace(id), openAlexIDPrefix)
	workID = strings.ReplaceAll(strings.ToUpper(workID), "W", "")
	if workID == "" {
		return nil, domain.NewValidationError("id", "work id is required")
	}

	var work Work
	if err := c.get(ctx, "work", "/works/W"+workID, nil, &work); err != nil {
		return nil, err
	}
	return &work, nil
}

// Author fetches an author profile. id may be a full OpenAlex URL, "A123" or "123".
func (c *Client) Author(ctx context.Context, id string) (*AuthorProfile, error) {
	var author AuthorProfile
	if err := c.get(ctx, "author", "/authors/"+authorKey(id), nil, &author); err != nil {
		return nil, err
	}
	return &author, nil
}

// AuthorWorks returns the first page of works written by an author.
func (c *Client) AuthorWorks(ctx context.Context, id string) ([]Work, error) {
	query := url.Values{}
	query.Set("filter", "author.id:"+authorKey(id))
	query.Set("per-page", strconv.Itoa(c.config.PageSize))

	var page Page[Work]
	if err := c.get(ctx, "works", "/works", query, &page); err != nil {
		return nil, err
	}
	if page.Results == nil {
		return nil, nil
	}
	return *page.Results, nil
}

func authorKey(id string) string {
	key := strings.TrimPrefix(strings.TrimSpace(id), openAlexIDPrefix)
	if !strings.HasPrefix(strings.ToUpper(key), "A") {
		key = "A" + key
	}
	return key
}

// buildURL joins path and query onto the base URL, adding polite-pool and key parameters.
func (c *Client) buildURL(path string, query url.Values) (string, error) {
	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	q := url.Values{}
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	if c.config.Email != "" {
		q.Set("mailto", c.config.Email)
	}
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// get performs a GET and decodes the JSON body into out. Transport failures,
// non-200 responses and undecodable bodies come back as *domain.FetchError;
// a 404 also matches domain.ErrNotFound.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	reqURL, err := c.buildURL(path, query)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(endpoint, "transport")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &domain.FetchError{Source: sourceName, URL: redact(reqURL), Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		c.recordFailure(endpoint, "http_"+strconv.Itoa(resp.StatusCode))

		var cause error = domain.NewExternalAPIError("OpenAlex", resp.StatusCode, string(body), nil)
		switch resp.StatusCode {
		case http.StatusNotFound:
			cause = domain.NewNotFoundError(endpoint, path)
		case http.StatusTooManyRequests:
			if c.metrics != nil {
				c.metrics.RecordSourceRateLimited(sourceName)
			}
			retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
			cause = domain.NewRateLimitError(sourceName, time.Duration(retryAfter)*time.Second)
		}
		return &domain.FetchError{Source: sourceName, URL: redact(reqURL), StatusCode: resp.StatusCode, Cause: cause}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		c.recordFailure(endpoint, "decode")
		return &domain.FetchError{
			Source:     sourceName,
			URL:        redact(reqURL),
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("decoding response: %w", err),
		}
	}

	if c.metrics != nil {
		c.metrics.RecordSourceRequest(sourceName, endpoint, time.Since(start).Seconds())
	}
	return nil
}

func (c *Client) recordFailure(endpoint, errorType string) {
	if c.metrics != nil {
		c.metrics.RecordSourceRequestFailed(sourceName, endpoint, errorType)
	}
}

// redact strips the api_key parameter from URLs that end up in errors and logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
