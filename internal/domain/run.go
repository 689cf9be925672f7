package domain

import "time"

// Triggers recorded on a run.
const (
	TriggerCLI     = "cli"
	TriggerCron    = "cron"
	TriggerStartup = "startup"
)

// EntityCounts counts created and updated rows for one table.
type EntityCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// Tally maps a table name to its row counts.
type Tally map[string]EntityCounts

// Add counts one upserted row.
func (t Tally) Add(table string, inserted bool) {
	c := t[table]
	if inserted {
		c.Created++
	} else {
		c.Updated++
	}
	t[table] = c
}

// Merge adds every count of o into t.
func (t Tally) Merge(o Tally) {
	for table, oc := range o {
		c := t[table]
		c.Created += oc.Created
		c.Updated += oc.Updated
		t[table] = c
	}
}

// AuthorRef identifies an author written during a run.
type AuthorRef struct {
	ID     int64
	AlexID string
}

// WriteResult describes what writing one normalized work did.
type WriteResult struct {
	PaperID      int64
	PaperCreated bool
	Rows         Tally
	Authors      []AuthorRef
}

// CategorySummary reports one category of a run.
type CategorySummary struct {
	AlexCategoryID string         `json:"alex_category_id"`
	Name           string         `json:"name"`
	Fetched        int            `json:"fetched"`
	Selected       int            `json:"selected"`
	Written        int            `json:"written"`
	Skipped        int            `json:"skipped"`
	SkipReasons    map[string]int `json:"skip_reasons,omitempty"`
	Rows           Tally          `json:"rows"`
	Error          string         `json:"error,omitempty"`
	Duration       time.Duration  `json:"duration_ns"`
}

// NewCategorySummary returns an empty summary for a category.
func NewCategorySummary(alexCategoryID, name string) *CategorySummary {
	return &CategorySummary{
		AlexCategoryID: alexCategoryID,
		Name:           name,
		SkipReasons:    map[string]int{},
		Rows:           Tally{},
	}
}

// Skip records a skipped record.
func (s *CategorySummary) Skip(reason string) {
	s.Skipped++
	s.SkipReasons[reason]++
}

// Failed reports whether the category was abandoned.
func (s *CategorySummary) Failed() bool {
	return s.Error != ""
}

// RunSummary is the batch diagnostic of one ingestion run.
type RunSummary struct {
	RunID            string            `json:"run_id"`
	Trigger          string            `json:"trigger"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	Categories       []CategorySummary `json:"categories"`
	FailedCategories []string          `json:"failed_categories,omitempty"`
	Written          int               `json:"written"`
	Skipped          int               `json:"skipped"`
	SkipReasons      map[string]int    `json:"skip_reasons,omitempty"`
	Rows             Tally             `json:"rows"`
	Error            string            `json:"error,omitempty"`
}

// NewRunSummary starts a summary for a run.
func NewRunSummary(runID, trigger string, startedAt time.Time) *RunSummary {
	return &RunSummary{
		RunID:       runID,
		Trigger:     trigger,
		StartedAt:   startedAt,
		SkipReasons: map[string]int{},
		Rows:        Tally{},
	}
}

// AddCategory folds a finished category into the run totals.
func (s *RunSummary) AddCategory(c *CategorySummary) {
	s.Categories = append(s.Categories, *c)
	if c.Failed() {
		s.FailedCategories = append(s.FailedCategories, c.AlexCategoryID)
	}
	s.Written += c.Written
	s.Skipped += c.Skipped
	for reason, n := range c.SkipReasons {
		s.SkipReasons[reason] += n
	}
	s.Rows.Merge(c.Rows)
}

// Duration returns how long the run took, or zero while it is still running.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
