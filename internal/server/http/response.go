package httpserver

import (
	"time"

	"github.com/helixir/paper-catalog-service/internal/domain"
)

type poolResponse struct {
	Total    int32 `json:"total_conns"`
	Acquired int32 `json:"acquired_conns"`
	Idle     int32 `json:"idle_conns"`
	Max      int32 `json:"max_conns"`
}

type readinessResponse struct {
	Status   string       `json:"status"`
	Database string       `json:"database"`
	Pool     poolResponse `json:"pool"`
}

type categoryStatusResponse struct {
	AlexCategoryID string         `json:"alex_category_id"`
	Name           string         `json:"name"`
	Fetched        int            `json:"fetched"`
	Selected       int            `json:"selected"`
	Written        int            `json:"written"`
	Skipped        int            `json:"skipped"`
	SkipReasons    map[string]int `json:"skip_reasons,omitempty"`
	Error          string         `json:"error,omitempty"`
	Duration       string         `json:"duration"`
}

type statusResponse struct {
	State            string                   `json:"state"`
	Message          string                   `json:"message,omitempty"`
	RunID            string                   `json:"run_id,omitempty"`
	Trigger          string                   `json:"trigger,omitempty"`
	StartedAt        *time.Time               `json:"started_at,omitempty"`
	FinishedAt       *time.Time               `json:"finished_at,omitempty"`
	Duration         string                   `json:"duration,omitempty"`
	Written          int                      `json:"written"`
	Skipped          int                      `json:"skipped"`
	SkipReasons      map[string]int           `json:"skip_reasons,omitempty"`
	Rows             domain.Tally             `json:"rows,omitempty"`
	FailedCategories []string                 `json:"failed_categories,omitempty"`
	Categories       []categoryStatusResponse `json:"categories,omitempty"`
	Error            string                   `json:"error,omitempty"`
}

// newStatusResponse converts a run summary. A run with an error or a failed
// category is reported as "degraded".
func newStatusResponse(run *domain.RunSummary) statusResponse {
	resp := statusResponse{
		State:            "completed",
		RunID:            run.RunID,
		Trigger:          run.Trigger,
		Written:          run.Written,
		Skipped:          run.Skipped,
		SkipReasons:      run.SkipReasons,
		Rows:             run.Rows,
		FailedCategories: run.FailedCategories,
		Error:            run.Error,
	}
	if !run.StartedAt.IsZero() {
		started := run.StartedAt
		resp.StartedAt = &started
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		resp.FinishedAt = &finished
		resp.Duration = run.Duration().String()
	}
	if run.Error != "" || len(run.FailedCategories) > 0 {
		resp.State = "degraded"
	}

	for _, c := range run.Categories {
		resp.Categories = append(resp.Categories, categoryStatusResponse{
			AlexCategoryID: c.AlexCategoryID,
			Name:           c.Name,
			Fetched:        c.Fetched,
			Selected:       c.Selected,
			Written:        c.Written,
			Skipped:        c.Skipped,
			SkipReasons:    c.SkipReasons,
			Error:          c.Error,
			Duration:       c.Duration.String(),
		})
	}
	return resp
}
