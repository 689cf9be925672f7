package domain

// EventTypePaperCreated is published when the pipeline creates a new paper row.
const EventTypePaperCreated = "paper.created"

// PaperCreatedEvent is the payload of EventTypePaperCreated. The wire form is
// {"id": ..., "title": ...}; AlexPaperID is used as the message key only.
type PaperCreatedEvent struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	AlexPaperID string `json:"-"`
}
