// Package events publishes catalog change notifications.
//
// The upsert writer announces every newly created paper with a
// domain.PaperCreatedEvent. Delivery is best effort: a failed publish is
// reported to the caller, which logs it and keeps the database write.
package events

import (
	"context"

	"github.com/helixir/paper-catalog-service/internal/domain"
)

// Publisher delivers paper events to downstream consumers.
type Publisher interface {
	PublishPaperCreated(ctx context.Context, event domain.PaperCreatedEvent) error
	Close() error
}

// NoopPublisher discards every event. It is used when publishing is disabled.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

// PublishPaperCreated does nothing.
func (NoopPublisher) PublishPaperCreated(context.Context, domain.PaperCreatedEvent) error {
	return nil
}

// Close does nothing.
func (NoopPublisher) Close() error { return nil }
