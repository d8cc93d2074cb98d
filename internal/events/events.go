// Package events announces saved captures to downstream consumers.
package events

import (
	"context"
	"time"
)

// Event describes one saved capture.
type Event struct {
	Platform   string
	ItemID     string
	Location   string
	RunID      string
	CapturedAt time.Time
}

// Publisher represents a service for publishing capture events
type Publisher interface {
	// Publish announces one saved capture
	Publish(ctx context.Context, e Event) error

	// Close closes the publisher connection
	Close() error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
