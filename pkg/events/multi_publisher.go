package events

import (
	"context"
	"fmt"
)

// MultiPublisher fans each event out to several publishers. A failing
// publisher does not stop the others; the first error is returned.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a publisher that writes to all the given
// publishers in order.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

// Publish delivers the event to every publisher.
func (m *MultiPublisher) Publish(ctx context.Context, event *Event) error {
	var firstErr error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every publisher.
func (m *MultiPublisher) Close() error {
	var firstErr error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close publisher: %w", err)
		}
	}
	return firstErr
}
