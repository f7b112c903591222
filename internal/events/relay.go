package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// OutboxStore reads and settles outbox rows.
type OutboxStore interface {
	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkEventPublished(ctx context.Context, id int64) error
	RecordEventFailure(ctx context.Context, id int64, reason string) error
}

// Publisher delivers an event to the broker.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Notifier reacts to events once they left the outbox (metrics, caches).
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Relay moves committed outbox rows to the broker at least once.
type Relay struct {
	Store     OutboxStore
	Publisher Publisher
	Notifiers []Notifier
	Interval  time.Duration
	Batch     int
	Logger    zerolog.Logger
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.Logger.Warn().Err(err).Msg("outbox relay flush")
			}
		}
	}
}

// Flush publishes one batch and returns how many events were delivered. A
// failed event stays in the outbox for the next round; the rest of the batch
// still goes out.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	if r == nil || r.Store == nil || r.Publisher == nil {
		return 0, errors.New("events: relay not configured")
	}
	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}
	pending, err := r.Store.PendingEvents(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("events: fetch pending: %w", err)
	}
	var (
		delivered int
		joined    error
	)
	for _, ev := range pending {
		if err := r.Publisher.Publish(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: publish %d: %w", ev.ID, err))
			if markErr := r.Store.RecordEventFailure(ctx, ev.ID, err.Error()); markErr != nil {
				joined = errors.Join(joined, markErr)
			}
			continue
		}
		if err := r.Store.MarkEventPublished(ctx, ev.ID); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: mark %d: %w", ev.ID, err))
			continue
		}
		delivered++
		for _, n := range r.Notifiers {
			if n == nil {
				continue
			}
			if err := n.Notify(ctx, ev); err != nil {
				joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
			}
		}
	}
	return delivered, joined
}
