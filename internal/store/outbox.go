package store

import (
	"context"
	"time"

	"github.com/noah-isme/backend-pdv/internal/events"
)

// insertEvents appends evs to the outbox inside the caller's transaction.
func (q *Queries) insertEvents(ctx context.Context, evs ...events.Event) error {
	for _, ev := range evs {
		if _, err := q.db.Exec(ctx, `INSERT INTO outbox_events (topic, key, payload, created_at) VALUES ($1, $2, $3, $4)`,
			ev.Topic, ev.Key, []byte(ev.Payload), eventTime(ev)); err != nil {
			return wrap("insert outbox event", err)
		}
	}
	return nil
}

func eventTime(ev events.Event) time.Time {
	if ev.CreatedAt.IsZero() {
		return time.Now().UTC()
	}
	return ev.CreatedAt
}

// PendingEvents returns unpublished events oldest first. Rows are locked with
// SKIP LOCKED so parallel relays do not pick the same batch.
func (q *Queries) PendingEvents(ctx context.Context, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.Query(ctx, `SELECT id, topic, key, payload, created_at, attempts FROM outbox_events
WHERE published_at IS NULL ORDER BY id LIMIT $1 FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, wrap("pending events", err)
	}
	defer rows.Close()
	var out []events.Event
	for rows.Next() {
		var (
			ev      events.Event
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Key, &payload, &ev.CreatedAt, &ev.Attempts); err != nil {
			return nil, wrap("scan event", err)
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, wrap("pending events", rows.Err())
}

// MarkEventPublished stamps the event as delivered.
func (q *Queries) MarkEventPublished(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `UPDATE outbox_events SET published_at = now(), last_error = '' WHERE id = $1`, id)
	return wrap("mark event published", err)
}

// RecordEventFailure keeps the event pending and counts the attempt.
func (q *Queries) RecordEventFailure(ctx context.Context, id int64, reason string) error {
	_, err := q.db.Exec(ctx, `UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, reason)
	return wrap("record event failure", err)
}
