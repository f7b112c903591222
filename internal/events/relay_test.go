package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pdv/internal/events"
)

type memOutbox struct {
	pending   []events.Event
	published []int64
	failures  map[int64]string
}

func (m *memOutbox) PendingEvents(_ context.Context, limit int) ([]events.Event, error) {
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *memOutbox) MarkEventPublished(_ context.Context, id int64) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memOutbox) RecordEventFailure(_ context.Context, id int64, reason string) error {
	if m.failures == nil {
		m.failures = map[int64]string{}
	}
	m.failures[id] = reason
	return nil
}

type flakyPublisher struct {
	failID int64
	sent   []events.Event
}

func (p *flakyPublisher) Publish(_ context.Context, ev events.Event) error {
	if ev.ID == p.failID {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, ev)
	return nil
}

type captureNotifier struct {
	topics []string
}

func (c *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	c.topics = append(c.topics, ev.Topic)
	return nil
}

func TestNewEncodesPayload(t *testing.T) {
	ev, err := events.New(events.TopicSaleRecorded, "sale-1", map[string]any{"saleId": "sale-1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"saleId":"sale-1"}`, string(ev.Payload))

	_, err = events.New("", "k", nil)
	require.Error(t, err)
	_, err = events.New(events.TopicSaleRecorded, "k", "{nope")
	require.Error(t, err)

	empty, err := events.New(events.TopicSaleRecorded, "k", nil)
	require.NoError(t, err)
	require.Equal(t, "{}", string(empty.Payload))
}

func TestRelayFlushContinuesPastFailures(t *testing.T) {
	store := &memOutbox{pending: []events.Event{
		{ID: 1, Topic: events.TopicSaleRecorded, Key: "s1", Payload: json.RawMessage(`{}`)},
		{ID: 2, Topic: events.TopicCreditApplied, Key: "c1", Payload: json.RawMessage(`{}`)},
		{ID: 3, Topic: events.TopicSaleReversed, Key: "s1", Payload: json.RawMessage(`{}`)},
	}}
	pub := &flakyPublisher{failID: 2}
	notifier := &captureNotifier{}
	relay := &events.Relay{Store: store, Publisher: pub, Notifiers: []events.Notifier{notifier}, Logger: zerolog.Nop()}

	n, err := relay.Flush(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []int64{1, 3}, store.published)
	require.Contains(t, store.failures[2], "broker unavailable")
	require.Equal(t, []string{events.TopicSaleRecorded, events.TopicSaleReversed}, notifier.topics)
}

func TestRelayRequiresDependencies(t *testing.T) {
	_, err := (&events.Relay{}).Flush(context.Background())
	require.Error(t, err)
}

func TestKafkaMessage(t *testing.T) {
	msg := events.Message(events.Event{ID: 42, Topic: events.TopicSaleRecorded, Key: "sale-9", Payload: json.RawMessage(`{"a":1}`)})
	require.Equal(t, "sale-9", string(msg.Key))
	require.Equal(t, `{"a":1}`, string(msg.Value))
	require.Equal(t, "event_type", msg.Headers[0].Key)
	require.Equal(t, events.TopicSaleRecorded, string(msg.Headers[0].Value))
	require.Equal(t, "42", string(msg.Headers[1].Value))
}
