package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/service/models/outbox"
	"github.com/corray333/backend-labs/checkout/internal/testutil/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange    string
	routingKey  string
	contentType string
	body        string
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	errs map[string]error
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey, contentType string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.errs[routingKey]; err != nil {
		return err
	}
	p.sent = append(p.sent, published{exchange, routingKey, contentType, string(body)})

	return nil
}

func newTestWorker(store *memstore.Store, pub Publisher, now time.Time) *Worker {
	w := NewWorker(store.OutboxRepository(), pub)
	w.now = func() time.Time { return now }

	return w
}

func message(key string, due time.Time) outbox.OutboxMessage {
	return outbox.OutboxMessage{
		ExchangeName: "orders",
		RoutingKey:   key,
		Payload:      []byte(`{"status":"` + key + `"}`),
		ContentType:  "application/json",
		MaxRetries:   outbox.DefaultMaxRetries,
		NextRetryAt:  due,
	}
}

func TestProcessMessagesPublishesAndDeletes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memstore.New()
	store.PutOutbox(message(outbox.RoutingKeyOrderPaid, now.Add(-time.Minute)))
	store.PutOutbox(message(outbox.RoutingKeyOrderCancelled, now))

	pub := &fakePublisher{}
	w := newTestWorker(store, pub, now)

	assert.Equal(t, 2, w.processMessages(context.Background()))
	assert.Empty(t, store.Outbox())

	require.Len(t, pub.sent, 2)
	assert.Equal(t, published{"orders", "order.paid", "application/json", `{"status":"order.paid"}`}, pub.sent[0])
	assert.Equal(t, "order.cancelled", pub.sent[1].routingKey)
}

func TestProcessMessagesSkipsMessagesNotDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memstore.New()
	store.PutOutbox(message(outbox.RoutingKeyOrderPaid, now.Add(time.Minute)))

	pub := &fakePublisher{}
	w := newTestWorker(store, pub, now)

	assert.Zero(t, w.processMessages(context.Background()))
	assert.Empty(t, pub.sent)
	assert.Len(t, store.Outbox(), 1)
}

func TestProcessMessagesSchedulesRetryWithBackoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memstore.New()
	store.PutOutbox(message(outbox.RoutingKeyOrderPaid, now))
	store.PutOutbox(message(outbox.RoutingKeyOrderRefunded, now))

	pub := &fakePublisher{errs: map[string]error{"order.paid": errors.New("channel closed")}}
	w := newTestWorker(store, pub, now)

	assert.Equal(t, 1, w.processMessages(context.Background()))

	left := store.Outbox()
	require.Len(t, left, 1)
	assert.Equal(t, "order.paid", left[0].RoutingKey)
	assert.Equal(t, 1, left[0].RetryCount)
	assert.Equal(t, "channel closed", left[0].LastError)
	assert.Equal(t, now.Add(60*time.Second), left[0].NextRetryAt)
	assert.Equal(t, now, left[0].UpdatedAt)

	// Not due again until the backoff elapses.
	assert.Zero(t, w.processMessages(context.Background()))
}

func TestBackoffDoubles(t *testing.T) {
	w := NewWorker(memstore.New().OutboxRepository(), &fakePublisher{})

	assert.Equal(t, 30*time.Second, w.backoff(0))
	assert.Equal(t, 60*time.Second, w.backoff(1))
	assert.Equal(t, 240*time.Second, w.backoff(3))
}

func TestStartReturnsOnStop(t *testing.T) {
	w := NewWorker(memstore.New().OutboxRepository(), &fakePublisher{})

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()
	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
