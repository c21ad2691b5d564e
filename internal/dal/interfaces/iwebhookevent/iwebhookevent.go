package iwebhookevent

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/service/models/webhookevent"
)

// Repository is the idempotency ledger.
type Repository interface {
	// Record inserts the event unless (provider, event id) is already present. inserted tells
	// which happened; the returned event is the stored row either way.
	Record(ctx context.Context, e webhookevent.WebhookEvent) (stored webhookevent.WebhookEvent, inserted bool, err error)
	// Lock loads the ledger row and holds it until the surrounding transaction ends.
	Lock(ctx context.Context, provider, eventID string) (webhookevent.WebhookEvent, error)
	MarkProcessed(ctx context.Context, provider, eventID string, at time.Time) error
	MarkFailed(ctx context.Context, provider, eventID string, reason string) error
}
