package ioutbox

import (
	"context"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/service/models/outbox"
)

// Repository stores order lifecycle messages until the relay delivers them.
type Repository interface {
	// Insert writes msg, normally in the transaction of the change it announces.
	Insert(ctx context.Context, msg outbox.OutboxMessage) error

	// Due returns up to limit messages whose next attempt is at or before now and that
	// still have retries left, earliest first.
	Due(ctx context.Context, now time.Time, limit int) ([]outbox.OutboxMessage, error)

	// Delete removes a delivered message.
	Delete(ctx context.Context, id int64) error

	// ScheduleRetry records a failed delivery.
	ScheduleRetry(ctx context.Context, id int64, retry outbox.Retry) error
}
