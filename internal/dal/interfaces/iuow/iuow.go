package iuow

import (
	"context"

	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iorder"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iorderitem"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/ioutbox"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/itaxsnapshot"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iwebhookevent"
)

// UnitOfWork groups repositories that share one transaction between Begin and Commit.
// Before Begin the repositories run each statement on its own.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorder.Repository
	OrderItemRepository() iorderitem.Repository
	TaxSnapshotRepository() itaxsnapshot.Repository
	WebhookEventRepository() iwebhookevent.Repository
	OutboxRepository() ioutbox.Repository
}

// Factory creates a fresh unit of work per logical operation.
type Factory func() UnitOfWork
