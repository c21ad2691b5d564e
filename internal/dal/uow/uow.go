package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iorder"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iorderitem"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/ioutbox"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/itaxsnapshot"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iuow"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iwebhookevent"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	orderrepo "github.com/corray333/backend-labs/checkout/internal/dal/repositories/order/postgres"
	orderitemrepo "github.com/corray333/backend-labs/checkout/internal/dal/repositories/orderitem/postgres"
	outboxrepo "github.com/corray333/backend-labs/checkout/internal/dal/repositories/outbox/postgres"
	taxsnapshotrepo "github.com/corray333/backend-labs/checkout/internal/dal/repositories/taxsnapshot/postgres"
	webhookeventrepo "github.com/corray333/backend-labs/checkout/internal/dal/repositories/webhookevent/postgres"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errTxAlreadyOpen = errors.New("transaction already open")

type unitOfWork struct {
	pool *pgxpool.Pool
	tx   pgx.Tx

	orderRepo        iorder.Repository
	orderItemRepo    iorderitem.Repository
	taxSnapshotRepo  itaxsnapshot.Repository
	webhookEventRepo iwebhookevent.Repository
	outboxRepo       ioutbox.Repository
}

// NewUnitOfWork creates a unit of work whose repositories use the pool until Begin.
func NewUnitOfWork(client *postgres.Client) *unitOfWork {
	u := &unitOfWork{pool: client.Pool()}
	u.bind(client.Pool())

	return u
}

// NewFactory returns a iuow.Factory producing units of work on client.
func NewFactory(client *postgres.Client) iuow.Factory {
	return func() iuow.UnitOfWork {
		return NewUnitOfWork(client)
	}
}

func (u *unitOfWork) bind(conn postgres.GenericConn) {
	u.orderRepo = orderrepo.NewPostgresOrderRepository(conn)
	u.orderItemRepo = orderitemrepo.NewPostgresOrderItemRepository(conn)
	u.taxSnapshotRepo = taxsnapshotrepo.NewPostgresTaxSnapshotRepository(conn)
	u.webhookEventRepo = webhookeventrepo.NewPostgresWebhookEventRepository(conn)
	u.outboxRepo = outboxrepo.NewPostgresOutboxRepository(conn)
}

func (u *unitOfWork) OrderRepository() iorder.Repository {
	return u.orderRepo
}

func (u *unitOfWork) OrderItemRepository() iorderitem.Repository {
	return u.orderItemRepo
}

func (u *unitOfWork) TaxSnapshotRepository() itaxsnapshot.Repository {
	return u.taxSnapshotRepo
}

func (u *unitOfWork) WebhookEventRepository() iwebhookevent.Repository {
	return u.webhookEventRepo
}

func (u *unitOfWork) OutboxRepository() ioutbox.Repository {
	return u.outboxRepo
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return errTxAlreadyOpen
	}

	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return apperr.Storage("failed to begin transaction", err)
	}

	u.tx = tx
	u.bind(tx)

	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	defer u.reset()

	if err := u.tx.Commit(ctx); err != nil {
		return apperr.Storage("failed to commit transaction", err)
	}

	return nil
}

// Rollback is a no-op after Commit, so it can be deferred unconditionally.
func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	defer u.reset()

	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

func (u *unitOfWork) reset() {
	u.tx = nil
	u.bind(u.pool)
}
