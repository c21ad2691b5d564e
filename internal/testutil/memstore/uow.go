package memstore

import (
	"context"
	"errors"

	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iorder"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iorderitem"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/ioutbox"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/itaxsnapshot"
	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/iwebhookevent"
)

var errTxAlreadyOpen = errors.New("transaction already open")

// UnitOfWork implements iuow.UnitOfWork over a Store.
type UnitOfWork struct {
	store    *Store
	inTx     bool
	snapshot state
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.inTx {
		return errTxAlreadyOpen
	}
	if err := u.store.injected(OpBegin); err != nil {
		return err
	}

	u.store.mu.Lock()
	u.inTx = true
	u.snapshot = u.store.data.clone()

	return nil
}

func (u *UnitOfWork) Commit(ctx context.Context) error {
	if !u.inTx {
		return nil
	}
	if err := u.store.injected(OpCommit); err != nil {
		u.store.data = u.snapshot
		u.end()

		return err
	}
	u.end()

	return nil
}

func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if !u.inTx {
		return nil
	}
	u.store.data = u.snapshot
	u.end()

	return nil
}

func (u *UnitOfWork) end() {
	u.inTx = false
	u.snapshot = state{}
	u.store.mu.Unlock()
}

// lock guards a single statement outside a transaction. Inside one the store is already held.
func (u *UnitOfWork) lock() func() {
	if u.inTx {
		return func() {}
	}
	u.store.mu.Lock()

	return u.store.mu.Unlock
}

func (u *UnitOfWork) OrderRepository() iorder.Repository {
	return orderRepo{u}
}

func (u *UnitOfWork) OrderItemRepository() iorderitem.Repository {
	return orderItemRepo{u}
}

func (u *UnitOfWork) TaxSnapshotRepository() itaxsnapshot.Repository {
	return taxSnapshotRepo{u}
}

func (u *UnitOfWork) WebhookEventRepository() iwebhookevent.Repository {
	return webhookEventRepo{u}
}

func (u *UnitOfWork) OutboxRepository() ioutbox.Repository {
	return outboxRepo{u}
}
