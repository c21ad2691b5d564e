package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/currency"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/corray333/backend-labs/checkout/internal/service/models/webhookevent"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder() order.Order {
	now := time.Now()

	return order.Order{
		ID:        uuid.New(),
		Status:    order.StatusPendingPayment,
		Currency:  currency.CurrencyUSD,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRollbackRestoresState(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := s.NewUnitOfWork()

	require.NoError(t, u.Begin(ctx))
	o, err := u.OrderRepository().Insert(ctx, pendingOrder())
	require.NoError(t, err)
	require.NoError(t, u.Rollback(ctx))

	_, ok := s.Order(o.ID)
	assert.False(t, ok)

	// the unit of work is usable again after rollback
	_, err = u.OrderRepository().Insert(ctx, o)
	require.NoError(t, err)
	_, ok = s.Order(o.ID)
	assert.True(t, ok)
}

func TestCommitKeepsState(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := s.NewUnitOfWork()

	require.NoError(t, u.Begin(ctx))
	o, err := u.OrderRepository().Insert(ctx, pendingOrder())
	require.NoError(t, err)
	require.NoError(t, u.Commit(ctx))
	require.NoError(t, u.Rollback(ctx))

	_, ok := s.Order(o.ID)
	assert.True(t, ok)
}

func TestFailOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.FailOnce(OpOrderInsert, ErrInjected)
	repo := s.NewUnitOfWork().OrderRepository()

	_, err := repo.Insert(ctx, pendingOrder())
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.ErrorIs(t, err, ErrInjected)

	_, err = repo.Insert(ctx, pendingOrder())
	assert.NoError(t, err)
}

func TestRecordReportsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := New().NewUnitOfWork().WebhookEventRepository()
	e := webhookevent.WebhookEvent{Provider: "stripe", EventID: "evt_1", Type: "charge.refunded"}

	first, inserted, err := repo.Record(ctx, e)
	require.NoError(t, err)
	assert.True(t, inserted)

	second, inserted, err := repo.Record(ctx, e)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)
}

func TestTransitionOnlyReportsRealChanges(t *testing.T) {
	ctx := context.Background()
	s := New()
	o := pendingOrder()
	o.Status = order.StatusPaid
	s.PutOrder(o)
	repo := s.NewUnitOfWork().OrderRepository()

	_, changed, err := repo.Transition(ctx, o.ID, order.TriggerSessionExpired, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	change, changed, err := repo.Transition(ctx, o.ID, order.TriggerRefunded, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, order.StatusRefunded, change.To)
}
