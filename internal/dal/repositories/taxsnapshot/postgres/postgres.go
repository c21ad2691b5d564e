package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/taxsnapshot"
	"github.com/google/uuid"
)

// TaxSnapshotDal represents tax snapshot data access layer model.
type TaxSnapshotDal struct {
	Id        uuid.UUID `db:"id"`
	OrderId   uuid.UUID `db:"order_id"`
	Provider  string    `db:"provider"`
	Snapshot  []byte    `db:"snapshot"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ToModel converts TaxSnapshotDal to service layer TaxSnapshot model.
func (t *TaxSnapshotDal) ToModel() taxsnapshot.TaxSnapshot {
	return taxsnapshot.TaxSnapshot{
		ID:        t.Id,
		OrderID:   t.OrderId,
		Provider:  t.Provider,
		Snapshot:  t.Snapshot,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// PostgresTaxSnapshotRepository represents a Postgres tax snapshot repository.
type PostgresTaxSnapshotRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresTaxSnapshotRepository creates a new Postgres tax snapshot repository.
func NewPostgresTaxSnapshotRepository(conn postgres.GenericConn) *PostgresTaxSnapshotRepository {
	return &PostgresTaxSnapshotRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Upsert inserts the order's snapshot, replacing provider and payload of an existing one.
func (r *PostgresTaxSnapshotRepository) Upsert(ctx context.Context, s taxsnapshot.TaxSnapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}

	query, args, err := r.sb.
		Insert("order_tax_snapshots").
		Columns("id", "order_id", "provider", "snapshot", "created_at", "updated_at").
		Values(s.ID, s.OrderID, s.Provider, []byte(s.Snapshot), s.CreatedAt, s.UpdatedAt).
		Suffix(`ON CONFLICT (order_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			snapshot = EXCLUDED.snapshot,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return apperr.Storage("failed to upsert tax snapshot", err)
	}

	return nil
}

// GetByOrder returns the order's snapshot. found is false when none was stored yet.
func (r *PostgresTaxSnapshotRepository) GetByOrder(
	ctx context.Context,
	orderID uuid.UUID,
) (taxsnapshot.TaxSnapshot, bool, error) {
	query, args, err := r.sb.
		Select("id", "order_id", "provider", "snapshot", "created_at", "updated_at").
		From("order_tax_snapshots").
		Where(sq.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return taxsnapshot.TaxSnapshot{}, false, fmt.Errorf("failed to build query: %w", err)
	}

	var dal TaxSnapshotDal
	err = r.conn.QueryRow(ctx, query, args...).Scan(
		&dal.Id,
		&dal.OrderId,
		&dal.Provider,
		&dal.Snapshot,
		&dal.CreatedAt,
		&dal.UpdatedAt,
	)
	if err != nil {
		if postgres.IsNoRows(err) {
			return taxsnapshot.TaxSnapshot{}, false, nil
		}

		return taxsnapshot.TaxSnapshot{}, false, apperr.Storage("failed to get tax snapshot", err)
	}

	return dal.ToModel(), true, nil
}
