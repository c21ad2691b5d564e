package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/orderitem"
	"github.com/google/uuid"
)

var orderItemColumns = []string{
	"id",
	"order_id",
	"product_id",
	"variant_id",
	"title",
	"sku",
	"unit_price_cents",
	"quantity",
	"created_at",
}

// OrderItemDal represents order item data access layer model.
type OrderItemDal struct {
	Id             uuid.UUID `db:"id"`
	OrderId        uuid.UUID `db:"order_id"`
	ProductId      uuid.UUID `db:"product_id"`
	VariantId      uuid.UUID `db:"variant_id"`
	Title          string    `db:"title"`
	Sku            string    `db:"sku"`
	UnitPriceCents int64     `db:"unit_price_cents"`
	Quantity       int       `db:"quantity"`
	CreatedAt      time.Time `db:"created_at"`
}

// ToModel converts OrderItemDal to service layer OrderItem model.
func (oi *OrderItemDal) ToModel() orderitem.OrderItem {
	return orderitem.OrderItem{
		ID:             oi.Id,
		OrderID:        oi.OrderId,
		ProductID:      oi.ProductId,
		VariantID:      oi.VariantId,
		Title:          oi.Title,
		SKU:            oi.Sku,
		UnitPriceCents: oi.UnitPriceCents,
		Quantity:       oi.Quantity,
		CreatedAt:      oi.CreatedAt,
	}
}

// OrderItemDalFromModel converts service layer OrderItem model to OrderItemDal.
func OrderItemDalFromModel(oi *orderitem.OrderItem) *OrderItemDal {
	return &OrderItemDal{
		Id:             oi.ID,
		OrderId:        oi.OrderID,
		ProductId:      oi.ProductID,
		VariantId:      oi.VariantID,
		Title:          oi.Title,
		Sku:            oi.SKU,
		UnitPriceCents: oi.UnitPriceCents,
		Quantity:       oi.Quantity,
		CreatedAt:      oi.CreatedAt,
	}
}

func (oi *OrderItemDal) scanTargets() []any {
	return []any{
		&oi.Id,
		&oi.OrderId,
		&oi.ProductId,
		&oi.VariantId,
		&oi.Title,
		&oi.Sku,
		&oi.UnitPriceCents,
		&oi.Quantity,
		&oi.CreatedAt,
	}
}

// PostgresOrderItemRepository represents a Postgres order item repository.
type PostgresOrderItemRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresOrderItemRepository creates a new Postgres order item repository.
func NewPostgresOrderItemRepository(conn postgres.GenericConn) *PostgresOrderItemRepository {
	return &PostgresOrderItemRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// BulkInsert inserts all items in one statement and returns them as stored.
func (r *PostgresOrderItemRepository) BulkInsert(
	ctx context.Context,
	orderItems []orderitem.OrderItem,
) ([]orderitem.OrderItem, error) {
	if len(orderItems) == 0 {
		return []orderitem.OrderItem{}, nil
	}

	insert := r.sb.
		Insert("order_items").
		Columns(orderItemColumns...)

	for i := range orderItems {
		dal := OrderItemDalFromModel(&orderItems[i])
		if dal.Id == uuid.Nil {
			dal.Id = uuid.New()
		}
		insert = insert.Values(
			dal.Id,
			dal.OrderId,
			dal.ProductId,
			dal.VariantId,
			dal.Title,
			dal.Sku,
			dal.UnitPriceCents,
			dal.Quantity,
			dal.CreatedAt,
		)
	}

	sql, args, err := insert.
		Suffix("RETURNING id, order_id, product_id, variant_id, title, sku, unit_price_cents, quantity, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	return r.queryMany(ctx, sql, args, "failed to bulk insert order items")
}

// Query retrieves order items based on filter criteria.
func (r *PostgresOrderItemRepository) Query(
	ctx context.Context,
	filter *orderitem.QueryOrderItemsModel,
) ([]orderitem.OrderItem, error) {
	query := r.sb.
		Select(orderItemColumns...).
		From("order_items").
		OrderBy("created_at", "id")

	if len(filter.Ids) > 0 {
		query = query.Where(sq.Eq{"id": filter.Ids})
	}

	if len(filter.OrderIds) > 0 {
		query = query.Where(sq.Eq{"order_id": filter.OrderIds})
	}

	if len(filter.VariantIds) > 0 {
		query = query.Where(sq.Eq{"variant_id": filter.VariantIds})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	return r.queryMany(ctx, sql, args, "failed to query order items")
}

func (r *PostgresOrderItemRepository) queryMany(
	ctx context.Context,
	sql string,
	args []any,
	op string,
) ([]orderitem.OrderItem, error) {
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	var result []orderitem.OrderItem
	for rows.Next() {
		var dal OrderItemDal
		if err := rows.Scan(dal.scanTargets()...); err != nil {
			return nil, apperr.Storage("failed to scan order item", err)
		}

		result = append(result, dal.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, apperr.Storage("rows iteration error", err)
	}

	return result, nil
}
