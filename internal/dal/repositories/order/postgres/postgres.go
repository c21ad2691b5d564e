package postgresrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/currency"
	"github.com/corray333/backend-labs/checkout/internal/service/models/order"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var orderColumns = []string{
	"id",
	"status",
	"currency",
	"subtotal_cents",
	"tax_cents",
	"shipping_cents",
	"discount_cents",
	"total_cents",
	"email",
	"shipping_address",
	"checkout_session_id",
	"payment_intent_id",
	"customer_id",
	"created_at",
	"updated_at",
}

// OrderDal represents order data access layer model
type OrderDal struct {
	Id                uuid.UUID `db:"id"`
	Status            string    `db:"status"`
	Currency          string    `db:"currency"`
	SubtotalCents     int64     `db:"subtotal_cents"`
	TaxCents          int64     `db:"tax_cents"`
	ShippingCents     int64     `db:"shipping_cents"`
	DiscountCents     int64     `db:"discount_cents"`
	TotalCents        int64     `db:"total_cents"`
	Email             *string   `db:"email"`
	ShippingAddress   []byte    `db:"shipping_address"`
	CheckoutSessionId *string   `db:"checkout_session_id"`
	PaymentIntentId   *string   `db:"payment_intent_id"`
	CustomerId        *string   `db:"customer_id"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// ToModel converts OrderDal to service layer Order model
func (o *OrderDal) ToModel() (*order.Order, error) {
	cur, err := currency.ParseCurrency(o.Currency)
	if err != nil {
		return nil, err
	}
	status, ok := order.ParseStatus(o.Status)
	if !ok {
		return nil, fmt.Errorf("unknown order status %q", o.Status)
	}

	var address json.RawMessage
	if len(o.ShippingAddress) > 0 {
		address = json.RawMessage(o.ShippingAddress)
	}

	return &order.Order{
		ID:                o.Id,
		Status:            status,
		Currency:          cur,
		SubtotalCents:     o.SubtotalCents,
		TaxCents:          o.TaxCents,
		ShippingCents:     o.ShippingCents,
		DiscountCents:     o.DiscountCents,
		TotalCents:        o.TotalCents,
		Email:             o.Email,
		ShippingAddress:   address,
		CheckoutSessionID: o.CheckoutSessionId,
		PaymentIntentID:   o.PaymentIntentId,
		CustomerID:        o.CustomerId,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}, nil
}

func (o *OrderDal) scanTargets() []any {
	return []any{
		&o.Id,
		&o.Status,
		&o.Currency,
		&o.SubtotalCents,
		&o.TaxCents,
		&o.ShippingCents,
		&o.DiscountCents,
		&o.TotalCents,
		&o.Email,
		&o.ShippingAddress,
		&o.CheckoutSessionId,
		&o.PaymentIntentId,
		&o.CustomerId,
		&o.CreatedAt,
		&o.UpdatedAt,
	}
}

// PostgresOrderRepository represents a Postgres order repository.
type PostgresOrderRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresOrderRepository creates a new Postgres order repository.
func NewPostgresOrderRepository(conn postgres.GenericConn) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Insert creates the order row. Items are inserted separately.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	query, args, err := r.sb.
		Insert("orders").
		Columns(orderColumns...).
		Values(
			o.ID,
			o.Status.String(),
			o.Currency.String(),
			o.SubtotalCents,
			o.TaxCents,
			o.ShippingCents,
			o.DiscountCents,
			o.TotalCents,
			o.Email,
			nullableJSON(o.ShippingAddress),
			o.CheckoutSessionID,
			o.PaymentIntentID,
			o.CustomerID,
			o.CreatedAt,
			o.UpdatedAt,
		).
		Suffix("RETURNING " + columnList()).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	inserted, err := r.scanOne(r.conn.QueryRow(ctx, query, args...))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return order.Order{}, fmt.Errorf("failed to insert order: %w", apperr.ErrConflict)
		}

		return order.Order{}, apperr.Storage("failed to insert order", err)
	}

	return *inserted, nil
}

// Get loads one order without its items.
func (r *PostgresOrderRepository) Get(ctx context.Context, id uuid.UUID) (order.Order, error) {
	query, args, err := r.sb.
		Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build query: %w", err)
	}

	o, err := r.scanOne(r.conn.QueryRow(ctx, query, args...))
	if err != nil {
		if postgres.IsNoRows(err) {
			return order.Order{}, apperr.ErrOrderNotFound
		}

		return order.Order{}, apperr.Storage("failed to get order", err)
	}

	return *o, nil
}

// Query retrieves orders based on filter criteria, newest first.
func (r *PostgresOrderRepository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	query := r.sb.
		Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC", "id")

	if len(filter.Ids) > 0 {
		query = query.Where(sq.Eq{"id": filter.Ids})
	}

	if len(filter.Statuses) > 0 {
		query = query.Where(sq.Eq{"status": statusStrings(filter.Statuses)})
	}

	if filter.Email != "" {
		query = query.Where(sq.Eq{"email": filter.Email})
	}

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	return r.queryMany(ctx, query)
}

// QueryStale returns sessionless pending orders created before the cutoff, oldest first.
func (r *PostgresOrderRepository) QueryStale(ctx context.Context, filter order.StaleQuery) ([]order.Order, error) {
	query := r.sb.
		Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"status": order.StatusPendingPayment.String()}).
		Where(sq.Eq{"checkout_session_id": nil}).
		Where(sq.Lt{"created_at": filter.CreatedBefore}).
		OrderBy("created_at ASC")

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	return r.queryMany(ctx, query)
}

// AttachSession stores the hosted checkout session id on the order.
func (r *PostgresOrderRepository) AttachSession(ctx context.Context, id uuid.UUID, patch order.SessionPatch) error {
	query, args, err := r.sb.
		Update("orders").
		Set("checkout_session_id", patch.CheckoutSessionID).
		Set("updated_at", patch.UpdatedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("failed to attach checkout session: %w", apperr.ErrConflict)
		}

		return apperr.Storage("failed to attach checkout session", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrOrderNotFound
	}

	return nil
}

// ApplyPayment overwrites the order's financial fields with what the provider reported.
func (r *PostgresOrderRepository) ApplyPayment(ctx context.Context, id uuid.UUID, patch order.PaymentPatch) error {
	query, args, err := r.sb.
		Update("orders").
		Set("subtotal_cents", patch.SubtotalCents).
		Set("tax_cents", patch.TaxCents).
		Set("shipping_cents", patch.ShippingCents).
		Set("discount_cents", patch.DiscountCents).
		Set("total_cents", patch.TotalCents).
		Set("email", sq.Expr("COALESCE(?, email)", patch.Email)).
		Set("shipping_address", sq.Expr("COALESCE(?::jsonb, shipping_address)", nullableJSON(patch.ShippingAddress))).
		Set("checkout_session_id", sq.Expr("COALESCE(?, checkout_session_id)", patch.CheckoutSessionID)).
		Set("payment_intent_id", sq.Expr("COALESCE(?, payment_intent_id)", patch.PaymentIntentID)).
		Set("customer_id", sq.Expr("COALESCE(?, customer_id)", patch.CustomerID)).
		Set("updated_at", patch.UpdatedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Storage("failed to apply payment to order", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrOrderNotFound
	}

	return nil
}

// Transition applies trigger to a single order as a conditional update.
func (r *PostgresOrderRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	trigger order.Trigger,
	at time.Time,
) (order.StatusChange, bool, error) {
	changes, err := r.transition(ctx, sq.Eq{"id": id}, trigger, at)
	if err != nil {
		return order.StatusChange{}, false, err
	}
	if len(changes) == 0 {
		return order.StatusChange{}, false, nil
	}

	return changes[0], true, nil
}

// TransitionByPaymentIntent applies trigger to every order paid through paymentIntentID.
func (r *PostgresOrderRepository) TransitionByPaymentIntent(
	ctx context.Context,
	paymentIntentID string,
	trigger order.Trigger,
	at time.Time,
) ([]order.StatusChange, error) {
	return r.transition(ctx, sq.Eq{"payment_intent_id": paymentIntentID}, trigger, at)
}

func (r *PostgresOrderRepository) transition(
	ctx context.Context,
	match sq.Eq,
	trigger order.Trigger,
	at time.Time,
) ([]order.StatusChange, error) {
	from := order.MovableFrom(trigger)
	if len(from) == 0 {
		return nil, nil
	}
	to := order.Target(trigger)

	query, args, err := r.sb.
		Update("orders").
		Set("status", to.String()).
		Set("updated_at", at).
		Where(match).
		Where(sq.Eq{"status": statusStrings(from)}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage("failed to transition order", err)
	}
	defer rows.Close()

	var changes []order.StatusChange
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Storage("failed to scan transitioned order", err)
		}
		changes = append(changes, order.StatusChange{OrderID: id, To: to})
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("rows iteration error", err)
	}

	return changes, nil
}

func (r *PostgresOrderRepository) queryMany(ctx context.Context, query sq.SelectBuilder) ([]order.Order, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Storage("failed to query orders", err)
	}
	defer rows.Close()

	var result []order.Order
	for rows.Next() {
		var dal OrderDal
		if err := rows.Scan(dal.scanTargets()...); err != nil {
			return nil, apperr.Storage("failed to scan order", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err = rows.Err(); err != nil {
		return nil, apperr.Storage("rows iteration error", err)
	}

	return result, nil
}

func (r *PostgresOrderRepository) scanOne(row pgx.Row) (*order.Order, error) {
	var dal OrderDal
	if err := row.Scan(dal.scanTargets()...); err != nil {
		return nil, err
	}

	return dal.ToModel()
}

func columnList() string {
	return strings.Join(orderColumns, ", ")
}

func statusStrings(statuses []order.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}

	return out
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	return []byte(raw)
}
