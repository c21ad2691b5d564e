package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/outbox"
)

var outboxColumns = []string{
	"exchange_name",
	"routing_key",
	"payload",
	"content_type",
	"retry_count",
	"max_retries",
	"last_error",
	"created_at",
	"updated_at",
	"next_retry_at",
}

// OutboxMessageDal represents outbox message data access layer model.
type OutboxMessageDal struct {
	Id           int64     `db:"id"`
	ExchangeName string    `db:"exchange_name"`
	RoutingKey   string    `db:"routing_key"`
	Payload      []byte    `db:"payload"`
	ContentType  string    `db:"content_type"`
	RetryCount   int       `db:"retry_count"`
	MaxRetries   int       `db:"max_retries"`
	LastError    string    `db:"last_error"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	NextRetryAt  time.Time `db:"next_retry_at"`
}

// ToModel converts OutboxMessageDal to service layer OutboxMessage model.
func (m *OutboxMessageDal) ToModel() outbox.OutboxMessage {
	return outbox.OutboxMessage{
		ID:           m.Id,
		ExchangeName: m.ExchangeName,
		RoutingKey:   m.RoutingKey,
		Payload:      m.Payload,
		ContentType:  m.ContentType,
		RetryCount:   m.RetryCount,
		MaxRetries:   m.MaxRetries,
		LastError:    m.LastError,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		NextRetryAt:  m.NextRetryAt,
	}
}

func (m *OutboxMessageDal) scanTargets() []any {
	return []any{
		&m.Id,
		&m.ExchangeName,
		&m.RoutingKey,
		&m.Payload,
		&m.ContentType,
		&m.RetryCount,
		&m.MaxRetries,
		&m.LastError,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.NextRetryAt,
	}
}

// PostgresOutboxRepository represents a Postgres outbox of order lifecycle messages.
type PostgresOutboxRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresOutboxRepository creates a new Postgres outbox repository. conn is the pool
// for the relay and the open transaction when a message is written next to an order change.
func NewPostgresOutboxRepository(conn postgres.GenericConn) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Insert writes a message for the relay.
func (r *PostgresOutboxRepository) Insert(ctx context.Context, msg outbox.OutboxMessage) error {
	query, args, err := r.sb.
		Insert("outbox").
		Columns(outboxColumns...).
		Values(
			msg.ExchangeName,
			msg.RoutingKey,
			msg.Payload,
			msg.ContentType,
			msg.RetryCount,
			msg.MaxRetries,
			msg.LastError,
			msg.CreatedAt,
			msg.UpdatedAt,
			msg.NextRetryAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return apperr.Storage("failed to insert outbox message", err)
	}

	return nil
}

// Due returns messages whose next attempt is at or before now and that have retries left.
func (r *PostgresOutboxRepository) Due(ctx context.Context, now time.Time, limit int) ([]outbox.OutboxMessage, error) {
	query := r.sb.
		Select(append([]string{"id"}, outboxColumns...)...).
		From("outbox").
		Where(sq.LtOrEq{"next_retry_at": now}).
		Where("retry_count < max_retries").
		OrderBy("next_retry_at ASC", "id")

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Storage("failed to query due outbox messages", err)
	}
	defer rows.Close()

	var result []outbox.OutboxMessage
	for rows.Next() {
		var dal OutboxMessageDal
		if err := rows.Scan(dal.scanTargets()...); err != nil {
			return nil, apperr.Storage("failed to scan outbox message", err)
		}
		result = append(result, dal.ToModel())
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("rows iteration error", err)
	}

	return result, nil
}

// Delete removes a delivered message.
func (r *PostgresOutboxRepository) Delete(ctx context.Context, id int64) error {
	query, args, err := r.sb.
		Delete("outbox").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return apperr.Storage("failed to delete outbox message", err)
	}

	return nil
}

// ScheduleRetry stores the failed attempt and pushes the message to its next due time.
func (r *PostgresOutboxRepository) ScheduleRetry(ctx context.Context, id int64, retry outbox.Retry) error {
	query, args, err := r.sb.
		Update("outbox").
		Set("retry_count", retry.RetryCount).
		Set("last_error", retry.LastError).
		Set("next_retry_at", retry.NextRetryAt).
		Set("updated_at", retry.UpdatedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return apperr.Storage("failed to schedule outbox retry", err)
	}

	return nil
}
