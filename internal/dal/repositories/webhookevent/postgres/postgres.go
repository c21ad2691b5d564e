package postgresrepo

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/webhookevent"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var webhookEventColumns = []string{
	"id",
	"provider",
	"event_id",
	"type",
	"payload",
	"received_at",
	"processed_at",
	"error",
	"attempts",
}

// WebhookEventDal represents webhook event data access layer model.
type WebhookEventDal struct {
	Id          uuid.UUID  `db:"id"`
	Provider    string     `db:"provider"`
	EventId     string     `db:"event_id"`
	Type        string     `db:"type"`
	Payload     []byte     `db:"payload"`
	ReceivedAt  time.Time  `db:"received_at"`
	ProcessedAt *time.Time `db:"processed_at"`
	Error       *string    `db:"error"`
	Attempts    int        `db:"attempts"`
}

// ToModel converts WebhookEventDal to service layer WebhookEvent model.
func (e *WebhookEventDal) ToModel() webhookevent.WebhookEvent {
	return webhookevent.WebhookEvent{
		ID:          e.Id,
		Provider:    e.Provider,
		EventID:     e.EventId,
		Type:        e.Type,
		Payload:     e.Payload,
		ReceivedAt:  e.ReceivedAt,
		ProcessedAt: e.ProcessedAt,
		Error:       e.Error,
		Attempts:    e.Attempts,
	}
}

// PostgresWebhookEventRepository represents a Postgres webhook event ledger.
type PostgresWebhookEventRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresWebhookEventRepository creates a new Postgres webhook event ledger.
func NewPostgresWebhookEventRepository(conn postgres.GenericConn) *PostgresWebhookEventRepository {
	return &PostgresWebhookEventRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Record inserts the event unless its (provider, event id) is already in the ledger.
func (r *PostgresWebhookEventRepository) Record(
	ctx context.Context,
	e webhookevent.WebhookEvent,
) (webhookevent.WebhookEvent, bool, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	query, args, err := r.sb.
		Insert("webhook_events").
		Columns("id", "provider", "event_id", "type", "payload", "received_at").
		Values(e.ID, e.Provider, e.EventID, e.Type, []byte(e.Payload), e.ReceivedAt).
		Suffix("ON CONFLICT (provider, event_id) DO NOTHING RETURNING " + columns()).
		ToSql()
	if err != nil {
		return webhookevent.WebhookEvent{}, false, fmt.Errorf("failed to build insert query: %w", err)
	}

	stored, err := scan(r.conn.QueryRow(ctx, query, args...))
	if err == nil {
		return stored, true, nil
	}
	if !postgres.IsNoRows(err) {
		return webhookevent.WebhookEvent{}, false, apperr.Storage("failed to record webhook event", err)
	}

	existing, err := r.get(ctx, e.Provider, e.EventID, false)
	if err != nil {
		return webhookevent.WebhookEvent{}, false, err
	}

	return existing, false, nil
}

// Lock loads the ledger row with FOR UPDATE. It must run inside a transaction.
func (r *PostgresWebhookEventRepository) Lock(
	ctx context.Context,
	provider string,
	eventID string,
) (webhookevent.WebhookEvent, error) {
	return r.get(ctx, provider, eventID, true)
}

// MarkProcessed finalizes a successfully handled event.
func (r *PostgresWebhookEventRepository) MarkProcessed(
	ctx context.Context,
	provider string,
	eventID string,
	at time.Time,
) error {
	query, args, err := r.sb.
		Update("webhook_events").
		Set("processed_at", at).
		Set("error", nil).
		Set("attempts", sq.Expr("attempts + 1")).
		Where(sq.Eq{"provider": provider, "event_id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return apperr.Storage("failed to mark webhook event processed", err)
	}

	return nil
}

// MarkFailed stores the failure reason and counts the attempt. processed_at is left
// untouched so that a redelivery runs the handler again.
func (r *PostgresWebhookEventRepository) MarkFailed(
	ctx context.Context,
	provider string,
	eventID string,
	reason string,
) error {
	query, args, err := r.sb.
		Update("webhook_events").
		Set("error", reason).
		Set("attempts", sq.Expr("attempts + 1")).
		Where(sq.Eq{"provider": provider, "event_id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return apperr.Storage("failed to mark webhook event failed", err)
	}

	return nil
}

func (r *PostgresWebhookEventRepository) get(
	ctx context.Context,
	provider string,
	eventID string,
	forUpdate bool,
) (webhookevent.WebhookEvent, error) {
	query := r.sb.
		Select(webhookEventColumns...).
		From("webhook_events").
		Where(sq.Eq{"provider": provider, "event_id": eventID})
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return webhookevent.WebhookEvent{}, fmt.Errorf("failed to build query: %w", err)
	}

	e, err := scan(r.conn.QueryRow(ctx, sql, args...))
	if err != nil {
		return webhookevent.WebhookEvent{}, apperr.Storage("failed to load webhook event", err)
	}

	return e, nil
}

func scan(row pgx.Row) (webhookevent.WebhookEvent, error) {
	var dal WebhookEventDal
	err := row.Scan(
		&dal.Id,
		&dal.Provider,
		&dal.EventId,
		&dal.Type,
		&dal.Payload,
		&dal.ReceivedAt,
		&dal.ProcessedAt,
		&dal.Error,
		&dal.Attempts,
	)
	if err != nil {
		return webhookevent.WebhookEvent{}, err
	}

	return dal.ToModel(), nil
}

func columns() string {
	return "id, provider, event_id, type, payload, received_at, processed_at, error, attempts"
}
