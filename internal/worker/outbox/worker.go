package outbox

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/corray333/backend-labs/checkout/internal/dal/interfaces/ioutbox"
	"github.com/corray333/backend-labs/checkout/internal/service/models/outbox"
	"github.com/spf13/viper"
)

// Publisher delivers a message to the broker.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey, contentType string, body []byte) error
}

// Worker relays order lifecycle messages from the outbox table to RabbitMQ.
type Worker struct {
	outboxRepo    ioutbox.Repository
	publisher     Publisher
	pollInterval  time.Duration
	batchSize     int
	retryInterval time.Duration
	now           func() time.Time
	stopCh        chan struct{}
}

// NewWorker creates a new outbox worker.
func NewWorker(outboxRepo ioutbox.Repository, publisher Publisher) *Worker {
	pollIntervalSeconds := viper.GetInt("rabbitmq.outbox.poll_interval_seconds")
	if pollIntervalSeconds == 0 {
		pollIntervalSeconds = 10
	}

	batchSize := viper.GetInt("rabbitmq.outbox.batch_size")
	if batchSize == 0 {
		batchSize = 100
	}

	retryIntervalSeconds := viper.GetInt("rabbitmq.outbox.retry_interval_seconds")
	if retryIntervalSeconds == 0 {
		retryIntervalSeconds = 30
	}

	return &Worker{
		outboxRepo:    outboxRepo,
		publisher:     publisher,
		pollInterval:  time.Duration(pollIntervalSeconds) * time.Second,
		batchSize:     batchSize,
		retryInterval: time.Duration(retryIntervalSeconds) * time.Second,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Start begins processing messages from the outbox. It returns when ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")

			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// backoff returns the delay before the given attempt: retryInterval, doubled per attempt.
func (w *Worker) backoff(retryCount int) time.Duration {
	return time.Duration(math.Pow(2, float64(retryCount))) * w.retryInterval
}

// processMessages publishes due messages and returns how many were delivered.
func (w *Worker) processMessages(ctx context.Context) int {
	messages, err := w.outboxRepo.Due(ctx, w.now(), w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from outbox", "error", err)

		return 0
	}

	if len(messages) == 0 {
		return 0
	}

	slog.Info("Processing outbox messages", "count", len(messages))

	delivered := 0
	for _, msg := range messages {
		err := w.publisher.Publish(ctx, msg.ExchangeName, msg.RoutingKey, msg.ContentType, msg.Payload)
		if err != nil {
			now := w.now()
			newRetryCount := msg.RetryCount + 1
			nextRetryAt := now.Add(w.backoff(newRetryCount))

			slog.Warn("Failed to publish message from outbox, will retry",
				"outbox_id", msg.ID,
				"routing_key", msg.RoutingKey,
				"retry_count", newRetryCount,
				"next_retry", nextRetryAt,
				"error", err,
			)

			if newRetryCount >= msg.MaxRetries {
				slog.Error("Outbox message exhausted its retries", "outbox_id", msg.ID, "routing_key", msg.RoutingKey)
			}

			retry := outbox.Retry{
				RetryCount:  newRetryCount,
				LastError:   err.Error(),
				NextRetryAt: nextRetryAt,
				UpdatedAt:   now,
			}
			if err := w.outboxRepo.ScheduleRetry(ctx, msg.ID, retry); err != nil {
				slog.Error("Failed to update retry information", "outbox_id", msg.ID, "error", err)
			}

			continue
		}

		delivered++
		if err := w.outboxRepo.Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete message from outbox after successful publish",
				"outbox_id", msg.ID,
				"error", err,
			)
		} else {
			slog.Info("Message successfully published and removed from outbox", "outbox_id", msg.ID)
		}
	}

	return delivered
}
