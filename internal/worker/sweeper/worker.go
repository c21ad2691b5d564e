package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Sweeper cancels abandoned pending orders.
type Sweeper interface {
	SweepStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error)
}

// Worker periodically cancels pending orders whose checkout never got a session.
type Worker struct {
	sweeper    Sweeper
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	stopCh     chan struct{}
}

// NewWorker creates a new sweeper worker.
func NewWorker(sweeper Sweeper) *Worker {
	intervalSeconds := viper.GetInt("sweeper.interval_seconds")
	if intervalSeconds <= 0 {
		intervalSeconds = 300
	}

	staleAfterMinutes := viper.GetInt("sweeper.stale_after_minutes")
	if staleAfterMinutes <= 0 {
		staleAfterMinutes = 60
	}

	batchSize := viper.GetInt("sweeper.batch_size")
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Worker{
		sweeper:    sweeper,
		interval:   time.Duration(intervalSeconds) * time.Second,
		staleAfter: time.Duration(staleAfterMinutes) * time.Minute,
		batchSize:  batchSize,
		stopCh:     make(chan struct{}),
	}
}

// Start runs sweeps until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("Sweeper worker started", "interval", w.interval, "stale_after", w.staleAfter)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sweeper worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Sweeper worker stopped")

			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// sweep drains stale orders batch by batch.
func (w *Worker) sweep(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		cancelled, err := w.sweeper.SweepStalePending(ctx, w.staleAfter, w.batchSize)
		if err != nil {
			slog.Error("Failed to sweep stale orders", "error", err)

			return total
		}
		total += len(cancelled)
		if len(cancelled) < w.batchSize {
			break
		}
	}

	return total
}
