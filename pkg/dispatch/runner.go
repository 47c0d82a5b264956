package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultBatchSize bounds how many due events one batch pass picks up.
const DefaultBatchSize = 100

// DefaultRetention is how long terminal events and their delivery history are
// kept before cleanup purges them.
const DefaultRetention = 30 * 24 * time.Hour

// BatchStats summarizes one batch pass.
type BatchStats struct {
	Processed int
	Delivered int
	Retried   int
	Failed    int
}

// Runner pulls bounded batches of due events and feeds them to the processor.
// Events are processed sequentially, oldest-created-first, so a slow endpoint
// delays but never starves the rest of the queue; per-event failures are
// absorbed by the processor and only tallied here.
type Runner struct {
	processor  *Processor
	events     EventStore
	deliveries DeliveryStore
	batchSize  int
	retention  time.Duration
	log        *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithBatchSize bounds how many due events RunBatch picks up. Default 100.
func WithBatchSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithRetention sets how long terminal events and deliveries are kept.
// Default 30 days.
func WithRetention(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.retention = d
		}
	}
}

// NewRunner wires a batch runner. logger may be nil.
func NewRunner(processor *Processor, events EventStore, deliveries DeliveryStore, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		processor:  processor,
		events:     events,
		deliveries: deliveries,
		batchSize:  DefaultBatchSize,
		retention:  DefaultRetention,
		log:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunBatch processes up to the configured batch size of due events and
// reports the tally. It returns an error only when the due-event query itself
// fails; individual event failures are recorded state, not errors.
func (r *Runner) RunBatch(ctx context.Context) (BatchStats, error) {
	var stats BatchStats

	due, err := r.events.ListDue(ctx, r.batchSize, time.Now().UTC())
	if err != nil {
		return stats, fmt.Errorf("list due events: %w", err)
	}

	for _, event := range due {
		outcome := r.processor.Process(ctx, event)
		stats.Processed++
		switch outcome.State {
		case OutcomeDelivered:
			stats.Delivered++
		case OutcomeRetrying:
			stats.Retried++
		case OutcomeFailed:
			stats.Failed++
		}

		r.log.Debug("processed webhook event",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", string(event.Type)),
			slog.String("outcome", outcome.State.String()))
	}

	if stats.Processed > 0 {
		r.log.Info("webhook batch complete",
			slog.Int("processed", stats.Processed),
			slog.Int("delivered", stats.Delivered),
			slog.Int("retried", stats.Retried),
			slog.Int("failed", stats.Failed))
	}

	return stats, nil
}

// Cleanup purges terminal events and delivery records older than the
// retention window and reports how many rows of each were removed.
func (r *Runner) Cleanup(ctx context.Context) (events, deliveries int64, err error) {
	cutoff := time.Now().UTC().Add(-r.retention)

	events, err = r.events.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("purge events: %w", err)
	}

	deliveries, err = r.deliveries.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return events, 0, fmt.Errorf("purge deliveries: %w", err)
	}

	if events > 0 || deliveries > 0 {
		r.log.Info("webhook retention cleanup",
			slog.Int64("events_purged", events),
			slog.Int64("deliveries_purged", deliveries))
	}

	return events, deliveries, nil
}
