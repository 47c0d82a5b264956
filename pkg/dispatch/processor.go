package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sandstone-edu/webhooks/pkg/webhook"
)

// OutcomeState is the processor's decision for an event.
type OutcomeState int

const (
	// OutcomeDelivered means every matching subscription accepted the event
	// (or no subscription matched). Terminal.
	OutcomeDelivered OutcomeState = iota
	// OutcomeRetrying means at least one retryable failure occurred and the
	// event was rescheduled.
	OutcomeRetrying
	// OutcomeFailed means delivery failed with no retry budget left, or only
	// non-retryable failures occurred. Terminal.
	OutcomeFailed
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRetrying:
		return "retrying"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the single, explicit decision point for an event's fate after a
// processing pass: delivered, rescheduled, or terminally failed.
type Outcome struct {
	State         OutcomeState
	NextAttemptAt time.Time // set when State is OutcomeRetrying
	Reason        string    // set when State is OutcomeRetrying or OutcomeFailed
	Deliveries    []*Delivery
}

// Processor runs one delivery pass for a webhook event: it resolves matching
// active subscriptions, delivers to each through the webhook client, records
// every attempt, folds results into subscription counters, and decides the
// event's next state. It never lets an error or panic escape: every failure
// becomes recorded state so one bad event cannot halt a batch.
type Processor struct {
	client        *webhook.Client
	subscriptions SubscriptionStore
	events        EventStore
	deliveries    DeliveryStore
	log           *slog.Logger

	defaultMaxRetries    int
	defaultRetryInterval time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRetryDefaults sets the service-level retry settings applied to
// subscriptions that carry none of their own, and the interval the processor
// falls back to when failing subscriptions report unusable values.
// Non-positive values keep the package defaults.
func WithRetryDefaults(maxRetries int, retryInterval time.Duration) ProcessorOption {
	return func(p *Processor) {
		if maxRetries > 0 {
			p.defaultMaxRetries = maxRetries
		}
		if retryInterval >= MinRetryInterval {
			p.defaultRetryInterval = retryInterval
		}
	}
}

// NewProcessor wires a processor. logger may be nil, in which case
// slog.Default is used.
func NewProcessor(client *webhook.Client, subscriptions SubscriptionStore, events EventStore, deliveries DeliveryStore, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		client:               client,
		subscriptions:        subscriptions,
		events:               events,
		deliveries:           deliveries,
		log:                  logger,
		defaultMaxRetries:    DefaultMaxRetries,
		defaultRetryInterval: DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one delivery pass for event and returns the decided outcome.
// The event row is updated to match the outcome before Process returns.
func (p *Processor) Process(ctx context.Context, event *Event) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("processing panic: %v", r)
			p.log.Error("webhook event processing panicked",
				slog.String("event_id", event.ID.String()),
				slog.Any("panic", r))
			p.markFailed(ctx, event.ID, reason)
			outcome = Outcome{State: OutcomeFailed, Reason: reason}
		}
	}()

	subs, err := p.subscriptions.ListActiveForEvent(ctx, event.Type)
	if err != nil {
		reason := fmt.Sprintf("resolve subscriptions: %v", err)
		p.markFailed(ctx, event.ID, reason)
		return Outcome{State: OutcomeFailed, Reason: reason}
	}

	// Absence of subscribers is not a failure.
	if len(subs) == 0 {
		if err := p.events.MarkDelivered(ctx, event.ID, time.Now().UTC()); err != nil {
			p.log.Error("mark event delivered",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()))
		}
		return Outcome{State: OutcomeDelivered}
	}

	payload := EventPayload{
		Event:     event.Type,
		Timestamp: event.CreatedAt,
		WebhookID: event.ID,
		Data:      event.Payload,
	}

	var (
		failed        int
		retryable     bool
		retryBudget   int
		retryInterval time.Duration
		records       []*Delivery
	)

	for _, sub := range subs {
		record, canRetry := p.deliverOne(ctx, event, sub, payload)
		records = append(records, record)

		if record.Status == DeliveryDelivered {
			continue
		}
		failed++
		if canRetry {
			retryable = true
			maxRetries, interval := sub.retrySettings(p.defaultMaxRetries, p.defaultRetryInterval)
			if maxRetries > retryBudget {
				retryBudget = maxRetries
			}
			if retryInterval == 0 || interval < retryInterval {
				retryInterval = interval
			}
		}
	}

	now := time.Now().UTC()

	if failed == 0 {
		if err := p.events.MarkDelivered(ctx, event.ID, now); err != nil {
			p.log.Error("mark event delivered",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()))
		}
		return Outcome{State: OutcomeDelivered, Deliveries: records}
	}

	reason := fmt.Sprintf("%d/%d deliveries failed", failed, len(subs))

	if retryable && event.Attempts < retryBudget {
		if retryInterval < MinRetryInterval {
			retryInterval = p.defaultRetryInterval
		}
		// Coarse-grained reschedule: retry interval doubled per attempt,
		// no jitter.
		next := now.Add(webhook.ScheduleBackoff(retryInterval).Delay(event.Attempts))
		if err := p.events.ScheduleRetry(ctx, event.ID, event.Attempts+1, next, reason); err != nil {
			p.log.Error("schedule event retry",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()))
			p.markFailed(ctx, event.ID, reason)
			return Outcome{State: OutcomeFailed, Reason: reason, Deliveries: records}
		}
		return Outcome{State: OutcomeRetrying, NextAttemptAt: next, Reason: reason, Deliveries: records}
	}

	p.markFailed(ctx, event.ID, reason)
	return Outcome{State: OutcomeFailed, Reason: reason, Deliveries: records}
}

// deliverOne performs one delivery attempt for one subscription and records
// it: an unconditional delivery row plus an atomic counter update. Store
// errors are logged and swallowed; the attempt result stands on its own.
// The second return reports whether the failure, if any, is retryable.
func (p *Processor) deliverOne(ctx context.Context, event *Event, sub *Subscription, payload EventPayload) (*Delivery, bool) {
	started := time.Now().UTC()

	res := p.client.Deliver(ctx, webhook.Endpoint{
		ID:        sub.ID.String(),
		URL:       sub.URL,
		Secret:    sub.Secret,
		EventType: string(event.Type),
		WebhookID: event.ID.String(),
		Headers:   sub.Headers,
	}, payload)

	completed := time.Now().UTC()
	record := &Delivery{
		ID:             uuid.New(),
		EventID:        event.ID,
		SubscriptionID: sub.ID,
		DurationMs:     res.Duration.Milliseconds(),
		AttemptNumber:  event.Attempts + 1,
		StartedAt:      started,
		CompletedAt:    completed,
	}
	if res.StatusCode != 0 {
		status := res.StatusCode
		record.HTTPStatus = &status
	}
	record.ResponseBody = res.Body
	record.ResponseHeaders = res.Headers

	if res.Success {
		record.Status = DeliveryDelivered
	} else {
		record.Status = DeliveryFailed
		errMsg := res.Error
		record.Error = &errMsg
	}

	if err := p.deliveries.Create(ctx, record); err != nil {
		p.log.Error("record webhook delivery",
			slog.String("event_id", event.ID.String()),
			slog.String("subscription_id", sub.ID.String()),
			slog.String("error", err.Error()))
	}

	if res.Success {
		if err := p.subscriptions.RecordSuccess(ctx, sub.ID, completed); err != nil {
			p.log.Error("update subscription counters",
				slog.String("subscription_id", sub.ID.String()),
				slog.String("error", err.Error()))
		}
	} else {
		if err := p.subscriptions.RecordFailure(ctx, sub.ID, completed, res.Error); err != nil {
			p.log.Error("update subscription counters",
				slog.String("subscription_id", sub.ID.String()),
				slog.String("error", err.Error()))
		}
		p.log.Warn("webhook delivery failed",
			slog.String("event_id", event.ID.String()),
			slog.String("subscription_id", sub.ID.String()),
			slog.Int("status", res.StatusCode),
			slog.Bool("retryable", res.Retryable),
			slog.String("error", res.Error))
	}

	return record, res.Retryable
}

func (p *Processor) markFailed(ctx context.Context, eventID uuid.UUID, reason string) {
	if err := p.events.MarkFailed(ctx, eventID, reason, time.Now().UTC()); err != nil {
		p.log.Error("mark event failed",
			slog.String("event_id", eventID.String()),
			slog.String("error", err.Error()))
	}
}
