package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStore persists webhook subscriptions. RecordSuccess and
// RecordFailure must be implemented as server-side atomic increments, never
// read-modify-write: concurrent delivery completions for the same
// subscription must not lose counter updates.
type SubscriptionStore interface {
	Create(ctx context.Context, sub *Subscription) error
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error)

	// ListActiveForEvent returns active subscriptions whose event-type filter
	// includes t, including subscriptions with an empty ("all events") filter.
	ListActiveForEvent(ctx context.Context, t EventType) ([]*Subscription, error)

	// RecordSuccess atomically increments total_delivered and sets
	// last_delivered_at.
	RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error

	// RecordFailure atomically increments total_failed and sets
	// last_failed_at and last_error.
	RecordFailure(ctx context.Context, id uuid.UUID, at time.Time, deliveryErr string) error
}

// EventStore persists webhook events. Status mutations go through the
// explicit transition methods so stores can enforce monotonic terminal
// states.
type EventStore interface {
	Create(ctx context.Context, event *Event) error
	Get(ctx context.Context, id uuid.UUID) (*Event, error)

	// ListDue returns up to limit events with status pending or retrying and
	// next_attempt_at <= now, ordered oldest-created-first.
	ListDue(ctx context.Context, limit int, now time.Time) ([]*Event, error)

	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error

	// ScheduleRetry moves the event to the retrying state with the given
	// attempt count and due time.
	ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, reason string) error

	// DeleteOlderThan purges terminal (delivered or failed) events created
	// before cutoff and reports how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeliveryStore persists the append-only delivery attempt log.
type DeliveryStore interface {
	Create(ctx context.Context, delivery *Delivery) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*Delivery, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*Delivery, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
