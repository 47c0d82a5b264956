package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sandstone-edu/webhooks/pkg/dispatch"
)

// SubscriptionStore is the PostgreSQL implementation of
// dispatch.SubscriptionStore. Counter updates are single UPDATE statements
// with server-side increments, never read-modify-write.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

const subscriptionColumns = `id, user_id, url, secret, event_types, headers, status,
	max_retries, retry_interval_seconds, total_delivered, total_failed,
	last_delivered_at, last_failed_at, last_error, created_at, updated_at`

func (s *SubscriptionStore) Create(ctx context.Context, sub *dispatch.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		sub.ID, sub.UserID, sub.URL, sub.Secret,
		eventTypeStrings(sub.EventTypes), sub.Headers, sub.Status,
		sub.MaxRetries, int64(sub.RetryInterval/time.Second),
		sub.TotalDelivered, sub.TotalFailed,
		sub.LastDeliveredAt, sub.LastFailedAt, sub.LastError,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Update(ctx context.Context, sub *dispatch.Subscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_subscriptions
		SET url = $2, secret = $3, event_types = $4, headers = $5, status = $6,
			max_retries = $7, retry_interval_seconds = $8, updated_at = $9
		WHERE id = $1`,
		sub.ID, sub.URL, sub.Secret, eventTypeStrings(sub.EventTypes), sub.Headers,
		sub.Status, sub.MaxRetries, int64(sub.RetryInterval/time.Second),
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrSubscriptionNotFound
	}
	return nil
}

func (s *SubscriptionStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrSubscriptionNotFound
	}
	return nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*dispatch.Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, dispatch.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*dispatch.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE user_id = $1
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions by user: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

func (s *SubscriptionStore) ListActiveForEvent(ctx context.Context, t dispatch.EventType) ([]*dispatch.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM webhook_subscriptions
		WHERE status = 'active'
			AND (cardinality(event_types) = 0 OR $1 = ANY(event_types))
		ORDER BY created_at`, string(t))
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

func (s *SubscriptionStore) RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_subscriptions
		SET total_delivered = total_delivered + 1, last_delivered_at = $2, updated_at = $2
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("record delivery success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrSubscriptionNotFound
	}
	return nil
}

func (s *SubscriptionStore) RecordFailure(ctx context.Context, id uuid.UUID, at time.Time, deliveryErr string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_subscriptions
		SET total_failed = total_failed + 1, last_failed_at = $2, last_error = $3, updated_at = $2
		WHERE id = $1`, id, at, deliveryErr)
	if err != nil {
		return fmt.Errorf("record delivery failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrSubscriptionNotFound
	}
	return nil
}

func eventTypeStrings(types []dispatch.EventType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func scanSubscription(row pgx.Row) (*dispatch.Subscription, error) {
	var (
		sub             dispatch.Subscription
		eventTypes      []string
		intervalSeconds int64
	)
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.URL, &sub.Secret,
		&eventTypes, &sub.Headers, &sub.Status,
		&sub.MaxRetries, &intervalSeconds,
		&sub.TotalDelivered, &sub.TotalFailed,
		&sub.LastDeliveredAt, &sub.LastFailedAt, &sub.LastError,
		&sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.RetryInterval = time.Duration(intervalSeconds) * time.Second
	if len(eventTypes) > 0 {
		sub.EventTypes = make([]dispatch.EventType, len(eventTypes))
		for i, t := range eventTypes {
			sub.EventTypes[i] = dispatch.EventType(t)
		}
	}
	return &sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*dispatch.Subscription, error) {
	var out []*dispatch.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return out, nil
}
