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

// DeliveryStore is the PostgreSQL implementation of dispatch.DeliveryStore.
// Rows are append-only; there is no update path.
type DeliveryStore struct {
	pool *pgxpool.Pool
}

func NewDeliveryStore(pool *pgxpool.Pool) *DeliveryStore {
	return &DeliveryStore{pool: pool}
}

const deliveryColumns = `id, event_id, subscription_id, status, http_status,
	response_body, response_headers, duration_ms, error, attempt_number,
	started_at, completed_at`

func (s *DeliveryStore) Create(ctx context.Context, delivery *dispatch.Delivery) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		delivery.ID, delivery.EventID, delivery.SubscriptionID, delivery.Status,
		delivery.HTTPStatus, delivery.ResponseBody, delivery.ResponseHeaders,
		delivery.DurationMs, delivery.Error, delivery.AttemptNumber,
		delivery.StartedAt, delivery.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (s *DeliveryStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*dispatch.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE event_id = $1
		ORDER BY completed_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by event: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func (s *DeliveryStore) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*dispatch.Delivery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryColumns+`
		FROM webhook_deliveries
		WHERE subscription_id = $1
		ORDER BY completed_at DESC
		LIMIT $2`, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by subscription: %w", err)
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func (s *DeliveryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM webhook_deliveries
		WHERE completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanDelivery(row pgx.Row) (*dispatch.Delivery, error) {
	var d dispatch.Delivery
	if err := row.Scan(
		&d.ID, &d.EventID, &d.SubscriptionID, &d.Status, &d.HTTPStatus,
		&d.ResponseBody, &d.ResponseHeaders, &d.DurationMs, &d.Error,
		&d.AttemptNumber, &d.StartedAt, &d.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDeliveries(rows pgx.Rows) ([]*dispatch.Delivery, error) {
	var out []*dispatch.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}
