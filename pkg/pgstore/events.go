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

// EventStore is the PostgreSQL implementation of dispatch.EventStore.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventColumns = `id, event_type, payload, status, attempts, next_attempt_at,
	last_error, created_at, processed_at`

func (s *EventStore) Create(ctx context.Context, event *dispatch.Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.Type, []byte(event.Payload), event.Status,
		event.Attempts, event.NextAttemptAt, event.LastError,
		event.CreatedAt, event.ProcessedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *EventStore) Get(ctx context.Context, id uuid.UUID) (*dispatch.Event, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM webhook_events
		WHERE id = $1`, id)

	event, err := scanEvent(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, dispatch.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (s *EventStore) ListDue(ctx context.Context, limit int, now time.Time) ([]*dispatch.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM webhook_events
		WHERE status IN ('pending', 'retrying') AND next_attempt_at <= $2
		ORDER BY created_at
		LIMIT $1`, limit, now)
	if err != nil {
		return nil, fmt.Errorf("list due events: %w", err)
	}
	defer rows.Close()

	var out []*dispatch.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

func (s *EventStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = 'delivered', processed_at = $2, last_error = NULL
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark event delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrEventNotFound
	}
	return nil
}

func (s *EventStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = 'failed', processed_at = $2, last_error = $3
		WHERE id = $1`, id, at, reason)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrEventNotFound
	}
	return nil
}

func (s *EventStore) ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE webhook_events
		SET status = 'retrying', attempts = $2, next_attempt_at = $3, last_error = $4
		WHERE id = $1`, id, attempts, nextAttemptAt, reason)
	if err != nil {
		return fmt.Errorf("schedule event retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return dispatch.ErrEventNotFound
	}
	return nil
}

func (s *EventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM webhook_events
		WHERE status IN ('delivered', 'failed') AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEvent(row pgx.Row) (*dispatch.Event, error) {
	var (
		event   dispatch.Event
		payload []byte
	)
	if err := row.Scan(
		&event.ID, &event.Type, &payload, &event.Status,
		&event.Attempts, &event.NextAttemptAt, &event.LastError,
		&event.CreatedAt, &event.ProcessedAt,
	); err != nil {
		return nil, err
	}
	event.Payload = payload
	return &event, nil
}
