// Package pgstore persists webhook subscriptions, events, and delivery
// history in PostgreSQL using the pgx/v5 driver.
//
// It implements the store interfaces defined in pkg/dispatch on top of three
// tables (webhook_subscriptions, webhook_events, webhook_deliveries) whose
// schema ships as embedded goose migrations, applied with Migrate at startup.
// A partial index on (next_attempt_at, created_at) keeps the due-event poll
// cheap regardless of accumulated history.
//
// Subscription statistics are updated with server-side atomic increments
// (total_delivered = total_delivered + 1), so concurrent delivery completions
// never lose counts.
//
// Typical wiring:
//
//	pool, err := pgstore.Connect(ctx, cfg)
//	if err != nil { ... }
//	defer pool.Close()
//
//	if err := pgstore.Migrate(ctx, pool, cfg, slog.Default()); err != nil { ... }
//
//	stores := pgstore.New(pool)
//	processor := dispatch.NewProcessor(client, stores.Subscriptions, stores.Events, stores.Deliveries, logger)
package pgstore
