// Package dispatch is the orchestration layer of the Sandstone webhook
// pipeline: it owns the subscription/event/delivery data model, the typed
// store interfaces, the per-event processor, and the batch runner.
//
// The pipeline is driven by a periodic batch pass rather than a resident
// worker per event:
//
//	stores := dispatch.NewMemoryStores() // or pgstore.New(pool)
//	client := webhook.NewClient()
//	processor := dispatch.NewProcessor(client, stores.Subscriptions, stores.Events, stores.Deliveries, logger)
//	runner := dispatch.NewRunner(processor, stores.Events, stores.Deliveries, logger)
//
//	stats, err := runner.RunBatch(ctx)
//
// Each due event flows through Processor.Process: matching active
// subscriptions are resolved, the canonical payload
// {event, timestamp, webhookId, data} is delivered to each endpoint, every
// attempt is recorded as an immutable delivery row, subscription counters are
// updated with atomic increments, and the event ends the pass in exactly one
// of three states: delivered, retrying (rescheduled with exponential
// backoff), or failed.
//
// # Delivery semantics
//
// Delivery is at-least-once. Re-processing an event after a crash between
// delivery and the status update can produce duplicate delivery rows and
// duplicate counter increments; receivers should deduplicate on the
// X-Webhook-Id header. There is no uniqueness constraint on
// (event, subscription, attempt).
package dispatch
