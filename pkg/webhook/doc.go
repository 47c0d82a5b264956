// Package webhook implements the delivery mechanics of the Sandstone webhook
// pipeline: HMAC-SHA256 request signing and verification with replay
// protection, endpoint URL validation (SSRF mitigation), the outbound HTTP
// delivery client with outcome classification, exponential backoff, and an
// optional per-host circuit breaker.
//
// This package has no persistence and no business logic; it is the building
// block the pkg/dispatch pipeline drives. For the orchestration loop that
// resolves subscriptions, records deliveries, and schedules retries, see
// pkg/dispatch.
//
// # Signing
//
// Every delivery is signed with the subscription secret:
//
//	X-Webhook-Signature: v1=<hex HMAC-SHA256(secret, "{timestamp}.{body}")>
//	X-Webhook-Timestamp: <unix seconds>
//
// Receivers verify with:
//
//	err := webhook.Verify(rawBody, sigHeader, tsHeader, secret)
//
// Verification rejects timestamps more than five minutes from the receiver's
// clock in either direction and compares signatures in constant time.
//
// # Delivery
//
//	client := webhook.NewClient(webhook.WithTimeout(30 * time.Second))
//	result := client.Deliver(ctx, webhook.Endpoint{
//		URL:       "https://example.com/hooks",
//		Secret:    sub.Secret,
//		EventType: "essay.submitted",
//	}, payload)
//
// Result classifies the outcome: 2xx is success; 5xx and 408/409/425/429 are
// retryable failures; other 4xx are permanent; timeouts and network errors
// are retryable.
package webhook
