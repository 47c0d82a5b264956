package dispatch

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sandstone-edu/webhooks/pkg/webhook"
)

// EventType identifies what happened on the platform. The vocabulary is a
// fixed enumeration; extending it is a versioned change for all receivers.
type EventType string

const (
	EventUserCreated EventType = "user.created"
	EventUserUpdated EventType = "user.updated"
	EventUserDeleted EventType = "user.deleted"

	EventEssaySubmitted EventType = "essay.submitted"
	EventEssayUpdated   EventType = "essay.updated"
	EventEssayDeleted   EventType = "essay.deleted"

	EventGradingStarted   EventType = "grading.started"
	EventGradingCompleted EventType = "grading.completed"
	EventGradingFailed    EventType = "grading.failed"

	EventDocumentCreated EventType = "document.created"
	EventDocumentUpdated EventType = "document.updated"
	EventDocumentDeleted EventType = "document.deleted"

	EventDeckCreated  EventType = "flashcard.deck_created"
	EventCardReviewed EventType = "flashcard.card_reviewed"

	EventQuizCompleted        EventType = "quiz.completed"
	EventQuizAttemptSubmitted EventType = "quiz.attempt_submitted"

	// EventTestWebhook is internal: it is sent by endpoint testing only and
	// cannot be subscribed to.
	EventTestWebhook EventType = "test.webhook"
)

var subscribableEventTypes = map[EventType]struct{}{
	EventUserCreated: {}, EventUserUpdated: {}, EventUserDeleted: {},
	EventEssaySubmitted: {}, EventEssayUpdated: {}, EventEssayDeleted: {},
	EventGradingStarted: {}, EventGradingCompleted: {}, EventGradingFailed: {},
	EventDocumentCreated: {}, EventDocumentUpdated: {}, EventDocumentDeleted: {},
	EventDeckCreated: {}, EventCardReviewed: {},
	EventQuizCompleted: {}, EventQuizAttemptSubmitted: {},
}

// Valid reports whether t is a subscribable event type. The internal
// test.webhook type is not.
func (t EventType) Valid() bool {
	_, ok := subscribableEventTypes[t]
	return ok
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

// EventStatus tracks an event through the delivery pipeline. Transitions are
// monotonic toward a terminal state (delivered or failed) except for the
// bounded retrying cycle.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventRetrying  EventStatus = "retrying"
	EventDelivered EventStatus = "delivered"
	EventFailed    EventStatus = "failed"
)

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Subscription limits and defaults.
const (
	DefaultMaxRetries    = 3
	MaxAllowedRetries    = 10
	DefaultRetryInterval = 60 * time.Second
	MinRetryInterval     = 10 * time.Second
	MaxCustomHeaders     = 10
	MinSecretLength      = 16
	MaxSecretLength      = 128
)

// Subscription is a user-owned registration of an HTTP endpoint interested in
// a set of event types. An empty EventTypes set means "all events".
type Subscription struct {
	ID              uuid.UUID          `json:"id"`
	UserID          uuid.UUID          `json:"user_id"`
	URL             string             `json:"url"`
	Secret          string             `json:"-"`
	EventTypes      []EventType        `json:"event_types,omitempty"`
	Headers         map[string]string  `json:"headers,omitempty"`
	Status          SubscriptionStatus `json:"status"`
	MaxRetries      int                `json:"max_retries"`
	RetryInterval   time.Duration      `json:"retry_interval"`
	TotalDelivered  int64              `json:"total_delivered"`
	TotalFailed     int64              `json:"total_failed"`
	LastDeliveredAt *time.Time         `json:"last_delivered_at,omitempty"`
	LastFailedAt    *time.Time         `json:"last_failed_at,omitempty"`
	LastError       *string            `json:"last_error,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Normalize applies the package defaults for unset retry settings.
func (s *Subscription) Normalize() {
	s.NormalizeWithDefaults(DefaultMaxRetries, DefaultRetryInterval)
}

// NormalizeWithDefaults applies service-level defaults for unset retry
// settings, typically loaded from WEBHOOK_MAX_RETRIES and
// WEBHOOK_RETRY_INTERVAL. Non-positive arguments fall back to the package
// defaults.
func (s *Subscription) NormalizeWithDefaults(maxRetries int, retryInterval time.Duration) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	if s.Status == "" {
		s.Status = SubscriptionActive
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = maxRetries
	}
	if s.RetryInterval == 0 {
		s.RetryInterval = retryInterval
	}
}

// retrySettings returns the effective retry policy for delivery processing.
// A row with both fields unset was stored without normalization and uses the
// service defaults; an explicit zero MaxRetries alongside a set interval
// disables retries.
func (s *Subscription) retrySettings(defaultMaxRetries int, defaultInterval time.Duration) (int, time.Duration) {
	if s.MaxRetries == 0 && s.RetryInterval == 0 {
		return defaultMaxRetries, defaultInterval
	}
	return s.MaxRetries, s.RetryInterval
}

// Validate checks the subscription against creation/update rules: endpoint
// URL (per mode), secret length, bounded custom headers, known event types,
// and retry settings within their allowed ranges. MaxRetries may be negative
// only in the sense of "explicitly zero"; callers wanting no retries set it
// to 0 after Normalize.
func (s *Subscription) Validate(mode webhook.Mode) error {
	if err := (webhook.Validator{Mode: mode}).Validate(s.URL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSubscription, err)
	}
	if n := len(s.Secret); n < MinSecretLength || n > MaxSecretLength {
		return fmt.Errorf("%w: secret length must be between %d and %d characters",
			ErrInvalidSubscription, MinSecretLength, MaxSecretLength)
	}
	if len(s.Headers) > MaxCustomHeaders {
		return fmt.Errorf("%w: at most %d custom headers", ErrInvalidSubscription, MaxCustomHeaders)
	}
	for _, t := range s.EventTypes {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidEventType, t)
		}
	}
	if s.MaxRetries < 0 || s.MaxRetries > MaxAllowedRetries {
		return fmt.Errorf("%w: max_retries must be between 0 and %d", ErrInvalidSubscription, MaxAllowedRetries)
	}
	if s.RetryInterval < MinRetryInterval {
		return fmt.Errorf("%w: retry_interval must be at least %s", ErrInvalidSubscription, MinRetryInterval)
	}
	return nil
}

// Matches reports whether the subscription wants events of type t. An empty
// filter matches every event type.
func (s *Subscription) Matches(t EventType) bool {
	if len(s.EventTypes) == 0 {
		return true
	}
	for _, want := range s.EventTypes {
		if want == t {
			return true
		}
	}
	return false
}

// MaskedSecret renders the secret for display without exposing it.
func (s *Subscription) MaskedSecret() string {
	return MaskSecret(s.Secret)
}

// NewSecret generates a webhook signing secret: "whsec_" followed by 64
// lowercase hex characters (32 random bytes).
func NewSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("dispatch: read random bytes: %v", err))
	}
	return "whsec_" + hex.EncodeToString(buf)
}

// MaskSecret hides secret material for display: short secrets render as
// "***", longer ones as the first 8 characters, an ellipsis, and the last 4.
func MaskSecret(secret string) string {
	if len(secret) <= 12 {
		return "***"
	}
	return secret[:8] + "..." + secret[len(secret)-4:]
}

// Event is an immutable-payload record of something that happened, awaiting
// delivery. Payload is set once at creation and never mutated.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	Type          EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Status        EventStatus     `json:"status"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	LastError     *string         `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

// NewEvent creates a pending event due immediately. data may be any
// JSON-serializable value; it is frozen at creation.
func NewEvent(t EventType, data any) (*Event, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, t)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	now := time.Now().UTC()
	return &Event{
		ID:            uuid.New(),
		Type:          t,
		Payload:       payload,
		Status:        EventPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}, nil
}

// Delivery is an append-only record of one delivery attempt of one event to
// one subscription. Never mutated after insert.
type Delivery struct {
	ID              uuid.UUID         `json:"id"`
	EventID         uuid.UUID         `json:"event_id"`
	SubscriptionID  uuid.UUID         `json:"subscription_id"`
	Status          DeliveryStatus    `json:"status"`
	HTTPStatus      *int              `json:"http_status,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	DurationMs      int64             `json:"duration_ms"`
	Error           *string           `json:"error,omitempty"`
	AttemptNumber   int               `json:"attempt_number"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
}

// EventPayload is the canonical JSON body POSTed to subscribers.
type EventPayload struct {
	Event     EventType       `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	WebhookID uuid.UUID       `json:"webhookId"`
	Data      json.RawMessage `json:"data"`
}
