package dispatch

import "errors"

var (
	ErrInvalidSubscription  = errors.New("invalid webhook subscription")
	ErrInvalidEventType     = errors.New("invalid event type")
	ErrSubscriptionNotFound = errors.New("webhook subscription not found")
	ErrEventNotFound        = errors.New("webhook event not found")
)
