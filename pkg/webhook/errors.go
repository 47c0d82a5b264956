package webhook

import "errors"

// Sentinel errors for webhook delivery and verification. Callers classify
// failures with errors.Is; detailed context is attached by wrapping.
var (
	ErrInvalidURL              = errors.New("invalid webhook URL")
	ErrSchemeNotAllowed        = errors.New("webhook URL scheme must be http or https")
	ErrHTTPSRequired           = errors.New("webhook URL must use https in production")
	ErrHostNotAllowed          = errors.New("webhook URL host is not allowed")
	ErrPortNotAllowed          = errors.New("webhook URL port is not allowed")
	ErrSecretRequired          = errors.New("webhook secret is required")
	ErrInvalidPayload          = errors.New("invalid webhook payload")
	ErrInvalidTimestamp        = errors.New("invalid signature timestamp")
	ErrTimestampOutOfRange     = errors.New("signature timestamp outside replay window")
	ErrUnknownSignatureVersion = errors.New("unknown signature version")
	ErrSignatureMismatch       = errors.New("signature mismatch")
	ErrCircuitOpen             = errors.New("circuit breaker is open for endpoint")
)
