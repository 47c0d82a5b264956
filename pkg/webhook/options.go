package webhook

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the hard per-delivery timeout. The in-flight request is
// cancelled when it elapses. Default is 30 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent overrides the User-Agent header sent with every delivery.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMode sets the URL validation mode. Default is production rules.
func WithMode(mode Mode) Option {
	return func(c *Client) {
		c.validator = Validator{Mode: mode}
	}
}

// WithBodyLimit caps how many response body bytes are captured into results.
// Default is 4 KiB.
func WithBodyLimit(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.bodyLimit = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Useful for custom
// transports, proxies, or testing. The client's redirect policy is preserved
// as given.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithCircuitBreaking enables a per-host circuit breaker: after
// failureThreshold consecutive failures deliveries to that host fail fast
// (retryable) until the endpoint recovers.
func WithCircuitBreaking(failureThreshold, successThreshold int, recoveryTimeout time.Duration) Option {
	return func(c *Client) {
		c.breakers = newBreakerRegistry(failureThreshold, successThreshold, recoveryTimeout)
	}
}
