package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Sandstone-Webhook/1.0"
	defaultBodyLimit = 4 * 1024
	maxRedirects     = 3

	// ProtocolVersion is sent as X-Webhook-Version with every delivery.
	ProtocolVersion = "1.0"

	// testResponseBodyLimit caps the response body echoed back from
	// TestEndpoint to user-facing callers.
	testResponseBodyLimit = 1000
)

// Endpoint describes one delivery target. ID is an opaque caller-side
// identifier (typically the subscription id) carried through to results.
// WebhookID is sent as the X-Webhook-Id header so receivers can deduplicate
// redelivered events; when empty a fresh id is generated per request.
type Endpoint struct {
	ID        string
	URL       string
	Secret    string
	EventType string
	WebhookID string
	Headers   map[string]string
}

// Result is the classified outcome of a single delivery attempt.
type Result struct {
	Success    bool
	Retryable  bool
	StatusCode int               // 0 when no HTTP response was received
	Body       string            // response body, capped
	Headers    map[string]string // response headers, first value per key
	Duration   time.Duration
	Error      string // empty on success
}

// EndpointResult pairs a fan-out delivery outcome with its endpoint ID.
type EndpointResult struct {
	EndpointID string
	Result     Result
}

// TestResult is the user-facing outcome of a "send me a test webhook" call.
type TestResult struct {
	Success        bool   `json:"success"`
	HTTPStatus     int    `json:"http_status,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	ResponseBody   string `json:"response_body,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Client performs outbound webhook deliveries: URL validation, signing,
// the HTTP POST itself, and classification of the outcome into
// success / retryable failure / non-retryable failure. Safe for concurrent
// use; create one per process and reuse it for connection pooling.
type Client struct {
	http      *http.Client
	validator Validator
	userAgent string
	timeout   time.Duration
	bodyLimit int
	breakers  *breakerRegistry
}

// NewClient creates a delivery client with pooled connections and production
// validation rules. Behavior is adjusted through functional options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		validator: Validator{Mode: ModeProduction},
		userAgent: defaultUserAgent,
		timeout:   defaultTimeout,
		bodyLimit: defaultBodyLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver signs and POSTs payload to the endpoint and classifies the outcome.
// A URL that fails validation is never retried. Wall-clock duration is
// measured from just before validation to completion.
func (c *Client) Deliver(ctx context.Context, ep Endpoint, payload any) Result {
	start := time.Now()

	if err := c.validator.Validate(ep.URL); err != nil {
		return Result{Retryable: false, Error: err.Error(), Duration: time.Since(start)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Retryable: false, Error: fmt.Sprintf("marshal payload: %v", err), Duration: time.Since(start)}
	}

	var breaker *CircuitBreaker
	if c.breakers != nil {
		if u, err := url.Parse(ep.URL); err == nil {
			breaker = c.breakers.forHost(u.Host)
		}
	}
	if breaker != nil && !breaker.Allow() {
		return Result{Retryable: true, Error: ErrCircuitOpen.Error(), Duration: time.Since(start)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Retryable: false, Error: err.Error(), Duration: time.Since(start)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	webhookID := ep.WebhookID
	if webhookID == "" {
		webhookID = uuid.NewString()
	}
	req.Header.Set("X-Webhook-Id", webhookID)
	req.Header.Set("X-Webhook-Event", ep.EventType)
	req.Header.Set("X-Webhook-Version", ProtocolVersion)
	if ep.Secret != "" {
		timestamp := time.Now().Unix()
		req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(timestamp, 10))
		req.Header.Set("X-Webhook-Signature", signRaw(ep.Secret, timestamp, body))
	}
	// Subscriber-configured headers may override the defaults.
	for k, v := range ep.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		res := c.classifyTransportError(reqCtx, err)
		res.Duration = time.Since(start)
		if breaker != nil {
			breaker.RecordFailure()
		}
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, int64(c.bodyLimit)))
	result := Result{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		Headers:    flattenHeaders(resp.Header),
		Duration:   time.Since(start),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
		if breaker != nil {
			breaker.RecordSuccess()
		}
		return result
	}

	result.Retryable = retryableStatus(resp.StatusCode)
	result.Error = fmt.Sprintf("endpoint returned status %d", resp.StatusCode)
	if breaker != nil {
		breaker.RecordFailure()
	}
	return result
}

// DeliverToMultiple fans Deliver out concurrently across all endpoints and
// collects every outcome independently: one endpoint's failure or panic never
// aborts delivery to the others. A panicking delivery is converted into a
// retryable failure result.
func (c *Client) DeliverToMultiple(ctx context.Context, endpoints []Endpoint, payload any) []EndpointResult {
	results := make([]EndpointResult, len(endpoints))

	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep Endpoint) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = EndpointResult{
						EndpointID: ep.ID,
						Result:     Result{Retryable: true, Error: fmt.Sprintf("delivery panic: %v", r)},
					}
				}
			}()
			results[i] = EndpointResult{EndpointID: ep.ID, Result: c.Deliver(ctx, ep, payload)}
		}(i, ep)
	}
	wg.Wait()

	return results
}

// TestEndpoint sends a synthetic test.webhook event to url, signed when a
// secret is given, and reports the outcome for user-facing display. It never
// touches persistence and never returns an error for endpoint misbehavior.
func (c *Client) TestEndpoint(ctx context.Context, url, secret string) TestResult {
	webhookID := uuid.NewString()
	payload := map[string]any{
		"event":     "test.webhook",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"webhookId": webhookID,
		"data": map[string]any{
			"message": "This is a test webhook delivery",
		},
	}

	res := c.Deliver(ctx, Endpoint{URL: url, Secret: secret, EventType: "test.webhook", WebhookID: webhookID}, payload)

	body := res.Body
	if len(body) > testResponseBodyLimit {
		body = body[:testResponseBodyLimit]
	}

	return TestResult{
		Success:        res.Success,
		HTTPStatus:     res.StatusCode,
		ResponseTimeMs: res.Duration.Milliseconds(),
		ResponseBody:   body,
		Error:          res.Error,
	}
}

// classifyTransportError maps request-level failures (no HTTP response) to a
// result. Timeouts get the fixed "Request timeout" message so callers and
// subscription owners see a stable error string. All other transport-level
// failures (refused connections, resets, DNS) are treated as transient and
// marked retryable.
func (c *Client) classifyTransportError(reqCtx context.Context, err error) Result {
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return Result{Retryable: true, Error: "Request timeout"}
	}
	return Result{Retryable: true, Error: err.Error()}
}

// retryableStatus reports whether a non-2xx status is worth retrying: all
// 5xx, plus the 4xx codes that signal temporary server-side conditions.
func retryableStatus(status int) bool {
	if status >= 500 {
		return true
	}
	switch status {
	case http.StatusRequestTimeout, // 408
		http.StatusConflict, // 409
		http.StatusTooEarly, // 425
		http.StatusTooManyRequests: // 429
		return true
	default:
		return false
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
