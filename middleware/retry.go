package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures the retry RoundTripper, per spec.md §4.11:
// "exponential backoff with cap; only idempotent methods; only on
// retryable statuses {502,503,504,408,429} or on transport errors".
// Grounded on filters/retry/retry.go's status-prefix Check predicate and
// original_source/src/middleware/builtin/retry.rs's delay_for_attempt.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration // capped at 30s regardless of a larger value here
	RetryStatuses   []int
}

var defaultRetryStatuses = []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusRequestTimeout, http.StatusTooManyRequests}

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
}

// RetryTransport wraps an http.RoundTripper with the retry policy above.
// It is wired as the forwarder's client transport directly (not through
// the middleware pipeline) since retrying needs to re-issue the backend
// round trip itself, a layer the pipeline's request/response hooks don't
// reach.
type RetryTransport struct {
	inner           http.RoundTripper
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	retryStatuses   map[int]bool
}

func NewRetryTransport(inner http.RoundTripper, cfg RetryConfig) *RetryTransport {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	initial := cfg.InitialInterval
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxInterval := cfg.MaxInterval
	if maxInterval <= 0 || maxInterval > 30*time.Second {
		maxInterval = 30 * time.Second
	}

	statuses := cfg.RetryStatuses
	if len(statuses) == 0 {
		statuses = defaultRetryStatuses
	}
	retryable := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		retryable[s] = true
	}

	return &RetryTransport{
		inner:           inner,
		maxAttempts:     maxAttempts,
		initialInterval: initial,
		maxInterval:     maxInterval,
		retryStatuses:   retryable,
	}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !idempotentMethods[req.Method] {
		return t.inner.RoundTrip(req)
	}

	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.initialInterval
	b.MaxInterval = t.maxInterval

	operation := func() (*http.Response, error) {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := t.inner.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if t.retryStatuses[resp.StatusCode] {
			resp.Body.Close()
			return nil, fmt.Errorf("retryable backend status %d", resp.StatusCode)
		}
		return resp, nil
	}

	return backoff.Retry(req.Context(), operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(t.maxAttempts)))
}
