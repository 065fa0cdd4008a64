package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRoundTripper struct {
	attempts atomic.Int32
	statuses []int
}

func (f *fakeRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	i := int(f.attempts.Add(1)) - 1
	return &http.Response{
		StatusCode: f.statuses[i],
		Body:       io.NopCloser(strings.NewReader("body")),
		Header:     make(http.Header),
	}, nil
}

func TestRetryTransportRetriesRetryableStatusThenSucceeds(t *testing.T) {
	inner := &fakeRoundTripper{statuses: []int{http.StatusServiceUnavailable, http.StatusOK}}
	rt := NewRetryTransport(inner, RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 10 * time.Millisecond})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, inner.attempts.Load())
}

func TestRetryTransportGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &fakeRoundTripper{statuses: []int{
		http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable,
	}}
	rt := NewRetryTransport(inner, RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 10 * time.Millisecond})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := rt.RoundTrip(req)
	require.Error(t, err)
	require.EqualValues(t, 3, inner.attempts.Load())
}

func TestRetryTransportDoesNotRetryNonIdempotentMethod(t *testing.T) {
	inner := &fakeRoundTripper{statuses: []int{http.StatusServiceUnavailable}}
	rt := NewRetryTransport(inner, RetryConfig{MaxAttempts: 3})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.EqualValues(t, 1, inner.attempts.Load())
}
