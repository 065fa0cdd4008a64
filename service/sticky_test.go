package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStickySessionsBindAndLookup(t *testing.T) {
	s := NewStickySessions(DefaultStickyConfig("sid"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Bind(rec, req, 2)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookies[0])

	idx, ok := s.Lookup(req2)
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestStickySessionsLookupMissingCookie(t *testing.T) {
	s := NewStickySessions(DefaultStickyConfig("sid"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := s.Lookup(req)
	assert.False(t, ok)
}

func TestStickySessionsExpireAfterTTL(t *testing.T) {
	cfg := DefaultStickyConfig("sid")
	cfg.TTL = 10 * time.Millisecond
	s := NewStickySessions(cfg)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Bind(rec, req, 1)
	cookies := rec.Result().Cookies()

	time.Sleep(30 * time.Millisecond)

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookies[0])
	_, ok := s.Lookup(req2)
	assert.False(t, ok)
}

func TestStickySessionsEvictRemovesServerEntries(t *testing.T) {
	s := NewStickySessions(DefaultStickyConfig("sid"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Bind(rec, req, 3)
	assert.Equal(t, 1, s.Len())

	s.Evict(3)
	assert.Equal(t, 0, s.Len())
}

func TestStickySessionsReusesExistingCookie(t *testing.T) {
	s := NewStickySessions(DefaultStickyConfig("sid"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Bind(rec, req, 0)
	firstCookie := rec.Result().Cookies()[0]

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(firstCookie)
	rec2 := httptest.NewRecorder()
	s.Bind(rec2, req2, 1)
	secondCookie := rec2.Result().Cookies()[0]

	assert.Equal(t, firstCookie.Value, secondCookie.Value)

	idx, ok := s.Lookup(req2)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}
