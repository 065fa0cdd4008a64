package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func TestCompressSelectsGzipWhenBrotliNotAccepted(t *testing.T) {
	mw := NewCompress(CompressConfig{Name: "c"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	wrapped, _, _ := mw.Handle(w, r)
	wrapped.Header().Set("Content-Type", "text/plain")
	_, err := wrapped.Write([]byte("hello world"))
	require.NoError(t, err)

	closer, ok := wrapped.(interface{ Close() error })
	require.True(t, ok)
	require.NoError(t, closer.Close())

	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	gr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	defer gr.Close()
}

func TestCompressPrefersBrotliWhenAccepted(t *testing.T) {
	mw := NewCompress(CompressConfig{Name: "c"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()

	wrapped, _, _ := mw.Handle(w, r)
	wrapped.Header().Set("Content-Type", "text/plain")
	wrapped.WriteHeader(http.StatusOK)

	require.Equal(t, "br", w.Header().Get("Content-Encoding"))
}

func TestCompressSkipsUnlistedMIMEType(t *testing.T) {
	mw := NewCompress(CompressConfig{Name: "c", MIME: []string{"text/html"}})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()

	wrapped, _, _ := mw.Handle(w, r)
	wrapped.Header().Set("Content-Type", "application/octet-stream")
	wrapped.WriteHeader(http.StatusOK)

	require.Empty(t, w.Header().Get("Content-Encoding"))
}

func TestCompressSkipsWhenNoAcceptEncoding(t *testing.T) {
	mw := NewCompress(CompressConfig{Name: "c"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	wrapped, _, proceed := mw.Handle(w, r)
	require.True(t, proceed)
	require.Same(t, w, wrapped)
}
