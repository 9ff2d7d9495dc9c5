package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), "rate_limited")
		}
	}
	assert.Equal(t, []int{204, 204, 429}, codes)

	// Other clients have their own window.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.10:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(0, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestRateLimitRejectionBody(t *testing.T) {
	h := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/trips", nil)
		req.RemoteAddr = "198.51.100.7:443"
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
	}
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, []string{"60", "61"}, rec.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
}

func TestRateLimitKeysOnForwardedClient(t *testing.T) {
	h := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:8080"
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	// Same proxy, different clients.
	assert.Equal(t, http.StatusNoContent, call("203.0.113.1"))
	assert.Equal(t, http.StatusNoContent, call(" 203.0.113.2 , 10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.1, 198.51.100.2"))
	// Garbage in the header falls back to the peer address.
	assert.Equal(t, http.StatusNoContent, call("unknown"))
	assert.Equal(t, http.StatusTooManyRequests, call(""))
}

func TestRateLimitWindowResets(t *testing.T) {
	h := RateLimit(1, 20*time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = net.JoinHostPort("2001:db8::5", "443")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call())
	assert.Equal(t, http.StatusTooManyRequests, call())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, http.StatusNoContent, call())
}

func TestSweepDropsExpiredWindows(t *testing.T) {
	now := time.Now()
	buckets := make(map[string]*bucket)
	for i := 0; i < 1100; i++ {
		until := now.Add(-time.Second)
		if i%2 == 0 {
			until = now.Add(time.Minute)
		}
		buckets[fmt.Sprintf("192.0.2.%d", i)] = &bucket{count: 1, until: until}
	}

	sweep(buckets, now)
	assert.Len(t, buckets, 550)
	for ip, b := range buckets {
		assert.True(t, b.until.After(now), ip)
	}

	// Small maps are left alone.
	small := map[string]*bucket{"192.0.2.1": {until: now.Add(-time.Second)}}
	sweep(small, now)
	assert.Len(t, small, 1)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "bad id\nforged")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotContains(t, seen, "forged")
	assert.Len(t, seen, 36)
}

func TestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	h := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/trips/x", nil))

	line := buf.String()
	require.NotEmpty(t, line)
	assert.True(t, strings.Contains(line, `"level":"warn"`), line)
	assert.Contains(t, line, `"status":404`)
	assert.Contains(t, line, `"bytes":7`)
	assert.Contains(t, line, `"path":"/v1/trips/x"`)
	assert.Contains(t, line, `"request_id":"`)
}
