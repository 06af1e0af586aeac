package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/socify/socify_downloader/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry

	ctx := context.Background()

	assert.NotPanics(t, func() {
		tel.RecordHTTPRequest(ctx, http.MethodGet, "/state", "2xx", time.Millisecond)
		tel.IncrementHTTPInFlight(ctx)
		tel.DecrementHTTPInFlight(ctx)
		tel.RecordSubmission(ctx, "success", time.Second)
		tel.RecordStaleResponse(ctx)
		tel.RecordRetrieval(ctx, "success", 10, time.Second)
		tel.IncrementActiveRetrievals(ctx)
		tel.DecrementActiveRetrievals(ctx)
		tel.RecordNotification(ctx, "error")
		assert.NotNil(t, tel.Tracer())
		assert.NoError(t, tel.Shutdown(ctx))
	})

	boom := errors.New("boom")

	_, err := tel.InstrumentSubmission(ctx, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	err = tel.InstrumentRetrieval(ctx, func(context.Context) (int64, error) { return 3, nil })
	assert.NoError(t, err)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisabledTelemetry(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	tel.RecordSubmission(context.Background(), "success", time.Second)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestEnabledTelemetryExposesMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := New(ctx, Config{Enabled: true, ServiceName: "socify-test", ServiceVersion: "test"})
	require.NoError(t, err)

	defer func() { _ = tel.Shutdown(context.Background()) }()

	tel.RecordSubmission(ctx, "backend_error", 20*time.Millisecond)
	tel.RecordStaleResponse(ctx)
	require.NoError(t, tel.InstrumentRetrieval(ctx, func(context.Context) (int64, error) { return 1024, nil }))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "submissions_total")
	assert.Contains(t, body, `outcome="backend_error"`)
	assert.Contains(t, body, "stale_responses_total")
	assert.Contains(t, body, "retrievals_total")
}

func TestRequestID(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestHTTPLogging(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusConflict, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			h := RequestID(HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				logctx.LoggerFromContext(r.Context()).Info("inside handler")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, "{}")
			})))

			req := httptest.NewRequest(http.MethodPost, "/submit", nil)
			req = req.WithContext(logctx.WithLogger(req.Context(), logger))
			req.Header.Set(RequestIDHeader, "req-1")

			h.ServeHTTP(httptest.NewRecorder(), req)

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 2)

			var inner, completed map[string]any
			require.NoError(t, json.Unmarshal([]byte(lines[0]), &inner))
			require.NoError(t, json.Unmarshal([]byte(lines[1]), &completed))

			assert.Equal(t, "req-1", inner["request_id"], "handlers log with the request id")
			assert.Equal(t, tt.level, completed["level"])
			assert.Equal(t, "req-1", completed["request_id"])
			assert.EqualValues(t, tt.status, completed["status"])
			assert.Equal(t, "/submit", completed["path"])
		})
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rw.status)
	assert.EqualValues(t, 5, rw.bytesWritten)
	assert.Same(t, rw, wrapResponseWriter(rw))
}

func TestGetStatusClass(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		202: "2xx",
		304: "3xx",
		404: "4xx",
		422: "4xx",
		502: "5xx",
		100: "unknown",
	}

	for code, want := range tests {
		assert.Equal(t, want, getStatusClass(code), "code %d", code)
	}
}

func TestRoutePattern(t *testing.T) {
	var route string

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			route = routePattern(req)
		})
	})
	r.Post("/files/{index}/save", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/files/3/save", nil))
	assert.Equal(t, "/files/{index}/save", route)

	assert.Equal(t, "unmatched", routePattern(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestMiddlewarePassesThroughWithoutTelemetry(t *testing.T) {
	called := false

	h := NewHTTPMiddleware(nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
