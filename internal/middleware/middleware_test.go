package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/clusterdesk/internal/observability"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

func observedLogger() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return observability.NewLoggerFromZap(zap.New(core)), logs
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		want     string
	}{
		{name: "generated", want: "generated-id"},
		{name: "propagated", incoming: "abc-123", want: "abc-123"},
		{name: "oversized replaced", incoming: strings.Repeat("x", 200), want: "generated-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var seen string
			h := RequestIDWithGenerator(func() string { return "generated-id" })(
				http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
					seen = observability.RequestIDFromContext(r.Context())
				}),
			)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, seen)
			assert.Equal(t, tt.want, rec.Header().Get(RequestIDHeader))
		})
	}
}

func TestRequestID_UUID(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	RequestID()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()
	metrics := NewMetrics("test")

	h := Recovery(logger, metrics)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ContentTypeJSON, rec.Header().Get(HeaderContentType))
	assert.JSONEq(t, ErrInternalServerError, rec.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.panicsRecovered))
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	t.Parallel()

	logger, _ := observedLogger()
	h := Recovery(logger, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithError(t, http.ErrAbortHandler.Error(), func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	logger, _ := observedLogger()

	tests := []struct {
		name          string
		body          string
		contentLength int64
		skip          bool
		wantStatus    int
		wantReadErr   bool
	}{
		{name: "within limit", body: "12345", contentLength: 5, wantStatus: http.StatusOK},
		{name: "declared too large", body: "1234567890", contentLength: 10, wantStatus: http.StatusRequestEntityTooLarge},
		{name: "streamed too large", body: "1234567890", contentLength: -1, wantStatus: http.StatusOK, wantReadErr: true},
		{name: "skipped", body: "1234567890", contentLength: 10, skip: true, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			metrics := NewMetrics("test")
			var readErr error
			h := BodyLimit(8, logger, metrics, func(*http.Request) bool { return tt.skip })(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, readErr = io.ReadAll(r.Body)
				}),
			)

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusRequestEntityTooLarge {
				assert.Equal(t, float64(1), testutil.ToFloat64(metrics.bodyLimitRejected))
				return
			}
			if tt.wantReadErr {
				var maxErr *http.MaxBytesError
				assert.True(t, errors.As(readErr, &maxErr))
			} else {
				assert.NoError(t, readErr)
			}
		})
	}
}

func TestLogging(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()

	h := RequestIDWithGenerator(func() string { return "rid" })(
		Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			util.RecordRoute(r.Context(), "/clusters/:id")
			w.WriteHeader(http.StatusTeapot)
			_, _ = io.WriteString(w, "short")
		})),
	)

	req := httptest.NewRequest(http.MethodGet, "/clusters/abc?x=1", nil)
	req = req.WithContext(util.ContextWithClusterID(req.Context(), "c1"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/clusters/abc", fields["path"])
	assert.Equal(t, "x=1", fields["query"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, int64(5), fields["size"])
	assert.Equal(t, "rid", fields["request_id"])
	assert.Equal(t, "/clusters/:id", fields["route"])
	assert.Equal(t, "c1", fields["cluster_id"])
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
}

func TestLogging_ServerErrorsWarn(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger()
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestResponseWriter_Unwrap(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusAccepted)
	assert.Equal(t, http.StatusCreated, rw.status)
	assert.Same(t, rec, rw.Unwrap())

	rw.Flush()
	assert.True(t, rec.Flushed)

	_, _, err := rw.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}
