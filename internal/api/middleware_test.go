package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shubhsaxena/nearby-assistant/internal/observability"
)

func TestRequestIDFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"missing", context.Background(), ""},
		{"set", context.WithValue(context.Background(), requestIDKey, "turn-7"), "turn-7"},
		{"wrong type", context.WithValue(context.Background(), requestIDKey, 7), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequestIDFromContext(tt.ctx); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"generates an id", ""},
		{"keeps the caller's id", "turn-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", nil)
			if tt.header != "" {
				req.Header.Set(requestIDHeader, tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if seen == "" {
				t.Fatal("expected a request id in the context")
			}
			if tt.header != "" && seen != tt.header {
				t.Errorf("expected %q, got %q", tt.header, seen)
			}
			if got := rr.Header().Get(requestIDHeader); got != seen {
				t.Errorf("expected response header %q, got %q", seen, got)
			}
		})
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := wrapResponse(rr)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rw.statusCode)
	}
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected recorder 404, got %d", rr.Code)
	}
}

func TestResponseWriter_WriteImpliesOK(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := wrapResponse(rr)

	if _, err := rw.Write([]byte(`{"places":[]}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rw.wroteHeader || rw.statusCode != http.StatusOK {
		t.Errorf("expected implicit 200, got %d (wrote %v)", rw.statusCode, rw.wroteHeader)
	}
	if rw.bytes != len(`{"places":[]}`) {
		t.Errorf("expected %d bytes, got %d", len(`{"places":[]}`), rw.bytes)
	}
	if rw.Unwrap() != rr {
		t.Error("expected Unwrap to return the recorder")
	}
}

func TestLoggingMiddleware_RecordsRoute(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(zap.New(core)))
	r.Get("/api/v1/places/{fsqID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/places/4b5e", nil)
	req.Header.Set(requestIDHeader, "turn-9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["route"] != "/api/v1/places/{fsqID}" {
		t.Errorf("expected route pattern, got %v", fields["route"])
	}
	if fields["path"] != "/api/v1/places/4b5e" {
		t.Errorf("expected raw path, got %v", fields["path"])
	}
	if fields["status"] != int64(http.StatusNotFound) {
		t.Errorf("expected status 404, got %v", fields["status"])
	}
	if fields["request_id"] != "turn-9" {
		t.Errorf("expected request id turn-9, got %v", fields["request_id"])
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Errorf("expected info level, got %s", entries[0].Level)
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		route  string
		status int
		want   zapcore.Level
	}{
		{"/api/v1/messages", http.StatusOK, zapcore.InfoLevel},
		{"/api/v1/messages", http.StatusBadRequest, zapcore.InfoLevel},
		{"/api/v1/messages", http.StatusTooManyRequests, zapcore.WarnLevel},
		{"/api/v1/messages", http.StatusServiceUnavailable, zapcore.ErrorLevel},
		{"/healthz", http.StatusOK, zapcore.DebugLevel},
		{"/readyz", http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.route+" "+strconv.Itoa(tt.status), func(t *testing.T) {
			if got := requestLevel(tt.route, tt.status); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantCode   string
	}{
		{
			name:       "no panic",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) },
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "panic before response",
			handler:    func(w http.ResponseWriter, r *http.Request) { panic("nil taxonomy") },
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name: "panic after response started",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				panic("late failure")
			},
			wantStatus: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RecoveryMiddleware(zap.NewNop())(tt.handler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", nil))

			if rr.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantCode == "" {
				if rr.Body.Len() != 0 {
					t.Errorf("expected no error body, got %q", rr.Body.String())
				}
				return
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %q", ct)
			}
			var body map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body["code"] != tt.wantCode {
				t.Errorf("expected code %s, got %q", tt.wantCode, body["code"])
			}
		})
	}
}

func TestRateLimiter_RejectsWhenFull(t *testing.T) {
	rl := NewRateLimiter(1, zap.NewNop())
	<-rl.tokens

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("expected the handler not to run")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/messages", nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"RATE_LIMITED"`) {
		t.Errorf("expected RATE_LIMITED code, got %s", rr.Body.String())
	}
}

func TestRateLimiter_ReturnsToken(t *testing.T) {
	rl := NewRateLimiter(1, zap.NewNop())
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/api/v1/categories", "/api/v1/tastes"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		method     string
		wantStatus int
		wantCalled bool
	}{
		{http.MethodGet, http.StatusOK, true},
		{http.MethodDelete, http.StatusOK, true},
		{http.MethodOptions, http.StatusNoContent, false},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			called := false
			handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, "/api/v1/cache/", nil))

			if rr.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if called != tt.wantCalled {
				t.Errorf("expected handler called %v, got %v", tt.wantCalled, called)
			}
			if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Error("expected CORS origin header")
			}
			if rr.Header().Get("Access-Control-Expose-Headers") != requestIDHeader {
				t.Errorf("expected %s exposed, got %q", requestIDHeader, rr.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusOK, "2xx"},
		{http.StatusNoContent, "2xx"},
		{http.StatusNotModified, "3xx"},
		{http.StatusConflict, "4xx"},
		{http.StatusTooManyRequests, "4xx"},
		{http.StatusServiceUnavailable, "5xx"},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			if got := statusClass(tt.code); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/places/{fsqID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := observability.HTTPRequestsTotal.WithLabelValues("/places/{fsqID}", "4xx")
	before := testutil.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/places/abc", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("expected one request counted under the route pattern, got %v", got)
	}
}
