package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func bufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf, ComponentIngest).With(FieldReceipt, "QK87ABCD12")

	logger.Info("Transaction stored", FieldOutcome, "inserted")
	logger.DebugContext(context.Background(), "Parsed")

	out := buf.String()
	if n := strings.Count(out, "component=ingest"); n != 2 {
		t.Errorf("component stamped %d times, want 2:\n%s", n, out)
	}
	if !strings.Contains(out, "receipt_number=QK87ABCD12") || !strings.Contains(out, "outcome=inserted") {
		t.Errorf("missing fields:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAccessLogLevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "level=INFO"},
		{http.StatusNotFound, "level=WARN"},
		{http.StatusServiceUnavailable, "level=ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := bufferLogger(&buf, ComponentHTTP)
		h := AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/insights?x=1", nil)
		req = req.WithContext(context.WithValue(req.Context(), LoggerContextKey, logger))
		h.ServeHTTP(httptest.NewRecorder(), req)

		out := buf.String()
		if !strings.Contains(out, tt.level) || !strings.Contains(out, "path=/api/insights") || !strings.Contains(out, "component=http") {
			t.Errorf("status %d: log = %s", tt.status, out)
		}
	}
}

func TestFromContextFallback(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext() returned nil")
	}
}
