package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONFormatAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentForecast, Output: &buf})
	l.Info("hello", FieldMonth, "2024-03")
	l.Debug("hidden")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
	}
	if rec[FieldComponent] != ComponentForecast || rec[FieldMonth] != "2024-03" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Fatalf("component = %q", l.Component())
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Component: ComponentHTTP, Output: &buf})
	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).Info("inside")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("request id missing from %q", buf.String())
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Component: ComponentHTTP, Output: &buf}))
	r := httptest.NewRequest(http.MethodPost, "/forecast/calc", nil)
	sl.LogHTTPEnd(context.Background(), r, 500, 3, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Fatalf("expected error level for 500: %q", buf.String())
	}
	buf.Reset()
	sl.LogError(context.Background(), "failed", errors.New("boom"), OpCalculate, nil)
	if !strings.Contains(buf.String(), "error=boom") || !strings.Contains(buf.String(), "operation=calculate") {
		t.Fatalf("unexpected error log: %q", buf.String())
	}
}
