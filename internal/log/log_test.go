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

	"github.com/shopspring/decimal"
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

func TestNewJSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentLedger, Output: &buf})
	l.Debug("hidden")
	l.Info("recorded", FieldItem, "Bread")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec[FieldComponent] != ComponentLedger || rec[FieldItem] != "Bread" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if l.WithComponent(ComponentHTTP).Component() != ComponentHTTP {
		t.Fatal("WithComponent did not switch component")
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("expected fallback logger")
	}

	var buf bytes.Buffer
	l := New(Config{Output: &buf})
	var got *Logger
	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context()).With(FieldRequestID, "req-1")
		got.InfoContext(r.Context(), "inside")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil || !strings.Contains(buf.String(), "request_id=req-1") {
		t.Fatalf("request id missing from %q", buf.String())
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithTransaction("3/5/2024", 2, "Rice", "Food", decimal.RequireFromString("1500.50")).
		WithError(errors.New("boom")).
		WithError(nil).
		WithOperation(OpSubmit)
	if f[FieldAmount] != "1500.5" || f[FieldError] != "boom" || f[FieldSeq] != 2 {
		t.Fatalf("unexpected fields: %v", f)
	}
	if len(f.ToSlice()) != 2*len(f) {
		t.Fatal("ToSlice length mismatch")
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Level: slog.LevelDebug})
	sl := NewStructuredLogger(l)
	ctx := NewContext(context.Background(), l)
	r := httptest.NewRequest(http.MethodPost, "/transactions", nil)

	sl.LogHTTPEnd(ctx, r, 503, 12, "10.0.0.1")
	sl.LogHTTPEnd(ctx, r, 422, 3, "10.0.0.1")
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "level=WARN") {
		t.Fatalf("unexpected levels in %q", out)
	}
}
