package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestInit(t *testing.T) {
	logger, closer := Init("test-service", slog.LevelInfo, FileOptions{})
	defer closer.Close()
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestInit_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livefeed.log")
	logger, closer := Init("test-service", slog.LevelInfo, FileOptions{Path: path, MaxSizeMB: 1})
	logger.Info("hello file")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !bytes.Contains(data, []byte("hello file")) {
		t.Errorf("log file missing message: %s", data)
	}
}

func TestNew_ServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "feedserver", slog.LevelInfo).Info("started")

	var rec map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["service"] != "feedserver" {
		t.Errorf("expected service=feedserver, got %v", rec["service"])
	}
	if rec["msg"] != "started" {
		t.Errorf("expected msg=started, got %v", rec["msg"])
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "svc", slog.LevelWarn).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if rid := RequestID(ctx); rid != "" {
		t.Errorf("expected empty request id, got %q", rid)
	}

	ctx = WithRequestID(ctx, "req-123")
	if rid := RequestID(ctx); rid != "req-123" {
		t.Errorf("expected 'req-123', got %q", rid)
	}
}

func TestLogWithRequest(t *testing.T) {
	ctx := context.Background()

	if attrs := LogWithRequest(ctx); attrs != nil {
		t.Errorf("expected nil attrs when no request id, got %v", attrs)
	}

	ctx = WithRequestID(ctx, "abc-123")
	if attrs := LogWithRequest(ctx); len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with request id set")
	}
}
