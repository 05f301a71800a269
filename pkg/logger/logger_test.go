package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupWriterJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "json")
	slog.Info("dropped")
	slog.Warn("kept", "term_id", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["msg"] != "kept" || entry["term_id"] != 7.0 {
		t.Errorf("entry = %v", entry)
	}
}

func TestFromContextCarriesRequestID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "info", "text")
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Fatalf("RequestID = %q", got)
	}
	FromContext(ctx).Info("search")
	if !strings.Contains(buf.String(), "request_id=req-1") {
		t.Errorf("log line missing request id: %q", buf.String())
	}

	buf.Reset()
	FromContext(context.Background()).Info("search")
	if strings.Contains(buf.String(), "request_id") {
		t.Errorf("unexpected request id: %q", buf.String())
	}
}
