package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func newBufLogger() (*SlogLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newBufLogger()
	ctx := context.Background()

	log.Debug(ctx, "d")
	log.Info(ctx, "i")
	log.Warn(ctx, "w")
	log.Error(ctx, "e")

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	if lines != 4 {
		t.Fatalf("expected 4 log lines, got %d", lines)
	}
}

func TestSlogLogger_WithCarriesAttrs(t *testing.T) {
	log, buf := newBufLogger()
	child := log.With("component", "sync")
	child.Info(context.Background(), "hello", "vault", "v1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if rec["component"] != "sync" || rec["vault"] != "v1" {
		t.Fatalf("missing attrs in %v", rec)
	}
}
