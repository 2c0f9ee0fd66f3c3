// Copyright 2026 © The Stevedore Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewLoggerJSONIncludesTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "json")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "hashed role", "role", "web")
	span.End()

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if record["role"] != "web" {
		t.Fatalf("expected role attribute, got %v", record["role"])
	}
	if record["trace_id"] == nil || record["span_id"] == nil {
		t.Fatalf("expected trace ids in record: %v", record)
	}
}

func TestNewLoggerDoesNotReplaceDefault(t *testing.T) {
	before := slog.Default()
	_ = NewLogger(&bytes.Buffer{}, "info", "text")
	if slog.Default() != before {
		t.Fatalf("NewLogger must not install a process-wide logger")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record should be filtered: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn record missing: %s", out)
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected a logger for nil input")
	}
	logger := Discard()
	if OrDiscard(logger) != logger {
		t.Fatal("expected the same logger back")
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"info+2":  slog.LevelInfo + 2,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for name, want := range cases {
		if got := logLevel(name); got != want {
			t.Errorf("logLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewLoggerWithoutSpanHasNoTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").With("component", "ledger").Info("opened")
	if strings.Contains(buf.String(), "trace_id") || !strings.Contains(buf.String(), "ledger") {
		t.Fatalf("unexpected record: %s", buf.String())
	}
}
