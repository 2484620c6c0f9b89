//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"neunovapdf-backend/internal/config"
)

func TestWith_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "info", Format: "json"}, false, &buf)

	ctx := WithTraceID(context.Background(), "t-1")
	ctx = WithJobID(ctx, "job-1")
	ctx = WithOp(ctx, "merge")

	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	for k, want := range map[string]string{"trace_id": "t-1", "job_id": "job-1", "op": "merge", "message": "hello"} {
		if line[k] != want {
			t.Errorf("field %s: want %q, got %v", k, want, line[k])
		}
	}
	if _, ok := line["client"]; ok {
		t.Error("absent fields must not be emitted")
	}
	if TraceID(ctx) != "t-1" {
		t.Errorf("TraceID mismatch: %q", TraceID(ctx))
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("someone@example.com", true); got != "someone@example.com" {
		t.Errorf("dev mode must not redact, got %q", got)
	}
	if got := Redact("short", false); got != "***" {
		t.Errorf("want ***, got %q", got)
	}
	if got := Redact("someone@example.com", false); got != "some...om" {
		t.Errorf("unexpected redaction %q", got)
	}
}
