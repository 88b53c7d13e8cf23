package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test-svc", Output: &buf})

	logg.Info(context.Background(), "hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "test-svc" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
	if entry["message"] != "hello" {
		t.Fatalf("expected message field, got %v", entry["message"])
	}
}

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	logg := New(Options{ServiceName: "test-svc", Output: &buf})

	ctx := logg.WithMembershipID(context.Background(), "m-1")
	ctx = logg.WithProjectID(ctx, "p-1")
	logg.Info(ctx, "attributed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["membership_id"] != "m-1" {
		t.Fatalf("expected membership_id, got %v", entry["membership_id"])
	}
	if entry["project_id"] != "p-1" {
		t.Fatalf("expected project_id, got %v", entry["project_id"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
		" error ": zerolog.ErrorLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
