package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pesa/internal/core"
)

func TestMessagesWindow(t *testing.T) {
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	s := New(
		core.RawMessage{Body: "old", Timestamp: jan.AddDate(0, -8, 0)},
		core.RawMessage{Body: "in", Timestamp: jan},
		core.RawMessage{Body: "undated"},
	)
	s.Add(core.RawMessage{Body: "future", Timestamp: jan.AddDate(0, 1, 0)})

	got, err := s.Messages(context.Background(), jan.AddDate(0, -6, 0), jan)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Body != "in" || got[1].Body != "undated" {
		t.Fatalf("Messages() = %+v", got)
	}
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sms.jsonl")
	content := `# exported from phone
{"id":"sms-1","body":"QK87ABCD12 Confirmed. Ksh1,000.00 sent to JOHN DOE 0712345678 on 21/1/26 at 10:00 AM.","timestamp":"2026-01-21T10:00:00+03:00"}

{"id":"sms-2","body":"Your OTP is 1234","timestamp":"2026-01-21T10:05:00+03:00"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile() error = %v", err)
	}
	got, _ := s.Messages(context.Background(), time.Time{}, time.Now().AddDate(10, 0, 0))
	if len(got) != 2 || got[0].TransportID != "sms-1" || got[1].Body != "Your OTP is 1234" {
		t.Fatalf("Messages() = %+v", got)
	}
}

func TestNewFromFileErrors(t *testing.T) {
	if _, err := NewFromFile(filepath.Join(t.TempDir(), "missing.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	os.WriteFile(path, []byte("{not json}\n"), 0o644)
	if _, err := NewFromFile(path); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestMessagesCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Messages(ctx, time.Time{}, time.Now()); err == nil {
		t.Error("expected context error")
	}
}
