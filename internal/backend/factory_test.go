package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pesa/internal/config"
	"pesa/internal/log"
)

func TestFromAppConfig(t *testing.T) {
	app := &config.Config{
		DataBackend:  "bolt",
		BoltDBPath:   "/tmp/pesa.bolt",
		InboxSource:  "file",
		InboxFile:    "/tmp/sms.jsonl",
		SQLiteDBPath: "/tmp/pesa.db",
	}
	got, err := FromAppConfig(app)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if got.Store != BoltStore || got.Inbox != FileInbox || got.BoltDBPath != app.BoltDBPath {
		t.Errorf("config = %+v", got)
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory without inbox", Config{Store: MemoryStore, Inbox: NoInbox}, ""},
		{"unknown store", Config{Store: "postgres", Inbox: NoInbox}, "invalid store type"},
		{"sqlite without path", Config{Store: SQLiteStore, Inbox: NoInbox}, "SQLite database path"},
		{"bolt without path", Config{Store: BoltStore, Inbox: NoInbox}, "bbolt database path"},
		{"file inbox without path", Config{Store: MemoryStore, Inbox: FileInbox}, "inbox file"},
		{"sheets without id", Config{Store: MemoryStore, Inbox: SheetsInbox}, "Spreadsheet ID"},
		{"sheets without credentials", Config{Store: MemoryStore, Inbox: SheetsInbox, GoogleSpreadsheetID: "abc"}, "GoogleServiceAccount"},
		{"unknown inbox", Config{Store: MemoryStore, Inbox: "imap"}, "invalid inbox type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFactoryCreate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	inboxPath := filepath.Join(dir, "sms.jsonl")
	line := `{"id":"sms-1","body":"hello","timestamp":"2026-02-05T10:00:00Z"}` + "\n"
	if err := os.WriteFile(inboxPath, []byte(line), 0o600); err != nil {
		t.Fatal(err)
	}

	f := NewFactory(log.Discard())
	res, err := f.Create(ctx, Config{
		Store:      BoltStore,
		BoltDBPath: filepath.Join(dir, "pesa.bolt"),
		Inbox:      FileInbox,
		InboxFile:  inboxPath,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer res.Close()

	if n, err := res.Store.Count(ctx); err != nil || n != 0 {
		t.Errorf("Count() = %d, %v", n, err)
	}
	msgs, err := res.Inbox.Messages(ctx, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || len(msgs) != 1 || msgs[0].TransportID != "sms-1" {
		t.Errorf("Messages() = %+v, %v", msgs, err)
	}
}

func TestFactoryCreate_NoInbox(t *testing.T) {
	res, err := NewFactory(log.Discard()).Create(context.Background(), Config{Store: MemoryStore, Inbox: NoInbox})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if res.Inbox != nil {
		t.Errorf("Inbox = %v, want nil", res.Inbox)
	}
	if err := res.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestFactoryCreate_MissingInboxFile(t *testing.T) {
	_, err := NewFactory(log.Discard()).Create(context.Background(), Config{
		Store:     MemoryStore,
		Inbox:     FileInbox,
		InboxFile: filepath.Join(t.TempDir(), "missing.jsonl"),
	})
	if err == nil {
		t.Fatal("expected error for missing inbox file")
	}
}
