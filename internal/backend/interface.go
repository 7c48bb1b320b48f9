// Package backend builds the ledger store and SMS inbox selected by
// configuration.
package backend

import (
	"context"

	"pesa/internal/inbox"
	"pesa/internal/ledger"
)

// Result holds the opened store and optional inbox. Close releases both.
type Result struct {
	Store ledger.Store
	// Inbox is nil when no inbox is configured.
	Inbox inbox.Source
}

func (r *Result) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Store StoreType
	Inbox InboxType

	SQLiteDBPath string
	BoltDBPath   string
	InboxFile    string

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

type StoreType string

const (
	SQLiteStore StoreType = "sqlite"
	BoltStore   StoreType = "bolt"
	MemoryStore StoreType = "memory"
)

type InboxType string

const (
	NoInbox     InboxType = "none"
	FileInbox   InboxType = "file"
	SheetsInbox InboxType = "sheets"
)
