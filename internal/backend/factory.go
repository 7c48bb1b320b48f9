package backend

import (
	"context"
	"fmt"

	"pesa/internal/inbox"
	inboxgoogle "pesa/internal/inbox/google"
	inboxmem "pesa/internal/inbox/memory"
	"pesa/internal/ledger"
	"pesa/internal/ledger/bolt"
	ledgermem "pesa/internal/ledger/memory"
	"pesa/internal/log"
	"pesa/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.Default(log.ComponentBackend)
	}
	return &DefaultFactory{logger: logger}
}

// Create opens the store, then the inbox. The store is closed again if
// the inbox cannot be built.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(config)
	if err != nil {
		return nil, err
	}
	src, err := f.createInbox(ctx, config)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &Result{Store: store, Inbox: src}, nil
}

func (f *DefaultFactory) createStore(config Config) (ledger.Store, error) {
	switch config.Store {
	case SQLiteStore:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case BoltStore:
		st, err := bolt.Open(config.BoltDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt store: %w", err)
		}
		f.logger.Info("Initialized bbolt store", "db_path", config.BoltDBPath)
		return st, nil
	case MemoryStore:
		f.logger.Warn("Using in-memory store, transactions are lost on restart")
		return ledgermem.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Store)
	}
}

func (f *DefaultFactory) createInbox(ctx context.Context, config Config) (inbox.Source, error) {
	switch config.Inbox {
	case NoInbox:
		return nil, nil
	case FileInbox:
		src, err := inboxmem.NewFromFile(config.InboxFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load inbox file: %w", err)
		}
		f.logger.Info("Loaded file inbox", "path", config.InboxFile)
		return src, nil
	case SheetsInbox:
		src, err := inboxgoogle.New(ctx, inboxgoogle.Config{
			SpreadsheetID:      config.GoogleSpreadsheetID,
			SheetName:          config.GoogleSheetName,
			ServiceAccountJSON: config.GoogleServiceAccountJSON,
			ServiceAccountFile: config.GoogleServiceAccountFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets inbox: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported inbox type: %s", config.Inbox)
	}
}
