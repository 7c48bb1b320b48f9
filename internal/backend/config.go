package backend

import (
	"fmt"

	"pesa/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Store: StoreType(appConfig.DataBackend),
		Inbox: InboxType(appConfig.InboxSource),

		SQLiteDBPath: appConfig.SQLiteDBPath,
		BoltDBPath:   appConfig.BoltDBPath,
		InboxFile:    appConfig.InboxFile,

		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSMSSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}
	if cfg.Inbox == "" {
		cfg.Inbox = NoInbox
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	switch c.Store {
	case SQLiteStore:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite store")
		}
	case BoltStore:
		if c.BoltDBPath == "" {
			return fmt.Errorf("bbolt database path is required for bolt store")
		}
	case MemoryStore:
	default:
		return fmt.Errorf("invalid store type: %s", c.Store)
	}

	switch c.Inbox {
	case NoInbox:
	case FileInbox:
		if c.InboxFile == "" {
			return fmt.Errorf("inbox file is required for file inbox")
		}
	case SheetsInbox:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets inbox")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			return fmt.Errorf("either GoogleServiceAccountJSON or GoogleServiceAccountFile must be provided for sheets inbox")
		}
	default:
		return fmt.Errorf("invalid inbox type: %s", c.Inbox)
	}
	return nil
}
