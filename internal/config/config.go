package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string
	// TrustedProxies are CIDRs, beyond loopback and private ranges, whose
	// X-Forwarded-For header is believed.
	TrustedProxies []string

	// Store
	DataBackend  string
	SQLiteDBPath string
	BoltDBPath   string

	// AMQP (optional; empty URL disables it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Inbox used by bulk scans
	InboxSource              string
	InboxFile                string
	GoogleSpreadsheetID      string
	GoogleSMSSheetName       string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Extraction
	KeywordsFile   string
	LookbackMonths int
	IngestWorkers  int
	StoreTimeout   time.Duration

	// Re-parse worker
	ReparseInterval  time.Duration
	ReparseBatchSize int

	// Insights
	InsightsCacheTTL   time.Duration
	TopMerchants       int
	RecentPerMerchant  int
	SuggestionMinCount int
}

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),

		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/pesa.db"),
		BoltDBPath:   getEnv("BOLT_DB_PATH", "./data/pesa.bolt"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "pesa"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sms_received"),

		InboxSource:              getEnv("INBOX_SOURCE", "none"),
		InboxFile:                getEnv("INBOX_FILE", "./data/sms.jsonl"),
		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSMSSheetName:       getEnv("GOOGLE_SMS_SHEET_NAME", "SMS"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),

		KeywordsFile:   getEnv("KEYWORDS_FILE", ""),
		LookbackMonths: getEnvInt("LOOKBACK_MONTHS", 6),
		IngestWorkers:  getEnvInt("INGEST_WORKERS", 4),
		StoreTimeout:   getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		ReparseInterval:  getEnvDuration("REPARSE_INTERVAL", time.Hour),
		ReparseBatchSize: getEnvInt("REPARSE_BATCH_SIZE", 100),

		InsightsCacheTTL:   getEnvDuration("INSIGHTS_CACHE_TTL", 5*time.Minute),
		TopMerchants:       getEnvInt("TOP_MERCHANTS", 5),
		RecentPerMerchant:  getEnvInt("RECENT_PER_MERCHANT", 5),
		SuggestionMinCount: getEnvInt("SUGGESTION_MIN_COUNT", 2),
	}

	return cfg
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if msg := ensureDir(c.SQLiteDBPath); msg != "" {
			errors = append(errors, msg)
		}
	case "bolt":
		if c.BoltDBPath == "" {
			errors = append(errors, "bolt database path cannot be empty when using bolt backend")
		} else if msg := ensureDir(c.BoltDBPath); msg != "" {
			errors = append(errors, msg)
		}
	case "memory":
	default:
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of [sqlite bolt memory]", c.DataBackend))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch c.InboxSource {
	case "none":
	case "file":
		if c.InboxFile == "" {
			errors = append(errors, "inbox file cannot be empty when INBOX_SOURCE is file")
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when INBOX_SOURCE is sheets")
		}
		if c.GoogleSMSSheetName == "" {
			errors = append(errors, "Google SMS sheet name is required when INBOX_SOURCE is sheets")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the sheets inbox")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid inbox source '%s': must be one of [none file sheets]", c.InboxSource))
	}

	if c.KeywordsFile != "" {
		if _, err := os.Stat(c.KeywordsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("keywords file does not exist: %s", c.KeywordsFile))
		}
	}

	if c.LookbackMonths < 1 || c.LookbackMonths > 120 {
		errors = append(errors, fmt.Sprintf("invalid lookback %d months: must be between 1 and 120", c.LookbackMonths))
	}
	if c.IngestWorkers < 1 || c.IngestWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid ingest workers %d: must be between 1 and 64", c.IngestWorkers))
	}
	if c.StoreTimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be at least 100ms", c.StoreTimeout))
	}

	if c.ReparseBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid reparse batch size %d: must be at least 1", c.ReparseBatchSize))
	} else if c.ReparseBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid reparse batch size %d: must be at most 1000", c.ReparseBatchSize))
	}
	if c.ReparseInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid reparse interval %v: must be at least 1 second", c.ReparseInterval))
	} else if c.ReparseInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reparse interval %v: must be at most 24 hours", c.ReparseInterval))
	}

	if c.InsightsCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid insights cache TTL %v: must not be negative", c.InsightsCacheTTL))
	}
	if c.TopMerchants < 1 {
		errors = append(errors, fmt.Sprintf("invalid top merchants %d: must be at least 1", c.TopMerchants))
	}
	if c.RecentPerMerchant < 1 {
		errors = append(errors, fmt.Sprintf("invalid recent per merchant %d: must be at least 1", c.RecentPerMerchant))
	}
	if c.SuggestionMinCount < 1 {
		errors = append(errors, fmt.Sprintf("invalid suggestion minimum count %d: must be at least 1", c.SuggestionMinCount))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ensureDir creates the parent directory of path, returning a validation
// message on failure.
func ensureDir(path string) string {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return ""
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Sprintf("cannot create database directory '%s': %v", dir, err)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// splitList parses a comma-separated env value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
