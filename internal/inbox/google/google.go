// Package google reads an SMS backup kept in a Google Sheet. Each row holds
// the received timestamp, a message id and the message body, in that order.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"pesa/internal/core"
	"pesa/internal/inbox"
)

type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheet         string
}

var _ inbox.Source = (*Client)(nil)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
}

// New builds a read-only Sheets client from service account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "SMS"
	}

	var credentialsJSON []byte
	switch {
	case cfg.ServiceAccountJSON != "":
		credentialsJSON = []byte(cfg.ServiceAccountJSON)
	case cfg.ServiceAccountFile != "":
		data, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets inbox ready", "spreadsheet_id", cfg.SpreadsheetID, "sheet", cfg.SheetName)
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheet: cfg.SheetName}, nil
}

func (c *Client) Messages(ctx context.Context, since, until time.Time) ([]core.RawMessage, error) {
	rng := fmt.Sprintf("%s!A:C", c.sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	msgs, skipped := parseRows(resp.Values)
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped unreadable SMS rows", "sheet", c.sheet, "skipped", skipped)
	}

	out := msgs[:0]
	for _, m := range msgs {
		if inbox.InWindow(m, since, until) {
			out = append(out, m)
		}
	}
	return out, nil
}

// parseRows converts sheet values into messages. A leading header row and
// rows without a body are skipped and counted; an unparsable timestamp
// leaves the message undated.
func parseRows(values [][]interface{}) ([]core.RawMessage, int) {
	var (
		out     []core.RawMessage
		skipped int
	)
	for i, row := range values {
		if i == 0 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(fmt.Sprint(row[0])), "timestamp") {
			continue
		}
		if len(row) < 3 {
			skipped++
			continue
		}
		body := strings.TrimSpace(fmt.Sprint(row[2]))
		if body == "" {
			skipped++
			continue
		}
		out = append(out, core.RawMessage{
			Body:        body,
			Timestamp:   parseTimestamp(fmt.Sprint(row[0])),
			TransportID: strings.TrimSpace(fmt.Sprint(row[1])),
		})
	}
	return out, skipped
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
