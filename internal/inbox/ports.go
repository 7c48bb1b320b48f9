// Package inbox defines where historical SMS messages are read from.
package inbox

import (
	"context"
	"time"

	"pesa/internal/core"
)

// Source lists messages received within [since, until].
type Source interface {
	Messages(ctx context.Context, since, until time.Time) ([]core.RawMessage, error)
}

// InWindow reports whether m falls within [since, until]. Messages without a
// timestamp are always included; the pipeline stamps them on ingestion.
func InWindow(m core.RawMessage, since, until time.Time) bool {
	if m.Timestamp.IsZero() {
		return true
	}
	return !m.Timestamp.Before(since) && !m.Timestamp.After(until)
}
