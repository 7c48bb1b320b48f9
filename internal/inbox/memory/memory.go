// Package memory serves messages held in memory or loaded from a JSON Lines
// SMS export.
package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"pesa/internal/core"
	"pesa/internal/inbox"
)

type Store struct {
	mu       sync.Mutex
	messages []core.RawMessage
}

var _ inbox.Source = (*Store)(nil)

// exportLine is one line of an SMS export file.
type exportLine struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

func New(messages ...core.RawMessage) *Store {
	return &Store{messages: append([]core.RawMessage(nil), messages...)}
}

// NewFromFile loads a JSON Lines export. Blank lines and lines starting with
// '#' are skipped; a malformed line fails the load with its line number.
func NewFromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inbox file: %w", err)
	}
	defer f.Close()

	s := New()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var l exportLine
		if err := json.Unmarshal([]byte(line), &l); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		s.messages = append(s.messages, core.RawMessage{Body: l.Body, Timestamp: l.Timestamp, TransportID: l.ID})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read inbox file: %w", err)
	}
	return s, nil
}

// Add appends messages, e.g. ones arriving while the process runs.
func (s *Store) Add(messages ...core.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, messages...)
}

func (s *Store) Messages(ctx context.Context, since, until time.Time) ([]core.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RawMessage
	for _, m := range s.messages {
		if inbox.InWindow(m, since, until) {
			out = append(out, m)
		}
	}
	return out, nil
}
