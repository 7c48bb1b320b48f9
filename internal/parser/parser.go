// Package parser extracts structured transactions from M-Pesa confirmation
// messages.
//
// Parsing is pure and total: every input yields either a transaction or an
// error from the rejection family (ErrNoMatch, core.ErrMissingReceipt,
// core.ErrInvalidAmount). Matchers run in a fixed priority order and the
// first one that recognises the message decides its kind.
package parser

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"pesa/internal/core"
)

// CurrentVersion tags every record this build extracts. Bump it whenever a
// matcher change should re-extract previously stored messages.
const CurrentVersion = 2

var ErrNoMatch = errors.New("message not recognised")

// IsRejection reports whether err means the message was rejected rather
// than failing for an environmental reason.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNoMatch) ||
		errors.Is(err, core.ErrMissingReceipt) ||
		errors.Is(err, core.ErrInvalidAmount)
}

var (
	receiptRe = regexp.MustCompile(`^([A-Z][A-Z0-9]{7,11})\b`)
	whenRe    = regexp.MustCompile(`(?i)\bon (\d{1,2}/\d{1,2}/\d{2,4}) at (\d{1,2}:\d{2}) ?([AP]M)`)

	// East Africa Time has no DST.
	eat = time.FixedZone("EAT", 3*60*60)
)

type Parser struct {
	version  int
	matchers []matcher
}

// New returns a parser tagging records with CurrentVersion.
func New() *Parser {
	return NewWithVersion(CurrentVersion)
}

// NewWithVersion returns a parser tagging records with the given version.
func NewWithVersion(version int) *Parser {
	return &Parser{version: version, matchers: defaultMatchers}
}

func (p *Parser) Version() int { return p.version }

// Parse extracts a transaction from raw. The returned transaction carries
// the receipt, amount, details, raw text, parser version and, when the body
// states one, the transaction time. Clues, transport id and ingestion time
// are left for the caller.
func (p *Parser) Parse(raw string) (core.Transaction, error) {
	text := strings.Join(strings.Fields(raw), " ")
	if text == "" {
		return core.Transaction{}, ErrNoMatch
	}

	for _, m := range p.matchers {
		g, ok := m.match(text)
		if !ok {
			continue
		}
		details, ok := m.build(g)
		if !ok {
			continue
		}

		receipt := extractReceipt(text)
		if receipt == "" {
			return core.Transaction{}, core.ErrMissingReceipt
		}
		amount, err := core.ParseAmount(g["amount"])
		if err != nil {
			return core.Transaction{}, core.ErrInvalidAmount
		}

		return core.Transaction{
			ReceiptNumber: receipt,
			Amount:        amount,
			Details:       details,
			RawText:       raw,
			ParserVersion: p.version,
			Timestamp:     extractTime(text),
		}, nil
	}
	return core.Transaction{}, ErrNoMatch
}

func extractReceipt(text string) string {
	m := receiptRe.FindStringSubmatch(text)
	if m == nil || !strings.ContainsAny(m[1], "0123456789") {
		return ""
	}
	return m[1]
}

func extractTime(text string) time.Time {
	m := whenRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}
	}
	for _, layout := range []string{"2/1/06 3:04 PM", "2/1/2006 3:04 PM"} {
		if ts, err := time.ParseInLocation(layout, m[1]+" "+m[2]+" "+strings.ToUpper(m[3]), eat); err == nil {
			return ts
		}
	}
	return time.Time{}
}
