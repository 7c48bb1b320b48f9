package clues

import (
	"errors"
	"fmt"
	"strings"

	"pesa/internal/core"
)

// separator joins encoded clues. NewTable rejects it in any name, so it
// never appears inside a token.
const separator = "\x1f"

var ErrMalformedClues = errors.New("malformed clue encoding")

// Encode renders clues as CATEGORY:KEYWORD tokens joined by the separator.
// An empty list encodes to "".
func Encode(cs []core.Clue) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, separator)
}

// Decode reverses Encode. Decode(Encode(cs)) yields cs for every list of
// clues drawn from a valid table, including the empty list (as nil).
func Decode(s string) ([]core.Clue, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, separator)
	out := make([]core.Clue, 0, len(parts))
	for _, p := range parts {
		cat, kw, ok := strings.Cut(p, ":")
		if !ok || cat == "" || kw == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedClues, p)
		}
		out = append(out, core.Clue{Category: cat, Keyword: kw})
	}
	return out, nil
}
