package clues

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultKeywords []byte

var ErrInvalidTable = errors.New("invalid keyword table")

// Entry is one category and its ordered keywords.
type Entry struct {
	Category string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type tableFile struct {
	Categories []Entry           `yaml:"categories"`
	Synonyms   map[string]string `yaml:"synonyms"`
}

// Table is an immutable, ordered category -> keywords mapping plus the
// synonym folds used by suggestions. Build it with NewTable, LoadTable or
// DefaultTable.
type Table struct {
	entries  []Entry
	synonyms map[string]string
}

// NewTable validates and normalises entries. Names are trimmed and
// upper-cased, duplicate keywords within a category are dropped.
func NewTable(entries []Entry, synonyms map[string]string) (*Table, error) {
	var problems []string
	seen := make(map[string]bool, len(entries))
	t := &Table{synonyms: make(map[string]string, len(synonyms))}

	for i, e := range entries {
		cat := normalize(e.Category)
		switch {
		case cat == "":
			problems = append(problems, fmt.Sprintf("entry %d: empty category", i))
			continue
		case strings.ContainsAny(cat, ":"+separator):
			problems = append(problems, fmt.Sprintf("category %q: contains a reserved character", cat))
			continue
		case seen[cat]:
			problems = append(problems, fmt.Sprintf("category %q: declared twice", cat))
			continue
		}
		seen[cat] = true

		out := Entry{Category: cat}
		dup := make(map[string]bool, len(e.Keywords))
		for _, kw := range e.Keywords {
			kw = normalize(kw)
			if kw == "" {
				problems = append(problems, fmt.Sprintf("category %q: empty keyword", cat))
				continue
			}
			if strings.Contains(kw, separator) {
				problems = append(problems, fmt.Sprintf("category %q: keyword %q contains a reserved character", cat, kw))
				continue
			}
			if dup[kw] {
				continue
			}
			dup[kw] = true
			out.Keywords = append(out.Keywords, kw)
		}
		t.entries = append(t.entries, out)
	}

	for from, to := range synonyms {
		from, to = normalize(from), normalize(to)
		if from == "" || to == "" || from == to {
			problems = append(problems, fmt.Sprintf("synonym %q -> %q: invalid", from, to))
			continue
		}
		t.synonyms[from] = to
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTable, strings.Join(problems, "; "))
	}
	return t, nil
}

// ParseTable reads a YAML keyword table.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return NewTable(f.Categories, f.Synonyms)
}

// LoadTable reads a YAML keyword table from path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword table: %w", err)
	}
	return ParseTable(data)
}

// DefaultTable returns the built-in keyword table.
func DefaultTable() *Table {
	t, err := ParseTable(defaultKeywords)
	if err != nil {
		panic(fmt.Sprintf("embedded keyword table: %v", err))
	}
	return t
}

// Entries returns a copy of the table in declaration order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = Entry{Category: e.Category, Keywords: append([]string(nil), e.Keywords...)}
	}
	return out
}

// Synonyms returns a copy of the synonym folds.
func (t *Table) Synonyms() map[string]string {
	out := make(map[string]string, len(t.synonyms))
	for k, v := range t.synonyms {
		out[k] = v
	}
	return out
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
