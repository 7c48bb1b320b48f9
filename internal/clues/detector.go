// Package clues finds category keywords in transaction text and encodes the
// resulting clues for storage.
package clues

import (
	"sort"
	"strings"
	"unicode"

	"pesa/internal/core"
)

// Detector matches a keyword table against merchant names and message
// bodies. It holds no mutable state and is safe for concurrent use.
type Detector struct {
	table *Table
}

func NewDetector(table *Table) *Detector {
	return &Detector{table: table}
}

// Table returns the table the detector was built with.
func (d *Detector) Table() *Table { return d.table }

// Detect returns every (category, keyword) pair found in merchantName or
// rawText, in table order and without duplicates. Keywords made only of
// letters and digits match whole words ("BUS" does not match "BUSINESS");
// other keywords match as phrases.
func (d *Detector) Detect(merchantName, rawText string) []core.Clue {
	text := strings.ToUpper(merchantName + "\n" + rawText)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(text, isBoundary) {
		words[w] = true
	}

	var found []core.Clue
	for _, e := range d.table.entries {
		for _, kw := range e.Keywords {
			var hit bool
			if isSingleToken(kw) {
				hit = words[kw]
			} else {
				hit = strings.Contains(text, kw)
			}
			if hit {
				found = append(found, core.Clue{Category: e.Category, Keyword: kw})
			}
		}
	}
	return found
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func isSingleToken(kw string) bool {
	for _, r := range kw {
		if isBoundary(r) {
			return false
		}
	}
	return true
}

// SuggestCategory picks the category with the most clues. Ties go to the
// lexicographically smallest category name. It returns false for no clues.
func SuggestCategory(found []core.Clue) (string, bool) {
	if len(found) == 0 {
		return "", false
	}
	counts := make(map[string]int)
	for _, c := range found {
		counts[c.Category]++
	}
	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if counts[cats[i]] != counts[cats[j]] {
			return counts[cats[i]] > counts[cats[j]]
		}
		return cats[i] < cats[j]
	})
	return cats[0], true
}
