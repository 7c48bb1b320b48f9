// Package suggest proposes spending categories from a set of transactions.
package suggest

import (
	"sort"

	"pesa/internal/clues"
	"pesa/internal/core"
)

// DefaultMinimumCount is the smallest group reported when callers have no
// preference.
const DefaultMinimumCount = 2

type Engine struct {
	synonyms map[string]string
}

// New builds an engine folding categories through synonyms, e.g.
// DATA -> AIRTIME. Folds are applied once; chains are not followed.
func New(synonyms map[string]string) *Engine {
	s := make(map[string]string, len(synonyms))
	for k, v := range synonyms {
		s[k] = v
	}
	return &Engine{synonyms: s}
}

// Analyze groups transactions by primary category, drops groups with fewer
// than minimumCount members, then folds surviving synonym groups into their
// target. Results are largest first, ties by name. receiptOverrides maps
// receipt numbers to user-assigned categories and wins over detected clues.
// Transactions with neither are ignored.
func (e *Engine) Analyze(txs []core.Transaction, minimumCount int, receiptOverrides map[string]string) []core.CategorySuggestion {
	if minimumCount < 1 {
		minimumCount = 1
	}

	groups := make(map[string]*core.CategorySuggestion)
	var order []string
	for _, tx := range txs {
		cat, ok := receiptOverrides[tx.ReceiptNumber]
		if !ok {
			cat, ok = clues.SuggestCategory(tx.Clues)
		}
		if !ok {
			continue
		}
		g, exists := groups[cat]
		if !exists {
			g = &core.CategorySuggestion{Category: cat}
			groups[cat] = g
			order = append(order, cat)
		}
		g.Count++
		g.TotalAmount = g.TotalAmount.Add(tx.Amount)
		g.ReceiptNumbers = append(g.ReceiptNumbers, tx.ReceiptNumber)
	}

	folded := make(map[string]*core.CategorySuggestion)
	var foldedOrder []string
	for _, cat := range order {
		g := groups[cat]
		if g.Count < minimumCount {
			continue
		}
		target := cat
		if to, ok := e.synonyms[cat]; ok {
			target = to
		}
		f, exists := folded[target]
		if !exists {
			f = &core.CategorySuggestion{Category: target}
			folded[target] = f
			foldedOrder = append(foldedOrder, target)
		}
		f.Count += g.Count
		f.TotalAmount = f.TotalAmount.Add(g.TotalAmount)
		f.ReceiptNumbers = append(f.ReceiptNumbers, g.ReceiptNumbers...)
	}

	out := make([]core.CategorySuggestion, 0, len(foldedOrder))
	for _, cat := range foldedOrder {
		out = append(out, *folded[cat])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}
