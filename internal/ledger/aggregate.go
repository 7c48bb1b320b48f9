package ledger

import (
	"sort"
	"time"

	"pesa/internal/core"
)

// Entry pairs a stored transaction with its insertion sequence. Adapters
// that keep records in memory or in a key/value store answer queries by
// running these helpers over their entries.
type Entry struct {
	Seq int64
	Tx  core.Transaction
}

// SortBySeq orders entries by insertion.
func SortBySeq(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].Seq < es[j].Seq })
}

// Chronological returns the transactions oldest first, insertion order
// breaking timestamp ties.
func Chronological(es []Entry) []core.Transaction {
	sorted := append([]Entry(nil), es...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Tx.Timestamp.Equal(sorted[j].Tx.Timestamp) {
			return sorted[i].Tx.Timestamp.Before(sorted[j].Tx.Timestamp)
		}
		return sorted[i].Seq < sorted[j].Seq
	})
	out := make([]core.Transaction, len(sorted))
	for i, e := range sorted {
		out[i] = e.Tx
	}
	return out
}

// Newest returns at most limit transactions, newest first. A non-positive
// limit returns all of them.
func Newest(es []Entry, limit int) []core.Transaction {
	asc := Chronological(es)
	out := make([]core.Transaction, 0, len(asc))
	for i := len(asc) - 1; i >= 0; i-- {
		out = append(out, asc[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Between keeps transactions with from <= timestamp <= to.
func Between(es []Entry, from, to time.Time) []core.Transaction {
	var out []core.Transaction
	for _, tx := range Chronological(es) {
		if tx.Timestamp.Before(from) || tx.Timestamp.After(to) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Stale keeps transactions extracted below version, oldest insertion first.
func Stale(es []Entry, version, limit int) []core.Transaction {
	sorted := append([]Entry(nil), es...)
	SortBySeq(sorted)
	var out []core.Transaction
	for _, e := range sorted {
		if e.Tx.ParserVersion >= version {
			continue
		}
		out = append(out, e.Tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// TopMerchants groups by merchant name, count descending, first-seen order
// breaking ties.
func TopMerchants(es []Entry, limit int) []core.MerchantAggregate {
	sorted := append([]Entry(nil), es...)
	SortBySeq(sorted)

	index := make(map[string]int)
	var groups []core.MerchantAggregate
	for _, e := range sorted {
		m := e.Tx.MerchantName()
		if m == "" {
			continue
		}
		i, ok := index[m]
		if !ok {
			i = len(groups)
			index[m] = i
			groups = append(groups, core.MerchantAggregate{Merchant: m})
		}
		groups[i].Count++
		groups[i].Total = groups[i].Total.Add(e.Tx.Amount)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Count > groups[j].Count })
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups
}

// RecentByMerchant returns up to limit transactions for merchant, newest first.
func RecentByMerchant(es []Entry, merchant string, limit int) []core.Transaction {
	var matching []Entry
	for _, e := range es {
		if e.Tx.MerchantName() == merchant {
			matching = append(matching, e)
		}
	}
	return Newest(matching, limit)
}

// RecurringPaybills groups bill payments by paybill number, keeping groups
// of at least minCount. The merchant name is taken from the newest record
// of the group. Groups are ordered by count descending, first-seen order
// breaking ties.
func RecurringPaybills(es []Entry, minCount int) []core.PaybillAggregate {
	sorted := append([]Entry(nil), es...)
	SortBySeq(sorted)

	type group struct {
		agg    core.PaybillAggregate
		newest time.Time
	}
	index := make(map[string]int)
	var groups []group
	for _, e := range sorted {
		p, ok := e.Tx.Details.(core.Paybill)
		if !ok || p.PaybillNumber == "" {
			continue
		}
		i, ok := index[p.PaybillNumber]
		if !ok {
			i = len(groups)
			index[p.PaybillNumber] = i
			groups = append(groups, group{agg: core.PaybillAggregate{PaybillNumber: p.PaybillNumber}})
		}
		g := &groups[i]
		g.agg.Count++
		g.agg.Total = g.agg.Total.Add(e.Tx.Amount)
		if g.agg.MerchantName == "" || !e.Tx.Timestamp.Before(g.newest) {
			g.agg.MerchantName = p.MerchantName
			g.newest = e.Tx.Timestamp
		}
	}

	var out []core.PaybillAggregate
	for _, g := range groups {
		if g.agg.Count >= minCount {
			out = append(out, g.agg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
