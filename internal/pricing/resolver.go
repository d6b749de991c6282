// Package pricing resolves the selling price of an item from dated price
// list entries. Resolution is a pure function: no I/O, no clock, the
// caller supplies the as-of date.
package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
)

// Resolution is the outcome of a price lookup. When Valid is false the
// caller falls back to the item's base rate; Note says why.
type Resolution struct {
	Valid bool
	Price decimal.Decimal
	Note  string
}

// Resolve picks the entry in force for the item on the given date.
//
// An entry qualifies when the date sits inside its inclusive
// [ValidFrom, ValidTo] window; a zero bound is open. Among multiple
// qualifying entries the most recent ValidFrom wins; entries sharing that
// date tie-break on the lexicographically greatest entry ID, so the result
// is stable regardless of input order.
func Resolve(itemID string, entries []docstore.PriceListEntry, asOf time.Time) Resolution {
	var qualifying []docstore.PriceListEntry
	for _, entry := range entries {
		if entry.ItemID != itemID {
			continue
		}
		if inWindow(entry, asOf) {
			qualifying = append(qualifying, entry)
		}
	}

	switch len(qualifying) {
	case 0:
		return Resolution{Note: "no price list entry in force"}
	case 1:
		return Resolution{Valid: true, Price: qualifying[0].Rate, Note: "single entry in force"}
	}

	sort.Slice(qualifying, func(i, j int) bool {
		a, b := qualifying[i], qualifying[j]
		af, bf := dateOnly(a.ValidFrom), dateOnly(b.ValidFrom)
		if !af.Equal(bf) {
			// Zero ValidFrom is the open past and always loses to a
			// dated entry.
			if a.ValidFrom.IsZero() {
				return false
			}
			if b.ValidFrom.IsZero() {
				return true
			}
			return af.After(bf)
		}
		return a.ID > b.ID
	})

	return Resolution{Valid: true, Price: qualifying[0].Rate, Note: "most recent valid_from selected"}
}

func inWindow(entry docstore.PriceListEntry, asOf time.Time) bool {
	day := dateOnly(asOf)
	if !entry.ValidFrom.IsZero() && day.Before(dateOnly(entry.ValidFrom)) {
		return false
	}
	if !entry.ValidTo.IsZero() && day.After(dateOnly(entry.ValidTo)) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
