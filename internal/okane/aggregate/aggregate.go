// Package aggregate provides pure grouping functions over expense records.
//
// Totals are summed in integer cents, so results are exact; rounding to two
// decimals happens only when a total is rendered.
package aggregate

import (
	"sort"

	"github.com/okanebot/okane/internal/okane/ledger"
	"github.com/okanebot/okane/internal/okane/money"
)

// Uncategorized is the bucket for records that carry no category.
const Uncategorized = "uncategorized"

// CategoryTotal is the aggregate for one category bucket.
type CategoryTotal struct {
	TotalCents money.Cents
	Count      int
}

// DayTotal is the aggregate for one calendar day.
type DayTotal struct {
	Date       string // YYYY-MM-DD
	TotalCents money.Cents
	Count      int
}

// ByCategory groups records into normalized category buckets.  Categories
// differing only by case or surrounding whitespace share a bucket; records
// without a category land under Uncategorized.
func ByCategory(records []*ledger.Expense) map[string]CategoryTotal {
	out := make(map[string]CategoryTotal)
	for _, e := range records {
		key := ledger.NormalizeCategory(e.Category)
		if key == "" {
			key = Uncategorized
		}
		agg := out[key]
		agg.TotalCents += e.AmountCents
		agg.Count++
		out[key] = agg
	}
	return out
}

// SortedCategories returns the bucket names of totals ordered by descending
// total (ties broken alphabetically), for stable chart and report output.
func SortedCategories(totals map[string]CategoryTotal) []string {
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := totals[names[i]], totals[names[j]]
		if a.TotalCents != b.TotalCents {
			return a.TotalCents > b.TotalCents
		}
		return names[i] < names[j]
	})
	return names
}

// ByDay groups records by calendar day, ascending by date string.  Days with
// no records are omitted rather than zero-filled.
func ByDay(records []*ledger.Expense) []DayTotal {
	byDate := make(map[string]DayTotal)
	for _, e := range records {
		key := e.SpentOn.String()
		agg := byDate[key]
		agg.Date = key
		agg.TotalCents += e.AmountCents
		agg.Count++
		byDate[key] = agg
	}

	out := make([]DayTotal, 0, len(byDate))
	for _, agg := range byDate {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// FilterByCategory returns the records whose normalized category matches the
// normalized form of category.
func FilterByCategory(records []*ledger.Expense, category string) []*ledger.Expense {
	want := ledger.NormalizeCategory(category)
	var out []*ledger.Expense
	for _, e := range records {
		if ledger.NormalizeCategory(e.Category) == want {
			out = append(out, e)
		}
	}
	return out
}

// Sum totals a record slice in cents.
func Sum(records []*ledger.Expense) money.Cents {
	var total money.Cents
	for _, e := range records {
		total += e.AmountCents
	}
	return total
}
