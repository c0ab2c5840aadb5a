package executor

// Typed argument structs, one per capability.  The untyped argument bag from
// the model is schema-validated and converted here at the executor entry
// point; nothing past this file sees a raw map.

import (
	"fmt"
	"time"

	"github.com/okanebot/okane/internal/okane/money"
	"github.com/okanebot/okane/internal/okane/timeframe"
)

type addArgs struct {
	Amount      money.Cents
	Description string
	Category    string
	Date        timeframe.Date
}

type listLatestArgs struct {
	Limit int
}

type rangeArgs struct {
	Range     timeframe.Range
	Category  string
	TotalOnly bool
}

type dailyChartArgs struct {
	Range timeframe.Range
}

// bag wraps the validated argument map with typed accessors.
type bag map[string]any

func (b bag) str(key string) string {
	if v, ok := b[key].(string); ok {
		return v
	}
	return ""
}

func (b bag) num(key string) (float64, bool) {
	v, ok := b[key].(float64)
	return v, ok
}

func parseAddArgs(b bag, today timeframe.Date) (addArgs, error) {
	amount, ok := b.num("amount")
	if !ok {
		return addArgs{}, fmt.Errorf("amount is not a number")
	}

	args := addArgs{
		Amount:      money.FromFloat(amount),
		Description: b.str("description"),
		Category:    b.str("category"),
		Date:        today,
	}

	if text := b.str("date"); text != "" {
		date, err := timeframe.ParseDate(text)
		if err != nil {
			return addArgs{}, err
		}
		args.Date = date
	}
	return args, nil
}

func parseListLatestArgs(b bag) listLatestArgs {
	limit := defaultListLimit
	if v, ok := b.num("limit"); ok && int(v) > 0 {
		limit = int(v)
	}
	return listLatestArgs{Limit: limit}
}

func parseRangeArgs(b bag, now time.Time) (rangeArgs, error) {
	r, err := timeframe.ResolveExplicitAt(b.str("start_date"), b.str("end_date"), now)
	if err != nil {
		return rangeArgs{}, err
	}
	return rangeArgs{
		Range:     r,
		Category:  b.str("category"),
		TotalOnly: b.str("mode") == "total",
	}, nil
}

func parseDailyChartArgs(b bag, now time.Time) (dailyChartArgs, error) {
	// An explicit start date wins over a named period; with neither, the
	// chart covers the current month.
	if start := b.str("start_date"); start != "" {
		r, err := timeframe.ResolveExplicitAt(start, b.str("end_date"), now)
		if err != nil {
			return dailyChartArgs{}, err
		}
		return dailyChartArgs{Range: r}, nil
	}

	period := timeframe.Period(b.str("period"))
	if period == "" {
		period = timeframe.PeriodThisMonth
	}
	r, err := timeframe.ResolveNamedAt(period, now)
	if err != nil {
		return dailyChartArgs{}, err
	}
	return dailyChartArgs{Range: r}, nil
}
