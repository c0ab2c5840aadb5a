// Package executor maps validated operation requests onto the ledger and
// chart collaborators and produces structured, JSON-serializable results.
//
// Every failure mode (bad arguments, missing records, unreachable
// collaborators) is converted into a Failure result with a stable reason.
// Nothing thrown by a collaborator escapes Execute.
package executor

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/okanebot/okane/internal/okane/aggregate"
	"github.com/okanebot/okane/internal/okane/catalog"
	"github.com/okanebot/okane/internal/okane/ledger"
	"github.com/okanebot/okane/internal/okane/money"
	"github.com/okanebot/okane/internal/okane/observability"
	"github.com/okanebot/okane/internal/okane/timeframe"
)

const defaultListLimit = 5

// Request is one operation chosen by the model, identified by the tool-call
// ID that survives the round trip.
type Request struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Ledger is the store contract the executor depends on.
type Ledger interface {
	CreateExpense(ctx context.Context, e *ledger.Expense) error
	DeleteExpense(ctx context.Context, id, ownerID string) error
	LatestExpense(ctx context.Context, ownerID string) (*ledger.Expense, error)
	ListLatest(ctx context.Context, ownerID string, limit int) ([]*ledger.Expense, error)
	ListAll(ctx context.Context, ownerID string) ([]*ledger.Expense, error)
	ListByRange(ctx context.Context, ownerID string, r timeframe.Range) ([]*ledger.Expense, error)
	SumByOwner(ctx context.Context, ownerID string) (money.Cents, int, error)
	SumByRange(ctx context.Context, ownerID string, r timeframe.Range) (money.Cents, int, error)
}

// ChartRenderer is the chart collaborator contract.
type ChartRenderer interface {
	RenderPie(ctx context.Context, labels []string, values []float64, title string) (string, error)
	RenderBar(ctx context.Context, labels []string, values []float64, title string) (string, error)
}

// Executor executes operation requests for one process.
type Executor struct {
	catalog *catalog.Catalog
	store   Ledger
	charts  ChartRenderer
	now     func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New creates an Executor over the given collaborators.
func New(cat *catalog.Catalog, store Ledger, renderer ChartRenderer, opts ...Option) *Executor {
	e := &Executor{
		catalog: cat,
		store:   store,
		charts:  renderer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates and runs one operation on behalf of ownerID.
func (e *Executor) Execute(ctx context.Context, req Request, ownerID string) Result {
	desc, ok := e.catalog.Get(req.Name)
	if !ok {
		return Failure(req.ID, req.Name, ReasonUnknownOperation)
	}

	if err := desc.ValidateArguments(req.Arguments); err != nil {
		reason := ReasonInvalidArgument
		if errors.Is(err, catalog.ErrMissingArgument) {
			reason = ReasonMissingArgument
		}
		observability.WithTrace(ctx).Debug("operation arguments rejected", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, reason)
	}

	args := bag(req.Arguments)

	switch req.Name {
	case catalog.OpAddExpense:
		return e.addExpense(ctx, req, args, ownerID)
	case catalog.OpDeleteExpense:
		return e.deleteExpense(ctx, req, args, ownerID)
	case catalog.OpSummary:
		return e.summary(ctx, req, args, ownerID)
	case catalog.OpListLatest:
		return e.listLatest(ctx, req, args, ownerID)
	case catalog.OpListAll:
		return e.listAll(ctx, req, ownerID)
	case catalog.OpQueryRange:
		return e.queryRange(ctx, req, args, ownerID)
	case catalog.OpCategoryReport:
		return e.categoryReport(ctx, req, args, ownerID)
	case catalog.OpDailyChart:
		return e.dailyChart(ctx, req, args, ownerID)
	default:
		// Catalog and switch have drifted; treat as unknown rather than panic.
		return Failure(req.ID, req.Name, ReasonUnknownOperation)
	}
}

// addExpense records the expense and reports the owner's running monthly
// total alongside it: every add confirmation shows where the month stands.
func (e *Executor) addExpense(ctx context.Context, req Request, args bag, ownerID string) Result {
	parsed, err := parseAddArgs(args, timeframe.DateOf(e.now()))
	if err != nil {
		if errors.Is(err, timeframe.ErrInvalidDateFormat) {
			return Failure(req.ID, req.Name, ReasonInvalidDate)
		}
		return Failure(req.ID, req.Name, ReasonInvalidArgument)
	}
	if parsed.Amount <= 0 {
		return Failure(req.ID, req.Name, ReasonInvalidArgument)
	}

	expense := &ledger.Expense{
		OwnerID:     ownerID,
		AmountCents: parsed.Amount,
		Description: parsed.Description,
		Category:    parsed.Category,
		SpentOn:     parsed.Date,
	}
	if err := e.store.CreateExpense(ctx, expense); err != nil {
		observability.WithTrace(ctx).Error("expense create failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonStorageError)
	}

	month, err := timeframe.ResolveNamedAt(timeframe.PeriodThisMonth, e.now())
	if err != nil {
		return Failure(req.ID, req.Name, ReasonStorageError)
	}
	monthTotal, monthCount, err := e.store.SumByRange(ctx, ownerID, month)
	if err != nil {
		observability.WithTrace(ctx).Error("monthly total query failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonStorageError)
	}

	return Success(req.ID, req.Name, map[string]any{
		"id":          expense.ID,
		"amount":      expense.AmountCents.Float(),
		"description": expense.Description,
		"category":    categoryOrDefault(expense.Category),
		"date":        expense.SpentOn.String(),
		"month_total": monthTotal.Float(),
		"month_count": monthCount,
	})
}

func (e *Executor) deleteExpense(ctx context.Context, req Request, args bag, ownerID string) Result {
	target := &ledger.Expense{ID: args.str("id")}

	if target.ID == "" {
		latest, err := e.store.LatestExpense(ctx, ownerID)
		if errors.Is(err, ledger.ErrNotFound) {
			return Failure(req.ID, req.Name, ReasonNotFound)
		}
		if err != nil {
			observability.WithTrace(ctx).Error("latest expense lookup failed", "op", req.Name, "owner", ownerID, "err", err)
			return Failure(req.ID, req.Name, ReasonStorageError)
		}
		target = latest
	}

	if err := e.store.DeleteExpense(ctx, target.ID, ownerID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return Failure(req.ID, req.Name, ReasonNotFound)
		}
		observability.WithTrace(ctx).Error("expense delete failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonStorageError)
	}

	payload := map[string]any{"deleted_id": target.ID}
	if target.AmountCents > 0 {
		payload["amount"] = target.AmountCents.Float()
		payload["description"] = target.Description
		payload["date"] = target.SpentOn.String()
	}
	return Success(req.ID, req.Name, payload)
}

func (e *Executor) summary(ctx context.Context, req Request, args bag, ownerID string) Result {
	period := args.str("period")

	var (
		total money.Cents
		count int
		err   error
	)
	if period == "all" {
		total, count, err = e.store.SumByOwner(ctx, ownerID)
	} else {
		var r timeframe.Range
		r, err = timeframe.ResolveNamedAt(timeframe.Period(period), e.now())
		if err != nil {
			return Failure(req.ID, req.Name, ReasonInvalidArgument)
		}
		total, count, err = e.store.SumByRange(ctx, ownerID, r)
	}
	if err != nil {
		observability.WithTrace(ctx).Error("summary query failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonStorageError)
	}

	return Success(req.ID, req.Name, map[string]any{
		"period": period,
		"total":  total.Float(),
		"count":  count,
	})
}

func (e *Executor) listLatest(ctx context.Context, req Request, args bag, ownerID string) Result {
	parsed := parseListLatestArgs(args)

	expenses, err := e.store.ListLatest(ctx, ownerID, parsed.Limit)
	if err != nil {
		observability.WithTrace(ctx).Error("latest list query failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonStorageError)
	}

	return Success(req.ID, req.Name, map[string]any{
		"expenses": serializeExpenses(expenses),
		"count":    len(expenses),
	})
}

func (e *Executor) listAll(ctx context.Context, req Request, ownerID string) Result {
	expenses, err := e.store.ListAll(ctx, ownerID)
	if err != nil {
		observability.WithTrace(ctx).Error("full list query failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonStorageError)
	}

	return Success(req.ID, req.Name, map[string]any{
		"expenses": serializeExpenses(expenses),
		"count":    len(expenses),
		"total":    aggregate.Sum(expenses).Float(),
	})
}

func (e *Executor) queryRange(ctx context.Context, req Request, args bag, ownerID string) Result {
	parsed, err := parseRangeArgs(args, e.now())
	if err != nil {
		if errors.Is(err, timeframe.ErrInvalidRange) {
			return Failure(req.ID, req.Name, ReasonInvalidRange)
		}
		return Failure(req.ID, req.Name, ReasonInvalidDate)
	}

	expenses, err := e.store.ListByRange(ctx, ownerID, parsed.Range)
	if err != nil {
		observability.WithTrace(ctx).Error("range query failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonStorageError)
	}
	if parsed.Category != "" {
		expenses = aggregate.FilterByCategory(expenses, parsed.Category)
	}

	payload := map[string]any{
		"start_date": parsed.Range.Start.String(),
		"end_date":   parsed.Range.End.String(),
		"total":      aggregate.Sum(expenses).Float(),
		"count":      len(expenses),
	}
	if parsed.Category != "" {
		payload["category"] = ledger.NormalizeCategory(parsed.Category)
	}
	if !parsed.TotalOnly {
		payload["expenses"] = serializeExpenses(expenses)
	}
	return Success(req.ID, req.Name, payload)
}

func (e *Executor) categoryReport(ctx context.Context, req Request, args bag, ownerID string) Result {
	r, err := timeframe.ResolveNamedAt(timeframe.Period(args.str("period")), e.now())
	if err != nil {
		return Failure(req.ID, req.Name, ReasonInvalidArgument)
	}

	expenses, err := e.store.ListByRange(ctx, ownerID, r)
	if err != nil {
		observability.WithTrace(ctx).Error("report query failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonStorageError)
	}
	if len(expenses) == 0 {
		return Failure(req.ID, req.Name, ReasonNoData)
	}

	buckets := aggregate.ByCategory(expenses)
	names := aggregate.SortedCategories(buckets)
	grandTotal := aggregate.Sum(expenses)

	labels := make([]string, 0, len(names))
	values := make([]float64, 0, len(names))
	rows := make([]map[string]any, 0, len(names))
	for _, name := range names {
		bucket := buckets[name]
		pct := percentage(bucket.TotalCents, grandTotal)
		labels = append(labels, name)
		values = append(values, bucket.TotalCents.Float())
		rows = append(rows, map[string]any{
			"category":   name,
			"total":      bucket.TotalCents.Float(),
			"count":      bucket.Count,
			"percentage": pct,
		})
	}

	chartURL, err := e.charts.RenderPie(ctx, labels, values, "Spending by category")
	if err != nil {
		observability.WithTrace(ctx).Error("pie chart render failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonChartError)
	}

	return Success(req.ID, req.Name, map[string]any{
		"period":     args.str("period"),
		"start_date": r.Start.String(),
		"end_date":   r.End.String(),
		"total":      grandTotal.Float(),
		"categories": rows,
		"chartUrl":   chartURL,
	})
}

func (e *Executor) dailyChart(ctx context.Context, req Request, args bag, ownerID string) Result {
	parsed, err := parseDailyChartArgs(args, e.now())
	if err != nil {
		switch {
		case errors.Is(err, timeframe.ErrInvalidRange):
			return Failure(req.ID, req.Name, ReasonInvalidRange)
		case errors.Is(err, timeframe.ErrInvalidDateFormat):
			return Failure(req.ID, req.Name, ReasonInvalidDate)
		default:
			return Failure(req.ID, req.Name, ReasonInvalidArgument)
		}
	}

	expenses, err := e.store.ListByRange(ctx, ownerID, parsed.Range)
	if err != nil {
		observability.WithTrace(ctx).Error("daily chart query failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonStorageError)
	}
	if len(expenses) == 0 {
		return Failure(req.ID, req.Name, ReasonNoData)
	}

	days := aggregate.ByDay(expenses)
	labels := make([]string, 0, len(days))
	values := make([]float64, 0, len(days))
	rows := make([]map[string]any, 0, len(days))
	for _, day := range days {
		labels = append(labels, day.Date)
		values = append(values, day.TotalCents.Float())
		rows = append(rows, map[string]any{
			"date":  day.Date,
			"total": day.TotalCents.Float(),
			"count": day.Count,
		})
	}

	chartURL, err := e.charts.RenderBar(ctx, labels, values, "Spending per day")
	if err != nil {
		observability.WithTrace(ctx).Error("bar chart render failed", "op", req.Name, "owner", ownerID, "err", err)
		return Failure(req.ID, req.Name, ReasonChartError)
	}

	return Success(req.ID, req.Name, map[string]any{
		"start_date": parsed.Range.Start.String(),
		"end_date":   parsed.Range.End.String(),
		"total":      aggregate.Sum(expenses).Float(),
		"days":       rows,
		"chartUrl":   chartURL,
	})
}

// serializeExpenses re-serializes records with canonical date strings.
func serializeExpenses(expenses []*ledger.Expense) []map[string]any {
	out := make([]map[string]any, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, map[string]any{
			"id":          e.ID,
			"amount":      e.AmountCents.Float(),
			"description": e.Description,
			"category":    categoryOrDefault(e.Category),
			"date":        e.SpentOn.String(),
		})
	}
	return out
}

func categoryOrDefault(category string) string {
	if category == "" {
		return aggregate.Uncategorized
	}
	return category
}

// percentage returns part/total as a percent rounded to one decimal.
func percentage(part, total money.Cents) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
