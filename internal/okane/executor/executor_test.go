package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okanebot/okane/internal/okane/catalog"
	"github.com/okanebot/okane/internal/okane/ledger"
	"github.com/okanebot/okane/internal/okane/money"
	"github.com/okanebot/okane/internal/okane/timeframe"
)

// fakeLedger is an in-memory Ledger for executor tests.
type fakeLedger struct {
	expenses []*ledger.Expense
	err      error
}

func (f *fakeLedger) CreateExpense(_ context.Context, e *ledger.Expense) error {
	if f.err != nil {
		return f.err
	}
	e.ID = fmt.Sprintf("exp-%d", len(f.expenses)+1)
	e.Category = ledger.NormalizeCategory(e.Category)
	e.CreatedAt = time.Now()
	f.expenses = append(f.expenses, e)
	return nil
}

func (f *fakeLedger) DeleteExpense(_ context.Context, id, ownerID string) error {
	if f.err != nil {
		return f.err
	}
	for i, e := range f.expenses {
		if e.ID == id && e.OwnerID == ownerID {
			f.expenses = append(f.expenses[:i], f.expenses[i+1:]...)
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (f *fakeLedger) LatestExpense(_ context.Context, ownerID string) (*ledger.Expense, error) {
	if f.err != nil {
		return nil, f.err
	}
	var latest *ledger.Expense
	for _, e := range f.expenses {
		if e.OwnerID != ownerID {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, ledger.ErrNotFound
	}
	return latest, nil
}

func (f *fakeLedger) ListLatest(_ context.Context, ownerID string, limit int) ([]*ledger.Expense, error) {
	if f.err != nil {
		return nil, f.err
	}
	owned := f.owned(ownerID)
	if len(owned) > limit {
		owned = owned[len(owned)-limit:]
	}
	// Newest first.
	out := make([]*ledger.Expense, 0, len(owned))
	for i := len(owned) - 1; i >= 0; i-- {
		out = append(out, owned[i])
	}
	return out, nil
}

func (f *fakeLedger) ListAll(_ context.Context, ownerID string) ([]*ledger.Expense, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.owned(ownerID), nil
}

func (f *fakeLedger) ListByRange(_ context.Context, ownerID string, r timeframe.Range) ([]*ledger.Expense, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*ledger.Expense
	for _, e := range f.owned(ownerID) {
		if r.Contains(e.SpentOn) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedger) SumByOwner(_ context.Context, ownerID string) (money.Cents, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	var total money.Cents
	owned := f.owned(ownerID)
	for _, e := range owned {
		total += e.AmountCents
	}
	return total, len(owned), nil
}

func (f *fakeLedger) SumByRange(ctx context.Context, ownerID string, r timeframe.Range) (money.Cents, int, error) {
	matched, err := f.ListByRange(ctx, ownerID, r)
	if err != nil {
		return 0, 0, err
	}
	var total money.Cents
	for _, e := range matched {
		total += e.AmountCents
	}
	return total, len(matched), nil
}

func (f *fakeLedger) owned(ownerID string) []*ledger.Expense {
	var out []*ledger.Expense
	for _, e := range f.expenses {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out
}

type fakeCharts struct {
	url string
	err error

	pieLabels []string
	barLabels []string
}

func (f *fakeCharts) RenderPie(_ context.Context, labels []string, _ []float64, _ string) (string, error) {
	f.pieLabels = labels
	return f.url, f.err
}

func (f *fakeCharts) RenderBar(_ context.Context, labels []string, _ []float64, _ string) (string, error) {
	f.barLabels = labels
	return f.url, f.err
}

// testNow is a Wednesday, mid-month.
var testNow = time.Date(2024, time.March, 13, 10, 0, 0, 0, time.UTC)

func newTestExecutor(t *testing.T, store Ledger, renderer ChartRenderer) *Executor {
	t.Helper()
	cat, err := catalog.New()
	require.NoError(t, err)
	if renderer == nil {
		renderer = &fakeCharts{url: "https://quickchart.io/chart/render/test"}
	}
	return New(cat, store, renderer, WithClock(func() time.Time { return testNow }))
}

func seed(store *fakeLedger, ownerID, date, category string, cents money.Cents) *ledger.Expense {
	spentOn, err := timeframe.ParseDate(date)
	if err != nil {
		panic(err)
	}
	e := &ledger.Expense{
		ID:          fmt.Sprintf("exp-%d", len(store.expenses)+1),
		OwnerID:     ownerID,
		AmountCents: cents,
		Category:    category,
		Description: category + " purchase",
		SpentOn:     spentOn,
		CreatedAt:   time.Now().Add(time.Duration(len(store.expenses)) * time.Second),
	}
	store.expenses = append(store.expenses, e)
	return e
}

func TestExecuteUnknownOperation(t *testing.T) {
	exec := newTestExecutor(t, &fakeLedger{}, nil)

	res := exec.Execute(context.Background(), Request{ID: "c1", Name: "transfer_funds"}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonUnknownOperation, res.Reason())
}

func TestExecuteAddExpense(t *testing.T) {
	store := &fakeLedger{}
	seed(store, "alice", "2024-03-02", "food", 1000)
	exec := newTestExecutor(t, store, nil)

	res := exec.Execute(context.Background(), Request{
		ID:   "c1",
		Name: catalog.OpAddExpense,
		Arguments: map[string]any{
			"amount":      float64(12.5),
			"description": "lunch",
			"category":    "Food",
		},
	}, "alice")

	require.False(t, res.Failed())
	payload := res.Payload()
	assert.Equal(t, 12.5, payload["amount"])
	assert.Equal(t, "food", payload["category"])
	assert.Equal(t, "2024-03-13", payload["date"], "defaults to today")
	assert.Equal(t, 22.5, payload["month_total"], "running monthly total includes the new expense")
	assert.Equal(t, 2, payload["month_count"])
}

func TestExecuteAddExpenseWithoutCategory(t *testing.T) {
	exec := newTestExecutor(t, &fakeLedger{}, nil)

	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpAddExpense,
		Arguments: map[string]any{"amount": float64(50)},
	}, "alice")

	require.False(t, res.Failed())
	payload := res.Payload()
	assert.Equal(t, "uncategorized", payload["category"])
	assert.GreaterOrEqual(t, payload["month_total"].(float64), 50.0)
}

func TestExecuteAddExpenseMissingAmount(t *testing.T) {
	exec := newTestExecutor(t, &fakeLedger{}, nil)

	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpAddExpense,
		Arguments: map[string]any{"description": "lunch"},
	}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonMissingArgument, res.Reason())
}

func TestExecuteAddExpenseRejectsNegativeAmount(t *testing.T) {
	exec := newTestExecutor(t, &fakeLedger{}, nil)

	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpAddExpense,
		Arguments: map[string]any{"amount": float64(-4)},
	}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonInvalidArgument, res.Reason())
}

func TestExecuteAddExpenseInvalidCalendarDate(t *testing.T) {
	exec := newTestExecutor(t, &fakeLedger{}, nil)

	// Passes the schema's pattern but is not a real calendar date.
	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpAddExpense,
		Arguments: map[string]any{"amount": float64(5), "date": "2024-02-31"},
	}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonInvalidDate, res.Reason())
}

func TestExecuteDeleteLatestByDefault(t *testing.T) {
	store := &fakeLedger{}
	seed(store, "alice", "2024-03-10", "food", 500)
	latest := seed(store, "alice", "2024-03-11", "travel", 900)
	exec := newTestExecutor(t, store, nil)

	res := exec.Execute(context.Background(), Request{
		ID:   "c1",
		Name: catalog.OpDeleteExpense,
	}, "alice")

	require.False(t, res.Failed())
	payload := res.Payload()
	assert.Equal(t, latest.ID, payload["deleted_id"])
	assert.Equal(t, 9.0, payload["amount"])
	assert.Len(t, store.expenses, 1)
}

func TestExecuteDeleteEmptyLedger(t *testing.T) {
	exec := newTestExecutor(t, &fakeLedger{}, nil)

	res := exec.Execute(context.Background(), Request{
		ID:   "c1",
		Name: catalog.OpDeleteExpense,
	}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonNotFound, res.Reason())
}

func TestExecuteDeleteOtherOwnersExpense(t *testing.T) {
	store := &fakeLedger{}
	e := seed(store, "bob", "2024-03-10", "food", 500)
	exec := newTestExecutor(t, store, nil)

	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpDeleteExpense,
		Arguments: map[string]any{"id": e.ID},
	}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonNotFound, res.Reason())
	assert.Len(t, store.expenses, 1)
}

func TestExecuteSummary(t *testing.T) {
	store := &fakeLedger{}
	seed(store, "alice", "2024-03-11", "food", 1250)  // this week
	seed(store, "alice", "2024-03-01", "rent", 80000) // this month only
	seed(store, "bob", "2024-03-12", "food", 999)
	exec := newTestExecutor(t, store, nil)

	tests := []struct {
		period string
		total  float64
		count  int
	}{
		{"this_week", 12.5, 1},
		{"this_month", 812.5, 2},
		{"all", 812.5, 2},
	}
	for _, tc := range tests {
		t.Run(tc.period, func(t *testing.T) {
			res := exec.Execute(context.Background(), Request{
				ID:        "c1",
				Name:      catalog.OpSummary,
				Arguments: map[string]any{"period": tc.period},
			}, "alice")

			require.False(t, res.Failed())
			payload := res.Payload()
			assert.Equal(t, tc.total, payload["total"])
			assert.Equal(t, tc.count, payload["count"])
		})
	}
}

func TestExecuteSummaryEmptyLedger(t *testing.T) {
	exec := newTestExecutor(t, &fakeLedger{}, nil)

	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpSummary,
		Arguments: map[string]any{"period": "today"},
	}, "alice")

	require.False(t, res.Failed(), "an empty period is an answer, not an error")
	payload := res.Payload()
	assert.Equal(t, 0.0, payload["total"])
	assert.Equal(t, 0, payload["count"])
}

func TestExecuteListLatestDefaultLimit(t *testing.T) {
	store := &fakeLedger{}
	for i := 0; i < 8; i++ {
		seed(store, "alice", "2024-03-10", "food", money.Cents(100*(i+1)))
	}
	exec := newTestExecutor(t, store, nil)

	res := exec.Execute(context.Background(), Request{
		ID:   "c1",
		Name: catalog.OpListLatest,
	}, "alice")

	require.False(t, res.Failed())
	payload := res.Payload()
	rows := payload["expenses"].([]map[string]any)
	require.Len(t, rows, defaultListLimit)
	assert.Equal(t, 8.0, rows[0]["amount"], "newest first")
}

func TestExecuteQueryRange(t *testing.T) {
	store := &fakeLedger{}
	seed(store, "alice", "2024-03-01", "food", 1000)
	seed(store, "alice", "2024-03-05", "travel", 2000)
	seed(store, "alice", "2024-03-20", "food", 4000)
	exec := newTestExecutor(t, store, nil)

	res := exec.Execute(context.Background(), Request{
		ID:   "c1",
		Name: catalog.OpQueryRange,
		Arguments: map[string]any{
			"start_date": "2024-03-01",
			"end_date":   "2024-03-10",
			"category":   "food",
		},
	}, "alice")

	require.False(t, res.Failed())
	payload := res.Payload()
	assert.Equal(t, 10.0, payload["total"])
	assert.Equal(t, 1, payload["count"])
	assert.Equal(t, "food", payload["category"])
	assert.Len(t, payload["expenses"], 1)
}

func TestExecuteQueryRangeTotalMode(t *testing.T) {
	store := &fakeLedger{}
	seed(store, "alice", "2024-03-05", "food", 1500)
	exec := newTestExecutor(t, store, nil)

	res := exec.Execute(context.Background(), Request{
		ID:   "c1",
		Name: catalog.OpQueryRange,
		Arguments: map[string]any{
			"start_date": "2024-03-01",
			"end_date":   "2024-03-10",
			"mode":       "total",
		},
	}, "alice")

	require.False(t, res.Failed())
	payload := res.Payload()
	assert.Equal(t, 15.0, payload["total"])
	_, listed := payload["expenses"]
	assert.False(t, listed, "total mode omits the record list")
}

func TestExecuteQueryRangeInverted(t *testing.T) {
	exec := newTestExecutor(t, &fakeLedger{}, nil)

	res := exec.Execute(context.Background(), Request{
		ID:   "c1",
		Name: catalog.OpQueryRange,
		Arguments: map[string]any{
			"start_date": "2024-03-10",
			"end_date":   "2024-03-01",
		},
	}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonInvalidRange, res.Reason())
}

func TestExecuteCategoryReport(t *testing.T) {
	store := &fakeLedger{}
	seed(store, "alice", "2024-03-11", "food", 3000)
	seed(store, "alice", "2024-03-12", "food", 1000)
	seed(store, "alice", "2024-03-12", "travel", 1000)
	renderer := &fakeCharts{url: "https://quickchart.io/chart/render/pie"}
	exec := newTestExecutor(t, store, renderer)

	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpCategoryReport,
		Arguments: map[string]any{"period": "this_week"},
	}, "alice")

	require.False(t, res.Failed())
	payload := res.Payload()
	assert.Equal(t, 50.0, payload["total"])
	assert.Equal(t, "https://quickchart.io/chart/render/pie", payload["chartUrl"])
	assert.Equal(t, payload["chartUrl"], res.ChartURL())

	rows := payload["categories"].([]map[string]any)
	require.Len(t, rows, 2)
	assert.Equal(t, "food", rows[0]["category"], "largest category first")
	assert.Equal(t, 80.0, rows[0]["percentage"])
	assert.Equal(t, []string{"food", "travel"}, renderer.pieLabels)
}

func TestExecuteCategoryReportNoData(t *testing.T) {
	exec := newTestExecutor(t, &fakeLedger{}, nil)

	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpCategoryReport,
		Arguments: map[string]any{"period": "last_month"},
	}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonNoData, res.Reason())
}

func TestExecuteDailyChart(t *testing.T) {
	store := &fakeLedger{}
	seed(store, "alice", "2024-03-10", "food", 1000)
	seed(store, "alice", "2024-03-12", "food", 2000)
	seed(store, "alice", "2024-03-12", "travel", 500)
	renderer := &fakeCharts{url: "https://quickchart.io/chart/render/bar"}
	exec := newTestExecutor(t, store, renderer)

	res := exec.Execute(context.Background(), Request{
		ID:   "c1",
		Name: catalog.OpDailyChart,
		Arguments: map[string]any{
			"start_date": "2024-03-01",
			"end_date":   "2024-03-13",
		},
	}, "alice")

	require.False(t, res.Failed())
	payload := res.Payload()
	days := payload["days"].([]map[string]any)
	require.Len(t, days, 2, "days without spending are omitted")
	assert.Equal(t, "2024-03-10", days[0]["date"])
	assert.Equal(t, 25.0, days[1]["total"])
	assert.Equal(t, []string{"2024-03-10", "2024-03-12"}, renderer.barLabels)
}

func TestExecuteDailyChartRenderFailure(t *testing.T) {
	store := &fakeLedger{}
	seed(store, "alice", "2024-03-12", "food", 1000)
	renderer := &fakeCharts{err: errors.New("upstream unavailable")}
	exec := newTestExecutor(t, store, renderer)

	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpDailyChart,
		Arguments: map[string]any{"period": "this_week"},
	}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonChartError, res.Reason())
}

func TestExecuteStorageFailure(t *testing.T) {
	store := &fakeLedger{err: errors.New("database is locked")}
	exec := newTestExecutor(t, store, nil)

	res := exec.Execute(context.Background(), Request{
		ID:        "c1",
		Name:      catalog.OpSummary,
		Arguments: map[string]any{"period": "all"},
	}, "alice")

	require.True(t, res.Failed())
	assert.Equal(t, ReasonStorageError, res.Reason())
}
