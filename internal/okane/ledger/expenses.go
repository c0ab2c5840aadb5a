package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okanebot/okane/internal/okane/money"
	"github.com/okanebot/okane/internal/okane/timeframe"
)

// ErrNotFound is returned when a lookup or delete targets a record that does
// not exist or does not belong to the requesting owner.
var ErrNotFound = errors.New("ledger: expense not found")

// Expense is one recorded expense.  Category is stored normalized
// (lower-cased, trimmed); an empty category means uncategorized.
type Expense struct {
	ID          string
	OwnerID     string
	AmountCents money.Cents
	Description string
	Category    string
	SpentOn     timeframe.Date
	CreatedAt   time.Time
}

// NormalizeCategory lower-cases and trims a category so that "Food" and
// " food " always land in the same bucket, in storage and in aggregation.
func NormalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CreateExpense inserts a new expense.  The ID and CreatedAt fields are
// assigned here; the category is normalized before it reaches the database.
func (s *Store) CreateExpense(ctx context.Context, e *Expense) error {
	if e.AmountCents <= 0 {
		return fmt.Errorf("ledger: amount must be positive, got %s", e.AmountCents)
	}

	e.ID = uuid.NewString()
	e.Category = NormalizeCategory(e.Category)
	e.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, owner_id, amount_cents, description, category, spent_on, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.OwnerID, int64(e.AmountCents), e.Description, e.Category, e.SpentOn.String(), e.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}

	return nil
}

// DeleteExpense removes the expense with the given id if it belongs to
// ownerID.  Returns ErrNotFound when no matching row exists.
func (s *Store) DeleteExpense(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM expenses WHERE id = ? AND owner_id = ?
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestExpense returns the most recently created expense for the owner.
func (s *Store) LatestExpense(ctx context.Context, ownerID string) (*Expense, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, amount_cents, description, category, spent_on, created_at
		FROM expenses
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, ownerID)

	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest expense: %w", err)
	}
	return e, nil
}

// ListLatest returns up to limit expenses for the owner, newest first by
// creation order.
func (s *Store) ListLatest(ctx context.Context, ownerID string, limit int) ([]*Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, amount_cents, description, category, spent_on, created_at
		FROM expenses
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest expenses: %w", err)
	}
	return collectExpenses(rows)
}

// ListAll returns every expense for the owner, newest first by spend date.
func (s *Store) ListAll(ctx context.Context, ownerID string) ([]*Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, amount_cents, description, category, spent_on, created_at
		FROM expenses
		WHERE owner_id = ?
		ORDER BY spent_on DESC, created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	return collectExpenses(rows)
}

// ListByRange returns the owner's expenses with spent_on inside r, ascending
// by spend date.  Date comparison is plain string comparison on the stored
// YYYY-MM-DD values.
func (s *Store) ListByRange(ctx context.Context, ownerID string, r timeframe.Range) ([]*Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, amount_cents, description, category, spent_on, created_at
		FROM expenses
		WHERE owner_id = ? AND spent_on >= ? AND spent_on <= ?
		ORDER BY spent_on ASC, created_at ASC
	`, ownerID, r.Start.String(), r.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses by range: %w", err)
	}
	return collectExpenses(rows)
}

// SumByOwner returns the total and count of all expenses for the owner.
func (s *Store) SumByOwner(ctx context.Context, ownerID string) (money.Cents, int, error) {
	var total int64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0), COUNT(*)
		FROM expenses
		WHERE owner_id = ?
	`, ownerID).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum expenses: %w", err)
	}
	return money.Cents(total), count, nil
}

// SumByRange returns the total and count of the owner's expenses inside r.
func (s *Store) SumByRange(ctx context.Context, ownerID string, r timeframe.Range) (money.Cents, int, error) {
	var total int64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0), COUNT(*)
		FROM expenses
		WHERE owner_id = ? AND spent_on >= ? AND spent_on <= ?
	`, ownerID, r.Start.String(), r.End.String()).Scan(&total, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum expenses by range: %w", err)
	}
	return money.Cents(total), count, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanExpense.
type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*Expense, error) {
	var (
		e       Expense
		cents   int64
		spentOn string
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &cents, &e.Description, &e.Category, &spentOn, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.AmountCents = money.Cents(cents)

	date, err := timeframe.ParseDate(spentOn)
	if err != nil {
		return nil, fmt.Errorf("corrupt spent_on value %q for expense %s: %w", spentOn, e.ID, err)
	}
	e.SpentOn = date
	return &e, nil
}

func collectExpenses(rows *sql.Rows) ([]*Expense, error) {
	defer rows.Close()

	var expenses []*Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}
	return expenses, nil
}
