package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/tripledger/internal/models"
)

const expenseColumns = `id, trip_id, payer_id, description, amount, currency, category, notes,
	spent_at, split_rule, created_at, updated_at`

// splitQuery derives each split's settled flag from the settlement ledger.
const splitQuery = `SELECT s.expense_id, s.member_id, s.owed_amount,
	CASE WHEN EXISTS (
		SELECT 1 FROM settlements st
		WHERE st.expense_id = s.expense_id AND st.payer_id = s.member_id AND st.status = 'settled'
	) THEN 1 ELSE 0 END
	FROM expense_splits s JOIN expenses e ON e.id = s.expense_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (*models.Expense, error) {
	e := &models.Expense{}
	var category string
	var rule []byte
	if err := row.Scan(&e.ID, &e.TripID, &e.PayerID, &e.Description, &e.Amount, &e.Currency,
		&category, &e.Notes, &e.SpentAt, &rule, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Category = models.Category(category)

	decoded, err := models.UnmarshalSplitRule(rule)
	if err != nil {
		return nil, err
	}
	e.Rule = decoded
	return e, nil
}

func (t *tripTx) splits(ctx context.Context, where string, arg string) (map[string][]models.ExpenseSplit, error) {
	rows, err := t.tx.QueryContext(ctx,
		t.rebind(splitQuery+" WHERE "+where+" ORDER BY s.expense_id, s.member_id"),
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expense splits: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.ExpenseSplit)
	for rows.Next() {
		var s models.ExpenseSplit
		var settled int
		if err := rows.Scan(&s.ExpenseID, &s.MemberID, &s.OwedAmount, &settled); err != nil {
			return nil, fmt.Errorf("failed to scan expense split: %w", err)
		}
		s.Settled = settled == 1
		out[s.ExpenseID] = append(out[s.ExpenseID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expense splits: %w", err)
	}
	return out, nil
}

// Expenses lists the trip's expenses with their splits.
func (t *tripTx) Expenses(ctx context.Context) ([]*models.Expense, error) {
	rows, err := t.tx.QueryContext(ctx,
		t.rebind("SELECT "+expenseColumns+" FROM expenses WHERE trip_id = ? ORDER BY created_at, id"),
		t.trip.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	var expenses []*models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	splits, err := t.splits(ctx, "e.trip_id = ?", t.trip.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range expenses {
		e.Splits = splits[e.ID]
	}
	return expenses, nil
}

// GetExpense retrieves one expense of the trip with its splits.
func (t *tripTx) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	e, err := scanExpense(t.tx.QueryRowContext(ctx,
		t.rebind("SELECT "+expenseColumns+" FROM expenses WHERE id = ? AND trip_id = ?"),
		expenseID, t.trip.ID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("expense", expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	splits, err := t.splits(ctx, "s.expense_id = ?", e.ID)
	if err != nil {
		return nil, err
	}
	e.Splits = splits[e.ID]
	return e, nil
}

// InsertExpense persists an expense and its splits.
func (t *tripTx) InsertExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if expense.CreatedAt == 0 {
		expense.CreatedAt = now
	}
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = expense.CreatedAt
	}
	expense.TripID = t.trip.ID

	rule, err := models.MarshalSplitRule(expense.Rule)
	if err != nil {
		return fmt.Errorf("failed to encode split rule: %w", err)
	}

	_, err = t.exec(ctx,
		`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.TripID, expense.PayerID, expense.Description, expense.Amount, expense.Currency,
		string(expense.Category), expense.Notes, expense.SpentAt, string(rule), expense.CreatedAt, expense.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	return t.insertSplits(ctx, expense)
}

func (t *tripTx) insertSplits(ctx context.Context, expense *models.Expense) error {
	for i := range expense.Splits {
		split := &expense.Splits[i]
		split.ExpenseID = expense.ID
		_, err := t.exec(ctx,
			"INSERT INTO expense_splits (expense_id, member_id, owed_amount) VALUES (?, ?, ?)",
			split.ExpenseID, split.MemberID, split.OwedAmount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense split: %w", err)
		}
	}
	return nil
}

// ReplaceExpense updates an expense and swaps its split set.
func (t *tripTx) ReplaceExpense(ctx context.Context, expense *models.Expense) error {
	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = time.Now().Unix()
	}
	rule, err := models.MarshalSplitRule(expense.Rule)
	if err != nil {
		return fmt.Errorf("failed to encode split rule: %w", err)
	}

	res, err := t.exec(ctx,
		`UPDATE expenses SET payer_id = ?, description = ?, amount = ?, currency = ?, category = ?,
		 notes = ?, spent_at = ?, split_rule = ?, updated_at = ?
		 WHERE id = ? AND trip_id = ?`,
		expense.PayerID, expense.Description, expense.Amount, expense.Currency, string(expense.Category),
		expense.Notes, expense.SpentAt, string(rule), expense.UpdatedAt,
		expense.ID, t.trip.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	} else if n == 0 {
		return models.NewNotFoundError("expense", expense.ID)
	}

	if _, err := t.exec(ctx, "DELETE FROM expense_splits WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to delete expense splits: %w", err)
	}
	return t.insertSplits(ctx, expense)
}

// DeleteExpense removes an expense. Its splits are removed by cascade.
func (t *tripTx) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := t.exec(ctx, "DELETE FROM expenses WHERE id = ? AND trip_id = ?", expenseID, t.trip.ID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return models.NewNotFoundError("expense", expenseID)
	}
	return nil
}
