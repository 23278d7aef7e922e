package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/tripledger/internal/calculator"
	"github.com/mmynk/tripledger/internal/events"
	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/internal/storage"
)

// ExpenseInput is the caller-supplied part of an expense.
type ExpenseInput struct {
	PayerID     string
	Description string
	Amount      int64

	// Currency defaults to the trip currency and must match it.
	Currency string

	// Category defaults to models.CategoryOther.
	Category models.Category
	Notes    string
	SpentAt  int64
	Rule     models.SplitRule
}

// buildExpense validates in against the trip and computes the splits.
// previousPayer is the payer of the expense being edited, if any; a payer
// who has since been removed may stay on an edited expense.
func buildExpense(trip *models.Trip, members []*models.Member, in ExpenseInput, previousPayer string) (*models.Expense, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, models.NewValidationError("description", "is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = trip.Currency
	}
	if currency != trip.Currency {
		return nil, models.NewValidationError("currency",
			fmt.Sprintf("expense currency %s does not match trip currency %s", currency, trip.Currency))
	}

	category, err := models.ParseCategory(string(in.Category))
	if err != nil {
		return nil, err
	}

	payer := findMember(members, in.PayerID)
	if payer == nil {
		return nil, models.NewValidationError("payer_id", fmt.Sprintf("member %s is not on the trip", in.PayerID))
	}
	if !payer.Active() && payer.ID != previousPayer {
		return nil, models.NewValidationError("payer_id", fmt.Sprintf("member %s has been removed from the trip", in.PayerID))
	}

	splits, err := calculator.CalculateSplit(in.Amount, in.Rule, models.ActiveMemberIDs(members))
	if err != nil {
		return nil, err
	}

	return &models.Expense{
		TripID:      trip.ID,
		PayerID:     payer.ID,
		Description: description,
		Amount:      in.Amount,
		Currency:    currency,
		Category:    category,
		Notes:       in.Notes,
		SpentAt:     in.SpentAt,
		Rule:        in.Rule,
		Splits:      splits,
	}, nil
}

// CreateExpense records an expense and its computed splits atomically.
func (l *Ledger) CreateExpense(ctx context.Context, tripID string, in ExpenseInput) (*models.Expense, error) {
	var expense *models.Expense
	_, err := l.update(ctx, "create_expense", tripID, func(tx storage.TripTx, emit func(events.LedgerEvent)) error {
		members, err := tx.Members(ctx)
		if err != nil {
			return err
		}
		expense, err = buildExpense(tx.Trip(), members, in, "")
		if err != nil {
			return err
		}

		now := l.now().Unix()
		expense.CreatedAt, expense.UpdatedAt = now, now
		if expense.SpentAt == 0 {
			expense.SpentAt = now
		}
		if err := tx.InsertExpense(ctx, expense); err != nil {
			return err
		}
		emit(events.LedgerEvent{Type: events.ExpenseCreated, ExpenseID: expense.ID, Amount: expense.Amount})
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.ExpenseOperation("create")
	slog.Info("Expense created", "trip_id", tripID, "expense_id", expense.ID, "amount", expense.Amount, "split", expense.Rule.Kind())
	return expense, nil
}

// UpdateExpense recomputes an expense's splits from a new rule and replaces
// them atomically. Proposed settlements tied to the expense become stale.
func (l *Ledger) UpdateExpense(ctx context.Context, tripID, expenseID string, in ExpenseInput) (*models.Expense, error) {
	var expense *models.Expense
	_, err := l.update(ctx, "update_expense", tripID, func(tx storage.TripTx, emit func(events.LedgerEvent)) error {
		existing, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		members, err := tx.Members(ctx)
		if err != nil {
			return err
		}
		expense, err = buildExpense(tx.Trip(), members, in, existing.PayerID)
		if err != nil {
			return err
		}

		expense.ID = existing.ID
		expense.CreatedAt = existing.CreatedAt
		expense.UpdatedAt = l.now().Unix()
		if expense.SpentAt == 0 {
			expense.SpentAt = existing.SpentAt
		}
		if err := tx.ReplaceExpense(ctx, expense); err != nil {
			return err
		}
		if _, err := tx.MarkStaleForExpense(ctx, expense.ID); err != nil {
			return err
		}
		emit(events.LedgerEvent{Type: events.ExpenseUpdated, ExpenseID: expense.ID, Amount: expense.Amount})
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.ExpenseOperation("update")
	slog.Info("Expense updated", "trip_id", tripID, "expense_id", expense.ID, "amount", expense.Amount)
	return expense, nil
}

// DeleteExpense removes an expense and its splits. Proposed settlements
// computed against it become stale; settled ones stay since money moved.
func (l *Ledger) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	var staled int64
	_, err := l.update(ctx, "delete_expense", tripID, func(tx storage.TripTx, emit func(events.LedgerEvent)) error {
		if err := tx.DeleteExpense(ctx, expenseID); err != nil {
			return err
		}
		var err error
		staled, err = tx.MarkStaleForExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		emit(events.LedgerEvent{Type: events.ExpenseDeleted, ExpenseID: expenseID})
		return nil
	})
	if err != nil {
		return err
	}

	l.metrics.ExpenseOperation("delete")
	slog.Info("Expense deleted", "trip_id", tripID, "expense_id", expenseID, "stale_settlements", staled)
	return nil
}

// GetExpense retrieves one expense with its splits.
func (l *Ledger) GetExpense(ctx context.Context, tripID, expenseID string) (*models.Expense, error) {
	var expense *models.Expense
	_, err := l.store.ViewTrip(ctx, tripID, func(tx storage.TripTx) error {
		var err error
		expense, err = tx.GetExpense(ctx, expenseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// ListExpenses returns the trip's expenses, oldest first.
func (l *Ledger) ListExpenses(ctx context.Context, tripID string) ([]*models.Expense, error) {
	var expenses []*models.Expense
	_, err := l.store.ViewTrip(ctx, tripID, func(tx storage.TripTx) error {
		var err error
		expenses, err = tx.Expenses(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return expenses, nil
}
