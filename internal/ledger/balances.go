package ledger

import (
	"context"
	"log/slog"

	"github.com/mmynk/tripledger/internal/calculator"
	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/internal/storage"
)

// SettlementPlan is the advisory list of transfers that zeroes every
// balance as of BasisVersion.
type SettlementPlan struct {
	TripID       string
	Currency     string
	BasisVersion int64
	Transfers    []models.Transfer

	// Summary holds one display line per transfer, in the same order.
	Summary []string
}

// computeSheet aggregates balances inside an open trip transaction.
func computeSheet(ctx context.Context, tx storage.TripTx) (*models.BalanceSheet, error) {
	trip := tx.Trip()
	members, err := tx.Members(ctx)
	if err != nil {
		return nil, err
	}
	expenses, err := tx.Expenses(ctx)
	if err != nil {
		return nil, err
	}
	settlements, err := tx.Settlements(ctx)
	if err != nil {
		return nil, err
	}

	balances, err := calculator.AggregateBalances(trip.ID, members, expenses, settlements)
	if err != nil {
		return nil, err
	}

	sheet := &models.BalanceSheet{
		TripID:       trip.ID,
		Currency:     trip.Currency,
		Version:      trip.Version,
		Balances:     balances,
		ExpenseCount: len(expenses),
	}
	for _, e := range expenses {
		sheet.TotalExpenses += e.Amount
	}
	return sheet, nil
}

// Balances returns every member's net balance. Sheets are served from the
// cache when one exists for the trip's current version.
func (l *Ledger) Balances(ctx context.Context, tripID string) (*models.BalanceSheet, error) {
	trip, err := l.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}

	cached, ok, err := l.cache.Get(ctx, tripID, trip.Version)
	switch {
	case err != nil:
		l.metrics.CacheLookup("error")
		slog.Warn("Balance cache lookup failed", "trip_id", tripID, "error", err)
	case ok:
		l.metrics.CacheLookup("hit")
		return cached, nil
	default:
		l.metrics.CacheLookup("miss")
	}

	var sheet *models.BalanceSheet
	_, err = l.store.ViewTrip(ctx, tripID, func(tx storage.TripTx) error {
		var err error
		sheet, err = computeSheet(ctx, tx)
		return err
	})
	if err != nil {
		logIfInconsistent(tripID, err)
		return nil, err
	}

	if err := l.cache.Set(ctx, sheet); err != nil {
		slog.Warn("Failed to cache balances", "trip_id", tripID, "error", err)
	}
	return sheet, nil
}

// PlanSettlements computes a fresh plan from current balances. Nothing is
// recorded; callers pass BasisVersion back when recording a transfer.
func (l *Ledger) PlanSettlements(ctx context.Context, tripID string) (*SettlementPlan, error) {
	sheet, err := l.Balances(ctx, tripID)
	if err != nil {
		return nil, err
	}

	members, err := l.ListMembers(ctx, tripID)
	if err != nil {
		return nil, err
	}

	transfers := calculator.PlanSettlements(sheet.Balances)
	l.metrics.PlannedTransfers(len(transfers))

	return &SettlementPlan{
		TripID:       sheet.TripID,
		Currency:     sheet.Currency,
		BasisVersion: sheet.Version,
		Transfers:    transfers,
		Summary:      describeTransfers(transfers, members, sheet.Currency),
	}, nil
}
