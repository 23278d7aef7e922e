package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/tripledger/internal/calculator"
	"github.com/mmynk/tripledger/internal/events"
	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/internal/storage"
)

// SettlementInput describes a transfer between two members.
type SettlementInput struct {
	PayerID string
	PayeeID string
	Amount  int64

	// ExpenseID optionally ties the transfer to one expense.
	ExpenseID string

	// BasisVersion is the trip version of the plan the transfer came from.
	// Zero means the trip's current version.
	BasisVersion int64

	// IdempotencyKey overrides the derived key. Two ad hoc payments with
	// identical fields need distinct keys to both be recorded.
	IdempotencyKey string

	Note      string
	CreatedBy string
}

// SettlementHistory partitions a trip's settlements by whether they are
// reflected in balances.
type SettlementHistory struct {
	Reflected []*models.Settlement
	Pending   []*models.Settlement
	Stale     []*models.Settlement
}

// IdempotencyKey derives the key identifying one logical settlement. The
// basis version only takes part when the caller supplied one.
func IdempotencyKey(tripID string, in SettlementInput) string {
	raw := fmt.Sprintf("%s|%s|%s|%d|%s", tripID, in.PayerID, in.PayeeID, in.Amount, in.ExpenseID)
	if in.BasisVersion > 0 {
		raw += fmt.Sprintf("|%d", in.BasisVersion)
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// sameSettlement reports whether existing records the transfer in describes.
func sameSettlement(existing *models.Settlement, in SettlementInput) bool {
	return existing.PayerID == in.PayerID &&
		existing.PayeeID == in.PayeeID &&
		existing.Amount == in.Amount &&
		existing.ExpenseID == in.ExpenseID
}

func splitSettlementKey(expenseID, memberID string) string {
	return "split:" + expenseID + ":" + memberID
}

// checkParties validates the members of a settlement against the roster.
// Removed members may still settle their history.
func checkParties(members []*models.Member, in SettlementInput) error {
	if in.Amount <= 0 {
		return models.NewValidationError("amount", "must be positive")
	}
	if in.PayerID == in.PayeeID {
		return models.NewValidationError("payee_id", "payer and payee must differ")
	}
	if findMember(members, in.PayerID) == nil {
		return models.NewValidationError("payer_id", fmt.Sprintf("member %s is not on the trip", in.PayerID))
	}
	if findMember(members, in.PayeeID) == nil {
		return models.NewValidationError("payee_id", fmt.Sprintf("member %s is not on the trip", in.PayeeID))
	}
	return nil
}

// checkOutstanding rejects a transfer larger than what the payer currently
// owes the payee, computed fresh inside the transaction.
func checkOutstanding(ctx context.Context, tx storage.TripTx, payerID, payeeID string, amount int64) error {
	sheet, err := computeSheet(ctx, tx)
	if err != nil {
		return err
	}
	available := calculator.Outstanding(sheet.Balances, payerID, payeeID)
	if amount > available {
		return &models.ConflictError{
			Reason:    fmt.Sprintf("settlement from %s to %s exceeds outstanding balance", payerID, payeeID),
			Requested: amount,
			Available: available,
		}
	}
	return nil
}

// write records a settlement in the given status, or returns the existing
// one if its idempotency key was already used. build produces the input
// inside the transaction.
func (l *Ledger) write(ctx context.Context, op, tripID string, status models.SettlementStatus, build func(tx storage.TripTx) (SettlementInput, error)) (*models.Settlement, error) {
	var (
		result  *models.Settlement
		created bool
	)
	_, err := l.update(ctx, op, tripID, func(tx storage.TripTx, emit func(events.LedgerEvent)) error {
		in, err := build(tx)
		if err != nil {
			return err
		}

		trip := tx.Trip()
		key := strings.TrimSpace(in.IdempotencyKey)
		if key == "" {
			key = IdempotencyKey(trip.ID, in)
		}
		if in.BasisVersion == 0 {
			in.BasisVersion = trip.Version
		}

		existing, err := tx.FindSettlementByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			if !sameSettlement(existing, in) {
				return &models.ConflictError{
					Reason: fmt.Sprintf("idempotency key %q already used by settlement %s with different details", key, existing.ID),
				}
			}
			result = existing
			return nil
		}

		members, err := tx.Members(ctx)
		if err != nil {
			return err
		}
		if err := checkParties(members, in); err != nil {
			return err
		}
		if in.ExpenseID != "" {
			if _, err := tx.GetExpense(ctx, in.ExpenseID); err != nil {
				return err
			}
		}
		if err := checkOutstanding(ctx, tx, in.PayerID, in.PayeeID, in.Amount); err != nil {
			return err
		}

		now := l.now().Unix()
		settlement := &models.Settlement{
			PayerID:        in.PayerID,
			PayeeID:        in.PayeeID,
			Amount:         in.Amount,
			Status:         status,
			ExpenseID:      in.ExpenseID,
			IdempotencyKey: key,
			BasisVersion:   in.BasisVersion,
			CreatedAt:      now,
			CreatedBy:      in.CreatedBy,
			Note:           in.Note,
		}
		if status == models.SettlementSettled {
			settlement.SettledAt = now
		}
		if err := tx.InsertSettlement(ctx, settlement); err != nil {
			return err
		}

		eventType := events.SettlementRecorded
		if status == models.SettlementProposed {
			eventType = events.SettlementProposed
		}
		emit(events.LedgerEvent{Type: eventType, SettlementID: settlement.ID, ExpenseID: settlement.ExpenseID, Amount: settlement.Amount})

		result, created = settlement, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		l.metrics.Settlement(string(status))
		slog.Info("Settlement recorded",
			"trip_id", tripID,
			"settlement_id", result.ID,
			"status", result.Status,
			"payer_id", result.PayerID,
			"payee_id", result.PayeeID,
			"amount", result.Amount,
		)
	} else {
		slog.Info("Settlement already recorded", "trip_id", tripID, "settlement_id", result.ID)
	}
	return result, nil
}

func fixed(in SettlementInput) func(storage.TripTx) (SettlementInput, error) {
	return func(storage.TripTx) (SettlementInput, error) { return in, nil }
}

// RecordSettlement records a transfer as already paid. It is reflected in
// balances immediately. Recording the same logical settlement again returns
// the first record.
func (l *Ledger) RecordSettlement(ctx context.Context, tripID string, in SettlementInput) (*models.Settlement, error) {
	return l.write(ctx, "record_settlement", tripID, models.SettlementSettled, fixed(in))
}

// ProposeSettlement records an intended transfer that does not affect
// balances until it is confirmed.
func (l *Ledger) ProposeSettlement(ctx context.Context, tripID string, in SettlementInput) (*models.Settlement, error) {
	return l.write(ctx, "propose_settlement", tripID, models.SettlementProposed, fixed(in))
}

// ConfirmSettlement moves a proposed settlement to settled. Confirming a
// settled settlement returns it unchanged; stale settlements cannot be
// confirmed.
func (l *Ledger) ConfirmSettlement(ctx context.Context, tripID, settlementID string) (*models.Settlement, error) {
	var result *models.Settlement
	_, err := l.update(ctx, "confirm_settlement", tripID, func(tx storage.TripTx, emit func(events.LedgerEvent)) error {
		settlement, err := tx.GetSettlement(ctx, settlementID)
		if err != nil {
			return err
		}
		switch settlement.Status {
		case models.SettlementSettled:
			result = settlement
			return nil
		case models.SettlementStale:
			return &models.ConflictError{Reason: fmt.Sprintf("settlement %s is stale", settlementID)}
		}

		if err := checkOutstanding(ctx, tx, settlement.PayerID, settlement.PayeeID, settlement.Amount); err != nil {
			return err
		}

		now := l.now().Unix()
		if err := tx.MarkSettled(ctx, settlement.ID, now); err != nil {
			return err
		}
		settlement.Status = models.SettlementSettled
		settlement.SettledAt = now
		emit(events.LedgerEvent{Type: events.SettlementConfirmed, SettlementID: settlement.ID, Amount: settlement.Amount})

		result = settlement
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Settlement confirmed", "trip_id", tripID, "settlement_id", result.ID)
	return result, nil
}

// SettleSplit marks one member's share of an expense as paid to the
// expense payer. It is recorded as a settled settlement with the expense
// as context, so it flows through the same balances and conflict checks as
// any other settlement.
func (l *Ledger) SettleSplit(ctx context.Context, tripID, expenseID, memberID, createdBy string) (*models.Settlement, error) {
	return l.write(ctx, "settle_split", tripID, models.SettlementSettled, func(tx storage.TripTx) (SettlementInput, error) {
		expense, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return SettlementInput{}, err
		}
		split, ok := expense.SplitFor(memberID)
		if !ok {
			return SettlementInput{}, models.NewNotFoundError("split", expenseID+"/"+memberID)
		}
		if memberID == expense.PayerID {
			return SettlementInput{}, models.NewValidationError("member_id", "the payer's own share needs no settlement")
		}
		if split.OwedAmount == 0 {
			return SettlementInput{}, models.NewValidationError("member_id", "nothing is owed on this split")
		}

		return SettlementInput{
			PayerID:        memberID,
			PayeeID:        expense.PayerID,
			Amount:         split.OwedAmount,
			ExpenseID:      expenseID,
			IdempotencyKey: splitSettlementKey(expenseID, memberID),
			Note:           "Settled share of " + expense.Description,
			CreatedBy:      createdBy,
		}, nil
	})
}

// ListSettlements returns the trip's settlement history.
func (l *Ledger) ListSettlements(ctx context.Context, tripID string) (*SettlementHistory, error) {
	history := &SettlementHistory{}
	_, err := l.store.ViewTrip(ctx, tripID, func(tx storage.TripTx) error {
		settlements, err := tx.Settlements(ctx)
		if err != nil {
			return err
		}
		for _, s := range settlements {
			switch s.Status {
			case models.SettlementSettled:
				history.Reflected = append(history.Reflected, s)
			case models.SettlementProposed:
				history.Pending = append(history.Pending, s)
			case models.SettlementStale:
				history.Stale = append(history.Stale, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}
