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

const settlementColumns = `id, trip_id, payer_id, payee_id, amount, status, expense_id, idempotency_key,
	basis_version, created_at, settled_at, created_by, note`

func scanSettlement(row scanner) (*models.Settlement, error) {
	settlement := &models.Settlement{}
	var status string
	var expenseID, note sql.NullString

	if err := row.Scan(&settlement.ID, &settlement.TripID, &settlement.PayerID, &settlement.PayeeID,
		&settlement.Amount, &status, &expenseID, &settlement.IdempotencyKey, &settlement.BasisVersion,
		&settlement.CreatedAt, &settlement.SettledAt, &settlement.CreatedBy, &note); err != nil {
		return nil, err
	}

	settlement.Status = models.SettlementStatus(status)
	if expenseID.Valid {
		settlement.ExpenseID = expenseID.String
	}
	if note.Valid {
		settlement.Note = note.String
	}
	return settlement, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Settlements lists every settlement of the trip.
func (t *tripTx) Settlements(ctx context.Context) ([]*models.Settlement, error) {
	rows, err := t.tx.QueryContext(ctx,
		t.rebind("SELECT "+settlementColumns+" FROM settlements WHERE trip_id = ? ORDER BY created_at, id"),
		t.trip.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements by trip: %w", err)
	}
	defer rows.Close()

	var settlements []*models.Settlement
	for rows.Next() {
		settlement, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		settlements = append(settlements, settlement)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlements: %w", err)
	}
	return settlements, nil
}

// GetSettlement retrieves a settlement of the trip by ID.
func (t *tripTx) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	settlement, err := scanSettlement(t.tx.QueryRowContext(ctx,
		t.rebind("SELECT "+settlementColumns+" FROM settlements WHERE id = ? AND trip_id = ?"),
		settlementID, t.trip.ID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("settlement", settlementID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return settlement, nil
}

// FindSettlementByKey returns nil, nil when no settlement carries the key.
func (t *tripTx) FindSettlementByKey(ctx context.Context, key string) (*models.Settlement, error) {
	settlement, err := scanSettlement(t.tx.QueryRowContext(ctx,
		t.rebind("SELECT "+settlementColumns+" FROM settlements WHERE trip_id = ? AND idempotency_key = ?"),
		t.trip.ID, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find settlement: %w", err)
	}
	return settlement, nil
}

// InsertSettlement persists a new settlement to the database.
func (t *tripTx) InsertSettlement(ctx context.Context, settlement *models.Settlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = time.Now().Unix()
	}
	settlement.TripID = t.trip.ID

	_, err := t.exec(ctx,
		`INSERT INTO settlements (`+settlementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		settlement.ID, settlement.TripID, settlement.PayerID, settlement.PayeeID, settlement.Amount,
		string(settlement.Status), nullable(settlement.ExpenseID), settlement.IdempotencyKey,
		settlement.BasisVersion, settlement.CreatedAt, settlement.SettledAt, settlement.CreatedBy,
		nullable(settlement.Note),
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// MarkSettled transitions a proposed settlement to settled.
func (t *tripTx) MarkSettled(ctx context.Context, settlementID string, settledAt int64) error {
	res, err := t.exec(ctx,
		"UPDATE settlements SET status = ?, settled_at = ? WHERE id = ? AND trip_id = ? AND status = ?",
		string(models.SettlementSettled), settledAt, settlementID, t.trip.ID, string(models.SettlementProposed),
	)
	if err != nil {
		return fmt.Errorf("failed to mark settlement settled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return &models.ConflictError{Reason: fmt.Sprintf("settlement %s is not proposed", settlementID)}
	}
	return nil
}

// MarkStaleForExpense retires proposed settlements computed against a deleted expense.
func (t *tripTx) MarkStaleForExpense(ctx context.Context, expenseID string) (int64, error) {
	res, err := t.exec(ctx,
		"UPDATE settlements SET status = ? WHERE trip_id = ? AND expense_id = ? AND status = ?",
		string(models.SettlementStale), t.trip.ID, expenseID, string(models.SettlementProposed),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark settlements stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
