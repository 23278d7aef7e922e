package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/internal/storage"
)

var _ storage.TripTx = (*tripTx)(nil)

var errReadOnly = errors.New("write attempted in a read-only trip view")

// tripTx implements storage.TripTx on a *sql.Tx.
type tripTx struct {
	tx       *sql.Tx
	rebind   func(string) string
	trip     *models.Trip
	readOnly bool
	dirty    bool
}

func (t *tripTx) Trip() *models.Trip {
	return t.trip
}

func (t *tripTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.readOnly {
		return nil, errReadOnly
	}
	t.dirty = true
	return t.tx.ExecContext(ctx, t.rebind(query), args...)
}

// Members lists the roster ordered by member id.
func (t *tripTx) Members(ctx context.Context) ([]*models.Member, error) {
	rows, err := t.tx.QueryContext(ctx,
		t.rebind(`SELECT trip_id, id, display_name, joined_at, removed_at
		 FROM members WHERE trip_id = ? ORDER BY id`),
		t.trip.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m := &models.Member{}
		if err := rows.Scan(&m.TripID, &m.ID, &m.DisplayName, &m.JoinedAt, &m.RemovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

// InsertMember adds a member to the trip roster.
func (t *tripTx) InsertMember(ctx context.Context, member *models.Member) error {
	member.TripID = t.trip.ID
	if member.JoinedAt == 0 {
		member.JoinedAt = time.Now().Unix()
	}

	_, err := t.exec(ctx,
		`INSERT INTO members (trip_id, id, display_name, joined_at, removed_at) VALUES (?, ?, ?, ?, ?)`,
		member.TripID, member.ID, member.DisplayName, member.JoinedAt, member.RemovedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// TombstoneMember marks a member removed. Removing twice keeps the first timestamp.
func (t *tripTx) TombstoneMember(ctx context.Context, memberID string, removedAt int64) error {
	res, err := t.exec(ctx,
		`UPDATE members SET removed_at = ? WHERE trip_id = ? AND id = ? AND removed_at = 0`,
		removedAt, t.trip.ID, memberID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := t.tx.QueryRowContext(ctx,
			t.rebind("SELECT 1 FROM members WHERE trip_id = ? AND id = ?"),
			t.trip.ID, memberID,
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewNotFoundError("member", memberID)
		}
		if err != nil {
			return fmt.Errorf("failed to check member existence: %w", err)
		}
	}
	return nil
}
