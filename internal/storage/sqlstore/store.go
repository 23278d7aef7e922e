// Package sqlstore implements storage.Store on database/sql. The SQLite and
// PostgreSQL packages open the connection, run their migrations and hand
// the *sql.DB to New together with a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/internal/storage"
)

// Ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	Name string

	// NumberedPlaceholders rewrites ? placeholders to $1, $2, ...
	NumberedPlaceholders bool

	// Isolation is used for write transactions.
	Isolation sql.IsolationLevel

	// ViewIsolation is used for read-only snapshots.
	ViewIsolation sql.IsolationLevel

	// IsConflict reports driver errors that mean a concurrent transaction
	// won, such as serialization failures. Optional.
	IsConflict func(err error) bool
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{
		Name:                 "postgres",
		NumberedPlaceholders: true,
		Isolation:            sql.LevelSerializable,
		ViewIsolation:        sql.LevelRepeatableRead,
	}
)

// Store implements storage.Store on a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open, migrated database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders for dialects that number them.
func (s *Store) rebind(query string) string {
	if !s.dialect.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateTrip persists a new trip to the database.
func (s *Store) CreateTrip(ctx context.Context, trip *models.Trip) error {
	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}
	if trip.CreatedAt == 0 {
		trip.CreatedAt = time.Now().Unix()
	}
	trip.Version = 0

	_, err := s.db.ExecContext(ctx,
		s.rebind("INSERT INTO trips (id, name, currency, version, created_at) VALUES (?, ?, ?, ?, ?)"),
		trip.ID, trip.Name, trip.Currency, trip.Version, trip.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

// GetTrip retrieves a trip by ID.
func (s *Store) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	return getTrip(ctx, s.db, s.rebind, tripID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTrip(ctx context.Context, q queryRower, rebind func(string) string, tripID string) (*models.Trip, error) {
	trip := &models.Trip{}
	err := q.QueryRowContext(ctx,
		rebind("SELECT id, name, currency, version, created_at FROM trips WHERE id = ?"),
		tripID,
	).Scan(&trip.ID, &trip.Name, &trip.Currency, &trip.Version, &trip.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("trip", tripID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return trip, nil
}

// UpdateTrip runs fn in a write transaction and bumps the trip version if
// fn changed anything.
func (s *Store) UpdateTrip(ctx context.Context, tripID string, fn func(tx storage.TripTx) error) (*models.Trip, error) {
	trip, err := s.updateTrip(ctx, tripID, fn)
	if err != nil && s.dialect.IsConflict != nil && s.dialect.IsConflict(err) {
		return nil, &models.ConflictError{Reason: fmt.Sprintf("trip %s was modified concurrently: %v", tripID, err)}
	}
	return trip, err
}

func (s *Store) updateTrip(ctx context.Context, tripID string, fn func(tx storage.TripTx) error) (*models.Trip, error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.dialect.Isolation})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	trip, err := getTrip(ctx, sqlTx, s.rebind, tripID)
	if err != nil {
		return nil, err
	}

	tx := &tripTx{tx: sqlTx, rebind: s.rebind, trip: trip}
	if err := fn(tx); err != nil {
		return nil, err
	}

	if !tx.dirty {
		return trip, nil
	}

	res, err := sqlTx.ExecContext(ctx,
		s.rebind("UPDATE trips SET version = version + 1 WHERE id = ? AND version = ?"),
		trip.ID, trip.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bump trip version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return nil, &models.ConflictError{Reason: fmt.Sprintf("trip %s was modified concurrently", trip.ID)}
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	committed := *trip
	committed.Version++
	return &committed, nil
}

// ViewTrip runs fn in a read-only transaction.
func (s *Store) ViewTrip(ctx context.Context, tripID string, fn func(tx storage.TripTx) error) (*models.Trip, error) {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.dialect.ViewIsolation, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	trip, err := getTrip(ctx, sqlTx, s.rebind, tripID)
	if err != nil {
		return nil, err
	}

	if err := fn(&tripTx{tx: sqlTx, rebind: s.rebind, trip: trip, readOnly: true}); err != nil {
		return nil, err
	}
	return trip, nil
}
