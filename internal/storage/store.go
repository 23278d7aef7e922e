// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/mmynk/tripledger/internal/models"
)

// Store defines the interface for trip ledger storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL)
// without changing the ledger or service layers.
//
// A trip is the unit of consistency: all reads and writes of a trip's roster,
// expenses and settlements go through a TripTx obtained from UpdateTrip or
// ViewTrip.
type Store interface {
	// CreateTrip persists a new trip at version 0.
	// The trip.ID and trip.CreatedAt fields will be populated by the store.
	CreateTrip(ctx context.Context, trip *models.Trip) error

	// GetTrip retrieves a trip by its ID.
	// Returns a *models.NotFoundError if the trip does not exist.
	GetTrip(ctx context.Context, tripID string) (*models.Trip, error)

	// UpdateTrip runs fn inside a serializable transaction scoped to the trip.
	// If fn wrote anything, the trip version is bumped with an optimistic
	// check against the version read at the start; a concurrent writer causes
	// a *models.ConflictError and nothing is committed. The returned trip
	// carries the committed version.
	UpdateTrip(ctx context.Context, tripID string, fn func(tx TripTx) error) (*models.Trip, error)

	// ViewTrip runs fn against a consistent snapshot of the trip. Nothing is written.
	ViewTrip(ctx context.Context, tripID string, fn func(tx TripTx) error) (*models.Trip, error)

	// Close releases any resources held by the store.
	Close() error
}

// TripTx exposes one trip's records within a transaction.
type TripTx interface {
	// Trip returns the trip as loaded at the start of the transaction.
	Trip() *models.Trip

	// Members lists the roster, including removed members, ordered by id.
	Members(ctx context.Context) ([]*models.Member, error)

	// InsertMember adds a member to the roster. JoinedAt is populated if unset.
	InsertMember(ctx context.Context, member *models.Member) error

	// TombstoneMember marks a member removed at the given Unix time.
	TombstoneMember(ctx context.Context, memberID string, removedAt int64) error

	// Expenses lists the trip's expenses with their splits, oldest first.
	Expenses(ctx context.Context) ([]*models.Expense, error)

	// GetExpense retrieves one expense with its splits.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// InsertExpense persists an expense and its splits atomically.
	// ID, CreatedAt and UpdatedAt are populated if unset.
	InsertExpense(ctx context.Context, expense *models.Expense) error

	// ReplaceExpense overwrites an expense and replaces its split set.
	ReplaceExpense(ctx context.Context, expense *models.Expense) error

	// DeleteExpense removes an expense and its splits.
	DeleteExpense(ctx context.Context, expenseID string) error

	// Settlements lists every settlement of the trip, oldest first.
	Settlements(ctx context.Context) ([]*models.Settlement, error)

	// GetSettlement retrieves a settlement by ID.
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)

	// FindSettlementByKey returns the settlement with the given idempotency
	// key, or nil if none exists.
	FindSettlementByKey(ctx context.Context, key string) (*models.Settlement, error)

	// InsertSettlement persists a new settlement. ID and CreatedAt are populated if unset.
	InsertSettlement(ctx context.Context, settlement *models.Settlement) error

	// MarkSettled moves a proposed settlement to settled.
	MarkSettled(ctx context.Context, settlementID string, settledAt int64) error

	// MarkStaleForExpense moves every proposed settlement tied to the expense
	// to stale and returns how many changed.
	MarkStaleForExpense(ctx context.Context, expenseID string) (int64, error)
}
