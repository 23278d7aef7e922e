// Package cache holds read-through caches for computed balance sheets.
//
// Balance sheets are a projection over the ledger, so a cache entry is only
// valid for the trip version it was computed from. Entries are never a
// source of truth; any miss or error falls back to recomputation.
package cache

import (
	"context"

	"github.com/mmynk/tripledger/internal/models"
)

// BalanceCache stores the latest balance sheet per trip.
type BalanceCache interface {
	// Get returns the cached sheet for tripID if it was computed at version.
	Get(ctx context.Context, tripID string, version int64) (*models.BalanceSheet, bool, error)

	// Set stores sheet as the latest for its trip.
	Set(ctx context.Context, sheet *models.BalanceSheet) error

	// Invalidate drops whatever is cached for tripID.
	Invalidate(ctx context.Context, tripID string) error
}

// Nop is a BalanceCache that never hits.
type Nop struct{}

var _ BalanceCache = Nop{}

func (Nop) Get(context.Context, string, int64) (*models.BalanceSheet, bool, error) {
	return nil, false, nil
}

func (Nop) Set(context.Context, *models.BalanceSheet) error { return nil }

func (Nop) Invalidate(context.Context, string) error { return nil }
