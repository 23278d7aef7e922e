// Package ledger is the trip settlement engine. It owns the transaction
// boundary for every mutating operation on a trip: expenses, roster changes
// and settlements are written under a per-trip lock inside a single store
// transaction, and every read is computed from a consistent snapshot.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmynk/tripledger/internal/cache"
	"github.com/mmynk/tripledger/internal/events"
	"github.com/mmynk/tripledger/internal/metrics"
	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/internal/storage"
)

// Ledger coordinates the store, the calculators and the optional cache,
// event publisher and metrics.
type Ledger struct {
	store     storage.Store
	cache     cache.BalanceCache
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time

	mapMu sync.Mutex
	muMap map[string]*sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCache serves balance sheets through c.
func WithCache(c cache.BalanceCache) Option {
	return func(l *Ledger) { l.cache = c }
}

// WithPublisher sends committed changes to p.
func WithPublisher(p events.Publisher) Option {
	return func(l *Ledger) { l.publisher = p }
}

// WithMetrics records operation counts in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger on store.
func New(store storage.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		cache:     cache.Nop{},
		publisher: events.Nop{},
		now:       time.Now,
		muMap:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// getTripLock returns the mutex serializing writers of one trip.
// Writers to different trips never share a lock.
func (l *Ledger) getTripLock(tripID string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[tripID]; !exists {
		l.muMap[tripID] = &sync.Mutex{}
	}
	return l.muMap[tripID]
}

// update runs fn as one trip transaction under the trip lock, then
// invalidates the cache and publishes the events fn collected.
func (l *Ledger) update(ctx context.Context, op, tripID string, fn func(tx storage.TripTx, emit func(events.LedgerEvent)) error) (*models.Trip, error) {
	mu := l.getTripLock(tripID)
	mu.Lock()
	defer mu.Unlock()

	var pending []events.LedgerEvent
	emit := func(e events.LedgerEvent) { pending = append(pending, e) }

	trip, err := l.store.UpdateTrip(ctx, tripID, func(tx storage.TripTx) error {
		pending = pending[:0]
		return fn(tx, emit)
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			l.metrics.Conflict(op)
		}
		logIfInconsistent(tripID, err)
		return nil, err
	}

	if len(pending) == 0 {
		return trip, nil
	}

	if err := l.cache.Invalidate(ctx, tripID); err != nil {
		slog.Warn("Failed to invalidate balance cache", "trip_id", tripID, "error", err)
	}
	for _, e := range pending {
		e.TripID = trip.ID
		e.TripVersion = trip.Version
		if e.Currency == "" && e.Amount != 0 {
			e.Currency = trip.Currency
		}
		e.OccurredAt = l.now().UTC()
		if err := l.publisher.Publish(ctx, e); err != nil {
			slog.Warn("Failed to publish ledger event", "type", e.Type, "trip_id", tripID, "error", err)
		}
	}
	return trip, nil
}

// CreateTrip starts a new trip ledger in currency.
func (l *Ledger) CreateTrip(ctx context.Context, name, currency string) (*models.Trip, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.NewValidationError("name", "is required")
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, models.NewValidationError("currency", "must be a three letter ISO 4217 code")
	}

	trip := &models.Trip{Name: name, Currency: currency, CreatedAt: l.now().Unix()}
	if err := l.store.CreateTrip(ctx, trip); err != nil {
		return nil, err
	}

	if err := l.publisher.Publish(ctx, events.LedgerEvent{
		Type:       events.TripCreated,
		TripID:     trip.ID,
		Currency:   trip.Currency,
		OccurredAt: l.now().UTC(),
	}); err != nil {
		slog.Warn("Failed to publish ledger event", "type", events.TripCreated, "trip_id", trip.ID, "error", err)
	}
	return trip, nil
}

// GetTrip retrieves a trip.
func (l *Ledger) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	return l.store.GetTrip(ctx, tripID)
}

// AddMember puts a new member on the roster. Member ids are unique per
// trip and can never be reused, even after removal.
func (l *Ledger) AddMember(ctx context.Context, tripID, memberID, displayName string) (*models.Member, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, models.NewValidationError("member_id", "is required")
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = memberID
	}

	member := &models.Member{ID: memberID, DisplayName: displayName, JoinedAt: l.now().Unix()}
	_, err := l.update(ctx, "add_member", tripID, func(tx storage.TripTx, emit func(events.LedgerEvent)) error {
		members, err := tx.Members(ctx)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.ID == memberID {
				return models.NewValidationError("member_id", "member "+memberID+" is already on the trip")
			}
		}
		if err := tx.InsertMember(ctx, member); err != nil {
			return err
		}
		emit(events.LedgerEvent{Type: events.MemberAdded, MemberID: memberID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// RemoveMember tombstones a member. Their history stays in balances but
// they can no longer be referenced by new or edited expenses.
func (l *Ledger) RemoveMember(ctx context.Context, tripID, memberID string) error {
	_, err := l.update(ctx, "remove_member", tripID, func(tx storage.TripTx, emit func(events.LedgerEvent)) error {
		if err := tx.TombstoneMember(ctx, memberID, l.now().Unix()); err != nil {
			return err
		}
		emit(events.LedgerEvent{Type: events.MemberRemoved, MemberID: memberID})
		return nil
	})
	return err
}

// ListMembers returns the full roster, removed members included.
func (l *Ledger) ListMembers(ctx context.Context, tripID string) ([]*models.Member, error) {
	var members []*models.Member
	_, err := l.store.ViewTrip(ctx, tripID, func(tx storage.TripTx) error {
		var err error
		members, err = tx.Members(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// logIfInconsistent reports broken ledger invariants at error level.
func logIfInconsistent(tripID string, err error) {
	var ice *models.InternalConsistencyError
	if errors.As(err, &ice) {
		slog.Error("Ledger invariant violated", "trip_id", tripID, "detail", ice.Detail)
	}
}

func findMember(members []*models.Member, id string) *models.Member {
	for _, m := range members {
		if m.ID == id {
			return m
		}
	}
	return nil
}
