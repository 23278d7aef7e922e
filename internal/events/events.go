// Package events publishes ledger changes to downstream consumers after
// they have been committed. Publishing is best effort and never blocks or
// fails a ledger operation.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Type names a ledger change.
type Type string

const (
	TripCreated         Type = "trip.created"
	MemberAdded         Type = "member.added"
	MemberRemoved       Type = "member.removed"
	ExpenseCreated      Type = "expense.created"
	ExpenseUpdated      Type = "expense.updated"
	ExpenseDeleted      Type = "expense.deleted"
	SettlementProposed  Type = "settlement.proposed"
	SettlementRecorded  Type = "settlement.recorded"
	SettlementConfirmed Type = "settlement.confirmed"
)

// LedgerEvent describes one committed change to a trip.
type LedgerEvent struct {
	Type         Type      `json:"type"`
	TripID       string    `json:"trip_id"`
	TripVersion  int64     `json:"trip_version"`
	MemberID     string    `json:"member_id,omitempty"`
	ExpenseID    string    `json:"expense_id,omitempty"`
	SettlementID string    `json:"settlement_id,omitempty"`
	Amount       int64     `json:"amount,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Publisher delivers ledger events.
type Publisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, LedgerEvent) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []LedgerEvent
}

func (r *Recorder) Publish(_ context.Context, event LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []LedgerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LedgerEvent(nil), r.events...)
}

// Dispatcher decouples callers from a slow Publisher with a bounded queue
// drained by one background goroutine. When the queue is full the event is
// dropped and a warning is logged.
type Dispatcher struct {
	next    Publisher
	timeout time.Duration
	queue   chan LedgerEvent
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ Publisher = (*Dispatcher)(nil)

// NewDispatcher starts the background sender. Each delivery to next gets
// its own timeout.
func NewDispatcher(next Publisher, buffer int, timeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		next:    next,
		timeout: timeout,
		queue:   make(chan LedgerEvent, buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues the event without waiting for delivery. Events
// published after Close are dropped.
func (d *Dispatcher) Publish(_ context.Context, event LedgerEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		slog.Warn("Event dispatcher closed, dropping event",
			"type", event.Type,
			"trip_id", event.TripID,
		)
		return nil
	}
	select {
	case d.queue <- event:
	default:
		slog.Warn("Event queue full, dropping event",
			"type", event.Type,
			"trip_id", event.TripID,
			"trip_version", event.TripVersion,
		)
	}
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Publish(ctx, event); err != nil {
			slog.Error("Failed to publish event",
				"type", event.Type,
				"trip_id", event.TripID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}
