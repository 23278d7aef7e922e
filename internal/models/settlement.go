package models

// SettlementStatus is the lifecycle state of a settlement.
type SettlementStatus string

const (
	// SettlementProposed is recorded but not yet reflected in balances.
	SettlementProposed SettlementStatus = "proposed"
	// SettlementSettled is terminal; money moved and balances reflect it.
	SettlementSettled SettlementStatus = "settled"
	// SettlementStale is terminal; the expense it was computed against was deleted.
	SettlementStale SettlementStatus = "stale"
)

// Settlement represents a payment between trip members to clear debts.
// Once settled or stale it is never modified; corrections are new settlements.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	TripID string

	// PayerID is the member who paid (debtor settling up).
	PayerID string

	// PayeeID is the member who received payment (creditor being paid).
	PayeeID string

	// Amount is the payment amount in minor units. Always positive.
	Amount int64

	Status SettlementStatus

	// ExpenseID optionally ties the settlement to a single expense split.
	ExpenseID string

	// IdempotencyKey identifies the logical settlement. Recording the same
	// key twice returns the first record.
	IdempotencyKey string

	// BasisVersion is the trip version the settlement was computed against.
	BasisVersion int64

	// CreatedAt is the Unix timestamp when the settlement was recorded.
	CreatedAt int64

	// SettledAt is the Unix timestamp of the transition to settled, or 0.
	SettledAt int64

	// CreatedBy is the caller identity that recorded this settlement.
	CreatedBy string

	// Note is an optional description for the settlement.
	Note string
}

// Reflected reports whether the settlement counts toward balances.
func (s *Settlement) Reflected() bool {
	return s.Status == SettlementSettled
}
