package models

// Trip groups the travelers and expenses that settle against each other.
type Trip struct {
	// ID is the unique identifier for the trip (UUID format).
	ID string

	// Name is the display name of the trip (e.g., "Lisbon 2026").
	Name string

	// Currency is the ISO 4217 code every expense on the trip uses.
	Currency string

	// Version increases by one on every committed mutation of the trip's ledger.
	// Balance caches and settlement plans are keyed on it.
	Version int64

	// CreatedAt is the Unix timestamp when the trip was created.
	CreatedAt int64
}

// Member is a traveler on a trip roster.
//
// Members are never hard-deleted. Removing a member sets RemovedAt so that
// historical expenses and balances still resolve, while new split rules and
// new expenses can no longer reference them.
type Member struct {
	TripID      string
	ID          string
	DisplayName string
	JoinedAt    int64

	// RemovedAt is the Unix timestamp of removal, or 0 while active.
	RemovedAt int64
}

// Active reports whether the member can be referenced by new expenses.
func (m *Member) Active() bool {
	return m.RemovedAt == 0
}

// ActiveMemberIDs returns the ids of members that have not been removed.
func ActiveMemberIDs(members []*Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.Active() {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
