package models

// MemberBalance is a member's position within one trip.
type MemberBalance struct {
	MemberID string

	// TotalPaid is the sum of expenses this member paid for.
	TotalPaid int64

	// TotalOwed is the sum of this member's splits.
	TotalOwed int64

	// SettlementsPaid is the sum of settled settlements this member paid.
	SettlementsPaid int64

	// SettlementsReceived is the sum of settled settlements this member received.
	SettlementsReceived int64

	// Net is positive when the member is owed money and negative when they owe.
	Net int64
}

// Transfer is one payment suggested by the settlement planner.
type Transfer struct {
	From   string // member who owes
	To     string // member who is owed
	Amount int64
}

// BalanceSheet is the computed state of a trip at one version.
type BalanceSheet struct {
	TripID   string
	Currency string

	// Version is the trip version the sheet was computed from.
	Version int64

	// Balances holds one entry per member, including removed members,
	// ordered by member id.
	Balances []MemberBalance

	ExpenseCount  int
	TotalExpenses int64
}

// Net returns the net balance of memberID, or 0 if absent.
func (s *BalanceSheet) Net(memberID string) int64 {
	for _, b := range s.Balances {
		if b.MemberID == memberID {
			return b.Net
		}
	}
	return 0
}
