package models

import "fmt"

// Category classifies an expense for reporting.
type Category string

const (
	CategoryFood      Category = "food"
	CategoryTransport Category = "transport"
	CategoryLodging   Category = "lodging"
	CategoryActivity  Category = "activity"
	CategoryShopping  Category = "shopping"
	CategoryOther     Category = "other"
)

// ParseCategory validates a category name. An empty name maps to CategoryOther.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case "":
		return CategoryOther, nil
	case CategoryFood, CategoryTransport, CategoryLodging, CategoryActivity, CategoryShopping, CategoryOther:
		return c, nil
	default:
		return "", NewValidationError("category", fmt.Sprintf("unknown category %q", s))
	}
}

// Expense is a single payment made by one member on behalf of several.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	TripID string

	// PayerID is the member who paid the full Amount.
	PayerID string

	Description string

	// Amount is the total in minor units of Currency. Always positive.
	Amount int64

	// Currency must equal the trip currency.
	Currency string

	Category Category
	Notes    string

	// SpentAt is the Unix timestamp of the purchase, as reported by the caller.
	SpentAt int64

	// Rule decides how Amount is divided. Exactly one rule per expense.
	Rule SplitRule

	// Splits is computed from Rule and always sums to Amount.
	Splits []ExpenseSplit

	CreatedAt int64
	UpdatedAt int64
}

// ExpenseSplit is one member's share of an expense.
type ExpenseSplit struct {
	ExpenseID  string
	MemberID   string
	OwedAmount int64

	// Settled is derived from the settlement ledger: true once a settled
	// settlement for this expense and member exists.
	Settled bool
}

// SplitTotal returns the sum of the owed amounts of the expense's splits.
func (e *Expense) SplitTotal() int64 {
	var sum int64
	for _, s := range e.Splits {
		sum += s.OwedAmount
	}
	return sum
}

// SplitFor returns the split for memberID, if the member shares the expense.
func (e *Expense) SplitFor(memberID string) (ExpenseSplit, bool) {
	for _, s := range e.Splits {
		if s.MemberID == memberID {
			return s, true
		}
	}
	return ExpenseSplit{}, false
}
