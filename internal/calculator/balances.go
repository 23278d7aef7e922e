package calculator

import (
	"fmt"
	"sort"

	"github.com/mmynk/tripledger/internal/models"
)

// AggregateBalances computes every member's net position in a trip.
//
// Algorithm:
//   - For each expense: payer contributed +amount, each split member owes their share
//   - For each settled settlement: the payer moves toward zero, the payee away from it
//   - net = paid - owed + settlements paid - settlements received
//
// Proposed and stale settlements are ignored. Members who were removed from
// the roster still appear. The result is ordered by member id.
//
// The sum of all nets must be zero and every expense's splits must add up to
// its amount; otherwise an InternalConsistencyError is returned.
func AggregateBalances(tripID string, members []*models.Member, expenses []*models.Expense, settlements []*models.Settlement) ([]models.MemberBalance, error) {
	balances := make(map[string]*models.MemberBalance, len(members))
	for _, m := range members {
		balances[m.ID] = &models.MemberBalance{MemberID: m.ID}
	}

	lookup := func(memberID string) (*models.MemberBalance, error) {
		b, ok := balances[memberID]
		if !ok {
			return nil, &models.InternalConsistencyError{
				TripID: tripID,
				Detail: fmt.Sprintf("member %s is not on the roster", memberID),
			}
		}
		return b, nil
	}

	for _, e := range expenses {
		if got := e.SplitTotal(); got != e.Amount {
			return nil, &models.InternalConsistencyError{
				TripID: tripID,
				Detail: fmt.Sprintf("expense %s splits sum to %d, amount is %d", e.ID, got, e.Amount),
			}
		}

		payer, err := lookup(e.PayerID)
		if err != nil {
			return nil, err
		}
		payer.TotalPaid += e.Amount

		for _, s := range e.Splits {
			b, err := lookup(s.MemberID)
			if err != nil {
				return nil, err
			}
			b.TotalOwed += s.OwedAmount
		}
	}

	for _, s := range settlements {
		if !s.Reflected() {
			continue
		}
		payer, err := lookup(s.PayerID)
		if err != nil {
			return nil, err
		}
		payee, err := lookup(s.PayeeID)
		if err != nil {
			return nil, err
		}
		payer.SettlementsPaid += s.Amount
		payee.SettlementsReceived += s.Amount
	}

	result := make([]models.MemberBalance, 0, len(balances))
	var sum int64
	for _, b := range balances {
		b.Net = b.TotalPaid - b.TotalOwed + b.SettlementsPaid - b.SettlementsReceived
		sum += b.Net
		result = append(result, *b)
	}
	if sum != 0 {
		return nil, &models.InternalConsistencyError{
			TripID: tripID,
			Detail: fmt.Sprintf("net balances sum to %d", sum),
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].MemberID < result[j].MemberID
	})
	return result, nil
}

// Outstanding returns how much payer can still settle toward payee:
// the smaller of payer's debt and payee's credit. Zero when either side
// has nothing outstanding.
func Outstanding(balances []models.MemberBalance, payerID, payeeID string) int64 {
	var debt, credit int64
	for _, b := range balances {
		switch b.MemberID {
		case payerID:
			debt = -b.Net
		case payeeID:
			credit = b.Net
		}
	}
	if debt <= 0 || credit <= 0 {
		return 0
	}
	return min(debt, credit)
}
