package calculator

import "github.com/mmynk/tripledger/internal/models"

// PlanSettlements converts net balances into payer to payee transfers.
//
// Greedy netting: repeatedly match the largest creditor with the largest
// debtor (ties broken by ascending member id), transfer the smaller of the
// two amounts, and drop whoever reaches zero. Applying every transfer zeroes
// every balance, and N members with a nonzero balance need at most N-1
// transfers. The plan is advisory; nothing is recorded.
func PlanSettlements(balances []models.MemberBalance) []models.Transfer {
	type party struct {
		id     string
		amount int64
	}

	var creditors, debtors []*party
	for _, b := range balances {
		switch {
		case b.Net > 0:
			creditors = append(creditors, &party{id: b.MemberID, amount: b.Net})
		case b.Net < 0:
			debtors = append(debtors, &party{id: b.MemberID, amount: -b.Net})
		}
	}

	largest := func(parties []*party) int {
		best := -1
		for i, p := range parties {
			if p.amount == 0 {
				continue
			}
			if best < 0 || p.amount > parties[best].amount ||
				(p.amount == parties[best].amount && p.id < parties[best].id) {
				best = i
			}
		}
		return best
	}

	var transfers []models.Transfer
	for {
		ci, di := largest(creditors), largest(debtors)
		if ci < 0 || di < 0 {
			break
		}
		c, d := creditors[ci], debtors[di]
		amount := min(c.amount, d.amount)
		transfers = append(transfers, models.Transfer{From: d.id, To: c.id, Amount: amount})
		c.amount -= amount
		d.amount -= amount
	}
	return transfers
}
