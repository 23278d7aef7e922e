package calculator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/tripledger/internal/models"
)

var hundred = decimal.NewFromInt(100)

// CalculateSplit divides total among the members named by rule.
//
// Every member named by the rule must be in roster (the trip's active members).
// The returned splits are ordered by ascending member id and their owed
// amounts sum exactly to total. Wherever integer division leaves minor units
// over, they are handed out one at a time in a fixed order so that identical
// inputs always produce identical splits.
func CalculateSplit(total int64, rule models.SplitRule, roster []string) ([]models.ExpenseSplit, error) {
	if total <= 0 {
		return nil, models.NewValidationError("amount", "must be positive")
	}
	if rule == nil {
		return nil, models.NewValidationError("split_rule", "is required")
	}

	active := make(map[string]bool, len(roster))
	for _, id := range roster {
		active[id] = true
	}

	var (
		ids     []string
		amounts []int64
		err     error
	)
	switch r := rule.(type) {
	case models.EqualSplit:
		ids = r.MemberIDs()
		if err = checkMembers(ids, active); err != nil {
			return nil, err
		}
		amounts = splitEqual(total, len(ids))
	case models.PercentageSplit:
		ids = r.MemberIDs()
		if err = checkMembers(ids, active); err != nil {
			return nil, err
		}
		amounts, err = splitPercentage(total, ids, r.Percentages)
	case models.SharesSplit:
		ids = r.MemberIDs()
		if err = checkMembers(ids, active); err != nil {
			return nil, err
		}
		amounts, err = splitShares(total, ids, r.Shares)
	case models.ExactSplit:
		ids = r.MemberIDs()
		if err = checkMembers(ids, active); err != nil {
			return nil, err
		}
		amounts, err = splitExact(total, ids, r.Amounts)
	default:
		return nil, models.NewValidationError("split_rule", fmt.Sprintf("unsupported rule %T", rule))
	}
	if err != nil {
		return nil, err
	}

	splits := make([]models.ExpenseSplit, len(ids))
	for i, id := range ids {
		splits[i] = models.ExpenseSplit{MemberID: id, OwedAmount: amounts[i]}
	}
	return splits, nil
}

// checkMembers expects ids sorted.
func checkMembers(ids []string, active map[string]bool) error {
	if len(ids) == 0 {
		return models.NewValidationError("split_rule", "must name at least one member")
	}
	for i, id := range ids {
		if id == "" {
			return models.NewValidationError("split_rule", "member id is empty")
		}
		if i > 0 && ids[i-1] == id {
			return models.NewValidationError("split_rule", fmt.Sprintf("member %s appears more than once", id))
		}
		if !active[id] {
			return models.NewValidationError("split_rule", fmt.Sprintf("member %s is not an active member of the trip", id))
		}
	}
	return nil
}

func splitEqual(total int64, n int) []int64 {
	base := total / int64(n)
	remainder := total % int64(n)

	amounts := make([]int64, n)
	for i := range amounts {
		amounts[i] = base
		if int64(i) < remainder {
			amounts[i]++
		}
	}
	return amounts
}

func splitPercentage(total int64, ids []string, percentages map[string]decimal.Decimal) ([]int64, error) {
	sum := decimal.Zero
	weights := make([]decimal.Decimal, len(ids))
	for i, id := range ids {
		pct := percentages[id]
		if pct.IsNegative() {
			return nil, models.NewValidationError("split_rule", fmt.Sprintf("percentage for %s is negative", id))
		}
		weights[i] = pct
		sum = sum.Add(pct)
	}
	if !sum.Equal(hundred) {
		return nil, models.NewValidationError("split_rule", fmt.Sprintf("percentages sum to %s, want 100", sum.String()))
	}
	return apportion(total, weights, hundred)
}

// The weight total is summed as a decimal so large weights cannot wrap.
func splitShares(total int64, ids []string, shares map[string]int64) ([]int64, error) {
	sum := decimal.Zero
	weights := make([]decimal.Decimal, len(ids))
	for i, id := range ids {
		w := shares[id]
		if w <= 0 {
			return nil, models.NewValidationError("split_rule", fmt.Sprintf("shares for %s must be positive", id))
		}
		weights[i] = decimal.NewFromInt(w)
		sum = sum.Add(weights[i])
	}
	return apportion(total, weights, sum)
}

func splitExact(total int64, ids []string, exact map[string]int64) ([]int64, error) {
	var sum int64
	amounts := make([]int64, len(ids))
	for i, id := range ids {
		a := exact[id]
		if a < 0 {
			return nil, models.NewValidationError("split_rule", fmt.Sprintf("amount for %s is negative", id))
		}
		// sum never exceeds total, so total-sum cannot overflow.
		if a > total-sum {
			return nil, models.NewValidationError("split_rule", fmt.Sprintf("exact amounts exceed total %d at %s", total, id))
		}
		amounts[i] = a
		sum += a
	}
	if sum != total {
		return nil, models.NewValidationError("split_rule", fmt.Sprintf("exact amounts sum to %d, want %d", sum, total))
	}
	return amounts, nil
}

// apportion divides total in proportion to weights, where the weights sum to
// denominator. Each share is floored, then the leftover units go one each to
// the largest fractional remainders, ties broken by position (ascending id).
func apportion(total int64, weights []decimal.Decimal, denominator decimal.Decimal) ([]int64, error) {
	amounts := make([]int64, len(weights))
	remainders := make([]decimal.Decimal, len(weights))
	t := decimal.NewFromInt(total)

	var allocated int64
	for i, w := range weights {
		q, r := t.Mul(w).QuoRem(denominator, 0)
		amounts[i] = q.IntPart()
		remainders[i] = r
		allocated += amounts[i]
	}

	leftover := total - allocated
	if leftover < 0 || leftover > int64(len(weights)) {
		return nil, fmt.Errorf("apportion left %d units over for %d members", leftover, len(weights))
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	for k := int64(0); k < leftover; k++ {
		amounts[order[k]]++
	}
	return amounts, nil
}
