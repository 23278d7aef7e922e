package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/tripledger/internal/ledger"
	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/pkg/api"
)

func tripToAPI(t *models.Trip) *api.Trip {
	return &api.Trip{
		ID:        t.ID,
		Name:      t.Name,
		Currency:  t.Currency,
		Version:   t.Version,
		CreatedAt: t.CreatedAt,
	}
}

func membersToAPI(members []*models.Member) []*api.Member {
	out := make([]*api.Member, len(members))
	for i, m := range members {
		out[i] = &api.Member{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			JoinedAt:    m.JoinedAt,
			RemovedAt:   m.RemovedAt,
			Active:      m.Active(),
		}
	}
	return out
}

// ruleFromAPI converts a wire split rule. Percentages are parsed exactly.
func ruleFromAPI(r *api.SplitRule) (models.SplitRule, error) {
	if r == nil {
		return nil, models.NewValidationError("rule", "is required")
	}
	switch models.SplitKind(r.Kind) {
	case models.SplitEqual:
		return models.EqualSplit{Members: r.Members}, nil
	case models.SplitPercentage:
		pcts := make(map[string]decimal.Decimal, len(r.Percentages))
		for id, s := range r.Percentages {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, models.NewValidationError("rule", fmt.Sprintf("percentage for %s is not a number: %q", id, s))
			}
			pcts[id] = d
		}
		return models.PercentageSplit{Percentages: pcts}, nil
	case models.SplitShares:
		return models.SharesSplit{Shares: r.Shares}, nil
	case models.SplitExact:
		return models.ExactSplit{Amounts: r.Amounts}, nil
	default:
		return nil, models.NewValidationError("rule", fmt.Sprintf("unknown split kind %q", r.Kind))
	}
}

func ruleToAPI(rule models.SplitRule) *api.SplitRule {
	switch r := rule.(type) {
	case models.EqualSplit:
		return &api.SplitRule{Kind: string(r.Kind()), Members: r.MemberIDs()}
	case models.PercentageSplit:
		pcts := make(map[string]string, len(r.Percentages))
		for id, d := range r.Percentages {
			pcts[id] = d.String()
		}
		return &api.SplitRule{Kind: string(r.Kind()), Percentages: pcts}
	case models.SharesSplit:
		return &api.SplitRule{Kind: string(r.Kind()), Shares: r.Shares}
	case models.ExactSplit:
		return &api.SplitRule{Kind: string(r.Kind()), Amounts: r.Amounts}
	default:
		return nil
	}
}

func expenseInput(f api.ExpenseFields) (ledger.ExpenseInput, error) {
	rule, err := ruleFromAPI(f.Rule)
	if err != nil {
		return ledger.ExpenseInput{}, err
	}
	return ledger.ExpenseInput{
		PayerID:     f.PayerID,
		Description: f.Description,
		Amount:      f.Amount,
		Currency:    f.Currency,
		Category:    models.Category(f.Category),
		Notes:       f.Notes,
		SpentAt:     f.SpentAt,
		Rule:        rule,
	}, nil
}

func expenseToAPI(e *models.Expense) *api.Expense {
	splits := make([]*api.Split, len(e.Splits))
	for i, s := range e.Splits {
		splits[i] = &api.Split{MemberID: s.MemberID, OwedAmount: s.OwedAmount, Settled: s.Settled}
	}
	return &api.Expense{
		ID:          e.ID,
		TripID:      e.TripID,
		PayerID:     e.PayerID,
		Description: e.Description,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Category:    string(e.Category),
		Notes:       e.Notes,
		SpentAt:     e.SpentAt,
		Rule:        ruleToAPI(e.Rule),
		Splits:      splits,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func settlementInput(f api.SettlementFields, createdBy string) ledger.SettlementInput {
	return ledger.SettlementInput{
		PayerID:        f.PayerID,
		PayeeID:        f.PayeeID,
		Amount:         f.Amount,
		ExpenseID:      f.ExpenseID,
		BasisVersion:   f.BasisVersion,
		IdempotencyKey: f.IdempotencyKey,
		Note:           f.Note,
		CreatedBy:      createdBy,
	}
}

func settlementToAPI(s *models.Settlement, currency string) *api.Settlement {
	return &api.Settlement{
		ID:             s.ID,
		TripID:         s.TripID,
		PayerID:        s.PayerID,
		PayeeID:        s.PayeeID,
		Amount:         s.Amount,
		Currency:       currency,
		Status:         string(s.Status),
		ExpenseID:      s.ExpenseID,
		IdempotencyKey: s.IdempotencyKey,
		BasisVersion:   s.BasisVersion,
		CreatedAt:      s.CreatedAt,
		SettledAt:      s.SettledAt,
		CreatedBy:      s.CreatedBy,
		Note:           s.Note,
	}
}

func settlementsToAPI(settlements []*models.Settlement, currency string) []*api.Settlement {
	out := make([]*api.Settlement, len(settlements))
	for i, s := range settlements {
		out[i] = settlementToAPI(s, currency)
	}
	return out
}

// BalancesToAPI renders a balance sheet for the wire. The REST routes
// share it with the RPC handler.
func BalancesToAPI(sheet *models.BalanceSheet) *api.GetBalancesResponse {
	resp := &api.GetBalancesResponse{
		TripID:        sheet.TripID,
		Currency:      sheet.Currency,
		Version:       sheet.Version,
		Net:           make(map[string]int64, len(sheet.Balances)),
		Balances:      make([]*api.MemberBalance, len(sheet.Balances)),
		ExpenseCount:  sheet.ExpenseCount,
		TotalExpenses: sheet.TotalExpenses,
	}
	for i, b := range sheet.Balances {
		resp.Net[b.MemberID] = b.Net
		resp.Balances[i] = &api.MemberBalance{
			MemberID:            b.MemberID,
			TotalPaid:           b.TotalPaid,
			TotalOwed:           b.TotalOwed,
			SettlementsPaid:     b.SettlementsPaid,
			SettlementsReceived: b.SettlementsReceived,
			Net:                 b.Net,
		}
	}
	return resp
}

// PlanToAPI renders a settlement plan for the wire.
func PlanToAPI(plan *ledger.SettlementPlan) *api.GetSettlementPlanResponse {
	resp := &api.GetSettlementPlanResponse{
		TripID:       plan.TripID,
		Currency:     plan.Currency,
		BasisVersion: plan.BasisVersion,
		Transfers:    make([]*api.Transfer, len(plan.Transfers)),
		Summary:      plan.Summary,
	}
	for i, t := range plan.Transfers {
		resp.Transfers[i] = &api.Transfer{From: t.From, To: t.To, Amount: t.Amount}
	}
	return resp
}
