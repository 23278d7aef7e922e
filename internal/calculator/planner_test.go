package calculator

import (
	"testing"

	"github.com/mmynk/tripledger/internal/models"
)

func TestPlanSettlements(t *testing.T) {
	tests := []struct {
		name          string
		balances      []models.MemberBalance
		wantTransfers []models.Transfer
	}{
		{
			name: "mutual debts collapse to one transfer",
			balances: []models.MemberBalance{
				{MemberID: "a", Net: -30},
				{MemberID: "b", Net: 30},
			},
			wantTransfers: []models.Transfer{{From: "a", To: "b", Amount: 30}},
		},
		{
			name: "largest debtor pays largest creditor first",
			balances: []models.MemberBalance{
				{MemberID: "a", Net: 60},
				{MemberID: "b", Net: -40},
				{MemberID: "c", Net: -20},
			},
			wantTransfers: []models.Transfer{
				{From: "b", To: "a", Amount: 40},
				{From: "c", To: "a", Amount: 20},
			},
		},
		{
			name: "ties broken by ascending id",
			balances: []models.MemberBalance{
				{MemberID: "d", Net: -10},
				{MemberID: "c", Net: -10},
				{MemberID: "b", Net: 10},
				{MemberID: "a", Net: 10},
			},
			wantTransfers: []models.Transfer{
				{From: "c", To: "a", Amount: 10},
				{From: "d", To: "b", Amount: 10},
			},
		},
		{
			name: "all settled yields no transfers",
			balances: []models.MemberBalance{
				{MemberID: "a", Net: 0},
				{MemberID: "b", Net: 0},
			},
			wantTransfers: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanSettlements(tt.balances)
			if len(got) != len(tt.wantTransfers) {
				t.Fatalf("got %d transfers %v, want %v", len(got), got, tt.wantTransfers)
			}
			for i := range got {
				if got[i] != tt.wantTransfers[i] {
					t.Errorf("transfer %d = %+v, want %+v", i, got[i], tt.wantTransfers[i])
				}
			}
		})
	}
}

func TestPlanSettlements_ZeroesBalances(t *testing.T) {
	balances := []models.MemberBalance{
		{MemberID: "m1", Net: 1234},
		{MemberID: "m2", Net: -555},
		{MemberID: "m3", Net: -679},
		{MemberID: "m4", Net: 300},
		{MemberID: "m5", Net: -300},
		{MemberID: "m6", Net: 1},
		{MemberID: "m7", Net: -1},
	}

	transfers := PlanSettlements(balances)

	remaining := make(map[string]int64)
	nonzero := 0
	for _, b := range balances {
		remaining[b.MemberID] = b.Net
		if b.Net != 0 {
			nonzero++
		}
	}
	for _, tr := range transfers {
		if tr.Amount <= 0 {
			t.Errorf("transfer %+v has non-positive amount", tr)
		}
		remaining[tr.From] += tr.Amount
		remaining[tr.To] -= tr.Amount
	}
	for id, net := range remaining {
		if net != 0 {
			t.Errorf("%s left with %d after plan", id, net)
		}
	}
	if len(transfers) > nonzero-1 {
		t.Errorf("got %d transfers, want at most %d", len(transfers), nonzero-1)
	}

	again := PlanSettlements(balances)
	for i := range transfers {
		if transfers[i] != again[i] {
			t.Fatalf("plan not deterministic at %d: %+v vs %+v", i, transfers[i], again[i])
		}
	}
}
