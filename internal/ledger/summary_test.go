package ledger

import (
	"testing"

	"github.com/mmynk/tripledger/internal/models"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   int64
		currency string
		want     string
	}{
		{2500, "USD", "25.00 USD"},
		{5, "EUR", "0.05 EUR"},
		{1200, "JPY", "1200 JPY"},
		{1500, "KWD", "1.500 KWD"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.amount, tt.currency); got != tt.want {
			t.Errorf("FormatAmount(%d, %s) = %q, want %q", tt.amount, tt.currency, got, tt.want)
		}
	}
}

func TestDescribeTransfers(t *testing.T) {
	members := []*models.Member{
		{ID: "alice", DisplayName: "Alice"},
		{ID: "bob", DisplayName: "Bob"},
	}
	transfers := []models.Transfer{
		{From: "alice", To: "bob", Amount: 2500},
		{From: "carol", To: "bob", Amount: 100},
	}

	got := describeTransfers(transfers, members, "USD")
	want := []string{"Alice owes Bob 25.00 USD", "carol owes Bob 1.00 USD"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}
