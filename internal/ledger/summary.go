package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/tripledger/internal/models"
)

// minorUnitDigits lists ISO 4217 currencies whose minor unit is not 1/100.
var minorUnitDigits = map[string]int32{
	"BIF": 0, "CLP": 0, "ISK": 0, "JPY": 0, "KRW": 0, "PYG": 0, "UGX": 0, "VND": 0, "XAF": 0, "XOF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// FormatAmount renders minor units as a decimal amount in currency,
// e.g. 2500 USD as "25.00 USD".
func FormatAmount(amount int64, currency string) string {
	digits, ok := minorUnitDigits[currency]
	if !ok {
		digits = 2
	}
	return decimal.New(amount, -digits).StringFixed(digits) + " " + currency
}

// describeTransfers renders one display line per transfer using member
// display names where known.
func describeTransfers(transfers []models.Transfer, members []*models.Member, currency string) []string {
	names := make(map[string]string, len(members))
	for _, m := range members {
		names[m.ID] = m.DisplayName
	}
	name := func(id string) string {
		if n := names[id]; n != "" {
			return n
		}
		return id
	}

	lines := make([]string, len(transfers))
	for i, t := range transfers {
		lines[i] = fmt.Sprintf("%s owes %s %s", name(t.From), name(t.To), FormatAmount(t.Amount, currency))
	}
	return lines
}
