// Package api defines the JSON messages exchanged with the trip ledger
// services. Money is always int64 minor units of the trip currency;
// percentages travel as decimal strings so no precision is lost.
package api
