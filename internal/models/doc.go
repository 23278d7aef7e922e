// Package models defines the core domain models for the trip ledger.
//
// # Records
//
// The ledger persists four kinds of records, all scoped to a trip:
//   - Trip: the unit of consistency, carrying the currency and a version
//   - Member: a traveler on the trip roster (tombstoned, never deleted)
//   - Expense: a payment by one member, split among members by a SplitRule
//   - Settlement: a transfer between two members, proposed or settled
//
// # Derived values
//
// ExpenseSplit, MemberBalance and Transfer are computed by the calculator
// package and are never edited directly.
//
// # Money
//
// All amounts are int64 minor units of the trip currency (cents for USD).
// Percentages are exact decimals. Floating point never touches money.
package models
