package models

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// SplitKind names a split rule variant.
type SplitKind string

const (
	SplitEqual      SplitKind = "equal"
	SplitPercentage SplitKind = "percentage"
	SplitShares     SplitKind = "shares"
	SplitExact      SplitKind = "exact"
)

// SplitRule decides how an expense amount is divided among members.
// The set of variants is closed: EqualSplit, PercentageSplit, SharesSplit
// and ExactSplit.
type SplitRule interface {
	Kind() SplitKind

	// MemberIDs returns the members named by the rule in ascending order.
	MemberIDs() []string

	isSplitRule()
}

// EqualSplit divides the amount evenly. Leftover minor units go one each to
// the lowest member ids.
type EqualSplit struct {
	Members []string
}

// PercentageSplit assigns each member an exact percentage. The
// percentages must sum to exactly 100.
type PercentageSplit struct {
	Percentages map[string]decimal.Decimal
}

// SharesSplit assigns each member a positive integer weight.
type SharesSplit struct {
	Shares map[string]int64
}

// ExactSplit assigns each member a fixed amount in minor units.
type ExactSplit struct {
	Amounts map[string]int64
}

func (EqualSplit) Kind() SplitKind      { return SplitEqual }
func (PercentageSplit) Kind() SplitKind { return SplitPercentage }
func (SharesSplit) Kind() SplitKind     { return SplitShares }
func (ExactSplit) Kind() SplitKind      { return SplitExact }

func (EqualSplit) isSplitRule()      {}
func (PercentageSplit) isSplitRule() {}
func (SharesSplit) isSplitRule()     {}
func (ExactSplit) isSplitRule()      {}

func (r EqualSplit) MemberIDs() []string {
	ids := append([]string(nil), r.Members...)
	sort.Strings(ids)
	return ids
}

func (r PercentageSplit) MemberIDs() []string { return sortedKeys(r.Percentages) }
func (r SharesSplit) MemberIDs() []string     { return sortedKeys(r.Shares) }
func (r ExactSplit) MemberIDs() []string      { return sortedKeys(r.Amounts) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// splitRuleDocument is the stored form of a SplitRule.
type splitRuleDocument struct {
	Kind        SplitKind                  `json:"kind"`
	Members     []string                   `json:"members,omitempty"`
	Percentages map[string]decimal.Decimal `json:"percentages,omitempty"`
	Shares      map[string]int64           `json:"shares,omitempty"`
	Amounts     map[string]int64           `json:"amounts,omitempty"`
}

// MarshalSplitRule encodes a rule as a tagged JSON document.
func MarshalSplitRule(rule SplitRule) ([]byte, error) {
	doc := splitRuleDocument{}
	switch r := rule.(type) {
	case EqualSplit:
		doc.Kind, doc.Members = SplitEqual, r.Members
	case PercentageSplit:
		doc.Kind, doc.Percentages = SplitPercentage, r.Percentages
	case SharesSplit:
		doc.Kind, doc.Shares = SplitShares, r.Shares
	case ExactSplit:
		doc.Kind, doc.Amounts = SplitExact, r.Amounts
	default:
		return nil, fmt.Errorf("unsupported split rule %T", rule)
	}
	return json.Marshal(doc)
}

// UnmarshalSplitRule decodes a document written by MarshalSplitRule.
func UnmarshalSplitRule(data []byte) (SplitRule, error) {
	var doc splitRuleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode split rule: %w", err)
	}
	switch doc.Kind {
	case SplitEqual:
		return EqualSplit{Members: doc.Members}, nil
	case SplitPercentage:
		return PercentageSplit{Percentages: doc.Percentages}, nil
	case SplitShares:
		return SharesSplit{Shares: doc.Shares}, nil
	case SplitExact:
		return ExactSplit{Amounts: doc.Amounts}, nil
	default:
		return nil, fmt.Errorf("unknown split rule kind %q", doc.Kind)
	}
}
