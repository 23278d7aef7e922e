package api

// SplitRule says how an expense divides among members. Exactly one of the
// variant fields is read, selected by Kind:
//
//	equal       Members
//	percentage  Percentages, member id to a decimal string summing to 100
//	shares      Shares, member id to a positive integer weight
//	exact       Amounts, member id to minor units summing to the total
type SplitRule struct {
	Kind        string            `json:"kind" validate:"required,oneof=equal percentage shares exact"`
	Members     []string          `json:"members,omitempty" validate:"required_if=Kind equal,dive,required"`
	Percentages map[string]string `json:"percentages,omitempty" validate:"required_if=Kind percentage,dive,keys,required,endkeys,numeric"`
	Shares      map[string]int64  `json:"shares,omitempty" validate:"required_if=Kind shares,dive,keys,required,endkeys,gt=0"`
	Amounts     map[string]int64  `json:"amounts,omitempty" validate:"required_if=Kind exact,dive,keys,required,endkeys,gte=0"`
}

type Split struct {
	MemberID   string `json:"member_id"`
	OwedAmount int64  `json:"owed_amount"`
	Settled    bool   `json:"settled"`
}

type Expense struct {
	ID          string     `json:"id"`
	TripID      string     `json:"trip_id"`
	PayerID     string     `json:"payer_id"`
	Description string     `json:"description"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	Category    string     `json:"category"`
	Notes       string     `json:"notes,omitempty"`
	SpentAt     int64      `json:"spent_at"`
	Rule        *SplitRule `json:"rule"`
	Splits      []*Split   `json:"splits"`
	CreatedAt   int64      `json:"created_at"`
	UpdatedAt   int64      `json:"updated_at"`
}

// ExpenseFields are the caller-supplied fields shared by create and update.
type ExpenseFields struct {
	PayerID     string     `json:"payer_id" validate:"required"`
	Description string     `json:"description" validate:"required,max=500"`
	Amount      int64      `json:"amount" validate:"gt=0"`
	Currency    string     `json:"currency,omitempty" validate:"omitempty,iso4217"`
	Category    string     `json:"category,omitempty" validate:"omitempty,oneof=food transport lodging activity shopping other"`
	Notes       string     `json:"notes,omitempty" validate:"max=2000"`
	SpentAt     int64      `json:"spent_at,omitempty" validate:"gte=0"`
	Rule        *SplitRule `json:"rule" validate:"required"`
}

type CreateExpenseRequest struct {
	TripID string `json:"trip_id" validate:"required"`
	ExpenseFields
}

type CreateExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type UpdateExpenseRequest struct {
	TripID    string `json:"trip_id" validate:"required"`
	ExpenseID string `json:"expense_id" validate:"required"`
	ExpenseFields
}

type UpdateExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type DeleteExpenseRequest struct {
	TripID    string `json:"trip_id" validate:"required"`
	ExpenseID string `json:"expense_id" validate:"required"`
}

type DeleteExpenseResponse struct{}

type GetExpenseRequest struct {
	TripID    string `json:"trip_id" validate:"required"`
	ExpenseID string `json:"expense_id" validate:"required"`
}

type GetExpenseResponse struct {
	Expense *Expense `json:"expense"`
}

type ListExpensesRequest struct {
	TripID string `json:"trip_id" validate:"required"`
}

type ListExpensesResponse struct {
	Expenses []*Expense `json:"expenses"`
}

type MemberBalance struct {
	MemberID            string `json:"member_id"`
	TotalPaid           int64  `json:"total_paid"`
	TotalOwed           int64  `json:"total_owed"`
	SettlementsPaid     int64  `json:"settlements_paid"`
	SettlementsReceived int64  `json:"settlements_received"`
	Net                 int64  `json:"net"`
}

type GetBalancesRequest struct {
	TripID string `json:"trip_id" validate:"required"`
}

type GetBalancesResponse struct {
	TripID   string `json:"trip_id"`
	Currency string `json:"currency"`
	Version  int64  `json:"version"`

	// Net maps member id to net balance; positive means owed money.
	Net           map[string]int64 `json:"net"`
	Balances      []*MemberBalance `json:"balances"`
	ExpenseCount  int              `json:"expense_count"`
	TotalExpenses int64            `json:"total_expenses"`
}

type Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type GetSettlementPlanRequest struct {
	TripID string `json:"trip_id" validate:"required"`
}

type GetSettlementPlanResponse struct {
	TripID       string      `json:"trip_id"`
	Currency     string      `json:"currency"`
	BasisVersion int64       `json:"basis_version"`
	Transfers    []*Transfer `json:"transfers"`
	Summary      []string    `json:"summary"`
}

type Settlement struct {
	ID             string `json:"id"`
	TripID         string `json:"trip_id"`
	PayerID        string `json:"payer_id"`
	PayeeID        string `json:"payee_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	ExpenseID      string `json:"expense_id,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	BasisVersion   int64  `json:"basis_version"`
	CreatedAt      int64  `json:"created_at"`
	SettledAt      int64  `json:"settled_at,omitempty"`
	CreatedBy      string `json:"created_by,omitempty"`
	Note           string `json:"note,omitempty"`
}

// SettlementFields describe a transfer for record and propose.
type SettlementFields struct {
	PayerID        string `json:"payer_id" validate:"required"`
	PayeeID        string `json:"payee_id" validate:"required,nefield=PayerID"`
	Amount         int64  `json:"amount" validate:"gt=0"`
	ExpenseID      string `json:"expense_id,omitempty"`
	BasisVersion   int64  `json:"basis_version,omitempty" validate:"gte=0"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"max=200"`
	Note           string `json:"note,omitempty" validate:"max=500"`
}

type RecordSettlementRequest struct {
	TripID string `json:"trip_id" validate:"required"`
	SettlementFields
}

type RecordSettlementResponse struct {
	Settlement *Settlement `json:"settlement"`
}

type ProposeSettlementRequest struct {
	TripID string `json:"trip_id" validate:"required"`
	SettlementFields
}

type ProposeSettlementResponse struct {
	Settlement *Settlement `json:"settlement"`
}

type ConfirmSettlementRequest struct {
	TripID       string `json:"trip_id" validate:"required"`
	SettlementID string `json:"settlement_id" validate:"required"`
}

type ConfirmSettlementResponse struct {
	Settlement *Settlement `json:"settlement"`
}

type SettleSplitRequest struct {
	TripID    string `json:"trip_id" validate:"required"`
	ExpenseID string `json:"expense_id" validate:"required"`
	MemberID  string `json:"member_id" validate:"required"`
}

type SettleSplitResponse struct {
	Settlement *Settlement `json:"settlement"`
}

type ListSettlementsRequest struct {
	TripID string `json:"trip_id" validate:"required"`
}

// ListSettlementsResponse partitions history: reflected settlements count
// toward balances, pending ones await confirmation and stale ones were
// invalidated by an expense change.
type ListSettlementsResponse struct {
	Reflected []*Settlement `json:"reflected"`
	Pending   []*Settlement `json:"pending"`
	Stale     []*Settlement `json:"stale"`
}
