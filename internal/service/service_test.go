package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/tripledger/internal/auth"
	"github.com/mmynk/tripledger/internal/ledger"
	"github.com/mmynk/tripledger/internal/middleware"
	"github.com/mmynk/tripledger/internal/storage/sqlite"
	"github.com/mmynk/tripledger/pkg/api"
	"github.com/mmynk/tripledger/pkg/api/apiconnect"
)

type testClients struct {
	trips  apiconnect.TripServiceClient
	ledger apiconnect.LedgerServiceClient
}

// setupTestServer serves both services over a temp database. A non-nil
// jwtManager puts the services behind bearer auth.
func setupTestServer(t *testing.T, jwtManager *auth.JWTManager) (testClients, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpFile.Close()

	store, err := sqlite.New(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("failed to create store: %v", err)
	}

	l := ledger.New(store)

	interceptors := []connect.Interceptor{middleware.LoggingInterceptor()}
	if jwtManager != nil {
		interceptors = append([]connect.Interceptor{middleware.RequireAuth(jwtManager)}, interceptors...)
	}
	opts := connect.WithInterceptors(interceptors...)

	tripPath, tripHandler := apiconnect.NewTripServiceHandler(NewTripService(l), opts)
	ledgerPath, ledgerHandler := apiconnect.NewLedgerServiceHandler(NewLedgerService(l), opts)

	mux := http.NewServeMux()
	mux.Handle(tripPath, tripHandler)
	mux.Handle(ledgerPath, ledgerHandler)

	server := httptest.NewServer(mux)

	clients := testClients{
		trips:  apiconnect.NewTripServiceClient(http.DefaultClient, server.URL),
		ledger: apiconnect.NewLedgerServiceClient(http.DefaultClient, server.URL),
	}

	cleanup := func() {
		server.Close()
		store.Close()
		os.Remove(tmpFile.Name())
	}

	return clients, cleanup
}

// createTrip creates a USD trip with the given members.
func createTrip(t *testing.T, c testClients, members ...string) string {
	t.Helper()
	ctx := context.Background()

	resp, err := c.trips.CreateTrip(ctx, connect.NewRequest(&api.CreateTripRequest{
		Name:     "Lisbon",
		Currency: "USD",
	}))
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}
	tripID := resp.Msg.Trip.ID

	for _, id := range members {
		if _, err := c.trips.AddMember(ctx, connect.NewRequest(&api.AddMemberRequest{
			TripID:   tripID,
			MemberID: id,
		})); err != nil {
			t.Fatalf("AddMember(%s) failed: %v", id, err)
		}
	}
	return tripID
}

func equalExpense(tripID, payer string, amount int64, members ...string) *api.CreateExpenseRequest {
	return &api.CreateExpenseRequest{
		TripID: tripID,
		ExpenseFields: api.ExpenseFields{
			PayerID:     payer,
			Description: "Dinner",
			Amount:      amount,
			Rule:        &api.SplitRule{Kind: "equal", Members: members},
		},
	}
}

func assertCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", want)
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect.Error, got %T", err)
	}
	if connectErr.Code() != want {
		t.Errorf("expected %v, got %v (%s)", want, connectErr.Code(), connectErr.Message())
	}
}

func TestCreateTrip(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()

	resp, err := c.trips.CreateTrip(context.Background(), connect.NewRequest(&api.CreateTripRequest{
		Name:     "Kyoto",
		Currency: "JPY",
	}))
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}

	if resp.Msg.Trip.ID == "" {
		t.Error("expected non-empty trip ID")
	}
	if resp.Msg.Trip.Currency != "JPY" {
		t.Errorf("currency: expected 'JPY', got '%s'", resp.Msg.Trip.Currency)
	}
	if resp.Msg.Trip.CreatedAt == 0 {
		t.Error("expected non-zero CreatedAt")
	}
}

func TestCreateTrip_InvalidCurrency(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()

	_, err := c.trips.CreateTrip(context.Background(), connect.NewRequest(&api.CreateTripRequest{
		Name:     "Nowhere",
		Currency: "ZZZ",
	}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestGetTrip(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()

	tripID := createTrip(t, c, "alice", "bob")
	if _, err := c.trips.RemoveMember(context.Background(), connect.NewRequest(&api.RemoveMemberRequest{
		TripID:   tripID,
		MemberID: "bob",
	})); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}

	resp, err := c.trips.GetTrip(context.Background(), connect.NewRequest(&api.GetTripRequest{TripID: tripID}))
	if err != nil {
		t.Fatalf("GetTrip failed: %v", err)
	}

	if len(resp.Msg.Members) != 2 {
		t.Fatalf("members: expected 2, got %d", len(resp.Msg.Members))
	}
	if !resp.Msg.Members[0].Active || resp.Msg.Members[1].Active {
		t.Errorf("expected alice active and bob removed, got %+v %+v", resp.Msg.Members[0], resp.Msg.Members[1])
	}
	if resp.Msg.Trip.Version != 3 {
		t.Errorf("version: expected 3, got %d", resp.Msg.Trip.Version)
	}
}

func TestGetTrip_NotFound(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()

	_, err := c.trips.GetTrip(context.Background(), connect.NewRequest(&api.GetTripRequest{TripID: "nonexistent-id"}))
	assertCode(t, err, connect.CodeNotFound)
}

func TestAddMember_Duplicate(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()

	tripID := createTrip(t, c, "alice")
	_, err := c.trips.AddMember(context.Background(), connect.NewRequest(&api.AddMemberRequest{
		TripID:   tripID,
		MemberID: "alice",
	}))
	assertCode(t, err, connect.CodeInvalidArgument)
}

func TestCreateExpense_EqualSplit(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()

	tripID := createTrip(t, c, "alice", "bob", "carol")

	resp, err := c.ledger.CreateExpense(context.Background(), connect.NewRequest(equalExpense(tripID, "alice", 100, "alice", "bob", "carol")))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	want := map[string]int64{"alice": 34, "bob": 33, "carol": 33}
	if len(resp.Msg.Expense.Splits) != 3 {
		t.Fatalf("splits: expected 3, got %d", len(resp.Msg.Expense.Splits))
	}
	for _, s := range resp.Msg.Expense.Splits {
		if s.OwedAmount != want[s.MemberID] {
			t.Errorf("%s: expected %d, got %d", s.MemberID, want[s.MemberID], s.OwedAmount)
		}
	}
	if resp.Msg.Expense.Currency != "USD" {
		t.Errorf("currency: expected 'USD', got '%s'", resp.Msg.Expense.Currency)
	}
}

func TestCreateExpense_PercentageSplit(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()

	tripID := createTrip(t, c, "alice", "bob", "carol")

	req := equalExpense(tripID, "alice", 1000)
	req.Rule = &api.SplitRule{Kind: "percentage", Percentages: map[string]string{
		"alice": "33.3",
		"bob":   "33.3",
		"carol": "33.4",
	}}

	resp, err := c.ledger.CreateExpense(context.Background(), connect.NewRequest(req))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	var total int64
	for _, s := range resp.Msg.Expense.Splits {
		total += s.OwedAmount
	}
	if total != 1000 {
		t.Errorf("splits sum to %d, expected 1000", total)
	}
	if resp.Msg.Expense.Rule.Percentages["carol"] != "33.4" {
		t.Errorf("rule not echoed: %+v", resp.Msg.Expense.Rule)
	}
}

func TestCreateExpense_Invalid(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()

	tripID := createTrip(t, c, "alice", "bob")

	tests := []struct {
		name   string
		mutate func(r *api.CreateExpenseRequest)
		code   connect.Code
	}{
		{"zero amount", func(r *api.CreateExpenseRequest) { r.Amount = 0 }, connect.CodeInvalidArgument},
		{"currency mismatch", func(r *api.CreateExpenseRequest) { r.Currency = "EUR" }, connect.CodeInvalidArgument},
		{"member not on trip", func(r *api.CreateExpenseRequest) { r.Rule.Members = []string{"alice", "zed"} }, connect.CodeInvalidArgument},
		{"percentages off", func(r *api.CreateExpenseRequest) {
			r.Rule = &api.SplitRule{Kind: "percentage", Percentages: map[string]string{"alice": "50", "bob": "40"}}
		}, connect.CodeInvalidArgument},
		{"unknown trip", func(r *api.CreateExpenseRequest) { r.TripID = "nonexistent-id" }, connect.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := equalExpense(tripID, "alice", 100, "alice", "bob")
			tt.mutate(req)
			_, err := c.ledger.CreateExpense(context.Background(), connect.NewRequest(req))
			assertCode(t, err, tt.code)
		})
	}
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	tripID := createTrip(t, c, "alice", "bob")
	created, err := c.ledger.CreateExpense(ctx, connect.NewRequest(equalExpense(tripID, "alice", 100, "alice", "bob")))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	expenseID := created.Msg.Expense.ID

	updated, err := c.ledger.UpdateExpense(ctx, connect.NewRequest(&api.UpdateExpenseRequest{
		TripID:    tripID,
		ExpenseID: expenseID,
		ExpenseFields: api.ExpenseFields{
			PayerID:     "alice",
			Description: "Dinner and drinks",
			Amount:      90,
			Category:    "food",
			Rule:        &api.SplitRule{Kind: "exact", Amounts: map[string]int64{"alice": 30, "bob": 60}},
		},
	}))
	if err != nil {
		t.Fatalf("UpdateExpense failed: %v", err)
	}
	if updated.Msg.Expense.Category != "food" || updated.Msg.Expense.Amount != 90 {
		t.Errorf("expense not updated: %+v", updated.Msg.Expense)
	}

	balances, err := c.ledger.GetBalances(ctx, connect.NewRequest(&api.GetBalancesRequest{TripID: tripID}))
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	if balances.Msg.Net["alice"] != 60 || balances.Msg.Net["bob"] != -60 {
		t.Errorf("net: expected alice 60 bob -60, got %v", balances.Msg.Net)
	}

	if _, err := c.ledger.DeleteExpense(ctx, connect.NewRequest(&api.DeleteExpenseRequest{
		TripID:    tripID,
		ExpenseID: expenseID,
	})); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}

	_, err = c.ledger.GetExpense(ctx, connect.NewRequest(&api.GetExpenseRequest{TripID: tripID, ExpenseID: expenseID}))
	assertCode(t, err, connect.CodeNotFound)

	_, err = c.ledger.DeleteExpense(ctx, connect.NewRequest(&api.DeleteExpenseRequest{TripID: tripID, ExpenseID: expenseID}))
	assertCode(t, err, connect.CodeNotFound)

	list, err := c.ledger.ListExpenses(ctx, connect.NewRequest(&api.ListExpensesRequest{TripID: tripID}))
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if len(list.Msg.Expenses) != 0 {
		t.Errorf("expected 0 expenses, got %d", len(list.Msg.Expenses))
	}
}

func TestSettlementPlanAndRecord(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	tripID := createTrip(t, c, "alice", "bob")

	// alice owes bob 50, bob owes alice 20.
	if _, err := c.ledger.CreateExpense(ctx, connect.NewRequest(equalExpense(tripID, "bob", 50, "alice"))); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if _, err := c.ledger.CreateExpense(ctx, connect.NewRequest(equalExpense(tripID, "alice", 20, "bob"))); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	plan, err := c.ledger.GetSettlementPlan(ctx, connect.NewRequest(&api.GetSettlementPlanRequest{TripID: tripID}))
	if err != nil {
		t.Fatalf("GetSettlementPlan failed: %v", err)
	}
	if len(plan.Msg.Transfers) != 1 {
		t.Fatalf("transfers: expected 1, got %d", len(plan.Msg.Transfers))
	}
	tr := plan.Msg.Transfers[0]
	if tr.From != "alice" || tr.To != "bob" || tr.Amount != 30 {
		t.Errorf("transfer: expected alice->bob 30, got %+v", tr)
	}
	if len(plan.Msg.Summary) != 1 || plan.Msg.Summary[0] != "alice owes bob 0.30 USD" {
		t.Errorf("summary: got %v", plan.Msg.Summary)
	}

	req := &api.RecordSettlementRequest{
		TripID: tripID,
		SettlementFields: api.SettlementFields{
			PayerID:      tr.From,
			PayeeID:      tr.To,
			Amount:       tr.Amount,
			BasisVersion: plan.Msg.BasisVersion,
		},
	}
	first, err := c.ledger.RecordSettlement(ctx, connect.NewRequest(req))
	if err != nil {
		t.Fatalf("RecordSettlement failed: %v", err)
	}
	if first.Msg.Settlement.Status != "settled" || first.Msg.Settlement.Currency != "USD" {
		t.Errorf("settlement: got %+v", first.Msg.Settlement)
	}

	second, err := c.ledger.RecordSettlement(ctx, connect.NewRequest(req))
	if err != nil {
		t.Fatalf("repeat RecordSettlement failed: %v", err)
	}
	if second.Msg.Settlement.ID != first.Msg.Settlement.ID {
		t.Errorf("repeat created a new settlement")
	}

	balances, err := c.ledger.GetBalances(ctx, connect.NewRequest(&api.GetBalancesRequest{TripID: tripID}))
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	for member, net := range balances.Msg.Net {
		if net != 0 {
			t.Errorf("%s: expected net 0, got %d", member, net)
		}
	}

	// Nothing is owed any more.
	req.IdempotencyKey = "second-payment"
	_, err = c.ledger.RecordSettlement(ctx, connect.NewRequest(req))
	assertCode(t, err, connect.CodeAborted)
}

func TestProposeConfirmAndList(t *testing.T) {
	c, cleanup := setupTestServer(t, nil)
	defer cleanup()
	ctx := context.Background()

	tripID := createTrip(t, c, "alice", "bob")
	expense, err := c.ledger.CreateExpense(ctx, connect.NewRequest(equalExpense(tripID, "bob", 80, "alice", "bob")))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	fields := api.SettlementFields{PayerID: "alice", PayeeID: "bob", Amount: 40}
	proposed, err := c.ledger.ProposeSettlement(ctx, connect.NewRequest(&api.ProposeSettlementRequest{TripID: tripID, SettlementFields: fields}))
	if err != nil {
		t.Fatalf("ProposeSettlement failed: %v", err)
	}

	fields.ExpenseID = expense.Msg.Expense.ID
	stale, err := c.ledger.ProposeSettlement(ctx, connect.NewRequest(&api.ProposeSettlementRequest{TripID: tripID, SettlementFields: fields}))
	if err != nil {
		t.Fatalf("ProposeSettlement failed: %v", err)
	}

	confirmed, err := c.ledger.ConfirmSettlement(ctx, connect.NewRequest(&api.ConfirmSettlementRequest{
		TripID:       tripID,
		SettlementID: proposed.Msg.Settlement.ID,
	}))
	if err != nil {
		t.Fatalf("ConfirmSettlement failed: %v", err)
	}
	if confirmed.Msg.Settlement.Status != "settled" {
		t.Errorf("status: expected settled, got %s", confirmed.Msg.Settlement.Status)
	}

	// Editing the expense invalidates the second proposal.
	if _, err := c.ledger.UpdateExpense(ctx, connect.NewRequest(&api.UpdateExpenseRequest{
		TripID:        tripID,
		ExpenseID:     expense.Msg.Expense.ID,
		ExpenseFields: equalExpense(tripID, "bob", 100, "alice", "bob").ExpenseFields,
	})); err != nil {
		t.Fatalf("UpdateExpense failed: %v", err)
	}

	_, err = c.ledger.ConfirmSettlement(ctx, connect.NewRequest(&api.ConfirmSettlementRequest{
		TripID:       tripID,
		SettlementID: stale.Msg.Settlement.ID,
	}))
	assertCode(t, err, connect.CodeAborted)

	list, err := c.ledger.ListSettlements(ctx, connect.NewRequest(&api.ListSettlementsRequest{TripID: tripID}))
	if err != nil {
		t.Fatalf("ListSettlements failed: %v", err)
	}
	if len(list.Msg.Reflected) != 1 || len(list.Msg.Pending) != 0 || len(list.Msg.Stale) != 1 {
		t.Errorf("history: got %d reflected, %d pending, %d stale",
			len(list.Msg.Reflected), len(list.Msg.Pending), len(list.Msg.Stale))
	}
}

func TestRequireAuth(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	c, cleanup := setupTestServer(t, jwtManager)
	defer cleanup()

	_, err := c.trips.CreateTrip(context.Background(), connect.NewRequest(&api.CreateTripRequest{
		Name:     "Lisbon",
		Currency: "EUR",
	}))
	assertCode(t, err, connect.CodeUnauthenticated)

	req := connect.NewRequest(&api.CreateTripRequest{Name: "Lisbon", Currency: "EUR"})
	req.Header().Set("Authorization", "Bearer not-a-token")
	_, err = c.trips.CreateTrip(context.Background(), req)
	assertCode(t, err, connect.CodeUnauthenticated)
}

func TestSettleSplit_RecordsCaller(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwtManager.Generate("bob", "Bob")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	c, cleanup := setupTestServer(t, jwtManager)
	defer cleanup()
	ctx := context.Background()

	withToken := func(r connect.AnyRequest) {
		r.Header().Set("Authorization", "Bearer "+token)
	}

	createReq := connect.NewRequest(&api.CreateTripRequest{Name: "Lisbon", Currency: "EUR"})
	withToken(createReq)
	trip, err := c.trips.CreateTrip(ctx, createReq)
	if err != nil {
		t.Fatalf("CreateTrip failed: %v", err)
	}
	tripID := trip.Msg.Trip.ID

	for _, id := range []string{"alice", "bob"} {
		req := connect.NewRequest(&api.AddMemberRequest{TripID: tripID, MemberID: id})
		withToken(req)
		if _, err := c.trips.AddMember(ctx, req); err != nil {
			t.Fatalf("AddMember failed: %v", err)
		}
	}

	expenseReq := connect.NewRequest(equalExpense(tripID, "alice", 60, "alice", "bob"))
	withToken(expenseReq)
	expense, err := c.ledger.CreateExpense(ctx, expenseReq)
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	settleReq := connect.NewRequest(&api.SettleSplitRequest{
		TripID:    tripID,
		ExpenseID: expense.Msg.Expense.ID,
		MemberID:  "bob",
	})
	withToken(settleReq)
	settled, err := c.ledger.SettleSplit(ctx, settleReq)
	if err != nil {
		t.Fatalf("SettleSplit failed: %v", err)
	}

	s := settled.Msg.Settlement
	if s.CreatedBy != "bob" || s.PayerID != "bob" || s.PayeeID != "alice" || s.Amount != 30 || s.Currency != "EUR" {
		t.Errorf("settlement: got %+v", s)
	}

	getReq := connect.NewRequest(&api.GetExpenseRequest{TripID: tripID, ExpenseID: expense.Msg.Expense.ID})
	withToken(getReq)
	got, err := c.ledger.GetExpense(ctx, getReq)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	for _, split := range got.Msg.Expense.Splits {
		if split.Settled != (split.MemberID == "bob") {
			t.Errorf("%s: settled=%v", split.MemberID, split.Settled)
		}
	}
}
