package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/tripledger/internal/ledger"
	"github.com/mmynk/tripledger/internal/middleware"
	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/pkg/api"
	"github.com/mmynk/tripledger/pkg/api/apiconnect"
)

// LedgerService implements the Connect LedgerService: expenses, balances
// and settlements of one trip.
type LedgerService struct {
	ledger *ledger.Ledger
}

var _ apiconnect.LedgerServiceHandler = (*LedgerService)(nil)

// NewLedgerService creates a new LedgerService backed by l.
func NewLedgerService(l *ledger.Ledger) *LedgerService {
	return &LedgerService{ledger: l}
}

// CreateExpense records an expense and computes its splits.
func (s *LedgerService) CreateExpense(ctx context.Context, req *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error) {
	slog.Info("CreateExpense request received",
		"trip_id", req.Msg.TripID,
		"payer_id", req.Msg.PayerID,
		"amount", req.Msg.Amount,
	)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	in, err := expenseInput(req.Msg.ExpenseFields)
	if err != nil {
		return nil, toConnectError(err)
	}

	expense, err := s.ledger.CreateExpense(ctx, req.Msg.TripID, in)
	if err != nil {
		slog.Error("CreateExpense failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.CreateExpenseResponse{Expense: expenseToAPI(expense)}), nil
}

// UpdateExpense replaces an expense and recomputes its splits.
func (s *LedgerService) UpdateExpense(ctx context.Context, req *connect.Request[api.UpdateExpenseRequest]) (*connect.Response[api.UpdateExpenseResponse], error) {
	slog.Info("UpdateExpense request received", "trip_id", req.Msg.TripID, "expense_id", req.Msg.ExpenseID)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}
	in, err := expenseInput(req.Msg.ExpenseFields)
	if err != nil {
		return nil, toConnectError(err)
	}

	expense, err := s.ledger.UpdateExpense(ctx, req.Msg.TripID, req.Msg.ExpenseID, in)
	if err != nil {
		slog.Error("UpdateExpense failed", "trip_id", req.Msg.TripID, "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.UpdateExpenseResponse{Expense: expenseToAPI(expense)}), nil
}

// DeleteExpense removes an expense and its splits.
func (s *LedgerService) DeleteExpense(ctx context.Context, req *connect.Request[api.DeleteExpenseRequest]) (*connect.Response[api.DeleteExpenseResponse], error) {
	slog.Info("DeleteExpense request received", "trip_id", req.Msg.TripID, "expense_id", req.Msg.ExpenseID)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	if err := s.ledger.DeleteExpense(ctx, req.Msg.TripID, req.Msg.ExpenseID); err != nil {
		slog.Error("DeleteExpense failed", "trip_id", req.Msg.TripID, "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.DeleteExpenseResponse{}), nil
}

func (s *LedgerService) GetExpense(ctx context.Context, req *connect.Request[api.GetExpenseRequest]) (*connect.Response[api.GetExpenseResponse], error) {
	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	expense, err := s.ledger.GetExpense(ctx, req.Msg.TripID, req.Msg.ExpenseID)
	if err != nil {
		slog.Error("GetExpense failed", "trip_id", req.Msg.TripID, "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.GetExpenseResponse{Expense: expenseToAPI(expense)}), nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	expenses, err := s.ledger.ListExpenses(ctx, req.Msg.TripID)
	if err != nil {
		slog.Error("ListExpenses failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	out := make([]*api.Expense, len(expenses))
	for i, e := range expenses {
		out[i] = expenseToAPI(e)
	}

	slog.Info("ListExpenses successful", "trip_id", req.Msg.TripID, "count", len(out))

	return connect.NewResponse(&api.ListExpensesResponse{Expenses: out}), nil
}

// GetBalances returns every member's net balance.
func (s *LedgerService) GetBalances(ctx context.Context, req *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error) {
	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	sheet, err := s.ledger.Balances(ctx, req.Msg.TripID)
	if err != nil {
		slog.Error("GetBalances failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(BalancesToAPI(sheet)), nil
}

// GetSettlementPlan returns the transfers that would zero all balances.
func (s *LedgerService) GetSettlementPlan(ctx context.Context, req *connect.Request[api.GetSettlementPlanRequest]) (*connect.Response[api.GetSettlementPlanResponse], error) {
	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	plan, err := s.ledger.PlanSettlements(ctx, req.Msg.TripID)
	if err != nil {
		slog.Error("GetSettlementPlan failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("GetSettlementPlan successful", "trip_id", plan.TripID, "transfers", len(plan.Transfers))

	return connect.NewResponse(PlanToAPI(plan)), nil
}

// RecordSettlement records a transfer that already happened.
func (s *LedgerService) RecordSettlement(ctx context.Context, req *connect.Request[api.RecordSettlementRequest]) (*connect.Response[api.RecordSettlementResponse], error) {
	slog.Info("RecordSettlement request received",
		"trip_id", req.Msg.TripID,
		"payer_id", req.Msg.PayerID,
		"payee_id", req.Msg.PayeeID,
		"amount", req.Msg.Amount,
	)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	settlement, err := s.ledger.RecordSettlement(ctx, req.Msg.TripID, settlementInput(req.Msg.SettlementFields, middleware.GetCallerID(ctx)))
	if err != nil {
		slog.Error("RecordSettlement failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	out, err := s.settlementToAPI(ctx, settlement)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.RecordSettlementResponse{Settlement: out}), nil
}

// ProposeSettlement records an intended transfer awaiting confirmation.
func (s *LedgerService) ProposeSettlement(ctx context.Context, req *connect.Request[api.ProposeSettlementRequest]) (*connect.Response[api.ProposeSettlementResponse], error) {
	slog.Info("ProposeSettlement request received",
		"trip_id", req.Msg.TripID,
		"payer_id", req.Msg.PayerID,
		"payee_id", req.Msg.PayeeID,
		"amount", req.Msg.Amount,
	)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	settlement, err := s.ledger.ProposeSettlement(ctx, req.Msg.TripID, settlementInput(req.Msg.SettlementFields, middleware.GetCallerID(ctx)))
	if err != nil {
		slog.Error("ProposeSettlement failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	out, err := s.settlementToAPI(ctx, settlement)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.ProposeSettlementResponse{Settlement: out}), nil
}

// ConfirmSettlement marks a proposed settlement as paid.
func (s *LedgerService) ConfirmSettlement(ctx context.Context, req *connect.Request[api.ConfirmSettlementRequest]) (*connect.Response[api.ConfirmSettlementResponse], error) {
	slog.Info("ConfirmSettlement request received", "trip_id", req.Msg.TripID, "settlement_id", req.Msg.SettlementID)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	settlement, err := s.ledger.ConfirmSettlement(ctx, req.Msg.TripID, req.Msg.SettlementID)
	if err != nil {
		slog.Error("ConfirmSettlement failed", "trip_id", req.Msg.TripID, "settlement_id", req.Msg.SettlementID, "error", err)
		return nil, toConnectError(err)
	}

	out, err := s.settlementToAPI(ctx, settlement)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.ConfirmSettlementResponse{Settlement: out}), nil
}

// SettleSplit pays one member's share of an expense to its payer.
func (s *LedgerService) SettleSplit(ctx context.Context, req *connect.Request[api.SettleSplitRequest]) (*connect.Response[api.SettleSplitResponse], error) {
	slog.Info("SettleSplit request received",
		"trip_id", req.Msg.TripID,
		"expense_id", req.Msg.ExpenseID,
		"member_id", req.Msg.MemberID,
	)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	settlement, err := s.ledger.SettleSplit(ctx, req.Msg.TripID, req.Msg.ExpenseID, req.Msg.MemberID, middleware.GetCallerID(ctx))
	if err != nil {
		slog.Error("SettleSplit failed", "trip_id", req.Msg.TripID, "expense_id", req.Msg.ExpenseID, "error", err)
		return nil, toConnectError(err)
	}

	out, err := s.settlementToAPI(ctx, settlement)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.SettleSplitResponse{Settlement: out}), nil
}

// ListSettlements returns the trip's settlement history.
func (s *LedgerService) ListSettlements(ctx context.Context, req *connect.Request[api.ListSettlementsRequest]) (*connect.Response[api.ListSettlementsResponse], error) {
	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	trip, err := s.ledger.GetTrip(ctx, req.Msg.TripID)
	if err != nil {
		slog.Error("ListSettlements failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}
	history, err := s.ledger.ListSettlements(ctx, trip.ID)
	if err != nil {
		slog.Error("ListSettlements failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.ListSettlementsResponse{
		Reflected: settlementsToAPI(history.Reflected, trip.Currency),
		Pending:   settlementsToAPI(history.Pending, trip.Currency),
		Stale:     settlementsToAPI(history.Stale, trip.Currency),
	}), nil
}

// settlementToAPI renders s in its trip's currency.
func (s *LedgerService) settlementToAPI(ctx context.Context, settlement *models.Settlement) (*api.Settlement, error) {
	trip, err := s.ledger.GetTrip(ctx, settlement.TripID)
	if err != nil {
		slog.Error("Failed to fetch trip for settlement", "trip_id", settlement.TripID, "error", err)
		return nil, toConnectError(err)
	}
	return settlementToAPI(settlement, trip.Currency), nil
}
