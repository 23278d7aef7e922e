package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/tripledger/internal/ledger"
	"github.com/mmynk/tripledger/internal/models"
	"github.com/mmynk/tripledger/pkg/api"
	"github.com/mmynk/tripledger/pkg/api/apiconnect"
)

// TripService implements the Connect TripService.
type TripService struct {
	ledger *ledger.Ledger
}

var _ apiconnect.TripServiceHandler = (*TripService)(nil)

// NewTripService creates a new TripService backed by l.
func NewTripService(l *ledger.Ledger) *TripService {
	return &TripService{ledger: l}
}

// CreateTrip starts a new trip ledger.
func (s *TripService) CreateTrip(ctx context.Context, req *connect.Request[api.CreateTripRequest]) (*connect.Response[api.CreateTripResponse], error) {
	slog.Info("CreateTrip request received", "name", req.Msg.Name, "currency", req.Msg.Currency)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	trip, err := s.ledger.CreateTrip(ctx, req.Msg.Name, req.Msg.Currency)
	if err != nil {
		slog.Error("CreateTrip failed", "error", err)
		return nil, toConnectError(err)
	}

	slog.Info("Trip created", "trip_id", trip.ID)

	return connect.NewResponse(&api.CreateTripResponse{Trip: tripToAPI(trip)}), nil
}

// GetTrip retrieves a trip with its roster.
func (s *TripService) GetTrip(ctx context.Context, req *connect.Request[api.GetTripRequest]) (*connect.Response[api.GetTripResponse], error) {
	slog.Info("GetTrip request received", "trip_id", req.Msg.TripID)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	trip, err := s.ledger.GetTrip(ctx, req.Msg.TripID)
	if err != nil {
		slog.Error("GetTrip failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}
	members, err := s.ledger.ListMembers(ctx, trip.ID)
	if err != nil {
		slog.Error("GetTrip failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.GetTripResponse{
		Trip:    tripToAPI(trip),
		Members: membersToAPI(members),
	}), nil
}

// AddMember puts a new member on a trip's roster.
func (s *TripService) AddMember(ctx context.Context, req *connect.Request[api.AddMemberRequest]) (*connect.Response[api.AddMemberResponse], error) {
	slog.Info("AddMember request received", "trip_id", req.Msg.TripID, "member_id", req.Msg.MemberID)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	member, err := s.ledger.AddMember(ctx, req.Msg.TripID, req.Msg.MemberID, req.Msg.DisplayName)
	if err != nil {
		slog.Error("AddMember failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.AddMemberResponse{Member: membersToAPI([]*models.Member{member})[0]}), nil
}

// RemoveMember tombstones a member.
func (s *TripService) RemoveMember(ctx context.Context, req *connect.Request[api.RemoveMemberRequest]) (*connect.Response[api.RemoveMemberResponse], error) {
	slog.Info("RemoveMember request received", "trip_id", req.Msg.TripID, "member_id", req.Msg.MemberID)

	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	if err := s.ledger.RemoveMember(ctx, req.Msg.TripID, req.Msg.MemberID); err != nil {
		slog.Error("RemoveMember failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.RemoveMemberResponse{}), nil
}

// ListMembers returns the roster including removed members.
func (s *TripService) ListMembers(ctx context.Context, req *connect.Request[api.ListMembersRequest]) (*connect.Response[api.ListMembersResponse], error) {
	if err := api.Validate(req.Msg); err != nil {
		return nil, toConnectError(err)
	}

	members, err := s.ledger.ListMembers(ctx, req.Msg.TripID)
	if err != nil {
		slog.Error("ListMembers failed", "trip_id", req.Msg.TripID, "error", err)
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.ListMembersResponse{Members: membersToAPI(members)}), nil
}
