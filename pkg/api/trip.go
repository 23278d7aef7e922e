package api

// Trip is a trip ledger.
type Trip struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	Version   int64  `json:"version"`
	CreatedAt int64  `json:"created_at"`
}

// Member is a trip participant. RemovedAt is zero for active members.
type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	JoinedAt    int64  `json:"joined_at"`
	RemovedAt   int64  `json:"removed_at,omitempty"`
	Active      bool   `json:"active"`
}

type CreateTripRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Currency string `json:"currency" validate:"required,iso4217"`
}

type CreateTripResponse struct {
	Trip *Trip `json:"trip"`
}

type GetTripRequest struct {
	TripID string `json:"trip_id" validate:"required"`
}

type GetTripResponse struct {
	Trip    *Trip     `json:"trip"`
	Members []*Member `json:"members"`
}

type AddMemberRequest struct {
	TripID      string `json:"trip_id" validate:"required"`
	MemberID    string `json:"member_id" validate:"required,max=100"`
	DisplayName string `json:"display_name" validate:"max=200"`
}

type AddMemberResponse struct {
	Member *Member `json:"member"`
}

type RemoveMemberRequest struct {
	TripID   string `json:"trip_id" validate:"required"`
	MemberID string `json:"member_id" validate:"required"`
}

type RemoveMemberResponse struct{}

type ListMembersRequest struct {
	TripID string `json:"trip_id" validate:"required"`
}

type ListMembersResponse struct {
	Members []*Member `json:"members"`
}
