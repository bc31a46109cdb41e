package domain

import "time"

// FriendshipStatus represents the state of a friend request.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
)

// Relation is a search hit's relationship to the caller.
const (
	RelationNone     = "none"
	RelationFriends  = "friends"
	RelationOutgoing = "pending_outgoing"
	RelationIncoming = "pending_incoming"
)

// Friendship is one row per user pair. RequesterID sent the request.
type Friendship struct {
	ID          string           `json:"id"`
	RequesterID string           `json:"requester_id"`
	AddresseeID string           `json:"addressee_id"`
	Status      FriendshipStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	RespondedAt *time.Time       `json:"responded_at,omitempty"`
}

// Other returns the user on the other side of the friendship.
func (f *Friendship) Other(userID string) string {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// Involves reports whether userID is one of the two sides.
func (f *Friendship) Involves(userID string) bool {
	return f.RequesterID == userID || f.AddresseeID == userID
}

// FriendRequestRequest names the target by id or username.
type FriendRequestRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type FriendSearchRequest struct {
	Query string `form:"q" binding:"required,min=1,max=100"`
	Limit int    `form:"limit"`
}

type FriendResponse struct {
	User   UserSummary `json:"user"`
	Online bool        `json:"online"`
	Since  *time.Time  `json:"since,omitempty"`
}

type FriendRequestResponse struct {
	ID        string           `json:"id"`
	User      UserSummary      `json:"user"`
	Direction string           `json:"direction"` // incoming or outgoing
	Status    FriendshipStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

type FriendRequestsResponse struct {
	Incoming []FriendRequestResponse `json:"incoming"`
	Outgoing []FriendRequestResponse `json:"outgoing"`
}

type FriendSearchResult struct {
	User     UserSummary `json:"user"`
	Relation string      `json:"relation"`
}

// ToResponse renders f from viewerID's side.
func (f *Friendship) ToResponse(viewerID string, other UserSummary) FriendRequestResponse {
	direction := "outgoing"
	if f.AddresseeID == viewerID {
		direction = "incoming"
	}
	return FriendRequestResponse{
		ID:        f.ID,
		User:      other,
		Direction: direction,
		Status:    f.Status,
		CreatedAt: f.CreatedAt,
	}
}
