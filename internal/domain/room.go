package domain

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// RoomStatus represents room status.
type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusClosed RoomStatus = "closed"
)

// Room represents one meeting instance.
type Room struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	OwnerID         string     `json:"owner_id"`
	OwnerUsername   string     `json:"owner_username"`
	Title           string     `json:"title"`
	Private         bool       `json:"private"`
	Status          RoomStatus `json:"status"`
	MaxParticipants int        `json:"max_participants"`
	CreatedAt       time.Time  `json:"created_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// CreateRoomRequest represents a create room request.
type CreateRoomRequest struct {
	Title   string `json:"title" binding:"required,min=1,max=200"`
	Private bool   `json:"private"`
}

// ListRoomsRequest represents a list rooms request.
type ListRoomsRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID               string     `json:"id"`
	Code             string     `json:"code"`
	OwnerID          string     `json:"owner_id"`
	OwnerUsername    string     `json:"owner_username"`
	Title            string     `json:"title"`
	Private          bool       `json:"private"`
	Status           RoomStatus `json:"status"`
	MaxParticipants  int        `json:"max_participants"`
	ParticipantCount int        `json:"participant_count"`
	CreatedAt        time.Time  `json:"created_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

// ListRoomsResponse represents a paginated list response.
type ListRoomsResponse struct {
	Rooms      []RoomResponse `json:"rooms"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
}

// JoinRoomResponse carries what a client needs to start its peer connections.
type JoinRoomResponse struct {
	Room         RoomResponse       `json:"room"`
	Participants []string           `json:"participants"`
	ICEServers   []webrtc.ICEServer `json:"ice_servers"`
}

// ToResponse converts Room to RoomResponse.
func (r *Room) ToResponse() RoomResponse {
	return RoomResponse{
		ID:              r.ID,
		Code:            r.Code,
		OwnerID:         r.OwnerID,
		OwnerUsername:   r.OwnerUsername,
		Title:           r.Title,
		Private:         r.Private,
		Status:          r.Status,
		MaxParticipants: r.MaxParticipants,
		CreatedAt:       r.CreatedAt,
		ClosedAt:        r.ClosedAt,
	}
}
