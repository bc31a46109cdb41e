package signal

import "encoding/json"

// WebSocket message types from client.
const (
	MsgTypeAuth             = "auth"
	MsgTypeJoinRoom         = "join_room"
	MsgTypeLeaveRoom        = "leave_room"
	MsgTypeOffer            = "offer"
	MsgTypeAnswer           = "answer"
	MsgTypeICECandidate     = "ice_candidate"
	MsgTypeMediaState       = "media_state"
	MsgTypeToggle           = "toggle"
	MsgTypeScreenShareEnded = "screen_share_ended"
	MsgTypePingUser         = "ping_user"
	MsgTypePing             = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthResult        = "auth_result"
	MsgTypeRoomJoined        = "room_joined"
	MsgTypeParticipantJoined = "participant_joined"
	MsgTypeParticipantLeft   = "participant_left"
	MsgTypePingOverlay       = "ping_overlay"
	MsgTypeRoomClosed        = "room_closed"
	MsgTypeChatMessage       = "chat_message"
	MsgTypeUserEvent         = "user_event"
	MsgTypeError             = "error"
	MsgTypePong              = "pong"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinRoomMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// SessionDescriptionMessage carries an offer or an answer. Inbound it
// names the target in To; relayed it names the sender in From.
type SessionDescriptionMessage struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`
	SDP  string `json:"sdp"`
}

type ICECandidateMessage struct {
	Type      string          `json:"type"`
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

// MediaStateMessage is sent by a client to publish its full track state
// and by the server to announce someone's state.
type MediaStateMessage struct {
	Type   string     `json:"type"`
	UserID string     `json:"user_id,omitempty"`
	State  MediaState `json:"state"`
}

type ToggleMessage struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
}

type PingUserMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Note string `json:"note,omitempty"`
}

// Server -> Client messages

type AuthResultMessage struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Tier     string `json:"tier,omitempty"`
	Message  string `json:"message,omitempty"`
}

type RoomJoinedMessage struct {
	Type         string   `json:"type"`
	RoomID       string   `json:"room_id"`
	IsOwner      bool     `json:"is_owner"`
	Participants []string `json:"participants"`
	ScreenSharer string   `json:"screen_sharer,omitempty"`
}

type ParticipantMessage struct {
	Type     string      `json:"type"`
	RoomID   string      `json:"room_id"`
	UserID   string      `json:"user_id"`
	Username string      `json:"username,omitempty"`
	State    *MediaState `json:"state,omitempty"`
}

type PingOverlayMessage struct {
	Type string `json:"type"`
	From string `json:"from"`
	Name string `json:"name,omitempty"`
	Note string `json:"note,omitempty"`
}

type UserEventMessage struct {
	Type     string `json:"type"`
	Event    string `json:"event"`
	Resource string `json:"resource,omitempty"`
	ID       string `json:"id,omitempty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRoomFull      = "ROOM_FULL"
	ErrCodeRoomClosed    = "ROOM_CLOSED"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
