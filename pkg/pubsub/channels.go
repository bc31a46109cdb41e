package pubsub

import (
	"encoding/json"
	"fmt"
)

// Channels follow "{prefix}:{id}:{suffix}" so the Kafka driver can map
// them to topic "{prefix}-{suffix}" keyed by id.
const (
	ChannelRoomSignal = "room:%s:signal"
	ChannelUserEvents = "user:%s:events"

	PatternRoomSignal = "room:*:signal"
	PatternUserEvents = "user:*:events"
)

// Domain event types carried on user event channels.
const (
	EventSessionRecorded = "session.recorded"
	EventTodoChanged     = "todo.changed"
	EventFriendChanged   = "friend.changed"
	EventProfileChanged  = "profile.changed"
)

// Signal relay event types carried on room channels.
const (
	EventRoomBroadcast = "room.broadcast"
	EventRoomDirect    = "room.direct"
)

// RoomSignalChannel returns the channel that fans out signaling for a room.
func RoomSignalChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomSignal, roomID)
}

// UserEventsChannel returns the channel for a user's domain events.
func UserEventsChannel(userID string) string {
	return fmt.Sprintf(ChannelUserEvents, userID)
}

// RelayPayload wraps a signaling message for delivery on other instances.
// An empty To broadcasts to the room; Exclude skips one participant.
type RelayPayload struct {
	To      string          `json:"to,omitempty"`
	Exclude string          `json:"exclude,omitempty"`
	Message json.RawMessage `json:"message"`
}

// UserEventPayload describes a change to a user's aggregates.
type UserEventPayload struct {
	UserID   string `json:"user_id"`
	Resource string `json:"resource,omitempty"`
	ID       string `json:"id,omitempty"`
}
