// Package pubsub fans events out across instances. Room channels carry
// relayed signaling, user channels carry aggregate changes that
// invalidate caches and notify connected clients.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrInvalidChannel is returned for channels not shaped like
// "{prefix}:{id}:{suffix}" on drivers that depend on that shape.
var ErrInvalidChannel = errors.New("invalid channel")

// Event is the JSON envelope every driver carries.
type Event struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
	// Origin is the publishing instance. Relays use it to skip events
	// they already delivered locally.
	Origin    string          `json:"origin,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent encodes payload into a new event stamped with the current time.
func NewEvent(eventType, roomID string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: eventType, RoomID: roomID, Payload: raw, Timestamp: time.Now().UTC()}, nil
}

// UnmarshalPayload decodes the payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// FromOrigin reports whether the event was published by origin.
func (e *Event) FromOrigin(origin string) bool {
	return origin != "" && e.Origin == origin
}

func decodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber hands out buffered event channels. A channel is closed when
// its context ends, on Unsubscribe, or on Close. Events are dropped
// rather than block when a subscriber falls behind.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
	// SubscribePattern takes a glob such as "room:*:signal".
	SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error)
	Unsubscribe(ctx context.Context, channel string) error
}

type PubSub interface {
	Publisher
	Subscriber
	Close() error
}

// subscriberBuffer is the per subscription channel capacity.
const subscriberBuffer = 100
