package events

import (
	"context"

	pkglog "github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

// Emitter publishes domain events about a user's data.
type Emitter interface {
	Emit(ctx context.Context, eventType, userID, resource, id string)
}

// BusEmitter publishes on the user's events channel. Publish failures are
// logged and never returned.
type BusEmitter struct {
	pub    pubsub.Publisher
	origin string
}

func NewBusEmitter(pub pubsub.Publisher, origin string) *BusEmitter {
	return &BusEmitter{pub: pub, origin: origin}
}

func (e *BusEmitter) Emit(ctx context.Context, eventType, userID, resource, id string) {
	l := pkglog.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, "", pubsub.UserEventPayload{UserID: userID, Resource: resource, ID: id})
	if err != nil {
		l.Warn().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	event.UserID = userID
	event.Origin = e.origin

	if err := e.pub.Publish(ctx, pubsub.UserEventsChannel(userID), event); err != nil {
		l.Warn().Err(err).Str("event_type", eventType).Str(pkglog.FieldUserID, userID).Msg("failed to publish event")
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(context.Context, string, string, string, string) {}
