package events

import (
	"context"
	"fmt"

	"github.com/weiawesome/focus-room/internal/cache"
	pkglog "github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

// Notifier forwards a user event to that user's live connections.
type Notifier interface {
	NotifyUser(userID, eventType string, payload pubsub.UserEventPayload)
}

// Consumer reacts to user events from every instance: it drops the
// derived caches and tells connected clients that their data changed.
type Consumer struct {
	sub        pubsub.Subscriber
	dashboards cache.DashboardCache
	users      cache.UserCache
	notifier   Notifier
	doneCh     chan struct{}
}

func NewConsumer(sub pubsub.Subscriber, dashboards cache.DashboardCache, users cache.UserCache, notifier Notifier) *Consumer {
	return &Consumer{
		sub:        sub,
		dashboards: dashboards,
		users:      users,
		notifier:   notifier,
		doneCh:     make(chan struct{}),
	}
}

// Start subscribes to user events and consumes them until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.sub.SubscribePattern(ctx, pubsub.PatternUserEvents)
	if err != nil {
		return fmt.Errorf("failed to subscribe to user events: %w", err)
	}

	l := pkglog.L()
	l.Info().Str("pattern", pubsub.PatternUserEvents).Msg("user event consumer started")

	go c.consumeLoop(ctx, ch)
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, ch <-chan *pubsub.Event) {
	l := pkglog.L()
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("user event consumer shutting down")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			c.Handle(ctx, event)
		}
	}
}

// Handle applies one event.
func (c *Consumer) Handle(ctx context.Context, event *pubsub.Event) {
	l := pkglog.L()

	var payload pubsub.UserEventPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		l.Error().Err(err).Str("event_type", event.Type).Msg("failed to unmarshal user event")
		return
	}
	userID := payload.UserID
	if userID == "" {
		userID = event.UserID
	}
	if userID == "" {
		return
	}

	switch event.Type {
	case pubsub.EventSessionRecorded, pubsub.EventTodoChanged, pubsub.EventFriendChanged:
		if err := c.dashboards.Invalidate(ctx, userID); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to invalidate dashboard cache")
		}
	case pubsub.EventProfileChanged:
		if err := c.users.Delete(ctx, c.users.BuildKeyByID(userID)); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to invalidate user cache")
		}
	default:
		return
	}

	if c.notifier != nil {
		c.notifier.NotifyUser(userID, event.Type, payload)
	}
}

// Wait blocks until the consume loop has exited.
func (c *Consumer) Wait() {
	<-c.doneCh
}
