package signal

import (
	"context"
	"encoding/json"
	"fmt"

	pkglog "github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

// Start subscribes to room signal channels. Events published by other
// instances, and server events without an origin, reach local clients.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	eventCh, err := s.ps.SubscribePattern(ctx, pubsub.PatternRoomSignal)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to room signals: %w", err)
	}

	s.doneCh = make(chan struct{})
	go s.handleRelayEvents(ctx, eventCh)

	l := pkglog.L()
	l.Info().Str("instance_id", s.instanceID).Msg("signal relay started")
	return nil
}

func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.doneCh
	}
	return nil
}

func (s *Service) handleRelayEvents(ctx context.Context, eventCh <-chan *pubsub.Event) {
	defer close(s.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			s.processRelayEvent(ctx, event)
		}
	}
}

func (s *Service) processRelayEvent(ctx context.Context, event *pubsub.Event) {
	if event.FromOrigin(s.instanceID) {
		return
	}
	l := pkglog.L()

	var relay pubsub.RelayPayload
	if err := event.UnmarshalPayload(&relay); err != nil {
		l.Warn().Err(err).Str("event_type", event.Type).Msg("failed to unmarshal relay payload")
		return
	}
	var base BaseMessage
	if err := json.Unmarshal(relay.Message, &base); err != nil {
		l.Warn().Err(err).Str(pkglog.FieldRoomID, event.RoomID).Msg("failed to decode relayed message")
		return
	}

	switch base.Type {
	case MsgTypeRoomClosed:
		s.evictRoom(ctx, event.RoomID, relay.Message)
	default:
		s.deliverLocal(ctx, event.RoomID, base.Type, relay.Message, relay.To, relay.Exclude)
	}
}

// broadcast sends msg to every participant of roomID on all instances.
func (s *Service) broadcast(ctx context.Context, roomID string, msg interface{}, exclude string) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}

	s.deliverLocal(ctx, roomID, base.Type, data, "", exclude)
	return s.publish(ctx, pubsub.EventRoomBroadcast, roomID, pubsub.RelayPayload{Exclude: exclude, Message: data})
}

// sendTo delivers msg to one participant, locally when possible.
func (s *Service) sendTo(ctx context.Context, roomID, userID string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if s.hub.HasUser(roomID, userID) {
		s.hub.Deliver(roomID, data, userID, "")
		return nil
	}
	return s.publish(ctx, pubsub.EventRoomDirect, roomID, pubsub.RelayPayload{To: userID, Message: data})
}

func (s *Service) publish(ctx context.Context, eventType, roomID string, payload pubsub.RelayPayload) error {
	event, err := pubsub.NewEvent(eventType, roomID, payload)
	if err != nil {
		return err
	}
	event.Origin = s.instanceID
	if err := s.ps.Publish(ctx, pubsub.RoomSignalChannel(roomID), event); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Str("event_type", eventType).Msg("failed to publish signal")
		return err
	}
	return nil
}

func (s *Service) deliverLocal(ctx context.Context, roomID, msgType string, data []byte, to, exclude string) {
	if to != "" && !s.hub.HasUser(roomID, to) {
		return
	}
	s.hub.Deliver(roomID, data, to, exclude)

	if msgType == MsgTypeParticipantJoined {
		var joined ParticipantMessage
		if err := json.Unmarshal(data, &joined); err == nil {
			s.introduce(ctx, roomID, joined.UserID)
		}
	}
}

// introduce sends the media state of each local participant to a newcomer.
func (s *Service) introduce(ctx context.Context, roomID, newcomer string) {
	for _, c := range s.hub.RoomClients(roomID) {
		userID := c.Session.GetUserID()
		if userID == newcomer {
			continue
		}
		if err := s.sendTo(ctx, roomID, newcomer, &MediaStateMessage{
			Type:   MsgTypeMediaState,
			UserID: userID,
			State:  c.Session.GetMedia(),
		}); err != nil {
			l := pkglog.Ctx(ctx)
			l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to introduce participant")
		}
	}
}

// evictRoom sends the closure notice to local participants and removes
// them from the room.
func (s *Service) evictRoom(ctx context.Context, roomID string, notice []byte) {
	l := pkglog.Ctx(ctx)
	for _, c := range s.hub.RoomClients(roomID) {
		userID := c.Session.GetUserID()
		s.hub.send(c, notice)
		s.hub.LeaveRoom(c, roomID)
		c.Session.LeaveRoom()

		if err := s.presence.ReleaseScreen(ctx, roomID, userID); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to release screen")
		}
		if err := s.presence.Leave(ctx, roomID, userID); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to update presence")
		}
	}
	l.Info().Str(pkglog.FieldRoomID, roomID).Msg("room closed, local participants evicted")
}
