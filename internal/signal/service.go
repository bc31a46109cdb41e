package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/presence"
	"github.com/weiawesome/focus-room/internal/service"
	"github.com/weiawesome/focus-room/pkg/jwt"
	pkglog "github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

const maxPingNoteLength = 140

// TokenValidator checks access tokens presented on the socket.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*jwt.Claims, error)
}

// RoomAuthorizer runs the room admission checks.
type RoomAuthorizer interface {
	Authorize(ctx context.Context, userID, ref string) (*domain.Room, error)
}

// Service handles signaling messages from clients and relays room
// traffic between instances.
type Service struct {
	hub        *Hub
	tokens     TokenValidator
	rooms      RoomAuthorizer
	presence   presence.Store
	ps         pubsub.PubSub
	instanceID string
	onlineTTL  time.Duration
	pings      *pingLimiter

	cancel context.CancelFunc
	doneCh chan struct{}
}

func NewService(
	h *Hub,
	tokens TokenValidator,
	rooms RoomAuthorizer,
	store presence.Store,
	ps pubsub.PubSub,
	instanceID string,
	cfg config.WebSocketConfig,
) *Service {
	ttl := cfg.PresenceTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Service{
		hub:        h,
		tokens:     tokens,
		rooms:      rooms,
		presence:   store,
		ps:         ps,
		instanceID: instanceID,
		onlineTTL:  ttl,
		pings:      newPingLimiter(cfg.PingCooldown),
	}
}

func (s *Service) HandleAuth(ctx context.Context, c *Client, token string) error {
	claims, err := s.tokens.ValidateAccessToken(ctx, token)
	if err != nil {
		c.SendMessage(&AuthResultMessage{
			Type:    MsgTypeAuthResult,
			Success: false,
			Message: "invalid or expired token",
		})
		return err
	}

	if c.Session.IsAuthenticated() && c.Session.GetUserID() != claims.UserID {
		return c.SendMessage(NewErrorMessage(ErrCodeForbidden, "already authenticated as another user"))
	}
	c.Session.Authenticate(claims.UserID, claims.Username, claims.Tier)

	if err := s.presence.SetOnline(ctx, claims.UserID, s.onlineTTL); err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldUserID, claims.UserID).Msg("failed to mark user online")
	}

	return c.SendMessage(&AuthResultMessage{
		Type:     MsgTypeAuthResult,
		Success:  true,
		UserID:   claims.UserID,
		Username: claims.Username,
		Tier:     claims.Tier,
	})
}

func (s *Service) HandleJoinRoom(ctx context.Context, c *Client, ref string) error {
	if !c.Session.IsAuthenticated() {
		return c.SendMessage(NewErrorMessage(ErrCodeUnauthorized, "Not authenticated"))
	}
	if strings.TrimSpace(ref) == "" {
		return c.SendMessage(NewErrorMessage(ErrCodeBadRequest, "room_id is required"))
	}
	userID := c.Session.GetUserID()

	room, err := s.rooms.Authorize(ctx, userID, ref)
	if err != nil {
		return c.SendMessage(admissionError(err))
	}

	if current := c.Session.GetCurrentRoom(); current != "" && current != room.ID {
		s.leave(ctx, c, current)
	}

	s.takeOver(ctx, c, room.ID, userID)

	if err := s.presence.Join(ctx, room.ID, userID); err != nil {
		return c.SendMessage(NewErrorMessage(ErrCodeInternalError, "Failed to join room"))
	}
	s.hub.JoinRoom(c, room.ID)
	c.Session.JoinRoom(room.ID)

	members, err := s.presence.Members(ctx, room.ID)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Str(pkglog.FieldRoomID, room.ID).Msg("failed to list participants")
	}
	participants := make([]string, 0, len(members))
	for _, m := range members {
		if m != userID {
			participants = append(participants, m)
		}
	}
	sharer, _ := s.presence.ScreenSharer(ctx, room.ID)

	if err := c.SendMessage(&RoomJoinedMessage{
		Type:         MsgTypeRoomJoined,
		RoomID:       room.ID,
		IsOwner:      room.OwnerID == userID,
		Participants: participants,
		ScreenSharer: sharer,
	}); err != nil {
		return err
	}

	state := c.Session.GetMedia()
	return s.broadcast(ctx, room.ID, &ParticipantMessage{
		Type:     MsgTypeParticipantJoined,
		RoomID:   room.ID,
		UserID:   userID,
		Username: c.Session.GetUsername(),
		State:    &state,
	}, userID)
}

// takeOver gives c the user's seat in roomID. Older connections of the
// same user in that room are told, removed and closed, and a screen share
// one of them held ends.
func (s *Service) takeOver(ctx context.Context, c *Client, roomID, userID string) {
	l := pkglog.Ctx(ctx)

	for _, other := range s.hub.RoomClients(roomID) {
		if other == c || other.Session.GetUserID() != userID {
			continue
		}
		media := other.Session.GetMedia()

		other.SendMessage(NewErrorMessage(ErrCodeConflict, "joined from another connection"))
		s.hub.LeaveRoom(other, roomID)
		other.Session.LeaveRoom()
		s.hub.Unregister(other)

		ended, wasSharing := media.EndScreenShare()
		if !wasSharing {
			continue
		}
		if err := s.presence.ReleaseScreen(ctx, roomID, userID); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to release screen")
		}
		if err := s.broadcast(ctx, roomID, &MediaStateMessage{
			Type:   MsgTypeMediaState,
			UserID: userID,
			State:  ended,
		}, userID); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to announce screen share end")
		}
	}
}

func admissionError(err error) *ErrorMessage {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		return NewErrorMessage(ErrCodeNotFound, "Room not found")
	case errors.Is(err, service.ErrRoomClosed):
		return NewErrorMessage(ErrCodeRoomClosed, err.Error())
	case errors.Is(err, service.ErrPrivateRoom):
		return NewErrorMessage(ErrCodeForbidden, err.Error())
	case errors.Is(err, service.ErrRoomFull):
		return NewErrorMessage(ErrCodeRoomFull, err.Error())
	default:
		return NewErrorMessage(ErrCodeInternalError, "Failed to join room")
	}
}

func (s *Service) HandleLeaveRoom(ctx context.Context, c *Client) error {
	roomID := c.Session.GetCurrentRoom()
	if roomID == "" {
		return nil
	}
	s.leave(ctx, c, roomID)
	return nil
}

func (s *Service) HandleDisconnect(ctx context.Context, c *Client) error {
	if roomID := c.Session.GetCurrentRoom(); roomID != "" {
		s.leave(ctx, c, roomID)
	}

	userID := c.Session.GetUserID()
	if userID == "" {
		return nil
	}
	for _, other := range s.hub.UserClients(userID) {
		if other != c {
			return nil
		}
	}
	return s.presence.SetOffline(ctx, userID)
}

// leave takes c out of roomID and tells the others.
func (s *Service) leave(ctx context.Context, c *Client, roomID string) {
	l := pkglog.Ctx(ctx)
	userID := c.Session.GetUserID()

	s.hub.LeaveRoom(c, roomID)
	c.Session.LeaveRoom()

	if err := s.presence.ReleaseScreen(ctx, roomID, userID); err != nil {
		l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to release screen")
	}
	if err := s.presence.Leave(ctx, roomID, userID); err != nil {
		l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to update presence")
	}

	if err := s.broadcast(ctx, roomID, &ParticipantMessage{
		Type:   MsgTypeParticipantLeft,
		RoomID: roomID,
		UserID: userID,
	}, userID); err != nil {
		l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to announce departure")
	}
}

// HandleSessionDescription relays an offer or answer to one participant.
func (s *Service) HandleSessionDescription(ctx context.Context, c *Client, msg *SessionDescriptionMessage) error {
	roomID, ok := s.requireRoom(c)
	if !ok {
		return nil
	}
	if !s.checkTarget(ctx, c, roomID, msg.To) {
		return nil
	}
	if err := validateSDP(msg.Type, msg.SDP); err != nil {
		return c.SendMessage(NewErrorMessage(ErrCodeBadRequest, err.Error()))
	}

	return s.sendTo(ctx, roomID, msg.To, &SessionDescriptionMessage{
		Type: msg.Type,
		From: c.Session.GetUserID(),
		SDP:  msg.SDP,
	})
}

func (s *Service) HandleICECandidate(ctx context.Context, c *Client, msg *ICECandidateMessage) error {
	roomID, ok := s.requireRoom(c)
	if !ok {
		return nil
	}
	if !s.checkTarget(ctx, c, roomID, msg.To) {
		return nil
	}
	if len(msg.Candidate) == 0 {
		return c.SendMessage(NewErrorMessage(ErrCodeBadRequest, "candidate is required"))
	}

	return s.sendTo(ctx, roomID, msg.To, &ICECandidateMessage{
		Type:      MsgTypeICECandidate,
		From:      c.Session.GetUserID(),
		Candidate: msg.Candidate,
	})
}

// HandleMediaState replaces the sender's whole track state.
func (s *Service) HandleMediaState(ctx context.Context, c *Client, state MediaState) error {
	roomID, ok := s.requireRoom(c)
	if !ok {
		return nil
	}
	return s.applyMedia(ctx, c, roomID, c.Session.GetMedia(), state.normalized())
}

func (s *Service) HandleToggle(ctx context.Context, c *Client, kind string) error {
	roomID, ok := s.requireRoom(c)
	if !ok {
		return nil
	}
	current := c.Session.GetMedia()
	next, ok := current.Toggle(kind)
	if !ok {
		return c.SendMessage(NewErrorMessage(ErrCodeBadRequest, "kind must be audio, video or screen"))
	}
	return s.applyMedia(ctx, c, roomID, current, next)
}

func (s *Service) HandleScreenShareEnded(ctx context.Context, c *Client) error {
	roomID, ok := s.requireRoom(c)
	if !ok {
		return nil
	}
	current := c.Session.GetMedia()
	next, changed := current.EndScreenShare()
	if !changed {
		return nil
	}
	return s.applyMedia(ctx, c, roomID, current, next)
}

func (s *Service) applyMedia(ctx context.Context, c *Client, roomID string, current, next MediaState) error {
	userID := c.Session.GetUserID()

	switch {
	case next.Screen && !current.Screen:
		acquired, err := s.presence.AcquireScreen(ctx, roomID, userID)
		if err != nil {
			return c.SendMessage(NewErrorMessage(ErrCodeInternalError, "Failed to start screen share"))
		}
		if !acquired {
			return c.SendMessage(NewErrorMessage(ErrCodeConflict, "someone is already sharing"))
		}
	case !next.Screen && current.Screen:
		if err := s.presence.ReleaseScreen(ctx, roomID, userID); err != nil {
			l := pkglog.Ctx(ctx)
			l.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to release screen")
		}
	}

	c.Session.SetMedia(next)
	return s.broadcast(ctx, roomID, &MediaStateMessage{
		Type:   MsgTypeMediaState,
		UserID: userID,
		State:  next,
	}, "")
}

func (s *Service) HandlePingUser(ctx context.Context, c *Client, msg *PingUserMessage) error {
	roomID, ok := s.requireRoom(c)
	if !ok {
		return nil
	}
	if !s.checkTarget(ctx, c, roomID, msg.To) {
		return nil
	}

	note := strings.TrimSpace(msg.Note)
	if utf8.RuneCountInString(note) > maxPingNoteLength {
		return c.SendMessage(NewErrorMessage(ErrCodeBadRequest, fmt.Sprintf("note must be at most %d characters", maxPingNoteLength)))
	}

	from := c.Session.GetUserID()
	if !s.pings.Allow(from, msg.To) {
		return c.SendMessage(NewErrorMessage(ErrCodeRateLimited, "wait before pinging again"))
	}

	return s.sendTo(ctx, roomID, msg.To, &PingOverlayMessage{
		Type: MsgTypePingOverlay,
		From: from,
		Name: c.Session.GetUsername(),
		Note: note,
	})
}

// HandlePing answers an application ping and keeps the user online.
func (s *Service) HandlePing(ctx context.Context, c *Client) error {
	if userID := c.Session.GetUserID(); userID != "" {
		if err := s.presence.SetOnline(ctx, userID, s.onlineTTL); err != nil {
			l := pkglog.Ctx(ctx)
			l.Warn().Err(err).Str(pkglog.FieldUserID, userID).Msg("failed to refresh online mark")
		}
	}
	return c.SendMessage(&BaseMessage{Type: MsgTypePong})
}

// NotifyUser forwards a domain event to the user's local connections.
func (s *Service) NotifyUser(userID, eventType string, payload pubsub.UserEventPayload) {
	msg := &UserEventMessage{
		Type:     MsgTypeUserEvent,
		Event:    eventType,
		Resource: payload.Resource,
		ID:       payload.ID,
	}
	for _, c := range s.hub.UserClients(userID) {
		c.SendMessage(msg)
	}
}

func (s *Service) requireRoom(c *Client) (string, bool) {
	if !c.Session.IsAuthenticated() {
		c.SendMessage(NewErrorMessage(ErrCodeUnauthorized, "Not authenticated"))
		return "", false
	}
	roomID := c.Session.GetCurrentRoom()
	if roomID == "" {
		c.SendMessage(NewErrorMessage(ErrCodeForbidden, "Not in a room"))
		return "", false
	}
	return roomID, true
}

// checkTarget requires to to be another participant of roomID.
func (s *Service) checkTarget(ctx context.Context, c *Client, roomID, to string) bool {
	if to == "" || to == c.Session.GetUserID() {
		c.SendMessage(NewErrorMessage(ErrCodeBadRequest, "to must name another participant"))
		return false
	}
	member, err := s.presence.IsMember(ctx, roomID, to)
	if err != nil {
		c.SendMessage(NewErrorMessage(ErrCodeInternalError, "Failed to look up participant"))
		return false
	}
	if !member {
		c.SendMessage(NewErrorMessage(ErrCodeNotFound, "Participant is not in this room"))
		return false
	}
	return true
}
