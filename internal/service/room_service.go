package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/weiawesome/focus-room/internal/audit"
	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/presence"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/pkg/idgen"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotRoomOwner    = errors.New("you are not the owner of this room")
	ErrMaxRoomsReached = errors.New("maximum active rooms limit reached")
	ErrTierRequired    = errors.New("private rooms require a premium account")
	ErrRoomClosed      = errors.New("room is closed")
	ErrRoomFull        = errors.New("room is full")
	ErrPrivateRoom     = errors.New("this room is private")
)

// RoomClosedMessage is broadcast on a room's signal channel when the owner
// closes it.
const RoomClosedMessage = "room_closed"

// RoomService defines the interface for room business logic.
type RoomService interface {
	CreateRoom(ctx context.Context, userID, username string, req *domain.CreateRoomRequest) (*domain.RoomResponse, error)
	// GetRoom finds a room by id or join code.
	GetRoom(ctx context.Context, ref string) (*domain.RoomResponse, error)
	ListRooms(ctx context.Context, req *domain.ListRoomsRequest) (*domain.ListRoomsResponse, error)
	GetMyRooms(ctx context.Context, userID string) ([]domain.RoomResponse, error)
	CloseRoom(ctx context.Context, userID, roomID string) error
	// Authorize runs the admission checks for userID entering the room.
	Authorize(ctx context.Context, userID, ref string) (*domain.Room, error)
	JoinRoom(ctx context.Context, userID, ref string) (*domain.JoinRoomResponse, error)
}

// ICEProvider supplies the ICE servers handed to joining clients.
type ICEProvider interface {
	ICEServers(ctx context.Context) []webrtc.ICEServer
}

type roomServiceImpl struct {
	repo     repository.RoomRepository
	users    repository.UserRepository
	friends  repository.FriendRepository
	presence presence.Store
	limits   *config.Limits
	ice      ICEProvider
	pub      pubsub.Publisher
	codes    idgen.Generator
	pages    config.RoomsConfig
}

func NewRoomService(
	repo repository.RoomRepository,
	users repository.UserRepository,
	friends repository.FriendRepository,
	presenceStore presence.Store,
	limits *config.Limits,
	ice ICEProvider,
	pub pubsub.Publisher,
	pages config.RoomsConfig,
) RoomService {
	if pages.DefaultPageSize <= 0 {
		pages.DefaultPageSize = 20
	}
	if pages.MaxPageSize < pages.DefaultPageSize {
		pages.MaxPageSize = 100
	}
	return &roomServiceImpl{
		repo:     repo,
		users:    users,
		friends:  friends,
		presence: presenceStore,
		limits:   limits,
		ice:      ice,
		pub:      pub,
		codes:    idgen.NewCodeGenerator(),
		pages:    pages,
	}
}

// CreateRoom creates a new room with the owner's tier capacity.
func (s *roomServiceImpl) CreateRoom(ctx context.Context, userID, username string, req *domain.CreateRoomRequest) (*domain.RoomResponse, error) {
	l := log.Ctx(ctx)

	if domain.IsGuestID(userID) {
		return nil, ErrGuestNotAllowed
	}
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	limit := s.limits.For(owner.Tier)
	if req.Private && !limit.PrivateRooms {
		return nil, ErrTierRequired
	}

	activeCount, err := s.repo.CountActiveRoomsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit.MaxOpenRooms > 0 && activeCount >= limit.MaxOpenRooms {
		return nil, ErrMaxRoomsReached
	}

	room := &domain.Room{
		OwnerID:         userID,
		OwnerUsername:   owner.Username,
		Title:           strings.TrimSpace(req.Title),
		Private:         req.Private,
		MaxParticipants: limit.MaxParticipants,
	}

	// Join codes are short, so a collision is possible; retry a few times.
	for attempt := 0; ; attempt++ {
		room.Code, err = s.codes.Generate()
		if err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, room)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrRoomCodeExists) || attempt == 4 {
			l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to create room")
			return nil, err
		}
	}

	audit.LogTarget(ctx, audit.ActionRoomCreate, userID, room.ID, "room created")
	resp := room.ToResponse()
	return &resp, nil
}

func (s *roomServiceImpl) find(ctx context.Context, ref string) (*domain.Room, error) {
	room, err := s.repo.GetByID(ctx, ref)
	if errors.Is(err, repository.ErrRoomNotFound) {
		room, err = s.repo.GetByCode(ctx, strings.ToUpper(ref))
	}
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (s *roomServiceImpl) response(ctx context.Context, room *domain.Room) domain.RoomResponse {
	resp := room.ToResponse()
	if room.Status == domain.RoomStatusActive {
		if n, err := s.presence.Count(ctx, room.ID); err == nil {
			resp.ParticipantCount = n
		}
	}
	return resp
}

func (s *roomServiceImpl) GetRoom(ctx context.Context, ref string) (*domain.RoomResponse, error) {
	room, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	resp := s.response(ctx, room)
	return &resp, nil
}

// ListRooms lists active public rooms with pagination.
func (s *roomServiceImpl) ListRooms(ctx context.Context, req *domain.ListRoomsRequest) (*domain.ListRoomsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = s.pages.DefaultPageSize
	}
	if pageSize > s.pages.MaxPageSize {
		pageSize = s.pages.MaxPageSize
	}

	rooms, total, err := s.repo.ListPublic(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}

	responses := make([]domain.RoomResponse, len(rooms))
	for i := range rooms {
		responses[i] = s.response(ctx, &rooms[i])
	}

	totalPages := total / pageSize
	if total%pageSize > 0 {
		totalPages++
	}

	return &domain.ListRoomsResponse{
		Rooms:      responses,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func (s *roomServiceImpl) GetMyRooms(ctx context.Context, userID string) ([]domain.RoomResponse, error) {
	rooms, err := s.repo.GetUserRooms(ctx, userID)
	if err != nil {
		return nil, err
	}

	responses := make([]domain.RoomResponse, len(rooms))
	for i := range rooms {
		responses[i] = s.response(ctx, &rooms[i])
	}
	return responses, nil
}

// CloseRoom closes a room and tells every instance to disconnect its
// participants.
func (s *roomServiceImpl) CloseRoom(ctx context.Context, userID, roomID string) error {
	l := log.Ctx(ctx)

	room, err := s.find(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != userID {
		return ErrNotRoomOwner
	}
	if room.Status == domain.RoomStatusClosed {
		return ErrRoomClosed
	}

	if err := s.repo.Close(ctx, room.ID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomClosed
		}
		return err
	}

	msg, _ := json.Marshal(map[string]string{"type": RoomClosedMessage, "room_id": room.ID})
	event, err := pubsub.NewEvent(pubsub.EventRoomBroadcast, room.ID, pubsub.RelayPayload{Message: msg})
	if err == nil {
		err = s.pub.Publish(ctx, pubsub.RoomSignalChannel(room.ID), event)
	}
	if err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to publish room closure")
	}

	audit.LogTarget(ctx, audit.ActionRoomClose, userID, room.ID, "room closed")
	return nil
}

// Authorize admits userID when the room is active, the user may see it
// and there is a free seat. Users already inside are always admitted.
func (s *roomServiceImpl) Authorize(ctx context.Context, userID, ref string) (*domain.Room, error) {
	room, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomStatusActive {
		return nil, ErrRoomClosed
	}

	if room.Private && room.OwnerID != userID {
		if domain.IsGuestID(userID) {
			return nil, ErrPrivateRoom
		}
		f, err := s.friends.GetBetween(ctx, room.OwnerID, userID)
		if err != nil && !errors.Is(err, repository.ErrFriendshipNotFound) {
			return nil, err
		}
		if f == nil || f.Status != domain.FriendshipAccepted {
			return nil, ErrPrivateRoom
		}
	}

	member, err := s.presence.IsMember(ctx, room.ID, userID)
	if err != nil {
		return nil, err
	}
	if !member && room.MaxParticipants > 0 {
		count, err := s.presence.Count(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		if count >= room.MaxParticipants {
			return nil, ErrRoomFull
		}
	}
	return room, nil
}

func (s *roomServiceImpl) JoinRoom(ctx context.Context, userID, ref string) (*domain.JoinRoomResponse, error) {
	room, err := s.Authorize(ctx, userID, ref)
	if err != nil {
		return nil, err
	}

	members, err := s.presence.Members(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	participants := make([]string, 0, len(members))
	for _, id := range members {
		if id != userID {
			participants = append(participants, id)
		}
	}

	var servers []webrtc.ICEServer
	if s.ice != nil {
		servers = s.ice.ICEServers(ctx)
	}

	return &domain.JoinRoomResponse{
		Room:         s.response(ctx, room),
		Participants: participants,
		ICEServers:   servers,
	}, nil
}
