package repository

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/focus-room/internal/domain"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already exists")
	ErrUsernameExists     = errors.New("username already exists")
	ErrFriendshipNotFound = errors.New("friendship not found")
	ErrFriendshipExists   = errors.New("friendship already exists")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomCodeExists     = errors.New("room code already exists")
	ErrTodoNotFound       = errors.New("todo not found")
	ErrMessageNotFound    = errors.New("message not found")
)

// UserRepository defines the interface for user data persistence.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByOIDCSubject(ctx context.Context, subject string) (*domain.User, error)
	// Update persists display name, password hash, tier, theme and OIDC subject.
	Update(ctx context.Context, user *domain.User) error
	// UpdateAvatar persists the avatar keys for a user. Pass nil to clear them.
	UpdateAvatar(ctx context.Context, userID string, objects *domain.AvatarObjects) error
	Delete(ctx context.Context, id string) error
}

// UserSearch finds users for the friend search box.
type UserSearch interface {
	Search(ctx context.Context, query, excludeID string, limit int) ([]domain.User, error)
	Index(ctx context.Context, user *domain.User) error
	Remove(ctx context.Context, userID string) error
}

type FriendRepository interface {
	Create(ctx context.Context, f *domain.Friendship) error
	GetByID(ctx context.Context, id string) (*domain.Friendship, error)
	// GetBetween finds the row for a pair in either direction.
	GetBetween(ctx context.Context, userA, userB string) (*domain.Friendship, error)
	Update(ctx context.Context, f *domain.Friendship) error
	Delete(ctx context.Context, id string) error
	ListAccepted(ctx context.Context, userID string) ([]domain.Friendship, error)
	ListPending(ctx context.Context, userID string) ([]domain.Friendship, error)
	// ListWith returns the rows between userID and any of others.
	ListWith(ctx context.Context, userID string, others []string) ([]domain.Friendship, error)
	CountAccepted(ctx context.Context, userID string) (int, error)
}

// RoomRepository defines the interface for room data persistence.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	GetByCode(ctx context.Context, code string) (*domain.Room, error)
	ListPublic(ctx context.Context, page, pageSize int) ([]domain.Room, int, error)
	GetUserRooms(ctx context.Context, userID string) ([]domain.Room, error)
	CountActiveRoomsByUser(ctx context.Context, userID string) (int, error)
	Close(ctx context.Context, id string) error
}

type SessionRepository interface {
	Create(ctx context.Context, s *domain.MeetingSession) error
	List(ctx context.Context, userID string, page, pageSize int) ([]domain.MeetingSession, int, error)
	Totals(ctx context.Context, userID string) (domain.SessionTotals, error)
	// ListSince returns sessions joined at or after since, oldest first.
	ListSince(ctx context.Context, userID string, since time.Time) ([]domain.MeetingSession, error)
}

type TodoRepository interface {
	Create(ctx context.Context, todo *domain.Todo) error
	// GetByID only finds todos owned by userID.
	GetByID(ctx context.Context, userID, id string) (*domain.Todo, error)
	List(ctx context.Context, userID string, filter domain.TodoFilter) ([]domain.Todo, error)
	Update(ctx context.Context, todo *domain.Todo) error
	Delete(ctx context.Context, userID, id string) error
	CountOpen(ctx context.Context, userID string) (int, error)
	Counts(ctx context.Context, userID string, now time.Time) (domain.TodoCounts, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	GetMessages(
		ctx context.Context,
		roomID string,
		cursor string,
		limit int,
		direction string,
	) (messages []domain.Message, nextCursor string, hasMore bool, err error)
	Update(ctx context.Context, msg *domain.Message) error
	Delete(ctx context.Context, msg *domain.Message) error
	Close() error
}

// ParseDirection defaults anything but "forward" to backward.
func ParseDirection(s string) string {
	if s == domain.DirectionForward {
		return domain.DirectionForward
	}
	return domain.DirectionBackward
}
