package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/focus-room/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type UserCacheResult struct {
	User domain.UserResponse `json:"user"`
}

type UserCache interface {
	Get(ctx context.Context, key string) (*UserCacheResult, error)
	Set(ctx context.Context, key string, result *UserCacheResult, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	BuildKeyByID(userID string) string
}

// DashboardCache keeps one entry per timezone offset under each user so
// that Invalidate drops them all at once.
type DashboardCache interface {
	Get(ctx context.Context, userID string, tzOffset int) (*domain.Dashboard, error)
	Set(ctx context.Context, userID string, tzOffset int, d *domain.Dashboard, ttl time.Duration) error
	Invalidate(ctx context.Context, userID string) error
}

type MessageCacheResult struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor string           `json:"next_cursor"`
	HasMore    bool             `json:"has_more"`
}

// MessageCache caches history pages. Keys embed a per-room version, so
// bumping the version retires every cached page of that room.
type MessageCache interface {
	Get(ctx context.Context, key string) (*MessageCacheResult, error)
	Set(ctx context.Context, key string, result *MessageCacheResult, ttl time.Duration) error
	BuildKey(roomID string, version int64, cursor, direction string, limit int) string
	Version(ctx context.Context, roomID string) (int64, error)
	BumpVersion(ctx context.Context, roomID string) error
}
