package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/focus-room/internal/domain"
)

// Noop implements every cache interface and always misses. It is used
// when redis is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) (*UserCacheResult, error) { return nil, ErrCacheMiss }

func (Noop) Set(context.Context, string, *UserCacheResult, time.Duration) error { return nil }

func (Noop) Delete(context.Context, ...string) error { return nil }

func (Noop) BuildKeyByID(userID string) string { return userID }

type NoopDashboard struct{}

func (NoopDashboard) Get(context.Context, string, int) (*domain.Dashboard, error) {
	return nil, ErrCacheMiss
}

func (NoopDashboard) Set(context.Context, string, int, *domain.Dashboard, time.Duration) error {
	return nil
}

func (NoopDashboard) Invalidate(context.Context, string) error { return nil }

type NoopMessages struct{}

func (NoopMessages) Get(context.Context, string) (*MessageCacheResult, error) {
	return nil, ErrCacheMiss
}

func (NoopMessages) Set(context.Context, string, *MessageCacheResult, time.Duration) error {
	return nil
}

// BuildKey still distinguishes pages since callers coalesce requests on it.
func (NoopMessages) BuildKey(roomID string, version int64, cursor, direction string, limit int) string {
	return fmt.Sprintf("%s:v%d:%s:%s:%d", roomID, version, cursor, direction, limit)
}

func (NoopMessages) Version(context.Context, string) (int64, error) { return 0, nil }

func (NoopMessages) BumpVersion(context.Context, string) error { return nil }

var (
	_ UserCache      = Noop{}
	_ DashboardCache = NoopDashboard{}
	_ MessageCache   = NoopMessages{}
)
