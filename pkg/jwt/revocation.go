package jwt

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records revoked token ids and per-user cutoffs.
type RevocationStore interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	// RevokeUser invalidates tokens issued at or before cutoff. The entry is kept
	// for ttl, after which every affected token has expired anyway.
	RevokeUser(ctx context.Context, userID string, cutoff time.Time, ttl time.Duration) error
	UserCutoff(ctx context.Context, userID string) (time.Time, bool, error)
}

// MemoryRevocationStore keeps revocations in process memory.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	tokens  map[string]time.Time
	users   map[string]userCutoff
	nowFunc func() time.Time
}

type userCutoff struct {
	cutoff  time.Time
	expires time.Time
}

// NewMemoryRevocationStore creates an in-memory store.
func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		tokens:  make(map[string]time.Time),
		users:   make(map[string]userCutoff),
		nowFunc: time.Now,
	}
}

func (s *MemoryRevocationStore) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[jti] = expiresAt
	return nil
}

func (s *MemoryRevocationStore) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.tokens[jti]
	return ok && s.nowFunc().Before(exp), nil
}

func (s *MemoryRevocationStore) RevokeUser(_ context.Context, userID string, cutoff time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = userCutoff{cutoff: cutoff, expires: s.nowFunc().Add(ttl)}
	return nil
}

func (s *MemoryRevocationStore) UserCutoff(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.users[userID]
	if !ok || s.nowFunc().After(entry.expires) {
		return time.Time{}, false, nil
	}
	return entry.cutoff, true, nil
}

// CleanupExpired removes expired revocation entries.
func (s *MemoryRevocationStore) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	for jti, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, jti)
		}
	}
	for userID, entry := range s.users {
		if now.After(entry.expires) {
			delete(s.users, userID)
		}
	}
}

// RedisRevocationStore shares revocations across instances.
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRevocationStore creates a Redis-backed store.
func NewRedisRevocationStore(client redis.UniversalClient, prefix string) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, prefix: prefix}
}

func (s *RedisRevocationStore) tokenKey(jti string) string {
	return s.prefix + ":revoked:jti:" + jti
}

func (s *RedisRevocationStore) userKey(userID string) string {
	return s.prefix + ":revoked:user:" + userID
}

func (s *RedisRevocationStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.tokenKey(jti), "1", ttl).Err()
}

func (s *RedisRevocationStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.tokenKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisRevocationStore) RevokeUser(ctx context.Context, userID string, cutoff time.Time, ttl time.Duration) error {
	return s.client.Set(ctx, s.userKey(userID), cutoff.UnixMilli(), ttl).Err()
}

func (s *RedisRevocationStore) UserCutoff(ctx context.Context, userID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, s.userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}
