package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key patterns:
// presence:room:{room_id}:users   SET<user_id>    - users in room
// presence:user:{user_id}:online  STRING "1"      - live connection, expires
// presence:room:{room_id}:screen  STRING<user_id> - current screen sharer

func roomUsersKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s:users", roomID)
}

func userOnlineKey(userID string) string {
	return fmt.Sprintf("presence:user:%s:online", userID)
}

func roomScreenKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s:screen", roomID)
}

var acquireScreen = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur or cur == ARGV[1] then
	redis.call('SET', KEYS[1], ARGV[1])
	return 1
end
return 0
`)

var releaseScreen = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type redisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a presence store on a shared redis client.
func NewRedisStore(client redis.UniversalClient) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Join(ctx context.Context, roomID, userID string) error {
	return s.client.SAdd(ctx, roomUsersKey(roomID), userID).Err()
}

func (s *redisStore) Leave(ctx context.Context, roomID, userID string) error {
	return s.client.SRem(ctx, roomUsersKey(roomID), userID).Err()
}

func (s *redisStore) Members(ctx context.Context, roomID string) ([]string, error) {
	return s.client.SMembers(ctx, roomUsersKey(roomID)).Result()
}

func (s *redisStore) Count(ctx context.Context, roomID string) (int, error) {
	n, err := s.client.SCard(ctx, roomUsersKey(roomID)).Result()
	return int(n), err
}

func (s *redisStore) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return s.client.SIsMember(ctx, roomUsersKey(roomID), userID).Result()
}

func (s *redisStore) SetOnline(ctx context.Context, userID string, ttl time.Duration) error {
	return s.client.Set(ctx, userOnlineKey(userID), "1", ttl).Err()
}

func (s *redisStore) SetOffline(ctx context.Context, userID string) error {
	return s.client.Del(ctx, userOnlineKey(userID)).Err()
}

func (s *redisStore) Online(ctx context.Context, userIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, userOnlineKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	for i, id := range userIDs {
		result[id] = cmds[i].Val() > 0
	}
	return result, nil
}

func (s *redisStore) AcquireScreen(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := acquireScreen.Run(ctx, s.client, []string{roomScreenKey(roomID)}, userID).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *redisStore) ReleaseScreen(ctx context.Context, roomID, userID string) error {
	return releaseScreen.Run(ctx, s.client, []string{roomScreenKey(roomID)}, userID).Err()
}

func (s *redisStore) ScreenSharer(ctx context.Context, roomID string) (string, error) {
	val, err := s.client.Get(ctx, roomScreenKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}
