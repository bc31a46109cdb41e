package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps presence in process. It is used when redis is
// disabled, which limits the server to a single instance.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms   map[string]map[string]struct{}
	online  map[string]time.Time
	screens map[string]string
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[string]map[string]struct{}),
		online:  make(map[string]time.Time),
		screens: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) Join(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		s.rooms[roomID] = members
	}
	members[userID] = struct{}{}
	return nil
}

func (s *MemoryStore) Leave(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if members, ok := s.rooms[roomID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(s.rooms, roomID)
		}
	}
	return nil
}

func (s *MemoryStore) Members(_ context.Context, roomID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]string, 0, len(s.rooms[roomID]))
	for id := range s.rooms[roomID] {
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) Count(_ context.Context, roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID]), nil
}

func (s *MemoryStore) IsMember(_ context.Context, roomID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID][userID]
	return ok, nil
}

func (s *MemoryStore) SetOnline(_ context.Context, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) SetOffline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online, userID)
	return nil
}

func (s *MemoryStore) Online(_ context.Context, userIDs []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	result := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		exp, ok := s.online[id]
		result[id] = ok && now.Before(exp)
	}
	return result, nil
}

func (s *MemoryStore) AcquireScreen(_ context.Context, roomID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.screens[roomID]; ok && cur != userID {
		return false, nil
	}
	s.screens[roomID] = userID
	return true, nil
}

func (s *MemoryStore) ReleaseScreen(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screens[roomID] == userID {
		delete(s.screens, roomID)
	}
	return nil
}

func (s *MemoryStore) ScreenSharer(_ context.Context, roomID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screens[roomID], nil
}

var _ Store = (*MemoryStore)(nil)
