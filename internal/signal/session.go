package signal

import (
	"sync"
	"sync/atomic"
	"time"
)

// Identity is who a connection authenticated as.
type Identity struct {
	UserID   string
	Username string
	Tier     string
}

// Session is the per connection state: identity, current room and the
// media the participant is publishing there.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.RWMutex
	identity *Identity
	roomID   string
	media    MediaState

	lastActive atomic.Int64 // unix nanos
}

func NewSession(id string) *Session {
	s := &Session{ID: id, CreatedAt: time.Now(), media: DefaultMediaState()}
	s.UpdateActivity()
	return s
}

// Authenticate binds the session to a user. A connection keeps its first
// identity; the service rejects re-auth as someone else.
func (s *Session) Authenticate(userID, username, tier string) {
	s.mu.Lock()
	s.identity = &Identity{UserID: userID, Username: username, Tier: tier}
	s.mu.Unlock()
	s.UpdateActivity()
}

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil
}

// Identity returns a copy of the bound identity, or the zero value before
// authentication.
func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}
	}
	return *s.identity
}

func (s *Session) GetUserID() string   { return s.Identity().UserID }
func (s *Session) GetUsername() string { return s.Identity().Username }

// JoinRoom moves the session into roomID with camera, mic and screen off.
func (s *Session) JoinRoom(roomID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.media = DefaultMediaState()
	s.mu.Unlock()
	s.UpdateActivity()
}

// LeaveRoom clears the room and media and returns the room that was left.
func (s *Session) LeaveRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	left := s.roomID
	s.roomID = ""
	s.media = DefaultMediaState()
	return left
}

func (s *Session) GetCurrentRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

func (s *Session) GetMedia() MediaState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.media
}

func (s *Session) SetMedia(m MediaState) {
	s.mu.Lock()
	s.media = m
	s.mu.Unlock()
}

func (s *Session) UpdateActivity() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive is the time of the last inbound frame or state change.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}
