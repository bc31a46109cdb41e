package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
	"github.com/weiawesome/focus-room/internal/presence"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/internal/service"
	"github.com/weiawesome/focus-room/pkg/database"
	"github.com/weiawesome/focus-room/pkg/idgen"
	"github.com/weiawesome/focus-room/pkg/jwt"
	"github.com/weiawesome/focus-room/pkg/middleware"
	"github.com/weiawesome/focus-room/pkg/pubsub"
	"github.com/weiawesome/focus-room/pkg/response"
	"github.com/weiawesome/focus-room/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:http_%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	tokens, err := jwt.NewManager(jwt.Config{
		Secret:          "test-secret",
		AccessDuration:  15 * time.Minute,
		RefreshDuration: 24 * time.Hour,
		Issuer:          "focus-room-test",
	}, nil)
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	bus := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { bus.Close() })

	ids := idgen.NewUUIDGenerator()
	users := repository.NewGormUserRepository(db, ids)
	friends := repository.NewGormFriendRepository(db, ids)
	rooms := repository.NewGormRoomRepository(db, ids)
	sessions := repository.NewGormSessionRepository(db, ids)
	todos := repository.NewGormTodoRepository(db, ids)
	messages := repository.NewGormMessageRepository(db)
	store := presence.NewMemoryStore()
	limits := config.NewLimits(config.TiersConfig{
		Guest:   config.TierLimit{MaxParticipants: 4},
		Free:    config.TierLimit{MaxParticipants: 4, MaxTodos: 5, MaxOpenRooms: 2},
		Premium: config.TierLimit{MaxParticipants: 25, PrivateRooms: true},
	})
	present := service.NewPresenter(nil, 0)

	files, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), URLPrefix: "/media"})
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	messageSvc := service.NewMessageService(messages, rooms, friends, store, cache.NoopMessages{}, time.Minute,
		files, bus, config.MessagesConfig{MaxMediaSize: 1024})
	api := NewHandler(Services{
		Auth:     service.NewAuthService(users, users, tokens, nil, present),
		Users:    service.NewUserService(users, users, cache.Noop{}, 0, tokens, nil, events.Nop{}, present),
		Friends:  service.NewFriendService(friends, users, users, store, events.Nop{}, present, 10, 50),
		Rooms:    service.NewRoomService(rooms, users, friends, store, limits, nil, bus, config.RoomsConfig{}),
		Stats:    service.NewStatsService(sessions, todos, friends, cache.NoopDashboard{}, time.Minute, events.Nop{}),
		Todos:    service.NewTodoService(todos, users, limits, cache.NoopDashboard{}, events.Nop{}),
		Messages: messageSvc,
	}, middleware.NewAuthMiddleware(tokens), 1024)

	return &testServer{
		t:      t,
		router: NewRouter(zerolog.Nop(), api, nil, storage.Config{}),
	}
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

func (s *testServer) signup(username string) domain.AuthResponse {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    username + "@example.com",
		"username": username,
		"password": "secret123",
	})
	if w.Code != http.StatusCreated {
		s.t.Fatalf("signup %s: status %d body %s", username, w.Code, w.Body.String())
	}
	var resp domain.AuthResponse
	decode(s.t, env, &resp)
	return resp
}

func decode(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSignupLoginProfileLogout(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")

	w, env := s.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "alice@example.com", "username": "alice2", "password": "secret123",
	})
	if w.Code != http.StatusConflict || env.Error.Code != response.CodeConflict {
		t.Fatalf("duplicate email: status %d body %s", w.Code, w.Body.String())
	}

	w, _ = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d", w.Code)
	}

	w, env = s.do(http.MethodGet, "/api/auth/profile", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile: status %d body %s", w.Code, w.Body.String())
	}
	var profile domain.UserResponse
	decode(t, env, &profile)
	if profile.Username != "alice" || profile.Tier != domain.TierFree {
		t.Fatalf("profile = %+v", profile)
	}

	w, _ = s.do(http.MethodPost, "/api/auth/logout", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: status %d", w.Code)
	}
	w, _ = s.do(http.MethodGet, "/api/auth/profile", alice.AccessToken, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("profile after logout: status %d", w.Code)
	}
}

func TestGuestProfileAndRestrictions(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/auth/guest", "", map[string]string{"display_name": "Visitor"})
	if w.Code != http.StatusCreated {
		t.Fatalf("guest: status %d body %s", w.Code, w.Body.String())
	}
	var guest domain.AuthResponse
	decode(t, env, &guest)

	w, env = s.do(http.MethodGet, "/api/auth/profile", guest.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("guest profile: status %d body %s", w.Code, w.Body.String())
	}
	var profile domain.UserResponse
	decode(t, env, &profile)
	if !profile.Guest || profile.DisplayName != "Visitor" || !domain.IsGuestID(profile.ID) {
		t.Fatalf("guest profile = %+v", profile)
	}

	w, _ = s.do(http.MethodPut, "/api/auth/preferences", guest.AccessToken, map[string]string{"theme": "dark"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("guest preferences: status %d", w.Code)
	}

	w, _ = s.do(http.MethodPost, "/api/rooms", guest.AccessToken, map[string]interface{}{"title": "Guest room"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("guest create room: status %d", w.Code)
	}

	s.signup("alice")
	for _, path := range []string{"/api/friends", "/api/friends/requests", "/api/friends/search?q=alice%40"} {
		w, _ = s.do(http.MethodGet, path, guest.AccessToken, nil)
		if w.Code != http.StatusForbidden {
			t.Fatalf("guest GET %s: status %d", path, w.Code)
		}
	}
}

func TestRoomLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bobby")

	w, _ := s.do(http.MethodPost, "/api/rooms", "", map[string]interface{}{"title": "Deep work"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: status %d", w.Code)
	}

	w, env := s.do(http.MethodPost, "/api/rooms", alice.AccessToken, map[string]interface{}{"title": "Deep work"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", w.Code, w.Body.String())
	}
	var room domain.RoomResponse
	decode(t, env, &room)

	w, _ = s.do(http.MethodPost, "/api/rooms", alice.AccessToken, map[string]interface{}{"title": "Secret", "private": true})
	if w.Code != http.StatusForbidden {
		t.Fatalf("free private room: status %d", w.Code)
	}

	w, env = s.do(http.MethodGet, "/api/rooms/"+room.Code, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get by code: status %d", w.Code)
	}
	var byCode domain.RoomResponse
	decode(t, env, &byCode)
	if byCode.ID != room.ID {
		t.Fatalf("get by code = %+v", byCode)
	}

	w, env = s.do(http.MethodGet, "/api/rooms", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var list domain.ListRoomsResponse
	decode(t, env, &list)
	if list.Total != 1 {
		t.Fatalf("list total = %d", list.Total)
	}

	w, _ = s.do(http.MethodPost, "/api/rooms/"+room.ID+"/join", bob.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("join: status %d body %s", w.Code, w.Body.String())
	}

	w, _ = s.do(http.MethodDelete, "/api/rooms/"+room.ID, bob.AccessToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("close by non-owner: status %d", w.Code)
	}
	w, _ = s.do(http.MethodDelete, "/api/rooms/"+room.ID, alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close: status %d", w.Code)
	}

	w, env = s.do(http.MethodPost, "/api/rooms/"+room.ID+"/join", bob.AccessToken, nil)
	if w.Code != http.StatusGone || env.Error.Code != response.CodeGone {
		t.Fatalf("join closed: status %d body %s", w.Code, w.Body.String())
	}

	w, _ = s.do(http.MethodGet, "/api/rooms/missing", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing room: status %d", w.Code)
	}
}

func TestTodoEndpoints(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")

	w, _ := s.do(http.MethodGet, "/api/todos", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list: status %d", w.Code)
	}

	w, env := s.do(http.MethodPost, "/api/todos", alice.AccessToken, map[string]string{"text": "write report"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", w.Code, w.Body.String())
	}
	var todo domain.Todo
	decode(t, env, &todo)

	w, _ = s.do(http.MethodPost, "/api/todos", alice.AccessToken, map[string]string{"text": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank todo: status %d", w.Code)
	}

	w, env = s.do(http.MethodPost, "/api/todos/"+todo.ID+"/toggle", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle: status %d body %s", w.Code, w.Body.String())
	}
	var toggled domain.Todo
	decode(t, env, &toggled)
	if !toggled.Completed || toggled.CompletedAt == nil {
		t.Fatalf("toggled = %+v", toggled)
	}

	w, env = s.do(http.MethodGet, "/api/todos?filter=active", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var active domain.ListTodosResponse
	decode(t, env, &active)
	if len(active.Todos) != 0 {
		t.Fatalf("active todos = %+v", active.Todos)
	}

	w, _ = s.do(http.MethodGet, "/api/todos?filter=bogus", alice.AccessToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad filter: status %d", w.Code)
	}

	bob := s.signup("bobby")
	w, _ = s.do(http.MethodDelete, "/api/todos/"+todo.ID, bob.AccessToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("delete someone else's todo: status %d", w.Code)
	}
	w, _ = s.do(http.MethodDelete, "/api/todos/"+todo.ID, alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status %d", w.Code)
	}
}

func TestStatsRejectsBadOffset(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")

	w, _ := s.do(http.MethodGet, "/api/stats?tz_offset=east", alice.AccessToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad offset: status %d", w.Code)
	}
	w, _ = s.do(http.MethodGet, "/api/stats/dashboard?tz_offset=120", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard: status %d body %s", w.Code, w.Body.String())
	}
}

func TestFriendRequestFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup("alice")
	bob := s.signup("bobby")

	w, _ := s.do(http.MethodPost, "/api/friends/request", alice.AccessToken, map[string]string{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("self request: status %d", w.Code)
	}

	w, env := s.do(http.MethodPost, "/api/friends/request", alice.AccessToken, map[string]string{"username": "bobby"})
	if w.Code != http.StatusCreated {
		t.Fatalf("request: status %d body %s", w.Code, w.Body.String())
	}
	var req domain.FriendRequestResponse
	decode(t, env, &req)

	w, _ = s.do(http.MethodPost, "/api/friends/accept/"+req.ID, alice.AccessToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("accept by requester: status %d", w.Code)
	}
	w, _ = s.do(http.MethodPost, "/api/friends/accept/"+req.ID, bob.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("accept: status %d body %s", w.Code, w.Body.String())
	}

	w, env = s.do(http.MethodGet, "/api/friends", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: status %d", w.Code)
	}
	var friends []domain.FriendResponse
	decode(t, env, &friends)
	if len(friends) != 1 || friends[0].User.Username != "bobby" {
		t.Fatalf("friends = %+v", friends)
	}

	w, _ = s.do(http.MethodGet, "/api/friends/search", alice.AccessToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("search without q: status %d", w.Code)
	}
	w, _ = s.do(http.MethodGet, "/api/friends/search?q=%20%20", alice.AccessToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("search with blank q: status %d body %s", w.Code, w.Body.String())
	}
}

func TestRespondErrorFallsBackToInternal(t *testing.T) {
	r := gin.New()
	r.GET("/mapped", func(c *gin.Context) { respondError(c, fmt.Errorf("wrap: %w", service.ErrTodoLimit), "create todo") })
	r.GET("/unknown", func(c *gin.Context) { respondError(c, errors.New("boom"), "create todo") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mapped", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("mapped status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unknown status = %d", w.Code)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Message != "failed to create todo" {
		t.Fatalf("message = %q", env.Error.Message)
	}
}
