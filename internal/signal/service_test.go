package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/weiawesome/focus-room/internal/config"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/presence"
	"github.com/weiawesome/focus-room/internal/service"
	"github.com/weiawesome/focus-room/pkg/jwt"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

type fakeTokens struct{}

// Tokens are "token-<user id>".
func (fakeTokens) ValidateAccessToken(_ context.Context, token string) (*jwt.Claims, error) {
	var userID string
	if _, err := fmt.Sscanf(token, "token-%s", &userID); err != nil || userID == "" {
		return nil, jwt.ErrInvalidToken
	}
	return &jwt.Claims{UserID: userID, Username: userID, Tier: string(domain.TierFree)}, nil
}

type fakeRooms map[string]*domain.Room

func (f fakeRooms) Authorize(_ context.Context, _ string, ref string) (*domain.Room, error) {
	room, ok := f[ref]
	if !ok {
		return nil, service.ErrRoomNotFound
	}
	if room.Status != domain.RoomStatusActive {
		return nil, service.ErrRoomClosed
	}
	return room, nil
}

var testRooms = fakeRooms{
	"room-1": {ID: "room-1", OwnerID: "alice", Status: domain.RoomStatusActive},
	"old":    {ID: "old", OwnerID: "alice", Status: domain.RoomStatusClosed},
}

type instance struct {
	hub *Hub
	svc *Service
}

func newInstance(t *testing.T, id string, store presence.Store, bus pubsub.PubSub) *instance {
	t.Helper()
	cfg := config.WebSocketConfig{SendBuffer: 64, PingCooldown: 3 * time.Second, PresenceTTL: time.Minute}
	h := NewHub(cfg)
	go h.Run()

	svc := NewService(h, fakeTokens{}, testRooms, store, bus, id, cfg)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		svc.Stop()
		h.Close()
	})
	return &instance{hub: h, svc: svc}
}

// frame is a loose decoding of any server message.
type frame struct {
	Type         string     `json:"type"`
	Code         string     `json:"code"`
	Success      bool       `json:"success"`
	RoomID       string     `json:"room_id"`
	UserID       string     `json:"user_id"`
	From         string     `json:"from"`
	SDP          string     `json:"sdp"`
	IsOwner      bool       `json:"is_owner"`
	Participants []string   `json:"participants"`
	ScreenSharer string     `json:"screen_sharer"`
	State        MediaState `json:"state"`
	Note         string     `json:"note"`
	Event        string     `json:"event"`
	Resource     string     `json:"resource"`
}

func ofType(typ string) func(frame) bool {
	return func(f frame) bool { return f.Type == typ }
}

// expect reads from c until a frame matches, skipping the rest.
func expect(t *testing.T, c *Client, match func(frame) bool) frame {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				t.Fatalf("client %s closed while waiting", c.ID)
			}
			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				t.Fatalf("bad frame %s: %v", raw, err)
			}
			if match(f) {
				return f
			}
		case <-timeout:
			t.Fatalf("client %s: no matching frame", c.ID)
		}
	}
}

func expectNone(t *testing.T, c *Client, match func(frame) bool) {
	t.Helper()
	timeout := time.After(150 * time.Millisecond)
	for {
		select {
		case raw, ok := <-c.Send:
			if !ok {
				return
			}
			var f frame
			_ = json.Unmarshal(raw, &f)
			if match(f) {
				t.Fatalf("client %s: unexpected frame %s", c.ID, raw)
			}
		case <-timeout:
			return
		}
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func connect(t *testing.T, in *instance, userID string) *Client {
	t.Helper()
	c := in.hub.NewClient(userID+"-"+fmt.Sprint(time.Now().UnixNano()), nil)
	in.hub.Register(c)
	if err := in.svc.HandleAuth(context.Background(), c, "token-"+userID); err != nil {
		t.Fatalf("HandleAuth: %v", err)
	}
	if f := expect(t, c, ofType(MsgTypeAuthResult)); !f.Success || f.UserID != userID {
		t.Fatalf("auth_result = %+v", f)
	}
	return c
}

func join(t *testing.T, in *instance, c *Client, roomID string) frame {
	t.Helper()
	if err := in.svc.HandleJoinRoom(context.Background(), c, roomID); err != nil {
		t.Fatalf("HandleJoinRoom: %v", err)
	}
	return expect(t, c, func(f frame) bool { return f.Type == MsgTypeRoomJoined || f.Type == MsgTypeError })
}

func TestAuthAndJoinErrors(t *testing.T) {
	ctx := context.Background()
	in := newInstance(t, "a", presence.NewMemoryStore(), pubsub.NewMemoryPubSub())

	anon := in.hub.NewClient("anon", nil)
	in.hub.Register(anon)
	if err := in.svc.HandleAuth(ctx, anon, "nonsense"); !errors.Is(err, jwt.ErrInvalidToken) {
		t.Fatalf("bad token: got %v", err)
	}
	if f := expect(t, anon, ofType(MsgTypeAuthResult)); f.Success {
		t.Fatal("bad token accepted")
	}
	_ = in.svc.HandleJoinRoom(ctx, anon, "room-1")
	if f := expect(t, anon, ofType(MsgTypeError)); f.Code != ErrCodeUnauthorized {
		t.Fatalf("unauthenticated join: %+v", f)
	}

	alice := connect(t, in, "alice")
	if f := join(t, in, alice, "missing"); f.Code != ErrCodeNotFound {
		t.Fatalf("missing room: %+v", f)
	}
	if f := join(t, in, alice, "old"); f.Code != ErrCodeRoomClosed {
		t.Fatalf("closed room: %+v", f)
	}

	_ = in.svc.HandleToggle(ctx, alice, KindAudio)
	if f := expect(t, alice, ofType(MsgTypeError)); f.Code != ErrCodeForbidden {
		t.Fatalf("toggle outside a room: %+v", f)
	}
}

func TestJoinIntroducesParticipants(t *testing.T) {
	ctx := context.Background()
	store := presence.NewMemoryStore()
	in := newInstance(t, "a", store, pubsub.NewMemoryPubSub())

	alice := connect(t, in, "alice")
	if f := join(t, in, alice, "room-1"); f.Type != MsgTypeRoomJoined || !f.IsOwner || len(f.Participants) != 0 {
		t.Fatalf("alice room_joined = %+v", f)
	}

	bob := connect(t, in, "bob")
	f := join(t, in, bob, "room-1")
	if f.IsOwner || len(f.Participants) != 1 || f.Participants[0] != "alice" {
		t.Fatalf("bob room_joined = %+v", f)
	}

	joined := expect(t, alice, ofType(MsgTypeParticipantJoined))
	if joined.UserID != "bob" || !joined.State.Audio {
		t.Fatalf("participant_joined = %+v", joined)
	}
	state := expect(t, bob, ofType(MsgTypeMediaState))
	if state.UserID != "alice" || state.State.VideoSource != SourceCamera {
		t.Fatalf("introduction = %+v", state)
	}

	if err := in.svc.HandleDisconnect(ctx, bob); err != nil {
		t.Fatalf("HandleDisconnect: %v", err)
	}
	if left := expect(t, alice, ofType(MsgTypeParticipantLeft)); left.UserID != "bob" {
		t.Fatalf("participant_left = %+v", left)
	}
	if member, _ := store.IsMember(ctx, "room-1", "bob"); member {
		t.Fatal("bob still in presence after disconnect")
	}
	if online, _ := store.Online(ctx, []string{"bob"}); online["bob"] {
		t.Fatal("bob still online after disconnect")
	}
}

func TestBroadcastRejectsNonObjectMessage(t *testing.T) {
	in := newInstance(t, "a", presence.NewMemoryStore(), pubsub.NewMemoryPubSub())
	if err := in.svc.broadcast(context.Background(), "room-1", "not an object", ""); err == nil {
		t.Fatal("broadcast of a bare string succeeded")
	}
	if err := in.svc.broadcast(context.Background(), "room-1", ErrorMessage{Type: MsgTypeError, Code: "X"}, ""); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
}

func TestRelayAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := presence.NewMemoryStore()
	bus := pubsub.NewMemoryPubSub()
	a := newInstance(t, "a", store, bus)
	b := newInstance(t, "b", store, bus)

	alice := connect(t, a, "alice")
	join(t, a, alice, "room-1")
	bob := connect(t, b, "bob")
	join(t, b, bob, "room-1")

	if f := expect(t, alice, ofType(MsgTypeParticipantJoined)); f.UserID != "bob" {
		t.Fatalf("alice did not hear bob join: %+v", f)
	}
	if f := expect(t, bob, ofType(MsgTypeMediaState)); f.UserID != "alice" {
		t.Fatalf("bob did not get alice's state: %+v", f)
	}

	if err := b.svc.HandleSessionDescription(ctx, bob, &SessionDescriptionMessage{Type: MsgTypeOffer, To: "alice", SDP: testOffer}); err != nil {
		t.Fatalf("offer: %v", err)
	}
	offer := expect(t, alice, ofType(MsgTypeOffer))
	if offer.From != "bob" || offer.SDP != testOffer {
		t.Fatalf("relayed offer = %+v", offer)
	}

	_ = b.svc.HandleSessionDescription(ctx, bob, &SessionDescriptionMessage{Type: MsgTypeOffer, To: "alice", SDP: "garbage"})
	if f := expect(t, bob, ofType(MsgTypeError)); f.Code != ErrCodeBadRequest {
		t.Fatalf("invalid sdp: %+v", f)
	}
	_ = b.svc.HandleSessionDescription(ctx, bob, &SessionDescriptionMessage{Type: MsgTypeAnswer, To: "carol", SDP: testOffer})
	if f := expect(t, bob, ofType(MsgTypeError)); f.Code != ErrCodeNotFound {
		t.Fatalf("answer to stranger: %+v", f)
	}

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.2 50000 typ host","sdpMid":"0"}`)
	if err := a.svc.HandleICECandidate(ctx, alice, &ICECandidateMessage{Type: MsgTypeICECandidate, To: "bob", Candidate: candidate}); err != nil {
		t.Fatalf("ice: %v", err)
	}
	if f := expect(t, bob, ofType(MsgTypeICECandidate)); f.From != "alice" {
		t.Fatalf("relayed candidate = %+v", f)
	}

	if err := a.svc.HandleToggle(ctx, alice, KindAudio); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	mute := func(f frame) bool { return f.Type == MsgTypeMediaState && f.UserID == "alice" && !f.State.Audio }
	expect(t, alice, mute)
	expect(t, bob, mute)
	expectNone(t, alice, mute)

	if err := b.svc.HandleLeaveRoom(ctx, bob); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if f := expect(t, alice, ofType(MsgTypeParticipantLeft)); f.UserID != "bob" {
		t.Fatalf("participant_left = %+v", f)
	}
}

func TestScreenShareIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := presence.NewMemoryStore()
	in := newInstance(t, "a", store, pubsub.NewMemoryPubSub())

	alice := connect(t, in, "alice")
	join(t, in, alice, "room-1")
	bob := connect(t, in, "bob")
	join(t, in, bob, "room-1")

	_ = in.svc.HandleToggle(ctx, alice, KindScreen)
	sharing := func(f frame) bool {
		return f.Type == MsgTypeMediaState && f.UserID == "alice" && f.State.Screen
	}
	if f := expect(t, bob, sharing); f.State.VideoSource != SourceScreen || !f.State.Video {
		t.Fatalf("share state = %+v", f.State)
	}

	_ = in.svc.HandleToggle(ctx, bob, KindScreen)
	if f := expect(t, bob, ofType(MsgTypeError)); f.Code != ErrCodeConflict {
		t.Fatalf("second sharer: %+v", f)
	}
	if bob.Session.GetMedia().Screen {
		t.Fatal("refused share changed bob's state")
	}

	carol := connect(t, in, "carol")
	if f := join(t, in, carol, "room-1"); f.ScreenSharer != "alice" {
		t.Fatalf("late joiner sees sharer %q", f.ScreenSharer)
	}

	_ = in.svc.HandleScreenShareEnded(ctx, alice)
	ended := expect(t, bob, func(f frame) bool {
		return f.Type == MsgTypeMediaState && f.UserID == "alice" && !f.State.Screen
	})
	if ended.State.VideoSource != SourceCamera {
		t.Fatalf("camera not restored: %+v", ended.State)
	}

	_ = in.svc.HandleToggle(ctx, bob, KindScreen)
	expect(t, bob, func(f frame) bool {
		return f.Type == MsgTypeMediaState && f.UserID == "bob" && f.State.Screen
	})
	if who, _ := store.ScreenSharer(ctx, "room-1"); who != "bob" {
		t.Fatalf("sharer = %q", who)
	}

	// Leaving frees the screen.
	_ = in.svc.HandleLeaveRoom(ctx, bob)
	if who, _ := store.ScreenSharer(ctx, "room-1"); who != "" {
		t.Fatalf("sharer after leave = %q", who)
	}
}

func TestPingUser(t *testing.T) {
	ctx := context.Background()
	in := newInstance(t, "a", presence.NewMemoryStore(), pubsub.NewMemoryPubSub())

	alice := connect(t, in, "alice")
	join(t, in, alice, "room-1")
	bob := connect(t, in, "bob")
	join(t, in, bob, "room-1")

	_ = in.svc.HandlePingUser(ctx, alice, &PingUserMessage{To: "bob", Note: " focus! "})
	if f := expect(t, bob, ofType(MsgTypePingOverlay)); f.From != "alice" || f.Note != "focus!" {
		t.Fatalf("ping_overlay = %+v", f)
	}

	_ = in.svc.HandlePingUser(ctx, alice, &PingUserMessage{To: "bob"})
	if f := expect(t, alice, ofType(MsgTypeError)); f.Code != ErrCodeRateLimited {
		t.Fatalf("second ping: %+v", f)
	}

	_ = in.svc.HandlePingUser(ctx, alice, &PingUserMessage{To: "carol"})
	if f := expect(t, alice, ofType(MsgTypeError)); f.Code != ErrCodeNotFound {
		t.Fatalf("ping outside room: %+v", f)
	}
	_ = in.svc.HandlePingUser(ctx, alice, &PingUserMessage{To: "alice"})
	if f := expect(t, alice, ofType(MsgTypeError)); f.Code != ErrCodeBadRequest {
		t.Fatalf("self ping: %+v", f)
	}
}

func TestRoomClosedEvictsParticipants(t *testing.T) {
	ctx := context.Background()
	store := presence.NewMemoryStore()
	bus := pubsub.NewMemoryPubSub()
	in := newInstance(t, "a", store, bus)

	alice := connect(t, in, "alice")
	join(t, in, alice, "room-1")
	bob := connect(t, in, "bob")
	join(t, in, bob, "room-1")

	msg, _ := json.Marshal(map[string]string{"type": MsgTypeRoomClosed, "room_id": "room-1"})
	event, err := pubsub.NewEvent(pubsub.EventRoomBroadcast, "room-1", pubsub.RelayPayload{Message: msg})
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, pubsub.RoomSignalChannel("room-1"), event); err != nil {
		t.Fatal(err)
	}

	expect(t, alice, ofType(MsgTypeRoomClosed))
	expect(t, bob, ofType(MsgTypeRoomClosed))

	eventually(t, func() bool {
		n, _ := store.Count(ctx, "room-1")
		return n == 0 && len(in.hub.RoomClients("room-1")) == 0
	}, "participants not evicted")
	if alice.Session.GetCurrentRoom() != "" {
		t.Fatal("alice session still in room")
	}
}

func TestSecondConnectionTakesOver(t *testing.T) {
	ctx := context.Background()
	store := presence.NewMemoryStore()
	in := newInstance(t, "a", store, pubsub.NewMemoryPubSub())

	first := connect(t, in, "alice")
	join(t, in, first, "room-1")
	second := connect(t, in, "alice")
	join(t, in, second, "room-1")

	if f := expect(t, first, ofType(MsgTypeError)); f.Code != ErrCodeConflict {
		t.Fatalf("old connection: %+v", f)
	}
	eventually(t, func() bool { return in.hub.ClientCount() == 1 }, "old connection not dropped")

	members, _ := store.Members(ctx, "room-1")
	if len(members) != 1 || members[0] != "alice" {
		t.Fatalf("members = %v", members)
	}
}

func TestTakeoverEndsScreenShare(t *testing.T) {
	ctx := context.Background()
	store := presence.NewMemoryStore()
	in := newInstance(t, "a", store, pubsub.NewMemoryPubSub())

	first := connect(t, in, "alice")
	join(t, in, first, "room-1")
	bob := connect(t, in, "bob")
	join(t, in, bob, "room-1")

	_ = in.svc.HandleToggle(ctx, first, KindScreen)
	expect(t, bob, func(f frame) bool {
		return f.Type == MsgTypeMediaState && f.UserID == "alice" && f.State.Screen
	})

	second := connect(t, in, "alice")
	if f := join(t, in, second, "room-1"); f.ScreenSharer != "" {
		t.Fatalf("new connection sees sharer %q", f.ScreenSharer)
	}
	expect(t, bob, func(f frame) bool {
		return f.Type == MsgTypeMediaState && f.UserID == "alice" && !f.State.Screen
	})
	if who, _ := store.ScreenSharer(ctx, "room-1"); who != "" {
		t.Fatalf("sharer after takeover = %q", who)
	}

	_ = in.svc.HandleToggle(ctx, bob, KindScreen)
	expect(t, bob, func(f frame) bool {
		return f.Type == MsgTypeMediaState && f.UserID == "bob" && f.State.Screen
	})
	if who, _ := store.ScreenSharer(ctx, "room-1"); who != "bob" {
		t.Fatalf("sharer = %q, want bob", who)
	}
}

func TestNotifyUser(t *testing.T) {
	in := newInstance(t, "a", presence.NewMemoryStore(), pubsub.NewMemoryPubSub())
	alice := connect(t, in, "alice")

	in.svc.NotifyUser("alice", pubsub.EventTodoChanged, pubsub.UserEventPayload{UserID: "alice", Resource: "todo", ID: "t1"})
	f := expect(t, alice, ofType(MsgTypeUserEvent))
	if f.Event != pubsub.EventTodoChanged || f.Resource != "todo" {
		t.Fatalf("user_event = %+v", f)
	}
}
