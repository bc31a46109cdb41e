package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
)

func newFriendService(f *fixture) FriendService {
	return NewFriendService(f.friends, f.users, f.users, f.presence, events.Nop{}, f.present, 10, 50)
}

func TestFriendRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newFriendService(f)
	alice := f.user(t, "alice", domain.TierFree)
	bob := f.user(t, "bob", domain.TierFree)

	if _, err := svc.Request(ctx, alice.ID, &domain.FriendRequestRequest{UserID: alice.ID}); !errors.Is(err, ErrSelfFriendRequest) {
		t.Fatalf("self request: got %v", err)
	}
	if _, err := svc.Request(ctx, alice.ID, &domain.FriendRequestRequest{}); !errors.Is(err, ErrFriendTargetRequired) {
		t.Fatalf("no target: got %v", err)
	}

	req, err := svc.Request(ctx, alice.ID, &domain.FriendRequestRequest{Username: "bob"})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if req.Status != domain.FriendshipPending || req.Direction != "outgoing" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if _, err := svc.Request(ctx, alice.ID, &domain.FriendRequestRequest{UserID: bob.ID}); !errors.Is(err, ErrFriendRequestPending) {
		t.Fatalf("duplicate request: got %v", err)
	}

	pending, err := svc.Requests(ctx, bob.ID)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(pending.Incoming) != 1 || pending.Incoming[0].User.ID != alice.ID {
		t.Fatalf("incoming = %+v", pending.Incoming)
	}

	if _, err := svc.Accept(ctx, alice.ID, req.ID); !errors.Is(err, ErrNotRequestAddressee) {
		t.Fatalf("requester accepting: got %v", err)
	}
	if err := f.presence.SetOnline(ctx, alice.ID, time.Minute); err != nil {
		t.Fatal(err)
	}
	accepted, err := svc.Accept(ctx, bob.ID, req.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.User.ID != alice.ID || !accepted.Online {
		t.Fatalf("accepted = %+v", accepted)
	}
	if _, err := svc.Accept(ctx, bob.ID, req.ID); !errors.Is(err, ErrFriendRequestHandled) {
		t.Fatalf("accept twice: got %v", err)
	}

	ok, err := svc.AreFriends(ctx, bob.ID, alice.ID)
	if err != nil || !ok {
		t.Fatalf("AreFriends = %v, %v", ok, err)
	}
	list, err := svc.List(ctx, alice.ID)
	if err != nil || len(list) != 1 || list[0].User.ID != bob.ID {
		t.Fatalf("List = %+v, %v", list, err)
	}

	if _, err := svc.Request(ctx, bob.ID, &domain.FriendRequestRequest{UserID: alice.ID}); !errors.Is(err, ErrAlreadyFriends) {
		t.Fatalf("request to friend: got %v", err)
	}

	if err := svc.Remove(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := svc.Remove(ctx, alice.ID, bob.ID); !errors.Is(err, ErrNotFriends) {
		t.Fatalf("remove twice: got %v", err)
	}
}

func TestMutualRequestIsAccepted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newFriendService(f)
	alice := f.user(t, "alice", domain.TierFree)
	bob := f.user(t, "bob", domain.TierFree)

	if _, err := svc.Request(ctx, alice.ID, &domain.FriendRequestRequest{UserID: bob.ID}); err != nil {
		t.Fatalf("Request: %v", err)
	}
	resp, err := svc.Request(ctx, bob.ID, &domain.FriendRequestRequest{UserID: alice.ID})
	if err != nil {
		t.Fatalf("mutual Request: %v", err)
	}
	if resp.Status != domain.FriendshipAccepted {
		t.Fatalf("status = %s, want accepted", resp.Status)
	}
}

func TestRejectedRequestCanBeResent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newFriendService(f)
	alice := f.user(t, "alice", domain.TierFree)
	bob := f.user(t, "bob", domain.TierFree)

	req, err := svc.Request(ctx, alice.ID, &domain.FriendRequestRequest{UserID: bob.ID})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := svc.Reject(ctx, bob.ID, req.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	again, err := svc.Request(ctx, bob.ID, &domain.FriendRequestRequest{UserID: alice.ID})
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if again.Status != domain.FriendshipPending || again.ID != req.ID {
		t.Fatalf("expected the rejected row reopened, got %+v", again)
	}

	if _, err := svc.Request(ctx, domain.GuestIDPrefix+"x", &domain.FriendRequestRequest{UserID: bob.ID}); !errors.Is(err, ErrGuestNotAllowed) {
		t.Fatalf("guest request: got %v", err)
	}
}

func TestFriendSearchRelations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newFriendService(f)
	alice := f.user(t, "alice", domain.TierFree)
	f.user(t, "albert", domain.TierFree)
	alfie := f.user(t, "alfie", domain.TierFree)
	f.befriend(t, alice, alfie)

	results, err := svc.Search(ctx, alice.ID, &domain.FriendSearchRequest{Query: "al"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (self excluded)", len(results))
	}
	relations := map[string]string{}
	for _, r := range results {
		relations[r.User.Username] = r.Relation
	}
	if relations["alfie"] != domain.RelationFriends || relations["albert"] != domain.RelationNone {
		t.Fatalf("relations = %v", relations)
	}
}

func TestFriendSearchRejectsBlankQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newFriendService(f)
	alice := f.user(t, "alice", domain.TierFree)
	f.user(t, "bob", domain.TierFree)

	for _, q := range []string{"", "   ", "\t"} {
		results, err := svc.Search(ctx, alice.ID, &domain.FriendSearchRequest{Query: q})
		if !errors.Is(err, ErrSearchQueryRequired) {
			t.Errorf("query %q: got %d results, err %v; want ErrSearchQueryRequired", q, len(results), err)
		}
	}
}

func TestGuestsCannotUseFriends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newFriendService(f)
	f.user(t, "alice", domain.TierFree)
	guest := domain.GuestIDPrefix + "visitor"

	checks := map[string]error{}
	_, checks["Request"] = svc.Request(ctx, guest, &domain.FriendRequestRequest{Username: "alice"})
	_, checks["Accept"] = svc.Accept(ctx, guest, "any")
	checks["Reject"] = svc.Reject(ctx, guest, "any")
	checks["Remove"] = svc.Remove(ctx, guest, "any")
	_, checks["List"] = svc.List(ctx, guest)
	_, checks["Requests"] = svc.Requests(ctx, guest)
	_, checks["Search"] = svc.Search(ctx, guest, &domain.FriendSearchRequest{Query: "alice@"})

	for op, err := range checks {
		if !errors.Is(err, ErrGuestNotAllowed) {
			t.Errorf("%s as guest: got %v, want ErrGuestNotAllowed", op, err)
		}
	}
}
