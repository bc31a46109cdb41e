package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

type recordingDashboards struct {
	cache.NoopDashboard
	mu          sync.Mutex
	invalidated []string
}

func (r *recordingDashboards) Invalidate(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated = append(r.invalidated, userID)
	return nil
}

func (r *recordingDashboards) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.invalidated...)
}

type recordingUsers struct {
	cache.Noop
	deleted []string
}

func (r *recordingUsers) Delete(_ context.Context, keys ...string) error {
	r.deleted = append(r.deleted, keys...)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingNotifier) NotifyUser(userID, eventType string, _ pubsub.UserEventPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID+":"+eventType)
}

func TestHandleInvalidatesDashboard(t *testing.T) {
	dash := &recordingDashboards{}
	users := &recordingUsers{}
	notifier := &recordingNotifier{}
	c := NewConsumer(pubsub.NewMemoryPubSub(), dash, users, notifier)

	event, _ := pubsub.NewEvent(pubsub.EventTodoChanged, "", pubsub.UserEventPayload{UserID: "u1"})
	c.Handle(context.Background(), event)

	if got := dash.get(); len(got) != 1 || got[0] != "u1" {
		t.Fatalf("invalidated = %v", got)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != "u1:todo.changed" {
		t.Fatalf("notified = %v", notifier.calls)
	}
}

func TestHandleProfileChangedDropsUserCache(t *testing.T) {
	dash := &recordingDashboards{}
	users := &recordingUsers{}
	c := NewConsumer(pubsub.NewMemoryPubSub(), dash, users, nil)

	event, _ := pubsub.NewEvent(pubsub.EventProfileChanged, "", pubsub.UserEventPayload{UserID: "u2"})
	c.Handle(context.Background(), event)

	if len(users.deleted) != 1 || users.deleted[0] != "u2" {
		t.Fatalf("deleted = %v", users.deleted)
	}
	if len(dash.get()) != 0 {
		t.Fatal("profile change should not touch the dashboard")
	}
}

func TestConsumerReceivesEmittedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := pubsub.NewMemoryPubSub()
	dash := &recordingDashboards{}
	c := NewConsumer(bus, dash, &recordingUsers{}, nil)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	NewBusEmitter(bus, "instance-a").Emit(ctx, pubsub.EventSessionRecorded, "u3", "session", "s1")

	deadline := time.Now().Add(2 * time.Second)
	for len(dash.get()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := dash.get(); len(got) != 1 || got[0] != "u3" {
		t.Fatalf("invalidated = %v", got)
	}

	cancel()
	c.Wait()
}
