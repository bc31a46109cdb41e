package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChannelTopic(t *testing.T) {
	tests := []struct {
		channel string
		topic   string
		key     string
		wantErr bool
	}{
		{channel: RoomSignalChannel("R1"), topic: "room-signal", key: "R1"},
		{channel: UserEventsChannel("U9"), topic: "user-events", key: "U9"},
		{channel: "room:R1", wantErr: true},
		{channel: "room::signal", wantErr: true},
	}

	for _, tt := range tests {
		topic, key, err := channelTopic(tt.channel)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidChannel) {
				t.Errorf("%q: got %v, want ErrInvalidChannel", tt.channel, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tt.channel, err)
		}
		if topic != tt.topic || key != tt.key {
			t.Errorf("%q -> (%q, %q), want (%q, %q)", tt.channel, topic, key, tt.topic, tt.key)
		}
	}
}

func TestPatternTopic(t *testing.T) {
	topic, err := patternTopic(PatternUserEvents)
	if err != nil || topic != "user-events" {
		t.Errorf("patternTopic(%q) = %q, %v", PatternUserEvents, topic, err)
	}
	if _, err := patternTopic("room:R1:signal"); err == nil {
		t.Error("expected error for a non-wildcard pattern")
	}
}

func TestGroupSafe(t *testing.T) {
	if got := groupSafe("room:*:signal"); got != "room---signal" {
		t.Errorf("groupSafe = %q", got)
	}
}

func TestEventFromOrigin(t *testing.T) {
	ev := &Event{Origin: "node-a"}
	if !ev.FromOrigin("node-a") || ev.FromOrigin("node-b") || ev.FromOrigin("") {
		t.Error("FromOrigin mismatch")
	}
	if (&Event{}).FromOrigin("") {
		t.Error("empty origin must never match")
	}
}

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestMemoryPubSub(t *testing.T) {
	ps := NewMemoryPubSub()
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exact, err := ps.Subscribe(ctx, RoomSignalChannel("R1"))
	if err != nil {
		t.Fatal(err)
	}
	pattern, err := ps.SubscribePattern(ctx, PatternRoomSignal)
	if err != nil {
		t.Fatal(err)
	}

	ev, err := NewEvent(EventRoomBroadcast, "R1", RelayPayload{Message: []byte(`{"type":"pong"}`)})
	if err != nil {
		t.Fatal(err)
	}
	ev.Origin = "node-a"

	if err := ps.Publish(ctx, RoomSignalChannel("R1"), ev); err != nil {
		t.Fatal(err)
	}

	for _, ch := range []<-chan *Event{exact, pattern} {
		got := receive(t, ch)
		if got.Type != EventRoomBroadcast || got.RoomID != "R1" || got.Origin != "node-a" {
			t.Errorf("unexpected event %+v", got)
		}
		var payload RelayPayload
		if err := got.UnmarshalPayload(&payload); err != nil {
			t.Fatal(err)
		}
		if string(payload.Message) != `{"type":"pong"}` {
			t.Errorf("payload message = %s", payload.Message)
		}
	}

	// Other rooms only reach the pattern subscriber.
	if err := ps.Publish(ctx, RoomSignalChannel("R2"), ev); err != nil {
		t.Fatal(err)
	}
	receive(t, pattern)
	select {
	case got := <-exact:
		t.Errorf("exact subscriber received foreign event %+v", got)
	default:
	}
}

func TestMemoryPubSubUnsubscribeClosesChannel(t *testing.T) {
	ps := NewMemoryPubSub()
	ctx := context.Background()

	ch, _ := ps.Subscribe(ctx, UserEventsChannel("U1"))
	if err := ps.Unsubscribe(ctx, UserEventsChannel("U1")); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}
}

func TestMemoryPubSubContextCancel(t *testing.T) {
	ps := NewMemoryPubSub()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := ps.Subscribe(ctx, UserEventsChannel("U1"))
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
