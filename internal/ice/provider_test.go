package ice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/weiawesome/focus-room/internal/config"
)

func TestICEServersPrependsFallbackSTUN(t *testing.T) {
	p := NewProvider(config.WebRTCConfig{
		ICEServers: []config.ICEServerConfig{
			{URLs: []string{"turn:turn.example.com:3478"}, Username: "u", Credential: "c"},
		},
	})

	servers := p.ICEServers(context.Background())
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if servers[0].URLs[0] != FallbackSTUN {
		t.Errorf("first server = %v, want fallback STUN", servers[0].URLs)
	}
	if servers[1].Username != "u" {
		t.Errorf("configured server lost its username")
	}
}

func TestICEServersKeepsConfiguredSTUN(t *testing.T) {
	p := NewProvider(config.WebRTCConfig{
		ICEServers: []config.ICEServerConfig{{URLs: []string{"stun:stun.example.com:3478"}}},
	})

	servers := p.ICEServers(context.Background())
	if len(servers) != 1 || servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("servers = %+v", servers)
	}
}

func TestTURNCredentialsAreCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "Bearer secret-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"iceServers":{"urls":["turn:turn.cloudflare.com:3478"],"username":"cf","credential":"pw"}}`))
	}))
	defer srv.Close()

	p := NewProvider(config.WebRTCConfig{TurnKeyID: "id", TurnKey: "secret-key", TurnTTL: time.Hour})
	p.turnURL = srv.URL
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	servers := p.ICEServers(context.Background())
	if len(servers) != 2 || servers[1].Username != "cf" {
		t.Fatalf("servers = %+v", servers)
	}

	p.ICEServers(context.Background())
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("TURN API called %d times, want 1", got)
	}

	now = now.Add(31 * time.Minute)
	p.ICEServers(context.Background())
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("TURN API called %d times after expiry, want 2", got)
	}
}

func TestTURNFailureFallsBackToStatic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProvider(config.WebRTCConfig{TurnKeyID: "id", TurnKey: "secret-key"})
	p.turnURL = srv.URL

	servers := p.ICEServers(context.Background())
	if len(servers) != 1 || servers[0].URLs[0] != FallbackSTUN {
		t.Fatalf("servers = %+v", servers)
	}
}

func TestMaskKey(t *testing.T) {
	cases := map[string]string{"": "<empty>", "short": "***", "0123456789": "0123...6789"}
	for in, want := range cases {
		if got := maskKey(in); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}
