package ice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/weiawesome/focus-room/internal/config"
	pkglog "github.com/weiawesome/focus-room/pkg/log"
)

// FallbackSTUN is prepended when no STUN server is configured.
const FallbackSTUN = "stun:stun.l.google.com:19302"

const cloudflareTURNURL = "https://rtc.live.cloudflare.com/v1/turn/keys/%s/credentials/generate"

// Provider serves the ICE server list handed to WebRTC clients.
type Provider struct {
	static    []webrtc.ICEServer
	turnKeyID string
	turnKey   string
	turnTTL   time.Duration
	turnURL   string
	client    *http.Client
	now       func() time.Time

	mu         sync.Mutex
	turn       *webrtc.ICEServer
	turnExpiry time.Time
}

func NewProvider(cfg config.WebRTCConfig) *Provider {
	static := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		static = append(static, server)
	}

	ttl := cfg.TurnTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	p := &Provider{
		static:    static,
		turnKeyID: cfg.TurnKeyID,
		turnKey:   cfg.TurnKey,
		turnTTL:   ttl,
		turnURL:   fmt.Sprintf(cloudflareTURNURL, cfg.TurnKeyID),
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
	}

	logger := pkglog.L()
	if p.turnEnabled() {
		logger.Info().Str("turn_key_id", cfg.TurnKeyID).Str("turn_key", maskKey(cfg.TurnKey)).Msg("TURN configuration loaded")
	} else {
		logger.Info().Msg("TURN credentials not configured")
	}
	return p
}

func (p *Provider) turnEnabled() bool {
	return p.turnKeyID != "" && p.turnKey != ""
}

// ICEServers returns the configured servers, a fallback STUN server when
// none is configured, and short-lived TURN credentials when available.
// A TURN failure is logged and the static list is still returned.
func (p *Provider) ICEServers(ctx context.Context) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(p.static)+2)
	if !hasSTUN(p.static) {
		servers = append(servers, webrtc.ICEServer{URLs: []string{FallbackSTUN}})
	}
	servers = append(servers, p.static...)

	if !p.turnEnabled() {
		return servers
	}

	turn, err := p.turnServer(ctx)
	if err != nil {
		l := pkglog.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to get TURN credentials")
		return servers
	}
	return append(servers, *turn)
}

// turnServer returns cached credentials until half their lifetime has passed.
func (p *Provider) turnServer(ctx context.Context) (*webrtc.ICEServer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.turn != nil && p.now().Before(p.turnExpiry) {
		return p.turn, nil
	}

	turn, err := p.fetchTURN(ctx)
	if err != nil {
		return nil, err
	}
	p.turn = turn
	p.turnExpiry = p.now().Add(p.turnTTL / 2)
	return turn, nil
}

type cloudflareTURNResponse struct {
	ICEServers struct {
		URLs       []string `json:"urls"`
		Username   string   `json:"username"`
		Credential string   `json:"credential"`
	} `json:"iceServers"`
}

func (p *Provider) fetchTURN(ctx context.Context) (*webrtc.ICEServer, error) {
	reqBody := []byte(fmt.Sprintf(`{"ttl": %d}`, int(p.turnTTL.Seconds())))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.turnURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.turnKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call TURN API: %w", err)
	}
	defer resp.Body.Close()

	// Cloudflare answers 201 on success.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("TURN API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var turnResp cloudflareTURNResponse
	if err := json.NewDecoder(resp.Body).Decode(&turnResp); err != nil {
		return nil, fmt.Errorf("failed to decode TURN response: %w", err)
	}

	return &webrtc.ICEServer{
		URLs:           turnResp.ICEServers.URLs,
		Username:       turnResp.ICEServers.Username,
		Credential:     turnResp.ICEServers.Credential,
		CredentialType: webrtc.ICECredentialTypePassword,
	}, nil
}

func hasSTUN(servers []webrtc.ICEServer) bool {
	for _, s := range servers {
		for _, u := range s.URLs {
			if strings.HasPrefix(u, "stun:") || strings.HasPrefix(u, "stuns:") {
				return true
			}
		}
	}
	return false
}

// maskKey masks a key for logging purposes
func maskKey(key string) string {
	if key == "" {
		return "<empty>"
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
