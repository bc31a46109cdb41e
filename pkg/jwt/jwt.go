package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
	ErrWrongType    = errors.New("wrong token type")
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims represents JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string   `json:"user_id"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Tier     string   `json:"tier"`
	Roles    []string `json:"roles"`
	Type     string   `json:"type"` // "access" or "refresh"
	// IssuedAtMilli is iat in milliseconds. Revocation cutoffs compare
	// against it because iat only has second precision.
	IssuedAtMilli int64 `json:"iat_ms,omitempty"`
}

// Identity is the subject a token pair is issued for.
type Identity struct {
	UserID   string
	Email    string
	Username string
	Tier     string
	Roles    []string
}

// TokenPair is an issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  int64
	RefreshExpiresAt int64
}

// Config configures a Manager.
type Config struct {
	// Secret selects HS256 when set. Without it an RSA key is generated at
	// startup and tokens do not survive a restart.
	Secret          string
	AccessDuration  time.Duration
	RefreshDuration time.Duration
	Issuer          string
}

// Manager handles JWT operations.
type Manager struct {
	method          jwt.SigningMethod
	signKey         interface{}
	verifyKey       interface{}
	accessDuration  time.Duration
	refreshDuration time.Duration
	issuer          string
	revocations     RevocationStore
	now             func() time.Time
	// floor is the latest user cutoff set by this manager, in
	// milliseconds. Tokens are always issued after it.
	floor atomic.Int64
}

// NewManager creates a new JWT manager. A nil store falls back to an
// in-memory one.
func NewManager(cfg Config, store RevocationStore) (*Manager, error) {
	m := &Manager{
		accessDuration:  cfg.AccessDuration,
		refreshDuration: cfg.RefreshDuration,
		issuer:          cfg.Issuer,
		revocations:     store,
		now:             time.Now,
	}
	if m.revocations == nil {
		m.revocations = NewMemoryRevocationStore()
	}

	if cfg.Secret != "" {
		m.method = jwt.SigningMethodHS256
		m.signKey = []byte(cfg.Secret)
		m.verifyKey = []byte(cfg.Secret)
		return m, nil
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	m.method = jwt.SigningMethodRS256
	m.signKey = privateKey
	m.verifyKey = &privateKey.PublicKey
	return m, nil
}

// GenerateTokenPair creates access and refresh tokens.
func (m *Manager) GenerateTokenPair(id Identity) (*TokenPair, error) {
	now := m.now()
	issued := max(now.UnixMilli(), m.floor.Load()+1)

	accessExp := now.Add(m.accessDuration)
	access, err := m.signToken(m.claims(id, TypeAccess, now, issued, accessExp))
	if err != nil {
		return nil, err
	}

	refreshExp := now.Add(m.refreshDuration)
	refresh, err := m.signToken(m.claims(id, TypeRefresh, now, issued, refreshExp))
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp.Unix(),
		RefreshExpiresAt: refreshExp.Unix(),
	}, nil
}

func (m *Manager) claims(id Identity, typ string, now time.Time, issuedMs int64, exp time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:        id.UserID,
		Email:         id.Email,
		Username:      id.Username,
		Tier:          id.Tier,
		Roles:         id.Roles,
		Type:          typ,
		IssuedAtMilli: issuedMs,
	}
}

// ValidateToken validates a token of any type and returns claims.
func (m *Manager) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != m.method.Alg() {
			return nil, ErrInvalidToken
		}
		return m.verifyKey, nil
	}, jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	revoked, err := m.isRevoked(ctx, claims)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// ValidateAccessToken validates a token and requires it to be an access token.
func (m *Manager) ValidateAccessToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, ErrWrongType
	}
	return claims, nil
}

// ParseRefreshToken validates a refresh token without rotating it.
func (m *Manager) ParseRefreshToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.ValidateToken(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, ErrWrongType
	}
	return claims, nil
}

// RefreshTokens rotates a refresh token: the presented token's jti is
// revoked and a new pair is issued for id. Callers pass an id loaded from
// storage so tier changes apply on refresh.
func (m *Manager) RefreshTokens(ctx context.Context, claims *Claims, id Identity) (*TokenPair, error) {
	if err := m.RevokeClaims(ctx, claims); err != nil {
		return nil, err
	}
	return m.GenerateTokenPair(id)
}

// RevokeClaims revokes a single token by its jti.
func (m *Manager) RevokeClaims(ctx context.Context, claims *Claims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	return m.revocations.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time)
}

// RevokeUserTokens revokes every token issued to the user up to now.
// Pairs this manager issues afterwards stay valid, even within the same
// millisecond.
func (m *Manager) RevokeUserTokens(ctx context.Context, userID string) error {
	cutoff := m.now().UnixMilli()
	for {
		prev := m.floor.Load()
		if prev >= cutoff || m.floor.CompareAndSwap(prev, cutoff) {
			break
		}
	}
	return m.revocations.RevokeUser(ctx, userID, time.UnixMilli(cutoff), m.refreshDuration)
}

func issuedMilli(claims *Claims) (int64, bool) {
	if claims.IssuedAtMilli > 0 {
		return claims.IssuedAtMilli, true
	}
	if claims.IssuedAt != nil {
		return claims.IssuedAt.Time.UnixMilli(), true
	}
	return 0, false
}

func (m *Manager) isRevoked(ctx context.Context, claims *Claims) (bool, error) {
	if claims.ID != "" {
		revoked, err := m.revocations.IsTokenRevoked(ctx, claims.ID)
		if err != nil || revoked {
			return revoked, err
		}
	}

	cutoff, ok, err := m.revocations.UserCutoff(ctx, claims.UserID)
	if err != nil || !ok {
		return false, err
	}
	issued, ok := issuedMilli(claims)
	if !ok {
		return true, nil
	}
	return issued <= cutoff.UnixMilli(), nil
}

func (m *Manager) signToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(m.method, claims)
	return token.SignedString(m.signKey)
}
