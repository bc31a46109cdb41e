package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/weiawesome/focus-room/pkg/jwt"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/response"
)

const (
	UserIDKey     = "user_id"
	EmailKey      = "email"
	UsernameKey   = "username"
	TierKey       = "tier"
	RolesKey      = "roles"
	ClaimsKey     = "claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	TokenQueryKey = "token"
)

// Tiers, lowest entitlement first.
const (
	TierGuest   = "guest"
	TierFree    = "free"
	TierPremium = "premium"
)

var tierRank = map[string]int{TierGuest: 0, TierFree: 1, TierPremium: 2}

// AuthMiddleware validates JWT access tokens in process.
type AuthMiddleware struct {
	tokens *jwt.Manager
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(tokens *jwt.Manager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequireAuth returns a Gin middleware that validates JWT tokens.
// The token comes from the Authorization header, or from the token query
// parameter for WebSocket upgrades where browsers cannot set headers.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		claims, err := m.tokens.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, tokenErrorMessage(err))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)
		c.Set(EmailKey, claims.Email)
		c.Set(UsernameKey, claims.Username)
		c.Set(TierKey, claims.Tier)
		c.Set(RolesKey, claims.Roles)

		ctx := log.WithStr(c.Request.Context(), log.FieldUserID, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireTier rejects callers below the given tier. It must run after
// RequireAuth.
func (m *AuthMiddleware) RequireTier(min string, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !TierAtLeast(GetTier(c), min) {
			response.Abort(c, http.StatusForbidden, message)
			return
		}
		c.Next()
	}
}

// RequireRegistered rejects guest sessions.
func (m *AuthMiddleware) RequireRegistered() gin.HandlerFunc {
	return m.RequireTier(TierFree, "guests cannot use this feature")
}

// TierAtLeast reports whether tier grants at least min. Unknown tiers rank
// as guest.
func TierAtLeast(tier, min string) bool {
	return tierRank[tier] >= tierRank[min]
}

func extractToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader(AuthHeaderKey); header != "" {
		if !strings.HasPrefix(header, BearerPrefix) {
			return "", false
		}
		token := strings.TrimPrefix(header, BearerPrefix)
		return token, token != ""
	}
	if token := c.Query(TokenQueryKey); token != "" {
		return token, true
	}
	return "", false
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrExpiredToken):
		return "token has expired"
	case errors.Is(err, jwt.ErrRevokedToken):
		return "token has been revoked"
	case errors.Is(err, jwt.ErrWrongType):
		return "access token required"
	default:
		return "invalid token"
	}
}

// GetUserID extracts user ID from Gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetUsername extracts username from Gin context.
func GetUsername(c *gin.Context) string {
	return c.GetString(UsernameKey)
}

// GetEmail extracts email from Gin context.
func GetEmail(c *gin.Context) string {
	return c.GetString(EmailKey)
}

// GetTier extracts the tier from Gin context.
func GetTier(c *gin.Context) string {
	return c.GetString(TierKey)
}

// GetRoles extracts roles from Gin context.
func GetRoles(c *gin.Context) []string {
	return c.GetStringSlice(RolesKey)
}

// GetClaims returns the validated claims, or nil outside RequireAuth.
func GetClaims(c *gin.Context) *jwt.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*jwt.Claims); ok {
			return claims
		}
	}
	return nil
}
