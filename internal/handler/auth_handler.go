package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/middleware"
	"github.com/weiawesome/focus-room/pkg/response"
)

const (
	oidcStateCookie = "oidc_state"
	oidcStateMaxAge = 600
)

// Signup handles user registration.
func (h *Handler) Signup(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid signup request")
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Signup(ctx, &req)
	if err != nil {
		respondError(c, err, "create user")
		return
	}

	response.Created(c, resp)
}

// Login handles user login.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Login(ctx, &req)
	if err != nil {
		respondError(c, err, "login")
		return
	}

	response.Success(c, resp)
}

// GuestLogin starts a guest session. The body is optional.
func (h *Handler) GuestLogin(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.GuestLoginRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	resp, err := h.auth.GuestLogin(ctx, &req)
	if err != nil {
		respondError(c, err, "start guest session")
		return
	}

	response.Created(c, resp)
}

// Refresh handles token refresh.
func (h *Handler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.auth.Refresh(ctx, &req)
	if err != nil {
		respondError(c, err, "refresh token")
		return
	}

	response.Success(c, resp)
}

// Logout revokes every token of the caller.
func (h *Handler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Unauthorized(c, "missing token claims")
		return
	}

	if err := h.auth.Logout(ctx, claims); err != nil {
		respondError(c, err, "logout")
		return
	}

	response.Success(c, gin.H{"message": "logged out successfully"})
}

// OIDCLogin redirects to the identity provider.
func (h *Handler) OIDCLogin(c *gin.Context) {
	if !h.auth.OIDCEnabled() {
		response.ServiceUnavailable(c, "single sign-on is not configured")
		return
	}

	state := uuid.NewString()
	url, err := h.auth.OIDCLoginURL(state)
	if err != nil {
		respondError(c, err, "start single sign-on")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oidcStateCookie, state, oidcStateMaxAge, "/api/auth/oidc", "", c.Request.TLS != nil, true)
	c.Redirect(http.StatusFound, url)
}

// OIDCCallback exchanges the authorization code for a token pair.
func (h *Handler) OIDCCallback(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	state, err := c.Cookie(oidcStateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		l.Warn().Msg("oidc state mismatch")
		response.BadRequest(c, "invalid state")
		return
	}
	c.SetCookie(oidcStateCookie, "", -1, "/api/auth/oidc", "", c.Request.TLS != nil, true)

	code := c.Query("code")
	if code == "" {
		response.BadRequest(c, "missing code")
		return
	}

	resp, err := h.auth.OIDCCallback(ctx, code)
	if err != nil {
		respondError(c, err, "complete single sign-on")
		return
	}

	response.Success(c, resp)
}

// GetProfile returns the caller's profile. Guests have no stored row, so
// theirs is rebuilt from the token.
func (h *Handler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	if domain.IsGuestID(userID) {
		response.Success(c, guestProfile(c))
		return
	}

	user, err := h.users.GetProfile(ctx, userID)
	if err != nil {
		respondError(c, err, "get profile")
		return
	}

	response.Success(c, user)
}

func guestProfile(c *gin.Context) domain.UserResponse {
	roles := middleware.GetRoles(c)
	if roles == nil {
		roles = []string{}
	}
	var created time.Time
	if claims := middleware.GetClaims(c); claims != nil && claims.IssuedAt != nil {
		created = claims.IssuedAt.Time
	}
	return domain.UserResponse{
		ID:          middleware.GetUserID(c),
		Username:    middleware.GetUsername(c),
		DisplayName: middleware.GetUsername(c),
		Tier:        domain.TierGuest,
		Roles:       roles,
		Preferences: domain.Preferences{Theme: domain.ThemeSystem},
		Guest:       true,
		CreatedAt:   created,
	}
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.users.UpdateProfile(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "update profile")
		return
	}

	response.Success(c, user)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.users.ChangePassword(ctx, middleware.GetUserID(c), &req); err != nil {
		respondError(c, err, "change password")
		return
	}

	response.Success(c, gin.H{"message": "password changed successfully"})
}

// Upgrade switches tiers and returns a fresh token pair carrying the new tier.
func (h *Handler) Upgrade(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.users.Upgrade(ctx, middleware.GetUserID(c), req.Tier)
	if err != nil {
		respondError(c, err, "change tier")
		return
	}

	response.Success(c, resp)
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.PreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	user, err := h.users.UpdatePreferences(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "update preferences")
		return
	}

	response.Success(c, user)
}

// UploadAvatar accepts a multipart "avatar" file.
func (h *Handler) UploadAvatar(c *gin.Context) {
	ctx := c.Request.Context()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarUpload)
	fh, err := c.FormFile("avatar")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.TooLarge(c, "avatar is too large")
			return
		}
		response.BadRequest(c, "avatar file is required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "failed to read avatar")
		return
	}
	defer f.Close()

	user, err := h.users.UploadAvatar(ctx, middleware.GetUserID(c), f)
	if err != nil {
		respondError(c, err, "upload avatar")
		return
	}

	response.Success(c, user)
}

func (h *Handler) DeleteAvatar(c *gin.Context) {
	user, err := h.users.DeleteAvatar(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "delete avatar")
		return
	}

	response.Success(c, user)
}

// DeleteAccount removes the caller's account and revokes their tokens.
func (h *Handler) DeleteAccount(c *gin.Context) {
	if err := h.users.DeleteAccount(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, err, "delete account")
		return
	}

	response.Success(c, gin.H{"message": "account deleted"})
}
