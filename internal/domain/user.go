package domain

import (
	"strings"
	"time"
)

// Tiers. The string values are shared with the token claims.
const (
	TierGuest   = "guest"
	TierFree    = "free"
	TierPremium = "premium"
)

// Themes accepted by UpdatePreferences.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// GuestIDPrefix marks identities that have no user row.
const GuestIDPrefix = "guest_"

// AvatarObjects holds the storage keys of each processed avatar size.
type AvatarObjects struct {
	Sm string `json:"sm,omitempty"`
	Md string `json:"md,omitempty"`
	Lg string `json:"lg,omitempty"`
}

// Keys returns the non-empty keys.
func (a *AvatarObjects) Keys() []string {
	if a == nil {
		return nil
	}
	keys := make([]string, 0, 3)
	for _, k := range []string{a.Sm, a.Md, a.Lg} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// AvatarURLs holds generated URLs for the different avatar sizes (response DTO only).
type AvatarURLs struct {
	Sm string `json:"sm,omitempty"` // 48px
	Md string `json:"md,omitempty"` // 128px
	Lg string `json:"lg,omitempty"` // 512px
}

type Preferences struct {
	Theme string `json:"theme"`
}

// User represents a registered account.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Username      string         `json:"username"`
	DisplayName   string         `json:"display_name,omitempty"`
	PasswordHash  string         `json:"-"`
	Tier          string         `json:"tier"`
	Roles         []string       `json:"roles"`
	OIDCSubject   string         `json:"-"`
	AvatarObjects *AvatarObjects `json:"-"`
	Preferences   Preferences    `json:"preferences"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Name is what other participants see.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// IsGuestID reports whether id belongs to an ephemeral guest identity.
func IsGuestID(id string) bool {
	return strings.HasPrefix(id, GuestIDPrefix)
}

// SignupRequest represents a registration request.
type SignupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Password    string `json:"password" binding:"required,min=6,max=72"`
	DisplayName string `json:"display_name" binding:"max=100"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// GuestLoginRequest starts a guest session.
type GuestLoginRequest struct {
	DisplayName string `json:"display_name" binding:"max=100"`
}

// RefreshTokenRequest represents a refresh token request.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UpdateProfileRequest represents an update profile request.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=100"`
}

// ChangePasswordRequest represents a change password request.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6,max=72"`
}

// UpgradeRequest moves an account between the paid and free tiers.
type UpgradeRequest struct {
	Tier string `json:"tier" binding:"required,oneof=free premium"`
}

type PreferencesRequest struct {
	Theme string `json:"theme" binding:"required,oneof=light dark system"`
}

// AuthResponse represents authentication response with tokens.
type AuthResponse struct {
	User             UserResponse `json:"user"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	ExpiresAt        int64        `json:"expires_at"`
	RefreshExpiresAt int64        `json:"refresh_expires_at"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID          string      `json:"id"`
	Email       string      `json:"email,omitempty"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name,omitempty"`
	Tier        string      `json:"tier"`
	Roles       []string    `json:"roles"`
	AvatarURLs  *AvatarURLs `json:"avatar_urls,omitempty"`
	Preferences Preferences `json:"preferences"`
	Guest       bool        `json:"guest,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ToResponse converts User to UserResponse without avatar URLs.
// The service layer is responsible for populating AvatarURLs from AvatarObjects.
func (u *User) ToResponse() UserResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Tier:        u.Tier,
		Roles:       roles,
		Preferences: u.Preferences,
		Guest:       u.Tier == TierGuest,
		CreatedAt:   u.CreatedAt,
	}
}

// UserSummary is the public view of another user.
type UserSummary struct {
	ID          string      `json:"id"`
	Username    string      `json:"username"`
	DisplayName string      `json:"display_name,omitempty"`
	Tier        string      `json:"tier"`
	AvatarURLs  *AvatarURLs `json:"avatar_urls,omitempty"`
}

func (u *User) ToSummary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Tier:        u.Tier,
	}
}
