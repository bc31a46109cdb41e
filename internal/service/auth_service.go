package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/focus-room/internal/audit"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/oidc"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/pkg/idgen"
	"github.com/weiawesome/focus-room/pkg/jwt"
	"github.com/weiawesome/focus-room/pkg/log"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailExists        = errors.New("email already registered")
	ErrUsernameExists     = errors.New("username already taken")
	ErrOIDCDisabled       = errors.New("single sign-on is not configured")
	ErrOIDCEmailRequired  = errors.New("identity provider did not return a verified email")
)

// AuthService issues and revokes tokens.
type AuthService interface {
	Signup(ctx context.Context, req *domain.SignupRequest) (*domain.AuthResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error)
	GuestLogin(ctx context.Context, req *domain.GuestLoginRequest) (*domain.AuthResponse, error)
	Refresh(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error)
	// Logout revokes every token of the caller, including the presented one.
	Logout(ctx context.Context, claims *jwt.Claims) error
	OIDCEnabled() bool
	OIDCLoginURL(state string) (string, error)
	OIDCCallback(ctx context.Context, code string) (*domain.AuthResponse, error)
}

// OIDCAuthenticator runs the authorization code flow.
type OIDCAuthenticator interface {
	AuthCodeURL(state string) string
	Authenticate(ctx context.Context, code string) (*oidc.Identity, error)
}

type authServiceImpl struct {
	users    repository.UserRepository
	search   repository.UserSearch
	tokens   *jwt.Manager
	guestIDs idgen.Generator
	oidc     OIDCAuthenticator
	present  *Presenter
}

// NewAuthService creates the auth service. oidcAuth may be nil.
func NewAuthService(
	users repository.UserRepository,
	search repository.UserSearch,
	tokens *jwt.Manager,
	oidcAuth OIDCAuthenticator,
	present *Presenter,
) AuthService {
	guestIDs, _ := idgen.NewNanoIDGenerator(16, idgen.DefaultNanoIDAlphabet)
	return &authServiceImpl{
		users:    users,
		search:   search,
		tokens:   tokens,
		guestIDs: guestIDs,
		oidc:     oidcAuth,
		present:  present,
	}
}

func identityFor(u *domain.User) jwt.Identity {
	return jwt.Identity{
		UserID:   u.ID,
		Email:    u.Email,
		Username: u.Username,
		Tier:     u.Tier,
		Roles:    u.Roles,
	}
}

func authResponse(user domain.UserResponse, pair *jwt.TokenPair) *domain.AuthResponse {
	return &domain.AuthResponse{
		User:             user,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		ExpiresAt:        pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (s *authServiceImpl) issue(ctx context.Context, user *domain.User) (*domain.AuthResponse, error) {
	pair, err := s.tokens.GenerateTokenPair(identityFor(user))
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to generate tokens")
		return nil, err
	}
	return authResponse(s.present.user(ctx, user), pair), nil
}

func (s *authServiceImpl) indexUser(ctx context.Context, user *domain.User) {
	if err := s.search.Index(ctx, user); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to index user for search")
	}
}

// Signup registers a new free-tier account.
func (s *authServiceImpl) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Email:        strings.TrimSpace(req.Email),
		Username:     strings.TrimSpace(req.Username),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hashedPassword),
		Tier:         domain.TierFree,
		Roles:        []string{"user"},
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrEmailExists
		case errors.Is(err, repository.ErrUsernameExists):
			return nil, ErrUsernameExists
		}
		l.Error().Err(err).Msg("failed to create user")
		return nil, err
	}
	s.indexUser(ctx, user)

	resp, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionSignup, user.ID, "user signed up")
	return resp, nil
}

// Login authenticates by email and password.
func (s *authServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, "", req.Email, "login failed: user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by email")
		return nil, err
	}

	if user.PasswordHash == "" {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Email, "login failed: account has no password")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, user.ID, req.Email, "login failed: wrong password")
		return nil, ErrInvalidCredentials
	}

	resp, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionLogin, user.ID, "user logged in")
	return resp, nil
}

// GuestLogin issues tokens for an identity that has no user row.
func (s *authServiceImpl) GuestLogin(ctx context.Context, req *domain.GuestLoginRequest) (*domain.AuthResponse, error) {
	suffix, err := s.guestIDs.Generate()
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		name = "Guest " + strings.ToUpper(suffix[:4])
	}

	guest := &domain.User{
		ID:          domain.GuestIDPrefix + suffix,
		Username:    name,
		DisplayName: name,
		Tier:        domain.TierGuest,
		Roles:       []string{"guest"},
		Preferences: domain.Preferences{Theme: domain.ThemeSystem},
		CreatedAt:   time.Now().UTC(),
	}

	resp, err := s.issue(ctx, guest)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionGuestLogin, guest.ID, "guest session started")
	return resp, nil
}

// Refresh rotates a refresh token. Registered users are reloaded so tier
// changes apply.
func (s *authServiceImpl) Refresh(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	claims, err := s.tokens.ParseRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		l.Warn().Err(err).Msg("failed to parse refresh token")
		return nil, ErrInvalidToken
	}

	var user *domain.User
	if domain.IsGuestID(claims.UserID) {
		user = &domain.User{
			ID:          claims.UserID,
			Username:    claims.Username,
			DisplayName: claims.Username,
			Tier:        domain.TierGuest,
			Roles:       claims.Roles,
			Preferences: domain.Preferences{Theme: domain.ThemeSystem},
		}
	} else {
		user, err = s.users.GetByID(ctx, claims.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return nil, ErrInvalidToken
			}
			l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to get user after token refresh")
			return nil, err
		}
	}

	pair, err := s.tokens.RefreshTokens(ctx, claims, identityFor(user))
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to rotate tokens")
		return nil, err
	}

	audit.Log(ctx, audit.ActionRefreshToken, user.ID, "token refreshed")
	return authResponse(s.present.user(ctx, user), pair), nil
}

func (s *authServiceImpl) Logout(ctx context.Context, claims *jwt.Claims) error {
	l := log.Ctx(ctx)

	if err := s.tokens.RevokeUserTokens(ctx, claims.UserID); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to revoke tokens")
		return err
	}
	if err := s.tokens.RevokeClaims(ctx, claims); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, claims.UserID).Msg("failed to revoke presented token")
		return err
	}

	audit.Log(ctx, audit.ActionLogout, claims.UserID, "user logged out")
	return nil
}

func (s *authServiceImpl) OIDCEnabled() bool {
	return s.oidc != nil
}

func (s *authServiceImpl) OIDCLoginURL(state string) (string, error) {
	if s.oidc == nil {
		return "", ErrOIDCDisabled
	}
	return s.oidc.AuthCodeURL(state), nil
}

// OIDCCallback finds the user by subject, then by email, and creates a
// free-tier account when neither matches.
func (s *authServiceImpl) OIDCCallback(ctx context.Context, code string) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	if s.oidc == nil {
		return nil, ErrOIDCDisabled
	}

	identity, err := s.oidc.Authenticate(ctx, code)
	if err != nil {
		l.Warn().Err(err).Msg("oidc authentication failed")
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByOIDCSubject(ctx, identity.Subject)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	if user == nil {
		if identity.Email == "" || !identity.EmailVerified {
			return nil, ErrOIDCEmailRequired
		}

		user, err = s.users.GetByEmail(ctx, identity.Email)
		switch {
		case err == nil:
			user.OIDCSubject = identity.Subject
			if err := s.users.Update(ctx, user); err != nil {
				l.Error().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to link oidc subject")
				return nil, err
			}
		case errors.Is(err, repository.ErrUserNotFound):
			user, err = s.createOIDCUser(ctx, identity)
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	resp, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionOIDCLogin, user.ID, "user logged in with oidc")
	return resp, nil
}

var usernameInvalidChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// oidcUsername derives a username candidate from the identity.
func oidcUsername(identity *oidc.Identity) string {
	base := identity.PreferredUsername
	if base == "" {
		base, _, _ = strings.Cut(identity.Email, "@")
	}
	base = usernameInvalidChars.ReplaceAllString(base, "")
	if len(base) < 3 {
		base = "user" + base
	}
	if len(base) > 40 {
		base = base[:40]
	}
	return strings.ToLower(base)
}

func (s *authServiceImpl) createOIDCUser(ctx context.Context, identity *oidc.Identity) (*domain.User, error) {
	l := log.Ctx(ctx)
	base := oidcUsername(identity)

	for attempt := 0; attempt < 5; attempt++ {
		username := base
		if attempt > 0 {
			suffix, err := s.guestIDs.Generate()
			if err != nil {
				return nil, err
			}
			username = fmt.Sprintf("%s_%s", base, strings.ToLower(suffix[:4]))
		}

		user := &domain.User{
			Email:       identity.Email,
			Username:    username,
			DisplayName: identity.Name,
			Tier:        domain.TierFree,
			Roles:       []string{"user"},
			OIDCSubject: identity.Subject,
		}
		err := s.users.Create(ctx, user)
		if err == nil {
			s.indexUser(ctx, user)
			audit.Log(ctx, audit.ActionSignup, user.ID, "user signed up with oidc")
			return user, nil
		}
		if !errors.Is(err, repository.ErrUsernameExists) {
			l.Error().Err(err).Msg("failed to create oidc user")
			return nil, err
		}
	}
	return nil, ErrUsernameExists
}
