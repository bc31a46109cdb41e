package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/focus-room/internal/audit"
	"github.com/weiawesome/focus-room/internal/avatar"
	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
	"github.com/weiawesome/focus-room/internal/repository"
	"github.com/weiawesome/focus-room/pkg/jwt"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/pubsub"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrWrongPassword     = errors.New("current password is incorrect")
	ErrGuestNotAllowed   = errors.New("sign up to use this feature")
	ErrGuestUpgrade      = errors.New("sign up to upgrade")
	ErrSameTier          = errors.New("account is already on this tier")
	ErrInvalidTier       = errors.New("invalid tier")
	ErrInvalidTheme      = errors.New("invalid theme")
	ErrInvalidImage      = errors.New("invalid image")
	ErrAvatarUnavailable = errors.New("avatar storage is not configured")
)

// UserService manages a registered user's own profile.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*domain.UserResponse, error)
	UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.UserResponse, error)
	ChangePassword(ctx context.Context, userID string, req *domain.ChangePasswordRequest) error
	// Upgrade moves the account between free and premium and returns a
	// fresh token pair carrying the new tier.
	Upgrade(ctx context.Context, userID, tier string) (*domain.AuthResponse, error)
	UpdatePreferences(ctx context.Context, userID string, req *domain.PreferencesRequest) (*domain.UserResponse, error)
	UploadAvatar(ctx context.Context, userID string, r io.Reader) (*domain.UserResponse, error)
	DeleteAvatar(ctx context.Context, userID string) (*domain.UserResponse, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// AvatarProcessor resizes uploaded images into the stored avatar sizes.
type AvatarProcessor interface {
	Process(ctx context.Context, userID string, r io.Reader) (*domain.AvatarObjects, error)
	Remove(ctx context.Context, objects *domain.AvatarObjects) error
}

type userServiceImpl struct {
	users   repository.UserRepository
	search  repository.UserSearch
	cache   cache.UserCache
	ttl     time.Duration
	tokens  *jwt.Manager
	avatars AvatarProcessor
	emitter events.Emitter
	present *Presenter
}

func NewUserService(
	users repository.UserRepository,
	search repository.UserSearch,
	userCache cache.UserCache,
	ttl time.Duration,
	tokens *jwt.Manager,
	avatars AvatarProcessor,
	emitter events.Emitter,
	present *Presenter,
) UserService {
	return &userServiceImpl{
		users:   users,
		search:  search,
		cache:   userCache,
		ttl:     ttl,
		tokens:  tokens,
		avatars: avatars,
		emitter: emitter,
		present: present,
	}
}

func (s *userServiceImpl) load(ctx context.Context, userID string) (*domain.User, error) {
	if domain.IsGuestID(userID) {
		return nil, ErrGuestNotAllowed
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to get user")
		return nil, err
	}
	return user, nil
}

// changed drops the cached profile, refreshes the search index and tells
// other instances.
func (s *userServiceImpl) changed(ctx context.Context, user *domain.User) {
	l := log.Ctx(ctx)
	if err := s.cache.Delete(ctx, s.cache.BuildKeyByID(user.ID)); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to invalidate user cache")
	}
	if err := s.search.Index(ctx, user); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, user.ID).Msg("failed to index user for search")
	}
	s.emitter.Emit(ctx, pubsub.EventProfileChanged, user.ID, "profile", user.ID)
}

func (s *userServiceImpl) GetProfile(ctx context.Context, userID string) (*domain.UserResponse, error) {
	l := log.Ctx(ctx)
	key := s.cache.BuildKeyByID(userID)

	if cached, err := s.cache.Get(ctx, key); err == nil {
		return &cached.User, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("user cache get failed")
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := s.present.user(ctx, user)
	if err := s.cache.Set(ctx, key, &cache.UserCacheResult{User: resp}, s.ttl); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("user cache set failed")
	}
	return &resp, nil
}

func (s *userServiceImpl) UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.UserResponse, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		user.DisplayName = strings.TrimSpace(*req.DisplayName)
	}

	if err := s.users.Update(ctx, user); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to update user")
		return nil, err
	}
	s.changed(ctx, user)

	audit.Log(ctx, audit.ActionUpdateProfile, userID, "profile updated")
	resp := s.present.user(ctx, user)
	return &resp, nil
}

func (s *userServiceImpl) ChangePassword(ctx context.Context, userID string, req *domain.ChangePasswordRequest) error {
	l := log.Ctx(ctx)

	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return ErrWrongPassword
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return err
	}
	user.PasswordHash = string(hashedPassword)

	if err := s.users.Update(ctx, user); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to update password")
		return err
	}

	audit.Log(ctx, audit.ActionChangePassword, userID, "password changed")
	return nil
}

func (s *userServiceImpl) Upgrade(ctx context.Context, userID, tier string) (*domain.AuthResponse, error) {
	l := log.Ctx(ctx)

	if domain.IsGuestID(userID) {
		return nil, ErrGuestUpgrade
	}
	if tier != domain.TierFree && tier != domain.TierPremium {
		return nil, ErrInvalidTier
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Tier == tier {
		return nil, ErrSameTier
	}

	previous := user.Tier
	user.Tier = tier
	if err := s.users.Update(ctx, user); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to update tier")
		return nil, err
	}
	s.changed(ctx, user)

	// Tokens minted before this second still carry the old tier.
	if err := s.tokens.RevokeUserTokens(ctx, user.ID); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to revoke tokens after tier change")
	}
	pair, err := s.tokens.GenerateTokenPair(identityFor(user))
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to generate tokens after tier change")
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionUpgrade, userID, previous+"->"+tier, "tier changed")
	return authResponse(s.present.user(ctx, user), pair), nil
}

func (s *userServiceImpl) UpdatePreferences(ctx context.Context, userID string, req *domain.PreferencesRequest) (*domain.UserResponse, error) {
	switch req.Theme {
	case domain.ThemeLight, domain.ThemeDark, domain.ThemeSystem:
	default:
		return nil, ErrInvalidTheme
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Preferences.Theme = req.Theme
	if err := s.users.Update(ctx, user); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to update preferences")
		return nil, err
	}
	s.changed(ctx, user)

	resp := s.present.user(ctx, user)
	return &resp, nil
}

func (s *userServiceImpl) UploadAvatar(ctx context.Context, userID string, r io.Reader) (*domain.UserResponse, error) {
	l := log.Ctx(ctx)

	if s.avatars == nil {
		return nil, ErrAvatarUnavailable
	}
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	objects, err := s.avatars.Process(ctx, userID, r)
	if err != nil {
		if errors.Is(err, avatar.ErrInvalidImage) {
			return nil, ErrInvalidImage
		}
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to process avatar")
		return nil, err
	}

	if err := s.users.UpdateAvatar(ctx, userID, objects); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to save avatar keys")
		return nil, err
	}
	user.AvatarObjects = objects
	s.changed(ctx, user)

	audit.Log(ctx, audit.ActionUpdateAvatar, userID, "avatar updated")
	resp := s.present.user(ctx, user)
	return &resp, nil
}

func (s *userServiceImpl) DeleteAvatar(ctx context.Context, userID string) (*domain.UserResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.avatars != nil && user.AvatarObjects != nil {
		if err := s.avatars.Remove(ctx, user.AvatarObjects); err != nil {
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to delete avatar objects")
		}
	}

	if err := s.users.UpdateAvatar(ctx, userID, nil); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to clear avatar")
		return nil, err
	}
	user.AvatarObjects = nil
	s.changed(ctx, user)

	audit.Log(ctx, audit.ActionUpdateAvatar, userID, "avatar removed")
	resp := s.present.user(ctx, user)
	return &resp, nil
}

func (s *userServiceImpl) DeleteAccount(ctx context.Context, userID string) error {
	l := log.Ctx(ctx)

	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.tokens.RevokeUserTokens(ctx, userID); err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to revoke tokens")
		return err
	}

	if s.avatars != nil && user.AvatarObjects != nil {
		if err := s.avatars.Remove(ctx, user.AvatarObjects); err != nil {
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to delete avatar objects")
		}
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to delete user")
		return err
	}

	if err := s.search.Remove(ctx, userID); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to remove user from search")
	}
	if err := s.cache.Delete(ctx, s.cache.BuildKeyByID(userID)); err != nil {
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to invalidate user cache")
	}

	audit.Log(ctx, audit.ActionDeleteAccount, userID, "account deleted")
	return nil
}
