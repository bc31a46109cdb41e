package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/weiawesome/focus-room/internal/cache"
	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/internal/events"
	"github.com/weiawesome/focus-room/internal/oidc"
)

type fakeOIDC struct {
	identity *oidc.Identity
}

func (f *fakeOIDC) AuthCodeURL(state string) string {
	return "https://idp.example.com/auth?state=" + state
}

func (f *fakeOIDC) Authenticate(context.Context, string) (*oidc.Identity, error) {
	return f.identity, nil
}

func newAuthService(f *fixture, o OIDCAuthenticator) AuthService {
	return NewAuthService(f.users, f.users, f.tokens, o, f.present)
}

func TestSignupAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newAuthService(f, nil)

	resp, err := svc.Signup(ctx, &domain.SignupRequest{
		Email:    "Ada@Example.com",
		Username: "ada",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}
	if resp.User.Tier != domain.TierFree || resp.User.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", resp.User)
	}

	if _, err := svc.Signup(ctx, &domain.SignupRequest{Email: "ada@example.com", Username: "other", Password: "secret123"}); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("duplicate email: got %v", err)
	}
	if _, err := svc.Signup(ctx, &domain.SignupRequest{Email: "x@example.com", Username: "ada", Password: "secret123"}); !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("duplicate username: got %v", err)
	}

	if _, err := svc.Login(ctx, &domain.LoginRequest{Email: "ada@example.com", Password: "secret123"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Login(ctx, &domain.LoginRequest{Email: "ada@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := svc.Login(ctx, &domain.LoginRequest{Email: "nobody@example.com", Password: "secret123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", err)
	}
}

func TestGuestLoginAndRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newAuthService(f, nil)

	resp, err := svc.GuestLogin(ctx, &domain.GuestLoginRequest{DisplayName: "Visitor"})
	if err != nil {
		t.Fatalf("GuestLogin: %v", err)
	}
	if !domain.IsGuestID(resp.User.ID) || resp.User.Tier != domain.TierGuest || !resp.User.Guest {
		t.Fatalf("unexpected guest: %+v", resp.User)
	}

	refreshed, err := svc.Refresh(ctx, &domain.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.User.ID != resp.User.ID {
		t.Fatalf("refresh changed identity: %s != %s", refreshed.User.ID, resp.User.ID)
	}

	if _, err := svc.Refresh(ctx, &domain.RefreshTokenRequest{RefreshToken: resp.RefreshToken}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("reused refresh token: got %v", err)
	}
}

func TestLogoutRevokesTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newAuthService(f, nil)

	resp, err := svc.Signup(ctx, &domain.SignupRequest{Email: "bo@example.com", Username: "bo", Password: "secret123"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	claims, err := f.tokens.ValidateAccessToken(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}

	if err := svc.Logout(ctx, claims); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.tokens.ValidateAccessToken(ctx, resp.AccessToken); err == nil {
		t.Fatal("access token still valid after logout")
	}
	if _, err := svc.Refresh(ctx, &domain.RefreshTokenRequest{RefreshToken: resp.RefreshToken}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh after logout: got %v, want ErrInvalidToken", err)
	}

	again, err := svc.Login(ctx, &domain.LoginRequest{Email: "bo@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("Login after logout: %v", err)
	}
	if _, err := f.tokens.ValidateAccessToken(ctx, again.AccessToken); err != nil {
		t.Fatalf("token from a new login: %v", err)
	}
}

func TestOIDCCallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := newAuthService(f, nil).OIDCLoginURL("s"); !errors.Is(err, ErrOIDCDisabled) {
		t.Fatalf("disabled: got %v", err)
	}

	existing := f.user(t, "carol", domain.TierFree)
	idp := &fakeOIDC{identity: &oidc.Identity{
		Subject:       "sub-1",
		Email:         existing.Email,
		EmailVerified: true,
	}}
	svc := newAuthService(f, idp)

	url, err := svc.OIDCLoginURL("abc")
	if err != nil || !strings.Contains(url, "state=abc") {
		t.Fatalf("OIDCLoginURL = %q, %v", url, err)
	}

	resp, err := svc.OIDCCallback(ctx, "code")
	if err != nil {
		t.Fatalf("OIDCCallback: %v", err)
	}
	if resp.User.ID != existing.ID {
		t.Fatalf("verified email should link to %s, got %s", existing.ID, resp.User.ID)
	}
	linked, err := f.users.GetByOIDCSubject(ctx, "sub-1")
	if err != nil || linked.ID != existing.ID {
		t.Fatalf("subject not linked: %v", err)
	}

	idp.identity = &oidc.Identity{
		Subject:           "sub-2",
		Email:             "dana@example.com",
		EmailVerified:     true,
		PreferredUsername: "carol",
	}
	created, err := svc.OIDCCallback(ctx, "code")
	if err != nil {
		t.Fatalf("OIDCCallback new user: %v", err)
	}
	if created.User.ID == existing.ID || created.User.Username == "carol" {
		t.Fatalf("expected a new user with a distinct username, got %+v", created.User)
	}

	idp.identity = &oidc.Identity{Subject: "sub-3", Email: "eve@example.com"}
	if _, err := svc.OIDCCallback(ctx, "code"); !errors.Is(err, ErrOIDCEmailRequired) {
		t.Fatalf("unverified email: got %v", err)
	}
}

func TestUpgradeIssuesNewTier(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, "fin", domain.TierFree)
	svc := NewUserService(f.users, f.users, cache.Noop{}, 0, f.tokens, nil, events.Nop{}, f.present)

	stale, err := f.tokens.GenerateTokenPair(identityFor(u))
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	resp, err := svc.Upgrade(ctx, u.ID, domain.TierPremium)
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	if _, err := f.tokens.ParseRefreshToken(ctx, stale.RefreshToken); err == nil {
		t.Fatal("refresh token carrying the old tier still valid")
	}
	if resp.User.Tier != domain.TierPremium {
		t.Fatalf("tier = %s", resp.User.Tier)
	}
	claims, err := f.tokens.ValidateAccessToken(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("new token rejected: %v", err)
	}
	if claims.Tier != domain.TierPremium {
		t.Fatalf("claims tier = %s", claims.Tier)
	}

	if _, err := svc.Upgrade(ctx, u.ID, domain.TierPremium); !errors.Is(err, ErrSameTier) {
		t.Fatalf("same tier: got %v", err)
	}
	if _, err := svc.Upgrade(ctx, u.ID, "gold"); !errors.Is(err, ErrInvalidTier) {
		t.Fatalf("invalid tier: got %v", err)
	}
	if _, err := svc.Upgrade(ctx, domain.GuestIDPrefix+"abc", domain.TierPremium); !errors.Is(err, ErrGuestUpgrade) {
		t.Fatalf("guest: got %v", err)
	}
}

func TestProfileAndPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	auth := newAuthService(f, nil)
	svc := NewUserService(f.users, f.users, cache.Noop{}, 0, f.tokens, nil, events.Nop{}, f.present)

	signed, err := auth.Signup(ctx, &domain.SignupRequest{Email: "gus@example.com", Username: "gus", Password: "secret123"})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	id := signed.User.ID

	name := "Gus G"
	profile, err := svc.UpdateProfile(ctx, id, &domain.UpdateProfileRequest{DisplayName: &name})
	if err != nil || profile.DisplayName != name {
		t.Fatalf("UpdateProfile = %+v, %v", profile, err)
	}

	if _, err := svc.UpdatePreferences(ctx, id, &domain.PreferencesRequest{Theme: "neon"}); !errors.Is(err, ErrInvalidTheme) {
		t.Fatalf("invalid theme: got %v", err)
	}
	prefs, err := svc.UpdatePreferences(ctx, id, &domain.PreferencesRequest{Theme: domain.ThemeDark})
	if err != nil || prefs.Preferences.Theme != domain.ThemeDark {
		t.Fatalf("UpdatePreferences = %+v, %v", prefs, err)
	}

	err = svc.ChangePassword(ctx, id, &domain.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "another1"})
	if !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong current password: got %v", err)
	}
	if err := svc.ChangePassword(ctx, id, &domain.ChangePasswordRequest{CurrentPassword: "secret123", NewPassword: "another1"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := auth.Login(ctx, &domain.LoginRequest{Email: "gus@example.com", Password: "another1"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if _, err := svc.GetProfile(ctx, domain.GuestIDPrefix+"x"); !errors.Is(err, ErrGuestNotAllowed) {
		t.Fatalf("guest profile: got %v", err)
	}

	if err := svc.DeleteAccount(ctx, id); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := svc.GetProfile(ctx, id); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("deleted profile: got %v", err)
	}
}
