// Package audit writes security relevant account, social and room actions
// as log_type=audit lines on the request's logger.
package audit

import (
	"context"

	"github.com/weiawesome/focus-room/pkg/log"
)

const (
	ActionSignup         = "user.signup"
	ActionLogin          = "user.login"
	ActionLoginFailed    = "user.login_failed"
	ActionGuestLogin     = "user.guest_login"
	ActionOIDCLogin      = "user.oidc_login"
	ActionLogout         = "user.logout"
	ActionRefreshToken   = "user.refresh_token"
	ActionUpdateProfile  = "user.update_profile"
	ActionChangePassword = "user.change_password"
	ActionUpgrade        = "user.upgrade"
	ActionUpdateAvatar   = "user.update_avatar"
	ActionDeleteAccount  = "user.delete_account"

	ActionFriendRequest = "friend.request"
	ActionFriendAccept  = "friend.accept"
	ActionFriendReject  = "friend.reject"
	ActionFriendRemove  = "friend.remove"

	ActionRoomCreate = "room.create"
	ActionRoomClose  = "room.close"

	ActionMessageDelete = "message.delete"
)

const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Entry is one audited action. UserID is the actor; TargetID and Detail
// are omitted when empty.
type Entry struct {
	Action   string
	UserID   string
	TargetID string
	Detail   string
}

// Emit writes e at info level regardless of the handler's outcome.
func Emit(ctx context.Context, e Entry, msg string) {
	l := log.Ctx(ctx)
	evt := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, e.Action).
		Str(log.FieldUserID, e.UserID)
	if e.TargetID != "" {
		evt = evt.Str(FieldTargetID, e.TargetID)
	}
	if e.Detail != "" {
		evt = evt.Str(FieldDetail, e.Detail)
	}
	evt.Msg(msg)
}

func Log(ctx context.Context, action, userID, msg string) {
	Emit(ctx, Entry{Action: action, UserID: userID}, msg)
}

func LogWithDetail(ctx context.Context, action, userID, detail, msg string) {
	Emit(ctx, Entry{Action: action, UserID: userID, Detail: detail}, msg)
}

// LogTarget records userID acting on another user, room or message.
func LogTarget(ctx context.Context, action, userID, targetID, msg string) {
	Emit(ctx, Entry{Action: action, UserID: userID, TargetID: targetID}, msg)
}
