package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/focus-room/internal/service"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/response"
)

type statusMapping struct {
	err    error
	status int
}

// serviceErrors maps service sentinels to HTTP responses. The sentinel's
// own message is returned to the client.
var serviceErrors = []statusMapping{
	// auth / profile
	{service.ErrInvalidCredentials, http.StatusUnauthorized},
	{service.ErrInvalidToken, http.StatusUnauthorized},
	{service.ErrEmailExists, http.StatusConflict},
	{service.ErrUsernameExists, http.StatusConflict},
	{service.ErrOIDCDisabled, http.StatusServiceUnavailable},
	{service.ErrOIDCEmailRequired, http.StatusUnauthorized},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrWrongPassword, http.StatusBadRequest},
	{service.ErrGuestNotAllowed, http.StatusForbidden},
	{service.ErrGuestUpgrade, http.StatusForbidden},
	{service.ErrSameTier, http.StatusConflict},
	{service.ErrInvalidTier, http.StatusBadRequest},
	{service.ErrInvalidTheme, http.StatusBadRequest},
	{service.ErrInvalidImage, http.StatusBadRequest},
	{service.ErrAvatarUnavailable, http.StatusServiceUnavailable},

	// friends
	{service.ErrSelfFriendRequest, http.StatusBadRequest},
	{service.ErrFriendTargetRequired, http.StatusBadRequest},
	{service.ErrSearchQueryRequired, http.StatusBadRequest},
	{service.ErrAlreadyFriends, http.StatusConflict},
	{service.ErrFriendRequestPending, http.StatusConflict},
	{service.ErrFriendRequestNotFound, http.StatusNotFound},
	{service.ErrNotRequestAddressee, http.StatusForbidden},
	{service.ErrFriendRequestHandled, http.StatusConflict},
	{service.ErrNotFriends, http.StatusNotFound},

	// rooms
	{service.ErrRoomNotFound, http.StatusNotFound},
	{service.ErrNotRoomOwner, http.StatusForbidden},
	{service.ErrMaxRoomsReached, http.StatusTooManyRequests},
	{service.ErrTierRequired, http.StatusForbidden},
	{service.ErrRoomClosed, http.StatusGone},
	{service.ErrRoomFull, http.StatusConflict},
	{service.ErrPrivateRoom, http.StatusForbidden},

	// stats / todos
	{service.ErrInvalidDuration, http.StatusBadRequest},
	{service.ErrFutureSession, http.StatusBadRequest},
	{service.ErrTodoNotFound, http.StatusNotFound},
	{service.ErrInvalidTodoText, http.StatusBadRequest},
	{service.ErrTodoLimit, http.StatusTooManyRequests},

	// messages
	{service.ErrMessageNotFound, http.StatusNotFound},
	{service.ErrInvalidMessage, http.StatusBadRequest},
	{service.ErrNotParticipant, http.StatusForbidden},
	{service.ErrNotMessageAuthor, http.StatusForbidden},
	{service.ErrInvalidMediaKey, http.StatusBadRequest},
	{service.ErrMediaTooLarge, http.StatusRequestEntityTooLarge},
	{service.ErrPresignUnsupported, http.StatusNotImplemented},
}

// respondError writes the mapped response for a known service error and
// logs anything else as an internal failure of action.
func respondError(c *gin.Context, err error, action string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			response.Error(c, m.status, m.err.Error())
			return
		}
	}

	l := log.Ctx(c.Request.Context())
	l.Error().Err(err).Msg("failed to " + action)
	response.InternalError(c, "failed to "+action)
}
