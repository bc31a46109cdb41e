package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/log"
	"github.com/weiawesome/focus-room/pkg/middleware"
	"github.com/weiawesome/focus-room/pkg/response"
)

// CreateRoom handles room creation.
func (h *Handler) CreateRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("invalid create room request")
		response.BadRequest(c, err.Error())
		return
	}

	room, err := h.rooms.CreateRoom(ctx, middleware.GetUserID(c), middleware.GetUsername(c), &req)
	if err != nil {
		respondError(c, err, "create room")
		return
	}

	response.Created(c, room)
}

// GetRoom looks a room up by id or share code.
func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.rooms.GetRoom(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "get room")
		return
	}

	response.Success(c, room)
}

// ListRooms lists active public rooms.
func (h *Handler) ListRooms(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ListRoomsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	rooms, err := h.rooms.ListRooms(ctx, &req)
	if err != nil {
		respondError(c, err, "list rooms")
		return
	}

	response.Success(c, rooms)
}

func (h *Handler) GetMyRooms(c *gin.Context) {
	rooms, err := h.rooms.GetMyRooms(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "get my rooms")
		return
	}

	response.Success(c, rooms)
}

// JoinRoom checks admission and returns what the client needs to connect.
func (h *Handler) JoinRoom(c *gin.Context) {
	joined, err := h.rooms.JoinRoom(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "join room")
		return
	}

	response.Success(c, joined)
}

// CloseRoom handles room closure. Only the owner may close.
func (h *Handler) CloseRoom(c *gin.Context) {
	if err := h.rooms.CloseRoom(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err, "close room")
		return
	}

	response.Success(c, gin.H{"message": "room closed successfully"})
}

// ICEServers returns STUN/TURN servers for peer connections.
func (h *Handler) ICEServers(c *gin.Context) {
	if h.ice == nil {
		response.Success(c, gin.H{"ice_servers": []interface{}{}})
		return
	}
	response.Success(c, gin.H{"ice_servers": h.ice.ICEServers(c.Request.Context())})
}
