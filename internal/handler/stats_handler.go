package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/middleware"
	"github.com/weiawesome/focus-room/pkg/response"
)

// tzOffset reads the client's UTC offset in minutes. Missing means UTC.
func tzOffset(c *gin.Context) (int, bool) {
	raw := c.Query("tz_offset")
	if raw == "" {
		return 0, true
	}
	offset, err := strconv.Atoi(raw)
	if err != nil {
		response.BadRequest(c, "tz_offset must be minutes east of UTC")
		return 0, false
	}
	return offset, true
}

func (h *Handler) GetStats(c *gin.Context) {
	offset, ok := tzOffset(c)
	if !ok {
		return
	}

	stats, err := h.stats.Stats(c.Request.Context(), middleware.GetUserID(c), offset)
	if err != nil {
		respondError(c, err, "get stats")
		return
	}

	response.Success(c, stats)
}

// GetDashboard returns stats plus today's todos and friend activity.
func (h *Handler) GetDashboard(c *gin.Context) {
	offset, ok := tzOffset(c)
	if !ok {
		return
	}

	dashboard, err := h.stats.Dashboard(c.Request.Context(), middleware.GetUserID(c), offset)
	if err != nil {
		respondError(c, err, "get dashboard")
		return
	}

	response.Success(c, dashboard)
}

func (h *Handler) RecordSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.RecordSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	session, err := h.stats.RecordSession(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "record session")
		return
	}

	response.Created(c, session)
}

func (h *Handler) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.ListSessionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	sessions, err := h.stats.ListSessions(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "list sessions")
		return
	}

	response.Success(c, sessions)
}
