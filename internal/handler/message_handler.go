package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/middleware"
	"github.com/weiawesome/focus-room/pkg/response"
)

// multipartOverhead leaves room for form fields and part headers.
const multipartOverhead = 1 << 20

func (h *Handler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.messages.Send(ctx, middleware.GetUserID(c), middleware.GetUsername(c), &req)
	if err != nil {
		respondError(c, err, "send message")
		return
	}

	response.Created(c, msg)
}

// MessageHistory pages through a room's messages with an opaque cursor.
func (h *Handler) MessageHistory(c *gin.Context) {
	ctx := c.Request.Context()

	var q domain.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	history, err := h.messages.History(ctx, middleware.GetUserID(c), &q)
	if err != nil {
		respondError(c, err, "get message history")
		return
	}

	response.Success(c, history)
}

func (h *Handler) EditMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := h.messages.Edit(ctx, middleware.GetUserID(c), c.Param("id"), *req.Content)
	if err != nil {
		respondError(c, err, "edit message")
		return
	}

	response.Success(c, msg)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	if err := h.messages.Delete(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err, "delete message")
		return
	}

	response.Success(c, gin.H{"message": "message deleted"})
}

// PresignMedia returns a direct upload URL when the store supports it.
func (h *Handler) PresignMedia(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.PresignMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.messages.PresignMedia(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "presign media upload")
		return
	}

	response.Success(c, resp)
}

// UploadMedia accepts a multipart "file" plus a "room_id" field and stores
// it through the server.
func (h *Handler) UploadMedia(c *gin.Context) {
	ctx := c.Request.Context()

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxMediaUpload+multipartOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.TooLarge(c, "media is too large")
			return
		}
		response.BadRequest(c, "file is required")
		return
	}
	roomID := c.PostForm("room_id")
	if roomID == "" {
		response.BadRequest(c, "room_id is required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "failed to read file")
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := h.messages.UploadMedia(ctx, middleware.GetUserID(c), roomID, contentType, fh.Size, f)
	if err != nil {
		respondError(c, err, "upload media")
		return
	}

	response.Created(c, resp)
}
