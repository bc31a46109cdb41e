package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/focus-room/internal/domain"
	"github.com/weiawesome/focus-room/pkg/middleware"
	"github.com/weiawesome/focus-room/pkg/response"
)

func (h *Handler) SendFriendRequest(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.FriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.friends.Request(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "send friend request")
		return
	}

	response.Created(c, resp)
}

func (h *Handler) AcceptFriendRequest(c *gin.Context) {
	friend, err := h.friends.Accept(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, "accept friend request")
		return
	}

	response.Success(c, friend)
}

func (h *Handler) RejectFriendRequest(c *gin.Context) {
	if err := h.friends.Reject(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err, "reject friend request")
		return
	}

	response.Success(c, gin.H{"message": "friend request rejected"})
}

func (h *Handler) RemoveFriend(c *gin.Context) {
	if err := h.friends.Remove(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err, "remove friend")
		return
	}

	response.Success(c, gin.H{"message": "friend removed"})
}

// ListFriends returns the caller's friends with their online status.
func (h *Handler) ListFriends(c *gin.Context) {
	friends, err := h.friends.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "list friends")
		return
	}

	response.Success(c, friends)
}

func (h *Handler) FriendRequests(c *gin.Context) {
	requests, err := h.friends.Requests(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err, "list friend requests")
		return
	}

	response.Success(c, requests)
}

// SearchUsers finds users to befriend by username or display name.
func (h *Handler) SearchUsers(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.FriendSearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	results, err := h.friends.Search(ctx, middleware.GetUserID(c), &req)
	if err != nil {
		respondError(c, err, "search users")
		return
	}

	response.Success(c, results)
}
