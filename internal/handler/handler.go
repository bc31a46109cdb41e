package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/weiawesome/focus-room/internal/service"
	"github.com/weiawesome/focus-room/pkg/middleware"
)

const maxAvatarUpload = 10 << 20

// Services bundles the business services the HTTP API exposes.
type Services struct {
	Auth     service.AuthService
	Users    service.UserService
	Friends  service.FriendService
	Rooms    service.RoomService
	Stats    service.StatsService
	Todos    service.TodoService
	Messages service.MessageService
	ICE      service.ICEProvider
}

// Handler handles the REST API.
type Handler struct {
	auth           service.AuthService
	users          service.UserService
	friends        service.FriendService
	rooms          service.RoomService
	stats          service.StatsService
	todos          service.TodoService
	messages       service.MessageService
	ice            service.ICEProvider
	authMiddleware *middleware.AuthMiddleware
	maxMediaUpload int64
}

func NewHandler(svcs Services, authMiddleware *middleware.AuthMiddleware, maxMediaUpload int64) *Handler {
	if maxMediaUpload <= 0 {
		maxMediaUpload = 20 << 20
	}
	return &Handler{
		auth:           svcs.Auth,
		users:          svcs.Users,
		friends:        svcs.Friends,
		rooms:          svcs.Rooms,
		stats:          svcs.Stats,
		todos:          svcs.Todos,
		messages:       svcs.Messages,
		ice:            svcs.ICE,
		authMiddleware: authMiddleware,
		maxMediaUpload: maxMediaUpload,
	}
}

// RegisterRoutes registers all REST routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	requireAuth := h.authMiddleware.RequireAuth()
	registered := h.authMiddleware.RequireRegistered()

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			// Public routes
			auth.POST("/signup", h.Signup)
			auth.POST("/login", h.Login)
			auth.POST("/guest", h.GuestLogin)
			auth.POST("/refresh", h.Refresh)
			auth.GET("/oidc/login", h.OIDCLogin)
			auth.GET("/oidc/callback", h.OIDCCallback)

			// Protected routes
			auth.POST("/logout", requireAuth, h.Logout)
			auth.GET("/profile", requireAuth, h.GetProfile)
			auth.PUT("/profile", requireAuth, registered, h.UpdateProfile)
			auth.DELETE("/profile", requireAuth, registered, h.DeleteAccount)
			auth.POST("/profile/avatar", requireAuth, registered, h.UploadAvatar)
			auth.DELETE("/profile/avatar", requireAuth, registered, h.DeleteAvatar)
			auth.POST("/upgrade", requireAuth, h.Upgrade)
			auth.PUT("/password", requireAuth, registered, h.ChangePassword)
			auth.PUT("/preferences", requireAuth, registered, h.UpdatePreferences)
		}

		friends := api.Group("/friends", requireAuth, registered)
		{
			friends.GET("", h.ListFriends)
			friends.GET("/requests", h.FriendRequests)
			friends.GET("/search", h.SearchUsers)
			friends.POST("/request", h.SendFriendRequest)
			friends.POST("/accept/:id", h.AcceptFriendRequest)
			friends.POST("/reject/:id", h.RejectFriendRequest)
			friends.DELETE("/:id", h.RemoveFriend)
		}

		stats := api.Group("/stats", requireAuth)
		{
			stats.GET("", h.GetStats)
			stats.GET("/dashboard", h.GetDashboard)
			stats.POST("/session", h.RecordSession)
			stats.GET("/sessions", h.ListSessions)
		}

		todos := api.Group("/todos", requireAuth)
		{
			todos.GET("", h.ListTodos)
			todos.POST("", h.CreateTodo)
			todos.PUT("/:id", h.UpdateTodo)
			todos.PATCH("/:id", h.UpdateTodo)
			todos.POST("/:id/toggle", h.ToggleTodo)
			todos.DELETE("/:id", h.DeleteTodo)
		}

		messages := api.Group("/messages", requireAuth)
		{
			messages.GET("", h.MessageHistory)
			messages.POST("", h.SendMessage)
			messages.PUT("/:id", h.EditMessage)
			messages.DELETE("/:id", h.DeleteMessage)
			messages.POST("/media/presign", h.PresignMedia)
			messages.POST("/media", h.UploadMedia)
		}

		rooms := api.Group("/rooms")
		{
			rooms.GET("", h.ListRooms)
			rooms.GET("/my", requireAuth, h.GetMyRooms)
			rooms.GET("/:id", h.GetRoom)
			rooms.POST("", requireAuth, h.CreateRoom)
			rooms.POST("/:id/join", requireAuth, h.JoinRoom)
			rooms.DELETE("/:id", requireAuth, h.CloseRoom)
		}

		api.GET("/ice-servers", h.ICEServers)
	}
}
