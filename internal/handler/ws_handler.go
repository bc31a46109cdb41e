package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/focus-room/internal/signal"
	pkglog "github.com/weiawesome/focus-room/pkg/log"
)

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub      *signal.Hub
	service  *signal.Service
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WebSocket handler. An empty allowedOrigins,
// or one containing "*", accepts any origin.
func NewWSHandler(h *signal.Hub, svc *signal.Service, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &WSHandler{
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if _, wildcard := allowed["*"]; wildcard || len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection. A token query parameter
// authenticates immediately; otherwise the client must send an auth frame.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	l := pkglog.L()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.hub.NewClient(uuid.New().String(), conn)

	client.SetDisconnectHandler(func(cl *signal.Client) {
		ctx := clientContext(cl)
		if err := h.service.HandleDisconnect(ctx, cl); err != nil {
			l := pkglog.Ctx(ctx)
			l.Error().Err(err).Msg("disconnect handler error")
		}
	})

	h.hub.Register(client)

	if token := c.Query("token"); token != "" {
		if err := h.service.HandleAuth(clientContext(client), client, token); err != nil {
			l.Debug().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("query token rejected")
		}
	}

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func clientContext(c *signal.Client) context.Context {
	ctx := pkglog.WithStr(context.Background(), pkglog.FieldClientID, c.ID)
	if userID := c.Session.GetUserID(); userID != "" {
		ctx = pkglog.WithStr(ctx, pkglog.FieldUserID, userID)
	}
	return ctx
}

func badFrame(client *signal.Client, msgType string) {
	client.SendMessage(signal.NewErrorMessage(signal.ErrCodeBadRequest, "Invalid "+msgType+" message"))
}

func (h *WSHandler) handleMessage(client *signal.Client, message []byte) {
	var base signal.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(signal.NewErrorMessage(signal.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := clientContext(client)
	l := pkglog.Ctx(ctx)
	client.Session.UpdateActivity()

	var err error
	switch base.Type {
	case signal.MsgTypeAuth:
		var msg signal.AuthMessage
		if json.Unmarshal(message, &msg) != nil {
			badFrame(client, base.Type)
			return
		}
		err = h.service.HandleAuth(ctx, client, msg.Token)

	case signal.MsgTypeJoinRoom:
		var msg signal.JoinRoomMessage
		if json.Unmarshal(message, &msg) != nil {
			badFrame(client, base.Type)
			return
		}
		err = h.service.HandleJoinRoom(ctx, client, msg.RoomID)

	case signal.MsgTypeLeaveRoom:
		err = h.service.HandleLeaveRoom(ctx, client)

	case signal.MsgTypeOffer, signal.MsgTypeAnswer:
		var msg signal.SessionDescriptionMessage
		if json.Unmarshal(message, &msg) != nil {
			badFrame(client, base.Type)
			return
		}
		err = h.service.HandleSessionDescription(ctx, client, &msg)

	case signal.MsgTypeICECandidate:
		var msg signal.ICECandidateMessage
		if json.Unmarshal(message, &msg) != nil {
			badFrame(client, base.Type)
			return
		}
		err = h.service.HandleICECandidate(ctx, client, &msg)

	case signal.MsgTypeMediaState:
		var msg signal.MediaStateMessage
		if json.Unmarshal(message, &msg) != nil {
			badFrame(client, base.Type)
			return
		}
		err = h.service.HandleMediaState(ctx, client, msg.State)

	case signal.MsgTypeToggle:
		var msg signal.ToggleMessage
		if json.Unmarshal(message, &msg) != nil {
			badFrame(client, base.Type)
			return
		}
		err = h.service.HandleToggle(ctx, client, msg.Kind)

	case signal.MsgTypeScreenShareEnded:
		err = h.service.HandleScreenShareEnded(ctx, client)

	case signal.MsgTypePingUser:
		var msg signal.PingUserMessage
		if json.Unmarshal(message, &msg) != nil {
			badFrame(client, base.Type)
			return
		}
		err = h.service.HandlePingUser(ctx, client, &msg)

	case signal.MsgTypePing:
		err = h.service.HandlePing(ctx, client)

	default:
		client.SendMessage(signal.NewErrorMessage(signal.ErrCodeBadRequest, "Unknown message type"))
		return
	}

	if err != nil {
		l.Error().Err(err).Str("type", base.Type).Msg("websocket message failed")
	}
}
