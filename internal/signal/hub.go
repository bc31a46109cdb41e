package signal

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/weiawesome/focus-room/internal/config"
	pkglog "github.com/weiawesome/focus-room/pkg/log"
)

// Hub manages the WebSocket connections of this instance.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client // roomID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *RoomMessage
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// RoomMessage is a message for the local clients of a room. To and
// Exclude are user IDs: a non-empty To delivers to that user only.
type RoomMessage struct {
	RoomID  string
	Message []byte
	To      string
	Exclude string
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// NewClient builds a client bound to this hub. conn may be nil in tests.
func (h *Hub) NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:      id,
		Send:    make(chan []byte, h.config.SendBuffer),
		Session: NewSession(id),
		hub:     h,
		conn:    conn,
	}
}

// Run starts the hub's main loop. It returns after Close.
func (h *Hub) Run() {
	l := pkglog.L()
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				h.closeClientLocked(client)
				delete(h.clients, id)
			}
			h.rooms = make(map[string]map[string]*Client)
			h.mu.Unlock()
			l.Info().Msg("hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l.Debug().Str(pkglog.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for roomID, roomClients := range h.rooms {
					delete(roomClients, client.ID)
					if len(roomClients) == 0 {
						delete(h.rooms, roomID)
					}
				}
				delete(h.clients, client.ID)
				h.closeClientLocked(client)
			}
			h.mu.Unlock()
			l.Debug().Str(pkglog.FieldClientID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.rooms[msg.RoomID] {
				userID := client.Session.GetUserID()
				if userID == msg.Exclude || (msg.To != "" && userID != msg.To) {
					continue
				}
				h.trySendLocked(client, msg.Message)
			}
			h.mu.RUnlock()
		}
	}
}

// Close stops Run and closes every client's send channel.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][client.ID] = client
	l := pkglog.L()
	l.Info().Str(pkglog.FieldClientID, client.ID).Str(pkglog.FieldRoomID, roomID).Msg("client joined room")
}

func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if roomClients, ok := h.rooms[roomID]; ok {
		delete(roomClients, client.ID)
		if len(roomClients) == 0 {
			delete(h.rooms, roomID)
		}
	}
	l := pkglog.L()
	l.Info().Str(pkglog.FieldClientID, client.ID).Str(pkglog.FieldRoomID, roomID).Msg("client left room")
}

// Deliver queues raw for the local clients of a room.
func (h *Hub) Deliver(roomID string, raw []byte, to, exclude string) {
	select {
	case h.broadcast <- &RoomMessage{RoomID: roomID, Message: raw, To: to, Exclude: exclude}:
	case <-h.done:
	}
}

// HasUser reports whether userID has a local connection in roomID.
func (h *Hub) HasUser(roomID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.rooms[roomID] {
		if client.Session.GetUserID() == userID {
			return true
		}
	}
	return false
}

// RoomClients returns a snapshot of the local clients in roomID.
func (h *Hub) RoomClients(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.rooms[roomID]))
	for _, client := range h.rooms[roomID] {
		out = append(out, client)
	}
	return out
}

// UserClients returns every local connection authenticated as userID.
func (h *Hub) UserClients(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Client
	for _, client := range h.clients {
		if client.Session.GetUserID() == userID {
			out = append(out, client)
		}
	}
	return out
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// send delivers raw to one client unless it has already been closed.
func (h *Hub) send(client *Client, raw []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.trySendLocked(client, raw)
}

// trySendLocked needs at least the read lock. A full buffer drops the
// client.
func (h *Hub) trySendLocked(client *Client, raw []byte) {
	if client.closed {
		return
	}
	select {
	case client.Send <- raw:
	default:
		go h.Unregister(client)
	}
}

func (h *Hub) closeClientLocked(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	close(client.Send)
}
