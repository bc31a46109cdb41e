package signal

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	pkglog "github.com/weiawesome/focus-room/pkg/log"
)

// DisconnectHandler runs once when a client's read loop ends.
type DisconnectHandler func(*Client)

// Client is one WebSocket connection. Outbound frames go through Send,
// which the hub closes when the client is dropped.
type Client struct {
	ID      string
	Send    chan []byte
	Session *Session

	hub          *Hub
	conn         *websocket.Conn
	onDisconnect DisconnectHandler
	closed       bool // guarded by hub.mu
}

func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.onDisconnect = handler
}

// ReadPump feeds inbound frames to handle until the socket fails or the
// peer stops answering pings, then runs the disconnect handler and
// unregisters the client.
func (c *Client) ReadPump(handle func(*Client, []byte)) {
	cfg := c.hub.config
	defer func() {
		if c.onDisconnect != nil {
			c.onDisconnect(c)
		}
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(cfg.MaxMessageSize)
	}
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait)) }
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := pkglog.L()
				l.Warn().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("websocket read failed")
			}
			return
		}
		c.Session.UpdateActivity()
		handle(c, frame)
	}
}

// WritePump writes queued frames and keepalive pings. It exits when Send
// is closed or a write fails.
func (c *Client) WritePump() {
	cfg := c.hub.config
	ping := time.NewTicker(cfg.PingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			deadline := time.Now().Add(cfg.WriteWait)
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			c.conn.SetWriteDeadline(deadline)
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteWait)); err != nil {
				return
			}
		}
	}
}

// SendMessage encodes message and queues it without blocking. A client
// whose buffer is full is dropped by the hub.
func (c *Client) SendMessage(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	c.hub.send(c, data)
	return nil
}
