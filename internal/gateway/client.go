package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/arialabs/aria/internal/agent"
	"github.com/arialabs/aria/internal/sessions"
	"github.com/arialabs/aria/pkg/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket connection speaking spec §6's ClientMessage/Event
// protocol. One client runs at most one agent turn at a time; a "stop"
// frame cancels the in-flight turn via its CancelFunc.
type Client struct {
	id      string
	ownerID string
	conn    *websocket.Conn
	server  *Server

	sendMu sync.Mutex

	turnMu     sync.Mutex
	turnCancel context.CancelFunc
}

// NewClient wraps conn as a Client owned by ownerID.
func NewClient(conn *websocket.Conn, server *Server, ownerID string) *Client {
	return &Client{id: uuid.NewString(), ownerID: ownerID, conn: conn, server: server}
}

// Run drives the read loop until the connection closes or ctx is done.
func (c *Client) Run(ctx context.Context) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stopPing := make(chan struct{})
	go c.pingLoop(stopPing)
	defer close(stopPing)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg protocol.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.SendEvent(protocol.NewError("malformed message"))
			continue
		}
		if msg.Type == protocol.ClientChat && c.server.rateLimiter.Enabled() && !c.server.rateLimiter.Allow(c.id) {
			c.SendEvent(protocol.NewError("rate limit exceeded"))
			continue
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *Client) handleMessage(ctx context.Context, msg protocol.ClientMessage) {
	switch msg.Type {
	case protocol.ClientPing:
		c.SendEvent(protocol.NewPong())
	case protocol.ClientStop:
		c.turnMu.Lock()
		if c.turnCancel != nil {
			c.turnCancel()
		}
		c.turnMu.Unlock()
	case protocol.ClientChat:
		go c.runTurn(ctx, msg)
	default:
		c.SendEvent(protocol.NewError("unknown message type"))
	}
}

func (c *Client) runTurn(ctx context.Context, msg protocol.ClientMessage) {
	turnCtx, cancel := context.WithCancel(ctx)
	c.turnMu.Lock()
	if c.turnCancel != nil {
		c.turnMu.Unlock()
		cancel()
		c.SendEvent(protocol.NewError("a turn is already running"))
		return
	}
	c.turnCancel = cancel
	c.turnMu.Unlock()
	defer cancel()

	sessionKey := sessions.BuildMainKey(c.ownerID)
	result, err := c.server.loop.Run(turnCtx, agent.RunRequest{
		SessionKey: sessionKey,
		UserID:     c.ownerID,
		Message:    msg.Message,
		Progress:   c.SendEvent,
		Cancel:     func() bool { return turnCtx.Err() != nil },
	})

	c.turnMu.Lock()
	c.turnCancel = nil
	c.turnMu.Unlock()

	if err != nil {
		c.SendEvent(protocol.NewError(err.Error()))
		return
	}
	c.SendEvent(protocol.NewResponse(sessionKey, result.Text))
}

func (c *Client) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.sendMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.sendMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// SendEvent writes ev to the client as a JSON frame. Safe for concurrent
// use — the agent loop's progress callback and the bus subscription both
// call this from their own goroutines.
func (c *Client) SendEvent(ev protocol.Event) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		slog.Debug("gateway: write failed", "client", c.id, "error", err)
	}
}

// Close closes the underlying connection and releases its rate-limit
// bucket.
func (c *Client) Close() {
	c.server.rateLimiter.Forget(c.id)
	c.conn.Close()
}
