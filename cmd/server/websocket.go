package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"yappify/contract"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// upgradeWebSocket authenticates the upgrade request. Browsers cannot
// set headers on a WebSocket dial, so the token travels as a query
// parameter.
func (s *Server) upgradeWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing token")
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}
	c.Locals(localUserID, claims.UserID)
	return c.Next()
}

// inboundFrame is what a connected client sends to post a message.
type inboundFrame struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

// handleWebSocket owns one live connection: it registers the session,
// pumps outbound payloads from the fan-out path, and feeds inbound
// frames into the send pipeline. On any exit the session is removed so
// fan-out stops targeting a dead connection.
func (s *Server) handleWebSocket(c *websocket.Conn) {
	userID, _ := c.Locals(localUserID).(string)
	if userID == "" {
		_ = c.Close()
		return
	}

	conn := newWSConnection(c, s.config.ConnectionBufferSize)
	s.registry.Register(userID, conn)
	s.log.Info("Session opened", "userId", userID)

	defer func() {
		s.registry.Remove(userID, conn)
		conn.Close()
		s.log.Info("Session closed", "userId", userID)
	}()

	go conn.writePump()

	c.SetReadLimit(maxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("WebSocket read failed", "userId", userID, "error", err)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			conn.sendError("invalid frame")
			continue
		}

		if _, err := s.messages.Send(context.Background(), userID, frame.ChatID, frame.Content); err != nil {
			conn.sendError(err.Error())
		}
	}
}

var _ contract.Connection = (*wsConnection)(nil)

// wsConnection adapts a fiber websocket to the registry's Connection.
// Sends land in a buffered channel drained by a single writer goroutine;
// gorilla-style websockets allow only one concurrent writer.
type wsConnection struct {
	conn *websocket.Conn
	out  chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConnection(conn *websocket.Conn, bufferSize int) *wsConnection {
	return &wsConnection{
		conn:   conn,
		out:    make(chan []byte, bufferSize),
		closed: make(chan struct{}),
	}
}

// Send queues a payload for the writer. A full buffer means the client
// is not keeping up; the error lets the registry evict the session
// rather than block the fan-out path.
func (w *wsConnection) Send(payload []byte) error {
	select {
	case <-w.closed:
		return fmt.Errorf("connection closed")
	case w.out <- payload:
		return nil
	default:
		return fmt.Errorf("connection buffer full")
	}
}

func (w *wsConnection) Close() {
	w.closeOnce.Do(func() { close(w.closed) })
}

// writePump is the sole writer on the underlying connection. It drains
// queued payloads and keeps the connection alive with pings.
func (w *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = w.conn.Close()
	}()

	for {
		select {
		case <-w.closed:
			_ = w.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-w.out:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (w *wsConnection) sendError(message string) {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return
	}
	_ = w.Send(payload)
}
