package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/courier-chat/courier/pkg/protocol"
)

// FrameHandler processes raw frames received from the server. The head carries
// the dispatched type; data is the full frame for a second-pass unmarshal.
type FrameHandler func(head protocol.FrameHead, data []byte)

// WS manages the WebSocket connection from the chat client to the server.
type WS struct {
	baseURL   string
	token     string
	handler   FrameHandler
	logger    *slog.Logger
	reconnect time.Duration

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	reconnecting bool
}

// NewWS creates a WebSocket client. baseURL is the server's HTTP base URL;
// the ws:// scheme and /ws path are derived from it.
func NewWS(baseURL, token string, handler FrameHandler, logger *slog.Logger) *WS {
	return &WS{
		baseURL:   baseURL,
		token:     token,
		handler:   handler,
		logger:    logger.With("component", "ws-client"),
		reconnect: 3 * time.Second,
	}
}

// Connect establishes the WebSocket connection and begins processing frames.
// It blocks until the context is canceled, reconnecting with a fixed delay
// whenever the connection drops.
func (c *WS) Connect(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := c.connectOnce(ctx); err != nil {
			c.logger.Warn("connection failed", "error", err)
		}

		c.mu.Lock()
		c.connected = false
		c.reconnecting = true
		c.mu.Unlock()

		c.logger.Info("reconnecting", "delay", c.reconnect)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnect):
		}
	}
}

func (c *WS) connectOnce(ctx context.Context) error {
	wsURL, err := c.wsURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.reconnecting = false
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.connected = false
		c.mu.Unlock()
		conn.Close()
	}()

	c.logger.Info("connected to server")

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			return ctx.Err()
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		var head protocol.FrameHead
		if err := json.Unmarshal(msg, &head); err != nil {
			c.logger.Warn("invalid frame from server", "error", err)
			continue
		}

		c.handler(head, msg)
	}
}

// wsURL converts the HTTP base URL into the WebSocket endpoint, carrying the
// token as a query parameter since browsers and most WS stacks cannot set
// headers on the handshake.
func (c *WS) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SendMessage sends a direct message to the given receiver.
func (c *WS) SendMessage(receiverID, content string) error {
	return c.send(protocol.SendMessage{
		Type:       protocol.TypeMessage,
		ReceiverID: receiverID,
		Content:    content,
	})
}

// SendRead marks all messages from the given sender as read.
func (c *WS) SendRead(senderID string) error {
	return c.send(protocol.ReadMessages{
		Type:     protocol.TypeReadMessages,
		SenderID: senderID,
	})
}

// SendTyping signals a typing state change to the given receiver.
func (c *WS) SendTyping(receiverID string, isTyping bool) error {
	return c.send(protocol.Typing{
		Type:       protocol.TypeTyping,
		ReceiverID: receiverID,
		IsTyping:   isTyping,
	})
}

func (c *WS) send(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Connected reports whether the connection is currently established.
func (c *WS) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Reconnecting reports whether the client is between connection attempts.
func (c *WS) Reconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnecting
}

// Close gracefully closes the connection.
func (c *WS) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
