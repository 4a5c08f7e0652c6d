// Package router manages WebSocket connections for chat clients and routes
// direct messages, read receipts, and typing events between them.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/courier-chat/courier/internal/auth"
	"github.com/courier-chat/courier/internal/registry"
	"github.com/courier-chat/courier/internal/store"
	"github.com/courier-chat/courier/pkg/protocol"
)

// makeUpgrader creates a WebSocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// Router owns the WebSocket endpoint and message routing between users.
type Router struct {
	store        store.Store
	authProvider auth.Provider
	registry     *registry.Registry
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	maxFrameBytes   int64 // max WebSocket frame size from clients
	maxContentBytes int   // max message content size
}

// Options configures the Router.
type Options struct {
	AllowedOrigins  []string // for WebSocket origin check
	MaxFrameBytes   int64    // max WebSocket frame size from clients (default 64KB)
	MaxContentBytes int      // max message content size (default 1000)
}

// New creates a new Router.
func New(s store.Store, ap auth.Provider, reg *registry.Registry, logger *slog.Logger, opts Options) *Router {
	frameLimit := opts.MaxFrameBytes
	if frameLimit == 0 {
		frameLimit = 64 * 1024 // 64KB default
	}
	contentLimit := opts.MaxContentBytes
	if contentLimit == 0 {
		contentLimit = 1000
	}

	return &Router{
		store:           s,
		authProvider:    ap,
		registry:        reg,
		logger:          logger.With("component", "router"),
		upgrader:        makeUpgrader(opts.AllowedOrigins),
		maxFrameBytes:   frameLimit,
		maxContentBytes: contentLimit,
	}
}

// HandleWS handles a chat client WebSocket connection.
func (r *Router) HandleWS(w http.ResponseWriter, req *http.Request) {
	// Extract JWT from query param or Authorization header.
	// Security note: JWT in query parameter is required for WebSocket connections since
	// browsers cannot set custom headers during the WebSocket handshake. Ensure server
	// access logs are configured to exclude query parameters to prevent token leakage.
	tokenStr := req.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr = req.Header.Get("Authorization")
		if len(tokenStr) > 7 && tokenStr[:7] == "Bearer " {
			tokenStr = tokenStr[7:]
		}
	}

	identity, err := r.authProvider.ValidateToken(req.Context(), tokenStr)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}
	sess := &registry.Session{
		ID:        uuid.New().String(),
		UserID:    identity.UserID,
		Username:  identity.Username,
		CreatedAt: time.Now(),
		Sink:      sink,
	}

	if err := r.registry.Register(sess); err != nil {
		r.logger.Warn("too many sessions for user", "user", identity.Username)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"))
		return
	}

	conn.SetReadLimit(r.maxFrameBytes)
	stopKeepalive := startKeepalive(conn, &sink.mu)

	r.logger.Info("client connected", "user", identity.Username, "session_id", sess.ID)
	r.audit(context.Background(), "session.connect", identity.UserID, "", nil)

	defer func() {
		stopKeepalive()
		r.registry.Unregister(sess.UserID, sess.ID)
		r.audit(context.Background(), "session.disconnect", identity.UserID, "", nil)
		r.logger.Info("client disconnected", "user", identity.Username, "session_id", sess.ID)
	}()

	var limiter msgLimiter
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			r.logger.Debug("client read error", "session_id", sess.ID, "error", err)
			return
		}

		if !limiter.allow() {
			r.logger.Debug("client message rate limited", "session_id", sess.ID)
			continue
		}

		r.dispatch(req.Context(), sess, msg)
	}
}

// dispatch decodes one inbound frame and routes it. Malformed frames produce
// an error frame on the offending session; the connection stays open.
func (r *Router) dispatch(ctx context.Context, sess *registry.Session, msg []byte) {
	var head protocol.FrameHead
	if err := json.Unmarshal(msg, &head); err != nil {
		r.sendError(sess, "invalid frame")
		return
	}

	switch head.Type {
	case protocol.TypeMessage:
		var frame protocol.SendMessage
		if err := json.Unmarshal(msg, &frame); err != nil {
			r.sendError(sess, "invalid message frame")
			return
		}
		r.RouteMessage(ctx, sess, frame.ReceiverID, frame.Content)

	case protocol.TypeReadMessages:
		var frame protocol.ReadMessages
		if err := json.Unmarshal(msg, &frame); err != nil {
			r.sendError(sess, "invalid read_messages frame")
			return
		}
		r.RouteReadReceipt(ctx, sess, frame.SenderID)

	case protocol.TypeTyping:
		var frame protocol.Typing
		if err := json.Unmarshal(msg, &frame); err != nil {
			r.sendError(sess, "invalid typing frame")
			return
		}
		r.RouteTyping(sess, frame.ReceiverID, frame.IsTyping)

	default:
		r.logger.Warn("unknown client frame type", "type", head.Type, "user", sess.Username)
		r.sendError(sess, "unknown message type")
	}
}

// RouteMessage persists a message and fans it out. The message is written to
// the store before any session hears about it; the sender's own sessions get
// the same envelope as the receiver's, which doubles as the delivery ack.
func (r *Router) RouteMessage(ctx context.Context, from *registry.Session, receiverID, content string) {
	if receiverID == "" {
		r.sendError(from, "receiver_id is required")
		return
	}
	if content == "" {
		r.sendError(from, "content is empty")
		return
	}
	if len(content) > r.maxContentBytes {
		r.sendError(from, "content exceeds maximum size")
		return
	}

	msg, err := r.store.CreateMessage(ctx, from.UserID, receiverID, content)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			r.sendError(from, "receiver not found")
			return
		}
		r.logger.Warn("failed to persist message", "sender", from.UserID, "error", err)
		r.sendError(from, "failed to persist message")
		return
	}

	frame := protocol.NewMessage{
		Type: protocol.TypeNewMessage,
		Message: protocol.WireMessage{
			ID:             msg.ID,
			SenderID:       msg.SenderID,
			SenderUsername: from.Username,
			ReceiverID:     msg.ReceiverID,
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt,
			IsRead:         msg.IsRead,
		},
	}

	r.deliver(receiverID, frame)
	if receiverID != from.UserID {
		r.deliver(from.UserID, frame)
	}

	r.audit(ctx, "message.sent", from.UserID, receiverID, nil)
}

// RouteReadReceipt marks messages from senderID to the reader as read and
// notifies both parties. The notification is sent even when nothing was
// unread so that clients can settle their state.
func (r *Router) RouteReadReceipt(ctx context.Context, from *registry.Session, senderID string) {
	if senderID == "" {
		r.sendError(from, "sender_id is required")
		return
	}

	count, err := r.store.MarkMessagesRead(ctx, senderID, from.UserID)
	if err != nil {
		r.logger.Warn("failed to mark messages read", "reader", from.UserID, "error", err)
		r.sendError(from, "failed to mark messages read")
		return
	}

	frame := protocol.MessagesRead{
		Type:       protocol.TypeMessagesRead,
		SenderID:   senderID,
		ReceiverID: from.UserID,
		Count:      count,
	}

	r.deliver(senderID, frame)
	if senderID != from.UserID {
		r.deliver(from.UserID, frame)
	}
}

// RouteTyping forwards a typing indicator to the receiver's live sessions.
// Typing events are ephemeral and never persisted.
func (r *Router) RouteTyping(from *registry.Session, receiverID string, isTyping bool) {
	if receiverID == "" {
		r.sendError(from, "receiver_id is required")
		return
	}

	r.deliver(receiverID, protocol.UserTyping{
		Type:       protocol.TypeUserTyping,
		SenderID:   from.UserID,
		ReceiverID: receiverID,
		IsTyping:   isTyping,
	})
}

// deliver sends a frame to every live session of one user. A failed write
// tears down only the session it failed on; the rest keep receiving.
func (r *Router) deliver(userID string, frame any) {
	for _, sess := range r.registry.LiveSessions(userID) {
		if err := sess.Sink.Send(frame); err != nil {
			r.logger.Warn("send failed, dropping session", "user", userID, "session_id", sess.ID, "error", err)
			r.registry.Unregister(sess.UserID, sess.ID)
			_ = sess.Sink.Close()
		}
	}
}

func (r *Router) sendError(sess *registry.Session, msg string) {
	if err := sess.Sink.Send(protocol.ErrorFrame{Error: msg}); err != nil {
		r.registry.Unregister(sess.UserID, sess.ID)
		_ = sess.Sink.Close()
	}
}

func (r *Router) audit(ctx context.Context, action, userID, peerID string, detail json.RawMessage) {
	err := r.store.LogAuditEvent(ctx, &store.AuditEvent{
		ID:        uuid.New().String(),
		Action:    action,
		UserID:    userID,
		PeerID:    peerID,
		Detail:    detail,
		CreatedAt: time.Now(),
	})
	if err != nil {
		r.logger.Warn("failed to log audit event", "action", action, "error", err)
	}
}

// msgLimiter is a token bucket limiting inbound frames per connection.
type msgLimiter struct {
	mu       sync.Mutex
	tokens   float64
	lastTime time.Time
}

func (l *msgLimiter) allow() bool {
	const rate = 30.0  // frames per second
	const burst = 50.0 // max burst

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastTime.IsZero() {
		l.tokens = burst
		l.lastTime = now
	}

	elapsed := now.Sub(l.lastTime).Seconds()
	l.tokens += elapsed * rate
	if l.tokens > burst {
		l.tokens = burst
	}
	l.lastTime = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
