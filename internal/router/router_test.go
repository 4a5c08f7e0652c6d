package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/courier-chat/courier/internal/auth"
	"github.com/courier-chat/courier/internal/config"
	"github.com/courier-chat/courier/internal/registry"
	"github.com/courier-chat/courier/internal/store"
	"github.com/courier-chat/courier/pkg/protocol"
)

// fakeSink records delivered frames. When failing is set, every Send errors.
type fakeSink struct {
	mu      sync.Mutex
	frames  []any
	failing bool
	closed  bool
}

func (f *fakeSink) Send(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("write failed")
	}
	f.frames = append(f.frames, v)
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) all() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.frames...)
}

func setupTestRouter(t *testing.T) (*Router, store.Store, *registry.Registry, *auth.Service) {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	authSvc := auth.NewService(s, config.AuthConfig{
		JWTSecret: "test-secret-at-least-32-chars-long",
		JWTExpiry: config.Duration{Duration: 1 * time.Hour},
	})

	reg := registry.New(5)
	rt := New(s, authSvc, reg, slog.Default(), Options{MaxContentBytes: 100})
	return rt, s, reg, authSvc
}

// seedUser creates a user and returns it.
func seedUser(t *testing.T, authSvc *auth.Service, username string) *store.User {
	t.Helper()
	user, err := authSvc.Register(context.Background(), username, "testpassword123", "user")
	if err != nil {
		t.Fatal(err)
	}
	return user
}

// connectSession registers a fake session for the user and returns its sink.
func connectSession(t *testing.T, reg *registry.Registry, user *store.User) (*registry.Session, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	sess := &registry.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: time.Now(),
		Sink:      sink,
	}
	if err := reg.Register(sess); err != nil {
		t.Fatal(err)
	}
	return sess, sink
}

func TestRouteMessage_PersistsBeforeFanout(t *testing.T) {
	rt, s, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob")
	aliceSess, aliceSink := connectSession(t, reg, alice)
	_, bobSink := connectSession(t, reg, bob)

	rt.RouteMessage(ctx, aliceSess, bob.ID, "hello bob")

	// Message is persisted.
	msgs, err := s.ListConversation(ctx, alice.ID, bob.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello bob" {
		t.Fatalf("persisted messages = %+v", msgs)
	}

	// Receiver got the new_message frame.
	bobFrames := bobSink.all()
	if len(bobFrames) != 1 {
		t.Fatalf("bob got %d frames, want 1", len(bobFrames))
	}
	nm, ok := bobFrames[0].(protocol.NewMessage)
	if !ok {
		t.Fatalf("bob frame = %T, want NewMessage", bobFrames[0])
	}
	if nm.Type != protocol.TypeNewMessage {
		t.Errorf("type = %q", nm.Type)
	}
	if nm.Message.ID != msgs[0].ID {
		t.Errorf("frame message ID %q != stored ID %q", nm.Message.ID, msgs[0].ID)
	}
	if nm.Message.SenderUsername != "alice" {
		t.Errorf("SenderUsername = %q", nm.Message.SenderUsername)
	}

	// Sender got the identical envelope as the delivery ack.
	aliceFrames := aliceSink.all()
	if len(aliceFrames) != 1 {
		t.Fatalf("alice got %d frames, want 1", len(aliceFrames))
	}
	echo, ok := aliceFrames[0].(protocol.NewMessage)
	if !ok {
		t.Fatalf("alice frame = %T, want NewMessage", aliceFrames[0])
	}
	if echo.Message.ID != nm.Message.ID || echo.Message.Content != nm.Message.Content {
		t.Errorf("echo differs from receiver copy: %+v vs %+v", echo.Message, nm.Message)
	}
}

func TestRouteMessage_OfflineReceiverStillPersists(t *testing.T) {
	rt, s, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob") // never connects
	aliceSess, aliceSink := connectSession(t, reg, alice)

	rt.RouteMessage(ctx, aliceSess, bob.ID, "are you there")

	msgs, err := s.ListConversation(ctx, alice.ID, bob.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d persisted messages, want 1", len(msgs))
	}

	// Sender still gets the echo even though the receiver is offline.
	if len(aliceSink.all()) != 1 {
		t.Errorf("alice got %d frames, want 1", len(aliceSink.all()))
	}
}

func TestRouteMessage_AllReceiverSessions(t *testing.T) {
	rt, _, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob")
	aliceSess, _ := connectSession(t, reg, alice)
	_, bobSink1 := connectSession(t, reg, bob)
	_, bobSink2 := connectSession(t, reg, bob)

	rt.RouteMessage(ctx, aliceSess, bob.ID, "hi")

	if len(bobSink1.all()) != 1 || len(bobSink2.all()) != 1 {
		t.Errorf("bob sessions got %d and %d frames, want 1 and 1",
			len(bobSink1.all()), len(bobSink2.all()))
	}
}

func TestRouteMessage_UnknownReceiver(t *testing.T) {
	rt, s, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	aliceSess, aliceSink := connectSession(t, reg, alice)

	rt.RouteMessage(ctx, aliceSess, uuid.NewString(), "hello?")

	frames := aliceSink.all()
	if len(frames) != 1 {
		t.Fatalf("alice got %d frames, want 1 error", len(frames))
	}
	ef, ok := frames[0].(protocol.ErrorFrame)
	if !ok {
		t.Fatalf("frame = %T, want ErrorFrame", frames[0])
	}
	if ef.Error != "receiver not found" {
		t.Errorf("error = %q", ef.Error)
	}

	msgs, err := s.ListMessagesForUser(ctx, alice.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("message persisted despite unknown receiver")
	}
}

func TestRouteMessage_ContentLimits(t *testing.T) {
	rt, s, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob")
	aliceSess, aliceSink := connectSession(t, reg, alice)

	long := make([]byte, 101) // limit is 100 in setupTestRouter
	for i := range long {
		long[i] = 'x'
	}

	rt.RouteMessage(ctx, aliceSess, bob.ID, string(long))
	rt.RouteMessage(ctx, aliceSess, bob.ID, "")

	frames := aliceSink.all()
	if len(frames) != 2 {
		t.Fatalf("alice got %d frames, want 2 errors", len(frames))
	}
	for _, f := range frames {
		if _, ok := f.(protocol.ErrorFrame); !ok {
			t.Errorf("frame = %T, want ErrorFrame", f)
		}
	}

	msgs, err := s.ListConversation(ctx, alice.ID, bob.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("rejected content was persisted")
	}
}

func TestRouteMessage_FailedSessionIsolated(t *testing.T) {
	rt, _, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob")
	aliceSess, _ := connectSession(t, reg, alice)
	badSess, badSink := connectSession(t, reg, bob)
	_, goodSink := connectSession(t, reg, bob)
	badSink.failing = true

	rt.RouteMessage(ctx, aliceSess, bob.ID, "hi")

	// The healthy session still got its copy.
	if len(goodSink.all()) != 1 {
		t.Errorf("healthy session got %d frames, want 1", len(goodSink.all()))
	}

	// The failed session was torn down; the healthy one survives.
	if !badSink.closed {
		t.Error("failed session sink not closed")
	}
	if reg.CountSessions(bob.ID) != 1 {
		t.Errorf("bob has %d sessions, want 1", reg.CountSessions(bob.ID))
	}

	// Bob is still reachable on the surviving session.
	rt.RouteMessage(ctx, aliceSess, bob.ID, "again")
	if len(goodSink.all()) != 2 {
		t.Errorf("healthy session got %d frames, want 2", len(goodSink.all()))
	}
	_ = badSess
}

func TestRouteReadReceipt(t *testing.T) {
	rt, s, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob")
	_, aliceSink := connectSession(t, reg, alice)
	bobSess, bobSink := connectSession(t, reg, bob)

	for i := 0; i < 2; i++ {
		if _, err := s.CreateMessage(ctx, alice.ID, bob.ID, "unread"); err != nil {
			t.Fatal(err)
		}
	}

	// Bob reads alice's messages.
	rt.RouteReadReceipt(ctx, bobSess, alice.ID)

	aliceFrames := aliceSink.all()
	if len(aliceFrames) != 1 {
		t.Fatalf("alice got %d frames, want 1", len(aliceFrames))
	}
	mr, ok := aliceFrames[0].(protocol.MessagesRead)
	if !ok {
		t.Fatalf("frame = %T, want MessagesRead", aliceFrames[0])
	}
	if mr.SenderID != alice.ID || mr.ReceiverID != bob.ID || mr.Count != 2 {
		t.Errorf("messages_read = %+v", mr)
	}

	// Bob's own sessions hear about it too.
	if len(bobSink.all()) != 1 {
		t.Errorf("bob got %d frames, want 1", len(bobSink.all()))
	}

	// A repeat receipt is delivered with a zero count.
	rt.RouteReadReceipt(ctx, bobSess, alice.ID)
	aliceFrames = aliceSink.all()
	if len(aliceFrames) != 2 {
		t.Fatalf("alice got %d frames after repeat, want 2", len(aliceFrames))
	}
	if got := aliceFrames[1].(protocol.MessagesRead).Count; got != 0 {
		t.Errorf("repeat count = %d, want 0", got)
	}
}

func TestRouteTyping(t *testing.T) {
	rt, s, reg, authSvc := setupTestRouter(t)

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob")
	aliceSess, aliceSink := connectSession(t, reg, alice)
	_, bobSink := connectSession(t, reg, bob)

	rt.RouteTyping(aliceSess, bob.ID, true)

	frames := bobSink.all()
	if len(frames) != 1 {
		t.Fatalf("bob got %d frames, want 1", len(frames))
	}
	ut, ok := frames[0].(protocol.UserTyping)
	if !ok {
		t.Fatalf("frame = %T, want UserTyping", frames[0])
	}
	if ut.SenderID != alice.ID || !ut.IsTyping {
		t.Errorf("user_typing = %+v", ut)
	}

	// Typing is not echoed to the sender and never persisted.
	if len(aliceSink.all()) != 0 {
		t.Errorf("alice got %d frames, want 0", len(aliceSink.all()))
	}
	msgs, err := s.ListMessagesForUser(context.Background(), alice.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Error("typing event was persisted")
	}
}

func TestRouteTyping_OfflineReceiver(t *testing.T) {
	rt, _, reg, authSvc := setupTestRouter(t)

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob") // never connects
	aliceSess, aliceSink := connectSession(t, reg, alice)

	rt.RouteTyping(aliceSess, bob.ID, true)

	// Ephemeral events to an offline user vanish without an error.
	if len(aliceSink.all()) != 0 {
		t.Errorf("alice got %d frames, want 0", len(aliceSink.all()))
	}
}

func TestDispatch_MalformedFrame(t *testing.T) {
	rt, _, reg, authSvc := setupTestRouter(t)

	alice := seedUser(t, authSvc, "alice")
	aliceSess, aliceSink := connectSession(t, reg, alice)

	rt.dispatch(context.Background(), aliceSess, []byte("{not json"))

	frames := aliceSink.all()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if _, ok := frames[0].(protocol.ErrorFrame); !ok {
		t.Errorf("frame = %T, want ErrorFrame", frames[0])
	}

	// Session survives a malformed frame.
	if reg.CountSessions(alice.ID) != 1 {
		t.Error("session dropped after malformed frame")
	}
}

func TestDispatch_UnknownType(t *testing.T) {
	rt, _, reg, authSvc := setupTestRouter(t)

	alice := seedUser(t, authSvc, "alice")
	aliceSess, aliceSink := connectSession(t, reg, alice)

	rt.dispatch(context.Background(), aliceSess, []byte(`{"type":"bogus"}`))

	frames := aliceSink.all()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	ef, ok := frames[0].(protocol.ErrorFrame)
	if !ok || ef.Error != "unknown message type" {
		t.Errorf("frame = %+v", frames[0])
	}
}

func TestDispatch_ValidMessageFrame(t *testing.T) {
	rt, s, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob")
	aliceSess, _ := connectSession(t, reg, alice)
	_, bobSink := connectSession(t, reg, bob)

	raw := `{"type":"message","receiver_id":"` + bob.ID + `","content":"via dispatch"}`
	rt.dispatch(ctx, aliceSess, []byte(raw))

	if len(bobSink.all()) != 1 {
		t.Fatalf("bob got %d frames, want 1", len(bobSink.all()))
	}
	msgs, err := s.ListConversation(ctx, alice.ID, bob.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Content != "via dispatch" {
		t.Errorf("persisted = %+v", msgs)
	}
}

func TestDispatch_MessageMissingReceiver(t *testing.T) {
	rt, s, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	aliceSess, aliceSink := connectSession(t, reg, alice)

	rt.dispatch(ctx, aliceSess, []byte(`{"type":"message","content":"hi"}`))

	frames := aliceSink.all()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	ef, ok := frames[0].(protocol.ErrorFrame)
	if !ok || ef.Error != "receiver_id is required" {
		t.Errorf("frame = %+v", frames[0])
	}

	msgs, err := s.ListMessagesForUser(ctx, alice.ID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Error("message without a receiver was persisted")
	}
}

func TestRouteMessage_AuditEvent(t *testing.T) {
	rt, s, reg, authSvc := setupTestRouter(t)
	ctx := context.Background()

	alice := seedUser(t, authSvc, "alice")
	bob := seedUser(t, authSvc, "bob")
	aliceSess, _ := connectSession(t, reg, alice)

	rt.RouteMessage(ctx, aliceSess, bob.ID, "audited")

	events, err := s.ListAuditEvents(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, ev := range events {
		if ev.Action == "message.sent" && ev.UserID == alice.ID && ev.PeerID == bob.ID {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected a message.sent audit event")
	}
}

func TestMsgLimiter(t *testing.T) {
	var l msgLimiter
	allowed := 0
	for i := 0; i < 100; i++ {
		if l.allow() {
			allowed++
		}
	}
	// Burst is 50; a tight loop cannot refill meaningfully.
	if allowed < 40 || allowed > 60 {
		t.Errorf("allowed %d frames in a burst, want around 50", allowed)
	}
}
