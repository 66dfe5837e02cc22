package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/data/repos"
	"github.com/yungbote/echoworld-backend/internal/data/repos/testutil"
	types "github.com/yungbote/echoworld-backend/internal/domain"
	"github.com/yungbote/echoworld-backend/internal/domain/messaging"
	apphttp "github.com/yungbote/echoworld-backend/internal/http"
	httpH "github.com/yungbote/echoworld-backend/internal/http/handlers"
	httpMW "github.com/yungbote/echoworld-backend/internal/http/middleware"
	"github.com/yungbote/echoworld-backend/internal/realtime"
	"github.com/yungbote/echoworld-backend/internal/realtime/presence"
	"github.com/yungbote/echoworld-backend/internal/services"
)

type testServer struct {
	url  string
	auth services.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)

	hub := realtime.NewHub(log)
	pub := realtime.NewPublisher(&realtime.HubEmitter{Hub: hub}, log)
	presenceHub := presence.NewHub(log, presence.DefaultTTL)
	profileRepo := repos.NewProfileRepo(db, log)
	auth := services.NewAuthService(log, "client-secret", "echoworld-test")
	msgs := services.NewMessagingService(
		db, log,
		profileRepo,
		repos.NewConversationRepo(db, log),
		repos.NewConversationMemberRepo(db, log),
		repos.NewMessageRepo(db, log),
		repos.NewNotificationRepo(db, log),
		services.NewMessagingNotifier(pub),
	)
	engine := apphttp.NewRouter(apphttp.RouterConfig{
		Log:              log,
		AuthMiddleware:   httpMW.NewAuthMiddleware(log, auth),
		ProfileHandler:   httpH.NewProfileHandler(services.NewProfileService(db, log, profileRepo)),
		MessagingHandler: httpH.NewMessagingHandler(msgs),
		RealtimeHandler:  httpH.NewRealtimeHandler(log, hub, pub, presenceHub, time.Minute),
		PresenceHandler:  httpH.NewPresenceHandler(presenceHub),
	})
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, auth: auth}
}

func (s *testServer) login(t *testing.T, handle string) (*Client, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	token, err := s.auth.IssueToken(id, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	c, err := New(testutil.Logger(t), Config{BaseURL: s.url, Token: token})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.EnsureMe(context.Background(), handle+uuid.NewString()[:6], handle); err != nil {
		t.Fatalf("EnsureMe: %v", err)
	}
	return c, id
}

func TestClientDirectConversationFlow(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	alice, _ := srv.login(t, "alice")
	bob, bobID := srv.login(t, "bob")

	conv, created, err := alice.StartDirectConversation(ctx, bobID, nil)
	if err != nil || !created {
		t.Fatalf("StartDirectConversation: created=%v err=%v", created, err)
	}

	msg, err := alice.SendMessage(ctx, conv.ID, "hello", types.SendMetadata{ClientID: "c1"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	again, err := alice.SendMessage(ctx, conv.ID, "hello", types.SendMetadata{ClientID: "c1"})
	if err != nil || again.ID != msg.ID {
		t.Fatalf("resubmit: id=%v err=%v", again, err)
	}

	unread, err := bob.Unread(ctx)
	if err != nil {
		t.Fatalf("Unread: %v", err)
	}
	if unread.Total != 1 || unread.ByConversation[conv.ID] != 1 {
		t.Fatalf("unread=%+v", unread)
	}

	convs, err := bob.ListConversations(ctx, 10)
	if err != nil || len(convs) != 1 {
		t.Fatalf("ListConversations: %d err=%v", len(convs), err)
	}
	if convs[0].Conversation == nil || convs[0].ID != conv.ID || convs[0].LastMessage == nil || convs[0].LastMessage.Content != "hello" {
		t.Fatalf("summary=%+v", convs[0])
	}

	if err := bob.MarkRead(ctx, conv.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n, err := bob.CountUnread(ctx); err != nil || n != 0 {
		t.Fatalf("CountUnread=%d err=%v", n, err)
	}
	if n, err := bob.MarkNotificationsRead(ctx, nil); err != nil || n != 1 {
		t.Fatalf("MarkNotificationsRead=%d err=%v", n, err)
	}
	if err := bob.SetMuted(ctx, conv.ID, true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}

	edited, err := alice.EditMessage(ctx, msg.ID, "hello!")
	if err != nil || edited.Content != "hello!" {
		t.Fatalf("EditMessage: %+v err=%v", edited, err)
	}
	if err := alice.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
}

func TestClientMapsErrorCodes(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	alice, aliceID := srv.login(t, "alice")

	_, _, err := alice.StartDirectConversation(ctx, aliceID, nil)
	if !messaging.IsCode(err, messaging.CodeValidation) {
		t.Fatalf("self conversation err=%v", err)
	}
	_, err = alice.ListMessages(ctx, uuid.New(), 10)
	if !messaging.IsCode(err, messaging.CodeForbidden) {
		t.Fatalf("foreign conversation err=%v", err)
	}
	_, err = alice.ProfileByHandle(ctx, "nobody-"+uuid.NewString()[:6])
	if !messaging.IsCode(err, messaging.CodeNotFound) {
		t.Fatalf("missing profile err=%v", err)
	}

	anon, err := New(testutil.Logger(t), Config{BaseURL: srv.url})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := anon.Me(ctx); !messaging.IsCode(err, messaging.CodeAuthentication) {
		t.Fatalf("anonymous err=%v", err)
	}
}

func TestRelayFeedsLocalSession(t *testing.T) {
	srv := newTestServer(t)
	alice, _ := srv.login(t, "alice")
	bob, bobID := srv.login(t, "bob")
	log := testutil.Logger(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := realtime.NewHub(log)
	sess := realtime.NewSession(hub, realtime.NewPublisher(&realtime.HubEmitter{Hub: hub}, log), log)
	got := make(chan realtime.MessageRecord, 4)
	sess.OnMessage(realtime.Listen(func(rec realtime.MessageRecord) { got <- rec }))
	if err := sess.Start(bobID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	online := make(chan struct{}, 1)
	relayDone := make(chan error, 1)
	go func() {
		relayDone <- bob.Relay(ctx, hub, bobID, func(st presence.State) {
			if st[bobID].Online {
				select {
				case online <- struct{}{}:
				default:
				}
			}
		})
	}()

	select {
	case <-online:
	case <-time.After(5 * time.Second):
		t.Fatal("relay never reported presence")
	}

	conv, _, err := alice.StartDirectConversation(context.Background(), bobID, nil)
	if err != nil {
		t.Fatalf("StartDirectConversation: %v", err)
	}
	if _, err := alice.SendMessage(context.Background(), conv.ID, "over the wire", types.SendMetadata{ClientID: "w1"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	select {
	case rec := <-got:
		if rec.Content != "over the wire" || rec.ClientID != "w1" || rec.ConversationID != conv.ID.String() {
			t.Fatalf("record=%+v", rec)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message never reached the local session")
	}

	cancel()
	select {
	case err := <-relayDone:
		if err != nil {
			t.Fatalf("Relay: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelayResetsBackoffOnQuietStream(t *testing.T) {
	var opened atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opened.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, ": connected\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}))
	t.Cleanup(srv.Close)

	minBackoff, maxBackoff := relayMinBackoff, relayMaxBackoff
	relayMinBackoff, relayMaxBackoff = 10*time.Millisecond, time.Second
	t.Cleanup(func() { relayMinBackoff, relayMaxBackoff = minBackoff, maxBackoff })

	c, err := New(testutil.Logger(t), Config{BaseURL: srv.URL, Token: "t"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	hub := realtime.NewHub(testutil.Logger(t))
	if err := c.Relay(ctx, hub, uuid.New(), nil); err != nil {
		t.Fatalf("Relay: %v", err)
	}
	// Doubling without a reset allows about six attempts in this window.
	if n := opened.Load(); n < 12 {
		t.Fatalf("reconnected %d times; backoff was not reset after a clean open", n)
	}
}

func TestReadSSE(t *testing.T) {
	raw := ": connected\n\nevent: message_insert\ndata: {\"a\":1}\n\n: ping\n\nevent: presence_state\ndata: {}\n"
	var events []string
	err := readSSE(strings.NewReader(raw), func(event string, data []byte) error {
		events = append(events, event+"="+string(data))
		return nil
	})
	if err != nil {
		t.Fatalf("readSSE: %v", err)
	}
	want := []string{`message_insert={"a":1}`, `presence_state={}`}
	if len(events) != len(want) || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("events=%v", events)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(testutil.Logger(t), Config{}); err == nil {
		t.Fatal("expected error")
	}
}
