package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/echoworld-backend/internal/data/repos"
	"github.com/yungbote/echoworld-backend/internal/data/repos/testutil"
	types "github.com/yungbote/echoworld-backend/internal/domain"
	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/echoworld-backend/internal/platform/dbctx"
	"github.com/yungbote/echoworld-backend/internal/realtime"
)

type recordingBroadcaster struct {
	mu      sync.Mutex
	records []realtime.Record
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, rec realtime.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
}

func (b *recordingBroadcaster) messages() []realtime.MessageRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []realtime.MessageRecord
	for _, r := range b.records {
		if m, ok := r.(realtime.MessageRecord); ok {
			out = append(out, m)
		}
	}
	return out
}

func (b *recordingBroadcaster) notifications() []realtime.NotificationRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []realtime.NotificationRecord
	for _, r := range b.records {
		if n, ok := r.(realtime.NotificationRecord); ok {
			out = append(out, n)
		}
	}
	return out
}

func newTestMessaging(t *testing.T) (MessagingService, *gorm.DB, *recordingBroadcaster) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	b := &recordingBroadcaster{}
	svc := NewMessagingService(
		db,
		log,
		repos.NewProfileRepo(db, log),
		repos.NewConversationRepo(db, log),
		repos.NewConversationMemberRepo(db, log),
		repos.NewMessageRepo(db, log),
		repos.NewNotificationRepo(db, log),
		NewMessagingNotifier(b),
	)
	return svc, db, b
}

func as(userID uuid.UUID) dbctx.Context {
	return dbctx.Context{Ctx: ctxutil.WithUser(context.Background(), userID)}
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestStartDirectConversationWithSelfIsRejected(t *testing.T) {
	svc, db, _ := newTestMessaging(t)
	a := testutil.SeedProfile(t, context.Background(), db, "alice")

	conv, created, err := svc.StartOrGetDirectConversation(as(a.ID), a.ID, a.ID, nil)
	if !domain.IsCode(err, domain.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if conv != nil || created {
		t.Fatalf("expected no conversation, got %+v created=%v", conv, created)
	}
	if n := countRows(t, db, &types.Conversation{}, "created_by = ?", a.ID); n != 0 {
		t.Fatalf("expected no conversation rows, got %d", n)
	}
	if n := countRows(t, db, &types.ConversationMember{}, "user_id = ?", a.ID); n != 0 {
		t.Fatalf("expected no member rows, got %d", n)
	}
}

func TestStartDirectConversationGuards(t *testing.T) {
	svc, db, _ := newTestMessaging(t)
	ctx := context.Background()
	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")

	tests := []struct {
		name string
		dbc  dbctx.Context
		user uuid.UUID
		peer uuid.UUID
		code domain.ErrorCode
	}{
		{"anonymous", dbctx.Context{Ctx: ctx}, a.ID, b.ID, domain.CodeAuthentication},
		{"acting for someone else", as(a.ID), b.ID, a.ID, domain.CodeForbidden},
		{"missing peer", as(a.ID), a.ID, uuid.Nil, domain.CodeValidation},
		{"unknown peer", as(a.ID), a.ID, uuid.New(), domain.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.StartOrGetDirectConversation(tt.dbc, tt.user, tt.peer, nil)
			if got := domain.CodeOf(err); got != tt.code {
				t.Fatalf("code=%q want %q (err=%v)", got, tt.code, err)
			}
		})
	}
}

func TestStartDirectConversationReusesExisting(t *testing.T) {
	svc, db, _ := newTestMessaging(t)
	ctx := context.Background()
	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")
	echo := "echo-" + uuid.NewString()

	first, created, err := svc.StartOrGetDirectConversation(as(a.ID), a.ID, b.ID, &echo)
	if err != nil || !created {
		t.Fatalf("first start: created=%v err=%v", created, err)
	}
	if first.OriginReference == nil || *first.OriginReference != echo {
		t.Fatalf("origin reference not stored: %+v", first.OriginReference)
	}

	again, created, err := svc.StartOrGetDirectConversation(as(b.ID), b.ID, a.ID, nil)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if created || again.ID != first.ID {
		t.Fatalf("expected the existing conversation %s, got %s created=%v", first.ID, again.ID, created)
	}

	other := "echo-" + uuid.NewString()
	third, created, err := svc.StartOrGetDirectConversation(as(a.ID), a.ID, b.ID, &other)
	if err != nil {
		t.Fatalf("third start: %v", err)
	}
	if created || third.ID != first.ID {
		t.Fatalf("expected fallback to the shared conversation, got %s created=%v", third.ID, created)
	}
	if n := countRows(t, db, &types.ConversationMember{}, "conversation_id = ?", first.ID); n != 2 {
		t.Fatalf("expected 2 members, got %d", n)
	}
}

func TestDirectMessageEndToEnd(t *testing.T) {
	svc, db, bc := newTestMessaging(t)
	ctx := context.Background()
	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")

	conv, created, err := svc.StartOrGetDirectConversation(as(a.ID), a.ID, b.ID, nil)
	if err != nil || !created {
		t.Fatalf("start: created=%v err=%v", created, err)
	}

	msg, err := svc.SendMessage(as(a.ID), conv.ID, "  hello  ", types.SendMetadata{ClientID: "c1"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Content != "hello" || msg.ClientID != "c1" || msg.SenderID != a.ID {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if got := msg.PayloadMap()[domain.PayloadClientID]; got != "c1" {
		t.Fatalf("payload client_id=%v", got)
	}

	if n := countRows(t, db, &types.Conversation{}, "id = ?", conv.ID); n != 1 {
		t.Fatalf("expected 1 conversation, got %d", n)
	}
	if n := countRows(t, db, &types.ConversationMember{}, "conversation_id = ?", conv.ID); n != 2 {
		t.Fatalf("expected 2 members, got %d", n)
	}
	if n := countRows(t, db, &types.Message{}, "conversation_id = ?", conv.ID); n != 1 {
		t.Fatalf("expected 1 message, got %d", n)
	}

	sent := bc.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message broadcast, got %d", len(sent))
	}
	topics := sent[0].Topics()
	if len(topics) != 2 {
		t.Fatalf("expected both members as audience, got %v", topics)
	}
	wantTopics := map[string]bool{realtime.MessagesTopic(a.ID): true, realtime.MessagesTopic(b.ID): true}
	for _, topic := range topics {
		if !wantTopics[topic] {
			t.Fatalf("unexpected topic %s", topic)
		}
	}
	if sent[0].ClientID != "c1" {
		t.Fatalf("broadcast lost client id: %+v", sent[0])
	}
	notes := bc.notifications()
	if len(notes) != 1 || notes[0].UserID != b.ID.String() {
		t.Fatalf("expected one notification for bob, got %+v", notes)
	}

	unread, err := svc.CountUnread(as(b.ID), b.ID)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if unread != 1 {
		t.Fatalf("bob unread=%d want 1", unread)
	}
	own, err := svc.CountUnread(as(a.ID), a.ID)
	if err != nil {
		t.Fatalf("CountUnread(sender): %v", err)
	}
	if own != 0 {
		t.Fatalf("sender unread=%d want 0", own)
	}

	if err := svc.MarkRead(as(b.ID), conv.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := svc.MarkRead(as(b.ID), conv.ID); err != nil {
		t.Fatalf("MarkRead (again): %v", err)
	}
	unread, err = svc.CountUnread(as(b.ID), b.ID)
	if err != nil {
		t.Fatalf("CountUnread after read: %v", err)
	}
	if unread != 0 {
		t.Fatalf("bob unread after read=%d want 0", unread)
	}

	list, err := svc.ListMessages(as(b.ID), conv.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(list) != 1 || list[0].ID != msg.ID {
		t.Fatalf("ListMessages: %+v", list)
	}
}

func TestSendMessageResubmitIsIdempotent(t *testing.T) {
	svc, db, bc := newTestMessaging(t)
	ctx := context.Background()
	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")
	conv := testutil.SeedConversation(t, ctx, db, types.KindDirect, a.ID, b.ID)

	first, err := svc.SendMessage(as(a.ID), conv.ID, "hello", types.SendMetadata{ClientID: "c1"})
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	second, err := svc.SendMessage(as(a.ID), conv.ID, "hello", types.SendMetadata{ClientID: "c1"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("resubmit created a new row: %s vs %s", second.ID, first.ID)
	}
	if n := countRows(t, db, &types.Message{}, "conversation_id = ?", conv.ID); n != 1 {
		t.Fatalf("expected 1 message row, got %d", n)
	}
	if n := countRows(t, db, &types.Notification{}, "conversation_id = ?", conv.ID); n != 1 {
		t.Fatalf("expected 1 notification row, got %d", n)
	}
	if got := len(bc.messages()); got != 2 {
		t.Fatalf("expected the resubmit to broadcast again, got %d broadcasts", got)
	}

	other := testutil.SeedConversation(t, ctx, db, types.KindDirect, a.ID, b.ID)
	if _, err := svc.SendMessage(as(a.ID), other.ID, "hello", types.SendMetadata{ClientID: "c1"}); !domain.IsCode(err, domain.CodeConflict) {
		t.Fatalf("expected conflict for a reused client id, got %v", err)
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, db, bc := newTestMessaging(t)
	ctx := context.Background()
	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")
	c := testutil.SeedProfile(t, ctx, db, "carol")
	conv := testutil.SeedConversation(t, ctx, db, types.KindDirect, a.ID, b.ID)
	elsewhere := testutil.SeedConversation(t, ctx, db, types.KindDirect, a.ID, c.ID)
	foreign := testutil.SeedMessage(t, ctx, db, elsewhere.ID, c.ID, "hi", time.Now().UTC())

	tests := []struct {
		name    string
		dbc     dbctx.Context
		conv    uuid.UUID
		content string
		meta    types.SendMetadata
		code    domain.ErrorCode
	}{
		{"anonymous", dbctx.Context{Ctx: ctx}, conv.ID, "hi", types.SendMetadata{}, domain.CodeAuthentication},
		{"blank content", as(a.ID), conv.ID, "   ", types.SendMetadata{}, domain.CodeValidation},
		{"too long", as(a.ID), conv.ID, strings.Repeat("é", MaxContentRunes+1), types.SendMetadata{}, domain.CodeValidation},
		{"missing conversation", as(a.ID), uuid.Nil, "hi", types.SendMetadata{}, domain.CodeValidation},
		{"not a member", as(c.ID), conv.ID, "hi", types.SendMetadata{}, domain.CodeForbidden},
		{"reply outside conversation", as(a.ID), conv.ID, "hi", types.SendMetadata{ParentID: &foreign.ID}, domain.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendMessage(tt.dbc, tt.conv, tt.content, tt.meta)
			if got := domain.CodeOf(err); got != tt.code {
				t.Fatalf("code=%q want %q (err=%v)", got, tt.code, err)
			}
		})
	}
	if n := countRows(t, db, &types.Message{}, "conversation_id = ?", conv.ID); n != 0 {
		t.Fatalf("rejected sends wrote %d rows", n)
	}
	if got := len(bc.messages()); got != 0 {
		t.Fatalf("rejected sends broadcast %d records", got)
	}

	if _, err := svc.SendMessage(as(a.ID), conv.ID, strings.Repeat("é", MaxContentRunes), types.SendMetadata{}); err != nil {
		t.Fatalf("content at the limit should be accepted: %v", err)
	}
}

func TestSendMessageSkipsMutedRecipients(t *testing.T) {
	svc, db, bc := newTestMessaging(t)
	ctx := context.Background()
	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")
	c := testutil.SeedProfile(t, ctx, db, "carol")
	conv := testutil.SeedConversation(t, ctx, db, types.KindGroup, a.ID, b.ID, c.ID)

	if err := svc.SetMuted(as(c.ID), conv.ID, true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}
	if _, err := svc.SendMessage(as(a.ID), conv.ID, "hey all", types.SendMetadata{}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	notes := bc.notifications()
	if len(notes) != 1 || notes[0].UserID != b.ID.String() {
		t.Fatalf("expected only bob to be notified, got %+v", notes)
	}
	if got := len(bc.messages()[0].Topics()); got != 3 {
		t.Fatalf("muted members still receive the message; got %d topics", got)
	}
	if err := svc.SetMuted(as(uuid.New()), conv.ID, true); !domain.IsCode(err, domain.CodeForbidden) {
		t.Fatalf("expected forbidden for a stranger, got %v", err)
	}
}

func TestEditAndDeleteAreSenderOnly(t *testing.T) {
	svc, db, _ := newTestMessaging(t)
	ctx := context.Background()
	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")
	conv := testutil.SeedConversation(t, ctx, db, types.KindDirect, a.ID, b.ID)

	msg, err := svc.SendMessage(as(a.ID), conv.ID, "helo", types.SendMetadata{})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := svc.EditMessage(as(b.ID), msg.ID, "hijack"); !domain.IsCode(err, domain.CodeForbidden) {
		t.Fatalf("expected forbidden edit, got %v", err)
	}
	edited, err := svc.EditMessage(as(a.ID), msg.ID, "hello")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if edited.Content != "hello" || edited.EditedAt == nil {
		t.Fatalf("edit not applied: %+v", edited)
	}
	if err := svc.DeleteMessage(as(b.ID), msg.ID); !domain.IsCode(err, domain.CodeForbidden) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if err := svc.DeleteMessage(as(a.ID), msg.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if err := svc.DeleteMessage(as(a.ID), msg.ID); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	unread, err := svc.CountUnread(as(b.ID), b.ID)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if unread != 0 {
		t.Fatalf("deleted messages must not count as unread, got %d", unread)
	}
}

func TestCountUnreadIsPrivate(t *testing.T) {
	svc, db, _ := newTestMessaging(t)
	a := testutil.SeedProfile(t, context.Background(), db, "alice")
	if _, err := svc.CountUnread(as(a.ID), uuid.New()); !domain.IsCode(err, domain.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	n, err := svc.CountUnread(as(a.ID), a.ID)
	if err != nil || n != 0 {
		t.Fatalf("fresh user unread=%d err=%v", n, err)
	}
}

func TestListConversationsEnrichesDirectPeers(t *testing.T) {
	svc, db, _ := newTestMessaging(t)
	ctx := context.Background()
	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")
	c := testutil.SeedProfile(t, ctx, db, "carol")

	withBob, _, err := svc.StartOrGetDirectConversation(as(a.ID), a.ID, b.ID, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	withCarol, _, err := svc.StartOrGetDirectConversation(as(a.ID), a.ID, c.ID, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.SendMessage(as(b.ID), withBob.ID, "ping", types.SendMetadata{}); err != nil {
		t.Fatalf("send: %v", err)
	}

	list, err := svc.ListConversations(as(a.ID), 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != withBob.ID || list[1].ID != withCarol.ID {
		t.Fatalf("expected most recently updated first, got %s, %s", list[0].ID, list[1].ID)
	}
	top := list[0]
	if top.Peer == nil || top.Peer.UserID != b.ID || top.Peer.Handle != b.Handle {
		t.Fatalf("peer not enriched: %+v", top.Peer)
	}
	if top.UnreadCount != 1 {
		t.Fatalf("unread=%d want 1", top.UnreadCount)
	}
	if top.LastMessage == nil || top.LastMessage.Content != "ping" {
		t.Fatalf("last message not enriched: %+v", top.LastMessage)
	}
	if list[1].LastMessage != nil || list[1].UnreadCount != 0 {
		t.Fatalf("empty conversation enriched unexpectedly: %+v", list[1])
	}
}

func TestNotificationsLifecycle(t *testing.T) {
	svc, db, _ := newTestMessaging(t)
	ctx := context.Background()
	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")
	conv := testutil.SeedConversation(t, ctx, db, types.KindDirect, a.ID, b.ID)

	for _, text := range []string{"one", "two"} {
		if _, err := svc.SendMessage(as(a.ID), conv.ID, text, types.SendMetadata{}); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}
	unread, err := svc.ListNotifications(as(b.ID), 0, true)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("expected 2 unread notifications, got %d", len(unread))
	}
	n, err := svc.MarkNotificationsRead(as(b.ID), []uuid.UUID{unread[0].ID})
	if err != nil || n != 1 {
		t.Fatalf("MarkNotificationsRead: n=%d err=%v", n, err)
	}
	n, err = svc.MarkNotificationsRead(as(b.ID), nil)
	if err != nil || n != 1 {
		t.Fatalf("MarkNotificationsRead(all): n=%d err=%v", n, err)
	}
	left, err := svc.ListNotifications(as(b.ID), 0, true)
	if err != nil || len(left) != 0 {
		t.Fatalf("expected none left, got %d err=%v", len(left), err)
	}
	own, err := svc.ListNotifications(as(a.ID), 0, false)
	if err != nil || len(own) != 0 {
		t.Fatalf("sender should have no notifications, got %d err=%v", len(own), err)
	}
}
