package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/data/repos/testutil"
	types "github.com/yungbote/echoworld-backend/internal/domain"
	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/platform/dbctx"
)

func TestConversationRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	a := testutil.SeedProfile(t, ctx, tx, "alice")
	b := testutil.SeedProfile(t, ctx, tx, "bob")
	c := testutil.SeedProfile(t, ctx, tx, "carol")

	repo := NewConversationRepo(db, testutil.Logger(t))

	older := testutil.SeedConversation(t, ctx, tx, types.KindDirect, a.ID, b.ID)
	newer := testutil.SeedConversation(t, ctx, tx, types.KindDirect, a.ID, c.ID)
	group := testutil.SeedConversation(t, ctx, tx, types.KindGroup, a.ID, b.ID, c.ID)

	base := time.Now().UTC().Add(-time.Hour)
	if err := repo.Touch(dbc, older.ID, base); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := repo.Touch(dbc, group.ID, base.Add(time.Minute)); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := repo.Touch(dbc, newer.ID, base.Add(2*time.Minute)); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	list, err := repo.ListForUser(dbc, a.ID, 0)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("ListForUser: expected 3, got %d", len(list))
	}
	want := []uuid.UUID{newer.ID, group.ID, older.ID}
	for i, id := range want {
		if list[i].ID != id {
			t.Fatalf("ListForUser[%d]=%s, want %s", i, list[i].ID, id)
		}
	}

	found, err := repo.FindDirectBetween(dbc, b.ID, a.ID, nil)
	if err != nil {
		t.Fatalf("FindDirectBetween: %v", err)
	}
	if len(found) != 1 || found[0].ID != older.ID {
		t.Fatalf("FindDirectBetween: unexpected %+v", found)
	}

	origin := "echo-1"
	found, err = repo.FindDirectBetween(dbc, a.ID, b.ID, &origin)
	if err != nil {
		t.Fatalf("FindDirectBetween(origin): %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("FindDirectBetween(origin): expected none, got %d", len(found))
	}

	got, err := repo.GetByIDs(dbc, []uuid.UUID{group.ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 1 || got[0].Kind != types.KindGroup {
		t.Fatalf("GetByIDs: unexpected %+v", got)
	}
}

func TestConversationMemberRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	a := testutil.SeedProfile(t, ctx, tx, "alice")
	b := testutil.SeedProfile(t, ctx, tx, "bob")
	conv := testutil.SeedConversation(t, ctx, tx, types.KindDirect, a.ID, b.ID)

	repo := NewConversationMemberRepo(db, testutil.Logger(t))

	m, err := repo.Get(dbc, conv.ID, b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.LastReadAt != nil || m.Role != types.RoleMember {
		t.Fatalf("Get: unexpected %+v", m)
	}

	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := repo.MarkRead(dbc, conv.ID, b.ID, at); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	// Marking twice is harmless.
	if err := repo.MarkRead(dbc, conv.ID, b.ID, at); err != nil {
		t.Fatalf("MarkRead (again): %v", err)
	}
	m, err = repo.Get(dbc, conv.ID, b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.LastReadAt == nil || !m.LastReadAt.Equal(at) {
		t.Fatalf("MarkRead: last_read_at=%v, want %v", m.LastReadAt, at)
	}

	if err := repo.SetMuted(dbc, conv.ID, b.ID, true); err != nil {
		t.Fatalf("SetMuted: %v", err)
	}
	rows, err := repo.ListByConversations(dbc, []uuid.UUID{conv.ID})
	if err != nil {
		t.Fatalf("ListByConversations: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListByConversations: expected 2, got %d", len(rows))
	}
	for _, r := range rows {
		if r.UserID == b.ID && !r.Muted {
			t.Fatalf("SetMuted: expected bob muted")
		}
	}

	mine, err := repo.ListByUser(dbc, a.ID)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(mine) != 1 || mine[0].ConversationID != conv.ID {
		t.Fatalf("ListByUser: unexpected %+v", mine)
	}

	_, err = repo.Get(dbc, conv.ID, uuid.New())
	if !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("Get(stranger): expected not_found, got %v", err)
	}
	if err := repo.MarkRead(dbc, conv.ID, uuid.New(), at); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("MarkRead(stranger): expected not_found, got %v", err)
	}
}

func TestMessageRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	a := testutil.SeedProfile(t, ctx, tx, "alice")
	b := testutil.SeedProfile(t, ctx, tx, "bob")
	conv := testutil.SeedConversation(t, ctx, tx, types.KindDirect, a.ID, b.ID)

	repo := NewMessageRepo(db, testutil.Logger(t))

	base := time.Now().UTC().Add(-time.Hour)
	m1 := testutil.SeedMessage(t, ctx, tx, conv.ID, a.ID, "one", base)
	m2 := testutil.SeedMessage(t, ctx, tx, conv.ID, b.ID, "two", base.Add(time.Second))
	m3 := testutil.SeedMessage(t, ctx, tx, conv.ID, b.ID, "three", base.Add(2*time.Second))

	list, err := repo.ListByConversation(dbc, conv.ID, 0)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(list) != 3 || list[0].ID != m1.ID || list[2].ID != m3.ID {
		t.Fatalf("ListByConversation: expected ascending order, got %+v", list)
	}

	tail, err := repo.ListByConversation(dbc, conv.ID, 2)
	if err != nil {
		t.Fatalf("ListByConversation(2): %v", err)
	}
	if len(tail) != 2 || tail[0].ID != m2.ID || tail[1].ID != m3.ID {
		t.Fatalf("ListByConversation(2): expected newest two ascending, got %+v", tail)
	}

	n, err := repo.CountUnread(dbc, conv.ID, a.ID, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountUnread: expected 2 (own message excluded), got %d", n)
	}

	n, err = repo.CountUnread(dbc, conv.ID, a.ID, base.Add(time.Second))
	if err != nil {
		t.Fatalf("CountUnread(since): %v", err)
	}
	if n != 1 {
		t.Fatalf("CountUnread(since): expected 1, got %d", n)
	}

	if err := repo.SoftDelete(dbc, m3.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	n, err = repo.CountUnread(dbc, conv.ID, a.ID, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("CountUnread(after delete): %v", err)
	}
	if n != 1 {
		t.Fatalf("CountUnread(after delete): expected 1, got %d", n)
	}
	list, err = repo.ListByConversation(dbc, conv.ID, 0)
	if err != nil {
		t.Fatalf("ListByConversation: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByConversation: deleted message still listed")
	}

	latest, err := repo.LatestByConversations(dbc, []uuid.UUID{conv.ID})
	if err != nil {
		t.Fatalf("LatestByConversations: %v", err)
	}
	if latest[conv.ID] == nil || latest[conv.ID].ID != m2.ID {
		t.Fatalf("LatestByConversations: expected %s, got %+v", m2.ID, latest[conv.ID])
	}

	edited := time.Now().UTC()
	if err := repo.UpdateContent(dbc, m1.ID, "uno", edited); err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}
	got, err := repo.GetByIDs(dbc, []uuid.UUID{m1.ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 1 || got[0].Content != "uno" || got[0].EditedAt == nil {
		t.Fatalf("UpdateContent: unexpected %+v", got)
	}
}

func TestMessageRepoClientIDIsUnique(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}

	a := testutil.SeedProfile(t, ctx, db, "alice")
	b := testutil.SeedProfile(t, ctx, db, "bob")
	conv := testutil.SeedConversation(t, ctx, db, types.KindDirect, a.ID, b.ID)

	repo := NewMessageRepo(db, testutil.Logger(t))
	clientID := uuid.NewString()

	first, err := repo.Create(dbc, []*types.Message{{ConversationID: conv.ID, SenderID: a.ID, Content: "hello", ClientID: clientID}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = repo.Create(dbc, []*types.Message{{ConversationID: conv.ID, SenderID: a.ID, Content: "hello", ClientID: clientID}})
	if !IsConflict(err) {
		t.Fatalf("Create(resubmit): expected conflict, got %v", err)
	}

	existing, err := repo.GetByClientID(dbc, a.ID, clientID)
	if err != nil {
		t.Fatalf("GetByClientID: %v", err)
	}
	if existing.ID != first[0].ID {
		t.Fatalf("GetByClientID: got %s, want %s", existing.ID, first[0].ID)
	}

	// Messages without a client id never collide.
	for i := 0; i < 2; i++ {
		if _, err := repo.Create(dbc, []*types.Message{{ConversationID: conv.ID, SenderID: a.ID, Content: "plain"}}); err != nil {
			t.Fatalf("Create(no client id): %v", err)
		}
	}
}

func TestNotificationRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	a := testutil.SeedProfile(t, ctx, tx, "alice")
	b := testutil.SeedProfile(t, ctx, tx, "bob")

	repo := NewNotificationRepo(db, testutil.Logger(t))
	created, err := repo.Create(dbc, []*types.Notification{
		{UserID: b.ID, ActorID: a.ID, Kind: types.NotificationMessage},
		{UserID: b.ID, ActorID: a.ID, Kind: types.NotificationMessage},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := repo.MarkRead(dbc, b.ID, []uuid.UUID{created[0].ID}, time.Now())
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n != 1 {
		t.Fatalf("MarkRead: expected 1 row, got %d", n)
	}

	unread, err := repo.ListForUser(dbc, b.ID, 0, true)
	if err != nil {
		t.Fatalf("ListForUser(unread): %v", err)
	}
	if len(unread) != 1 || unread[0].ID != created[1].ID {
		t.Fatalf("ListForUser(unread): unexpected %+v", unread)
	}

	// Marking someone else's notifications is a no-op.
	n, err = repo.MarkRead(dbc, a.ID, nil, time.Now())
	if err != nil {
		t.Fatalf("MarkRead(other): %v", err)
	}
	if n != 0 {
		t.Fatalf("MarkRead(other): expected 0 rows, got %d", n)
	}

	all, err := repo.ListForUser(dbc, b.ID, 0, false)
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListForUser: expected 2, got %d", len(all))
	}
}
