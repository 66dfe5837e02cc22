package services

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/echoworld-backend/internal/data/repos"
	msgrepo "github.com/yungbote/echoworld-backend/internal/data/repos/messaging"
	types "github.com/yungbote/echoworld-backend/internal/domain"
	domain "github.com/yungbote/echoworld-backend/internal/domain/messaging"
	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/echoworld-backend/internal/platform/dbctx"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

const (
	MaxContentRunes = 4000
	unreadFanout    = 4
)

// PeerProfile is the public face of the other member of a direct conversation.
type PeerProfile struct {
	UserID      uuid.UUID `json:"user_id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
}

// ConversationSummary is a conversation plus the caller-specific enrichment.
// Enrichment is best effort: on failure the fields are left empty.
type ConversationSummary struct {
	*types.Conversation
	Peer        *PeerProfile   `json:"peer,omitempty"`
	UnreadCount int64          `json:"unread_count"`
	LastMessage *types.Message `json:"last_message,omitempty"`
	Muted       bool           `json:"muted"`
}

type MessagingService interface {
	ListConversations(dbc dbctx.Context, limit int) ([]*ConversationSummary, error)
	ListMessages(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error)

	// SendMessage persists, bumps the conversation, notifies recipients and then broadcasts.
	// A resubmit with a known client id returns the stored row and broadcasts it again.
	SendMessage(dbc dbctx.Context, conversationID uuid.UUID, content string, meta types.SendMetadata) (*types.Message, error)
	EditMessage(dbc dbctx.Context, messageID uuid.UUID, content string) (*types.Message, error)
	DeleteMessage(dbc dbctx.Context, messageID uuid.UUID) error

	MarkRead(dbc dbctx.Context, conversationID uuid.UUID) error
	SetMuted(dbc dbctx.Context, conversationID uuid.UUID, muted bool) error
	CountUnread(dbc dbctx.Context, userID uuid.UUID) (int64, error)
	UnreadByConversation(dbc dbctx.Context, userID uuid.UUID) (map[uuid.UUID]int64, error)

	// StartOrGetDirectConversation returns an existing direct conversation shared by both
	// users (preferring one with the same origin) or creates one. created reports which.
	StartOrGetDirectConversation(dbc dbctx.Context, userID, otherUserID uuid.UUID, originReference *string) (conv *types.Conversation, created bool, err error)

	ListNotifications(dbc dbctx.Context, limit int, unreadOnly bool) ([]*types.Notification, error)
	MarkNotificationsRead(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type messagingService struct {
	db  *gorm.DB
	log *logger.Logger

	profiles      repos.ProfileRepo
	conversations repos.ConversationRepo
	members       repos.ConversationMemberRepo
	messages      repos.MessageRepo
	notifications repos.NotificationRepo
	notify        MessagingNotifier

	now func() time.Time
}

func NewMessagingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	profileRepo repos.ProfileRepo,
	conversationRepo repos.ConversationRepo,
	memberRepo repos.ConversationMemberRepo,
	messageRepo repos.MessageRepo,
	notificationRepo repos.NotificationRepo,
	notify MessagingNotifier,
) MessagingService {
	return &messagingService{
		db:            db,
		log:           baseLog.With("service", "MessagingService"),
		profiles:      profileRepo,
		conversations: conversationRepo,
		members:       memberRepo,
		messages:      messageRepo,
		notifications: notificationRepo,
		notify:        notify,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *messagingService) caller(dbc dbctx.Context, op string) (uuid.UUID, error) {
	uid := ctxutil.UserID(dbc.Ctx)
	if uid == uuid.Nil {
		return uuid.Nil, domain.AuthenticationError(op)
	}
	return uid, nil
}

func (s *messagingService) repoCtx(dbc dbctx.Context) dbctx.Context {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	return dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}
}

// membership loads the caller's member row; strangers get forbidden.
func (s *messagingService) membership(dbc dbctx.Context, op string, conversationID, userID uuid.UUID) (*types.ConversationMember, error) {
	if conversationID == uuid.Nil {
		return nil, domain.ValidationError(op, "missing conversation id")
	}
	m, err := s.members.Get(dbc, conversationID, userID)
	if domain.IsCode(err, domain.CodeNotFound) {
		return nil, domain.ForbiddenError(op, "not a member of this conversation")
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func validateContent(op, content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.ValidationError(op, "message content is empty")
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return "", domain.ValidationError(op, "message content is too long")
	}
	return content, nil
}

func (s *messagingService) ListConversations(dbc dbctx.Context, limit int) ([]*ConversationSummary, error) {
	uid, err := s.caller(dbc, "ListConversations")
	if err != nil {
		return nil, err
	}
	rc := s.repoCtx(dbc)
	convs, err := s.conversations.ListForUser(rc, uid, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*ConversationSummary, 0, len(convs))
	ids := make([]uuid.UUID, 0, len(convs))
	for _, c := range convs {
		if c == nil {
			continue
		}
		out = append(out, &ConversationSummary{Conversation: c})
		ids = append(ids, c.ID)
	}
	if len(out) == 0 {
		return out, nil
	}
	s.enrich(rc, uid, ids, out)
	return out, nil
}

func (s *messagingService) enrich(rc dbctx.Context, uid uuid.UUID, ids []uuid.UUID, out []*ConversationSummary) {
	byID := make(map[uuid.UUID]*ConversationSummary, len(out))
	for _, sum := range out {
		byID[sum.ID] = sum
	}

	// Peers and mute flags.
	if rows, err := s.members.ListByConversations(rc, ids); err != nil {
		s.log.Warn("conversation enrichment: members unavailable", "user_id", uid, "error", err)
	} else {
		peerOf := map[uuid.UUID]uuid.UUID{}
		peerIDs := []uuid.UUID{}
		for _, m := range rows {
			sum := byID[m.ConversationID]
			if sum == nil {
				continue
			}
			if m.UserID == uid {
				sum.Muted = m.Muted
				continue
			}
			if sum.Kind == types.KindDirect {
				peerOf[m.ConversationID] = m.UserID
				peerIDs = append(peerIDs, m.UserID)
			}
		}
		if len(peerIDs) > 0 {
			profiles, err := s.profiles.GetByIDs(rc, peerIDs)
			if err != nil {
				s.log.Warn("conversation enrichment: peer profiles unavailable", "user_id", uid, "error", err)
			} else {
				byUser := make(map[uuid.UUID]*types.Profile, len(profiles))
				for _, p := range profiles {
					byUser[p.ID] = p
				}
				for convID, peerID := range peerOf {
					p := byUser[peerID]
					peer := &PeerProfile{UserID: peerID}
					if p != nil {
						peer.Handle = p.Handle
						peer.DisplayName = p.DisplayName
						peer.AvatarURL = p.AvatarURL
					}
					byID[convID].Peer = peer
				}
			}
		}
	}

	if latest, err := s.messages.LatestByConversations(rc, ids); err != nil {
		s.log.Warn("conversation enrichment: last messages unavailable", "user_id", uid, "error", err)
	} else {
		for convID, m := range latest {
			if sum := byID[convID]; sum != nil {
				sum.LastMessage = m
			}
		}
	}

	if counts, err := s.unreadCounts(rc, uid); err != nil {
		s.log.Warn("conversation enrichment: unread counts unavailable", "user_id", uid, "error", err)
	} else {
		for convID, n := range counts {
			if sum := byID[convID]; sum != nil {
				sum.UnreadCount = n
			}
		}
	}
}

func (s *messagingService) ListMessages(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	uid, err := s.caller(dbc, "ListMessages")
	if err != nil {
		return nil, err
	}
	rc := s.repoCtx(dbc)
	if _, err := s.membership(rc, "ListMessages", conversationID, uid); err != nil {
		return nil, err
	}
	return s.messages.ListByConversation(rc, conversationID, limit)
}

func (s *messagingService) SendMessage(dbc dbctx.Context, conversationID uuid.UUID, content string, meta types.SendMetadata) (out *types.Message, err error) {
	const op = "SendMessage"
	ctx, span := observability.Tracer().Start(dbc.Ctx, "messaging.SendMessage")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(domain.CodeOf(err)))
			observability.Current().IncMessageSent("failed")
		}
		span.End()
	}()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}
	span.SetAttributes(attribute.String("conversation.id", conversationID.String()))

	uid, err := s.caller(dbc, op)
	if err != nil {
		return nil, err
	}
	content, err = validateContent(op, content)
	if err != nil {
		return nil, err
	}
	if conversationID == uuid.Nil {
		return nil, domain.ValidationError(op, "missing conversation id")
	}
	meta.ClientID = strings.TrimSpace(meta.ClientID)
	rc := s.repoCtx(dbc)

	if meta.ClientID != "" {
		existing, err := s.resubmitted(rc, uid, conversationID, meta.ClientID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	if _, err := s.membership(rc, op, conversationID, uid); err != nil {
		return nil, err
	}
	if meta.ParentID != nil && *meta.ParentID != uuid.Nil {
		parents, err := s.messages.GetByIDs(rc, []uuid.UUID{*meta.ParentID})
		if err != nil {
			return nil, err
		}
		if len(parents) == 0 || parents[0].ConversationID != conversationID {
			return nil, domain.ValidationError(op, "reply target is not in this conversation")
		}
	} else {
		meta.ParentID = nil
	}
	payload, err := meta.BuildPayload()
	if err != nil {
		return nil, domain.ValidationError(op, "metadata is not serializable")
	}

	msg := &types.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       uid,
		Content:        content,
		ParentID:       meta.ParentID,
		ClientID:       meta.ClientID,
		Payload:        payload,
		CreatedAt:      s.now(),
	}
	var (
		audience []uuid.UUID
		notes    []*types.Notification
	)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inTx := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.messages.Create(inTx, []*types.Message{msg}); err != nil {
			return err
		}
		if err := s.conversations.Touch(inTx, conversationID, msg.CreatedAt); err != nil {
			return err
		}
		rows, err := s.members.ListByConversations(inTx, []uuid.UUID{conversationID})
		if err != nil {
			return err
		}
		audience, notes = s.fanout(msg, rows)
		if _, err := s.notifications.Create(inTx, notes); err != nil {
			return err
		}
		return nil
	})
	if txErr != nil {
		// A concurrent resubmit won the unique index; hand back its row.
		if meta.ClientID != "" && msgrepo.IsConflict(txErr) {
			if existing, err := s.resubmitted(rc, uid, conversationID, meta.ClientID); err == nil && existing != nil {
				return existing, nil
			}
		}
		s.log.Warn("send message failed", "conversation_id", conversationID, "sender_id", uid, "error", txErr)
		return nil, txErr
	}

	observability.Current().IncMessageSent("created")
	s.notify.MessageInserted(ctx, msg, audience)
	s.notify.NotificationsInserted(ctx, notes)
	return msg, nil
}

// resubmitted returns the stored row for (sender, clientID) and re-broadcasts it, or nil when unseen.
func (s *messagingService) resubmitted(rc dbctx.Context, uid, conversationID uuid.UUID, clientID string) (*types.Message, error) {
	existing, err := s.messages.GetByClientID(rc, uid, clientID)
	if domain.IsCode(err, domain.CodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.ConversationID != conversationID {
		return nil, domain.NewError(domain.CodeConflict, "SendMessage", "client id already used in another conversation", nil)
	}
	rows, err := s.members.ListByConversations(rc, []uuid.UUID{conversationID})
	if err != nil {
		s.log.Warn("resubmit: members unavailable; skipping broadcast", "conversation_id", conversationID, "error", err)
	} else if !existing.DeletedAt.Valid {
		audience, _ := s.fanout(existing, rows)
		s.notify.MessageInserted(rc.Ctx, existing, audience)
	}
	observability.Current().IncMessageSent("resubmit")
	return existing, nil
}

// fanout returns every member as the broadcast audience and notifications for
// the non-muted members other than the sender.
func (s *messagingService) fanout(msg *types.Message, rows []*types.ConversationMember) ([]uuid.UUID, []*types.Notification) {
	audience := make([]uuid.UUID, 0, len(rows))
	notes := make([]*types.Notification, 0, len(rows))
	convID := msg.ConversationID
	msgID := msg.ID
	payload, _ := json.Marshal(map[string]any{"preview": preview(msg.Content)})
	for _, m := range rows {
		if m == nil {
			continue
		}
		audience = append(audience, m.UserID)
		if m.UserID == msg.SenderID || m.Muted {
			continue
		}
		notes = append(notes, &types.Notification{
			ID:             uuid.New(),
			UserID:         m.UserID,
			ActorID:        msg.SenderID,
			Kind:           types.NotificationMessage,
			ConversationID: &convID,
			MessageID:      &msgID,
			Payload:        datatypes.JSON(payload),
			CreatedAt:      msg.CreatedAt,
		})
	}
	return audience, notes
}

func preview(content string) string {
	const max = 120
	if utf8.RuneCountInString(content) <= max {
		return content
	}
	r := []rune(content)
	return string(r[:max]) + "…"
}

func (s *messagingService) loadOwned(rc dbctx.Context, op string, messageID, uid uuid.UUID) (*types.Message, error) {
	if messageID == uuid.Nil {
		return nil, domain.ValidationError(op, "missing message id")
	}
	rows, err := s.messages.GetByIDs(rc, []uuid.UUID{messageID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.NotFoundError(op, "message not found")
	}
	if rows[0].SenderID != uid {
		return nil, domain.ForbiddenError(op, "only the sender can change a message")
	}
	return rows[0], nil
}

func (s *messagingService) EditMessage(dbc dbctx.Context, messageID uuid.UUID, content string) (*types.Message, error) {
	const op = "EditMessage"
	uid, err := s.caller(dbc, op)
	if err != nil {
		return nil, err
	}
	content, err = validateContent(op, content)
	if err != nil {
		return nil, err
	}
	rc := s.repoCtx(dbc)
	msg, err := s.loadOwned(rc, op, messageID, uid)
	if err != nil {
		return nil, err
	}
	at := s.now()
	if err := s.messages.UpdateContent(rc, messageID, content, at); err != nil {
		return nil, err
	}
	msg.Content = content
	msg.EditedAt = &at
	return msg, nil
}

func (s *messagingService) DeleteMessage(dbc dbctx.Context, messageID uuid.UUID) error {
	const op = "DeleteMessage"
	uid, err := s.caller(dbc, op)
	if err != nil {
		return err
	}
	rc := s.repoCtx(dbc)
	if _, err := s.loadOwned(rc, op, messageID, uid); err != nil {
		return err
	}
	return s.messages.SoftDelete(rc, messageID)
}

func (s *messagingService) MarkRead(dbc dbctx.Context, conversationID uuid.UUID) error {
	const op = "MarkRead"
	uid, err := s.caller(dbc, op)
	if err != nil {
		return err
	}
	if conversationID == uuid.Nil {
		return domain.ValidationError(op, "missing conversation id")
	}
	err = s.members.MarkRead(s.repoCtx(dbc), conversationID, uid, s.now())
	if domain.IsCode(err, domain.CodeNotFound) {
		return domain.ForbiddenError(op, "not a member of this conversation")
	}
	return err
}

func (s *messagingService) SetMuted(dbc dbctx.Context, conversationID uuid.UUID, muted bool) error {
	const op = "SetMuted"
	uid, err := s.caller(dbc, op)
	if err != nil {
		return err
	}
	if conversationID == uuid.Nil {
		return domain.ValidationError(op, "missing conversation id")
	}
	err = s.members.SetMuted(s.repoCtx(dbc), conversationID, uid, muted)
	if domain.IsCode(err, domain.CodeNotFound) {
		return domain.ForbiddenError(op, "not a member of this conversation")
	}
	return err
}

func (s *messagingService) CountUnread(dbc dbctx.Context, userID uuid.UUID) (int64, error) {
	counts, err := s.UnreadByConversation(dbc, userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func (s *messagingService) UnreadByConversation(dbc dbctx.Context, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	const op = "CountUnread"
	uid, err := s.caller(dbc, op)
	if err != nil {
		return nil, err
	}
	if userID == uuid.Nil {
		userID = uid
	}
	if userID != uid {
		return nil, domain.ForbiddenError(op, "unread counts are private")
	}
	return s.unreadCounts(s.repoCtx(dbc), uid)
}

// unreadCounts fans out one count query per membership. Any failed count fails the whole call.
func (s *messagingService) unreadCounts(rc dbctx.Context, uid uuid.UUID) (map[uuid.UUID]int64, error) {
	memberships, err := s.members.ListByUser(rc, uid)
	if err != nil {
		return nil, err
	}
	observability.Current().ObserveUnreadFanout(len(memberships))

	var (
		mu  sync.Mutex
		out = make(map[uuid.UUID]int64, len(memberships))
	)
	g, gctx := errgroup.WithContext(rc.Ctx)
	g.SetLimit(unreadFanout)
	for _, m := range memberships {
		m := m
		if m == nil {
			continue
		}
		g.Go(func() error {
			n, err := s.messages.CountUnread(dbctx.Context{Ctx: gctx, Tx: rc.Tx}, m.ConversationID, uid, m.ReadSince())
			if err != nil {
				return err
			}
			mu.Lock()
			out[m.ConversationID] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.Wrap(domain.CodeTransientStore, "CountUnread", err)
	}
	return out, nil
}

func (s *messagingService) StartOrGetDirectConversation(dbc dbctx.Context, userID, otherUserID uuid.UUID, originReference *string) (conv *types.Conversation, created bool, err error) {
	const op = "StartOrGetDirectConversation"
	ctx, span := observability.Tracer().Start(dbc.Ctx, "messaging.StartOrGetDirectConversation")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(domain.CodeOf(err)))
		}
		span.SetAttributes(attribute.Bool("conversation.created", created))
		span.End()
	}()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	uid, err := s.caller(dbc, op)
	if err != nil {
		return nil, false, err
	}
	if userID == uuid.Nil || otherUserID == uuid.Nil {
		return nil, false, domain.ValidationError(op, "missing user id")
	}
	if userID == otherUserID {
		return nil, false, domain.ValidationError(op, "cannot start a conversation with yourself")
	}
	if userID != uid {
		return nil, false, domain.ForbiddenError(op, "can only start conversations as yourself")
	}
	var origin *string
	if originReference != nil {
		if ref := strings.TrimSpace(*originReference); ref != "" {
			origin = &ref
		}
	}

	rc := s.repoCtx(dbc)
	peers, err := s.profiles.GetByIDs(rc, []uuid.UUID{otherUserID})
	if err != nil {
		return nil, false, err
	}
	if len(peers) == 0 {
		return nil, false, domain.NotFoundError(op, "user not found")
	}

	// Search before create. Two users starting at the same moment can still both
	// miss here and create two conversations; that race is accepted.
	if origin != nil {
		found, err := s.conversations.FindDirectBetween(rc, userID, otherUserID, origin)
		if err != nil {
			return nil, false, err
		}
		if len(found) > 0 {
			return found[0], false, nil
		}
	}
	found, err := s.conversations.FindDirectBetween(rc, userID, otherUserID, nil)
	if err != nil {
		return nil, false, err
	}
	if len(found) > 0 {
		return found[0], false, nil
	}

	now := s.now()
	conv = &types.Conversation{
		ID:              uuid.New(),
		Kind:            types.KindDirect,
		OriginReference: origin,
		CreatedBy:       userID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inTx := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.conversations.Create(inTx, []*types.Conversation{conv}); err != nil {
			return err
		}
		_, err := s.members.Create(inTx, []*types.ConversationMember{
			{ConversationID: conv.ID, UserID: userID, Role: types.RoleOwner, JoinedAt: now},
			{ConversationID: conv.ID, UserID: otherUserID, Role: types.RoleMember, JoinedAt: now},
		})
		return err
	})
	if txErr != nil {
		s.log.Warn("create direct conversation failed", "user_id", userID, "peer_id", otherUserID, "error", txErr)
		return nil, false, txErr
	}
	s.log.Info("direct conversation created", "conversation_id", conv.ID, "user_id", userID, "peer_id", otherUserID)
	return conv, true, nil
}

func (s *messagingService) ListNotifications(dbc dbctx.Context, limit int, unreadOnly bool) ([]*types.Notification, error) {
	uid, err := s.caller(dbc, "ListNotifications")
	if err != nil {
		return nil, err
	}
	return s.notifications.ListForUser(s.repoCtx(dbc), uid, limit, unreadOnly)
}

func (s *messagingService) MarkNotificationsRead(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	uid, err := s.caller(dbc, "MarkNotificationsRead")
	if err != nil {
		return 0, err
	}
	return s.notifications.MarkRead(s.repoCtx(dbc), uid, ids, s.now())
}
