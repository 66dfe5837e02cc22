package messaging

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/echoworld-backend/internal/domain"
	"github.com/yungbote/echoworld-backend/internal/platform/dbctx"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 500
)

type MessageRepo interface {
	Create(dbc dbctx.Context, rows []*types.Message) ([]*types.Message, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Message, error)
	GetByClientID(dbc dbctx.Context, senderID uuid.UUID, clientID string) (*types.Message, error)
	// ListByConversation returns the newest `limit` messages in ascending order.
	ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error)
	LatestByConversations(dbc dbctx.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*types.Message, error)
	CountUnread(dbc dbctx.Context, conversationID, userID uuid.UUID, since time.Time) (int64, error)
	UpdateContent(dbc dbctx.Context, id uuid.UUID, content string, at time.Time) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, rows []*types.Message) ([]*types.Message, error) {
	if len(rows) == 0 {
		return []*types.Message{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, MapError("create message", err)
	}
	return rows, nil
}

func (r *messageRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Message, error) {
	if len(ids) == 0 {
		return []*types.Message{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Message
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, MapError("get messages", err)
	}
	return out, nil
}

func (r *messageRepo) GetByClientID(dbc dbctx.Context, senderID uuid.UUID, clientID string) (*types.Message, error) {
	if senderID == uuid.Nil || clientID == "" {
		return nil, fmt.Errorf("missing sender_id or client_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Message
	if err := txx.WithContext(dbc.Ctx).
		Unscoped().
		Where("sender_id = ? AND client_id = ?", senderID, clientID).
		Take(&out).Error; err != nil {
		return nil, MapError("get message by client id", err)
	}
	return &out, nil
}

func (r *messageRepo) ListByConversation(dbc dbctx.Context, conversationID uuid.UUID, limit int) ([]*types.Message, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id")
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		limit = MaxMessageLimit
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Message
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, MapError("list messages", err)
	}
	// Fetched newest-first so the cap keeps the tail; flip to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) LatestByConversations(dbc dbctx.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]*types.Message, error) {
	out := make(map[uuid.UUID]*types.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	latest := txx.Model(&types.Message{}).
		Select("conversation_id, MAX(created_at) AS created_at").
		Where("conversation_id IN ?", conversationIDs).
		Group("conversation_id")
	var rows []*types.Message
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Joins("JOIN (?) AS latest ON latest.conversation_id = message.conversation_id AND latest.created_at = message.created_at", latest).
		Find(&rows).Error; err != nil {
		return nil, MapError("latest messages", err)
	}
	for _, m := range rows {
		if m == nil {
			continue
		}
		if prev, ok := out[m.ConversationID]; ok && prev.ID.String() > m.ID.String() {
			continue
		}
		out[m.ConversationID] = m
	}
	return out, nil
}

func (r *messageRepo) CountUnread(dbc dbctx.Context, conversationID, userID uuid.UUID, since time.Time) (int64, error) {
	if conversationID == uuid.Nil || userID == uuid.Nil {
		return 0, fmt.Errorf("missing conversation_id or user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var n int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("conversation_id = ?", conversationID).
		Where("sender_id <> ?", userID).
		Where("created_at > ?", since.UTC()).
		Count(&n).Error; err != nil {
		return 0, MapError("count unread", err)
	}
	return n, nil
}

func (r *messageRepo) UpdateContent(dbc dbctx.Context, id uuid.UUID, content string, at time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"content":   content,
			"edited_at": at.UTC(),
		})
	if res.Error != nil {
		return MapError("update message", res.Error)
	}
	if res.RowsAffected == 0 {
		return MapError("update message", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *messageRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.Message{})
	if res.Error != nil {
		return MapError("delete message", res.Error)
	}
	if res.RowsAffected == 0 {
		return MapError("delete message", gorm.ErrRecordNotFound)
	}
	return nil
}
