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

type ConversationMemberRepo interface {
	Create(dbc dbctx.Context, rows []*types.ConversationMember) ([]*types.ConversationMember, error)
	Get(dbc dbctx.Context, conversationID, userID uuid.UUID) (*types.ConversationMember, error)
	ListByConversations(dbc dbctx.Context, conversationIDs []uuid.UUID) ([]*types.ConversationMember, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.ConversationMember, error)
	MarkRead(dbc dbctx.Context, conversationID, userID uuid.UUID, at time.Time) error
	SetMuted(dbc dbctx.Context, conversationID, userID uuid.UUID, muted bool) error
}

type conversationMemberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationMemberRepo(db *gorm.DB, log *logger.Logger) ConversationMemberRepo {
	return &conversationMemberRepo{db: db, log: log.With("repo", "ConversationMemberRepo")}
}

func (r *conversationMemberRepo) Create(dbc dbctx.Context, rows []*types.ConversationMember) ([]*types.ConversationMember, error) {
	if len(rows) == 0 {
		return []*types.ConversationMember{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, MapError("create conversation members", err)
	}
	return rows, nil
}

func (r *conversationMemberRepo) Get(dbc dbctx.Context, conversationID, userID uuid.UUID) (*types.ConversationMember, error) {
	if conversationID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("missing conversation_id or user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.ConversationMember
	if err := txx.WithContext(dbc.Ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Take(&out).Error; err != nil {
		return nil, MapError("get conversation member", err)
	}
	return &out, nil
}

func (r *conversationMemberRepo) ListByConversations(dbc dbctx.Context, conversationIDs []uuid.UUID) ([]*types.ConversationMember, error) {
	if len(conversationIDs) == 0 {
		return []*types.ConversationMember{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.ConversationMember
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.ConversationMember{}).
		Where("conversation_id IN ?", conversationIDs).
		Order("joined_at ASC").
		Find(&out).Error; err != nil {
		return nil, MapError("list conversation members", err)
	}
	return out, nil
}

func (r *conversationMemberRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.ConversationMember, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.ConversationMember
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.ConversationMember{}).
		Where("user_id = ?", userID).
		Find(&out).Error; err != nil {
		return nil, MapError("list memberships", err)
	}
	return out, nil
}

func (r *conversationMemberRepo) MarkRead(dbc dbctx.Context, conversationID, userID uuid.UUID, at time.Time) error {
	if conversationID == uuid.Nil || userID == uuid.Nil {
		return fmt.Errorf("missing conversation_id or user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		UpdateColumn("last_read_at", at.UTC())
	if res.Error != nil {
		return MapError("mark read", res.Error)
	}
	if res.RowsAffected == 0 {
		return MapError("mark read", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *conversationMemberRepo) SetMuted(dbc dbctx.Context, conversationID, userID uuid.UUID, muted bool) error {
	if conversationID == uuid.Nil || userID == uuid.Nil {
		return fmt.Errorf("missing conversation_id or user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		UpdateColumn("muted", muted)
	if res.Error != nil {
		return MapError("set muted", res.Error)
	}
	if res.RowsAffected == 0 {
		return MapError("set muted", gorm.ErrRecordNotFound)
	}
	return nil
}
