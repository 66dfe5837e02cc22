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

type ConversationRepo interface {
	Create(dbc dbctx.Context, rows []*types.Conversation) ([]*types.Conversation, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Conversation, error)
	ListForUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Conversation, error)
	// FindDirectBetween returns direct conversations both users belong to, newest first.
	// A non-nil originRef restricts the match to that origin.
	FindDirectBetween(dbc dbctx.Context, userA, userB uuid.UUID, originRef *string) ([]*types.Conversation, error)
	Touch(dbc dbctx.Context, id uuid.UUID, at time.Time) error
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, log *logger.Logger) ConversationRepo {
	return &conversationRepo{db: db, log: log.With("repo", "ConversationRepo")}
}

func (r *conversationRepo) Create(dbc dbctx.Context, rows []*types.Conversation) ([]*types.Conversation, error) {
	if len(rows) == 0 {
		return []*types.Conversation{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, MapError("create conversation", err)
	}
	return rows, nil
}

func (r *conversationRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Conversation, error) {
	if len(ids) == 0 {
		return []*types.Conversation{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Conversation
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Conversation{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, MapError("get conversations", err)
	}
	return out, nil
}

func (r *conversationRepo) ListForUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Conversation, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Conversation
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Conversation{}).
		Where("id IN (?)", txx.Model(&types.ConversationMember{}).Select("conversation_id").Where("user_id = ?", userID)).
		Order("updated_at DESC").
		Order("id").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, MapError("list conversations", err)
	}
	return out, nil
}

func (r *conversationRepo) FindDirectBetween(dbc dbctx.Context, userA, userB uuid.UUID, originRef *string) ([]*types.Conversation, error) {
	if userA == uuid.Nil || userB == uuid.Nil {
		return nil, fmt.Errorf("missing user ids")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	memberOf := func(userID uuid.UUID) *gorm.DB {
		return txx.Model(&types.ConversationMember{}).Select("conversation_id").Where("user_id = ?", userID)
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.Conversation{}).
		Where("kind = ?", types.KindDirect).
		Where("id IN (?)", memberOf(userA)).
		Where("id IN (?)", memberOf(userB))
	if originRef != nil {
		q = q.Where("origin_reference = ?", *originRef)
	}
	var out []*types.Conversation
	if err := q.Order("updated_at DESC").Limit(10).Find(&out).Error; err != nil {
		return nil, MapError("find direct conversation", err)
	}
	return out, nil
}

func (r *conversationRepo) Touch(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return MapError("touch conversation", txx.WithContext(dbc.Ctx).
		Model(&types.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at.UTC()).Error)
}
