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

type NotificationRepo interface {
	Create(dbc dbctx.Context, rows []*types.Notification) ([]*types.Notification, error)
	ListForUser(dbc dbctx.Context, userID uuid.UUID, limit int, unreadOnly bool) ([]*types.Notification, error)
	// MarkRead stamps read_at on the given notifications; an empty ids list marks all of the user's.
	MarkRead(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error)
}

type notificationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationRepo(db *gorm.DB, log *logger.Logger) NotificationRepo {
	return &notificationRepo{db: db, log: log.With("repo", "NotificationRepo")}
}

func (r *notificationRepo) Create(dbc dbctx.Context, rows []*types.Notification) ([]*types.Notification, error) {
	if len(rows) == 0 {
		return []*types.Notification{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, MapError("create notifications", err)
	}
	return rows, nil
}

func (r *notificationRepo) ListForUser(dbc dbctx.Context, userID uuid.UUID, limit int, unreadOnly bool) ([]*types.Notification, error) {
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
	q := txx.WithContext(dbc.Ctx).
		Model(&types.Notification{}).
		Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var out []*types.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, MapError("list notifications", err)
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(dbc dbctx.Context, userID uuid.UUID, ids []uuid.UUID, at time.Time) (int64, error) {
	if userID == uuid.Nil {
		return 0, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.UpdateColumn("read_at", at.UTC())
	if res.Error != nil {
		return 0, MapError("mark notifications read", res.Error)
	}
	return res.RowsAffected, nil
}
