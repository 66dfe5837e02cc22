package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/echoworld-backend/internal/data/repos/messaging"
	"github.com/yungbote/echoworld-backend/internal/data/repos/user"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

type ProfileRepo = user.ProfileRepo

type ConversationRepo = messaging.ConversationRepo
type ConversationMemberRepo = messaging.ConversationMemberRepo
type MessageRepo = messaging.MessageRepo
type NotificationRepo = messaging.NotificationRepo

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return user.NewProfileRepo(db, baseLog)
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	return messaging.NewConversationRepo(db, baseLog)
}
func NewConversationMemberRepo(db *gorm.DB, baseLog *logger.Logger) ConversationMemberRepo {
	return messaging.NewConversationMemberRepo(db, baseLog)
}
func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return messaging.NewMessageRepo(db, baseLog)
}
func NewNotificationRepo(db *gorm.DB, baseLog *logger.Logger) NotificationRepo {
	return messaging.NewNotificationRepo(db, baseLog)
}
