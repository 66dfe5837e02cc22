package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/echoworld-backend/internal/data/repos"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

type Repos struct {
	Profile            repos.ProfileRepo
	Conversation       repos.ConversationRepo
	ConversationMember repos.ConversationMemberRepo
	Message            repos.MessageRepo
	Notification       repos.NotificationRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Profile:            repos.NewProfileRepo(db, log),
		Conversation:       repos.NewConversationRepo(db, log),
		ConversationMember: repos.NewConversationMemberRepo(db, log),
		Message:            repos.NewMessageRepo(db, log),
		Notification:       repos.NewNotificationRepo(db, log),
	}
}
