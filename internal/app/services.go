package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/echoworld-backend/internal/platform/logger"
	"github.com/yungbote/echoworld-backend/internal/realtime"
	"github.com/yungbote/echoworld-backend/internal/services"
)

type Services struct {
	Auth      services.AuthService
	Profile   services.ProfileService
	Messaging services.MessagingService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, pub *realtime.Publisher) Services {
	log.Info("Wiring services...")
	return Services{
		Auth:    services.NewAuthService(log, cfg.Auth.JWTSecretKey, cfg.Auth.Issuer),
		Profile: services.NewProfileService(db, log, reposet.Profile),
		Messaging: services.NewMessagingService(
			db, log,
			reposet.Profile,
			reposet.Conversation,
			reposet.ConversationMember,
			reposet.Message,
			reposet.Notification,
			services.NewMessagingNotifier(pub),
		),
	}
}
