package app

import (
	"gorm.io/gorm"

	httpH "github.com/yungbote/echoworld-backend/internal/http/handlers"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

type Handlers struct {
	Health    *httpH.HealthHandler
	Profile   *httpH.ProfileHandler
	Messaging *httpH.MessagingHandler
	Realtime  *httpH.RealtimeHandler
	Presence  *httpH.PresenceHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, cfg Config, serviceset Services, rt Realtime) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(db),
		Profile:   httpH.NewProfileHandler(serviceset.Profile),
		Messaging: httpH.NewMessagingHandler(serviceset.Messaging),
		Realtime:  httpH.NewRealtimeHandler(log, rt.Hub, rt.Publisher, rt.Presence, cfg.Presence.Heartbeat),
		Presence:  httpH.NewPresenceHandler(rt.Presence),
	}
}
