package app

import (
	apphttp "github.com/yungbote/echoworld-backend/internal/http"
	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlerset Handlers, mw Middleware) *apphttp.Server {
	log.Info("Wiring router...")
	serviceTag := ""
	if cfg.Otel.Enabled {
		serviceTag = cfg.Otel.ServiceName
	}
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:              log,
		ServiceName:      serviceTag,
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		Metrics:          metrics,
		AuthMiddleware:   mw.Auth,
		SendLimiter:      mw.SendLimiter,
		ProfileHandler:   handlerset.Profile,
		MessagingHandler: handlerset.Messaging,
		RealtimeHandler:  handlerset.Realtime,
		PresenceHandler:  handlerset.Presence,
		HealthHandler:    handlerset.Health,
	})
}
