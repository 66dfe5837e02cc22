package app

import (
	httpMW "github.com/yungbote/echoworld-backend/internal/http/middleware"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

type Middleware struct {
	Auth        *httpMW.AuthMiddleware
	SendLimiter *httpMW.RateLimiter
}

func wireMiddleware(log *logger.Logger, cfg Config, serviceset Services) Middleware {
	log.Info("Wiring middleware...")
	mw := Middleware{
		Auth: httpMW.NewAuthMiddleware(log, serviceset.Auth),
	}
	// A zero rate disables send throttling.
	if cfg.Send.RatePerSecond > 0 {
		mw.SendLimiter = httpMW.NewRateLimiter(cfg.Send.RatePerSecond, cfg.Send.Burst)
	}
	return mw
}
