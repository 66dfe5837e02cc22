package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/echoworld-backend/internal/http/handlers"
	httpMW "github.com/yungbote/echoworld-backend/internal/http/middleware"
	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	AuthMiddleware *httpMW.AuthMiddleware
	SendLimiter    *httpMW.RateLimiter

	ProfileHandler   *httpH.ProfileHandler
	MessagingHandler *httpH.MessagingHandler
	RealtimeHandler  *httpH.RealtimeHandler
	PresenceHandler  *httpH.PresenceHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Profiles
		if cfg.ProfileHandler != nil {
			protected.GET("/me", cfg.ProfileHandler.GetMe)
			protected.PUT("/me", cfg.ProfileHandler.EnsureMe)
			protected.GET("/profiles/:handle", cfg.ProfileHandler.GetByHandle)
		}

		// Conversations and messages
		if cfg.MessagingHandler != nil {
			mh := cfg.MessagingHandler
			protected.GET("/conversations", mh.ListConversations)
			protected.POST("/direct-conversations", mh.StartDirectConversation)
			protected.GET("/conversations/:id/messages", mh.ListMessages)
			protected.POST("/conversations/:id/messages", cfg.SendLimiter.Limit(), mh.SendMessage)
			protected.POST("/conversations/:id/read", mh.MarkRead)
			protected.PUT("/conversations/:id/mute", mh.SetMuted)
			protected.PATCH("/messages/:id", mh.EditMessage)
			protected.DELETE("/messages/:id", mh.DeleteMessage)
			protected.GET("/unread", mh.CountUnread)
			protected.GET("/notifications", mh.ListNotifications)
			protected.POST("/notifications/read", mh.MarkNotificationsRead)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/realtime/stream", cfg.RealtimeHandler.Stream)
		}

		// Presence
		if cfg.PresenceHandler != nil {
			protected.GET("/presence", cfg.PresenceHandler.State)
		}
	}

	return r
}
