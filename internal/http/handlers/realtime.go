package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/echoworld-backend/internal/http/response"
	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
	"github.com/yungbote/echoworld-backend/internal/realtime"
	"github.com/yungbote/echoworld-backend/internal/realtime/presence"
)

const streamPingInterval = 15 * time.Second

type RealtimeHandler struct {
	log       *logger.Logger
	hub       *realtime.Hub
	pub       *realtime.Publisher
	presence  *presence.Hub
	heartbeat time.Duration
	ping      time.Duration
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub, pub *realtime.Publisher, presenceHub *presence.Hub, heartbeat time.Duration) *RealtimeHandler {
	return &RealtimeHandler{
		log:       log.With("handler", "RealtimeHandler"),
		hub:       hub,
		pub:       pub,
		presence:  presenceHub,
		heartbeat: heartbeat,
		ping:      streamPingInterval,
	}
}

// GET /api/realtime/stream
func (h *RealtimeHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	userID := ctxutil.UserID(ctx)
	if userID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "authentication", nil)
		return
	}
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "internal", fmt.Errorf("streaming unsupported"))
		return
	}

	log := h.log.With("user_id", userID, "stream_id", uuid.NewString())
	out := make(chan realtime.Envelope, realtime.ClientBuffer)
	push := func(env realtime.Envelope) {
		select {
		case out <- env:
		default:
			observability.Current().IncRealtimeDropped("stream_full")
			log.Warn("stream buffer full; dropping event", "event", env.Event)
		}
	}

	sess := realtime.NewSession(h.hub, h.pub, log)
	defer sess.Stop()
	unMsg := sess.OnMessage(realtime.Listen(func(rec realtime.MessageRecord) {
		push(realtime.Envelope{Channel: realtime.MessagesTopic(userID), Event: rec.Event(), Data: rec})
	}))
	defer unMsg()
	unNote := sess.OnNotification(realtime.Listen(func(rec realtime.NotificationRecord) {
		push(realtime.Envelope{Channel: realtime.NotificationsTopic(userID), Event: rec.Event(), Data: rec})
	}))
	defer unNote()
	if err := sess.Start(userID); err != nil {
		response.RespondErr(c, err)
		return
	}

	if h.presence != nil {
		tracker := presence.NewTracker(h.presence, log, h.heartbeat)
		defer tracker.Close()
		tracker.OnChange(func(st presence.State) {
			observability.Current().SetPresenceOnline(st.OnlineCount())
			push(realtime.Envelope{Channel: presence.DefaultChannel, Event: realtime.EventPresenceState, Data: st})
		})
		tracker.Start(userID, presence.DefaultChannel)
	}

	observability.Current().StreamClientsInc()
	defer observability.Current().StreamClientsDec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()
	log.Info("realtime stream open")

	ping := time.NewTicker(h.ping)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("realtime stream closed", "err", ctx.Err())
			return
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case env := <-out:
			if err := writeEvent(w, env); err != nil {
				log.Warn("failed to encode stream event", "event", env.Event, "error", err)
				continue
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, env realtime.Envelope) error {
	data, err := json.Marshal(env.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Event, data)
	return err
}
