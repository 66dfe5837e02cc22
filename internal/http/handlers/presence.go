package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/echoworld-backend/internal/http/response"
	"github.com/yungbote/echoworld-backend/internal/realtime/presence"
)

type PresenceHandler struct {
	hub *presence.Hub
}

func NewPresenceHandler(hub *presence.Hub) *PresenceHandler {
	return &PresenceHandler{hub: hub}
}

// GET /api/presence
func (h *PresenceHandler) State(c *gin.Context) {
	st := h.hub.State(presence.DefaultChannel)
	response.RespondOK(c, gin.H{
		"channel": presence.DefaultChannel,
		"online":  st.OnlineCount(),
		"state":   st,
	})
}
