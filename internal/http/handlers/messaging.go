package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/echoworld-backend/internal/domain"
	"github.com/yungbote/echoworld-backend/internal/http/response"
	"github.com/yungbote/echoworld-backend/internal/platform/ctxutil"
	"github.com/yungbote/echoworld-backend/internal/services"
)

type MessagingHandler struct {
	messaging services.MessagingService
}

func NewMessagingHandler(messaging services.MessagingService) *MessagingHandler {
	return &MessagingHandler{messaging: messaging}
}

// GET /api/conversations?limit=50
func (h *MessagingHandler) ListConversations(c *gin.Context) {
	convs, err := h.messaging.ListConversations(requestDBC(c), queryLimit(c, 50))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"conversations": convs})
}

// GET /api/conversations/:id/messages?limit=50
func (h *MessagingHandler) ListMessages(c *gin.Context) {
	convID, err := uuidParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	msgs, err := h.messaging.ListMessages(requestDBC(c), convID, queryLimit(c, 50))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"messages": msgs})
}

type sendMessageReq struct {
	Content  string         `json:"content"`
	ClientID string         `json:"client_id"`
	ParentID *uuid.UUID     `json:"parent_id"`
	Extra    map[string]any `json:"extra"`
}

// POST /api/conversations/:id/messages
func (h *MessagingHandler) SendMessage(c *gin.Context) {
	convID, err := uuidParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	msg, err := h.messaging.SendMessage(requestDBC(c), convID, req.Content, types.SendMetadata{
		ClientID: req.ClientID,
		ParentID: req.ParentID,
		Extra:    req.Extra,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"message": msg})
}

type editMessageReq struct {
	Content string `json:"content"`
}

// PATCH /api/messages/:id
func (h *MessagingHandler) EditMessage(c *gin.Context) {
	msgID, err := uuidParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req editMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	msg, err := h.messaging.EditMessage(requestDBC(c), msgID, req.Content)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": msg})
}

// DELETE /api/messages/:id
func (h *MessagingHandler) DeleteMessage(c *gin.Context) {
	msgID, err := uuidParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if err := h.messaging.DeleteMessage(requestDBC(c), msgID); err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/conversations/:id/read
func (h *MessagingHandler) MarkRead(c *gin.Context) {
	convID, err := uuidParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if err := h.messaging.MarkRead(requestDBC(c), convID); err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type muteReq struct {
	Muted bool `json:"muted"`
}

// PUT /api/conversations/:id/mute
func (h *MessagingHandler) SetMuted(c *gin.Context) {
	convID, err := uuidParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var req muteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	if err := h.messaging.SetMuted(requestDBC(c), convID, req.Muted); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"muted": req.Muted})
}

// GET /api/unread
func (h *MessagingHandler) CountUnread(c *gin.Context) {
	dbc := requestDBC(c)
	byConv, err := h.messaging.UnreadByConversation(dbc, ctxutil.UserID(dbc.Ctx))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	var total int64
	out := make(map[string]int64, len(byConv))
	for id, n := range byConv {
		total += n
		if n > 0 {
			out[id.String()] = n
		}
	}
	response.RespondOK(c, gin.H{"total": total, "by_conversation": out})
}

type startDirectReq struct {
	UserID          uuid.UUID `json:"user_id"`
	OriginReference *string   `json:"origin_reference"`
}

// POST /api/direct-conversations
func (h *MessagingHandler) StartDirectConversation(c *gin.Context) {
	var req startDirectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	dbc := requestDBC(c)
	conv, created, err := h.messaging.StartOrGetDirectConversation(dbc, ctxutil.UserID(dbc.Ctx), req.UserID, req.OriginReference)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if created {
		response.RespondCreated(c, gin.H{"conversation": conv, "created": true})
		return
	}
	response.RespondOK(c, gin.H{"conversation": conv, "created": false})
}

// GET /api/notifications?limit=50&unread=true
func (h *MessagingHandler) ListNotifications(c *gin.Context) {
	unreadOnly := strings.EqualFold(strings.TrimSpace(c.Query("unread")), "true")
	rows, err := h.messaging.ListNotifications(requestDBC(c), queryLimit(c, 50), unreadOnly)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"notifications": rows})
}

type markNotificationsReq struct {
	IDs []uuid.UUID `json:"ids"`
}

// POST /api/notifications/read
func (h *MessagingHandler) MarkNotificationsRead(c *gin.Context) {
	var req markNotificationsReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "validation", err)
			return
		}
	}
	n, err := h.messaging.MarkNotificationsRead(requestDBC(c), req.IDs)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"updated": n})
}
