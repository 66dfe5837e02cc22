package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/echoworld-backend/internal/http/response"
	"github.com/yungbote/echoworld-backend/internal/services"
)

type ProfileHandler struct {
	profiles services.ProfileService
}

func NewProfileHandler(profiles services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// GET /api/me
func (h *ProfileHandler) GetMe(c *gin.Context) {
	p, err := h.profiles.Me(requestDBC(c))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"profile": p})
}

type ensureMeReq struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

// PUT /api/me
func (h *ProfileHandler) EnsureMe(c *gin.Context) {
	var req ensureMeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", err)
		return
	}
	p, err := h.profiles.EnsureMe(requestDBC(c), req.Handle, req.DisplayName)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"profile": p})
}

// GET /api/profiles/:handle
func (h *ProfileHandler) GetByHandle(c *gin.Context) {
	p, err := h.profiles.GetByHandle(requestDBC(c), c.Param("handle"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"profile": p})
}
