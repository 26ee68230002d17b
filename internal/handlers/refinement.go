package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pathwise/pathwise-backend/internal/apierr"
	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/middleware"
	"github.com/pathwise/pathwise-backend/internal/services"
)

type RefinementHandler struct {
	log           *logger.Logger
	refinementSvc services.RefinementService
}

func NewRefinementHandler(log *logger.Logger, refinementSvc services.RefinementService) *RefinementHandler {
	return &RefinementHandler{
		log:           log.With("handler", "RefinementHandler"),
		refinementSvc: refinementSvc,
	}
}

// POST /api/refinement/signal
// { type: "question_answered"|"session_ended"|"self_assessment"|"initialize", data: {...} }
func (h *RefinementHandler) ProcessSignal(c *gin.Context) {
	userID := middleware.UserID(c)
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeInvalidSignal, err)
		return
	}
	result, err := h.refinementSvc.ProcessSignal(c.Request.Context(), userID, raw)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, result)
}

type updateSettingsRequest struct {
	Action string                        `json:"action"`
	Params services.UpdateSettingsParams `json:"params"`
}

// POST /api/refinement/settings
// { action: "lock"|"unlock"|"sync"|"rollback", params: {...} }
func (h *RefinementHandler) UpdateSettings(c *gin.Context) {
	userID := middleware.UserID(c)
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeMissingParameter, err)
		return
	}
	result, err := h.refinementSvc.UpdateSettings(c.Request.Context(), userID, req.Action, req.Params)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, result)
}
