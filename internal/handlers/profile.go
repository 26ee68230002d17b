package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pathwise/pathwise-backend/internal/apierr"
	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/middleware"
	"github.com/pathwise/pathwise-backend/internal/services"
	"github.com/pathwise/pathwise-backend/internal/types"
)

type ProfileHandler struct {
	log        *logger.Logger
	profileSvc services.ProfileService
}

func NewProfileHandler(log *logger.Logger, profileSvc services.ProfileService) *ProfileHandler {
	return &ProfileHandler{
		log:        log.With("handler", "ProfileHandler"),
		profileSvc: profileSvc,
	}
}

// GET /api/profile/effective?include_history=true&history_limit=20
func (h *ProfileHandler) GetEffectiveProfile(c *gin.Context) {
	userID := middleware.UserID(c)
	opts := services.EffectiveProfileOptions{
		IncludeHistory: strings.EqualFold(c.Query("include_history"), "true"),
	}
	if raw := c.Query("history_limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			opts.HistoryLimit = limit
		}
	}
	result, err := h.profileSvc.GetEffectiveProfile(c.Request.Context(), userID, opts)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, result)
}

// PUT /api/profile
func (h *ProfileHandler) UpsertProfile(c *gin.Context) {
	userID := middleware.UserID(c)
	var row types.LearnerProfile
	if err := c.ShouldBindJSON(&row); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeMissingParameter, err)
		return
	}
	saved, err := h.profileSvc.UpsertProfile(c.Request.Context(), userID, &row)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, saved)
}
