package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pathwise/pathwise-backend/internal/apierr"
	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/middleware"
	"github.com/pathwise/pathwise-backend/internal/services"
)

type ProgressHandler struct {
	log          *logger.Logger
	masterySvc   services.MasteryService
	telemetrySvc services.TelemetryService
}

func NewProgressHandler(log *logger.Logger, masterySvc services.MasteryService, telemetrySvc services.TelemetryService) *ProgressHandler {
	return &ProgressHandler{
		log:          log.With("handler", "ProgressHandler"),
		masterySvc:   masterySvc,
		telemetrySvc: telemetrySvc,
	}
}

type lessonCompletionRequest struct {
	CourseID    uuid.UUID `json:"course_id"`
	LessonIndex int       `json:"lesson_index"`
	Accuracy    float64   `json:"accuracy"`
}

// POST /api/progress/lesson-completion
func (h *ProgressHandler) RecordLessonCompletion(c *gin.Context) {
	userID := middleware.UserID(c)
	var req lessonCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeMissingParameter, err)
		return
	}
	if err := h.masterySvc.RecordLessonCompletion(c.Request.Context(), userID, req.CourseID, req.LessonIndex, req.Accuracy); err != nil {
		RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/telemetry/question-attempt
func (h *ProgressHandler) RecordQuestionAttempt(c *gin.Context) {
	userID := middleware.UserID(c)
	var req services.QuestionAttemptInput
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeMissingParameter, err)
		return
	}
	result, err := h.telemetrySvc.RecordQuestionAttempt(c.Request.Context(), userID, req)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, result)
}

// GET /api/review/due?limit=20
func (h *ProgressHandler) GetDueConcepts(c *gin.Context) {
	userID := middleware.UserID(c)
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := h.masterySvc.DueConcepts(c.Request.Context(), userID, time.Now().UTC(), limit)
	if err != nil {
		RespondAPIError(c, err)
		return
	}
	RespondOK(c, gin.H{"due": rows})
}

type decayRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

// POST /api/admin/mastery-decay
// Operational endpoint: applies staleness decay for the given users.
func (h *ProgressHandler) ApplyMasteryDecay(c *gin.Context) {
	var req decayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeMissingParameter, err)
		return
	}
	if len(req.UserIDs) == 0 {
		RespondAPIError(c, apierr.MissingParameter("user_ids"))
		return
	}
	if err := h.masterySvc.ApplyDecay(c.Request.Context(), req.UserIDs, time.Now().UTC()); err != nil {
		RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
