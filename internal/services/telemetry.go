package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pathwise/pathwise-backend/internal/apierr"
	"github.com/pathwise/pathwise-backend/internal/engine/signal"
	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/repos"
	"github.com/pathwise/pathwise-backend/internal/types"
)

type QuestionAttemptInput struct {
	CourseID       uuid.UUID  `json:"course_id"`
	LessonIndex    int        `json:"lesson_index"`
	ConceptID      *uuid.UUID `json:"concept_id,omitempty"`
	Correct        bool       `json:"correct"`
	Difficulty     float64    `json:"difficulty"`
	ResponseTimeMs int        `json:"response_time_ms"`
}

// TelemetryService ingests raw per-question telemetry: it keeps the attempt
// row for lesson-mastery recomputation and forwards the outcome to the
// refinement engine as a question_answered signal.
type TelemetryService interface {
	RecordQuestionAttempt(ctx context.Context, userID uuid.UUID, in QuestionAttemptInput) (*ProcessSignalResult, error)
}

type telemetryService struct {
	db          *gorm.DB
	log         *logger.Logger
	attemptRepo repos.QuestionAttemptRepo
	refinement  RefinementService
}

func NewTelemetryService(db *gorm.DB, log *logger.Logger, attemptRepo repos.QuestionAttemptRepo, refinement RefinementService) TelemetryService {
	return &telemetryService{
		db:          db,
		log:         log.With("service", "TelemetryService"),
		attemptRepo: attemptRepo,
		refinement:  refinement,
	}
}

func (s *telemetryService) RecordQuestionAttempt(ctx context.Context, userID uuid.UUID, in QuestionAttemptInput) (*ProcessSignalResult, error) {
	if userID == uuid.Nil {
		return nil, apierr.MissingParameter("user_id")
	}
	if in.CourseID == uuid.Nil {
		return nil, apierr.MissingParameter("course_id")
	}
	row := &types.QuestionAttempt{
		UserID:         userID,
		CourseID:       in.CourseID,
		LessonIndex:    in.LessonIndex,
		Correct:        in.Correct,
		Difficulty:     in.Difficulty,
		ResponseTimeMs: in.ResponseTimeMs,
	}
	if err := s.attemptRepo.Create(ctx, nil, row); err != nil {
		s.log.Error("Question attempt insert failed", "user_id", userID, "error", err)
		return nil, apierr.Storage(fmt.Errorf("persist question attempt: %w", err))
	}
	return s.refinement.ProcessParsed(ctx, userID, signal.QuestionAnswered{
		ConceptID:      in.ConceptID,
		Correct:        in.Correct,
		Difficulty:     in.Difficulty,
		ResponseTimeMs: in.ResponseTimeMs,
	})
}
