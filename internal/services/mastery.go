package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pathwise/pathwise-backend/internal/apierr"
	"github.com/pathwise/pathwise-backend/internal/config"
	"github.com/pathwise/pathwise-backend/internal/engine/mastery"
	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/repos"
	"github.com/pathwise/pathwise-backend/internal/types"
)

// How many of the newest attempts count toward lesson mastery.
const lessonMasteryWindow = 20

// Parallelism cap for the cross-user decay sweep.
const decaySweepWorkers = 8

type MasteryService interface {
	// RecordLessonCompletion writes the lesson progress row and then, best
	// effort, propagates mastery to the lesson's mapped concepts. Mapping
	// absence or a mastery-side failure never fails the progress write.
	RecordLessonCompletion(ctx context.Context, userID, courseID uuid.UUID, lessonIndex int, accuracy float64) error
	// LessonMastery recomputes the recency-weighted mastery for one lesson
	// from its recent question attempts.
	LessonMastery(ctx context.Context, userID, courseID uuid.UUID, lessonIndex int) (float64, error)
	// DueConcepts lists concepts whose next review date has passed.
	DueConcepts(ctx context.Context, userID uuid.UUID, asOf time.Time, limit int) ([]*types.ConceptMastery, error)
	// ApplyDecay shrinks mastery for concepts left unreviewed past their
	// stability window, fanned out across users.
	ApplyDecay(ctx context.Context, userIDs []uuid.UUID, asOf time.Time) error
}

type masteryService struct {
	db           *gorm.DB
	log          *logger.Logger
	tn           config.Tunables
	masteryRepo  repos.ConceptMasteryRepo
	mappingRepo  repos.ContentConceptMappingRepo
	progressRepo repos.LessonProgressRepo
	attemptRepo  repos.QuestionAttemptRepo
}

func NewMasteryService(
	db *gorm.DB,
	log *logger.Logger,
	tn config.Tunables,
	masteryRepo repos.ConceptMasteryRepo,
	mappingRepo repos.ContentConceptMappingRepo,
	progressRepo repos.LessonProgressRepo,
	attemptRepo repos.QuestionAttemptRepo,
) MasteryService {
	return &masteryService{
		db:           db,
		log:          log.With("service", "MasteryService"),
		tn:           tn,
		masteryRepo:  masteryRepo,
		mappingRepo:  mappingRepo,
		progressRepo: progressRepo,
		attemptRepo:  attemptRepo,
	}
}

func (s *masteryService) RecordLessonCompletion(ctx context.Context, userID, courseID uuid.UUID, lessonIndex int, accuracy float64) error {
	if userID == uuid.Nil {
		return apierr.MissingParameter("user_id")
	}
	if courseID == uuid.Nil {
		return apierr.MissingParameter("course_id")
	}
	if accuracy < 0 {
		accuracy = 0
	}
	if accuracy > 1 {
		accuracy = 1
	}
	now := time.Now().UTC()

	progress := &types.LessonProgress{
		UserID:      userID,
		CourseID:    courseID,
		LessonIndex: lessonIndex,
		Status:      "completed",
		Accuracy:    accuracy,
		CompletedAt: &now,
		Metadata:    datatypes.JSON([]byte(fmt.Sprintf(`{"accuracy":%g}`, accuracy))),
	}
	if err := s.progressRepo.Upsert(ctx, nil, progress); err != nil {
		s.log.Error("Lesson progress upsert failed", "user_id", userID, "course_id", courseID, "lesson_index", lessonIndex, "error", err)
		return apierr.Storage(fmt.Errorf("persist lesson progress: %w", err))
	}

	// Secondary side effect: mastery propagation. Warn and swallow.
	if err := s.propagate(ctx, userID, courseID, lessonIndex, accuracy, now); err != nil {
		s.log.Warn("Concept mastery propagation failed", "user_id", userID, "course_id", courseID, "lesson_index", lessonIndex, "error", err)
	}
	return nil
}

func (s *masteryService) propagate(ctx context.Context, userID, courseID uuid.UUID, lessonIndex int, accuracy float64, now time.Time) error {
	mappings, err := s.mappingRepo.ListForLesson(ctx, nil, courseID, lessonIndex)
	if err != nil {
		return fmt.Errorf("load concept mappings: %w", err)
	}
	if len(mappings) == 0 {
		// Not every lesson teaches a tracked concept.
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range mappings {
			existing, err := s.masteryRepo.Get(ctx, tx, userID, m.ConceptID)
			if err != nil {
				return fmt.Errorf("load concept mastery: %w", err)
			}
			cs := mastery.NewConceptState()
			row := &types.ConceptMastery{UserID: userID, ConceptID: m.ConceptID}
			if existing != nil {
				row = existing
				cs = mastery.ConceptState{
					MasteryLevel:      existing.MasteryLevel,
					TotalExposures:    existing.TotalExposures,
					SuccessfulRecalls: existing.SuccessfulRecalls,
					FailedRecalls:     existing.FailedRecalls,
					Stability:         existing.Stability,
				}
			}
			next := mastery.Advance(cs, m.RelationshipType, m.RelevanceScore, accuracy, s.tn)
			review := mastery.NextReview(now, next.Stability)

			row.MasteryLevel = next.MasteryLevel
			row.TotalExposures = next.TotalExposures
			row.SuccessfulRecalls = next.SuccessfulRecalls
			row.FailedRecalls = next.FailedRecalls
			row.Stability = next.Stability
			row.NextReviewAt = &review
			reviewedAt := now
			row.LastReviewedAt = &reviewedAt

			if err := s.masteryRepo.Upsert(ctx, tx, row); err != nil {
				return fmt.Errorf("persist concept mastery: %w", err)
			}
		}
		return nil
	})
}

func (s *masteryService) LessonMastery(ctx context.Context, userID, courseID uuid.UUID, lessonIndex int) (float64, error) {
	rows, err := s.attemptRepo.ListRecent(ctx, nil, userID, courseID, lessonIndex, lessonMasteryWindow)
	if err != nil {
		return 0, s.storage("list question attempts", userID, err)
	}
	attempts := make([]mastery.Attempt, 0, len(rows))
	for _, r := range rows {
		attempts = append(attempts, mastery.Attempt{Correct: r.Correct, At: r.CreatedAt})
	}
	return mastery.LessonMastery(attempts, time.Now().UTC()), nil
}

func (s *masteryService) DueConcepts(ctx context.Context, userID uuid.UUID, asOf time.Time, limit int) ([]*types.ConceptMastery, error) {
	if userID == uuid.Nil {
		return nil, apierr.MissingParameter("user_id")
	}
	rows, err := s.masteryRepo.ListDue(ctx, nil, userID, asOf, limit)
	if err != nil {
		return nil, s.storage("list due concepts", userID, err)
	}
	return rows, nil
}

func (s *masteryService) ApplyDecay(ctx context.Context, userIDs []uuid.UUID, asOf time.Time) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(decaySweepWorkers)
	for _, userID := range userIDs {
		g.Go(func() error {
			return s.decayUser(ctx, userID, asOf)
		})
	}
	return g.Wait()
}

func (s *masteryService) decayUser(ctx context.Context, userID uuid.UUID, asOf time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.masteryRepo.ListByUser(ctx, tx, userID)
		if err != nil {
			return s.storage("list concept mastery", userID, err)
		}
		for _, row := range rows {
			if row.LastReviewedAt == nil {
				continue
			}
			elapsedDays := asOf.Sub(*row.LastReviewedAt).Hours() / 24
			cs := mastery.ConceptState{
				MasteryLevel:      row.MasteryLevel,
				TotalExposures:    row.TotalExposures,
				SuccessfulRecalls: row.SuccessfulRecalls,
				FailedRecalls:     row.FailedRecalls,
				Stability:         row.Stability,
			}
			next := mastery.Decay(cs, elapsedDays, s.tn)
			if next.MasteryLevel == row.MasteryLevel {
				continue
			}
			row.MasteryLevel = next.MasteryLevel
			if err := s.masteryRepo.Upsert(ctx, tx, row); err != nil {
				return s.storage("persist decayed mastery", userID, err)
			}
		}
		return nil
	})
}

func (s *masteryService) storage(op string, userID uuid.UUID, err error) error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	s.log.Error("Storage failure", "op", op, "user_id", userID, "error", err)
	return apierr.Storage(fmt.Errorf("%s: %w", op, err))
}
