package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/types"
)

// ContentConceptMappingRepo is read-only from the learner model's side; the
// course pipeline owns these rows.
type ContentConceptMappingRepo interface {
	ListForLesson(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, lessonIndex int) ([]*types.ContentConceptMapping, error)
}

type contentConceptMappingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentConceptMappingRepo(db *gorm.DB, baseLog *logger.Logger) ContentConceptMappingRepo {
	return &contentConceptMappingRepo{
		db:  db,
		log: baseLog.With("repo", "ContentConceptMappingRepo"),
	}
}

func (r *contentConceptMappingRepo) ListForLesson(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, lessonIndex int) ([]*types.ContentConceptMapping, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ContentConceptMapping
	if courseID == uuid.Nil || lessonIndex < 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("course_id = ? AND lesson_index = ?", courseID, lessonIndex).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
