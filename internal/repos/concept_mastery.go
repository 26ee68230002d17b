package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/types"
)

type ConceptMasteryRepo interface {
	Get(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.ConceptMastery, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.ConceptMastery) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ConceptMastery, error)
	ListDue(ctx context.Context, tx *gorm.DB, userID uuid.UUID, asOf time.Time, limit int) ([]*types.ConceptMastery, error)
}

type conceptMasteryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptMasteryRepo(db *gorm.DB, baseLog *logger.Logger) ConceptMasteryRepo {
	return &conceptMasteryRepo{
		db:  db,
		log: baseLog.With("repo", "ConceptMasteryRepo"),
	}
}

func (r *conceptMasteryRepo) Get(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || conceptID == uuid.Nil {
		return nil, nil
	}
	var row types.ConceptMastery
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND concept_id = ?", userID, conceptID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *conceptMasteryRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.ConceptMastery) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.UserID == uuid.Nil || row.ConceptID == uuid.Nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "concept_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"mastery_level", "total_exposures", "successful_recalls",
				"failed_recalls", "stability", "next_review_at",
				"last_reviewed_at", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *conceptMasteryRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ConceptMastery
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptMasteryRepo) ListDue(ctx context.Context, tx *gorm.DB, userID uuid.UUID, asOf time.Time, limit int) ([]*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ConceptMastery
	if userID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ? AND next_review_at IS NOT NULL AND next_review_at <= ?", userID, asOf).
		Order("next_review_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
