package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/types"
)

type RefinementStateRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.RefinementState, error)
	// EnsureExists creates the row with defaults when absent; calling it for
	// an existing row is a no-op, which is what makes initialize idempotent.
	EnsureExists(ctx context.Context, tx *gorm.DB, row *types.RefinementState) error
	Upsert(ctx context.Context, tx *gorm.DB, row *types.RefinementState) error
}

type refinementStateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRefinementStateRepo(db *gorm.DB, baseLog *logger.Logger) RefinementStateRepo {
	return &refinementStateRepo{
		db:  db,
		log: baseLog.With("repo", "RefinementStateRepo"),
	}
}

func (r *refinementStateRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.RefinementState, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}
	var row types.RefinementState
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
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

func (r *refinementStateRepo) EnsureExists(ctx context.Context, tx *gorm.DB, row *types.RefinementState) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.UserID == uuid.Nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (r *refinementStateRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.RefinementState) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.UserID == uuid.Nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"rolling_accuracy", "estimated_ability", "current_difficulty_target",
				"total_questions_analyzed", "last_updated", "updated_at",
			}),
		}).
		Create(row).Error
}
