package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/types"
)

type ProfileSnapshotRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.ProfileSnapshot) error
	// GetForUser returns nil when the snapshot does not exist or belongs to a
	// different user; ownership is part of the lookup key.
	GetForUser(ctx context.Context, tx *gorm.DB, userID, snapshotID uuid.UUID) (*types.ProfileSnapshot, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.ProfileSnapshot, error)
}

type profileSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) ProfileSnapshotRepo {
	return &profileSnapshotRepo{
		db:  db,
		log: baseLog.With("repo", "ProfileSnapshotRepo"),
	}
}

func (r *profileSnapshotRepo) Create(ctx context.Context, tx *gorm.DB, row *types.ProfileSnapshot) error {
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
	return transaction.WithContext(ctx).Create(row).Error
}

func (r *profileSnapshotRepo) GetForUser(ctx context.Context, tx *gorm.DB, userID, snapshotID uuid.UUID) (*types.ProfileSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || snapshotID == uuid.Nil {
		return nil, nil
	}
	var row types.ProfileSnapshot
	err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", snapshotID, userID).
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

func (r *profileSnapshotRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.ProfileSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ProfileSnapshot
	if userID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
