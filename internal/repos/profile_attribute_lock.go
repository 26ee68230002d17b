package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/types"
)

type ProfileAttributeLockRepo interface {
	// Lock and Unlock are both idempotent: locking a locked attribute and
	// unlocking an unlocked one succeed without touching anything.
	Lock(ctx context.Context, tx *gorm.DB, userID uuid.UUID, attribute string) error
	Unlock(ctx context.Context, tx *gorm.DB, userID uuid.UUID, attribute string) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]string, error)
	ReplaceAll(ctx context.Context, tx *gorm.DB, userID uuid.UUID, attributes []string) error
}

type profileAttributeLockRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileAttributeLockRepo(db *gorm.DB, baseLog *logger.Logger) ProfileAttributeLockRepo {
	return &profileAttributeLockRepo{
		db:  db,
		log: baseLog.With("repo", "ProfileAttributeLockRepo"),
	}
}

func (r *profileAttributeLockRepo) Lock(ctx context.Context, tx *gorm.DB, userID uuid.UUID, attribute string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || attribute == "" {
		return nil
	}
	row := &types.ProfileAttributeLock{
		ID:        uuid.New(),
		UserID:    userID,
		Attribute: attribute,
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "attribute"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (r *profileAttributeLockRepo) Unlock(ctx context.Context, tx *gorm.DB, userID uuid.UUID, attribute string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || attribute == "" {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("user_id = ? AND attribute = ?", userID, attribute).
		Delete(&types.ProfileAttributeLock{}).Error
}

func (r *profileAttributeLockRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var attrs []string
	if userID == uuid.Nil {
		return attrs, nil
	}
	err := transaction.WithContext(ctx).
		Model(&types.ProfileAttributeLock{}).
		Where("user_id = ?", userID).
		Order("attribute ASC").
		Pluck("attribute", &attrs).Error
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

// ReplaceAll swaps the user's lock set wholesale; rollback uses it to restore
// the locks captured in a snapshot.
func (r *profileAttributeLockRepo) ReplaceAll(ctx context.Context, tx *gorm.DB, userID uuid.UUID, attributes []string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&types.ProfileAttributeLock{}).Error; err != nil {
		return err
	}
	if len(attributes) == 0 {
		return nil
	}
	rows := make([]*types.ProfileAttributeLock, 0, len(attributes))
	for _, attr := range attributes {
		rows = append(rows, &types.ProfileAttributeLock{
			ID:        uuid.New(),
			UserID:    userID,
			Attribute: attr,
		})
	}
	return transaction.WithContext(ctx).Create(&rows).Error
}
