package types

import (
	"time"

	"github.com/google/uuid"
)

// ProfileAttributeLock pins one LearnerProfile attribute against automatic
// overwrite during sync. One row per (user, attribute).
type ProfileAttributeLock struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_user_attribute_lock,unique,priority:1" json:"user_id"`
	Attribute string    `gorm:"column:attribute;not null;index:idx_user_attribute_lock,unique,priority:2" json:"attribute"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ProfileAttributeLock) TableName() string { return "profile_attribute_lock" }
