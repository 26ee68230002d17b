package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SnapshotReasonPreSync     = "pre_sync"
	SnapshotReasonPreRollback = "pre_rollback"
)

// ProfileSnapshot is an immutable capture of (profile, refinement state,
// locked attributes) taken before a destructive sync or rollback. Rows are
// never updated after creation.
type ProfileSnapshot struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Reason           string         `gorm:"column:reason;not null" json:"reason"`
	Profile          datatypes.JSON `gorm:"type:jsonb;column:profile;not null" json:"profile"`
	Refinement       datatypes.JSON `gorm:"type:jsonb;column:refinement" json:"refinement,omitempty"`
	LockedAttributes datatypes.JSON `gorm:"type:jsonb;column:locked_attributes" json:"locked_attributes,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (ProfileSnapshot) TableName() string { return "profile_snapshot" }
