package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefinementState is the live ability/difficulty estimate for one user.
// TotalQuestionsAnalyzed never decreases except through a snapshot rollback.
type RefinementState struct {
	ID                      uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID                  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	RollingAccuracy         float64        `gorm:"column:rolling_accuracy;not null;default:0" json:"rolling_accuracy"` // 0..1
	EstimatedAbility        float64        `gorm:"column:estimated_ability;not null;default:0" json:"estimated_ability"`
	CurrentDifficultyTarget float64        `gorm:"column:current_difficulty_target;not null;default:0" json:"current_difficulty_target"`
	TotalQuestionsAnalyzed  int            `gorm:"column:total_questions_analyzed;not null;default:0" json:"total_questions_analyzed"`
	LastUpdated             time.Time      `gorm:"column:last_updated;not null;default:now()" json:"last_updated"`
	CreatedAt               time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt               time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt               gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (RefinementState) TableName() string { return "refinement_state" }
