package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConceptMastery tracks retained competence for one user on one concept.
// Invariant: SuccessfulRecalls + FailedRecalls <= TotalExposures — exposures
// in the ambiguous accuracy band count toward neither recall counter.
type ConceptMastery struct {
	ID                uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_concept_mastery,unique,priority:1" json:"user_id"`
	ConceptID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_concept_mastery,unique,priority:2" json:"concept_id"`
	MasteryLevel      float64        `gorm:"column:mastery_level;not null;default:0" json:"mastery_level"` // 0..1
	TotalExposures    int            `gorm:"column:total_exposures;not null;default:0" json:"total_exposures"`
	SuccessfulRecalls int            `gorm:"column:successful_recalls;not null;default:0" json:"successful_recalls"`
	FailedRecalls     int            `gorm:"column:failed_recalls;not null;default:0" json:"failed_recalls"`
	Stability         float64        `gorm:"column:stability;not null;default:1" json:"stability"` // days, >= 1
	NextReviewAt      *time.Time     `gorm:"column:next_review_at;index" json:"next_review_at,omitempty"`
	LastReviewedAt    *time.Time     `gorm:"column:last_reviewed_at" json:"last_reviewed_at,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ConceptMastery) TableName() string { return "concept_mastery" }
