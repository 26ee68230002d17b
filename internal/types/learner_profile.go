package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LearnerProfile is the canonical per-user profile. It is created at
// onboarding and only ever updated, either by explicit user action or by a
// sync from the refinement state.
type LearnerProfile struct {
	ID                   uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID               uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	EducationLevel       string         `gorm:"column:education_level" json:"education_level"`
	StudyGoal            string         `gorm:"column:study_goal" json:"study_goal"`
	PreferredStudyTime   string         `gorm:"column:preferred_study_time" json:"preferred_study_time"`
	LearningStyles       datatypes.JSON `gorm:"type:jsonb;column:learning_styles" json:"learning_styles"`
	SessionLengthMinutes int            `gorm:"column:session_length_minutes;not null;default:25" json:"session_length_minutes"`
	DailyGoalMinutes     int            `gorm:"column:daily_goal_minutes;not null;default:30" json:"daily_goal_minutes"`
	PreferredDifficulty  float64        `gorm:"column:preferred_difficulty;not null;default:0" json:"preferred_difficulty"`
	StrongSubjects       datatypes.JSON `gorm:"type:jsonb;column:strong_subjects" json:"strong_subjects"`
	WeakSubjects         datatypes.JSON `gorm:"type:jsonb;column:weak_subjects" json:"weak_subjects"`
	CreatedAt            time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LearnerProfile) TableName() string { return "learner_profile" }
