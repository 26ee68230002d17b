package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LessonProgress is the primary completion record for one user on one lesson.
// The concept-mastery side effect of a completion is best-effort; this row is
// the write that must always land.
type LessonProgress struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_lesson_progress,unique,priority:1" json:"user_id"`
	CourseID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_user_lesson_progress,unique,priority:2" json:"course_id"`
	LessonIndex int            `gorm:"column:lesson_index;not null;index:idx_user_lesson_progress,unique,priority:3" json:"lesson_index"`
	Status      string         `gorm:"column:status;not null;default:'not_started'" json:"status"`
	Accuracy    float64        `gorm:"column:accuracy;not null;default:0" json:"accuracy"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LessonProgress) TableName() string { return "lesson_progress" }
