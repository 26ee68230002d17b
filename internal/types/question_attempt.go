package types

import (
	"time"

	"github.com/google/uuid"
)

// QuestionAttempt is a single graded answer inside a lesson, kept so lesson
// mastery can be recomputed with recency weighting.
type QuestionAttempt struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index:idx_attempt_lookup,priority:1" json:"user_id"`
	CourseID       uuid.UUID `gorm:"type:uuid;not null;index:idx_attempt_lookup,priority:2" json:"course_id"`
	LessonIndex    int       `gorm:"column:lesson_index;not null;index:idx_attempt_lookup,priority:3" json:"lesson_index"`
	Correct        bool      `gorm:"column:correct;not null" json:"correct"`
	Difficulty     float64   `gorm:"column:difficulty;not null;default:0" json:"difficulty"`
	ResponseTimeMs int       `gorm:"column:response_time_ms;not null;default:0" json:"response_time_ms"`
	CreatedAt      time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (QuestionAttempt) TableName() string { return "question_attempt" }
