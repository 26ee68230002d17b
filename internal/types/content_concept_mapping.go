package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	RelationshipTeaches    = "teaches"
	RelationshipReinforces = "reinforces"
	RelationshipRequires   = "requires"
)

// ContentConceptMapping links a lesson to a concept it touches. Reference
// data maintained by the course pipeline; read-only for the learner model.
type ContentConceptMapping struct {
	ID               uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CourseID         uuid.UUID `gorm:"type:uuid;not null;index:idx_lesson_concept_map,unique,priority:1" json:"course_id"`
	LessonIndex      int       `gorm:"column:lesson_index;not null;index:idx_lesson_concept_map,unique,priority:2" json:"lesson_index"`
	ConceptID        uuid.UUID `gorm:"type:uuid;not null;index:idx_lesson_concept_map,unique,priority:3" json:"concept_id"`
	RelationshipType string    `gorm:"column:relationship_type;not null;default:'teaches'" json:"relationship_type"`
	RelevanceScore   float64   `gorm:"column:relevance_score;not null;default:1" json:"relevance_score"` // (0..1]
	CreatedAt        time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ContentConceptMapping) TableName() string { return "content_concept_mapping" }
