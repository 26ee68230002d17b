package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the learning signals the refinement engine accepts.
type Kind string

const (
	KindQuestionAnswered Kind = "question_answered"
	KindSessionEnded     Kind = "session_ended"
	KindSelfAssessment   Kind = "self_assessment"

	// KindInitialize is a control verb, not a learning signal: it only
	// ensures a refinement state row exists and is idempotent.
	KindInitialize Kind = "initialize"
)

// ErrInvalidSignal marks a payload that failed boundary validation. It is
// never retried automatically.
var ErrInvalidSignal = errors.New("invalid signal")

// Signal is a closed union; unknown tags are rejected at Parse, never deeper.
type Signal interface {
	Kind() Kind
	sealed()
}

type QuestionAnswered struct {
	ConceptID      *uuid.UUID
	Correct        bool
	Difficulty     float64
	ResponseTimeMs int
}

func (QuestionAnswered) Kind() Kind { return KindQuestionAnswered }
func (QuestionAnswered) sealed()    {}

type SessionEnded struct {
	CardsReviewed int
	CorrectCount  int
	DurationMs    int64
}

func (SessionEnded) Kind() Kind { return KindSessionEnded }
func (SessionEnded) sealed()    {}

type SelfAssessment struct {
	ConceptID      uuid.UUID
	ClaimedMastery float64
}

func (SelfAssessment) Kind() Kind { return KindSelfAssessment }
func (SelfAssessment) sealed()    {}

type Initialize struct{}

func (Initialize) Kind() Kind { return KindInitialize }
func (Initialize) sealed()    {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type questionAnsweredPayload struct {
	ConceptID      *uuid.UUID `json:"concept_id"`
	Correct        *bool      `json:"correct"`
	Difficulty     *float64   `json:"difficulty"`
	ResponseTimeMs *int       `json:"response_time_ms"`
}

type sessionEndedPayload struct {
	CardsReviewed *int   `json:"cards_reviewed"`
	CorrectCount  *int   `json:"correct_count"`
	DurationMs    *int64 `json:"duration_ms"`
}

type selfAssessmentPayload struct {
	ConceptID      *uuid.UUID `json:"concept_id"`
	ClaimedMastery *float64   `json:"claimed_mastery"`
}

// Parse validates a raw request body against the known signal kinds.
// Pointer payload fields distinguish "absent" from zero values so missing
// required fields fail here rather than silently defaulting.
func Parse(raw []byte) (Signal, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed body: %v", ErrInvalidSignal, err)
	}
	switch Kind(env.Type) {
	case KindInitialize:
		return Initialize{}, nil
	case KindQuestionAnswered:
		var p questionAnsweredPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.Correct == nil {
			return nil, missingField(env.Type, "correct")
		}
		if p.Difficulty == nil {
			return nil, missingField(env.Type, "difficulty")
		}
		sig := QuestionAnswered{
			ConceptID:  p.ConceptID,
			Correct:    *p.Correct,
			Difficulty: *p.Difficulty,
		}
		if p.ResponseTimeMs != nil {
			sig.ResponseTimeMs = *p.ResponseTimeMs
		}
		return sig, nil
	case KindSessionEnded:
		var p sessionEndedPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.CardsReviewed == nil {
			return nil, missingField(env.Type, "cards_reviewed")
		}
		if p.CorrectCount == nil {
			return nil, missingField(env.Type, "correct_count")
		}
		if *p.CardsReviewed < 0 || *p.CorrectCount < 0 || *p.CorrectCount > *p.CardsReviewed {
			return nil, fmt.Errorf("%w: %s: inconsistent card counts", ErrInvalidSignal, env.Type)
		}
		sig := SessionEnded{
			CardsReviewed: *p.CardsReviewed,
			CorrectCount:  *p.CorrectCount,
		}
		if p.DurationMs != nil {
			sig.DurationMs = *p.DurationMs
		}
		return sig, nil
	case KindSelfAssessment:
		var p selfAssessmentPayload
		if err := unmarshalData(env.Data, &p); err != nil {
			return nil, err
		}
		if p.ConceptID == nil || *p.ConceptID == uuid.Nil {
			return nil, missingField(env.Type, "concept_id")
		}
		if p.ClaimedMastery == nil {
			return nil, missingField(env.Type, "claimed_mastery")
		}
		return SelfAssessment{
			ConceptID:      *p.ConceptID,
			ClaimedMastery: *p.ClaimedMastery,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidSignal, env.Type)
	}
}

func unmarshalData(data json.RawMessage, into any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data payload", ErrInvalidSignal)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("%w: malformed data payload: %v", ErrInvalidSignal, err)
	}
	return nil
}

func missingField(kind, field string) error {
	return fmt.Errorf("%w: %s: missing field %q", ErrInvalidSignal, kind, field)
}
