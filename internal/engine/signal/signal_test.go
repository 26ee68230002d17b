package signal

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestParseQuestionAnswered(t *testing.T) {
	raw := []byte(`{"type":"question_answered","data":{"correct":true,"difficulty":0.5,"response_time_ms":1200}}`)
	sig, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	qa, ok := sig.(QuestionAnswered)
	if !ok {
		t.Fatalf("expected QuestionAnswered, got %T", sig)
	}
	if !qa.Correct || qa.Difficulty != 0.5 || qa.ResponseTimeMs != 1200 {
		t.Fatalf("payload not carried through: %+v", qa)
	}
}

func TestParseQuestionAnsweredFalseIsNotMissing(t *testing.T) {
	// correct:false must parse; only a truly absent field is invalid.
	raw := []byte(`{"type":"question_answered","data":{"correct":false,"difficulty":-1}}`)
	sig, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.(QuestionAnswered).Correct {
		t.Fatalf("expected correct=false")
	}
}

func TestParseMissingRequiredField(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"question_no_correct", `{"type":"question_answered","data":{"difficulty":0.5}}`},
		{"question_no_difficulty", `{"type":"question_answered","data":{"correct":true}}`},
		{"question_no_data", `{"type":"question_answered"}`},
		{"session_no_cards", `{"type":"session_ended","data":{"correct_count":3}}`},
		{"session_no_correct", `{"type":"session_ended","data":{"cards_reviewed":5}}`},
		{"self_no_concept", `{"type":"self_assessment","data":{"claimed_mastery":0.8}}`},
		{"self_no_mastery", `{"type":"self_assessment","data":{"concept_id":"7b6cf917-38a9-4a9e-b21c-6e4dfe4cf56c"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); !errors.Is(err, ErrInvalidSignal) {
				t.Fatalf("expected ErrInvalidSignal, got %v", err)
			}
		})
	}
}

func TestParseUnknownType(t *testing.T) {
	if _, err := Parse([]byte(`{"type":"page_viewed","data":{}}`)); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal for unknown type, got %v", err)
	}
}

func TestParseInconsistentSessionCounts(t *testing.T) {
	raw := []byte(`{"type":"session_ended","data":{"cards_reviewed":3,"correct_count":5}}`)
	if _, err := Parse(raw); !errors.Is(err, ErrInvalidSignal) {
		t.Fatalf("expected ErrInvalidSignal, got %v", err)
	}
}

func TestParseInitializeNeedsNoData(t *testing.T) {
	sig, err := Parse([]byte(`{"type":"initialize"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sig.(Initialize); !ok {
		t.Fatalf("expected Initialize, got %T", sig)
	}
}

func TestParseSelfAssessment(t *testing.T) {
	id := uuid.New()
	raw := []byte(`{"type":"self_assessment","data":{"concept_id":"` + id.String() + `","claimed_mastery":0.8}}`)
	sig, err := Parse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sa := sig.(SelfAssessment)
	if sa.ConceptID != id || sa.ClaimedMastery != 0.8 {
		t.Fatalf("payload not carried through: %+v", sa)
	}
}
