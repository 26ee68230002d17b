package mastery

import (
	"math"
	"time"

	"github.com/pathwise/pathwise-backend/internal/config"
	"github.com/pathwise/pathwise-backend/internal/types"
)

// ConceptState carries the mutable fields of a concept mastery row through
// the update rules. All functions here are pure and total: accuracy outside
// [0, 1] is clamped, never rejected.
type ConceptState struct {
	MasteryLevel      float64
	TotalExposures    int
	SuccessfulRecalls int
	FailedRecalls     int
	Stability         float64
}

// NewConceptState is the starting point for a first exposure.
func NewConceptState() ConceptState {
	return ConceptState{Stability: 1}
}

// Delta computes the mastery movement one lesson observation produces for a
// concept, given how the lesson relates to it. Prerequisites (`requires`)
// only ever get a small positive bump, and only on strong performance:
// performance on later material must not punish earlier concepts.
func Delta(relationship string, relevance, accuracy float64, tn config.Tunables) float64 {
	accuracy = clamp(accuracy, 0, 1)
	relevance = clamp(relevance, 0, 1)
	switch relationship {
	case types.RelationshipTeaches:
		return tn.TeachesCoefficient * (accuracy - 0.5) * relevance
	case types.RelationshipReinforces:
		return tn.ReinforcesCoefficient * (accuracy - 0.5) * relevance
	case types.RelationshipRequires:
		if accuracy >= tn.RequiresAccuracyFloor {
			return tn.RequiresBonus * relevance
		}
		return 0
	default:
		return 0
	}
}

// Advance folds one lesson observation into the concept state: mastery delta,
// exposure and recall counters, and the stability multiplier.
func Advance(cs ConceptState, relationship string, relevance, accuracy float64, tn config.Tunables) ConceptState {
	accuracy = clamp(accuracy, 0, 1)
	next := cs
	if next.Stability < 1 {
		next.Stability = 1
	}
	next.MasteryLevel = clamp(cs.MasteryLevel+Delta(relationship, relevance, accuracy, tn), 0, 1)
	next.TotalExposures++
	switch {
	case accuracy >= tn.SuccessThreshold:
		next.SuccessfulRecalls++
	case accuracy < tn.FailureThreshold:
		next.FailedRecalls++
	}
	// Accuracies in [failure, success) touch neither recall counter.
	if accuracy >= tn.SuccessThreshold {
		next.Stability = next.Stability * tn.StabilityGrowth
	} else {
		next.Stability = math.Max(1, next.Stability*tn.StabilityShrink)
	}
	return next
}

// NextReview schedules the concept round(stability) days out, rounding half
// up: stability 1.2 lands tomorrow, 1.5 lands the day after.
func NextReview(day time.Time, stability float64) time.Time {
	days := int(math.Round(stability))
	if days < 1 {
		days = 1
	}
	return day.AddDate(0, 0, days)
}

// Attempt is one graded answer, used to recompute lesson-level mastery.
type Attempt struct {
	Correct bool
	At      time.Time
}

// RecencyWeight discounts stale evidence by the age of the most recent
// relevant attempt.
func RecencyWeight(mostRecent, now time.Time) float64 {
	age := now.Sub(mostRecent)
	switch {
	case age > 14*24*time.Hour:
		return 0.6
	case age > 7*24*time.Hour:
		return 0.7
	case age > 3*24*time.Hour:
		return 0.85
	case age > 24*time.Hour:
		return 0.95
	default:
		return 1.0
	}
}

// LessonMastery is the recency-weighted accuracy over a lesson's attempts.
// Zero qualifying attempts is defined as 0, not an error.
func LessonMastery(attempts []Attempt, now time.Time) float64 {
	if len(attempts) == 0 {
		return 0
	}
	correct := 0
	mostRecent := attempts[0].At
	for _, a := range attempts {
		if a.Correct {
			correct++
		}
		if a.At.After(mostRecent) {
			mostRecent = a.At
		}
	}
	raw := float64(correct) / float64(len(attempts))
	return math.Min(raw*RecencyWeight(mostRecent, now), 1.0)
}

// Decay shrinks mastery for a concept left unreviewed past its stability
// window. One "overdue stability period" costs one decay-rate factor.
func Decay(cs ConceptState, elapsedDays float64, tn config.Tunables) ConceptState {
	next := cs
	if next.Stability < 1 {
		next.Stability = 1
	}
	overdue := elapsedDays/next.Stability - 1
	if overdue <= 0 {
		return next
	}
	next.MasteryLevel = clamp(cs.MasteryLevel*math.Pow(1-tn.DecayRate, overdue), 0, 1)
	return next
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
