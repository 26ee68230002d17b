package refine

import (
	"fmt"
	"math"
	"time"

	"github.com/pathwise/pathwise-backend/internal/config"
	"github.com/pathwise/pathwise-backend/internal/engine/signal"
)

// Field names reported back to callers in updatesApplied.
const (
	FieldRollingAccuracy         = "rollingAccuracy"
	FieldEstimatedAbility        = "estimatedAbility"
	FieldCurrentDifficultyTarget = "currentDifficultyTarget"
	FieldTotalQuestionsAnalyzed  = "totalQuestionsAnalyzed"
)

// Numeric changes below this tolerance are treated as no change at all, so a
// self-assessment that matches the current estimate yields an empty update
// list rather than churning the row.
const changeEpsilon = 1e-9

// State is the per-user refinement estimate. Update rules are value-in,
// value-out; persistence belongs to the caller.
type State struct {
	RollingAccuracy         float64
	EstimatedAbility        float64
	CurrentDifficultyTarget float64
	TotalQuestionsAnalyzed  int
	LastUpdated             time.Time
}

// NewState returns the defaults a user starts from before any signals.
func NewState(tn config.Tunables, now time.Time) State {
	return State{
		RollingAccuracy:         0,
		EstimatedAbility:        0,
		CurrentDifficultyTarget: TargetDifficulty(0, tn),
		TotalQuestionsAnalyzed:  0,
		LastUpdated:             now,
	}
}

// ExpectedCorrectness is the probability a learner at the given ability
// answers an item of the given difficulty correctly. Monotone increasing in
// (ability - difficulty), symmetric around 0.5 at ability == difficulty,
// with asymptotes at 0 and 1.
func ExpectedCorrectness(ability, difficulty float64, tn config.Tunables) float64 {
	return 1.0 / (1.0 + math.Exp(-tn.LogisticSteepness*(ability-difficulty)))
}

// TargetDifficulty places the difficulty target where the expected success
// rate equals the tunable target band (default 75%).
func TargetDifficulty(ability float64, tn config.Tunables) float64 {
	p := tn.TargetSuccessRate
	offset := math.Log(p/(1.0-p)) / tn.LogisticSteepness
	return clamp(ability-offset, tn.AbilityFloor, tn.AbilityCeiling)
}

// Apply folds one normalized signal into the state. It is pure and total:
// out-of-range inputs are clamped, never rejected. The returned field list
// names what actually changed; empty is a valid outcome.
func Apply(st State, sig signal.Signal, tn config.Tunables, now time.Time) (State, []string, error) {
	next := st
	switch s := sig.(type) {
	case signal.QuestionAnswered:
		observed := 0.0
		if s.Correct {
			observed = 1.0
		}
		next.RollingAccuracy = ema(st.RollingAccuracy, observed, tn.RollingAccuracyAlpha)
		expected := ExpectedCorrectness(st.EstimatedAbility, s.Difficulty, tn)
		next.EstimatedAbility = clamp(
			st.EstimatedAbility+tn.AbilityGain*(observed-expected),
			tn.AbilityFloor, tn.AbilityCeiling,
		)
		next.CurrentDifficultyTarget = TargetDifficulty(next.EstimatedAbility, tn)
		next.TotalQuestionsAnalyzed = st.TotalQuestionsAnalyzed + 1
	case signal.SessionEnded:
		if s.CardsReviewed <= 0 {
			return st, nil, nil
		}
		acc := clamp(float64(s.CorrectCount)/float64(s.CardsReviewed), 0, 1)
		w := tn.SessionSignalWeight
		next.RollingAccuracy = ema(st.RollingAccuracy, acc, tn.RollingAccuracyAlpha*w)
		expected := ExpectedCorrectness(st.EstimatedAbility, st.CurrentDifficultyTarget, tn)
		next.EstimatedAbility = clamp(
			st.EstimatedAbility+tn.AbilityGain*w*(acc-expected),
			tn.AbilityFloor, tn.AbilityCeiling,
		)
		next.CurrentDifficultyTarget = TargetDifficulty(next.EstimatedAbility, tn)
	case signal.SelfAssessment:
		// A claimed mastery maps onto the same logit scale the ability
		// estimate lives on, then pulls the estimate toward it.
		claimed := clamp(s.ClaimedMastery, 0.01, 0.99)
		claimedAbility := clamp(
			math.Log(claimed/(1.0-claimed))/tn.LogisticSteepness,
			tn.AbilityFloor, tn.AbilityCeiling,
		)
		next.EstimatedAbility = clamp(
			st.EstimatedAbility+tn.SelfReportWeight*(claimedAbility-st.EstimatedAbility),
			tn.AbilityFloor, tn.AbilityCeiling,
		)
		next.CurrentDifficultyTarget = TargetDifficulty(next.EstimatedAbility, tn)
	case signal.Initialize:
		// Handled upstream; nothing to fold in.
		return st, nil, nil
	default:
		return st, nil, fmt.Errorf("%w: unsupported signal kind %q", signal.ErrInvalidSignal, sig.Kind())
	}

	changed := diffFields(st, next)
	if len(changed) > 0 {
		next.LastUpdated = now
		return next, changed, nil
	}
	return st, nil, nil
}

func diffFields(before, after State) []string {
	var changed []string
	if math.Abs(after.RollingAccuracy-before.RollingAccuracy) > changeEpsilon {
		changed = append(changed, FieldRollingAccuracy)
	}
	if math.Abs(after.EstimatedAbility-before.EstimatedAbility) > changeEpsilon {
		changed = append(changed, FieldEstimatedAbility)
	}
	if math.Abs(after.CurrentDifficultyTarget-before.CurrentDifficultyTarget) > changeEpsilon {
		changed = append(changed, FieldCurrentDifficultyTarget)
	}
	if after.TotalQuestionsAnalyzed != before.TotalQuestionsAnalyzed {
		changed = append(changed, FieldTotalQuestionsAnalyzed)
	}
	return changed
}

func ema(current, observed, alpha float64) float64 {
	return clamp((1.0-alpha)*current+alpha*observed, 0, 1)
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
