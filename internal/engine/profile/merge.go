package profile

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/pathwise/pathwise-backend/internal/config"
	"github.com/pathwise/pathwise-backend/internal/types"
)

// ErrUnknownAttribute marks a lock request against an attribute that does not
// exist on the learner profile.
var ErrUnknownAttribute = errors.New("unknown attribute")

// Attribute names callers may lock against automatic overwrite.
const (
	AttrEducationLevel       = "education_level"
	AttrStudyGoal            = "study_goal"
	AttrPreferredStudyTime   = "preferred_study_time"
	AttrLearningStyles       = "learning_styles"
	AttrSessionLengthMinutes = "session_length_minutes"
	AttrDailyGoalMinutes     = "daily_goal_minutes"
	AttrPreferredDifficulty  = "preferred_difficulty"
	AttrStrongSubjects       = "strong_subjects"
	AttrWeakSubjects         = "weak_subjects"
)

var lockable = map[string]struct{}{
	AttrEducationLevel:       {},
	AttrStudyGoal:            {},
	AttrPreferredStudyTime:   {},
	AttrLearningStyles:       {},
	AttrSessionLengthMinutes: {},
	AttrDailyGoalMinutes:     {},
	AttrPreferredDifficulty:  {},
	AttrStrongSubjects:       {},
	AttrWeakSubjects:         {},
}

func ValidateAttribute(name string) error {
	if _, ok := lockable[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	return nil
}

func LockableAttributes() []string {
	out := make([]string, 0, len(lockable))
	for name := range lockable {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DerivedValues maps refinement-backed profile attributes to the values the
// current refinement state implies. Session pacing shortens for struggling
// learners and stretches for strong ones.
func DerivedValues(st *types.RefinementState, tn config.Tunables) map[string]any {
	if st == nil {
		return nil
	}
	minutes := 25 + int(math.Round(5*st.EstimatedAbility))
	if minutes < 10 {
		minutes = 10
	}
	if minutes > 50 {
		minutes = 50
	}
	return map[string]any{
		AttrPreferredDifficulty:  st.CurrentDifficultyTarget,
		AttrSessionLengthMinutes: minutes,
	}
}

// Effective returns the canonical profile with refinement-derived overrides
// applied, skipping locked attributes. Pure: the input profile is copied, a
// nil refinement state passes the canonical values through untouched.
func Effective(p types.LearnerProfile, st *types.RefinementState, locked map[string]struct{}, tn config.Tunables) types.LearnerProfile {
	out := p
	for attr, val := range DerivedValues(st, tn) {
		if _, isLocked := locked[attr]; isLocked {
			continue
		}
		setAttr(&out, attr, val)
	}
	return out
}

// ApplyDerived writes the refinement-derived values onto the profile,
// honoring locks unless force is set, and reports which attributes changed.
// Used by sync; Effective is the read-path twin.
func ApplyDerived(p *types.LearnerProfile, st *types.RefinementState, locked map[string]struct{}, force bool, tn config.Tunables) []string {
	if p == nil || st == nil {
		return nil
	}
	var applied []string
	derived := DerivedValues(st, tn)
	for _, attr := range []string{AttrPreferredDifficulty, AttrSessionLengthMinutes} {
		val, ok := derived[attr]
		if !ok {
			continue
		}
		if _, isLocked := locked[attr]; isLocked && !force {
			continue
		}
		if setAttr(p, attr, val) {
			applied = append(applied, attr)
		}
	}
	return applied
}

func setAttr(p *types.LearnerProfile, attr string, val any) bool {
	switch attr {
	case AttrPreferredDifficulty:
		v, ok := val.(float64)
		if !ok || math.Abs(p.PreferredDifficulty-v) < 1e-9 {
			return false
		}
		p.PreferredDifficulty = v
		return true
	case AttrSessionLengthMinutes:
		v, ok := val.(int)
		if !ok || p.SessionLengthMinutes == v {
			return false
		}
		p.SessionLengthMinutes = v
		return true
	default:
		return false
	}
}
