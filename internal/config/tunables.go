package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pathwise/pathwise-backend/internal/logger"
)

// Tunables are the policy constants behind the learner-model update rules.
// The update rules only depend on their shape (monotone, clamped); the exact
// values here are calibration targets and can be overridden from a YAML file.
type Tunables struct {
	// Refinement updater.
	RollingAccuracyAlpha float64 `yaml:"rolling_accuracy_alpha"`
	AbilityGain          float64 `yaml:"ability_gain"`
	LogisticSteepness    float64 `yaml:"logistic_steepness"`
	TargetSuccessRate    float64 `yaml:"target_success_rate"`
	SessionSignalWeight  float64 `yaml:"session_signal_weight"`
	SelfReportWeight     float64 `yaml:"self_report_weight"`
	AbilityFloor         float64 `yaml:"ability_floor"`
	AbilityCeiling       float64 `yaml:"ability_ceiling"`

	// Concept mastery propagation.
	TeachesCoefficient    float64 `yaml:"teaches_coefficient"`
	ReinforcesCoefficient float64 `yaml:"reinforces_coefficient"`
	RequiresBonus         float64 `yaml:"requires_bonus"`
	RequiresAccuracyFloor float64 `yaml:"requires_accuracy_floor"`
	SuccessThreshold      float64 `yaml:"success_threshold"`
	FailureThreshold      float64 `yaml:"failure_threshold"`
	StabilityGrowth       float64 `yaml:"stability_growth"`
	StabilityShrink       float64 `yaml:"stability_shrink"`
	DecayRate             float64 `yaml:"decay_rate"`
}

func DefaultTunables() Tunables {
	return Tunables{
		RollingAccuracyAlpha: 0.15,
		AbilityGain:          0.35,
		LogisticSteepness:    1.7,
		TargetSuccessRate:    0.75,
		SessionSignalWeight:  0.5,
		SelfReportWeight:     0.3,
		AbilityFloor:         -4.0,
		AbilityCeiling:       4.0,

		TeachesCoefficient:    0.30,
		ReinforcesCoefficient: 0.15,
		RequiresBonus:         0.05,
		RequiresAccuracyFloor: 0.7,
		SuccessThreshold:      0.6,
		FailureThreshold:      0.4,
		StabilityGrowth:       1.2,
		StabilityShrink:       0.8,
		DecayRate:             0.02,
	}
}

// LoadTunables reads overrides from ENGINE_TUNABLES_PATH when set. A missing
// or empty file keeps the defaults; a malformed file is an error so a bad
// deploy fails loudly instead of silently mis-calibrating every learner.
func LoadTunables(log *logger.Logger) (Tunables, error) {
	tn := DefaultTunables()
	path := strings.TrimSpace(os.Getenv("ENGINE_TUNABLES_PATH"))
	if path == "" {
		return tn, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if log != nil {
				log.Warn("Tunables file not found, using defaults", "path", path)
			}
			return tn, nil
		}
		return tn, fmt.Errorf("read tunables: %w", err)
	}
	if err := yaml.Unmarshal(data, &tn); err != nil {
		return tn, fmt.Errorf("parse tunables: %w", err)
	}
	if err := tn.Validate(); err != nil {
		return tn, err
	}
	if log != nil {
		log.Info("Engine tunables loaded", "path", path)
	}
	return tn, nil
}

func (t Tunables) Validate() error {
	if t.RollingAccuracyAlpha <= 0 || t.RollingAccuracyAlpha >= 1 {
		return fmt.Errorf("rolling_accuracy_alpha %v out of range (0, 1)", t.RollingAccuracyAlpha)
	}
	if t.AbilityGain <= 0 {
		return fmt.Errorf("ability_gain %v must be positive", t.AbilityGain)
	}
	if t.LogisticSteepness <= 0 {
		return fmt.Errorf("logistic_steepness %v must be positive", t.LogisticSteepness)
	}
	if t.TargetSuccessRate <= 0 || t.TargetSuccessRate >= 1 {
		return fmt.Errorf("target_success_rate %v out of range (0, 1)", t.TargetSuccessRate)
	}
	if t.AbilityFloor >= t.AbilityCeiling {
		return fmt.Errorf("ability_floor %v must be below ability_ceiling %v", t.AbilityFloor, t.AbilityCeiling)
	}
	if t.StabilityGrowth < 1 {
		return fmt.Errorf("stability_growth %v must be >= 1", t.StabilityGrowth)
	}
	if t.StabilityShrink <= 0 || t.StabilityShrink > 1 {
		return fmt.Errorf("stability_shrink %v out of range (0, 1]", t.StabilityShrink)
	}
	if t.FailureThreshold >= t.SuccessThreshold {
		return fmt.Errorf("failure_threshold %v must be below success_threshold %v", t.FailureThreshold, t.SuccessThreshold)
	}
	return nil
}
