package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pathwise/pathwise-backend/internal/apierr"
	redisclient "github.com/pathwise/pathwise-backend/internal/clients/redis"
	"github.com/pathwise/pathwise-backend/internal/config"
	"github.com/pathwise/pathwise-backend/internal/engine/profile"
	"github.com/pathwise/pathwise-backend/internal/engine/refine"
	"github.com/pathwise/pathwise-backend/internal/engine/signal"
	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/repos"
	"github.com/pathwise/pathwise-backend/internal/types"
)

// Settings actions accepted by UpdateSettings.
const (
	ActionLock     = "lock"
	ActionUnlock   = "unlock"
	ActionSync     = "sync"
	ActionRollback = "rollback"
)

type ProcessSignalResult struct {
	UpdatesApplied  []string               `json:"updates_applied"`
	RefinementState *types.RefinementState `json:"refinement_state"`
}

type UpdateSettingsParams struct {
	Attribute  string    `json:"attribute,omitempty"`
	Force      bool      `json:"force,omitempty"`
	SnapshotID uuid.UUID `json:"snapshot_id,omitempty"`
}

type UpdateSettingsResult struct {
	Action            string    `json:"action"`
	Success           bool      `json:"success"`
	LockedAttributes  []string  `json:"locked_attributes,omitempty"`
	AttributesApplied []string  `json:"attributes_applied,omitempty"`
	SnapshotID        uuid.UUID `json:"snapshot_id,omitempty"`
}

type RefinementService interface {
	// ProcessSignal validates a raw signal body and folds it into the user's
	// refinement state.
	ProcessSignal(ctx context.Context, userID uuid.UUID, raw []byte) (*ProcessSignalResult, error)
	// ProcessParsed is ProcessSignal for callers that already hold a typed
	// signal (telemetry ingestion).
	ProcessParsed(ctx context.Context, userID uuid.UUID, sig signal.Signal) (*ProcessSignalResult, error)
	UpdateSettings(ctx context.Context, userID uuid.UUID, action string, params UpdateSettingsParams) (*UpdateSettingsResult, error)
}

type refinementService struct {
	db           *gorm.DB
	log          *logger.Logger
	tn           config.Tunables
	serializer   redisclient.UserSerializer
	stateRepo    repos.RefinementStateRepo
	profileRepo  repos.LearnerProfileRepo
	lockRepo     repos.ProfileAttributeLockRepo
	snapshotRepo repos.ProfileSnapshotRepo
}

func NewRefinementService(
	db *gorm.DB,
	log *logger.Logger,
	tn config.Tunables,
	serializer redisclient.UserSerializer,
	stateRepo repos.RefinementStateRepo,
	profileRepo repos.LearnerProfileRepo,
	lockRepo repos.ProfileAttributeLockRepo,
	snapshotRepo repos.ProfileSnapshotRepo,
) RefinementService {
	return &refinementService{
		db:           db,
		log:          log.With("service", "RefinementService"),
		tn:           tn,
		serializer:   serializer,
		stateRepo:    stateRepo,
		profileRepo:  profileRepo,
		lockRepo:     lockRepo,
		snapshotRepo: snapshotRepo,
	}
}

func (s *refinementService) ProcessSignal(ctx context.Context, userID uuid.UUID, raw []byte) (*ProcessSignalResult, error) {
	sig, err := signal.Parse(raw)
	if err != nil {
		return nil, apierr.InvalidSignal(err)
	}
	return s.ProcessParsed(ctx, userID, sig)
}

func (s *refinementService) ProcessParsed(ctx context.Context, userID uuid.UUID, sig signal.Signal) (*ProcessSignalResult, error) {
	if userID == uuid.Nil {
		return nil, apierr.MissingParameter("user_id")
	}
	var result *ProcessSignalResult
	err := s.serializer.WithUserLock(ctx, userID, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			now := time.Now().UTC()

			if _, ok := sig.(signal.Initialize); ok {
				row := stateRow(userID, refine.NewState(s.tn, now))
				if err := s.stateRepo.EnsureExists(ctx, tx, row); err != nil {
					return s.storage("ensure refinement state", userID, err)
				}
				existing, err := s.stateRepo.GetByUserID(ctx, tx, userID)
				if err != nil {
					return s.storage("load refinement state", userID, err)
				}
				result = &ProcessSignalResult{UpdatesApplied: []string{}, RefinementState: existing}
				return nil
			}

			existing, err := s.stateRepo.GetByUserID(ctx, tx, userID)
			if err != nil {
				return s.storage("load refinement state", userID, err)
			}
			// A missing row is not an error: start from defaults.
			st := refine.NewState(s.tn, now)
			if existing != nil {
				st = toEngineState(existing)
			}

			next, changed, applyErr := refine.Apply(st, sig, s.tn, now)
			if applyErr != nil {
				return apierr.InvalidSignal(applyErr)
			}
			row := stateRow(userID, next)
			if existing != nil {
				row.ID = existing.ID
				row.CreatedAt = existing.CreatedAt
			}
			if len(changed) > 0 || existing == nil {
				if err := s.stateRepo.Upsert(ctx, tx, row); err != nil {
					return s.storage("persist refinement state", userID, err)
				}
			}
			if changed == nil {
				changed = []string{}
			}
			result = &ProcessSignalResult{UpdatesApplied: changed, RefinementState: row}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *refinementService) UpdateSettings(ctx context.Context, userID uuid.UUID, action string, params UpdateSettingsParams) (*UpdateSettingsResult, error) {
	if userID == uuid.Nil {
		return nil, apierr.MissingParameter("user_id")
	}
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionLock:
		return s.setLock(ctx, userID, params.Attribute, true)
	case ActionUnlock:
		return s.setLock(ctx, userID, params.Attribute, false)
	case ActionSync:
		return s.sync(ctx, userID, params.Force)
	case ActionRollback:
		return s.rollback(ctx, userID, params.SnapshotID)
	default:
		return nil, apierr.MissingParameter("action")
	}
}

func (s *refinementService) setLock(ctx context.Context, userID uuid.UUID, attribute string, lock bool) (*UpdateSettingsResult, error) {
	attribute = strings.TrimSpace(attribute)
	if attribute == "" {
		return nil, apierr.MissingParameter("attribute")
	}
	if err := profile.ValidateAttribute(attribute); err != nil {
		return nil, apierr.UnknownAttribute(attribute)
	}
	var err error
	if lock {
		err = s.lockRepo.Lock(ctx, nil, userID, attribute)
	} else {
		err = s.lockRepo.Unlock(ctx, nil, userID, attribute)
	}
	if err != nil {
		return nil, s.storage("update attribute lock", userID, err)
	}
	locked, err := s.lockRepo.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, s.storage("list attribute locks", userID, err)
	}
	action := ActionUnlock
	if lock {
		action = ActionLock
	}
	return &UpdateSettingsResult{Action: action, Success: true, LockedAttributes: locked}, nil
}

// sync merges refinement-derived values into the canonical profile. The
// pre-sync state is always snapshotted first, even when every relevant
// attribute turns out to be locked.
func (s *refinementService) sync(ctx context.Context, userID uuid.UUID, force bool) (*UpdateSettingsResult, error) {
	var result *UpdateSettingsResult
	err := s.serializer.WithUserLock(ctx, userID, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			prof, err := s.profileRepo.GetByUserID(ctx, tx, userID)
			if err != nil {
				return s.storage("load learner profile", userID, err)
			}
			if prof == nil {
				return apierr.ProfileNotFound(fmt.Errorf("no learner profile for user"))
			}
			state, err := s.stateRepo.GetByUserID(ctx, tx, userID)
			if err != nil {
				return s.storage("load refinement state", userID, err)
			}
			if state == nil {
				return apierr.NoRefinementState(fmt.Errorf("nothing to sync"))
			}
			locked, err := s.lockRepo.ListByUser(ctx, tx, userID)
			if err != nil {
				return s.storage("list attribute locks", userID, err)
			}

			snap, err := s.takeSnapshot(ctx, tx, userID, types.SnapshotReasonPreSync, prof, state, locked)
			if err != nil {
				return s.storage("snapshot pre-sync state", userID, err)
			}

			applied := profile.ApplyDerived(prof, state, lockedSet(locked), force, s.tn)
			if len(applied) > 0 {
				if err := s.profileRepo.Save(ctx, tx, prof); err != nil {
					return s.storage("persist synced profile", userID, err)
				}
			}
			result = &UpdateSettingsResult{
				Action:            ActionSync,
				Success:           true,
				AttributesApplied: applied,
				SnapshotID:        snap.ID,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// rollback restores profile, refinement state, and locks from a snapshot,
// atomically, and snapshots the pre-rollback state first so a rollback can
// itself be rolled back.
func (s *refinementService) rollback(ctx context.Context, userID, snapshotID uuid.UUID) (*UpdateSettingsResult, error) {
	if snapshotID == uuid.Nil {
		return nil, apierr.MissingParameter("snapshot_id")
	}
	var result *UpdateSettingsResult
	err := s.serializer.WithUserLock(ctx, userID, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			snap, err := s.snapshotRepo.GetForUser(ctx, tx, userID, snapshotID)
			if err != nil {
				return s.storage("load snapshot", userID, err)
			}
			if snap == nil {
				return apierr.SnapshotNotFound(fmt.Errorf("snapshot %s not found for user", snapshotID))
			}

			prof, err := s.profileRepo.GetByUserID(ctx, tx, userID)
			if err != nil {
				return s.storage("load learner profile", userID, err)
			}
			state, err := s.stateRepo.GetByUserID(ctx, tx, userID)
			if err != nil {
				return s.storage("load refinement state", userID, err)
			}
			locked, err := s.lockRepo.ListByUser(ctx, tx, userID)
			if err != nil {
				return s.storage("list attribute locks", userID, err)
			}
			preSnap, err := s.takeSnapshot(ctx, tx, userID, types.SnapshotReasonPreRollback, prof, state, locked)
			if err != nil {
				return s.storage("snapshot pre-rollback state", userID, err)
			}

			var restoredProfile types.LearnerProfile
			if err := json.Unmarshal(snap.Profile, &restoredProfile); err != nil {
				return s.storage("decode snapshot profile", userID, err)
			}
			if err := s.profileRepo.Upsert(ctx, tx, &restoredProfile); err != nil {
				return s.storage("restore learner profile", userID, err)
			}

			if len(snap.Refinement) > 0 && string(snap.Refinement) != "null" {
				var restoredState types.RefinementState
				if err := json.Unmarshal(snap.Refinement, &restoredState); err != nil {
					return s.storage("decode snapshot refinement", userID, err)
				}
				if err := s.stateRepo.Upsert(ctx, tx, &restoredState); err != nil {
					return s.storage("restore refinement state", userID, err)
				}
			}

			var restoredLocks []string
			if len(snap.LockedAttributes) > 0 {
				if err := json.Unmarshal(snap.LockedAttributes, &restoredLocks); err != nil {
					return s.storage("decode snapshot locks", userID, err)
				}
			}
			if err := s.lockRepo.ReplaceAll(ctx, tx, userID, restoredLocks); err != nil {
				return s.storage("restore attribute locks", userID, err)
			}

			result = &UpdateSettingsResult{
				Action:     ActionRollback,
				Success:    true,
				SnapshotID: preSnap.ID,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *refinementService) takeSnapshot(ctx context.Context, tx *gorm.DB, userID uuid.UUID, reason string, prof *types.LearnerProfile, state *types.RefinementState, locked []string) (*types.ProfileSnapshot, error) {
	profJSON, err := json.Marshal(prof)
	if err != nil {
		return nil, err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	if locked == nil {
		locked = []string{}
	}
	lockedJSON, err := json.Marshal(locked)
	if err != nil {
		return nil, err
	}
	snap := &types.ProfileSnapshot{
		ID:               uuid.New(),
		UserID:           userID,
		Reason:           reason,
		Profile:          datatypes.JSON(profJSON),
		Refinement:       datatypes.JSON(stateJSON),
		LockedAttributes: datatypes.JSON(lockedJSON),
	}
	if err := s.snapshotRepo.Create(ctx, tx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *refinementService) storage(op string, userID uuid.UUID, err error) error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	s.log.Error("Storage failure", "op", op, "user_id", userID, "error", err)
	return apierr.Storage(fmt.Errorf("%s: %w", op, err))
}

func toEngineState(row *types.RefinementState) refine.State {
	return refine.State{
		RollingAccuracy:         row.RollingAccuracy,
		EstimatedAbility:        row.EstimatedAbility,
		CurrentDifficultyTarget: row.CurrentDifficultyTarget,
		TotalQuestionsAnalyzed:  row.TotalQuestionsAnalyzed,
		LastUpdated:             row.LastUpdated,
	}
}

func stateRow(userID uuid.UUID, st refine.State) *types.RefinementState {
	return &types.RefinementState{
		UserID:                  userID,
		RollingAccuracy:         st.RollingAccuracy,
		EstimatedAbility:        st.EstimatedAbility,
		CurrentDifficultyTarget: st.CurrentDifficultyTarget,
		TotalQuestionsAnalyzed:  st.TotalQuestionsAnalyzed,
		LastUpdated:             st.LastUpdated,
	}
}

func lockedSet(locked []string) map[string]struct{} {
	set := make(map[string]struct{}, len(locked))
	for _, attr := range locked {
		set[attr] = struct{}{}
	}
	return set
}
