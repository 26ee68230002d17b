package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pathwise/pathwise-backend/internal/apierr"
	"github.com/pathwise/pathwise-backend/internal/config"
	"github.com/pathwise/pathwise-backend/internal/engine/profile"
	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/repos"
	"github.com/pathwise/pathwise-backend/internal/types"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

type EffectiveProfileOptions struct {
	IncludeHistory bool
	HistoryLimit   int
}

type EffectiveProfileResult struct {
	EffectiveProfile *types.LearnerProfile    `json:"effective_profile"`
	RefinementState  *types.RefinementState   `json:"refinement_state,omitempty"`
	LockedAttributes []string                 `json:"locked_attributes"`
	History          []*types.ProfileSnapshot `json:"history,omitempty"`
}

type ProfileService interface {
	// GetEffectiveProfile returns the canonical profile with refinement
	// overrides applied. No refinement state yet is fine; no canonical
	// profile is ProfileNotFound.
	GetEffectiveProfile(ctx context.Context, userID uuid.UUID, opts EffectiveProfileOptions) (*EffectiveProfileResult, error)
	UpsertProfile(ctx context.Context, userID uuid.UUID, row *types.LearnerProfile) (*types.LearnerProfile, error)
}

type profileService struct {
	db          *gorm.DB
	log         *logger.Logger
	tn          config.Tunables
	profileRepo repos.LearnerProfileRepo
	stateRepo   repos.RefinementStateRepo
	lockRepo    repos.ProfileAttributeLockRepo
	snapRepo    repos.ProfileSnapshotRepo
}

func NewProfileService(
	db *gorm.DB,
	log *logger.Logger,
	tn config.Tunables,
	profileRepo repos.LearnerProfileRepo,
	stateRepo repos.RefinementStateRepo,
	lockRepo repos.ProfileAttributeLockRepo,
	snapRepo repos.ProfileSnapshotRepo,
) ProfileService {
	return &profileService{
		db:          db,
		log:         log.With("service", "ProfileService"),
		tn:          tn,
		profileRepo: profileRepo,
		stateRepo:   stateRepo,
		lockRepo:    lockRepo,
		snapRepo:    snapRepo,
	}
}

func (s *profileService) GetEffectiveProfile(ctx context.Context, userID uuid.UUID, opts EffectiveProfileOptions) (*EffectiveProfileResult, error) {
	if userID == uuid.Nil {
		return nil, apierr.MissingParameter("user_id")
	}
	prof, err := s.profileRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, s.storage("load learner profile", userID, err)
	}
	if prof == nil {
		return nil, apierr.ProfileNotFound(fmt.Errorf("no learner profile for user"))
	}
	state, err := s.stateRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, s.storage("load refinement state", userID, err)
	}
	locked, err := s.lockRepo.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, s.storage("list attribute locks", userID, err)
	}
	if locked == nil {
		locked = []string{}
	}

	effective := profile.Effective(*prof, state, lockedSet(locked), s.tn)
	result := &EffectiveProfileResult{
		EffectiveProfile: &effective,
		RefinementState:  state,
		LockedAttributes: locked,
	}

	if opts.IncludeHistory {
		limit := opts.HistoryLimit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
		history, err := s.snapRepo.ListByUser(ctx, nil, userID, limit, 0)
		if err != nil {
			return nil, s.storage("list snapshots", userID, err)
		}
		result.History = history
	}
	return result, nil
}

func (s *profileService) UpsertProfile(ctx context.Context, userID uuid.UUID, row *types.LearnerProfile) (*types.LearnerProfile, error) {
	if userID == uuid.Nil {
		return nil, apierr.MissingParameter("user_id")
	}
	if row == nil {
		return nil, apierr.MissingParameter("profile")
	}
	row.UserID = userID
	if existing, err := s.profileRepo.GetByUserID(ctx, nil, userID); err != nil {
		return nil, s.storage("load learner profile", userID, err)
	} else if existing != nil {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	}
	if err := s.profileRepo.Upsert(ctx, nil, row); err != nil {
		return nil, s.storage("persist learner profile", userID, err)
	}
	return row, nil
}

func (s *profileService) storage(op string, userID uuid.UUID, err error) error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return err
	}
	s.log.Error("Storage failure", "op", op, "user_id", userID, "error", err)
	return apierr.Storage(fmt.Errorf("%s: %w", op, err))
}
