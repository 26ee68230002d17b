package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/pathwise/pathwise-backend/internal/apierr"
	redisclient "github.com/pathwise/pathwise-backend/internal/clients/redis"
	"github.com/pathwise/pathwise-backend/internal/config"
	"github.com/pathwise/pathwise-backend/internal/engine/profile"
	"github.com/pathwise/pathwise-backend/internal/engine/refine"
	"github.com/pathwise/pathwise-backend/internal/types"
)

type refinementFixture struct {
	svc      RefinementService
	profiles *fakeProfileRepo
	states   *fakeStateRepo
	locks    *fakeLockRepo
	snaps    *fakeSnapshotRepo
}

func newRefinementFixture(t *testing.T) *refinementFixture {
	t.Helper()
	f := &refinementFixture{
		profiles: newFakeProfileRepo(),
		states:   newFakeStateRepo(),
		locks:    newFakeLockRepo(),
		snaps:    newFakeSnapshotRepo(),
	}
	f.svc = NewRefinementService(
		newTestDB(t),
		newTestLogger(),
		config.DefaultTunables(),
		redisclient.NewLocalSerializer(),
		f.states,
		f.profiles,
		f.locks,
		f.snaps,
	)
	return f
}

func (f *refinementFixture) seedProfile(userID uuid.UUID) {
	f.profiles.rows[userID] = types.LearnerProfile{
		ID:                   uuid.New(),
		UserID:               userID,
		EducationLevel:       "undergraduate",
		SessionLengthMinutes: 25,
		DailyGoalMinutes:     30,
	}
}

func TestProcessSignalInitializeIsIdempotent(t *testing.T) {
	f := newRefinementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := f.svc.ProcessSignal(ctx, userID, []byte(`{"type":"initialize"}`))
	if err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	if len(first.UpdatesApplied) != 0 {
		t.Fatalf("initialize must report no updates, got %v", first.UpdatesApplied)
	}
	if first.RefinementState == nil || first.RefinementState.TotalQuestionsAnalyzed != 0 {
		t.Fatalf("initialize must create default state")
	}

	// Move the state, then initialize again: nothing may reset.
	if _, err := f.svc.ProcessSignal(ctx, userID, []byte(`{"type":"question_answered","data":{"correct":true,"difficulty":0}}`)); err != nil {
		t.Fatalf("question signal: %v", err)
	}
	moved := f.states.rows[userID]

	second, err := f.svc.ProcessSignal(ctx, userID, []byte(`{"type":"initialize"}`))
	if err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if len(second.UpdatesApplied) != 0 {
		t.Fatalf("re-initialize must be a no-op, got %v", second.UpdatesApplied)
	}
	if second.RefinementState.ID != moved.ID {
		t.Fatalf("re-initialize replaced the state row")
	}
	if second.RefinementState.TotalQuestionsAnalyzed != moved.TotalQuestionsAnalyzed ||
		second.RefinementState.EstimatedAbility != moved.EstimatedAbility {
		t.Fatalf("re-initialize reset state: %+v vs %+v", second.RefinementState, moved)
	}
}

func TestProcessSignalCreatesStateLazily(t *testing.T) {
	f := newRefinementFixture(t)
	userID := uuid.New()

	res, err := f.svc.ProcessSignal(context.Background(), userID,
		[]byte(`{"type":"question_answered","data":{"correct":true,"difficulty":0.5}}`))
	if err != nil {
		t.Fatalf("ProcessSignal: %v", err)
	}
	if res.RefinementState.TotalQuestionsAnalyzed != 1 {
		t.Fatalf("expected one analyzed question, got %d", res.RefinementState.TotalQuestionsAnalyzed)
	}
	counted := false
	for _, field := range res.UpdatesApplied {
		if field == refine.FieldTotalQuestionsAnalyzed {
			counted = true
		}
	}
	if !counted {
		t.Fatalf("updates_applied missing question counter: %v", res.UpdatesApplied)
	}
	if _, ok := f.states.rows[userID]; !ok {
		t.Fatalf("state row was not persisted")
	}
}

func TestProcessSignalRejectsMalformedBody(t *testing.T) {
	f := newRefinementFixture(t)
	userID := uuid.New()

	cases := [][]byte{
		[]byte(`{`),
		[]byte(`{"type":"mind_reading","data":{}}`),
		[]byte(`{"type":"question_answered","data":{"difficulty":0.5}}`),
	}
	for _, raw := range cases {
		_, err := f.svc.ProcessSignal(context.Background(), userID, raw)
		if !apierr.Is(err, apierr.CodeInvalidSignal) {
			t.Fatalf("body %s: want INVALID_SIGNAL, got %v", raw, err)
		}
	}
	if len(f.states.rows) != 0 {
		t.Fatalf("rejected signals must not touch state")
	}
}

func TestUpdateSettingsLock(t *testing.T) {
	f := newRefinementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.UpdateSettings(ctx, userID, ActionLock, UpdateSettingsParams{Attribute: "favorite_color"}); !apierr.Is(err, apierr.CodeUnknownAttribute) {
		t.Fatalf("want UNKNOWN_ATTRIBUTE, got %v", err)
	}

	// Locking twice is idempotent.
	for i := 0; i < 2; i++ {
		res, err := f.svc.UpdateSettings(ctx, userID, ActionLock, UpdateSettingsParams{Attribute: profile.AttrPreferredDifficulty})
		if err != nil {
			t.Fatalf("lock attempt %d: %v", i+1, err)
		}
		if len(res.LockedAttributes) != 1 || res.LockedAttributes[0] != profile.AttrPreferredDifficulty {
			t.Fatalf("locked attributes after attempt %d: %v", i+1, res.LockedAttributes)
		}
	}

	res, err := f.svc.UpdateSettings(ctx, userID, ActionUnlock, UpdateSettingsParams{Attribute: profile.AttrPreferredDifficulty})
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if len(res.LockedAttributes) != 0 {
		t.Fatalf("unlock left locks behind: %v", res.LockedAttributes)
	}
}

func TestSyncRequiresProfileAndState(t *testing.T) {
	f := newRefinementFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	if _, err := f.svc.UpdateSettings(ctx, userID, ActionSync, UpdateSettingsParams{}); !apierr.Is(err, apierr.CodeProfileNotFound) {
		t.Fatalf("want PROFILE_NOT_FOUND, got %v", err)
	}

	f.seedProfile(userID)
	if _, err := f.svc.UpdateSettings(ctx, userID, ActionSync, UpdateSettingsParams{}); !apierr.Is(err, apierr.CodeNoRefinementState) {
		t.Fatalf("want NO_REFINEMENT_STATE, got %v", err)
	}
}

func TestSyncHonorsLocksUnlessForced(t *testing.T) {
	f := newRefinementFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	f.seedProfile(userID)
	f.states.rows[userID] = types.RefinementState{
		ID:                      uuid.New(),
		UserID:                  userID,
		EstimatedAbility:        2.0,
		CurrentDifficultyTarget: 1.5,
	}
	if _, err := f.svc.UpdateSettings(ctx, userID, ActionLock, UpdateSettingsParams{Attribute: profile.AttrPreferredDifficulty}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	res, err := f.svc.UpdateSettings(ctx, userID, ActionSync, UpdateSettingsParams{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	prof := f.profiles.rows[userID]
	if prof.PreferredDifficulty != 0 {
		t.Fatalf("locked attribute overwritten by sync")
	}
	if prof.SessionLengthMinutes != 35 {
		t.Fatalf("unlocked attribute not synced: %d", prof.SessionLengthMinutes)
	}
	for _, attr := range res.AttributesApplied {
		if attr == profile.AttrPreferredDifficulty {
			t.Fatalf("locked attribute reported as applied")
		}
	}
	if len(f.snaps.byReason(types.SnapshotReasonPreSync)) != 1 {
		t.Fatalf("sync must snapshot the pre-sync state exactly once")
	}

	forced, err := f.svc.UpdateSettings(ctx, userID, ActionSync, UpdateSettingsParams{Force: true})
	if err != nil {
		t.Fatalf("forced sync: %v", err)
	}
	if f.profiles.rows[userID].PreferredDifficulty != 1.5 {
		t.Fatalf("force sync must overwrite the locked attribute")
	}
	found := false
	for _, attr := range forced.AttributesApplied {
		if attr == profile.AttrPreferredDifficulty {
			found = true
		}
	}
	if !found {
		t.Fatalf("force sync did not report the locked attribute: %v", forced.AttributesApplied)
	}
}

func TestSyncSnapshotsEvenWhenNothingApplies(t *testing.T) {
	f := newRefinementFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	f.seedProfile(userID)
	f.states.rows[userID] = types.RefinementState{ID: uuid.New(), UserID: userID}
	for _, attr := range []string{profile.AttrPreferredDifficulty, profile.AttrSessionLengthMinutes} {
		if _, err := f.svc.UpdateSettings(ctx, userID, ActionLock, UpdateSettingsParams{Attribute: attr}); err != nil {
			t.Fatalf("lock %s: %v", attr, err)
		}
	}

	res, err := f.svc.UpdateSettings(ctx, userID, ActionSync, UpdateSettingsParams{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(res.AttributesApplied) != 0 {
		t.Fatalf("fully locked profile must apply nothing, got %v", res.AttributesApplied)
	}
	if res.SnapshotID == uuid.Nil || len(f.snaps.byReason(types.SnapshotReasonPreSync)) != 1 {
		t.Fatalf("snapshot must be taken even for an empty sync")
	}
}

func TestRollbackRestoresSnapshot(t *testing.T) {
	f := newRefinementFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	f.seedProfile(userID)
	f.states.rows[userID] = types.RefinementState{
		ID:                      uuid.New(),
		UserID:                  userID,
		RollingAccuracy:         0.8,
		EstimatedAbility:        1.0,
		CurrentDifficultyTarget: 0.35,
		TotalQuestionsAnalyzed:  12,
	}
	if _, err := f.svc.UpdateSettings(ctx, userID, ActionLock, UpdateSettingsParams{Attribute: profile.AttrDailyGoalMinutes}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Sync snapshots the current state, then mutate everything.
	synced, err := f.svc.UpdateSettings(ctx, userID, ActionSync, UpdateSettingsParams{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	wantProfile := mustDecodeProfile(t, f.snaps.rows[0].Profile)
	if _, err := f.svc.ProcessSignal(ctx, userID, []byte(`{"type":"question_answered","data":{"correct":false,"difficulty":2}}`)); err != nil {
		t.Fatalf("mutating signal: %v", err)
	}
	if _, err := f.svc.UpdateSettings(ctx, userID, ActionUnlock, UpdateSettingsParams{Attribute: profile.AttrDailyGoalMinutes}); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	res, err := f.svc.UpdateSettings(ctx, userID, ActionRollback, UpdateSettingsParams{SnapshotID: synced.SnapshotID})
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}

	restored := f.states.rows[userID]
	if restored.TotalQuestionsAnalyzed != 12 || restored.EstimatedAbility != 1.0 {
		t.Fatalf("refinement state not restored: %+v", restored)
	}
	gotProfile := f.profiles.rows[userID]
	if gotProfile.SessionLengthMinutes != wantProfile.SessionLengthMinutes ||
		gotProfile.PreferredDifficulty != wantProfile.PreferredDifficulty {
		t.Fatalf("profile not restored: got %+v want %+v", gotProfile, wantProfile)
	}
	locks, _ := f.locks.ListByUser(ctx, nil, userID)
	if len(locks) != 1 || locks[0] != profile.AttrDailyGoalMinutes {
		t.Fatalf("locks not restored: %v", locks)
	}

	// The rollback itself must be undoable via its own snapshot.
	pre := f.snaps.byReason(types.SnapshotReasonPreRollback)
	if len(pre) != 1 || res.SnapshotID != pre[0].ID {
		t.Fatalf("rollback must return its pre-rollback snapshot id")
	}
}

func TestRollbackUnknownSnapshot(t *testing.T) {
	f := newRefinementFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	f.seedProfile(userID)

	if _, err := f.svc.UpdateSettings(ctx, userID, ActionRollback, UpdateSettingsParams{SnapshotID: uuid.New()}); !apierr.Is(err, apierr.CodeSnapshotNotFound) {
		t.Fatalf("want SNAPSHOT_NOT_FOUND, got %v", err)
	}
	if _, err := f.svc.UpdateSettings(ctx, userID, ActionRollback, UpdateSettingsParams{}); !apierr.Is(err, apierr.CodeMissingParameter) {
		t.Fatalf("want MISSING_PARAMETER for nil snapshot id, got %v", err)
	}
}

func TestRollbackCannotCrossUsers(t *testing.T) {
	f := newRefinementFixture(t)
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()
	f.seedProfile(owner)
	f.seedProfile(other)
	f.states.rows[owner] = types.RefinementState{ID: uuid.New(), UserID: owner}

	synced, err := f.svc.UpdateSettings(ctx, owner, ActionSync, UpdateSettingsParams{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, err := f.svc.UpdateSettings(ctx, other, ActionRollback, UpdateSettingsParams{SnapshotID: synced.SnapshotID}); !apierr.Is(err, apierr.CodeSnapshotNotFound) {
		t.Fatalf("another user's snapshot must be invisible, got %v", err)
	}
}

func TestStorageFailureIsOpaque(t *testing.T) {
	f := newRefinementFixture(t)
	f.states.err = errDBDown

	_, err := f.svc.ProcessSignal(context.Background(), uuid.New(),
		[]byte(`{"type":"question_answered","data":{"correct":true,"difficulty":0}}`))
	if !apierr.Is(err, apierr.CodeStorageError) {
		t.Fatalf("want STORAGE_ERROR, got %v", err)
	}
}

func mustDecodeProfile(t *testing.T, raw []byte) types.LearnerProfile {
	t.Helper()
	var p types.LearnerProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("decode snapshot profile: %v", err)
	}
	return p
}
