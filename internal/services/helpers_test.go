package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pathwise/pathwise-backend/internal/logger"
	"github.com/pathwise/pathwise-backend/internal/types"
)

var errDBDown = errors.New("connection refused")

// The services only need the DB handle for transaction scoping; all row
// access in these tests goes through the in-memory fakes below.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func newTestLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

type fakeProfileRepo struct {
	rows map[uuid.UUID]types.LearnerProfile
	err  error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{rows: make(map[uuid.UUID]types.LearnerProfile)}
}

func (r *fakeProfileRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.LearnerProfile, error) {
	if r.err != nil {
		return nil, r.err
	}
	row, ok := r.rows[userID]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (r *fakeProfileRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.LearnerProfile) error {
	if r.err != nil {
		return r.err
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	r.rows[row.UserID] = *row
	return nil
}

func (r *fakeProfileRepo) Save(ctx context.Context, tx *gorm.DB, row *types.LearnerProfile) error {
	return r.Upsert(ctx, tx, row)
}

type fakeStateRepo struct {
	rows map[uuid.UUID]types.RefinementState
	err  error
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{rows: make(map[uuid.UUID]types.RefinementState)}
}

func (r *fakeStateRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.RefinementState, error) {
	if r.err != nil {
		return nil, r.err
	}
	row, ok := r.rows[userID]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (r *fakeStateRepo) EnsureExists(ctx context.Context, tx *gorm.DB, row *types.RefinementState) error {
	if r.err != nil {
		return r.err
	}
	if _, ok := r.rows[row.UserID]; ok {
		return nil
	}
	stored := *row
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	r.rows[row.UserID] = stored
	return nil
}

func (r *fakeStateRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.RefinementState) error {
	if r.err != nil {
		return r.err
	}
	if existing, ok := r.rows[row.UserID]; ok && row.ID == uuid.Nil {
		row.ID = existing.ID
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	r.rows[row.UserID] = *row
	return nil
}

type fakeLockRepo struct {
	rows map[uuid.UUID]map[string]struct{}
	err  error
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{rows: make(map[uuid.UUID]map[string]struct{})}
}

func (r *fakeLockRepo) Lock(ctx context.Context, tx *gorm.DB, userID uuid.UUID, attribute string) error {
	if r.err != nil {
		return r.err
	}
	if r.rows[userID] == nil {
		r.rows[userID] = make(map[string]struct{})
	}
	r.rows[userID][attribute] = struct{}{}
	return nil
}

func (r *fakeLockRepo) Unlock(ctx context.Context, tx *gorm.DB, userID uuid.UUID, attribute string) error {
	if r.err != nil {
		return r.err
	}
	delete(r.rows[userID], attribute)
	return nil
}

func (r *fakeLockRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]string, 0, len(r.rows[userID]))
	for attr := range r.rows[userID] {
		out = append(out, attr)
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeLockRepo) ReplaceAll(ctx context.Context, tx *gorm.DB, userID uuid.UUID, attributes []string) error {
	if r.err != nil {
		return r.err
	}
	next := make(map[string]struct{}, len(attributes))
	for _, attr := range attributes {
		next[attr] = struct{}{}
	}
	r.rows[userID] = next
	return nil
}

type fakeSnapshotRepo struct {
	rows []types.ProfileSnapshot
	err  error
}

func newFakeSnapshotRepo() *fakeSnapshotRepo { return &fakeSnapshotRepo{} }

func (r *fakeSnapshotRepo) Create(ctx context.Context, tx *gorm.DB, row *types.ProfileSnapshot) error {
	if r.err != nil {
		return r.err
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	r.rows = append(r.rows, *row)
	return nil
}

func (r *fakeSnapshotRepo) GetForUser(ctx context.Context, tx *gorm.DB, userID, snapshotID uuid.UUID) (*types.ProfileSnapshot, error) {
	if r.err != nil {
		return nil, r.err
	}
	for _, row := range r.rows {
		if row.ID == snapshotID && row.UserID == userID {
			out := row
			return &out, nil
		}
	}
	return nil, nil
}

func (r *fakeSnapshotRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit, offset int) ([]*types.ProfileSnapshot, error) {
	if r.err != nil {
		return nil, r.err
	}
	var mine []*types.ProfileSnapshot
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].UserID == userID {
			out := r.rows[i]
			mine = append(mine, &out)
		}
	}
	if offset > len(mine) {
		offset = len(mine)
	}
	mine = mine[offset:]
	if limit > 0 && len(mine) > limit {
		mine = mine[:limit]
	}
	return mine, nil
}

func (r *fakeSnapshotRepo) byReason(reason string) []types.ProfileSnapshot {
	var out []types.ProfileSnapshot
	for _, row := range r.rows {
		if row.Reason == reason {
			out = append(out, row)
		}
	}
	return out
}

type masteryKey struct {
	userID    uuid.UUID
	conceptID uuid.UUID
}

// Guarded because the decay sweep hits it from multiple goroutines.
type fakeMasteryRepo struct {
	mu   sync.Mutex
	rows map[masteryKey]types.ConceptMastery
	err  error
}

func newFakeMasteryRepo() *fakeMasteryRepo {
	return &fakeMasteryRepo{rows: make(map[masteryKey]types.ConceptMastery)}
}

func (r *fakeMasteryRepo) Get(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.ConceptMastery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	row, ok := r.rows[masteryKey{userID, conceptID}]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (r *fakeMasteryRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.ConceptMastery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	r.rows[masteryKey{row.UserID, row.ConceptID}] = *row
	return nil
}

func (r *fakeMasteryRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.ConceptMastery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*types.ConceptMastery
	for key, row := range r.rows {
		if key.userID == userID {
			copied := row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeMasteryRepo) ListDue(ctx context.Context, tx *gorm.DB, userID uuid.UUID, asOf time.Time, limit int) ([]*types.ConceptMastery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*types.ConceptMastery
	for key, row := range r.rows {
		if key.userID != userID || row.NextReviewAt == nil || row.NextReviewAt.After(asOf) {
			continue
		}
		copied := row
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextReviewAt.Before(*out[j].NextReviewAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeMappingRepo struct {
	rows []types.ContentConceptMapping
	err  error
}

func newFakeMappingRepo() *fakeMappingRepo { return &fakeMappingRepo{} }

func (r *fakeMappingRepo) ListForLesson(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, lessonIndex int) ([]*types.ContentConceptMapping, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*types.ContentConceptMapping
	for _, row := range r.rows {
		if row.CourseID == courseID && row.LessonIndex == lessonIndex {
			copied := row
			out = append(out, &copied)
		}
	}
	return out, nil
}

type progressKey struct {
	userID      uuid.UUID
	courseID    uuid.UUID
	lessonIndex int
}

type fakeProgressRepo struct {
	rows map[progressKey]types.LessonProgress
	err  error
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{rows: make(map[progressKey]types.LessonProgress)}
}

func (r *fakeProgressRepo) GetByUserAndLesson(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID, lessonIndex int) (*types.LessonProgress, error) {
	if r.err != nil {
		return nil, r.err
	}
	row, ok := r.rows[progressKey{userID, courseID, lessonIndex}]
	if !ok {
		return nil, nil
	}
	out := row
	return &out, nil
}

func (r *fakeProgressRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.LessonProgress) error {
	if r.err != nil {
		return r.err
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	r.rows[progressKey{row.UserID, row.CourseID, row.LessonIndex}] = *row
	return nil
}

func (r *fakeProgressRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.LessonProgress, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*types.LessonProgress
	for key, row := range r.rows {
		if key.userID == userID {
			copied := row
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeAttemptRepo struct {
	rows []types.QuestionAttempt
	err  error
}

func newFakeAttemptRepo() *fakeAttemptRepo { return &fakeAttemptRepo{} }

func (r *fakeAttemptRepo) Create(ctx context.Context, tx *gorm.DB, row *types.QuestionAttempt) error {
	if r.err != nil {
		return r.err
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	r.rows = append(r.rows, *row)
	return nil
}

func (r *fakeAttemptRepo) ListRecent(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID, lessonIndex, limit int) ([]*types.QuestionAttempt, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*types.QuestionAttempt
	for i := len(r.rows) - 1; i >= 0; i-- {
		row := r.rows[i]
		if row.UserID != userID || row.CourseID != courseID || row.LessonIndex != lessonIndex {
			continue
		}
		copied := row
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
