package classify

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	"github.com/yungbote/companysync-backend/internal/data/repos/testutil"
	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
)

func newRunnerFixture(t *testing.T) (*gorm.DB, repos.Set) {
	t.Helper()
	db := testutil.SQLite(t)
	return db, repos.NewSet(db, testutil.Logger(t))
}

func newTestRunner(t *testing.T, set repos.Set, cls Classifier, cfg Config) *Runner {
	t.Helper()
	if cfg.WorkerID == "" {
		cfg.WorkerID = "test-worker"
	}
	return NewRunner(Deps{
		Log:        testutil.Logger(t),
		Images:     set.Images,
		Companies:  set.Companies,
		RunLogs:    set.RunLogs,
		Classifier: cls,
	}, cfg)
}

func TestRunner_ClassifiesEntitiesAndCompletesThem(t *testing.T) {
	db, set := newRunnerFixture(t)
	ctx := context.Background()

	testutil.SeedCompany(t, ctx, db, 1, "Aceros del Sur")
	testutil.SeedCompany(t, ctx, db, 2, "")
	testutil.SeedPostImage(t, ctx, db, 1, 1)
	testutil.SeedPostImage(t, ctx, db, 1, 2)
	testutil.SeedPostImage(t, ctx, db, 2, 1)

	cls := &fakeClassifier{fn: func(_ context.Context, url string, _ CompanyContext) (Verdict, error) {
		if strings.HasSuffix(url, "1_image2.jpg") {
			return Verdict{IsConstruction: true, Product: map[string]any{"product_name": "Perfil"}, Model: "test-model"}, nil
		}
		return Verdict{Model: "test-model"}, nil
	}}
	r := newTestRunner(t, set, cls, Config{Timeout: time.Second})

	stats, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 2, stats.EntitiesDone)
	assert.Equal(t, 3, stats.Images)
	assert.Equal(t, 1, stats.Construction)
	assert.Equal(t, 2, stats.NotConstruction)

	for _, id := range []int64{1, 2} {
		c, err := set.Companies.GetByID(dbctx.New(ctx), id)
		require.NoError(t, err)
		assert.True(t, c.ImagesProcessed, "company %d", id)
	}

	// Empty title falls back to the placeholder context.
	require.Len(t, cls.seen, 3)
	assert.Equal(t, "Aceros del Sur", cls.seen[0].Title)
	assert.Equal(t, defaultCompanyTitle, cls.seen[2].Title)

	logs, err := set.RunLogs.ListRecent(dbctx.New(ctx), 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 2, logs[0].CompaniesProcessed)
	assert.Equal(t, 3, logs[0].TotalImages)
	assert.Equal(t, 1, logs[0].ConstructionImages)
	assert.Equal(t, "test-model", logs[0].ModelUsed)
}

func TestRunner_RespectsMaxEntities(t *testing.T) {
	db, set := newRunnerFixture(t)
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		testutil.SeedPostImage(t, ctx, db, id, 1)
	}
	cls := &fakeClassifier{fn: func(context.Context, string, CompanyContext) (Verdict, error) {
		return Verdict{}, nil
	}}
	r := newTestRunner(t, set, cls, Config{Timeout: time.Second, MaxEntities: 2})

	stats, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)

	id, _, err := set.Images.ClaimNextPendingEntity(dbctx.New(ctx), "other-worker", DefaultClaimTTL)
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}

func TestRunner_TimeoutDoesNotStopEntity(t *testing.T) {
	db, set := newRunnerFixture(t)
	ctx := context.Background()
	testutil.SeedCompany(t, ctx, db, 1, "Ferretería Uno")
	testutil.SeedPostImage(t, ctx, db, 1, 1)
	testutil.SeedPostImage(t, ctx, db, 1, 2)

	slow := testutil.SeedPostImage(t, ctx, db, 1, 3)
	cls := &fakeClassifier{fn: func(ctx context.Context, url string, _ CompanyContext) (Verdict, error) {
		if url == slow.Path {
			<-ctx.Done()
			return Verdict{}, ctx.Err()
		}
		return Verdict{}, nil
	}}
	r := newTestRunner(t, set, cls, Config{Timeout: 40 * time.Millisecond})

	stats, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TimedOut)
	assert.Equal(t, 2, stats.NotConstruction)
	assert.Equal(t, 1, stats.EntitiesDone)

	imgs, err := set.Images.ListByScrapingID(dbctx.New(ctx), 1)
	require.NoError(t, err)
	for _, img := range imgs {
		assert.True(t, img.Classified(), "photo %d", img.PhotoID)
		if img.PhotoID == slow.PhotoID {
			assert.True(t, img.TimeOut)
			assert.Nil(t, img.IsConstruction)
		}
	}
}

func TestRunner_CancelledRunReleasesClaims(t *testing.T) {
	db, set := newRunnerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	testutil.SeedPostImage(t, ctx, db, 1, 1)
	testutil.SeedPostImage(t, ctx, db, 1, 2)

	cls := &fakeClassifier{fn: func(callCtx context.Context, _ string, _ CompanyContext) (Verdict, error) {
		cancel()
		<-callCtx.Done()
		return Verdict{}, callCtx.Err()
	}}
	r := newTestRunner(t, set, cls, Config{Timeout: time.Minute})

	_, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	imgs, err := set.Images.ListByScrapingID(dbctx.New(context.Background()), 1)
	require.NoError(t, err)
	require.Len(t, imgs, 2)
	for _, img := range imgs {
		assert.Empty(t, img.ClaimedBy)
		assert.Nil(t, img.ClaimedAt)
	}
}

func TestRunner_RefreshesClaimBetweenImages(t *testing.T) {
	db, set := newRunnerFixture(t)
	ctx := context.Background()
	for n := 1; n <= 3; n++ {
		testutil.SeedPostImage(t, ctx, db, 1, n)
	}

	// Every call ages the claim by 40s against a 1m TTL, so without a refresh the
	// claim is stale by the second call. A rival worker polls during each call.
	var stolen int
	cls := &fakeClassifier{fn: func(callCtx context.Context, _ string, _ CompanyContext) (Verdict, error) {
		imgs, err := set.Images.ListByScrapingID(dbctx.New(ctx), 1)
		require.NoError(t, err)
		for _, img := range imgs {
			if img.ClaimedAt == nil {
				continue
			}
			require.NoError(t, db.Model(&types.CompanyImage{}).
				Where("photo_id = ?", img.PhotoID).
				Update("claimed_at", img.ClaimedAt.Add(-40*time.Second)).Error)
		}
		if _, _, err := set.Images.ClaimNextPendingEntity(dbctx.New(ctx), "rival", time.Minute); err == nil {
			stolen++
		}
		return Verdict{}, nil
	}}
	r := newTestRunner(t, set, cls, Config{Timeout: time.Second, ClaimTTL: time.Minute})

	stats, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NotConstruction)
	assert.Zero(t, stolen, "the entity stays claimed while it is worked")
	assert.Len(t, cls.calls, 3)
}

// failingWrites fails every terminal write so the entity is never resolved.
type failingWrites struct {
	repos.ImageRepo
}

func (failingWrites) RecordClassification(dbctx.Context, int64, repos.ClassificationUpdate) (bool, error) {
	return false, errors.New("write refused")
}

func TestRunner_StopsWhenEntityIsReselected(t *testing.T) {
	db, set := newRunnerFixture(t)
	ctx := context.Background()
	testutil.SeedPostImage(t, ctx, db, 1, 1)

	set.Images = failingWrites{ImageRepo: set.Images}
	cls := &fakeClassifier{fn: func(context.Context, string, CompanyContext) (Verdict, error) {
		return Verdict{}, nil
	}}
	r := newTestRunner(t, set, cls, Config{Timeout: time.Second, MaxEntities: 5})

	stats, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entities)
	assert.Equal(t, 1, stats.StoreErrors)
	assert.Zero(t, stats.EntitiesDone)
}

func TestRunner_LockHeldElsewhere(t *testing.T) {
	_, set := newRunnerFixture(t)
	lockPath := filepath.Join(t.TempDir(), "classify.lock")

	other := flock.New(lockPath)
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = other.Unlock() })

	r := newTestRunner(t, set, blockingClassifier(), Config{LockPath: lockPath})
	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunnerLocked)
}

func TestVerifier_KeepsEntityOpenWhilePending(t *testing.T) {
	db, set := newRunnerFixture(t)
	ctx := context.Background()
	testutil.SeedCompany(t, ctx, db, 1, "Cementos")
	img := testutil.SeedPostImage(t, ctx, db, 1, 1)
	testutil.SeedImage(t, ctx, db, 1, types.ImageTypeCover, "cover", time.Now().UTC())

	v := NewVerifier(testutil.Logger(t), set.Images, set.Companies)
	done, err := v.Verify(ctx, 1)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = set.Images.MarkTimedOut(dbctx.New(ctx), img.PhotoID)
	require.NoError(t, err)

	// Cover and profile images never block completion.
	done, err = v.Verify(ctx, 1)
	require.NoError(t, err)
	assert.True(t, done)

	c, err := set.Companies.GetByID(dbctx.New(ctx), 1)
	require.NoError(t, err)
	assert.True(t, c.ImagesProcessed)
}
