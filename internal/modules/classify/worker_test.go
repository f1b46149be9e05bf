package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	"github.com/yungbote/companysync-backend/internal/data/repos/testutil"
	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/openai"
)

type classifyFunc func(ctx context.Context, imageURL string, cc CompanyContext) (Verdict, error)

type fakeClassifier struct {
	fn    classifyFunc
	mu    sync.Mutex
	calls []string
	seen  []CompanyContext
}

func (f *fakeClassifier) Classify(ctx context.Context, imageURL string, cc CompanyContext) (Verdict, error) {
	f.mu.Lock()
	f.calls = append(f.calls, imageURL)
	f.seen = append(f.seen, cc)
	f.mu.Unlock()
	return f.fn(ctx, imageURL, cc)
}

func (f *fakeClassifier) Model() string { return "test-model" }

func blockingClassifier() *fakeClassifier {
	return &fakeClassifier{fn: func(ctx context.Context, _ string, _ CompanyContext) (Verdict, error) {
		<-ctx.Done()
		return Verdict{}, ctx.Err()
	}}
}

// recordingImages keeps the writes in memory; only the methods the worker uses are implemented.
type recordingImages struct {
	repos.ImageRepo
	mu       sync.Mutex
	timedOut []int64
	updates  map[int64]repos.ClassificationUpdate
	resolved map[int64]bool
}

func newRecordingImages() *recordingImages {
	return &recordingImages{updates: map[int64]repos.ClassificationUpdate{}, resolved: map[int64]bool{}}
}

func (r *recordingImages) MarkTimedOut(_ dbctx.Context, photoID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved[photoID] {
		return false, nil
	}
	r.resolved[photoID] = true
	r.timedOut = append(r.timedOut, photoID)
	return true, nil
}

func (r *recordingImages) RecordClassification(_ dbctx.Context, photoID int64, upd repos.ClassificationUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolved[photoID] {
		return false, nil
	}
	r.resolved[photoID] = true
	r.updates[photoID] = upd
	return true, nil
}

func pendingImage(photoID int64) *types.CompanyImage {
	return &types.CompanyImage{
		PhotoID:    photoID,
		ScrapingID: 1,
		Path:       "https://storage.googleapis.com/dest/CL/1_image1.jpg",
		ImageType:  types.ImageTypePost,
	}
}

func TestWorker_TimeoutMarksImageAndLeavesNoGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	images := newRecordingImages()
	w := NewWorker(testutil.Logger(t), images, blockingClassifier(), 50*time.Millisecond)

	start := time.Now()
	outcome, err := w.Process(context.Background(), pendingImage(7), CompanyContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []int64{7}, images.timedOut)
	assert.Empty(t, images.updates)
}

func TestWorker_RejectedTemperatureAbortsAndLeavesImagePending(t *testing.T) {
	images := newRecordingImages()
	cls := &fakeClassifier{fn: func(context.Context, string, CompanyContext) (Verdict, error) {
		return Verdict{}, fmt.Errorf("classify: %w", openai.ErrTemperatureUnsupported)
	}}
	w := NewWorker(testutil.Logger(t), images, cls, time.Second)

	outcome, err := w.Process(context.Background(), pendingImage(4), CompanyContext{})
	require.ErrorIs(t, err, openai.ErrTemperatureUnsupported)
	assert.Equal(t, OutcomeAborted, outcome)
	assert.Empty(t, images.updates)
	assert.Empty(t, images.timedOut)
}

func TestWorker_CallErrorResolvesAsNotConstruction(t *testing.T) {
	images := newRecordingImages()
	cls := &fakeClassifier{fn: func(context.Context, string, CompanyContext) (Verdict, error) {
		return Verdict{}, errors.New("boom")
	}}
	w := NewWorker(testutil.Logger(t), images, cls, time.Second)

	outcome, err := w.Process(context.Background(), pendingImage(3), CompanyContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	upd := images.updates[3]
	assert.False(t, upd.IsConstruction)
	assert.Zero(t, upd.TokenInput)
	assert.Zero(t, upd.TokenOutput)
	assert.Equal(t, "test-model", upd.ModelUsed)
	assert.Empty(t, images.timedOut)
}

func TestWorker_ConstructionStoresProduct(t *testing.T) {
	images := newRecordingImages()
	cls := &fakeClassifier{fn: func(_ context.Context, url string, _ CompanyContext) (Verdict, error) {
		return Verdict{
			IsConstruction: true,
			Product:        map[string]any{"product_name": "Perfil de aluminio", "product_image": url},
			InputTokens:    900,
			OutputTokens:   120,
			Model:          "test-model",
		}, nil
	}}
	w := NewWorker(testutil.Logger(t), images, cls, time.Second)
	fixed := time.Date(2025, 3, 4, 10, 20, 30, 999, time.UTC)
	w.now = func() time.Time { return fixed }

	outcome, err := w.Process(context.Background(), pendingImage(4), CompanyContext{Title: "Aceros SA"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeConstruction, outcome)

	upd := images.updates[4]
	assert.True(t, upd.IsConstruction)
	assert.Equal(t, 900, upd.TokenInput)
	assert.Equal(t, 120, upd.TokenOutput)
	assert.Equal(t, fixed.Truncate(time.Second), upd.ProcessedAt)

	var product map[string]any
	require.NoError(t, json.Unmarshal(upd.ProductInformation, &product))
	assert.Equal(t, "Perfil de aluminio", product["product_name"])
}

func TestWorker_SkipsResolvedImage(t *testing.T) {
	images := newRecordingImages()
	cls := blockingClassifier()
	w := NewWorker(testutil.Logger(t), images, cls, time.Second)

	img := pendingImage(5)
	img.TimeOut = true
	outcome, err := w.Process(context.Background(), img, CompanyContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyResolved, outcome)
	assert.Empty(t, cls.calls)
}

func TestWorker_ParentCancelLeavesImagePending(t *testing.T) {
	images := newRecordingImages()
	w := NewWorker(testutil.Logger(t), images, blockingClassifier(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	outcome, err := w.Process(ctx, pendingImage(6), CompanyContext{})
	assert.Equal(t, OutcomeAborted, outcome)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, images.timedOut)
	assert.Empty(t, images.updates)
}

func TestWorker_TerminalStateWrittenOnce(t *testing.T) {
	db := testutil.SQLite(t)
	ctx := context.Background()
	imageRepo := repos.NewSet(db, testutil.Logger(t)).Images
	img := testutil.SeedPostImage(t, ctx, db, 1, 1)

	w := NewWorker(testutil.Logger(t), imageRepo, blockingClassifier(), 30*time.Millisecond)
	outcome, err := w.Process(ctx, img, CompanyContext{})
	require.NoError(t, err)
	require.Equal(t, OutcomeTimedOut, outcome)

	// A late verdict for the same image must not overwrite the timeout.
	late := &fakeClassifier{fn: func(context.Context, string, CompanyContext) (Verdict, error) {
		return Verdict{IsConstruction: true, Product: map[string]any{"product_name": "x"}}, nil
	}}
	w2 := NewWorker(testutil.Logger(t), imageRepo, late, time.Second)
	outcome, err = w2.Process(ctx, img, CompanyContext{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyResolved, outcome)

	stored, err := imageRepo.ListByScrapingID(dbctx.New(ctx), 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].TimeOut)
	assert.Nil(t, stored[0].IsConstruction)
}
