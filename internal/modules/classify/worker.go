package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/observability"
	apperrors "github.com/yungbote/companysync-backend/internal/pkg/errors"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
	"github.com/yungbote/companysync-backend/internal/platform/openai"
)

const DefaultTimeout = 60 * time.Second

type Outcome string

const (
	OutcomeConstruction    Outcome = "construction"
	OutcomeNotConstruction Outcome = "not_construction"
	// OutcomeFailed is a call error resolved to not-construction with zero tokens.
	OutcomeFailed   Outcome = "failed"
	OutcomeTimedOut Outcome = "timed_out"
	// OutcomeAlreadyResolved means another writer classified the image first; nothing was written.
	OutcomeAlreadyResolved Outcome = "already_resolved"
	// OutcomeAborted means the run itself was cancelled; the image stays pending.
	OutcomeAborted Outcome = "aborted"
)

// Worker classifies single images under a hard deadline and writes exactly one
// terminal state per image.
type Worker struct {
	log        *logger.Logger
	images     repos.ImageRepo
	classifier Classifier
	timeout    time.Duration
	now        func() time.Time
}

func NewWorker(log *logger.Logger, images repos.ImageRepo, classifier Classifier, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Worker{
		log:        log.With("component", "ClassificationWorker"),
		images:     images,
		classifier: classifier,
		timeout:    timeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type callResult struct {
	verdict Verdict
	err     error
}

// Process runs the model call for img on its own goroutine bounded by the worker timeout.
// When the deadline passes the call's context is cancelled, so the HTTP request is torn
// down, and the image is flagged as timed out. Other call errors resolve to
// not-construction, except a model that refuses temperature 0, which aborts. The
// returned error is set for store failures and aborts.
func (w *Worker) Process(ctx context.Context, img *types.CompanyImage, cc CompanyContext) (Outcome, error) {
	if img == nil {
		return OutcomeAborted, fmt.Errorf("%w: nil image", apperrors.ErrInvalidArgument)
	}
	if img.Classified() {
		return OutcomeAlreadyResolved, nil
	}
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		v, err := w.classifier.Classify(callCtx, img.Path, cc)
		done <- callResult{verdict: v, err: err}
	}()

	var (
		res      callResult
		timedOut bool
	)
	select {
	case res = <-done:
		timedOut = res.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)
	case <-callCtx.Done():
		timedOut = true
	}
	elapsed := time.Since(start)

	// The parent going away is not a verdict on the image.
	if ctx.Err() != nil {
		w.log.Warn("Classification aborted", "photo_id", img.PhotoID, "error", ctx.Err())
		return OutcomeAborted, ctx.Err()
	}
	if timedOut {
		return w.markTimedOut(ctx, img, elapsed)
	}
	if errors.Is(res.err, openai.ErrTemperatureUnsupported) {
		w.log.Error("Model rejects deterministic settings, stopping", "photo_id", img.PhotoID, "error", res.err)
		return OutcomeAborted, res.err
	}
	if res.err != nil {
		w.log.Warn("Classification call failed, resolving as not construction",
			"photo_id", img.PhotoID, "path", img.Path, "error", res.err)
		return w.record(ctx, img, OutcomeFailed, repos.ClassificationUpdate{
			IsConstruction:       false,
			ModelUsed:            w.classifier.Model(),
			ExecutionTimeSeconds: int(elapsed.Seconds()),
		}, elapsed)
	}

	upd := repos.ClassificationUpdate{
		IsConstruction:       res.verdict.IsConstruction,
		TokenInput:           res.verdict.InputTokens,
		TokenOutput:          res.verdict.OutputTokens,
		ModelUsed:            res.verdict.Model,
		ExecutionTimeSeconds: int(elapsed.Seconds()),
	}
	outcome := OutcomeNotConstruction
	if res.verdict.IsConstruction {
		outcome = OutcomeConstruction
		if res.verdict.Product != nil {
			b, err := json.Marshal(res.verdict.Product)
			if err != nil {
				return OutcomeAborted, fmt.Errorf("encode product: %w", err)
			}
			upd.ProductInformation = datatypes.JSON(b)
		}
	}
	return w.record(ctx, img, outcome, upd, elapsed)
}

func (w *Worker) markTimedOut(ctx context.Context, img *types.CompanyImage, elapsed time.Duration) (Outcome, error) {
	w.log.Warn("Classification timed out, skipping image", "photo_id", img.PhotoID, "path", img.Path, "timeout", w.timeout.String())
	changed, err := w.images.MarkTimedOut(dbctx.New(ctx), img.PhotoID)
	if err != nil {
		return OutcomeTimedOut, fmt.Errorf("mark timed out %d: %w", img.PhotoID, err)
	}
	if !changed {
		observability.Current().ObserveClassification(string(OutcomeAlreadyResolved), elapsed)
		return OutcomeAlreadyResolved, nil
	}
	observability.Current().ObserveClassification(string(OutcomeTimedOut), elapsed)
	return OutcomeTimedOut, nil
}

func (w *Worker) record(ctx context.Context, img *types.CompanyImage, outcome Outcome, upd repos.ClassificationUpdate, elapsed time.Duration) (Outcome, error) {
	upd.ProcessedAt = w.now().Truncate(time.Second)
	changed, err := w.images.RecordClassification(dbctx.New(ctx), img.PhotoID, upd)
	if err != nil {
		return outcome, fmt.Errorf("record classification %d: %w", img.PhotoID, err)
	}
	if !changed {
		observability.Current().ObserveClassification(string(OutcomeAlreadyResolved), elapsed)
		return OutcomeAlreadyResolved, nil
	}
	observability.Current().ObserveClassification(string(outcome), elapsed)
	w.log.Info("Image classified",
		"photo_id", img.PhotoID,
		"outcome", outcome,
		"token_input", upd.TokenInput,
		"token_output", upd.TokenOutput,
		"model_used", upd.ModelUsed,
		"execution_time_seconds", upd.ExecutionTimeSeconds,
	)
	return outcome, nil
}
