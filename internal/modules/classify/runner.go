package classify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/observability"
	apperrors "github.com/yungbote/companysync-backend/internal/pkg/errors"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

const (
	DefaultMaxEntities = 10
	DefaultClaimTTL    = 15 * time.Minute
)

// ErrRunnerLocked is returned when another runner on this host holds the lock file.
var ErrRunnerLocked = errors.New("another classification runner holds the lock")

type Deps struct {
	Log        *logger.Logger
	Images     repos.ImageRepo
	Companies  repos.CompanyRepo
	RunLogs    repos.RunLogRepo
	Classifier Classifier
}

type Config struct {
	Timeout     time.Duration
	MaxEntities int
	ClaimTTL    time.Duration
	// WorkerID tags the claims this runner takes. Defaults to host-pid-random.
	WorkerID string
	// LockPath, when set, is an exclusive lock file held for the whole run.
	LockPath string
	// Pause is the wait between images of one entity.
	Pause time.Duration
}

// RunStats aggregates one run; it is also what lands in the run log.
type RunStats struct {
	Entities        int
	EntitiesDone    int
	Images          int
	Construction    int
	NotConstruction int
	Failed          int
	TimedOut        int
	Skipped         int
	StoreErrors     int
	Start           time.Time
	End             time.Time
}

// Successful counts images that got a verdict from the model.
func (s RunStats) Successful() int { return s.Construction + s.NotConstruction }

type Runner struct {
	deps     Deps
	cfg      Config
	log      *logger.Logger
	worker   *Worker
	verifier *Verifier
	contexts *cache.Cache
}

func NewRunner(deps Deps, cfg Config) *Runner {
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = DefaultMaxEntities
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultClaimTTL
	}
	if cfg.WorkerID == "" {
		host, _ := os.Hostname()
		cfg.WorkerID = host + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.NewString()[:8]
	}
	return &Runner{
		deps:     deps,
		cfg:      cfg,
		log:      deps.Log.With("component", "ClassificationRunner", "worker_id", cfg.WorkerID),
		worker:   NewWorker(deps.Log, deps.Images, deps.Classifier, cfg.Timeout),
		verifier: NewVerifier(deps.Log, deps.Images, deps.Companies),
		contexts: cache.New(30*time.Minute, time.Hour),
	}
}

// Run claims and classifies entities until none is pending or MaxEntities were visited.
// Per-image failures never stop the loop; a store error while claiming does. Claims still
// held at the end are released and a run log row is written either way.
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	stats := RunStats{Start: time.Now().UTC()}

	if r.cfg.LockPath != "" {
		lock := flock.New(r.cfg.LockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return stats, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return stats, ErrRunnerLocked
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				r.log.Warn("failed to release runner lock", "error", err)
			}
		}()
	}

	defer r.finish(ctx, &stats)

	visited := make(map[int64]struct{}, r.cfg.MaxEntities)
	for stats.Entities < r.cfg.MaxEntities {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		scrapingID, imgs, err := r.deps.Images.ClaimNextPendingEntity(dbctx.New(ctx), r.cfg.WorkerID, r.cfg.ClaimTTL)
		if errors.Is(err, apperrors.ErrNoPendingWork) {
			r.log.Info("No pending entities left")
			break
		}
		if err != nil {
			return stats, fmt.Errorf("select pending entity: %w", err)
		}
		if _, seen := visited[scrapingID]; seen {
			// Writes for this entity keep failing; leave it for the next run.
			r.log.Warn("Entity re-selected within one run, stopping", "scraping_id", scrapingID)
			break
		}
		visited[scrapingID] = struct{}{}
		stats.Entities++

		if err := r.processEntity(ctx, scrapingID, imgs, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (r *Runner) processEntity(ctx context.Context, scrapingID int64, imgs []*types.CompanyImage, stats *RunStats) error {
	cc := r.companyContext(ctx, scrapingID)
	r.log.Info("Processing entity", "scraping_id", scrapingID, "title", cc.Title, "images", len(imgs))

	for i, img := range imgs {
		if i > 0 {
			// A long entity can outlive one claim TTL.
			held, err := r.deps.Images.RefreshClaims(dbctx.New(ctx), scrapingID, r.cfg.WorkerID)
			if err != nil {
				r.log.Warn("Failed to refresh claim", "scraping_id", scrapingID, "error", err)
			} else if held == 0 {
				r.log.Warn("Claim lost, leaving entity", "scraping_id", scrapingID, "remaining", len(imgs)-i)
				break
			}
		}
		outcome, err := r.worker.Process(ctx, img, cc)
		if outcome == OutcomeAborted {
			return err
		}
		stats.Images++
		if err != nil {
			stats.StoreErrors++
			r.log.Error("Failed to store classification", "photo_id", img.PhotoID, "error", err)
			continue
		}
		switch outcome {
		case OutcomeConstruction:
			stats.Construction++
		case OutcomeNotConstruction:
			stats.NotConstruction++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeTimedOut:
			stats.TimedOut++
		case OutcomeAlreadyResolved:
			stats.Skipped++
		}
		if r.cfg.Pause > 0 && i < len(imgs)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.Pause):
			}
		}
	}

	done, err := r.verifier.Verify(ctx, scrapingID)
	switch {
	case err != nil:
		stats.StoreErrors++
		observability.Current().IncClassifyEntity("error")
		r.log.Error("Completion check failed", "scraping_id", scrapingID, "error", err)
	case done:
		stats.EntitiesDone++
		observability.Current().IncClassifyEntity("done")
	default:
		observability.Current().IncClassifyEntity("pending")
	}
	return nil
}

func (r *Runner) companyContext(ctx context.Context, scrapingID int64) CompanyContext {
	key := strconv.FormatInt(scrapingID, 10)
	if v, ok := r.contexts.Get(key); ok {
		return v.(CompanyContext)
	}
	cc := CompanyContext{}
	company, err := r.deps.Companies.GetByID(dbctx.New(ctx), scrapingID)
	if err != nil {
		r.log.Warn("Company context unavailable, using defaults", "scraping_id", scrapingID, "error", err)
		return cc.withDefaults()
	}
	if company != nil {
		cc = CompanyContext{Title: company.Title, Intro: company.Description}
	}
	cc = cc.withDefaults()
	r.contexts.SetDefault(key, cc)
	return cc
}

func (r *Runner) finish(ctx context.Context, stats *RunStats) {
	stats.End = time.Now().UTC()
	// Cleanup must run even when the run was cancelled.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	dbc := dbctx.New(cleanupCtx)

	if released, err := r.deps.Images.ReleaseClaims(dbc, r.cfg.WorkerID); err != nil {
		r.log.Warn("Failed to release claims", "error", err)
	} else if released > 0 {
		r.log.Info("Released claims", "images", released)
	}

	if r.deps.RunLogs != nil {
		row := &types.ClassificationRunLog{
			CompaniesProcessed: stats.Entities,
			TotalImages:        stats.Images,
			ConstructionImages: stats.Construction,
			SuccessfulImages:   stats.Successful(),
			FailedImages:       stats.Failed + stats.StoreErrors,
			TimedOutImages:     stats.TimedOut,
			StartTime:          stats.Start,
			EndTime:            stats.End,
			ModelUsed:          r.deps.Classifier.Model(),
		}
		if err := r.deps.RunLogs.Create(dbc, row); err != nil {
			r.log.Warn("Failed to write run log", "error", err)
		}
	}
	observability.Current().ObservePhase("classify", "succeeded", stats.End.Sub(stats.Start))
	r.log.Info("Classification run finished",
		"entities", stats.Entities,
		"entities_done", stats.EntitiesDone,
		"images", stats.Images,
		"construction", stats.Construction,
		"not_construction", stats.NotConstruction,
		"failed", stats.Failed,
		"timed_out", stats.TimedOut,
		"duration", stats.End.Sub(stats.Start).String(),
	)
}
