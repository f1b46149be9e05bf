package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	types "github.com/yungbote/companysync-backend/internal/domain"
	domaincompanies "github.com/yungbote/companysync-backend/internal/domain/companies"
	"github.com/yungbote/companysync-backend/internal/modules/media"
	"github.com/yungbote/companysync-backend/internal/modules/migrate"
	"github.com/yungbote/companysync-backend/internal/modules/reconcile"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/gcp"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

// ErrStoreUnavailable wraps relational-store failures that stop the run before media migration.
var ErrStoreUnavailable = errors.New("relational store unavailable")

type UsecasesDeps struct {
	Log *logger.Logger

	Bucket gcp.BucketService

	Listings  repos.ListingRepo
	Companies repos.CompanyRepo
	Images    repos.ImageRepo
}

type Config struct {
	// SourcePrefix is the source-bucket folder whose children are the candidate names.
	SourcePrefix string
	// Country restricts the index to one country's listings when set.
	Country   string
	Reconcile reconcile.Config
	Media     media.Config
	// SkipMedia stops the run after the relational upsert.
	SkipMedia bool
}

// ProcessStats are the aggregate counters of one pipeline run.
type ProcessStats struct {
	Found          int
	Matched        int
	Unmatched      int
	FailedBatches  int
	AlreadyPresent int
	Migrated       int64
	WithImages     int
	WithoutImages  int
	MediaSkipped   int
	ImagesCopied   int
	ImageErrors    int
	EntityErrors   int

	ReconcileDuration time.Duration
	MediaDuration     time.Duration
	Duration          time.Duration
}

// Errors is the number of failures that were logged and skipped.
func (s ProcessStats) Errors() int { return s.FailedBatches + s.ImageErrors + s.EntityErrors }

type Usecases struct {
	deps UsecasesDeps
	cfg  Config
	log  *logger.Logger
}

func New(deps UsecasesDeps, cfg Config) *Usecases {
	if cfg.Media.SourcePrefix == "" {
		cfg.Media.SourcePrefix = cfg.SourcePrefix
	}
	return &Usecases{deps: deps, cfg: cfg, log: deps.Log.With("component", "Pipeline")}
}

// Run executes reconcile -> guard -> upsert -> media. A relational-store failure aborts
// before the media phase; per-batch and per-entity failures are counted and skipped.
func (u *Usecases) Run(ctx context.Context) (stats ProcessStats, err error) {
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	folders, err := u.deps.Bucket.ListPrefixes(ctx, gcp.BucketCategorySource, u.cfg.SourcePrefix)
	if err != nil {
		return stats, fmt.Errorf("list source folders: %w", err)
	}
	stats.Found = len(folders)
	u.log.Info("Source folders listed", "prefix", u.cfg.SourcePrefix, "folders", len(folders))
	if len(folders) == 0 {
		return stats, nil
	}

	records, err := u.deps.Listings.ListForIndex(dbctx.New(ctx), u.cfg.Country)
	if err != nil {
		return stats, fmt.Errorf("%w: load listings: %v", ErrStoreUnavailable, err)
	}

	res, err := reconcile.NewEngine(u.deps.Log, u.cfg.Reconcile).Run(ctx, folders, records)
	if err != nil {
		return stats, fmt.Errorf("reconcile: %w", err)
	}
	matches := reconcile.DedupeByRecord(res.Matches)
	stats.Matched = len(matches)
	stats.Unmatched = len(res.Unmatched)
	stats.FailedBatches = res.FailedBatches
	stats.ReconcileDuration = res.Duration
	if len(matches) == 0 {
		u.log.Warn("No folder matched a listing", "folders", len(folders), "listings", len(records))
		return stats, nil
	}

	candidates := make([]*types.Company, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, domaincompanies.CompanyFromListing(m.Record))
	}
	migrated, err := migrate.NewMigrator(u.deps.Log, u.deps.Companies).Migrate(ctx, candidates)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	stats.AlreadyPresent = migrated.AlreadyPresent
	stats.Migrated = migrated.Inserted

	if u.cfg.SkipMedia {
		u.logSummary(stats)
		return stats, nil
	}

	entities := make([]media.Entity, 0, len(matches))
	for _, m := range matches {
		entities = append(entities, media.Entity{
			ScrapingID: m.Record.ScrapingID,
			Country:    m.Record.Country,
			Folder:     m.Candidate,
		})
	}
	pool := media.NewPool(media.Deps{
		Log:       u.deps.Log,
		Bucket:    u.deps.Bucket,
		Companies: u.deps.Companies,
		Images:    u.deps.Images,
	}, u.cfg.Media)
	ms, err := pool.Run(ctx, entities)
	stats.WithImages = ms.WithImages
	stats.WithoutImages = ms.WithoutImages
	stats.MediaSkipped = ms.Skipped
	stats.ImagesCopied = ms.ImagesCopied
	stats.ImageErrors = ms.ImageErrors
	stats.EntityErrors = ms.EntityErrors
	stats.MediaDuration = ms.Duration
	if err != nil {
		return stats, fmt.Errorf("media: %w", err)
	}
	u.logSummary(stats)
	return stats, nil
}

func (u *Usecases) logSummary(s ProcessStats) {
	u.log.Info("Pipeline finished",
		"found", s.Found,
		"matched", s.Matched,
		"unmatched", s.Unmatched,
		"already_present", s.AlreadyPresent,
		"migrated", s.Migrated,
		"with_images", s.WithImages,
		"without_images", s.WithoutImages,
		"images_copied", s.ImagesCopied,
		"errors", s.Errors(),
	)
}
