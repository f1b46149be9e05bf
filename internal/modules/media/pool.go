package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/domain/companies"
	"github.com/yungbote/companysync-backend/internal/observability"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/gcp"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

const DefaultWorkers = 5

// Entity is a reconciled company together with the source folder holding its media.
type Entity struct {
	ScrapingID int64
	Country    string
	Folder     string
}

type Stats struct {
	Entities      int
	Skipped       int
	WithImages    int
	WithoutImages int
	ImagesCopied  int
	ImageErrors   int
	EntityErrors  int
	Duration      time.Duration
}

type Deps struct {
	Log       *logger.Logger
	Bucket    gcp.BucketService
	Companies repos.CompanyRepo
	Images    repos.ImageRepo
}

type Config struct {
	SourcePrefix string
	Workers      int
}

type Pool struct {
	deps Deps
	cfg  Config
	log  *logger.Logger
}

func NewPool(deps Deps, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Pool{deps: deps, cfg: cfg, log: deps.Log.With("component", "MediaPool")}
}

type entityResult struct {
	skipped bool
	copied  int
	failed  int
}

// Run migrates media for every entity on a bounded pool. Entities run in parallel;
// within one entity objects are copied one after another. Errors for a single object
// or entity are logged and counted, never returned. Only ctx cancellation is returned.
func (p *Pool) Run(ctx context.Context, entities []Entity) (Stats, error) {
	start := time.Now()
	var (
		mu    sync.Mutex
		stats = Stats{Entities: len(entities)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, ent := range entities {
		i, ent := i, ent
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.migrateEntity(gctx, ent)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.EntityErrors++
				observability.Current().IncMediaEntity("failed")
				p.log.Error("Media migration failed for entity", "scraping_id", ent.ScrapingID, "folder", ent.Folder, "error", err)
			case res.skipped:
				stats.Skipped++
				observability.Current().IncMediaEntity("skipped")
			default:
				stats.ImagesCopied += res.copied
				stats.ImageErrors += res.failed
				if res.copied > 0 {
					stats.WithImages++
				} else {
					stats.WithoutImages++
				}
				observability.Current().IncMediaEntity("succeeded")
				p.log.Info("Entity media migrated",
					"progress", fmt.Sprintf("%d/%d", i+1, len(entities)),
					"scraping_id", ent.ScrapingID,
					"copied", res.copied,
					"failed", res.failed,
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	stats.Duration = time.Since(start)
	observability.Current().ObservePhase("media", "succeeded", stats.Duration)
	return stats, nil
}

func (p *Pool) migrateEntity(ctx context.Context, ent Entity) (entityResult, error) {
	dbc := dbctx.New(ctx)
	company, err := p.deps.Companies.GetByID(dbc, ent.ScrapingID)
	if err != nil {
		return entityResult{}, fmt.Errorf("load company: %w", err)
	}
	if company == nil {
		return entityResult{}, fmt.Errorf("company %d not found", ent.ScrapingID)
	}
	if company.Migrated {
		return entityResult{skipped: true}, nil
	}
	country := ent.Country
	if country == "" {
		country = company.Country
	}

	objects, unchecked, err := p.discover(ctx, ent)
	if err != nil {
		return entityResult{}, err
	}

	var (
		res  = entityResult{failed: unchecked}
		rows []*types.CompanyImage
		now  = time.Now().UTC()
	)
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := p.deps.Bucket.CopyAcross(dbc, gcp.BucketCategorySource, obj.SourceKey, gcp.BucketCategoryDest, obj.DestKey); err != nil {
			res.failed++
			observability.Current().IncMediaImage(obj.ImageType, "failed")
			p.log.Warn("Media copy failed", "scraping_id", ent.ScrapingID, "source", obj.SourceKey, "error", err)
			continue
		}
		res.copied++
		observability.Current().IncMediaImage(obj.ImageType, "copied")
		rows = append(rows, &types.CompanyImage{
			PhotoID:    companies.PhotoID(ent.ScrapingID, obj.Slot),
			ScrapingID: ent.ScrapingID,
			Country:    country,
			Path:       p.deps.Bucket.GetPublicURL(gcp.BucketCategoryDest, obj.DestKey),
			ImageType:  obj.ImageType,
			CreatedAt:  now,
		})
	}

	if len(rows) > 0 {
		if _, err := p.deps.Images.InsertMissing(dbc, rows); err != nil {
			return res, fmt.Errorf("record images: %w", err)
		}
	}
	// Any failure leaves the entity unmigrated so the next run retries it.
	if res.failed > 0 {
		return res, nil
	}
	if _, err := p.deps.Companies.MarkMigrated(dbc, []int64{ent.ScrapingID}); err != nil {
		return res, fmt.Errorf("mark migrated: %w", err)
	}
	return res, nil
}

// discover lists the objects an entity is expected to have, in copy order: cover,
// profile, then posts by ordinal. Missing banner or logo objects are skipped; the
// number of banner or logo objects whose existence could not be checked is returned.
func (p *Pool) discover(ctx context.Context, ent Entity) ([]Object, int, error) {
	folder := FolderKey(p.cfg.SourcePrefix, ent.Folder)
	var (
		out       []Object
		unchecked int
	)
	for _, obj := range []Object{CoverObject(folder, ent.ScrapingID), ProfileObject(folder, ent.ScrapingID)} {
		ok, err := p.deps.Bucket.Exists(ctx, gcp.BucketCategorySource, obj.SourceKey)
		if err != nil {
			unchecked++
			p.log.Warn("Existence check failed", "key", obj.SourceKey, "error", err)
			observability.Current().IncMediaImage(obj.ImageType, "failed")
			continue
		}
		if ok {
			out = append(out, obj)
		}
	}
	keys, err := p.deps.Bucket.ListKeys(ctx, gcp.BucketCategorySource, PostsPrefix(folder))
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return append(out, PostObjects(keys, ent.ScrapingID)...), unchecked, nil
}
