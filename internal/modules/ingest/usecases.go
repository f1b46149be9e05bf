package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	types "github.com/yungbote/companysync-backend/internal/domain"
	apperrors "github.com/yungbote/companysync-backend/internal/pkg/errors"
	"github.com/yungbote/companysync-backend/internal/platform/apify"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/gcp"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

const (
	DefaultMaxCompanies    = 10
	DefaultPhotosLimit     = 10
	DefaultDownloadWorkers = 5
	DefaultDownloadRPS     = 5.0
	DefaultDownloadTimeout = 30 * time.Second
)

// ErrRunPending is returned for a batch whose actor runs have not finished yet.
var ErrRunPending = errors.New("actor run still in progress")

type UsecasesDeps struct {
	Log *logger.Logger

	Apify  apify.Client
	Bucket gcp.BucketService
	// HTTP fetches source images. A client with DownloadTimeout is built when nil.
	HTTP *http.Client

	Listings  repos.ListingRepo
	Companies repos.CompanyRepo
	Images    repos.ImageRepo
	Batches   repos.ActorBatchRepo
}

type Config struct {
	PhotosActor     string
	PageActor       string
	MaxCompanies    int
	PhotosLimit     int
	DownloadWorkers int
	DownloadRPS     float64
	DownloadTimeout time.Duration
	UserAgent       string
}

type Usecases struct {
	deps    UsecasesDeps
	cfg     Config
	log     *logger.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

func New(deps UsecasesDeps, cfg Config) *Usecases {
	if cfg.MaxCompanies <= 0 {
		cfg.MaxCompanies = DefaultMaxCompanies
	}
	if cfg.PhotosLimit <= 0 {
		cfg.PhotosLimit = DefaultPhotosLimit
	}
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = DefaultDownloadWorkers
	}
	if cfg.DownloadRPS <= 0 {
		cfg.DownloadRPS = DefaultDownloadRPS
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{Timeout: cfg.DownloadTimeout}
	}
	burst := int(cfg.DownloadRPS)
	if burst < 1 {
		burst = 1
	}
	return &Usecases{
		deps:    deps,
		cfg:     cfg,
		log:     deps.Log.With("component", "ActorIngest"),
		limiter: rate.NewLimiter(rate.Limit(cfg.DownloadRPS), burst),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// StartBatch launches the photos and page actors for up to MaxCompanies listings that were
// never launched, flags those listings and records the pair of runs. Returns nil when there
// is nothing to launch.
func (u *Usecases) StartBatch(ctx context.Context) (*types.ActorRunBatch, error) {
	if u.cfg.PhotosActor == "" || u.cfg.PageActor == "" {
		return nil, fmt.Errorf("%w: photos and page actor ids are required", apperrors.ErrInvalidArgument)
	}
	dbc := dbctx.New(ctx)
	listings, err := u.deps.Listings.ListUndownloaded(dbc, u.cfg.MaxCompanies)
	if err != nil {
		return nil, fmt.Errorf("select listings: %w", err)
	}
	if len(listings) == 0 {
		u.log.Info("No listings left to scrape")
		return nil, nil
	}

	startURLs := make([]apify.StartURL, 0, len(listings))
	ids := make([]int64, 0, len(listings))
	for _, l := range listings {
		if l.Link == "" {
			continue
		}
		startURLs = append(startURLs, apify.StartURL{
			URL: l.Link,
			UserData: map[string]any{
				"id_scraping": strconv.FormatInt(l.ScrapingID, 10),
				"country":     l.Country,
			},
		})
		ids = append(ids, l.ScrapingID)
	}
	if len(startURLs) == 0 {
		u.log.Warn("Selected listings have no link", "listings", len(listings))
		return nil, nil
	}

	photosRun, err := u.deps.Apify.StartActor(ctx, u.cfg.PhotosActor, map[string]any{
		"startUrls":    startURLs,
		"resultsLimit": u.cfg.PhotosLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("start photos actor: %w", err)
	}
	pageRun, err := u.deps.Apify.StartActor(ctx, u.cfg.PageActor, map[string]any{
		"startUrls": startURLs,
	})
	if err != nil {
		return nil, fmt.Errorf("start page actor (photos run %s already started): %w", photosRun.ID, err)
	}

	if _, err := u.deps.Listings.MarkDownloaded(dbc, ids); err != nil {
		return nil, fmt.Errorf("flag listings: %w", err)
	}
	batch := &types.ActorRunBatch{
		PhotosRunID:  photosRun.ID,
		PageRunID:    pageRun.ID,
		CompanyCount: len(ids),
	}
	if err := u.deps.Batches.Create(dbc, batch); err != nil {
		return nil, fmt.Errorf("record batch: %w", err)
	}
	u.log.Info("Actor batch started",
		"batch_id", batch.ID,
		"companies", len(ids),
		"photos_run", photosRun.MonitorURL(),
		"page_run", pageRun.MonitorURL(),
	)
	return batch, nil
}
