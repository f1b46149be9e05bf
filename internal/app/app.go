package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/companysync-backend/internal/data/db"
	"github.com/yungbote/companysync-backend/internal/data/repos"
	"github.com/yungbote/companysync-backend/internal/modules/backfill"
	"github.com/yungbote/companysync-backend/internal/modules/classify"
	"github.com/yungbote/companysync-backend/internal/modules/ingest"
	"github.com/yungbote/companysync-backend/internal/modules/media"
	"github.com/yungbote/companysync-backend/internal/modules/pipeline"
	"github.com/yungbote/companysync-backend/internal/modules/reconcile"
	"github.com/yungbote/companysync-backend/internal/observability"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

type App struct {
	Log     *logger.Logger
	DB      *gorm.DB
	Cfg     Config
	Repos   repos.Set
	Clients *Clients

	pg     *db.PostgresService
	cancel context.CancelFunc
}

// New connects to Postgres, migrates the schema when enabled and wires the repositories.
// Remote clients are created lazily by the module constructors.
func New(log *logger.Logger, cfg Config) (*App, error) {
	pg, err := db.NewPostgresService(log, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.AutoMigrateAll(); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
	}
	a := NewWithDB(log, cfg, pg.DB())
	a.pg = pg
	return a, nil
}

// NewWithDB wires the app over an already open database. The caller owns the connection.
func NewWithDB(log *logger.Logger, cfg Config, theDB *gorm.DB) *App {
	log.Info("Wiring repos...")
	return &App{
		Log:     log,
		DB:      theDB,
		Cfg:     cfg,
		Repos:   repos.NewSet(theDB, log),
		Clients: newClients(log),
	}
}

// Start begins background collectors that live as long as the app.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	observability.Current().StartPostgresCollector(ctx, a.Log, a.DB, 15*time.Second)
}

func (a *App) Pipeline() (*pipeline.Usecases, error) {
	bucket, err := a.Clients.Bucket()
	if err != nil {
		return nil, err
	}
	pc := a.Cfg.Pipeline
	return pipeline.New(pipeline.UsecasesDeps{
		Log:       a.Log,
		Bucket:    bucket,
		Listings:  a.Repos.Listings,
		Companies: a.Repos.Companies,
		Images:    a.Repos.Images,
	}, pipeline.Config{
		SourcePrefix: pc.SourcePrefix,
		Country:      pc.Country,
		Reconcile: reconcile.Config{
			Threshold: pc.MatchThreshold,
			BatchSize: pc.ReconcileBatchSize,
			Workers:   pc.ReconcileWorkers,
		},
		Media: media.Config{
			SourcePrefix: pc.SourcePrefix,
			Workers:      pc.MediaWorkers,
		},
		SkipMedia: pc.SkipMedia,
	}), nil
}

func (a *App) ClassifyRunner() (*classify.Runner, error) {
	ai, err := a.Clients.OpenAI()
	if err != nil {
		return nil, err
	}
	cc := a.Cfg.Classify
	return classify.NewRunner(classify.Deps{
		Log:        a.Log,
		Images:     a.Repos.Images,
		Companies:  a.Repos.Companies,
		RunLogs:    a.Repos.RunLogs,
		Classifier: classify.NewModelClassifier(ai, cc.ImageDetail),
	}, classify.Config{
		Timeout:     cc.Timeout,
		MaxEntities: cc.MaxEntities,
		ClaimTTL:    cc.ClaimTTL,
		LockPath:    cc.LockPath,
		Pause:       cc.Pause,
	}), nil
}

func (a *App) Ingest() (*ingest.Usecases, error) {
	if err := a.Cfg.RequireIngest(); err != nil {
		return nil, err
	}
	ap, err := a.Clients.Apify()
	if err != nil {
		return nil, err
	}
	bucket, err := a.Clients.Bucket()
	if err != nil {
		return nil, err
	}
	ic := a.Cfg.Ingest
	return ingest.New(ingest.UsecasesDeps{
		Log:       a.Log,
		Apify:     ap,
		Bucket:    bucket,
		Listings:  a.Repos.Listings,
		Companies: a.Repos.Companies,
		Images:    a.Repos.Images,
		Batches:   a.Repos.ActorBatches,
	}, ingest.Config{
		PhotosActor:     ic.PhotosActor,
		PageActor:       ic.PageActor,
		MaxCompanies:    ic.MaxCompanies,
		PhotosLimit:     ic.PhotosLimit,
		DownloadWorkers: ic.DownloadWorkers,
		DownloadRPS:     ic.DownloadRPS,
		DownloadTimeout: ic.DownloadTimeout,
		UserAgent:       ic.UserAgent,
	}), nil
}

func (a *App) CreatedAtBackfill() *backfill.CreatedAt {
	return backfill.NewCreatedAt(a.Log, a.Repos.Companies)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil && a.Log != nil {
			a.Log.Warn("Postgres close failed", "error", err)
		}
		a.pg = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
