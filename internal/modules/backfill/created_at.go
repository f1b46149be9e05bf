package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	"github.com/yungbote/companysync-backend/internal/observability"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

type Result struct {
	// Candidates is the number of companies with no created_at that own at least one image.
	Candidates int64
	Updated    int64
	DryRun     bool
}

type CreatedAt struct {
	log       *logger.Logger
	companies repos.CompanyRepo
}

func NewCreatedAt(log *logger.Logger, companies repos.CompanyRepo) *CreatedAt {
	return &CreatedAt{log: log.With("component", "CreatedAtBackfill"), companies: companies}
}

// Run fills company.created_at from the company's earliest image. Companies that already
// carry a value are never touched, so the run can be repeated safely.
func (b *CreatedAt) Run(ctx context.Context, dryRun bool) (Result, error) {
	start := time.Now()
	dbc := dbctx.New(ctx)
	res := Result{DryRun: dryRun}

	n, err := b.companies.BackfillCreatedAt(dbc, true)
	if err != nil {
		return res, fmt.Errorf("count backfill candidates: %w", err)
	}
	res.Candidates = n
	if dryRun || n == 0 {
		b.log.Info("created_at backfill planned", "candidates", n, "dry_run", dryRun)
		return res, nil
	}

	updated, err := b.companies.BackfillCreatedAt(dbc, false)
	if err != nil {
		observability.Current().ObservePhase("backfill", "failed", time.Since(start))
		return res, fmt.Errorf("backfill created_at: %w", err)
	}
	res.Updated = updated
	observability.Current().ObservePhase("backfill", "succeeded", time.Since(start))
	b.log.Info("created_at backfill finished", "candidates", n, "updated", updated)
	return res, nil
}
