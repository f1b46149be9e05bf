package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/observability"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

// Guard computes which candidate companies are absent from the destination store.
// It always asks the store; nothing is remembered between runs.
type Guard struct {
	log       *logger.Logger
	companies repos.CompanyRepo
}

func NewGuard(log *logger.Logger, companies repos.CompanyRepo) *Guard {
	return &Guard{log: log.With("component", "MigrationGuard"), companies: companies}
}

// Missing returns the candidates whose scraping id is not stored yet, keeping input
// order and dropping duplicate ids within the input.
func (g *Guard) Missing(ctx context.Context, candidates []*types.Company) ([]*types.Company, error) {
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		if c != nil && c.ScrapingID != 0 {
			ids = append(ids, c.ScrapingID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	existing, err := g.companies.ExistingScrapingIDs(dbctx.New(ctx), ids)
	if err != nil {
		return nil, fmt.Errorf("query existing companies: %w", err)
	}

	out := make([]*types.Company, 0, len(ids)-len(existing))
	seen := make(map[int64]struct{}, len(ids))
	for _, c := range candidates {
		if c == nil || c.ScrapingID == 0 {
			continue
		}
		if _, ok := existing[c.ScrapingID]; ok {
			continue
		}
		if _, dup := seen[c.ScrapingID]; dup {
			continue
		}
		seen[c.ScrapingID] = struct{}{}
		out = append(out, c)
	}
	g.log.Info("Migration guard filtered candidates",
		"candidates", len(ids),
		"already_present", len(existing),
		"to_insert", len(out),
	)
	return out, nil
}

type Result struct {
	Candidates     int
	AlreadyPresent int
	Inserted       int64
}

// Migrator runs the guard and then the idempotent merge. Any store error is returned
// as-is so the caller can stop downstream phases.
type Migrator struct {
	log       *logger.Logger
	guard     *Guard
	companies repos.CompanyRepo
}

func NewMigrator(log *logger.Logger, companies repos.CompanyRepo) *Migrator {
	return &Migrator{
		log:       log.With("component", "Migrator"),
		guard:     NewGuard(log, companies),
		companies: companies,
	}
}

func (m *Migrator) Migrate(ctx context.Context, candidates []*types.Company) (Result, error) {
	start := time.Now()
	res := Result{Candidates: len(candidates)}

	missing, err := m.guard.Missing(ctx, candidates)
	if err != nil {
		observability.Current().ObservePhase("migrate", "failed", time.Since(start))
		return res, err
	}
	res.AlreadyPresent = len(candidates) - len(missing)
	if len(missing) == 0 {
		observability.Current().ObservePhase("migrate", "noop", time.Since(start))
		return res, nil
	}

	inserted, err := m.companies.InsertMissing(dbctx.New(ctx), missing)
	if err != nil {
		observability.Current().ObservePhase("migrate", "failed", time.Since(start))
		return res, fmt.Errorf("merge companies: %w", err)
	}
	res.Inserted = inserted
	observability.Current().AddCompaniesInserted(inserted)
	observability.Current().ObservePhase("migrate", "succeeded", time.Since(start))
	m.log.Info("Companies migrated", "inserted", inserted, "already_present", res.AlreadyPresent)
	return res, nil
}
