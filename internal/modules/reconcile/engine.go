package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/observability"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

const (
	DefaultBatchSize = 50
	DefaultWorkers   = 4
)

type Config struct {
	Threshold float64
	BatchSize int
	Workers   int
}

type Result struct {
	Candidates    int
	Matches       []Match
	Unmatched     []string
	FailedBatches int
	Duration      time.Duration
}

type Engine struct {
	log *logger.Logger
	cfg Config
	// matchFn is swapped in tests to inject batch failures.
	matchFn func(m *Matcher, candidate string) (Match, bool)
}

func NewEngine(log *logger.Logger, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultThreshold
	}
	return &Engine{
		log:     log.With("component", "ReconcileEngine"),
		cfg:     cfg,
		matchFn: (*Matcher).Match,
	}
}

// Run indexes records once, then matches candidates in fixed-size batches on a bounded
// pool. A failed batch is logged and counted; its siblings keep going. Only ctx
// cancellation aborts the run.
func (e *Engine) Run(ctx context.Context, candidates []string, records []*types.Listing) (Result, error) {
	start := time.Now()
	index := BuildIndex(records)
	matcher := NewMatcher(index, e.cfg.Threshold)
	e.log.Info("Reconciliation started",
		"candidates", len(candidates),
		"index_buckets", index.Len(),
		"batch_size", e.cfg.BatchSize,
		"workers", e.cfg.Workers,
		"threshold", e.cfg.Threshold,
	)

	var (
		mu  sync.Mutex
		res = Result{Candidates: len(candidates)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for batchNo, lo := 0, 0; lo < len(candidates); batchNo, lo = batchNo+1, lo+e.cfg.BatchSize {
		hi := lo + e.cfg.BatchSize
		if hi > len(candidates) {
			hi = len(candidates)
		}
		batch := candidates[lo:hi]
		batchNo := batchNo
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matches, unmatched, err := e.runBatch(matcher, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FailedBatches++
				observability.Current().ObserveReconcileBatch("failed", len(batch), 0)
				e.log.Error("Reconciliation batch failed", "batch", batchNo, "size", len(batch), "error", err)
				return nil
			}
			res.Matches = append(res.Matches, matches...)
			res.Unmatched = append(res.Unmatched, unmatched...)
			observability.Current().ObserveReconcileBatch("succeeded", len(batch), len(matches))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	res.Duration = time.Since(start)
	e.log.Info("Reconciliation finished",
		"candidates", res.Candidates,
		"matched", len(res.Matches),
		"unmatched", len(res.Unmatched),
		"failed_batches", res.FailedBatches,
		"duration", res.Duration.String(),
	)
	return res, nil
}

func (e *Engine) runBatch(m *Matcher, batch []string) (matches []Match, unmatched []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches, unmatched = nil, nil
			err = fmt.Errorf("panic in reconciliation batch: %v", r)
		}
	}()
	for _, cand := range batch {
		if match, ok := e.matchFn(m, cand); ok {
			matches = append(matches, match)
			e.log.Debug("Candidate matched", "candidate", cand, "scraping_id", match.Record.ScrapingID, "similarity", match.Similarity)
			continue
		}
		unmatched = append(unmatched, cand)
	}
	return matches, unmatched, nil
}

// DedupeByRecord keeps one match per scraping id: the highest similarity, then the
// lexicographically smallest candidate. The output is sorted by scraping id.
func DedupeByRecord(matches []Match) []Match {
	best := make(map[int64]Match, len(matches))
	for _, m := range matches {
		if m.Record == nil {
			continue
		}
		id := m.Record.ScrapingID
		cur, ok := best[id]
		if !ok || m.Similarity > cur.Similarity || (m.Similarity == cur.Similarity && m.Candidate < cur.Candidate) {
			best[id] = m
		}
	}
	out := make([]Match, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.ScrapingID < out[j].Record.ScrapingID })
	return out
}
