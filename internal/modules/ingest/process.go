package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/observability"
	"github.com/yungbote/companysync-backend/internal/pkg/httpx"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/gcp"
)

const maxImageBytes = 20 << 20

// Stats summarizes ingestion across batches.
type Stats struct {
	Batches         int
	BatchesPending  int
	BatchesFailed   int
	Pages           int
	CompaniesSaved  int64
	ImagesPlanned   int
	ImagesSkipped   int
	ImagesUploaded  int
	ImagesFailed    int
	ImagesInserted  int64
	PagesWithImages int
}

func (s *Stats) add(o Stats) {
	s.Pages += o.Pages
	s.CompaniesSaved += o.CompaniesSaved
	s.ImagesPlanned += o.ImagesPlanned
	s.ImagesSkipped += o.ImagesSkipped
	s.ImagesUploaded += o.ImagesUploaded
	s.ImagesFailed += o.ImagesFailed
	s.ImagesInserted += o.ImagesInserted
	s.PagesWithImages += o.PagesWithImages
}

// IngestPending processes every unprocessed batch in creation order. A batch whose runs
// are still going is left for later; a batch that fails is logged and left unprocessed.
func (u *Usecases) IngestPending(ctx context.Context) (Stats, error) {
	var stats Stats
	batches, err := u.deps.Batches.ListUnprocessed(dbctx.New(ctx))
	if err != nil {
		return stats, fmt.Errorf("list batches: %w", err)
	}
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Batches++
		bs, err := u.IngestBatch(ctx, b)
		stats.add(bs)
		switch {
		case errors.Is(err, ErrRunPending):
			stats.BatchesPending++
			u.log.Info("Batch not ready", "batch_id", b.ID, "error", err)
		case err != nil:
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.BatchesFailed++
			u.log.Error("Batch ingestion failed", "batch_id", b.ID, "error", err)
		}
	}
	u.log.Info("Ingestion finished",
		"batches", stats.Batches,
		"pending", stats.BatchesPending,
		"failed", stats.BatchesFailed,
		"companies_saved", stats.CompaniesSaved,
		"images_uploaded", stats.ImagesUploaded,
		"images_failed", stats.ImagesFailed,
	)
	return stats, nil
}

// IngestBatch reads both datasets of a batch, upserts the companies, uploads their images
// and marks the batch processed. Re-running a batch skips images already recorded.
func (u *Usecases) IngestBatch(ctx context.Context, b *types.ActorRunBatch) (Stats, error) {
	var stats Stats
	pages, err := u.collect(ctx, b.PageRunID)
	if err != nil {
		return stats, fmt.Errorf("page dataset: %w", err)
	}
	photoItems, err := u.collect(ctx, b.PhotosRunID)
	if err != nil {
		return stats, fmt.Errorf("photos dataset: %w", err)
	}

	now := u.now()
	var (
		parsed      []PageItem
		enrichments []types.CompanyEnrichment
	)
	for _, item := range pages {
		p, ok := ParsePageItem(item)
		if !ok {
			continue
		}
		parsed = append(parsed, p)
		enrichments = append(enrichments, p.Enrichment(now))
	}
	stats.Pages = len(parsed)

	dbc := dbctx.New(ctx)
	if len(enrichments) > 0 {
		saved, err := u.deps.Companies.UpsertEnrichment(dbc, enrichments)
		if err != nil {
			return stats, fmt.Errorf("upsert companies: %w", err)
		}
		stats.CompaniesSaved = saved
	}

	photos := GroupPhotos(photoItems)
	publicURL := func(key string) string { return u.deps.Bucket.GetPublicURL(gcp.BucketCategoryDest, key) }
	var tasks []ImageTask
	for _, p := range parsed {
		t := BuildImageTasks(p, photos[p.FacebookURL], publicURL, now)
		if len(t) > 0 {
			stats.PagesWithImages++
		}
		tasks = append(tasks, t...)
	}
	stats.ImagesPlanned = len(tasks)

	tasks, err = u.skipRecorded(dbc, tasks)
	if err != nil {
		return stats, err
	}
	stats.ImagesSkipped = stats.ImagesPlanned - len(tasks)

	uploaded, failed, err := u.uploadAll(ctx, tasks)
	stats.ImagesUploaded = len(uploaded)
	stats.ImagesFailed = failed
	if err != nil {
		return stats, err
	}
	if len(uploaded) > 0 {
		n, err := u.deps.Images.InsertMissing(dbc, uploaded)
		if err != nil {
			return stats, fmt.Errorf("record images: %w", err)
		}
		stats.ImagesInserted = n
	}

	if err := u.deps.Batches.MarkProcessed(dbc, b.ID); err != nil {
		return stats, fmt.Errorf("mark batch processed: %w", err)
	}
	u.log.Info("Batch ingested",
		"batch_id", b.ID,
		"pages", stats.Pages,
		"companies_saved", stats.CompaniesSaved,
		"images_uploaded", stats.ImagesUploaded,
		"images_failed", stats.ImagesFailed,
		"images_skipped", stats.ImagesSkipped,
	)
	return stats, nil
}

func (u *Usecases) collect(ctx context.Context, runID string) ([]map[string]any, error) {
	run, err := u.deps.Apify.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Terminal() {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunPending, runID, run.Status)
	}
	if run.DefaultDatasetID == "" {
		u.log.Warn("Run has no dataset", "run_id", runID, "status", run.Status)
		return nil, nil
	}
	var items []map[string]any
	err = u.deps.Apify.IterateDataset(ctx, run.DefaultDatasetID, func(item map[string]any) error {
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", run.DefaultDatasetID, err)
	}
	return items, nil
}

func (u *Usecases) skipRecorded(dbc dbctx.Context, tasks []ImageTask) ([]ImageTask, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	paths := make([]string, 0, len(tasks))
	for _, t := range tasks {
		paths = append(paths, t.Row.Path)
	}
	existing, err := u.deps.Images.ExistingPaths(dbc, paths)
	if err != nil {
		return nil, fmt.Errorf("check recorded images: %w", err)
	}
	out := tasks[:0]
	for _, t := range tasks {
		if _, ok := existing[t.Row.Path]; ok {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// uploadAll fetches and stores tasks on a bounded pool. Failed images are counted and
// dropped; only ctx cancellation is returned.
func (u *Usecases) uploadAll(ctx context.Context, tasks []ImageTask) ([]*types.CompanyImage, int, error) {
	var (
		mu       sync.Mutex
		uploaded []*types.CompanyImage
		failed   int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.DownloadWorkers)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			err := u.transfer(gctx, t)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed++
				observability.Current().IncIngestImage("failed")
				u.log.Warn("Image transfer failed", "scraping_id", t.Row.ScrapingID, "source", t.SourceURL, "error", err)
				return nil
			}
			observability.Current().IncIngestImage("uploaded")
			uploaded = append(uploaded, t.Row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uploaded, failed, err
	}
	return uploaded, failed, nil
}

func (u *Usecases) transfer(ctx context.Context, t ImageTask) error {
	data, err := u.download(ctx, t.SourceURL)
	if err != nil {
		return err
	}
	if err := u.deps.Bucket.UploadFile(dbctx.New(ctx), gcp.BucketCategoryDest, t.DestKey, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("upload %s: %w", t.DestKey, err)
	}
	return nil
}

// download fetches one source image, retrying once on a retryable failure.
func (u *Usecases) download(ctx context.Context, src string) ([]byte, error) {
	const attempts = 2
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := u.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		data, err := u.fetch(ctx, src)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || !httpx.IsRetryableError(err) || attempt == attempts {
			break
		}
		if err := httpx.Sleep(ctx, httpx.JitterSleep(500*time.Millisecond)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (u *Usecases) fetch(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", u.cfg.UserAgent)
	resp, err := u.deps.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpx.StatusError{Service: "image-source", StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty image body from %s", src)
	}
	if len(body) > maxImageBytes {
		return nil, fmt.Errorf("image from %s exceeds %d bytes", src, maxImageBytes)
	}
	return body, nil
}

func truncate(b []byte) string {
	if len(b) > 256 {
		b = b[:256]
	}
	return string(b)
}
