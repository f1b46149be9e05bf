package classify

import (
	"context"
	"fmt"

	"github.com/yungbote/companysync-backend/internal/data/repos"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

// Verifier re-counts an entity's pending images and closes it when none remain.
type Verifier struct {
	log       *logger.Logger
	images    repos.ImageRepo
	companies repos.CompanyRepo
}

func NewVerifier(log *logger.Logger, images repos.ImageRepo, companies repos.CompanyRepo) *Verifier {
	return &Verifier{log: log.With("component", "CompletionVerifier"), images: images, companies: companies}
}

// Verify reports whether scrapingID has no pending post images left, marking the
// company images_processed when that holds.
func (v *Verifier) Verify(ctx context.Context, scrapingID int64) (bool, error) {
	dbc := dbctx.New(ctx)
	pending, err := v.images.CountPending(dbc, scrapingID)
	if err != nil {
		return false, fmt.Errorf("count pending for %d: %w", scrapingID, err)
	}
	if pending > 0 {
		v.log.Warn("Entity still has pending images", "scraping_id", scrapingID, "pending", pending)
		return false, nil
	}
	if err := v.companies.MarkImagesProcessed(dbc, scrapingID); err != nil {
		return false, fmt.Errorf("mark images processed for %d: %w", scrapingID, err)
	}
	v.log.Info("Entity completed", "scraping_id", scrapingID)
	return true, nil
}
