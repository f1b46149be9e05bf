package companies

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/companysync-backend/internal/domain"
	apperrors "github.com/yungbote/companysync-backend/internal/pkg/errors"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

// ClassificationUpdate carries the terminal fields written for a classified image.
type ClassificationUpdate struct {
	IsConstruction       bool
	ProductInformation   datatypes.JSON
	TokenInput           int
	TokenOutput          int
	ModelUsed            string
	ExecutionTimeSeconds int
	ProcessedAt          time.Time
}

type ImageRepo interface {
	ExistingPaths(dbc dbctx.Context, paths []string) (map[string]struct{}, error)
	InsertMissing(dbc dbctx.Context, rows []*types.CompanyImage) (int64, error)
	ListByScrapingID(dbc dbctx.Context, scrapingID int64) ([]*types.CompanyImage, error)

	ClaimNextPendingEntity(dbc dbctx.Context, workerID string, claimTTL time.Duration) (int64, []*types.CompanyImage, error)
	RefreshClaims(dbc dbctx.Context, scrapingID int64, workerID string) (int64, error)
	CountPending(dbc dbctx.Context, scrapingID int64) (int64, error)
	MarkTimedOut(dbc dbctx.Context, photoID int64) (bool, error)
	RecordClassification(dbc dbctx.Context, photoID int64, upd ClassificationUpdate) (bool, error)
	ReleaseClaims(dbc dbctx.Context, workerID string) (int64, error)
}

type imageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageRepo(db *gorm.DB, baseLog *logger.Logger) ImageRepo {
	return &imageRepo{
		db:  db,
		log: baseLog.With("repo", "ImageRepo"),
	}
}

// pendingPost restricts a query to post images with no classification and no timeout.
func pendingPost(db *gorm.DB) *gorm.DB {
	return db.Where(
		"image_type = ? AND is_construction IS NULL AND (time_out IS NULL OR time_out = ?)",
		types.ImageTypePost, false,
	)
}

// unresolved restricts a query to images without a terminal classification.
func unresolved(db *gorm.DB) *gorm.DB {
	return db.Where("is_construction IS NULL AND (time_out IS NULL OR time_out = ?)", false)
}

func (r *imageRepo) ExistingPaths(dbc dbctx.Context, paths []string) (map[string]struct{}, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[string]struct{}, len(paths))
	for start := 0; start < len(paths); start += inChunkSize {
		end := start + inChunkSize
		if end > len(paths) {
			end = len(paths)
		}
		var found []string
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.CompanyImage{}).
			Where("path IN ?", paths[start:end]).
			Pluck("path", &found).Error; err != nil {
			return nil, err
		}
		for _, p := range found {
			out[p] = struct{}{}
		}
	}
	return out, nil
}

// InsertMissing writes rows whose path is not stored yet. Conflicting rows are skipped.
func (r *imageRepo) InsertMissing(dbc dbctx.Context, rows []*types.CompanyImage) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return 0, nil
	}
	paths := make([]string, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			paths = append(paths, row.Path)
		}
	}
	existing, err := r.ExistingPaths(dbc, paths)
	if err != nil {
		return 0, err
	}
	fresh := make([]*types.CompanyImage, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row == nil || row.Path == "" {
			continue
		}
		if _, ok := existing[row.Path]; ok {
			continue
		}
		if _, ok := seen[row.Path]; ok {
			continue
		}
		seen[row.Path] = struct{}{}
		fresh = append(fresh, row)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&fresh, batchSize)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *imageRepo) ListByScrapingID(dbc dbctx.Context, scrapingID int64) ([]*types.CompanyImage, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.CompanyImage
	if err := transaction.WithContext(dbc.Ctx).
		Where("scraping_id = ?", scrapingID).
		Order("photo_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

const maxClaimAttempts = 5

// ClaimNextPendingEntity picks the lowest pending entity whose images are unclaimed (or whose
// claim went stale) and claims its pending post images for workerID with a conditional update.
// Returns apperrors.ErrNoPendingWork when nothing is claimable.
func (r *imageRepo) ClaimNextPendingEntity(dbc dbctx.Context, workerID string, claimTTL time.Duration) (int64, []*types.CompanyImage, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		now := time.Now().UTC()
		cutoff := now.Add(-claimTTL)
		claimable := func(db *gorm.DB) *gorm.DB {
			return db.Where(
				"(claimed_at IS NULL OR claimed_at < ? OR claimed_by = ?)",
				cutoff, workerID,
			)
		}

		var ids []int64
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.CompanyImage{}).
			Scopes(pendingPost, claimable).
			Group("scraping_id").
			Order("scraping_id ASC").
			Limit(1).
			Pluck("scraping_id", &ids).Error; err != nil {
			return 0, nil, err
		}
		if len(ids) == 0 {
			return 0, nil, apperrors.ErrNoPendingWork
		}
		scrapingID := ids[0]

		res := transaction.WithContext(dbc.Ctx).
			Model(&types.CompanyImage{}).
			Where("scraping_id = ?", scrapingID).
			Scopes(pendingPost, claimable).
			Updates(map[string]interface{}{
				"claimed_by": workerID,
				"claimed_at": now,
			})
		if res.Error != nil {
			return 0, nil, res.Error
		}
		if res.RowsAffected == 0 {
			// Another worker won the race for this entity.
			continue
		}

		var imgs []*types.CompanyImage
		if err := transaction.WithContext(dbc.Ctx).
			Where("scraping_id = ? AND claimed_by = ?", scrapingID, workerID).
			Scopes(pendingPost).
			Order("photo_id ASC").
			Find(&imgs).Error; err != nil {
			return 0, nil, err
		}
		r.log.Debug("Claimed entity", "scraping_id", scrapingID, "worker_id", workerID, "images", len(imgs))
		return scrapingID, imgs, nil
	}
	return 0, nil, apperrors.ErrNoPendingWork
}

// RefreshClaims moves claimed_at forward on the pending images of scrapingID that workerID
// still holds. Zero means the claim was lost or nothing is left to classify.
func (r *imageRepo) RefreshClaims(dbc dbctx.Context, scrapingID int64, workerID string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.CompanyImage{}).
		Where("scraping_id = ? AND claimed_by = ?", scrapingID, workerID).
		Scopes(pendingPost).
		Update("claimed_at", time.Now().UTC())
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *imageRepo) CountPending(dbc dbctx.Context, scrapingID int64) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.CompanyImage{}).
		Where("scraping_id = ?", scrapingID).
		Scopes(pendingPost).
		Count(&n).Error
	return n, err
}

// MarkTimedOut flags an unresolved image as timed out. Only time_out is written.
// Returns false when the image was already resolved.
func (r *imageRepo) MarkTimedOut(dbc dbctx.Context, photoID int64) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.CompanyImage{}).
		Where("photo_id = ?", photoID).
		Scopes(unresolved).
		Update("time_out", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecordClassification writes the terminal classification of an unresolved image.
// Returns false when the image was already resolved.
func (r *imageRepo) RecordClassification(dbc dbctx.Context, photoID int64, upd ClassificationUpdate) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	processedAt := upd.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	values := map[string]interface{}{
		"is_construction":        upd.IsConstruction,
		"token_input":            upd.TokenInput,
		"token_output":           upd.TokenOutput,
		"model_used":             upd.ModelUsed,
		"execution_time_seconds": upd.ExecutionTimeSeconds,
		"processed_ia_at":        processedAt,
	}
	if len(upd.ProductInformation) > 0 {
		values["product_information"] = upd.ProductInformation
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.CompanyImage{}).
		Where("photo_id = ?", photoID).
		Scopes(unresolved).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ReleaseClaims clears the claims workerID still holds on unresolved images.
func (r *imageRepo) ReleaseClaims(dbc dbctx.Context, workerID string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.CompanyImage{}).
		Where("claimed_by = ?", workerID).
		Scopes(unresolved).
		Updates(map[string]interface{}{
			"claimed_by": "",
			"claimed_at": nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
