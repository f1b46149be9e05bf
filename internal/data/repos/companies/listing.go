package companies

import (
	"gorm.io/gorm"

	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

type ListingRepo interface {
	Create(dbc dbctx.Context, rows []*types.Listing) ([]*types.Listing, error)
	ListForIndex(dbc dbctx.Context, country string) ([]*types.Listing, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.Listing, error)
	ListUndownloaded(dbc dbctx.Context, limit int) ([]*types.Listing, error)
	MarkDownloaded(dbc dbctx.Context, ids []int64) (int64, error)
}

type listingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewListingRepo(db *gorm.DB, baseLog *logger.Logger) ListingRepo {
	return &listingRepo{
		db:  db,
		log: baseLog.With("repo", "ListingRepo"),
	}
}

func (r *listingRepo) Create(dbc dbctx.Context, rows []*types.Listing) ([]*types.Listing, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Listing{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).CreateInBatches(&rows, batchSize).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListForIndex returns every listing with a usable title, optionally restricted to one country.
func (r *listingRepo) ListForIndex(dbc dbctx.Context, country string) ([]*types.Listing, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Listing
	q := transaction.WithContext(dbc.Ctx).
		Where("title IS NOT NULL AND title <> ''")
	if country != "" {
		q = q.Where("country = ?", country)
	}
	if err := q.Order("scraping_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *listingRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.Listing, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []*types.Listing{}
	for _, chunk := range chunkIDs(ids, inChunkSize) {
		var part []*types.Listing
		if err := transaction.WithContext(dbc.Ctx).
			Where("scraping_id IN ?", chunk).
			Find(&part).Error; err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

// ListUndownloaded returns listings that have not been handed to the scraping actors yet.
func (r *listingRepo) ListUndownloaded(dbc dbctx.Context, limit int) ([]*types.Listing, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Listing
	q := transaction.WithContext(dbc.Ctx).
		Where("is_downloaded = ? AND link <> ''", false).
		Order("scraping_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *listingRepo) MarkDownloaded(dbc dbctx.Context, ids []int64) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var affected int64
	for _, chunk := range chunkIDs(ids, inChunkSize) {
		res := transaction.WithContext(dbc.Ctx).
			Model(&types.Listing{}).
			Where("scraping_id IN ?", chunk).
			Update("is_downloaded", true)
		if res.Error != nil {
			return affected, res.Error
		}
		affected += res.RowsAffected
	}
	return affected, nil
}

const (
	batchSize   = 500
	inChunkSize = 1000
)

func chunkIDs(ids []int64, size int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([][]int64, 0, len(ids)/size+1)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
