package companies

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

type CompanyRepo interface {
	ExistingScrapingIDs(dbc dbctx.Context, ids []int64) (map[int64]struct{}, error)
	InsertMissing(dbc dbctx.Context, rows []*types.Company) (int64, error)
	UpsertEnrichment(dbc dbctx.Context, rows []types.CompanyEnrichment) (int64, error)
	GetByID(dbc dbctx.Context, id int64) (*types.Company, error)
	Count(dbc dbctx.Context) (int64, error)
	MarkMigrated(dbc dbctx.Context, ids []int64) (int64, error)
	MarkImagesProcessed(dbc dbctx.Context, id int64) error
	BackfillCreatedAt(dbc dbctx.Context, dryRun bool) (int64, error)
}

type companyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCompanyRepo(db *gorm.DB, baseLog *logger.Logger) CompanyRepo {
	return &companyRepo{
		db:  db,
		log: baseLog.With("repo", "CompanyRepo"),
	}
}

func (r *companyRepo) ExistingScrapingIDs(dbc dbctx.Context, ids []int64) (map[int64]struct{}, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := make(map[int64]struct{}, len(ids))
	for _, chunk := range chunkIDs(ids, inChunkSize) {
		var found []int64
		if err := transaction.WithContext(dbc.Ctx).
			Model(&types.Company{}).
			Where("scraping_id IN ?", chunk).
			Pluck("scraping_id", &found).Error; err != nil {
			return nil, err
		}
		for _, id := range found {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

type companyStagingRow struct {
	ScrapingID  int64      `gorm:"column:scraping_id"`
	Link        string     `gorm:"column:link"`
	Country     string     `gorm:"column:country"`
	Address     string     `gorm:"column:address"`
	Category    string     `gorm:"column:category"`
	Email       string     `gorm:"column:email"`
	Description string     `gorm:"column:description"`
	Phone       string     `gorm:"column:phone"`
	Title       string     `gorm:"column:title"`
	CreatedAt   *time.Time `gorm:"column:created_at;autoCreateTime:false"`
}

const companyStagingDDL = `CREATE TEMPORARY TABLE %s (
	scraping_id BIGINT NOT NULL,
	link TEXT,
	country TEXT,
	address TEXT,
	category TEXT,
	email TEXT,
	description TEXT,
	phone TEXT,
	title TEXT,
	created_at TIMESTAMPTZ
)`

const companyMergeSQL = `INSERT INTO company
	(scraping_id, link, country, address, category, email, description, phone, title, migrated, images_processed, created_at, updated_at)
SELECT scraping_id, link, country, address, category, email, description, phone, title, FALSE, FALSE, created_at, ?
FROM %s
WHERE TRUE
ON CONFLICT (scraping_id) DO NOTHING`

// InsertMissing bulk-loads rows into a staging table and merges them into company,
// inserting only keys that are absent. Returns the number of inserted rows.
func (r *companyRepo) InsertMissing(dbc dbctx.Context, rows []*types.Company) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	staged := make([]companyStagingRow, 0, len(rows))
	for _, c := range rows {
		if c == nil || c.ScrapingID == 0 {
			continue
		}
		staged = append(staged, companyStagingRow{
			ScrapingID:  c.ScrapingID,
			Link:        c.Link,
			Country:     c.Country,
			Address:     c.Address,
			Category:    c.Category,
			Email:       c.Email,
			Description: c.Description,
			Phone:       c.Phone,
			Title:       c.Title,
			CreatedAt:   c.CreatedAt,
		})
	}
	if len(staged) == 0 {
		return 0, nil
	}

	staging := fmt.Sprintf("company_staging_%d", time.Now().UnixNano())
	var inserted int64
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Exec(fmt.Sprintf(companyStagingDDL, staging)).Error; err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}
		if err := txx.Table(staging).CreateInBatches(&staged, batchSize).Error; err != nil {
			return fmt.Errorf("load staging table: %w", err)
		}
		res := txx.Exec(fmt.Sprintf(companyMergeSQL, staging), time.Now().UTC())
		if res.Error != nil {
			return fmt.Errorf("merge staging into company: %w", res.Error)
		}
		inserted = res.RowsAffected
		if err := txx.Exec("DROP TABLE " + staging).Error; err != nil {
			return fmt.Errorf("drop staging table: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.log.Debug("Merged companies", "staged", len(staged), "inserted", inserted)
	return inserted, nil
}

// UpsertEnrichment inserts companies seen for the first time and refreshes the scraped
// fields of existing ones. Flags are never touched.
func (r *companyRepo) UpsertEnrichment(dbc dbctx.Context, rows []types.CompanyEnrichment) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	batch := make([]*types.Company, 0, len(rows))
	for _, e := range rows {
		if e.ScrapingID == 0 {
			continue
		}
		e = e.Truncate()
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		batch = append(batch, &types.Company{
			ScrapingID:  e.ScrapingID,
			Link:        e.Link,
			Country:     e.Country,
			Address:     e.Address,
			Category:    e.Category,
			Email:       e.Email,
			Description: e.Description,
			Phone:       e.Phone,
			Title:       e.Title,
			CreatedAt:   &createdAt,
			UpdatedAt:   now,
		})
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "scraping_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"address", "category", "email", "description", "phone", "title", "created_at", "updated_at",
			}),
		}).
		CreateInBatches(&batch, batchSize)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *companyRepo) GetByID(dbc dbctx.Context, id int64) (*types.Company, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var c types.Company
	err := transaction.WithContext(dbc.Ctx).
		Where("scraping_id = ?", id).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *companyRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).Model(&types.Company{}).Count(&n).Error
	return n, err
}

func (r *companyRepo) MarkMigrated(dbc dbctx.Context, ids []int64) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var affected int64
	for _, chunk := range chunkIDs(ids, inChunkSize) {
		res := transaction.WithContext(dbc.Ctx).
			Model(&types.Company{}).
			Where("scraping_id IN ?", chunk).
			Updates(map[string]interface{}{
				"migrated":   true,
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return affected, res.Error
		}
		affected += res.RowsAffected
	}
	return affected, nil
}

func (r *companyRepo) MarkImagesProcessed(dbc dbctx.Context, id int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Company{}).
		Where("scraping_id = ?", id).
		Updates(map[string]interface{}{
			"images_processed": true,
			"updated_at":       time.Now().UTC(),
		}).Error
}

const backfillWhere = `created_at IS NULL
	AND EXISTS (SELECT 1 FROM company_image ci WHERE ci.scraping_id = company.scraping_id)`

// BackfillCreatedAt copies the earliest image timestamp into companies that have none.
// With dryRun it only counts the rows that would change.
func (r *companyRepo) BackfillCreatedAt(dbc dbctx.Context, dryRun bool) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if dryRun {
		var n int64
		err := transaction.WithContext(dbc.Ctx).
			Model(&types.Company{}).
			Where(backfillWhere).
			Count(&n).Error
		return n, err
	}
	res := transaction.WithContext(dbc.Ctx).Exec(`
		UPDATE company
		SET created_at = (
			SELECT MIN(ci.created_at) FROM company_image ci WHERE ci.scraping_id = company.scraping_id
		)
		WHERE ` + backfillWhere)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
