package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/companysync-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Warehouse source
		&types.Listing{},
		// Destination
		&types.Company{},
		&types.CompanyImage{},
		// Ledgers
		&types.ClassificationRunLog{},
		&types.ActorRunBatch{},
	)
}

// EnsureQueueIndexes adds the partial index backing the pending-work selector.
// Only Postgres gets it; other dialects fall back to the plain column indexes.
func EnsureQueueIndexes(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_company_image_pending_post
		ON company_image (scraping_id, photo_id)
		WHERE image_type = 'post_image' AND is_construction IS NULL AND time_out = FALSE;
	`).Error; err != nil {
		return fmt.Errorf("create idx_company_image_pending_post: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_company_created_at_null
		ON company (scraping_id)
		WHERE created_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_company_created_at_null: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureQueueIndexes(s.db); err != nil {
		s.log.Error("Queue index migration failed", "error", err)
		return err
	}
	return nil
}
