package companies

import (
	"time"

	"github.com/google/uuid"
)

// ClassificationRunLog summarizes one classification run.
type ClassificationRunLog struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CompaniesProcessed int       `gorm:"column:companies_processed;not null;default:0" json:"companies_processed"`
	TotalImages        int       `gorm:"column:total_images;not null;default:0" json:"total_images"`
	ConstructionImages int       `gorm:"column:construction_images;not null;default:0" json:"construction_images"`
	SuccessfulImages   int       `gorm:"column:successful_images;not null;default:0" json:"successful_images"`
	FailedImages       int       `gorm:"column:failed_images;not null;default:0" json:"failed_images"`
	TimedOutImages     int       `gorm:"column:timed_out_images;not null;default:0" json:"timed_out_images"`
	StartTime          time.Time `gorm:"column:start_time;not null;index" json:"start_time"`
	EndTime            time.Time `gorm:"column:end_time;not null" json:"end_time"`
	ModelUsed          string    `gorm:"column:model_used" json:"model_used"`
}

func (ClassificationRunLog) TableName() string { return "classification_run_log" }

// ActorRunBatch records a pair of scraping-actor runs launched together.
type ActorRunBatch struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PhotosRunID  string     `gorm:"column:photos_run_id;not null" json:"photos_run_id"`
	PageRunID    string     `gorm:"column:page_run_id;not null" json:"page_run_id"`
	CompanyCount int        `gorm:"column:company_count;not null;default:0" json:"company_count"`
	Processed    bool       `gorm:"column:processed;not null;default:false;index" json:"processed"`
	CreatedAt    time.Time  `gorm:"column:created_at;not null;autoCreateTime;index" json:"created_at"`
	ProcessedAt  *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
}

func (ActorRunBatch) TableName() string { return "actor_run_batch" }
