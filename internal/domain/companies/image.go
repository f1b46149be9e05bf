package companies

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ImageTypeProfile = "profile_image"
	ImageTypeCover   = "cover_image"
	ImageTypePost    = "post_image"
)

// CompanyImage is one migrated image. Classification fields are written exactly once.
type CompanyImage struct {
	PhotoID              int64          `gorm:"column:photo_id;primaryKey;autoIncrement:false" json:"photo_id"`
	ScrapingID           int64          `gorm:"column:scraping_id;not null;index" json:"scraping_id"`
	Country              string         `gorm:"column:country" json:"country"`
	Path                 string         `gorm:"column:path;not null;uniqueIndex" json:"path"`
	SourceURL            string         `gorm:"column:source_url" json:"source_url,omitempty"`
	ImageType            string         `gorm:"column:image_type;not null;index" json:"image_type"`
	IsConstruction       *bool          `gorm:"column:is_construction;index" json:"is_construction,omitempty"`
	ProductInformation   datatypes.JSON `gorm:"column:product_information;type:jsonb" json:"product_information,omitempty"`
	TimeOut              bool           `gorm:"column:time_out;not null;default:false;index" json:"time_out"`
	TokenInput           int            `gorm:"column:token_input;not null;default:0" json:"token_input"`
	TokenOutput          int            `gorm:"column:token_output;not null;default:0" json:"token_output"`
	ModelUsed            string         `gorm:"column:model_used" json:"model_used,omitempty"`
	ExecutionTimeSeconds int            `gorm:"column:execution_time_seconds;not null;default:0" json:"execution_time_seconds"`
	ProcessedIAAt        *time.Time     `gorm:"column:processed_ia_at" json:"processed_ia_at,omitempty"`
	ClaimedBy            string         `gorm:"column:claimed_by;index" json:"claimed_by,omitempty"`
	ClaimedAt            *time.Time     `gorm:"column:claimed_at;index" json:"claimed_at,omitempty"`
	CreatedAt            time.Time      `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
}

func (CompanyImage) TableName() string { return "company_image" }

// Classified reports whether the image reached a terminal state.
func (img *CompanyImage) Classified() bool {
	return img != nil && (img.IsConstruction != nil || img.TimeOut)
}
