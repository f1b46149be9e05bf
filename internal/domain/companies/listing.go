package companies

import "time"

// Listing is a canonical warehouse record. It is the reconciliation index source and the
// origin row for company migration.
type Listing struct {
	ScrapingID   int64      `gorm:"column:scraping_id;primaryKey;autoIncrement:false" json:"scraping_id"`
	Link         string     `gorm:"column:link" json:"link"`
	Country      string     `gorm:"column:country;index" json:"country"`
	Address      string     `gorm:"column:address" json:"address,omitempty"`
	Category     string     `gorm:"column:category" json:"category,omitempty"`
	Email        string     `gorm:"column:email" json:"email,omitempty"`
	Description  string     `gorm:"column:description" json:"description,omitempty"`
	Phone        string     `gorm:"column:phone" json:"phone,omitempty"`
	Title        string     `gorm:"column:title;index" json:"title"`
	IsDownloaded bool       `gorm:"column:is_downloaded;not null;default:false;index" json:"is_downloaded"`
	CreatedAt    *time.Time `gorm:"column:created_at;autoCreateTime:false;index" json:"created_at,omitempty"`
}

func (Listing) TableName() string { return "listing" }
