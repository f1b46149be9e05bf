package companies

import "time"

// Company is the destination record for a reconciled listing.
type Company struct {
	ScrapingID      int64      `gorm:"column:scraping_id;primaryKey;autoIncrement:false" json:"scraping_id"`
	Link            string     `gorm:"column:link" json:"link"`
	Country         string     `gorm:"column:country;index" json:"country"`
	Address         string     `gorm:"column:address" json:"address,omitempty"`
	Category        string     `gorm:"column:category" json:"category,omitempty"`
	Email           string     `gorm:"column:email" json:"email,omitempty"`
	Description     string     `gorm:"column:description" json:"description,omitempty"`
	Phone           string     `gorm:"column:phone" json:"phone,omitempty"`
	Title           string     `gorm:"column:title" json:"title"`
	Migrated        bool       `gorm:"column:migrated;not null;default:false;index" json:"migrated"`
	ImagesProcessed bool       `gorm:"column:images_processed;not null;default:false;index" json:"images_processed"`
	CreatedAt       *time.Time `gorm:"column:created_at;autoCreateTime:false;index" json:"created_at,omitempty"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Company) TableName() string { return "company" }

// CompanyFromListing copies the enrichment fields of a listing into a new destination row.
func CompanyFromListing(l *Listing) *Company {
	if l == nil {
		return nil
	}
	return &Company{
		ScrapingID:  l.ScrapingID,
		Link:        l.Link,
		Country:     l.Country,
		Address:     l.Address,
		Category:    l.Category,
		Email:       l.Email,
		Description: l.Description,
		Phone:       l.Phone,
		Title:       l.Title,
		CreatedAt:   l.CreatedAt,
	}
}

// CompanyEnrichment is the subset of company fields refreshed from a scraped page.
type CompanyEnrichment struct {
	ScrapingID  int64
	Link        string
	Country     string
	Address     string
	Category    string
	Email       string
	Description string
	Phone       string
	Title       string
	CreatedAt   time.Time
}

// Truncate clamps each field to its column budget.
func (e CompanyEnrichment) Truncate() CompanyEnrichment {
	e.Address = clip(e.Address, 500)
	e.Category = clip(e.Category, 200)
	e.Email = clip(e.Email, 100)
	e.Description = clip(e.Description, 1000)
	e.Phone = clip(e.Phone, 50)
	e.Title = clip(e.Title, 300)
	return e
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
