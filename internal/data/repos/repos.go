package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/companysync-backend/internal/data/repos/companies"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

type ListingRepo = companies.ListingRepo
type CompanyRepo = companies.CompanyRepo
type ImageRepo = companies.ImageRepo
type RunLogRepo = companies.RunLogRepo
type ActorBatchRepo = companies.ActorBatchRepo

type ClassificationUpdate = companies.ClassificationUpdate

// Set groups every repository over one database handle.
type Set struct {
	Listings     ListingRepo
	Companies    CompanyRepo
	Images       ImageRepo
	RunLogs      RunLogRepo
	ActorBatches ActorBatchRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Listings:     companies.NewListingRepo(db, baseLog),
		Companies:    companies.NewCompanyRepo(db, baseLog),
		Images:       companies.NewImageRepo(db, baseLog),
		RunLogs:      companies.NewRunLogRepo(db, baseLog),
		ActorBatches: companies.NewActorBatchRepo(db, baseLog),
	}
}
