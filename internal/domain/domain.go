package domain

import (
	"github.com/yungbote/companysync-backend/internal/domain/companies"
)

const (
	ImageTypeProfile = companies.ImageTypeProfile
	ImageTypeCover   = companies.ImageTypeCover
	ImageTypePost    = companies.ImageTypePost
)

type Listing = companies.Listing
type Company = companies.Company
type CompanyEnrichment = companies.CompanyEnrichment
type CompanyImage = companies.CompanyImage
type ClassificationRunLog = companies.ClassificationRunLog
type ActorRunBatch = companies.ActorRunBatch
