package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/domain/companies"
)

func SeedListing(tb testing.TB, ctx context.Context, tx *gorm.DB, id int64, title string) *types.Listing {
	tb.Helper()
	l := &types.Listing{
		ScrapingID: id,
		Link:       fmt.Sprintf("https://www.facebook.com/page%d", id),
		Country:    "CL",
		Title:      title,
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed listing: %v", err)
	}
	return l
}

func SeedCompany(tb testing.TB, ctx context.Context, tx *gorm.DB, id int64, title string) *types.Company {
	tb.Helper()
	c := &types.Company{
		ScrapingID: id,
		Link:       fmt.Sprintf("https://www.facebook.com/page%d", id),
		Country:    "CL",
		Title:      title,
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed company: %v", err)
	}
	return c
}

// SeedPostImage stores the n-th post image of a company in the pending state.
func SeedPostImage(tb testing.TB, ctx context.Context, tx *gorm.DB, scrapingID int64, n int) *types.CompanyImage {
	tb.Helper()
	img := &types.CompanyImage{
		PhotoID:    companies.PhotoID(scrapingID, companies.PostSlot(n)),
		ScrapingID: scrapingID,
		Country:    "CL",
		Path:       fmt.Sprintf("https://storage.googleapis.com/dest/CL/%d_image%d.jpg", scrapingID, n),
		ImageType:  types.ImageTypePost,
		CreatedAt:  time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(img).Error; err != nil {
		tb.Fatalf("seed post image: %v", err)
	}
	return img
}

// SeedImage stores an image of any type with an explicit creation time.
func SeedImage(tb testing.TB, ctx context.Context, tx *gorm.DB, scrapingID int64, imageType, slot string, createdAt time.Time) *types.CompanyImage {
	tb.Helper()
	img := &types.CompanyImage{
		PhotoID:    companies.PhotoID(scrapingID, slot),
		ScrapingID: scrapingID,
		Country:    "CL",
		Path:       fmt.Sprintf("https://storage.googleapis.com/dest/CL/%d_%s.jpg", scrapingID, slot),
		ImageType:  imageType,
		CreatedAt:  createdAt,
	}
	if err := tx.WithContext(ctx).Create(img).Error; err != nil {
		tb.Fatalf("seed image: %v", err)
	}
	return img
}
