package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/domain/companies"
	"github.com/yungbote/companysync-backend/internal/modules/media"
)

const defaultCountry = "Mexico"

// PageItem is one scraped page as the page actor returns it.
type PageItem struct {
	ScrapingID  int64
	FacebookURL string
	Address     string
	Category    string
	Email       string
	Intro       string
	Phone       string
	Title       string
	ProfileURL  string
	CoverURL    string
	Country     string
}

// ParsePageItem maps a raw dataset item. Items without a usable id_scraping are dropped.
func ParsePageItem(item map[string]any) (PageItem, bool) {
	userData, _ := item["userData"].(map[string]any)
	id, ok := scrapingID(item["id_scraping"])
	if !ok && userData != nil {
		id, ok = scrapingID(userData["id_scraping"])
	}
	if !ok {
		return PageItem{}, false
	}
	country := str(item["country"])
	if country == "" && userData != nil {
		country = str(userData["country"])
	}
	return PageItem{
		ScrapingID:  id,
		FacebookURL: str(item["facebookUrl"]),
		Address:     str(item["address"]),
		Category:    str(item["category"]),
		Email:       str(item["email"]),
		Intro:       str(item["intro"]),
		Phone:       str(item["phone"]),
		Title:       str(item["title"]),
		ProfileURL:  str(item["profilePictureUrl"]),
		CoverURL:    str(item["coverPhotoUrl"]),
		Country:     capitalize(country),
	}, true
}

// Enrichment is the truncated company update carried by the page.
func (p PageItem) Enrichment(now time.Time) types.CompanyEnrichment {
	return types.CompanyEnrichment{
		ScrapingID:  p.ScrapingID,
		Link:        p.FacebookURL,
		Country:     p.Country,
		Address:     p.Address,
		Category:    p.Category,
		Email:       p.Email,
		Description: p.Intro,
		Phone:       p.Phone,
		Title:       p.Title,
		CreatedAt:   now,
	}.Truncate()
}

// GroupPhotos buckets photo items by page URL, keeping dataset order within each page.
func GroupPhotos(items []map[string]any) map[string][]string {
	out := make(map[string][]string)
	for _, item := range items {
		page := str(item["facebookUrl"])
		if page == "" {
			continue
		}
		out[page] = append(out[page], str(item["image"]))
	}
	return out
}

// ImageTask is one image to fetch from its source URL and store under DestKey.
type ImageTask struct {
	Row       *types.CompanyImage
	SourceURL string
	DestKey   string
}

// BuildImageTasks lists profile, cover and post images for a page. Post ordinals follow
// the photo dataset order, counting entries with an empty URL so later posts keep their number.
func BuildImageTasks(p PageItem, photos []string, publicURL func(key string) string, now time.Time) []ImageTask {
	var out []ImageTask
	add := func(slot, imageType, key, src string) {
		if src == "" {
			return
		}
		out = append(out, ImageTask{
			Row: &types.CompanyImage{
				PhotoID:    companies.PhotoID(p.ScrapingID, slot),
				ScrapingID: p.ScrapingID,
				Country:    p.Country,
				Path:       publicURL(key),
				SourceURL:  src,
				ImageType:  imageType,
				CreatedAt:  now,
			},
			SourceURL: src,
			DestKey:   key,
		})
	}
	add(companies.SlotProfile, types.ImageTypeProfile, media.ProfileKey(p.ScrapingID), p.ProfileURL)
	add(companies.SlotCover, types.ImageTypeCover, media.CoverKey(p.ScrapingID), p.CoverURL)
	for i, src := range photos {
		n := i + 1
		add(companies.PostSlot(n), types.ImageTypePost, media.PostKey(p.ScrapingID, n), src)
	}
	return out
}

func scrapingID(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return 0, false
		}
		return int64(t), true
	case int64:
		return t, t > 0
	case int:
		return int64(t), t > 0
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// capitalize upper-cases the first letter and lower-cases the rest ("COSTA RICA" -> "Costa rica").
func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultCountry
	}
	r := []rune(strings.ToLower(s))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
