package media

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	types "github.com/yungbote/companysync-backend/internal/domain"
	"github.com/yungbote/companysync-backend/internal/domain/companies"
)

const (
	bannerName = "Banner.jpg"
	logoName   = "Logo.jpg"
	postsDir   = "Posts/"
	postPrefix = "Post"
)

// Object is one source object and the destination it is copied to.
type Object struct {
	SourceKey string
	DestKey   string
	ImageType string
	Slot      string
}

// FolderKey is the source prefix of an entity's folder, always ending in "/".
func FolderKey(sourcePrefix, folder string) string {
	p := strings.Trim(sourcePrefix, "/")
	f := strings.Trim(folder, "/")
	if p == "" {
		return f + "/"
	}
	return p + "/" + f + "/"
}

// Destination object names. They depend only on the company and the slot.
func CoverKey(scrapingID int64) string { return fmt.Sprintf("%d_cover_image.jpg", scrapingID) }
func ProfileKey(scrapingID int64) string { return fmt.Sprintf("%d_profile_image.jpg", scrapingID) }
func PostKey(scrapingID int64, n int) string {
	return fmt.Sprintf("%d_image%d.jpg", scrapingID, n)
}

func CoverObject(folderKey string, scrapingID int64) Object {
	return Object{
		SourceKey: folderKey + bannerName,
		DestKey:   CoverKey(scrapingID),
		ImageType: types.ImageTypeCover,
		Slot:      companies.SlotCover,
	}
}

func ProfileObject(folderKey string, scrapingID int64) Object {
	return Object{
		SourceKey: folderKey + logoName,
		DestKey:   ProfileKey(scrapingID),
		ImageType: types.ImageTypeProfile,
		Slot:      companies.SlotProfile,
	}
}

func PostsPrefix(folderKey string) string { return folderKey + postsDir }

// PostObjects keeps the keys whose base name looks like Post<N>.jpg|.jpeg|.png, orders
// them by N (unnumbered names last, by name) and assigns destination ordinals 1..k.
// The source naming only decides order; destination names never depend on it.
func PostObjects(keys []string, scrapingID int64) []Object {
	type post struct {
		key string
		num int
		ok  bool
	}
	var posts []post
	for _, k := range keys {
		base := path.Base(k)
		if !strings.HasPrefix(base, postPrefix) || !isImageName(base) {
			continue
		}
		n, ok := postNumber(base)
		posts = append(posts, post{key: k, num: n, ok: ok})
	}
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.ok != b.ok {
			return a.ok
		}
		if a.ok && a.num != b.num {
			return a.num < b.num
		}
		return a.key < b.key
	})

	out := make([]Object, 0, len(posts))
	for i, p := range posts {
		n := i + 1
		out = append(out, Object{
			SourceKey: p.key,
			DestKey:   PostKey(scrapingID, n),
			ImageType: types.ImageTypePost,
			Slot:      companies.PostSlot(n),
		})
	}
	return out
}

func isImageName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func postNumber(base string) (int, bool) {
	stem := strings.TrimSuffix(base, path.Ext(base))
	digits := strings.TrimPrefix(stem, postPrefix)
	digits = strings.TrimLeft(digits, " _-")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
