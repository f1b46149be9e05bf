// Package gcptest provides an in-memory BucketService for tests.
package gcptest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/companysync-backend/internal/platform/dbctx"
	"github.com/yungbote/companysync-backend/internal/platform/gcp"
)

var ErrRefused = errors.New("operation refused")

type Bucket struct {
	mu      sync.Mutex
	objects map[gcp.BucketCategory]map[string][]byte
	failOn  map[string]bool
	copies  []string
	uploads []string
}

func NewBucket() *Bucket {
	return &Bucket{
		objects: map[gcp.BucketCategory]map[string][]byte{
			gcp.BucketCategorySource: {},
			gcp.BucketCategoryDest:   {},
		},
		failOn: map[string]bool{},
	}
}

// Put stores a placeholder object under key.
func (b *Bucket) Put(cat gcp.BucketCategory, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[cat][key] = []byte("img:" + key)
}

// FailOn makes existence checks of, copies from, and uploads to, key fail with ErrRefused.
func (b *Bucket) FailOn(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOn[key] = true
}

// Recover undoes FailOn for every key.
func (b *Bucket) Recover() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOn = map[string]bool{}
}

// Copies returns the destination keys written by CopyAcross, in call order.
func (b *Bucket) Copies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.copies...)
}

// Uploads returns the keys written by UploadFile, in call order.
func (b *Bucket) Uploads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.uploads...)
}

func (b *Bucket) Object(cat gcp.BucketCategory, key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[cat][key]
	return data, ok
}

func (b *Bucket) UploadFile(_ dbctx.Context, cat gcp.BucketCategory, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failOn[key] {
		return ErrRefused
	}
	b.objects[cat][key] = data
	b.uploads = append(b.uploads, key)
	return nil
}

func (b *Bucket) DownloadFile(_ context.Context, cat gcp.BucketCategory, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[cat][key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Bucket) Exists(_ context.Context, cat gcp.BucketCategory, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failOn[key] {
		return false, ErrRefused
	}
	_, ok := b.objects[cat][key]
	return ok, nil
}

func (b *Bucket) CopyAcross(dbc dbctx.Context, src gcp.BucketCategory, srcKey string, dst gcp.BucketCategory, dstKey string) error {
	b.mu.Lock()
	refused := b.failOn[srcKey]
	b.mu.Unlock()
	if refused {
		return ErrRefused
	}
	rc, err := b.DownloadFile(dbc.Ctx, src, srcKey)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[dst][dstKey] = data
	b.copies = append(b.copies, dstKey)
	return nil
}

func (b *Bucket) ListKeys(_ context.Context, cat gcp.BucketCategory, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects[cat] {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListPrefixes mirrors the delimiter listing of the real service: first-level folder
// names below prefix, sorted, without slashes.
func (b *Bucket) ListPrefixes(_ context.Context, cat gcp.BucketCategory, prefix string) ([]string, error) {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := map[string]struct{}{}
	for k := range b.objects[cat] {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		i := strings.Index(rest, "/")
		if i <= 0 {
			continue
		}
		seen[rest[:i]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Bucket) GetPublicURL(cat gcp.BucketCategory, key string) string {
	return "https://storage.googleapis.com/" + string(cat) + "/" + key
}

var _ gcp.BucketService = (*Bucket)(nil)
