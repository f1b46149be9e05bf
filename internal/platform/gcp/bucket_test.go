package gcp

import "testing"

func TestGetPublicURLDefault(t *testing.T) {
	bs := &bucketService{destBucket: bucketConfig{name: "dest-bucket"}}

	got := bs.GetPublicURL(BucketCategoryDest, "123_cover_image.jpg")
	want := "https://storage.googleapis.com/dest-bucket/123_cover_image.jpg"
	if got != want {
		t.Fatalf("GetPublicURL: want=%q got=%q", want, got)
	}
}

func TestGetPublicURLUsesCDNDomain(t *testing.T) {
	bs := &bucketService{destBucket: bucketConfig{name: "dest-bucket", cdnDomain: "cdn.example.com"}}

	got := bs.GetPublicURL(BucketCategoryDest, "/123_image1.jpg")
	want := "https://cdn.example.com/123_image1.jpg"
	if got != want {
		t.Fatalf("GetPublicURL: want=%q got=%q", want, got)
	}
}

func TestGetPublicURLUsesPublicBaseURL(t *testing.T) {
	bs := &bucketService{
		publicBaseURL: "http://localhost:4443",
		destBucket:    bucketConfig{name: "dest-bucket"},
	}

	got := bs.GetPublicURL(BucketCategoryDest, "123_image1.jpg")
	want := "http://localhost:4443/dest-bucket/123_image1.jpg"
	if got != want {
		t.Fatalf("GetPublicURL: want=%q got=%q", want, got)
	}
}

func TestGetPublicURLUsesEmulatorMediaEndpoint(t *testing.T) {
	bs := &bucketService{
		storageMode:   StorageModeEmulator,
		publicBaseURL: "http://localhost:4443",
		destBucket:    bucketConfig{name: "dest-bucket"},
	}

	got := bs.GetPublicURL(BucketCategoryDest, "CL/123_image1.jpg")
	want := "http://localhost:4443/storage/v1/b/dest-bucket/o/CL%2F123_image1.jpg?alt=media"
	if got != want {
		t.Fatalf("GetPublicURL: want=%q got=%q", want, got)
	}
}

func TestGetBucketConfigRejectsUnconfiguredCategory(t *testing.T) {
	bs := &bucketService{destBucket: bucketConfig{name: "dest-bucket"}}

	if _, err := bs.getBucketConfig(BucketCategorySource); err == nil {
		t.Fatalf("expected error for unconfigured source bucket")
	}
	if _, err := bs.getBucketConfig(BucketCategory("other")); err == nil {
		t.Fatalf("expected error for unknown category")
	}
	if got := bs.GetPublicURL(BucketCategorySource, "k"); got != "k" {
		t.Fatalf("GetPublicURL fallback: want=%q got=%q", "k", got)
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"a.jpg":       "image/jpeg",
		"a.JPEG":      "image/jpeg",
		"a.png":       "image/png",
		"a.webp?x=1":  "image/webp",
		"Posts/Post1": "",
		"anim.gif":    "image/gif",
	}
	for key, want := range cases {
		if got := contentTypeForKey(key); got != want {
			t.Fatalf("contentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}
