package objectstore_test

import (
	"testing"

	"pulsecam/internal/objectstore"
)

func TestObjectNameStripsBucket(t *testing.T) {
	cases := map[string]string{
		"images/img1.jpg":  "img1.jpg",
		"img1.jpg":         "img1.jpg",
		"/images/img1.jpg": "img1.jpg",
		"other/img1.jpg":   "other/img1.jpg",
	}
	for id, want := range cases {
		if got := objectstore.ObjectName(id, "images"); got != want {
			t.Fatalf("ObjectName(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestRemoteIDRoundTrip(t *testing.T) {
	id := objectstore.RemoteID("images", "img1.jpg")
	if id != "images/img1.jpg" {
		t.Fatalf("unexpected id %q", id)
	}
	if got := objectstore.ObjectName(id, "images"); got != "img1.jpg" {
		t.Fatalf("unexpected name %q", got)
	}
}

func TestBucketOr(t *testing.T) {
	if got := objectstore.BucketOr("  ", "images"); got != "images" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if got := objectstore.BucketOr("archive", "images"); got != "archive" {
		t.Fatalf("expected explicit bucket, got %q", got)
	}
}
