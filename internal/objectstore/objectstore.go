// Package objectstore defines the remote blob capability the daemon uploads
// captures to and evicts from.
//
// Upload stores a file under its base name and returns "bucket/name". List
// and Delete speak in object names. An empty bucket argument always means
// the store's configured default bucket.
package objectstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Object is one entry of a bucket listing.
type Object struct {
	ID           string
	LastModified time.Time
	Size         int64
}

// Store is the object-store capability.
type Store interface {
	Upload(ctx context.Context, localPath, bucket string) (string, error)
	Download(ctx context.Context, id, destPath, bucket string) error
	Delete(ctx context.Context, id, bucket string) error
	List(ctx context.Context, bucket string) ([]Object, error)
}

// Validator is implemented by stores that can prove they are usable before
// the daemon starts.
type Validator interface {
	Validate(ctx context.Context) error
}

// ErrNotFound reports a missing object.
var ErrNotFound = errors.New("object not found")

// RemoteID joins bucket and object name the way Upload reports them.
func RemoteID(bucket, name string) string {
	return bucket + "/" + name
}

// ObjectName strips a leading "bucket/" from id so both upload identifiers
// and plain names address the same object.
func ObjectName(id, bucket string) string {
	id = strings.TrimPrefix(id, "/")
	if bucket != "" {
		if rest, ok := strings.CutPrefix(id, bucket+"/"); ok {
			return rest
		}
	}
	return id
}

// BucketOr returns bucket or fallback when bucket is blank.
func BucketOr(bucket, fallback string) string {
	if b := strings.TrimSpace(bucket); b != "" {
		return b
	}
	return fallback
}
