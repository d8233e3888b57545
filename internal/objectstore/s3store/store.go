// Package s3store implements objectstore.Store against an S3-compatible
// endpoint such as MinIO.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"pulsecam/internal/logging"
	"pulsecam/internal/objectstore"
)

const probePrefix = ".pulsecam-probe-"

// Options holds connection parameters.
type Options struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	HTTPSEnabled bool
	Bucket       string
}

// api is the subset of the S3 client the store calls.
type api interface {
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) api {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Store uploads captures to a bucket.
type Store struct {
	client api
	bucket string
	logger *slog.Logger
}

var (
	_ objectstore.Store     = (*Store)(nil)
	_ objectstore.Validator = (*Store)(nil)
)

// New builds a path-style S3 client with static credentials.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3 store: bucket required")
	}
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3 store: load aws config: %w", err)
	}
	endpoint := endpointURL(opts.Endpoint, opts.HTTPSEnabled)
	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return newWithClient(client, opts.Bucket, logger), nil
}

func newWithClient(client api, bucket string, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		logger: logging.NewComponentLogger(logger, "s3-store"),
	}
}

func endpointURL(endpoint string, https bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if https {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Validate confirms the bucket exists and accepts a write and a delete.
func (s *Store) Validate(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("s3 store: bucket %q not reachable: %w", s.bucket, err)
	}
	key := probePrefix + uuid.NewString()
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader("probe"),
	}); err != nil {
		return fmt.Errorf("s3 store: probe upload to %q: %w", s.bucket, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 store: probe delete from %q: %w", s.bucket, err)
	}
	s.logger.Debug("object store validated", logging.String(logging.FieldBucket, s.bucket))
	return nil
}

// Upload stores localPath under its base name.
func (s *Store) Upload(ctx context.Context, localPath, bucket string) (string, error) {
	bucket = objectstore.BucketOr(bucket, s.bucket)
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("s3 store: open %s: %w", localPath, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("s3 store: stat %s: %w", localPath, err)
	}

	name := filepath.Base(localPath)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(name),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("s3 store: upload %s to %s: %w", name, bucket, err)
	}
	return objectstore.RemoteID(bucket, name), nil
}

// Download writes the object to destPath.
func (s *Store) Download(ctx context.Context, id, destPath, bucket string) error {
	bucket = objectstore.BucketOr(bucket, s.bucket)
	name := objectstore.ObjectName(id, bucket)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return fmt.Errorf("s3 store: %s/%s: %w", bucket, name, objectstore.ErrNotFound)
		}
		return fmt.Errorf("s3 store: get %s/%s: %w", bucket, name, err)
	}
	defer out.Body.Close()

	if dir := filepath.Dir(destPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("s3 store: create %s: %w", dir, err)
		}
	}
	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("s3 store: create %s: %w", destPath, err)
	}
	if _, err := io.Copy(dest, out.Body); err != nil {
		dest.Close()
		return fmt.Errorf("s3 store: write %s: %w", destPath, err)
	}
	return dest.Close()
}

// Delete removes one object.
func (s *Store) Delete(ctx context.Context, id, bucket string) error {
	bucket = objectstore.BucketOr(bucket, s.bucket)
	name := objectstore.ObjectName(id, bucket)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	}); err != nil {
		return fmt.Errorf("s3 store: delete %s/%s: %w", bucket, name, err)
	}
	return nil
}

// List returns every object in the bucket across all result pages.
func (s *Store) List(ctx context.Context, bucket string) ([]objectstore.Object, error) {
	bucket = objectstore.BucketOr(bucket, s.bucket)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	var objects []objectstore.Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 store: list %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasPrefix(key, probePrefix) {
				continue
			}
			objects = append(objects, objectstore.Object{
				ID:           key,
				LastModified: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}
