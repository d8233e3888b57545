// Package sqlitestore keeps objects in a local SQLite database. It serves
// offline installs that have no S3 endpoint and backs the CLI tests.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pulsecam/internal/clock"
	"pulsecam/internal/objectstore"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible build.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store is an objectstore.Store persisted in SQLite.
type Store struct {
	db     *sql.DB
	path   string
	bucket string
	clock  clock.Clock
}

var (
	_ objectstore.Store     = (*Store)(nil)
	_ objectstore.Validator = (*Store)(nil)
)

// Open creates or opens the database at dbPath and ensures the default
// bucket exists.
func Open(ctx context.Context, dbPath, bucket string, clk clock.Clock) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, bucket: bucket, clock: clock.OrSystem(clk)}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.ensureBucket(ctx, bucket); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate it)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO buckets (name, created_at) VALUES (?, ?)",
		bucket, s.timestamp())
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.clock.Now().UTC().Format(time.RFC3339Nano)
}

// Validate confirms the database answers queries and the default bucket exists.
func (s *Store) Validate(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM buckets WHERE name = ?", s.bucket).Scan(&n); err != nil {
		return fmt.Errorf("sqlite store: query buckets: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite store: bucket %q missing", s.bucket)
	}
	return nil
}

// Upload copies localPath into the bucket under its base name, replacing
// any previous object of that name.
func (s *Store) Upload(ctx context.Context, localPath, bucket string) (string, error) {
	bucket = objectstore.BucketOr(bucket, s.bucket)
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("sqlite store: read %s: %w", localPath, err)
	}
	if err := s.ensureBucket(ctx, bucket); err != nil {
		return "", err
	}
	name := filepath.Base(localPath)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO objects (bucket, name, data, size, modified_at) VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(bucket, name) DO UPDATE SET data = excluded.data, size = excluded.size, modified_at = excluded.modified_at`,
		bucket, name, data, len(data), s.timestamp())
	if err != nil {
		return "", fmt.Errorf("sqlite store: insert %s/%s: %w", bucket, name, err)
	}
	return objectstore.RemoteID(bucket, name), nil
}

// Download writes the object's bytes to destPath.
func (s *Store) Download(ctx context.Context, id, destPath, bucket string) error {
	bucket = objectstore.BucketOr(bucket, s.bucket)
	name := objectstore.ObjectName(id, bucket)
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM objects WHERE bucket = ? AND name = ?", bucket, name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite store: %s/%s: %w", bucket, name, objectstore.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("sqlite store: select %s/%s: %w", bucket, name, err)
	}
	if dir := filepath.Dir(destPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sqlite store: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return fmt.Errorf("sqlite store: write %s: %w", destPath, err)
	}
	return nil
}

// Delete removes one object. Deleting a missing object reports ErrNotFound.
func (s *Store) Delete(ctx context.Context, id, bucket string) error {
	bucket = objectstore.BucketOr(bucket, s.bucket)
	name := objectstore.ObjectName(id, bucket)
	res, err := s.db.ExecContext(ctx, "DELETE FROM objects WHERE bucket = ? AND name = ?", bucket, name)
	if err != nil {
		return fmt.Errorf("sqlite store: delete %s/%s: %w", bucket, name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("sqlite store: %s/%s: %w", bucket, name, objectstore.ErrNotFound)
	}
	return nil
}

// List returns the bucket's objects ordered by name.
func (s *Store) List(ctx context.Context, bucket string) ([]objectstore.Object, error) {
	bucket = objectstore.BucketOr(bucket, s.bucket)
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, size, modified_at FROM objects WHERE bucket = ? ORDER BY name", bucket)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list %s: %w", bucket, err)
	}
	defer rows.Close()

	var objects []objectstore.Object
	for rows.Next() {
		var (
			obj      objectstore.Object
			modified string
		)
		if err := rows.Scan(&obj.ID, &obj.Size, &modified); err != nil {
			return nil, fmt.Errorf("sqlite store: scan %s: %w", bucket, err)
		}
		obj.LastModified, err = time.Parse(time.RFC3339Nano, modified)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: parse modified_at %q: %w", modified, err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: list %s: %w", bucket, err)
	}
	return objects, nil
}
