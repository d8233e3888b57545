package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"pulsecam/internal/config"
	"pulsecam/internal/objectstore/sqlitestore"
)

// MustOpenStore opens the SQLite object store named by cfg and registers
// cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *sqlitestore.Store {
	t.Helper()

	store, err := sqlitestore.Open(context.Background(), cfg.Store.SQLitePath, cfg.Store.Bucket, nil)
	if err != nil {
		t.Fatalf("sqlitestore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Upload writes a file of size bytes named name and uploads it.
func Upload(t testing.TB, store *sqlitestore.Store, dir, name string, size int64) string {
	t.Helper()

	path := filepath.Join(dir, name)
	WriteFile(t, path, size)
	id, err := store.Upload(context.Background(), path, "")
	if err != nil {
		t.Fatalf("store.Upload: %v", err)
	}
	return id
}
