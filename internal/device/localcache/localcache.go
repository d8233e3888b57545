// Package localcache prunes a camera's staging directory down to its
// configured size, oldest change time first.
package localcache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pulsecam/internal/logging"
	"pulsecam/internal/retention"
)

// Options selects the files a prune pass considers.
type Options struct {
	Dir       string
	Extension string
	Keep      int
}

// CleanupError records a single file that could not be removed.
type CleanupError struct {
	Path string
	Err  error
}

// Result summarizes a prune pass.
type Result struct {
	Listed  int
	Removed []string
	Errors  []CleanupError
}

// Prune removes the oldest matching files in opts.Dir until at most opts.Keep
// remain. Failures are logged and collected in the result, never returned.
func Prune(ctx context.Context, opts Options, logger *slog.Logger) Result {
	if logger == nil {
		logger = logging.NewNop()
	}
	var result Result

	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		logging.ErrorWithContext(logger, "list storage directory failed", "local_prune_list_failed",
			logging.String(logging.FieldPath, opts.Dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check device.storage_dir exists and is readable"),
		)
		return result
	}

	ext := strings.ToLower(opts.Extension)
	var candidates []retention.Candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ext) {
			continue
		}
		path := filepath.Join(opts.Dir, entry.Name())
		changed, err := changeTime(path)
		if err != nil {
			logging.ErrorWithContext(logger, "read file change time failed", "local_prune_stat_failed",
				logging.String(logging.FieldPath, path),
				logging.Error(err),
			)
			return result
		}
		candidates = append(candidates, retention.Candidate{ID: path, OrderingKey: changed})
	}
	result.Listed = len(candidates)

	evict := retention.SelectForEviction(candidates, opts.Keep)
	if len(evict) == 0 {
		logger.Debug("storage directory within limit; no clean up performed",
			logging.String(logging.FieldPath, opts.Dir),
			logging.Int("files", result.Listed),
			logging.Int("limit", opts.Keep),
		)
		return result
	}

	for _, path := range evict {
		if ctx.Err() != nil {
			break
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Err: err})
			logging.WarnWithContext(logger, "delete cached file failed", "local_evict_failed",
				logging.String(logging.FieldPath, path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check storage_dir permissions"),
				logging.String(logging.FieldImpact, "file retried on the next cleanup cycle"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		logger.Debug("cached file deleted", logging.String(logging.FieldPath, path))
	}

	logger.Info("local cache pruned",
		logging.String(logging.FieldEventType, "local_cache_pruned"),
		logging.String(logging.FieldPath, opts.Dir),
		logging.Int("removed", len(result.Removed)),
		logging.Int("failed", len(result.Errors)),
	)
	return result
}
