package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/socify/socify_downloader/internal/logctx"
)

// RemoveStaleParts deletes files in dir matching pattern whose mod time is older than
// maxAge. Retrievals interrupted by a crash leave such part files behind.
func RemoveStaleParts(ctx context.Context, dir, pattern string, maxAge time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("invalid part file pattern: %w", err)
	}

	now := time.Now()
	removed := 0

	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // already gone
			}

			logger.Error("Failed to stat part file", "file", path, "err", err)

			return removed, err
		}

		if info.IsDir() || now.Sub(info.ModTime()) <= maxAge {
			continue
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete stale part file", "file", path, "err", err)

			return removed, err
		}

		removed++

		logger.Info("Deleted stale part file", "file", path)
	}

	return removed, nil
}
