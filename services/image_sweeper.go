package services

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nasda-team/nasda/models"
	"github.com/nasda-team/nasda/utils"
)

const sweepBatchSize = 500

// SweepOrphanImages removes files in the storage directory that no post image
// row references and that were last modified at least minAge before now.
// The age guard keeps files written by an upload whose rows are not committed yet.
func SweepOrphanImages(db *gorm.DB, storage *LocalImageStorage, minAge time.Duration, now time.Time) (int, []error) {
	entries, err := os.ReadDir(storage.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, []error{err}
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < minAge {
			continue
		}
		candidates = append(candidates, storage.URLPrefix()+e.Name())
	}

	var orphans []string
	for start := 0; start < len(candidates); start += sweepBatchSize {
		batch := candidates[start:min(start+sweepBatchSize, len(candidates))]
		var referenced []string
		if err := db.Model(&models.PostImage{}).Where("image_url IN ?", batch).Pluck("image_url", &referenced).Error; err != nil {
			return 0, []error{err}
		}
		known := make(map[string]struct{}, len(referenced))
		for _, u := range referenced {
			known[u] = struct{}{}
		}
		for _, u := range batch {
			if _, ok := known[u]; !ok {
				orphans = append(orphans, u)
			}
		}
	}

	failures := RemoveStoredImages(storage, orphans)
	return len(orphans) - len(failures), failures
}

// StartImageSweeper launches a background goroutine that sweeps orphaned image
// files every interval until ctx is done. A non-positive interval disables it.
func StartImageSweeper(ctx context.Context, db *gorm.DB, storage *LocalImageStorage, interval, minAge time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				removed, failures := SweepOrphanImages(db, storage, minAge, now)
				if removed > 0 {
					utils.Logger.Info("orphan images swept", zap.Int("removed", removed))
				}
				logCleanupFailures("orphan image sweep", failures)
			}
		}
	}()
}
