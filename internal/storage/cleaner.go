package storage

import (
	"context"
	"log/slog"
	"time"
)

// RunCleaner periodically removes reports older than retention until ctx is
// done. A non-positive retention keeps everything.
func (s *ResultStore) RunCleaner(ctx context.Context, interval, retention time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("cleaner started", "retention", retention, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if retention <= 0 {
				continue
			}
			s.purgeExpired(retention, logger)
		}
	}
}

func (s *ResultStore) purgeExpired(retention time.Duration, logger *slog.Logger) {
	purged, err := s.PurgeOlderThan(time.Now().Add(-retention))
	if err != nil {
		logger.Error("cleaner: failed to purge reports", "error", err)
		return
	}
	for _, id := range purged {
		logger.Info("expired report deleted", "file", id)
	}
}
