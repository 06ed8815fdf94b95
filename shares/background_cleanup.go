package shares

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ebogdum/sharefs/metadata"
	"github.com/ebogdum/sharefs/metrics"
)

// revokedRetention is how long revoked tokens are kept as tombstones before
// the cleanup worker removes them. The conditional consume predicate keeps
// them unusable in the meantime.
const revokedRetention = 24 * time.Hour

// StartCleanupWorker starts a background goroutine that periodically removes
// expired and long-revoked share tokens from the metadata store.
func StartCleanupWorker(ctx context.Context, store metadata.Store, interval time.Duration, logger *zap.Logger) {
	if store == nil {
		logger.Error("Cannot start cleanup worker: metadata store is nil")
		return
	}

	go func() {
		logger.Info("Starting share token cleanup worker",
			zap.Duration("interval", interval))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				cleanupShares(store, logger)
			case <-ctx.Done():
				logger.Info("Share cleanup worker shutting down")
				return
			}
		}
	}()
}

func cleanupShares(store metadata.Store, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expiredCount, err := cleanupExpiredShares(ctx, store)
	if err != nil {
		logger.Error("Failed to cleanup expired share tokens", zap.Error(err))
	} else if expiredCount > 0 {
		logger.Info("Cleaned up expired share tokens",
			zap.Int("count", expiredCount))
	}

	revokedCount, err := cleanupRevokedShares(ctx, store)
	if err != nil {
		logger.Error("Failed to cleanup revoked share tokens", zap.Error(err))
	} else if revokedCount > 0 {
		logger.Info("Cleaned up revoked share tokens",
			zap.Int("count", revokedCount))
	}
}

func cleanupExpiredShares(ctx context.Context, store metadata.Store) (int, error) {
	count, err := store.CleanupExpiredShares(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired shares: %w", err)
	}
	if count > 0 {
		metrics.ShareCleanupsTotal.WithLabelValues("expired").Add(float64(count))
	}
	return count, nil
}

func cleanupRevokedShares(ctx context.Context, store metadata.Store) (int, error) {
	count, err := store.CleanupRevokedShares(ctx, time.Now().Add(-revokedRetention))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup revoked shares: %w", err)
	}
	if count > 0 {
		metrics.ShareCleanupsTotal.WithLabelValues("revoked").Add(float64(count))
	}
	return count, nil
}
