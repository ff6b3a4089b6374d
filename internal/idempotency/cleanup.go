package idempotency

import (
	"log/slog"
	"time"
)

// DefaultExpiry is how long a replay record stays live. A day comfortably
// covers any realistic client retry window for a dice roll.
const DefaultExpiry = 24 * time.Hour

// CleanupOldKeys removes records older than expiry and returns the count.
func CleanupOldKeys(repo Repository, expiry time.Duration) (int64, error) {
	n, err := repo.DeleteOlderThan(expiry)
	if err != nil {
		slog.Error("idempotency cleanup failed", "error", err)
		return 0, err
	}
	if n > 0 {
		slog.Info("expired idempotency records removed", "deleted", n, "older_than", expiry)
	}
	return n, nil
}

// RunPeriodicCleanup sweeps expired records once immediately and then on
// every interval tick until stop is closed. Blocks; run it in a goroutine.
func RunPeriodicCleanup(repo Repository, interval, expiry time.Duration, stop <-chan struct{}) {
	_, _ = CleanupOldKeys(repo, expiry)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_, _ = CleanupOldKeys(repo, expiry)
		}
	}
}
