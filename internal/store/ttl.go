package store

import (
	"context"
	"log/slog"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// StartTTLWorker runs a background goroutine that periodically sweeps
// for idle sessions and evicts them. Eviction goes through Delete, so
// it takes the per-session lock and never races an in-flight update.
// Once evicted, a session id behaves exactly like one that never
// existed.
func StartTTLWorker(ctx context.Context, repo Repository, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				evictExpired(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func evictExpired(ctx context.Context, repo Repository, ttl time.Duration) {
	ids, err := repo.ExpiredSessionIDs(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to list expired sessions", "error", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	slog.Info("TTL worker found expired sessions", "count", len(ids))

	evicted := 0
	for _, id := range ids {
		if err := repo.Delete(ctx, id); err != nil {
			slog.Warn("TTL worker failed to evict session", "error", err, "session_id", id)
			continue
		}
		evicted++
	}

	slog.Info("TTL worker sweep completed", "evicted", evicted)
}
