package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/postgres"
	"github.com/gatewarden/internal/redis"
)

// SyncWorker reconciles the Redis XP leaderboard against the durable
// player_progress table. Postgres is the source of truth; the leaderboard is
// rebuilt from it on startup and repaired periodically.
type SyncWorker struct {
	board    *redis.Leaderboard
	postgres *postgres.Repository
	cfg      *config.SyncConfig
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSyncWorker creates a sync worker
func NewSyncWorker(
	board *redis.Leaderboard,
	postgres *postgres.Repository,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		board:    board,
		postgres: postgres,
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background sync process
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.cfg.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background sync process
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.Rebuild(ctx); err != nil {
				w.logger.Error("leaderboard reconciliation failed", "error", err)
			}
		}
	}
}

// Rebuild pushes every player's durable XP total into the Redis leaderboard
// in batches.
func (w *SyncWorker) Rebuild(ctx context.Context) error {
	start := time.Now()

	all, err := w.postgres.AllProgress(ctx)
	if err != nil {
		return err
	}

	if len(all) == 0 {
		w.logger.Debug("no progress rows to sync")
		return nil
	}

	batchSize := w.cfg.BatchSize
	if batchSize == 0 {
		batchSize = 1000
	}

	batch := make(map[string]int64, batchSize)
	for _, p := range all {
		batch[p.PlayerKey] = p.TotalXP

		if len(batch) >= batchSize {
			if err := w.board.BatchSetXP(ctx, batch); err != nil {
				return err
			}
			batch = make(map[string]int64, batchSize)
		}
	}

	if len(batch) > 0 {
		if err := w.board.BatchSetXP(ctx, batch); err != nil {
			return err
		}
	}

	w.logger.Info("leaderboard reconciled",
		"players", len(all),
		"duration", time.Since(start),
	)
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
