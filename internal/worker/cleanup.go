package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gatewarden/internal/admission"
	"github.com/gatewarden/internal/config"
	"github.com/gatewarden/internal/ratelimit"
)

// CleanupWorker periodically sweeps expired purgatory sessions and prunes
// stale cooldown timestamps. It is advisory: every foreground read already
// checks expiry lazily, so the sweep only bounds memory.
type CleanupWorker struct {
	controller *admission.Controller
	limiter    *ratelimit.Limiter
	cfg        *config.CleanupConfig
	logger     *slog.Logger
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
}

// NewCleanupWorker creates a cleanup worker
func NewCleanupWorker(
	controller *admission.Controller,
	limiter *ratelimit.Limiter,
	cfg *config.CleanupConfig,
	logger *slog.Logger,
) *CleanupWorker {
	return &CleanupWorker{
		controller: controller,
		limiter:    limiter,
		cfg:        cfg,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (w *CleanupWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("cleanup worker started", "interval", w.cfg.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background cleanup process
func (w *CleanupWorker) Stop() error {
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

	w.logger.Info("cleanup worker stopped")
	return nil
}

// run is the main worker loop
func (w *CleanupWorker) run(ctx context.Context) {
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
			w.RunOnce()
		}
	}
}

// RunOnce runs a single cleanup pass
func (w *CleanupWorker) RunOnce() {
	expired := w.controller.CleanupExpired()
	pruned := w.limiter.Prune(24 * time.Hour)

	if expired > 0 || pruned > 0 {
		w.logger.Debug("cleanup pass completed",
			"expired_sessions", expired,
			"pruned_cooldowns", pruned,
		)
	}
}

// IsRunning returns whether the worker is currently running
func (w *CleanupWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
