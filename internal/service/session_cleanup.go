package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/passgate/passgate/internal/storage"
	"github.com/passgate/passgate/pkg/config"
)

// SessionCleanupWorker periodically removes expired session records from
// backends that do not expire them natively.
type SessionCleanupWorker struct {
	store    storage.Store
	logger   *zap.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionCleanupWorker creates a new SessionCleanupWorker
func NewSessionCleanupWorker(store storage.Store, cfg *config.Config, logger *zap.Logger) *SessionCleanupWorker {
	interval := time.Duration(cfg.Session.CleanupIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &SessionCleanupWorker{
		store:    store,
		logger:   logger.Named("session-cleanup"),
		interval: interval,
	}
}

// Start launches the background sweep loop.
func (w *SessionCleanupWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()

	w.logger.Info("Session cleanup started", zap.Duration("interval", w.interval))
}

// RunOnce performs a single sweep.
func (w *SessionCleanupWorker) RunOnce(ctx context.Context) {
	deleted, err := w.store.Sessions().DeleteExpired(ctx)
	if err != nil {
		w.logger.Warn("Session cleanup sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		w.logger.Debug("Expired sessions removed", zap.Int64("count", deleted))
	}
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *SessionCleanupWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
