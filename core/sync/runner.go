package sync

import (
	"context"
	"errors"
	"time"

	"sonexa/logger"
	"sonexa/storage"
)

// Runner periods. The queue drains often; full reconciliation is heavier
// and runs on a longer cadence, and only when auto-sync is enabled.
const (
	queueDrainInterval = 30 * time.Second
	autoSyncInterval   = 5 * time.Minute
	queueBatchSize     = 10
)

// Run drives the background sync loops until ctx is canceled. Call
// ResetStuckItems before Run so crash artifacts become schedulable again.
func (e *Engine) Run(ctx context.Context) {
	drain := time.NewTicker(queueDrainInterval)
	defer drain.Stop()
	full := time.NewTicker(autoSyncInterval)
	defer full.Stop()

	logger.Info("sync runner started")

	for {
		select {
		case <-drain.C:
			_, err := e.ProcessQueue(ctx, queueBatchSize)
			if err != nil && !errors.Is(err, storage.ErrRemoteNotConfigured) {
				logger.Error("queue drain failed", logger.ErrorField(err))
			}

		case <-full.C:
			if !e.settings.Get().AutoSync {
				continue
			}
			_, err := e.FullSync(ctx)
			if err != nil && !errors.Is(err, storage.ErrRemoteNotConfigured) {
				logger.Error("auto sync failed", logger.ErrorField(err))
			}

		case <-ctx.Done():
			logger.Info("sync runner stopped")
			return
		}
	}
}

// Recover resets crash artifacts: queue items stuck in processing revert to
// pending so they are visible to scheduling again.
func (e *Engine) Recover() error {
	_, err := e.queue.ResetStuckItems()
	return err
}
