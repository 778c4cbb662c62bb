package sync

import (
	"context"
	"fmt"

	"sonexa/logger"
	"sonexa/model"
	"sonexa/storage"
)

// ProcessQueue claims a batch of eligible queue items and dispatches each to
// the remote store. Semantics are at-least-once: a crash after the remote
// call but before MarkCompleted replays the operation, and the remote store
// contract makes the replay harmless (uploads overwrite by key, deletes of
// an absent key succeed).
func (e *Engine) ProcessQueue(ctx context.Context, limit int) (int, error) {
	remote, err := e.Remote()
	if err != nil {
		return 0, err
	}

	items, err := e.queue.ClaimBatch(limit)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	processed := 0
	for _, item := range items {
		if err := e.processItem(ctx, remote, item); err != nil {
			if markErr := e.queue.MarkFailed(item.ID, err.Error()); markErr != nil {
				logger.Error("failed to record queue failure", logger.Int64("id", item.ID), logger.ErrorField(markErr))
			}
			continue
		}
		if err := e.queue.MarkCompleted(item.ID); err != nil {
			logger.Error("failed to complete queue item", logger.Int64("id", item.ID), logger.ErrorField(err))
			continue
		}
		processed++
	}

	logger.Info("queue batch processed",
		logger.Int("claimed", len(items)),
		logger.Int("completed", processed),
	)
	return processed, nil
}

func (e *Engine) processItem(ctx context.Context, remote storage.RemoteStore, item *model.SyncQueueItem) error {
	switch item.Operation {
	case model.OpUpload:
		entry, err := e.catalog.GetByID(item.EntryID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("catalog entry %s no longer exists", item.EntryID)
		}
		return e.uploadEntry(ctx, remote, entry)

	case model.OpDownload:
		data, err := remote.Download(ctx, item.RemoteKey)
		if err != nil {
			return err
		}
		_, err = e.lib.SaveDownloaded(ctx, item.AssetClass, item.RemoteKey, remote.PublicURL(item.RemoteKey), data)
		return err

	case model.OpDelete:
		_, err := remote.Delete(ctx, item.RemoteKey)
		return err

	default:
		return fmt.Errorf("unknown sync operation %q", item.Operation)
	}
}
