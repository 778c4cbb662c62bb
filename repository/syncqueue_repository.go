package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"sonexa/logger"
	"sonexa/model"
)

// ErrAlreadyQueued indicates an equivalent pending or processing item exists
// for the same target and operation. Callers treat it as a no-op, not a
// failure: it keeps repeated triggers from piling up duplicate work.
var ErrAlreadyQueued = errors.New("operation already queued")

// backoffSchedule is the fixed escalating delay applied between retries.
var backoffSchedule = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
}

// SyncQueueRepository defines the interface for the durable sync work queue.
type SyncQueueRepository interface {
	Enqueue(op model.SyncOperation, entryID string, class model.AssetClass, remoteKey string) (*model.SyncQueueItem, error)
	GetByID(id int64) (*model.SyncQueueItem, error)
	ClaimBatch(limit int) ([]*model.SyncQueueItem, error)
	MarkCompleted(id int64) error
	MarkFailed(id int64, errMsg string) error
	ResetStuckItems() (int64, error)
	ClearPermanentlyFailed() (int64, error)
	Stats() (*model.QueueStats, error)
}

// gormSyncQueueRepository implements SyncQueueRepository on the embedded store.
type gormSyncQueueRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSyncQueueRepository creates a new sync queue repository.
func NewSyncQueueRepository(db *gorm.DB) SyncQueueRepository {
	return &gormSyncQueueRepository{db: db, now: time.Now}
}

// Enqueue appends a new pending operation. An equivalent item already in
// pending or processing state short-circuits with ErrAlreadyQueued.
func (r *gormSyncQueueRepository) Enqueue(op model.SyncOperation, entryID string, class model.AssetClass, remoteKey string) (*model.SyncQueueItem, error) {
	var count int64
	q := r.db.Model(&model.SyncQueueItem{}).
		Where("operation = ? AND status IN ?", op, []model.SyncStatus{model.StatusPending, model.StatusProcessing})
	if entryID != "" {
		q = q.Where("entry_id = ?", entryID)
	} else {
		q = q.Where("remote_key = ?", remoteKey)
	}
	if err := q.Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check queue for duplicates: %w", err)
	}
	if count > 0 {
		return nil, ErrAlreadyQueued
	}

	now := r.now()
	item := &model.SyncQueueItem{
		Operation:  op,
		EntryID:    entryID,
		RemoteKey:  remoteKey,
		AssetClass: class,
		Status:     model.StatusPending,
		MaxRetries: model.MaxSyncRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.db.Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", op, err)
	}

	logger.Debug("sync operation queued",
		logger.String("operation", string(op)),
		logger.String("entryId", entryID),
		logger.String("remoteKey", remoteKey),
	)
	return item, nil
}

// GetByID retrieves a queue item. Returns (nil, nil) when not found.
func (r *gormSyncQueueRepository) GetByID(id int64) (*model.SyncQueueItem, error) {
	var item model.SyncQueueItem
	err := r.db.First(&item, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query queue item %d: %w", id, err)
	}
	return &item, nil
}

// ClaimBatch selects up to limit eligible items oldest-first and flips them
// to processing. Eligible means pending or retryable failed whose backoff
// window has elapsed; items past their retry cap are never claimed.
func (r *gormSyncQueueRepository) ClaimBatch(limit int) ([]*model.SyncQueueItem, error) {
	now := r.now()
	var items []*model.SyncQueueItem

	err := r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("status IN ?", []model.SyncStatus{model.StatusPending, model.StatusFailed}).
			Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
			Where("retry_count < max_retries OR status = ?", model.StatusPending).
			Order("created_at ASC").
			Limit(limit).
			Find(&items).Error
		if err != nil {
			return fmt.Errorf("failed to select eligible queue items: %w", err)
		}

		for _, item := range items {
			res := tx.Model(&model.SyncQueueItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
				"status":     model.StatusProcessing,
				"updated_at": now,
			})
			if res.Error != nil {
				return fmt.Errorf("failed to claim queue item %d: %w", item.ID, res.Error)
			}
			item.Status = model.StatusProcessing
			item.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// MarkCompleted deletes the item. The queue only holds unfinished work, so
// completion leaves no row behind.
func (r *gormSyncQueueRepository) MarkCompleted(id int64) error {
	if err := r.db.Delete(&model.SyncQueueItem{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to complete queue item %d: %w", id, err)
	}
	return nil
}

// MarkFailed records the error, bumps the retry count and schedules the next
// attempt on the fixed backoff ladder. Past the retry cap the item stays
// failed with no next retry, awaiting manual clearing.
func (r *gormSyncQueueRepository) MarkFailed(id int64, errMsg string) error {
	item, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("queue item %d not found", id)
	}

	now := r.now()
	newRetryCount := item.RetryCount + 1

	updates := map[string]interface{}{
		"status":      model.StatusFailed,
		"retry_count": newRetryCount,
		"last_error":  errMsg,
		"updated_at":  now,
	}

	if newRetryCount >= item.MaxRetries {
		updates["next_retry_at"] = nil
		logger.Warn("queue item permanently failed",
			logger.Int64("id", id),
			logger.Int("retries", newRetryCount),
			logger.String("error", errMsg),
		)
	} else {
		idx := newRetryCount - 1
		if idx >= len(backoffSchedule) {
			idx = len(backoffSchedule) - 1
		}
		next := now.Add(backoffSchedule[idx])
		updates["next_retry_at"] = next
		logger.Info("queue item failed, retry scheduled",
			logger.Int64("id", id),
			logger.Int("retry", newRetryCount),
			logger.String("nextRetryAt", next.Format(time.RFC3339)),
		)
	}

	if err := r.db.Model(&model.SyncQueueItem{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark queue item %d failed: %w", id, err)
	}
	return nil
}

// ResetStuckItems reverts processing rows to pending. Run once at process
// start so a crash mid-operation cannot leave work invisible to scheduling.
func (r *gormSyncQueueRepository) ResetStuckItems() (int64, error) {
	res := r.db.Model(&model.SyncQueueItem{}).
		Where("status = ?", model.StatusProcessing).
		Updates(map[string]interface{}{
			"status":     model.StatusPending,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reset stuck queue items: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logger.Info("reset stuck queue items", logger.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// ClearPermanentlyFailed deletes items that exhausted their retries.
func (r *gormSyncQueueRepository) ClearPermanentlyFailed() (int64, error) {
	res := r.db.Where("status = ? AND retry_count >= max_retries", model.StatusFailed).
		Delete(&model.SyncQueueItem{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear permanently failed items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Stats counts queue rows by state.
func (r *gormSyncQueueRepository) Stats() (*model.QueueStats, error) {
	stats := &model.QueueStats{}

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.Pending, r.db.Model(&model.SyncQueueItem{}).Where("status = ?", model.StatusPending)},
		{&stats.Processing, r.db.Model(&model.SyncQueueItem{}).Where("status = ?", model.StatusProcessing)},
		{&stats.PermanentlyFailed, r.db.Model(&model.SyncQueueItem{}).Where("status = ? AND retry_count >= max_retries", model.StatusFailed)},
		{&stats.Total, r.db.Model(&model.SyncQueueItem{})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count queue items: %w", err)
		}
	}
	return stats, nil
}
