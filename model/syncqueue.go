package model

import "time"

// SyncOperation is the kind of remote work a queue item represents.
type SyncOperation string

const (
	OpUpload   SyncOperation = "upload"
	OpDownload SyncOperation = "download"
	OpDelete   SyncOperation = "delete"
)

// SyncStatus tracks a queue item through its lifecycle. Completed items are
// deleted from the table, so no retained row ever carries a completed status.
type SyncStatus string

const (
	StatusPending    SyncStatus = "pending"
	StatusProcessing SyncStatus = "processing"
	StatusFailed     SyncStatus = "failed"
)

// MaxSyncRetries is the fixed retry cap before an item is considered
// permanently failed and left for manual intervention.
const MaxSyncRetries = 5

// SyncQueueItem is one pending remote operation. The auto-increment ID is the
// FIFO tie-break; scheduling orders by CreatedAt ascending.
type SyncQueueItem struct {
	ID          int64         `json:"id" gorm:"primaryKey;autoIncrement"`
	Operation   SyncOperation `json:"operation" gorm:"size:16;index"`
	EntryID     string        `json:"entryId" gorm:"size:36;index"`
	RemoteKey   string        `json:"remoteKey"`
	AssetClass  AssetClass    `json:"assetClass" gorm:"size:16"`
	Status      SyncStatus    `json:"status" gorm:"size:16;index;default:pending"`
	RetryCount  int           `json:"retryCount"`
	MaxRetries  int           `json:"maxRetries"`
	LastError   string        `json:"lastError"`
	NextRetryAt *time.Time    `json:"nextRetryAt" gorm:"index"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// TableName maps queue items onto the sync_queue table.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// PermanentlyFailed reports whether the item has exhausted its retries.
func (i *SyncQueueItem) PermanentlyFailed() bool {
	return i.Status == StatusFailed && i.RetryCount >= i.MaxRetries
}

// QueueStats counts retained queue rows by state.
type QueueStats struct {
	Pending           int64 `json:"pending"`
	Processing        int64 `json:"processing"`
	PermanentlyFailed int64 `json:"permanentlyFailed"`
	Total             int64 `json:"total"`
}
