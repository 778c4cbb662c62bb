package storage

import (
	"context"
	"errors"
	"time"
)

// ErrRemoteNotConfigured indicates the remote store endpoint or credentials
// are missing. Sync operations short-circuit on it instead of attempting and
// failing repeatedly; the caller surfaces it as an actionable state.
var ErrRemoteNotConfigured = errors.New("remote store not configured")

// RemoteObject is one listed object in the remote store.
type RemoteObject struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UploadResult carries the identifiers of a stored object.
type UploadResult struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// RemoteStore is the narrow contract against the remote object store. The
// store owns no local state; every implementation must be idempotent under
// retried writes (uploads overwrite by key, deleting an absent key succeeds).
type RemoteStore interface {
	Upload(ctx context.Context, localPath, key, contentType string) (*UploadResult, error)
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]RemoteObject, error)
	Delete(ctx context.Context, key string) (bool, error)
	EnsureBucket(ctx context.Context) error
	// PublicURL composes the addressable URL for a stored object, whether or
	// not this side ever uploaded it.
	PublicURL(key string) string
}
