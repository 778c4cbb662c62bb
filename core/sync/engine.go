// Package sync reconciles the local catalog against the remote object store
// and drains the durable sync queue. Identity correlation between the two
// sides is remote-key equality alone; local dedup stays hash-based.
package sync

import (
	"context"
	"fmt"
	"path"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"sonexa/core/library"
	"sonexa/core/notify"
	"sonexa/logger"
	"sonexa/model"
	"sonexa/repository"
	"sonexa/settings"
	"sonexa/storage"
)

// Engine drives reconciliation and queue processing.
type Engine struct {
	catalog  repository.CatalogRepository
	queue    repository.SyncQueueRepository
	lib      *library.Service
	settings *settings.Store
	notifier notify.Notifier

	remoteMu gosync.RWMutex
	remote   storage.RemoteStore

	// syncing guards against overlapping full sync runs: a trigger that
	// arrives while one is in flight is a no-op.
	syncing atomic.Bool
}

// NewEngine wires the sync engine. remote may be nil until the user
// configures the remote store; all operations short-circuit with
// storage.ErrRemoteNotConfigured until then.
func NewEngine(catalog repository.CatalogRepository, queue repository.SyncQueueRepository, lib *library.Service, st *settings.Store, notifier notify.Notifier, remote storage.RemoteStore) *Engine {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Engine{
		catalog:  catalog,
		queue:    queue,
		lib:      lib,
		settings: st,
		notifier: notifier,
		remote:   remote,
	}
}

// SetRemote swaps the remote store, e.g. after credentials were entered.
func (e *Engine) SetRemote(remote storage.RemoteStore) {
	e.remoteMu.Lock()
	defer e.remoteMu.Unlock()
	e.remote = remote
}

// Remote returns the current remote store, or ErrRemoteNotConfigured.
func (e *Engine) Remote() (storage.RemoteStore, error) {
	e.remoteMu.RLock()
	defer e.remoteMu.RUnlock()
	if e.remote == nil {
		return nil, storage.ErrRemoteNotConfigured
	}
	return e.remote, nil
}

// remotePrefixes are the asset-class prefixes objects live under remotely.
var remotePrefixes = []model.AssetClass{model.AssetMusic, model.AssetSFX}

// ComputeSyncStatus diffs local catalog against the remote listing and
// counts what a full sync would move in each direction.
func (e *Engine) ComputeSyncStatus(ctx context.Context) (*model.SyncStatusReport, error) {
	localOnly, err := e.catalog.ListLocalOnly()
	if err != nil {
		return nil, err
	}

	remoteOnly, err := e.listRemoteOnly(ctx)
	if err != nil {
		return nil, err
	}

	return &model.SyncStatusReport{
		UploadNeeded:   len(localOnly),
		DownloadNeeded: len(remoteOnly),
	}, nil
}

// FullSync pushes every local-only entry up, then pulls every remote-only
// object down. Uploads run first so a fresh download, whose remote key is
// set atomically with insertion, is never re-offered as an upload in the
// same pass. Individual failures are logged and counted out, never
// aborting the batch.
func (e *Engine) FullSync(ctx context.Context) (*model.SyncResult, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		logger.Debug("sync already in flight, trigger ignored")
		return &model.SyncResult{}, nil
	}
	defer e.syncing.Store(false)

	remote, err := e.Remote()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result := &model.SyncResult{}

	localOnly, err := e.catalog.ListLocalOnly()
	if err != nil {
		return nil, err
	}
	for _, entry := range localOnly {
		if err := e.uploadEntry(ctx, remote, entry); err != nil {
			logger.Error("upload failed during full sync",
				logger.String("id", entry.ID),
				logger.String("filename", entry.Filename),
				logger.ErrorField(err),
			)
			continue
		}
		result.Uploaded++
	}

	remoteOnly, err := e.listRemoteOnly(ctx)
	if err != nil {
		return nil, err
	}
	for _, obj := range remoteOnly {
		if err := e.downloadObject(ctx, remote, obj); err != nil {
			logger.Error("download failed during full sync",
				logger.String("key", obj.Key),
				logger.ErrorField(err),
			)
			continue
		}
		result.Downloaded++
	}

	elapsed := time.Since(started)
	if err := e.settings.Update(func(s *settings.AppSettings) {
		s.LastSyncAt = time.Now().Format(time.RFC3339)
	}); err != nil {
		logger.Warn("failed to record last sync time", logger.ErrorField(err))
	}

	e.notifier.Emit(model.EventSyncComplete, model.SyncComplete{
		Synced: result.Uploaded + result.Downloaded,
		Time:   elapsed.String(),
	})
	logger.Info("full sync finished",
		logger.Int("uploaded", result.Uploaded),
		logger.Int("downloaded", result.Downloaded),
		logger.Duration("elapsed", elapsed),
	)
	return result, nil
}

// listRemoteOnly returns remote objects whose keys no local entry claims.
func (e *Engine) listRemoteOnly(ctx context.Context) ([]storage.RemoteObject, error) {
	remote, err := e.Remote()
	if err != nil {
		return nil, err
	}

	known, err := e.catalog.ListRemoteKeys()
	if err != nil {
		return nil, err
	}

	var remoteOnly []storage.RemoteObject
	for _, prefix := range remotePrefixes {
		objects, err := remote.List(ctx, string(prefix)+"/")
		if err != nil {
			return nil, fmt.Errorf("failed to list remote prefix %s: %w", prefix, err)
		}
		for _, obj := range objects {
			if _, ok := known[obj.Key]; !ok {
				remoteOnly = append(remoteOnly, obj)
			}
		}
	}
	return remoteOnly, nil
}

// uploadEntry pushes one entry and records the remote identifiers on it.
func (e *Engine) uploadEntry(ctx context.Context, remote storage.RemoteStore, entry *model.CatalogEntry) error {
	key := remoteKeyFor(entry)
	res, err := remote.Upload(ctx, entry.LocalPath, key, storage.ContentTypeFor(entry.LocalPath))
	if err != nil {
		return err
	}
	return e.catalog.SetRemote(entry.ID, res.Key, res.URL)
}

// downloadObject pulls one remote object into the library and catalogs it.
func (e *Engine) downloadObject(ctx context.Context, remote storage.RemoteStore, obj storage.RemoteObject) error {
	data, err := remote.Download(ctx, obj.Key)
	if err != nil {
		return err
	}

	_, err = e.lib.SaveDownloaded(ctx, classFromKey(obj.Key), obj.Key, remote.PublicURL(obj.Key), data)
	return err
}

// remoteKeyFor derives the remote object key for an entry: the asset-class
// prefix routes it, the stored filename names it.
func remoteKeyFor(entry *model.CatalogEntry) string {
	return path.Join(string(entry.AssetClass), entry.Filename)
}

// classFromKey reads the asset class back off the key prefix.
func classFromKey(key string) model.AssetClass {
	class := model.AssetClass(strings.SplitN(key, "/", 2)[0])
	if class.Valid() {
		return class
	}
	return model.AssetMusic
}
