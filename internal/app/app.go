// Package app wires the long-lived services together. Everything is built
// once here and passed by handle; no package keeps ambient mutable state.
package app

import (
	"errors"

	"gorm.io/gorm"

	"sonexa/config"
	"sonexa/core/analyzer"
	"sonexa/core/library"
	"sonexa/core/notify"
	coresync "sonexa/core/sync"
	"sonexa/core/watcher"
	"sonexa/db"
	"sonexa/logger"
	"sonexa/model"
	"sonexa/repository"
	"sonexa/secret"
	"sonexa/settings"
	"sonexa/storage"
)

// App holds the constructed service graph.
type App struct {
	Cfg      *config.Config
	DB       *gorm.DB
	Catalog  repository.CatalogRepository
	Queue    repository.SyncQueueRepository
	Settings *settings.Store
	Secrets  *secret.Store
	Pool     *analyzer.Pool
	Library  *library.Service
	Engine   *coresync.Engine
	Watcher  *watcher.Watcher
}

// New builds the full service graph. The notifier receives core events;
// pass nil for log-only.
func New(cfg *config.Config, notifier notify.Notifier) (*App, error) {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}

	logger.Init(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	gdb, err := db.Connect(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		db.Close(gdb)
		return nil, err
	}

	settingsStore, err := settings.NewStore(cfg.SettingsPath)
	if err != nil {
		db.Close(gdb)
		return nil, err
	}
	secretStore, err := secret.NewStore(cfg.DataDir)
	if err != nil {
		db.Close(gdb)
		return nil, err
	}

	catalog := repository.NewCatalogRepository(gdb)
	queue := repository.NewSyncQueueRepository(gdb)

	pool := analyzer.NewPool(cfg.WorkerCount, cfg.FFprobePath, cfg.AfinfoPath)
	lib := library.NewService(catalog, queue, pool, settingsStore, notifier)

	remote := buildRemote(cfg, settingsStore, secretStore)
	engine := coresync.NewEngine(catalog, queue, lib, settingsStore, notifier, remote)

	return &App{
		Cfg:      cfg,
		DB:       gdb,
		Catalog:  catalog,
		Queue:    queue,
		Settings: settingsStore,
		Secrets:  secretStore,
		Pool:     pool,
		Library:  lib,
		Engine:   engine,
		Watcher:  watcher.New(lib, notifier),
	}, nil
}

// buildRemote assembles the remote store from settings, secrets and
// environment. A missing endpoint or credential leaves the remote
// unconfigured, which every sync path reports as a distinct state.
func buildRemote(cfg *config.Config, st *settings.Store, secrets *secret.Store) storage.RemoteStore {
	endpoint := st.Get().RemoteEndpoint
	if endpoint == "" {
		endpoint = cfg.MinioEndpoint
	}

	secretKey, err := secrets.Get(secret.RemoteCredentialKey)
	if err != nil {
		logger.Warn("failed to read remote credential", logger.ErrorField(err))
	}
	if secretKey == "" {
		secretKey = cfg.MinioSecretKey
	}

	remote, err := storage.NewMinioStore(storage.MinioConfig{
		Endpoint:  endpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: secretKey,
		Bucket:    cfg.MinioBucket,
		Region:    cfg.MinioRegion,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		if errors.Is(err, storage.ErrRemoteNotConfigured) {
			logger.Info("remote store not configured, sync disabled until set up")
		} else {
			logger.Error("failed to build remote store", logger.ErrorField(err))
		}
		return nil
	}
	return remote
}

// Recover resets crash artifacts before any new work is scheduled.
func (a *App) Recover() error {
	return a.Engine.Recover()
}

// EnqueueUpload queues an upload for an entry, tolerating duplicates.
func (a *App) EnqueueUpload(entry *model.CatalogEntry) error {
	_, err := a.Queue.Enqueue(model.OpUpload, entry.ID, entry.AssetClass, "")
	if errors.Is(err, repository.ErrAlreadyQueued) {
		return nil
	}
	return err
}

// Close releases the database handle and stops background services.
func (a *App) Close() {
	a.Watcher.Stop()
	a.Pool.Stop()
	if err := db.Close(a.DB); err != nil {
		logger.Error("failed to close database", logger.ErrorField(err))
	}
}
