package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"sonexa/core/library"
	coresync "sonexa/core/sync"
	"sonexa/core/watcher"
	"sonexa/logger"
	"sonexa/model"
	"sonexa/repository"
	"sonexa/secret"
	"sonexa/settings"
	"sonexa/storage"
)

// APIHandler bundles the services the HTTP surface exposes. It is the Go
// analog of the original desktop app's IPC handler table.
type APIHandler struct {
	catalog  repository.CatalogRepository
	queue    repository.SyncQueueRepository
	lib      *library.Service
	engine   *coresync.Engine
	watch    *watcher.Watcher
	settings *settings.Store
	secrets  *secret.Store
}

// NewAPIHandler creates the handler set.
func NewAPIHandler(catalog repository.CatalogRepository, queue repository.SyncQueueRepository, lib *library.Service, engine *coresync.Engine, watch *watcher.Watcher, st *settings.Store, secrets *secret.Store) *APIHandler {
	return &APIHandler{
		catalog:  catalog,
		queue:    queue,
		lib:      lib,
		engine:   engine,
		watch:    watch,
		settings: st,
		secrets:  secrets,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ListLibraryHandler returns every catalog entry.
func (h *APIHandler) ListLibraryHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.catalog.List()
	if err != nil {
		logger.Error("failed to list library", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to list library")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetEntryHandler returns one entry by id.
func (h *APIHandler) GetEntryHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entry, err := h.catalog.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query entry")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// UpdateEntryHandler edits the mutable fields of an entry.
func (h *APIHandler) UpdateEntryHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	entry, err := h.catalog.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query entry")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}

	var req struct {
		Tags       *model.TagList    `json:"tags"`
		BPM        *int              `json:"bpm"`
		Favorite   *bool             `json:"favorite"`
		AssetClass *model.AssetClass `json:"assetClass"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Tags != nil {
		entry.Tags = *req.Tags
	}
	if req.BPM != nil {
		entry.BPM = req.BPM
	}
	if req.Favorite != nil {
		entry.Favorite = *req.Favorite
	}
	if req.AssetClass != nil {
		if !req.AssetClass.Valid() {
			writeError(w, http.StatusBadRequest, "invalid asset class")
			return
		}
		entry.AssetClass = *req.AssetClass
	}

	if err := h.catalog.Update(entry); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteEntryHandler removes an entry, optionally queueing a remote delete.
func (h *APIHandler) DeleteEntryHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	alsoRemote := r.URL.Query().Get("remote") == "true"

	if err := h.lib.RemoveEntry(id, alsoRemote); err != nil {
		logger.Error("failed to delete entry", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ClearLibraryHandler removes every library file and empties the catalog.
func (h *APIHandler) ClearLibraryHandler(w http.ResponseWriter, r *http.Request) {
	removed, err := h.lib.ClearLibrary()
	if err != nil {
		logger.Error("failed to clear library", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to clear library")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// ImportHandler runs the import pipeline over the posted paths.
func (h *APIHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths      []string         `json:"paths"`
		ForceClass model.AssetClass `json:"forceClass"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "no paths given")
		return
	}

	result := h.lib.ImportFiles(r.Context(), req.Paths, req.ForceClass)
	writeJSON(w, http.StatusOK, result)
}

// LibraryStatsHandler returns per-class counts and total size.
func (h *APIHandler) LibraryStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.lib.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SyncHandler triggers a full sync pass.
func (h *APIHandler) SyncHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.FullSync(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrRemoteNotConfigured) {
			writeError(w, http.StatusPreconditionFailed, "remote store not configured")
			return
		}
		logger.Error("full sync failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SyncStatusHandler reports pending upload/download counts.
func (h *APIHandler) SyncStatusHandler(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.ComputeSyncStatus(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrRemoteNotConfigured) {
			writeError(w, http.StatusPreconditionFailed, "remote store not configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to compute sync status")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// QueueStatsHandler reports sync queue counters.
func (h *APIHandler) QueueStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// QueueClearFailedHandler drops permanently failed queue items.
func (h *APIHandler) QueueClearFailedHandler(w http.ResponseWriter, r *http.Request) {
	cleared, err := h.queue.ClearPermanentlyFailed()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": cleared})
}

// GetSettingsHandler returns the current settings.
func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// PutSettingsHandler replaces the settings. A changed library path restarts
// the watcher over the new tree.
func (h *APIHandler) PutSettingsHandler(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req settings.AppSettings
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings payload")
		return
	}

	previous := h.settings.Get()
	if err := h.settings.Set(req); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	if h.watch != nil && previous.LibraryPath != req.LibraryPath {
		if err := h.watch.Restart(); err != nil {
			logger.Error("failed to restart watcher after path change", logger.ErrorField(err))
		}
	}
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// PutSecretHandler stores the remote API credential.
func (h *APIHandler) PutSecretHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == "" {
		writeError(w, http.StatusBadRequest, "invalid secret payload")
		return
	}
	if err := h.secrets.Set(secret.RemoteCredentialKey, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stored": true})
}

// DeleteSecretHandler removes the remote API credential.
func (h *APIHandler) DeleteSecretHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.secrets.Delete(secret.RemoteCredentialKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}
