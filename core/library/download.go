package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"sonexa/core/analyzer"
	"sonexa/logger"
	"sonexa/model"
)

// SaveDownloaded writes bytes fetched from the remote store into the library
// tree and catalogs them with the remote identifiers set atomically with the
// insert, so a freshly-downloaded file can never be re-offered as an upload
// candidate. When the content hash already belongs to a local entry the
// remote key is adopted onto that entry instead of inserting a second row,
// keeping the dedup invariant intact.
func (s *Service) SaveDownloaded(ctx context.Context, class model.AssetClass, remoteKey, remoteURL string, data []byte) (*model.CatalogEntry, error) {
	root, err := s.EnsureTree()
	if err != nil {
		return nil, err
	}

	name := filepath.Base(remoteKey)
	destPath := filepath.Join(root, string(class), name)
	if _, err := os.Stat(destPath); err == nil {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		name = fmt.Sprintf("%s_%d%s", base, time.Now().UnixMilli(), ext)
		destPath = filepath.Join(root, string(class), name)
	}

	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write downloaded file %s: %w", destPath, err)
	}
	s.noteImported(destPath)

	meta, err := s.pool.Analyze(ctx, destPath, analyzer.KindFull)
	if err != nil {
		os.Remove(destPath)
		return nil, err
	}

	existing, err := s.catalog.GetByHash(meta.ContentHash)
	if err != nil {
		os.Remove(destPath)
		return nil, err
	}
	if existing != nil {
		// Same bytes already live locally under another name. Record the
		// correlation and drop the redundant copy.
		os.Remove(destPath)
		if !existing.Mirrored() {
			if err := s.catalog.SetRemote(existing.ID, remoteKey, remoteURL); err != nil {
				return nil, err
			}
			existing.RemoteKey = &remoteKey
			existing.RemoteURL = &remoteURL
		}
		logger.Info("downloaded content matched existing entry",
			logger.String("id", existing.ID),
			logger.String("remoteKey", remoteKey),
		)
		return existing, nil
	}

	entry := &model.CatalogEntry{
		ID:              uuid.NewString(),
		Filename:        name,
		AssetClass:      class,
		LocalPath:       destPath,
		ContentHash:     meta.ContentHash,
		DurationSeconds: meta.DurationSeconds,
		SizeBytes:       meta.SizeBytes,
		Tags:            model.TagList{},
		RemoteKey:       &remoteKey,
		RemoteURL:       &remoteURL,
	}
	if err := s.catalog.Create(entry); err != nil {
		os.Remove(destPath)
		return nil, err
	}

	s.notifier.Emit(model.EventLibraryUpdated, model.LibraryUpdate{Type: "add", Entry: entry})
	return entry, nil
}
