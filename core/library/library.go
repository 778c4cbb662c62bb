// Package library implements the content-addressed import pipeline and the
// managed library tree. Files are deduplicated by content hash, never by
// name: byte-identical imports collapse to a single catalog entry.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sonexa/core/analyzer"
	"sonexa/core/notify"
	"sonexa/logger"
	"sonexa/model"
	"sonexa/repository"
	"sonexa/settings"
)

// ErrUnsupportedFile indicates the path does not carry a supported audio
// container extension.
var ErrUnsupportedFile = errors.New("unsupported file type")

// audioExtensions is the import allow-list.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".aiff": true,
	".aif":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".wma":  true,
}

// sfxKeywords drive the filename heuristic for asset classification.
// Anything that matches none of them defaults to music.
var sfxKeywords = []string{
	"sfx",
	"soundeffect",
	"sound_effect",
	"sound-effect",
	"foley",
	"whoosh",
	"impact",
	"hit",
	"swoosh",
	"click",
	"beep",
	"transition",
}

// recentImportTTL is how long an import-pipeline copy is remembered so the
// filesystem watcher does not race it through a second insert.
const recentImportTTL = 15 * time.Second

// Service owns the import pipeline and library tree maintenance.
type Service struct {
	catalog  repository.CatalogRepository
	queue    repository.SyncQueueRepository
	pool     *analyzer.Pool
	settings *settings.Store
	notifier notify.Notifier

	mu      sync.Mutex
	recents map[string]time.Time
}

// NewService wires the import pipeline. queue may be nil when sync is not in
// play (imports then simply never enqueue uploads).
func NewService(catalog repository.CatalogRepository, queue repository.SyncQueueRepository, pool *analyzer.Pool, st *settings.Store, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		catalog:  catalog,
		queue:    queue,
		pool:     pool,
		settings: st,
		notifier: notifier,
		recents:  make(map[string]time.Time),
	}
}

// IsAudioFile reports whether the path passes the extension allow-list.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// DetectAssetClass applies the SFX keyword heuristic to a filename.
func DetectAssetClass(filename string) model.AssetClass {
	lower := strings.ToLower(filename)
	for _, kw := range sfxKeywords {
		if strings.Contains(lower, kw) {
			return model.AssetSFX
		}
	}
	return model.AssetMusic
}

// LibraryPath returns the expanded library root.
func (s *Service) LibraryPath() string {
	return s.settings.LibraryPath()
}

// EnsureTree creates the library root and its music/ and sfx/ subdirectories.
func (s *Service) EnsureTree() (string, error) {
	root := s.LibraryPath()
	for _, dir := range []string{root, filepath.Join(root, string(model.AssetMusic)), filepath.Join(root, string(model.AssetSFX))} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create library directory %s: %w", dir, err)
		}
	}
	return root, nil
}

// ImportFiles runs the pipeline over each path, strictly in input order, and
// isolates failures per path: one unreadable file never aborts its siblings.
// Progress events fire after every processed path so a caller can render a
// progress bar without waiting for the whole batch.
func (s *Service) ImportFiles(ctx context.Context, paths []string, forceClass model.AssetClass) *model.ImportResult {
	result := &model.ImportResult{
		Success:    make([]*model.CatalogEntry, 0),
		Failed:     make([]string, 0),
		Duplicates: make([]string, 0),
	}

	for i, path := range paths {
		entry, err := s.importOne(ctx, path, forceClass)
		switch {
		case errors.Is(err, errDuplicate):
			result.Duplicates = append(result.Duplicates, path)
		case err != nil:
			logger.Warn("import failed", logger.String("path", path), logger.ErrorField(err))
			result.Failed = append(result.Failed, path)
		default:
			result.Success = append(result.Success, entry)
		}

		s.notifier.Emit(model.EventImportProgress, model.ImportProgress{
			Current:  i + 1,
			Total:    len(paths),
			Filename: filepath.Base(path),
		})
	}

	return result
}

// errDuplicate routes a path into the duplicates bucket. It is a
// classification, not a failure, and never escapes ImportFiles.
var errDuplicate = errors.New("duplicate content hash")

// importOne processes a single path:
// extension check -> hash+metadata -> dedup by hash -> classify -> copy into
// the tree -> insert. Insertion is last, so a copy failure leaves no partial
// catalog state.
func (s *Service) importOne(ctx context.Context, path string, forceClass model.AssetClass) (*model.CatalogEntry, error) {
	if !IsAudioFile(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	// Hash before any duplicate check so dedup is content-based, not
	// name-based.
	meta, err := s.pool.Analyze(ctx, path, analyzer.KindFull)
	if err != nil {
		return nil, err
	}

	existing, err := s.catalog.GetByHash(meta.ContentHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errDuplicate
	}

	class := forceClass
	if !class.Valid() {
		class = DetectAssetClass(filepath.Base(path))
	}

	destPath, destName, err := s.copyIntoTree(path, class)
	if err != nil {
		return nil, err
	}
	s.noteImported(destPath)

	entry := &model.CatalogEntry{
		ID:              uuid.NewString(),
		Filename:        destName,
		AssetClass:      class,
		LocalPath:       destPath,
		ContentHash:     meta.ContentHash,
		DurationSeconds: meta.DurationSeconds,
		SizeBytes:       meta.SizeBytes,
		Tags:            model.TagList{},
	}
	if err := s.catalog.Create(entry); err != nil {
		// The copy landed but the row did not; remove the copy so the
		// tree and catalog stay consistent.
		if rmErr := os.Remove(destPath); rmErr != nil {
			logger.Warn("failed to remove orphaned copy", logger.String("path", destPath), logger.ErrorField(rmErr))
		}
		return nil, err
	}

	s.maybeQueueUpload(entry)

	logger.Info("imported file",
		logger.String("id", entry.ID),
		logger.String("filename", entry.Filename),
		logger.String("class", string(class)),
		logger.String("hash", entry.ContentHash),
	)
	return entry, nil
}

// IngestExisting inserts a file that is already inside the library tree
// (watcher path). No copy happens; the asset class comes from the immediate
// parent directory when it names a class, else the filename heuristic.
func (s *Service) IngestExisting(ctx context.Context, path string) (*model.CatalogEntry, error) {
	meta, err := s.pool.Analyze(ctx, path, analyzer.KindFull)
	if err != nil {
		return nil, err
	}

	existing, err := s.catalog.GetByHash(meta.ContentHash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errDuplicate
	}

	class := classFromParentDir(path)

	entry := &model.CatalogEntry{
		ID:              uuid.NewString(),
		Filename:        filepath.Base(path),
		AssetClass:      class,
		LocalPath:       path,
		ContentHash:     meta.ContentHash,
		DurationSeconds: meta.DurationSeconds,
		SizeBytes:       meta.SizeBytes,
		Tags:            model.TagList{},
	}
	if err := s.catalog.Create(entry); err != nil {
		return nil, err
	}

	s.maybeQueueUpload(entry)
	return entry, nil
}

// IsDuplicateErr reports whether an ingest error was the duplicate
// classification rather than a real failure.
func IsDuplicateErr(err error) bool {
	return errors.Is(err, errDuplicate)
}

// RemoveEntry deletes the catalog row and unlinks the file. When the entry
// is mirrored and alsoRemote is set, a remote delete is queued.
func (s *Service) RemoveEntry(id string, alsoRemote bool) error {
	entry, err := s.catalog.GetByID(id)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("catalog entry %s not found", id)
	}

	if err := os.Remove(entry.LocalPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", entry.LocalPath, err)
	}
	if err := s.catalog.Delete(id); err != nil {
		return err
	}

	if alsoRemote && entry.Mirrored() && s.queue != nil {
		_, err := s.queue.Enqueue(model.OpDelete, entry.ID, entry.AssetClass, *entry.RemoteKey)
		if err != nil && !errors.Is(err, repository.ErrAlreadyQueued) {
			logger.Warn("failed to queue remote delete", logger.String("id", id), logger.ErrorField(err))
		}
	}

	s.notifier.Emit(model.EventLibraryUpdated, model.LibraryUpdate{Type: "remove", Path: entry.LocalPath})
	return nil
}

// Stats returns per-class counts and the total stored size.
func (s *Service) Stats() (*model.LibraryStats, error) {
	return s.catalog.Stats()
}

// ClearLibrary unlinks every file under the music/ and sfx/ subdirectories
// and empties the catalog. Returns the number of files removed. Files that
// cannot be unlinked are logged and skipped; the catalog is cleared
// regardless so the library never references files it no longer manages.
func (s *Service) ClearLibrary() (int, error) {
	root, err := s.EnsureTree()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, class := range []model.AssetClass{model.AssetMusic, model.AssetSFX} {
		dir := filepath.Join(root, string(class))
		dirEntries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("failed to read library directory %s: %w", dir, err)
		}
		for _, de := range dirEntries {
			if de.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, de.Name())); err != nil {
				logger.Warn("failed to remove library file", logger.String("path", filepath.Join(dir, de.Name())), logger.ErrorField(err))
				continue
			}
			removed++
		}
	}

	cleared, err := s.catalog.DeleteAll()
	if err != nil {
		return removed, err
	}

	logger.Info("library cleared",
		logger.Int("filesRemoved", removed),
		logger.Int64("entriesRemoved", cleared),
	)
	s.notifier.Emit(model.EventLibraryUpdated, model.LibraryUpdate{Type: "clear"})
	return removed, nil
}

// IsRecentImport reports whether the path was just written by the import
// pipeline. The watcher consults this to avoid re-processing copies whose
// catalog row already exists or is about to.
func (s *Service) IsRecentImport(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.recents[path]
	if !ok {
		return false
	}
	if time.Since(seen) > recentImportTTL {
		delete(s.recents, path)
		return false
	}
	return true
}

func (s *Service) noteImported(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for p, t := range s.recents {
		if now.Sub(t) > recentImportTTL {
			delete(s.recents, p)
		}
	}
	s.recents[path] = now
}

func (s *Service) maybeQueueUpload(entry *model.CatalogEntry) {
	if s.queue == nil || !s.settings.Get().AutoSync {
		return
	}
	_, err := s.queue.Enqueue(model.OpUpload, entry.ID, entry.AssetClass, "")
	if err != nil && !errors.Is(err, repository.ErrAlreadyQueued) {
		logger.Warn("failed to queue upload", logger.String("id", entry.ID), logger.ErrorField(err))
	}
}

// copyIntoTree copies (never moves) the source under <root>/<class>/,
// suffixing an import timestamp to dodge name collisions while keeping the
// extension.
func (s *Service) copyIntoTree(sourcePath string, class model.AssetClass) (string, string, error) {
	root, err := s.EnsureTree()
	if err != nil {
		return "", "", err
	}

	ext := filepath.Ext(sourcePath)
	base := strings.TrimSuffix(filepath.Base(sourcePath), ext)
	destName := fmt.Sprintf("%s_%d%s", base, time.Now().UnixMilli(), ext)
	destPath := filepath.Join(root, string(class), destName)

	if err := copyFile(sourcePath, destPath); err != nil {
		return "", "", err
	}
	return destPath, destName, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to finish copy %s: %w", dst, err)
	}
	return nil
}

// classFromParentDir infers the asset class for a file already in the tree:
// the immediate parent directory wins when it names a class, otherwise the
// filename heuristic decides.
func classFromParentDir(path string) model.AssetClass {
	parent := model.AssetClass(filepath.Base(filepath.Dir(path)))
	if parent.Valid() {
		return parent
	}
	return DetectAssetClass(filepath.Base(path))
}
