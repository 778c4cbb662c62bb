package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonexa/core/analyzer"
	"sonexa/core/library"
	"sonexa/core/watcher"
	"sonexa/db"
	"sonexa/model"
	"sonexa/repository"
	"sonexa/settings"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Emit(event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if update, ok := payload.(model.LibraryUpdate); ok {
		r.events = append(r.events, event+":"+update.Type)
		return
	}
	r.events = append(r.events, event)
}

func (r *recordingNotifier) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == name {
			return true
		}
	}
	return false
}

type watchFixture struct {
	w        *watcher.Watcher
	lib      *library.Service
	catalog  repository.CatalogRepository
	notifier *recordingNotifier
	root     string
}

func newWatchFixture(t *testing.T) *watchFixture {
	t.Helper()

	gdb, err := db.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	root := filepath.Join(t.TempDir(), "library")
	st, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	require.NoError(t, st.Update(func(s *settings.AppSettings) {
		s.LibraryPath = root
	}))

	catalog := repository.NewCatalogRepository(gdb)
	pool := analyzer.NewPool(1, "", "")
	lib := library.NewService(catalog, nil, pool, st, nil)
	notifier := &recordingNotifier{}

	return &watchFixture{
		w:        watcher.New(lib, notifier),
		lib:      lib,
		catalog:  catalog,
		notifier: notifier,
		root:     root,
	}
}

func (f *watchFixture) catalogCount(t *testing.T) int {
	t.Helper()
	entries, err := f.catalog.List()
	require.NoError(t, err)
	return len(entries)
}

func TestLifecycle(t *testing.T) {
	t.Run("StartIsIdempotent", func(t *testing.T) {
		f := newWatchFixture(t)

		require.NoError(t, f.w.Start())
		assert.True(t, f.w.Running())
		require.NoError(t, f.w.Start())
		assert.True(t, f.w.Running())

		f.w.Stop()
		assert.False(t, f.w.Running())
	})

	t.Run("StopIsIdempotent", func(t *testing.T) {
		f := newWatchFixture(t)

		// Stop before any Start must not block or panic.
		f.w.Stop()

		require.NoError(t, f.w.Start())
		f.w.Stop()
		f.w.Stop()
		assert.False(t, f.w.Running())
	})

	t.Run("Restart", func(t *testing.T) {
		f := newWatchFixture(t)

		require.NoError(t, f.w.Start())
		require.NoError(t, f.w.Restart())
		assert.True(t, f.w.Running())
		f.w.Stop()
	})

	t.Run("StartCreatesTree", func(t *testing.T) {
		f := newWatchFixture(t)

		require.NoError(t, f.w.Start())
		defer f.w.Stop()

		assert.DirExists(t, filepath.Join(f.root, "music"))
		assert.DirExists(t, filepath.Join(f.root, "sfx"))
	})
}

func TestWatcherIngest(t *testing.T) {
	t.Run("DroppedFileGetsCataloged", func(t *testing.T) {
		f := newWatchFixture(t)
		require.NoError(t, f.w.Start())
		defer f.w.Stop()

		path := filepath.Join(f.root, "music", "dropped.wav")
		require.NoError(t, os.WriteFile(path, []byte("dropped bytes"), 0644))

		require.Eventually(t, func() bool {
			return f.catalogCount(t) == 1
		}, 10*time.Second, 100*time.Millisecond)

		entries, err := f.catalog.List()
		require.NoError(t, err)
		assert.Equal(t, model.AssetMusic, entries[0].AssetClass)
		assert.Equal(t, path, entries[0].LocalPath)
		assert.True(t, f.notifier.has(model.EventLibraryUpdated+":add"))
	})

	t.Run("DuplicateContentIgnored", func(t *testing.T) {
		f := newWatchFixture(t)

		// Already cataloged through the watcher-independent path.
		_, err := f.lib.EnsureTree()
		require.NoError(t, err)
		existing := filepath.Join(f.root, "music", "first.wav")
		require.NoError(t, os.WriteFile(existing, []byte("same content"), 0644))
		_, err = f.lib.IngestExisting(context.Background(), existing)
		require.NoError(t, err)

		require.NoError(t, f.w.Start())
		defer f.w.Stop()

		twin := filepath.Join(f.root, "music", "second.wav")
		require.NoError(t, os.WriteFile(twin, []byte("same content"), 0644))

		// Give the debounce window time to elapse, then confirm nothing
		// new appeared.
		time.Sleep(4 * time.Second)
		assert.Equal(t, 1, f.catalogCount(t))
	})

	t.Run("NonAudioIgnored", func(t *testing.T) {
		f := newWatchFixture(t)
		require.NoError(t, f.w.Start())
		defer f.w.Stop()

		require.NoError(t, os.WriteFile(filepath.Join(f.root, "music", "cover.jpg"), []byte("jpeg"), 0644))

		time.Sleep(4 * time.Second)
		assert.Equal(t, 0, f.catalogCount(t))
	})

	t.Run("RecentImportSkipped", func(t *testing.T) {
		f := newWatchFixture(t)
		require.NoError(t, f.w.Start())
		defer f.w.Stop()

		// The import pipeline writes into the watched tree itself; the
		// watcher must not race it into a duplicate attempt.
		src := filepath.Join(t.TempDir(), "pipeline.wav")
		require.NoError(t, os.WriteFile(src, []byte("pipeline bytes"), 0644))
		result := f.lib.ImportFiles(context.Background(), []string{src}, "")
		require.Len(t, result.Success, 1)

		time.Sleep(4 * time.Second)
		assert.Equal(t, 1, f.catalogCount(t))
	})

	t.Run("RestartCancelsPendingDebounce", func(t *testing.T) {
		f := newWatchFixture(t)
		require.NoError(t, f.w.Start())
		defer f.w.Stop()

		// Arm a quiet-period timer, then restart before it fires. The old
		// run's timer must neither ingest nor trip over the new run's state.
		path := filepath.Join(f.root, "music", "interrupted.wav")
		require.NoError(t, os.WriteFile(path, []byte("interrupted"), 0644))
		time.Sleep(200 * time.Millisecond)
		require.NoError(t, f.w.Restart())

		time.Sleep(4 * time.Second)
		assert.Equal(t, 0, f.catalogCount(t))
		assert.True(t, f.w.Running())
	})

	t.Run("RemovalEmitsEvent", func(t *testing.T) {
		f := newWatchFixture(t)
		require.NoError(t, f.w.Start())
		defer f.w.Stop()

		path := filepath.Join(f.root, "sfx", "hit_01.wav")
		require.NoError(t, os.WriteFile(path, []byte("hit"), 0644))

		require.Eventually(t, func() bool {
			return f.catalogCount(t) == 1
		}, 10*time.Second, 100*time.Millisecond)

		require.NoError(t, os.Remove(path))

		require.Eventually(t, func() bool {
			return f.notifier.has(model.EventLibraryUpdated + ":remove")
		}, 10*time.Second, 100*time.Millisecond)

		// The catalog row survives removal; only the event fires.
		assert.Equal(t, 1, f.catalogCount(t))
	})
}
