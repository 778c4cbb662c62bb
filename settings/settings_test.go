package settings_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonexa/settings"
)

func TestNewStore(t *testing.T) {
	t.Run("MissingFileYieldsDefaults", func(t *testing.T) {
		store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
		require.NoError(t, err)

		got := store.Get()
		assert.Equal(t, "~/SonexaLibrary", got.LibraryPath)
		assert.Equal(t, "system", got.Theme)
		assert.False(t, got.AutoSync)
	})

	t.Run("LoadsExistingFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"libraryPath": "/srv/audio",
			"remoteEndpoint": "minio.local:9000",
			"autoSync": true,
			"lastSyncAt": "",
			"theme": "dark",
			"onboardingComplete": true
		}`), 0644))

		store, err := settings.NewStore(path)
		require.NoError(t, err)

		got := store.Get()
		assert.Equal(t, "/srv/audio", got.LibraryPath)
		assert.Equal(t, "minio.local:9000", got.RemoteEndpoint)
		assert.True(t, got.AutoSync)
		assert.Equal(t, "dark", got.Theme)
	})

	t.Run("UnknownFieldRejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"libraryPath": "/x", "surprise": true}`), 0644))

		_, err := settings.NewStore(path)
		assert.Error(t, err)
	})

	t.Run("MalformedJSONRejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

		_, err := settings.NewStore(path)
		assert.Error(t, err)
	})
}

func TestPersistence(t *testing.T) {
	t.Run("SetSurvivesReopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")

		store, err := settings.NewStore(path)
		require.NoError(t, err)

		updated := settings.Defaults()
		updated.LibraryPath = "/data/library"
		updated.AutoSync = true
		require.NoError(t, store.Set(updated))

		reopened, err := settings.NewStore(path)
		require.NoError(t, err)
		got := reopened.Get()
		assert.Equal(t, "/data/library", got.LibraryPath)
		assert.True(t, got.AutoSync)
	})

	t.Run("UpdateMutatesOneField", func(t *testing.T) {
		store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
		require.NoError(t, err)

		require.NoError(t, store.Update(func(s *settings.AppSettings) {
			s.Theme = "light"
		}))

		got := store.Get()
		assert.Equal(t, "light", got.Theme)
		assert.Equal(t, "~/SonexaLibrary", got.LibraryPath)
	})

	t.Run("ResetRestoresDefaults", func(t *testing.T) {
		store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
		require.NoError(t, err)

		require.NoError(t, store.Update(func(s *settings.AppSettings) {
			s.Theme = "dark"
			s.AutoSync = true
		}))
		require.NoError(t, store.Reset())

		got := store.Get()
		assert.Equal(t, settings.Defaults(), got)
	})
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "SonexaLibrary"), settings.ExpandHome("~/SonexaLibrary"))
	assert.Equal(t, home, settings.ExpandHome("~"))
	assert.Equal(t, "/absolute/path", settings.ExpandHome("/absolute/path"))
	assert.Equal(t, "relative/path", settings.ExpandHome("relative/path"))
}

func TestLibraryPath(t *testing.T) {
	store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "SonexaLibrary"), store.LibraryPath())

	require.NoError(t, store.Update(func(s *settings.AppSettings) {
		s.LibraryPath = "/explicit/root"
	}))
	assert.Equal(t, "/explicit/root", store.LibraryPath())
}
