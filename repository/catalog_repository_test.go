package repository_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonexa/db"
	"sonexa/model"
	"sonexa/repository"
)

func newCatalogRepo(t *testing.T) repository.CatalogRepository {
	t.Helper()

	gdb, err := db.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	return repository.NewCatalogRepository(gdb)
}

func newEntry(hash string, class model.AssetClass) *model.CatalogEntry {
	return &model.CatalogEntry{
		ID:              uuid.NewString(),
		Filename:        "track_" + hash + ".wav",
		AssetClass:      class,
		LocalPath:       "/tmp/library/" + string(class) + "/track_" + hash + ".wav",
		ContentHash:     hash,
		DurationSeconds: 12.5,
		SizeBytes:       2048,
		Tags:            model.TagList{},
	}
}

func TestCatalogCreate(t *testing.T) {
	t.Run("InsertAndFetch", func(t *testing.T) {
		repo := newCatalogRepo(t)

		entry := newEntry("aaa111", model.AssetMusic)
		require.NoError(t, repo.Create(entry))

		got, err := repo.GetByID(entry.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, entry.ContentHash, got.ContentHash)
		assert.Equal(t, model.AssetMusic, got.AssetClass)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("DuplicateHashRejected", func(t *testing.T) {
		repo := newCatalogRepo(t)

		require.NoError(t, repo.Create(newEntry("samehash", model.AssetMusic)))

		dup := newEntry("samehash", model.AssetSFX)
		assert.Error(t, repo.Create(dup))
	})
}

func TestCatalogLookups(t *testing.T) {
	t.Run("GetByHashMissingIsNilNil", func(t *testing.T) {
		repo := newCatalogRepo(t)

		got, err := repo.GetByHash("nope")
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("GetByIDMissingIsNilNil", func(t *testing.T) {
		repo := newCatalogRepo(t)

		got, err := repo.GetByID(uuid.NewString())
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("GetByHashFindsOwner", func(t *testing.T) {
		repo := newCatalogRepo(t)

		entry := newEntry("deadbeef", model.AssetSFX)
		require.NoError(t, repo.Create(entry))

		got, err := repo.GetByHash("deadbeef")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, entry.ID, got.ID)
	})
}

func TestCatalogRemoteTracking(t *testing.T) {
	t.Run("SetRemoteMarksMirrored", func(t *testing.T) {
		repo := newCatalogRepo(t)

		entry := newEntry("aaa", model.AssetMusic)
		require.NoError(t, repo.Create(entry))
		assert.False(t, entry.Mirrored())

		require.NoError(t, repo.SetRemote(entry.ID, "music/track_aaa.wav", "https://store/bucket/music/track_aaa.wav"))

		got, err := repo.GetByID(entry.ID)
		require.NoError(t, err)
		require.NotNil(t, got.RemoteKey)
		assert.Equal(t, "music/track_aaa.wav", *got.RemoteKey)
		assert.True(t, got.Mirrored())
	})

	t.Run("SetRemoteUnknownEntryFails", func(t *testing.T) {
		repo := newCatalogRepo(t)

		err := repo.SetRemote(uuid.NewString(), "music/x.wav", "")
		assert.Error(t, err)
	})

	t.Run("ListLocalOnlySkipsMirrored", func(t *testing.T) {
		repo := newCatalogRepo(t)

		local := newEntry("localhash", model.AssetMusic)
		mirrored := newEntry("remotehash", model.AssetMusic)
		require.NoError(t, repo.Create(local))
		require.NoError(t, repo.Create(mirrored))
		require.NoError(t, repo.SetRemote(mirrored.ID, "music/mirrored.wav", ""))

		entries, err := repo.ListLocalOnly()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, local.ID, entries[0].ID)
	})

	t.Run("ListRemoteKeys", func(t *testing.T) {
		repo := newCatalogRepo(t)

		a := newEntry("a", model.AssetMusic)
		b := newEntry("b", model.AssetSFX)
		c := newEntry("c", model.AssetMusic)
		for _, e := range []*model.CatalogEntry{a, b, c} {
			require.NoError(t, repo.Create(e))
		}
		require.NoError(t, repo.SetRemote(a.ID, "music/a.wav", ""))
		require.NoError(t, repo.SetRemote(b.ID, "sfx/b.wav", ""))

		keys, err := repo.ListRemoteKeys()
		require.NoError(t, err)
		assert.Len(t, keys, 2)
		assert.Contains(t, keys, "music/a.wav")
		assert.Contains(t, keys, "sfx/b.wav")
	})
}

func TestCatalogUpdate(t *testing.T) {
	repo := newCatalogRepo(t)

	entry := newEntry("tagged", model.AssetMusic)
	require.NoError(t, repo.Create(entry))

	bpm := 128
	entry.Tags = model.TagList{"ambient", "loop"}
	entry.BPM = &bpm
	entry.Favorite = true
	require.NoError(t, repo.Update(entry))

	got, err := repo.GetByID(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TagList{"ambient", "loop"}, got.Tags)
	require.NotNil(t, got.BPM)
	assert.Equal(t, 128, *got.BPM)
	assert.True(t, got.Favorite)
}

func TestCatalogDelete(t *testing.T) {
	repo := newCatalogRepo(t)

	entry := newEntry("gone", model.AssetMusic)
	require.NoError(t, repo.Create(entry))
	require.NoError(t, repo.Delete(entry.ID))

	got, err := repo.GetByID(entry.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Hash is free again after deletion.
	require.NoError(t, repo.Create(newEntry("gone", model.AssetMusic)))
}

func TestCatalogDeleteAll(t *testing.T) {
	repo := newCatalogRepo(t)

	for _, hash := range []string{"x1", "x2", "x3"} {
		require.NoError(t, repo.Create(newEntry(hash, model.AssetMusic)))
	}

	cleared, err := repo.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, int64(3), cleared)

	entries, err := repo.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Empty catalog clears to zero.
	cleared, err = repo.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, int64(0), cleared)
}

func TestCatalogStats(t *testing.T) {
	repo := newCatalogRepo(t)

	for _, hash := range []string{"m1", "m2"} {
		require.NoError(t, repo.Create(newEntry(hash, model.AssetMusic)))
	}
	require.NoError(t, repo.Create(newEntry("s1", model.AssetSFX)))

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MusicCount)
	assert.Equal(t, 1, stats.SFXCount)
	assert.Equal(t, int64(3*2048), stats.TotalSize)
}
