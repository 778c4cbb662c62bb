package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonexa/db"
	"sonexa/model"
)

func newQueueRepo(t *testing.T) (*gormSyncQueueRepository, *time.Time) {
	t.Helper()

	gdb, err := db.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &gormSyncQueueRepository{db: gdb, now: func() time.Time { return now }}
	return repo, &now
}

func TestEnqueue(t *testing.T) {
	t.Run("CreatesPendingItem", func(t *testing.T) {
		repo, _ := newQueueRepo(t)

		item, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
		require.NoError(t, err)

		assert.Equal(t, model.StatusPending, item.Status)
		assert.Equal(t, model.MaxSyncRetries, item.MaxRetries)
		assert.Equal(t, 0, item.RetryCount)
		assert.Nil(t, item.NextRetryAt)
	})

	t.Run("RejectsDuplicatePendingWork", func(t *testing.T) {
		repo, _ := newQueueRepo(t)

		_, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
		require.NoError(t, err)

		_, err = repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
		assert.ErrorIs(t, err, ErrAlreadyQueued)
	})

	t.Run("AllowsDifferentOperationForSameEntry", func(t *testing.T) {
		repo, _ := newQueueRepo(t)

		_, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
		require.NoError(t, err)

		_, err = repo.Enqueue(model.OpDelete, "entry-1", model.AssetMusic, "music/a.wav")
		assert.NoError(t, err)
	})

	t.Run("DedupsByRemoteKeyWhenNoEntry", func(t *testing.T) {
		repo, _ := newQueueRepo(t)

		_, err := repo.Enqueue(model.OpDownload, "", model.AssetSFX, "sfx/boom.wav")
		require.NoError(t, err)

		_, err = repo.Enqueue(model.OpDownload, "", model.AssetSFX, "sfx/boom.wav")
		assert.ErrorIs(t, err, ErrAlreadyQueued)
	})
}

func TestClaimBatch(t *testing.T) {
	t.Run("ReturnsItemsInCreationOrder", func(t *testing.T) {
		repo, now := newQueueRepo(t)

		base := *now
		for i, entry := range []string{"a", "b", "c"} {
			*now = base.Add(time.Duration(i) * time.Second)
			_, err := repo.Enqueue(model.OpUpload, entry, model.AssetMusic, "")
			require.NoError(t, err)
		}

		items, err := repo.ClaimBatch(10)
		require.NoError(t, err)
		require.Len(t, items, 3)

		assert.Equal(t, "a", items[0].EntryID)
		assert.Equal(t, "b", items[1].EntryID)
		assert.Equal(t, "c", items[2].EntryID)
		for _, item := range items {
			assert.Equal(t, model.StatusProcessing, item.Status)
		}
	})

	t.Run("SkipsItemsInBackoffWindow", func(t *testing.T) {
		repo, now := newQueueRepo(t)

		item, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
		require.NoError(t, err)
		_, err = repo.ClaimBatch(10)
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(item.ID, "remote unreachable"))

		// Still inside the 30s backoff window.
		items, err := repo.ClaimBatch(10)
		require.NoError(t, err)
		assert.Empty(t, items)

		// Past the window the item is eligible again.
		*now = now.Add(31 * time.Second)
		items, err = repo.ClaimBatch(10)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("NeverClaimsPermanentlyFailed", func(t *testing.T) {
		repo, now := newQueueRepo(t)

		item, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
		require.NoError(t, err)

		for i := 0; i < model.MaxSyncRetries; i++ {
			*now = now.Add(2 * time.Hour)
			claimed, err := repo.ClaimBatch(10)
			require.NoError(t, err)
			require.Len(t, claimed, 1)
			require.NoError(t, repo.MarkFailed(item.ID, "still down"))
		}

		*now = now.Add(24 * time.Hour)
		items, err := repo.ClaimBatch(10)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("RespectsLimit", func(t *testing.T) {
		repo, now := newQueueRepo(t)

		base := *now
		for i := 0; i < 5; i++ {
			*now = base.Add(time.Duration(i) * time.Second)
			_, err := repo.Enqueue(model.OpUpload, string(rune('a'+i)), model.AssetMusic, "")
			require.NoError(t, err)
		}

		items, err := repo.ClaimBatch(2)
		require.NoError(t, err)
		assert.Len(t, items, 2)
		assert.Equal(t, "a", items[0].EntryID)
	})
}

func TestMarkFailed(t *testing.T) {
	t.Run("FirstFailureSchedulesThirtySecondRetry", func(t *testing.T) {
		repo, now := newQueueRepo(t)

		item, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(item.ID, "connection refused"))

		got, err := repo.GetByID(item.ID)
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Equal(t, 1, got.RetryCount)
		assert.Equal(t, "connection refused", got.LastError)
		require.NotNil(t, got.NextRetryAt)
		assert.Equal(t, now.Add(30*time.Second).Unix(), got.NextRetryAt.Unix())
	})

	t.Run("BackoffEscalates", func(t *testing.T) {
		repo, now := newQueueRepo(t)

		item, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
		require.NoError(t, err)

		expected := []time.Duration{30 * time.Second, time.Minute, 5 * time.Minute, 15 * time.Minute}
		for i, delay := range expected {
			require.NoError(t, repo.MarkFailed(item.ID, "down"))

			got, err := repo.GetByID(item.ID)
			require.NoError(t, err)
			require.NotNil(t, got.NextRetryAt, "retry %d", i+1)
			assert.Equal(t, now.Add(delay).Unix(), got.NextRetryAt.Unix(), "retry %d", i+1)
		}
	})

	t.Run("ExhaustedRetriesAreTerminal", func(t *testing.T) {
		repo, _ := newQueueRepo(t)

		item, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
		require.NoError(t, err)

		for i := 0; i < model.MaxSyncRetries; i++ {
			require.NoError(t, repo.MarkFailed(item.ID, "down"))
		}

		got, err := repo.GetByID(item.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, got.Status)
		assert.Equal(t, model.MaxSyncRetries, got.RetryCount)
		assert.Nil(t, got.NextRetryAt)
		assert.True(t, got.PermanentlyFailed())
	})
}

func TestMarkCompleted(t *testing.T) {
	repo, _ := newQueueRepo(t)

	item, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
	require.NoError(t, err)
	require.NoError(t, repo.MarkCompleted(item.ID))

	// Completed work leaves no row behind.
	got, err := repo.GetByID(item.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
}

func TestResetStuckItems(t *testing.T) {
	repo, _ := newQueueRepo(t)

	item, err := repo.Enqueue(model.OpUpload, "entry-1", model.AssetMusic, "")
	require.NoError(t, err)

	claimed, err := repo.ClaimBatch(10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Simulate a crash mid-processing: the item is still marked processing
	// when the process comes back.
	count, err := repo.ResetStuckItems()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := repo.GetByID(item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestQueueStats(t *testing.T) {
	repo, now := newQueueRepo(t)

	base := *now
	*now = base
	_, err := repo.Enqueue(model.OpUpload, "a", model.AssetMusic, "")
	require.NoError(t, err)
	*now = base.Add(time.Second)
	itemB, err := repo.Enqueue(model.OpUpload, "b", model.AssetMusic, "")
	require.NoError(t, err)
	*now = base.Add(2 * time.Second)
	itemC, err := repo.Enqueue(model.OpUpload, "c", model.AssetMusic, "")
	require.NoError(t, err)

	// b processing, c permanently failed.
	require.NoError(t, repo.db.Model(&model.SyncQueueItem{}).Where("id = ?", itemB.ID).
		Update("status", model.StatusProcessing).Error)
	for i := 0; i < model.MaxSyncRetries; i++ {
		require.NoError(t, repo.MarkFailed(itemC.ID, "down"))
	}

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Processing)
	assert.Equal(t, int64(1), stats.PermanentlyFailed)
	assert.Equal(t, int64(3), stats.Total)
}

func TestClearPermanentlyFailed(t *testing.T) {
	repo, _ := newQueueRepo(t)

	item, err := repo.Enqueue(model.OpUpload, "a", model.AssetMusic, "")
	require.NoError(t, err)
	for i := 0; i < model.MaxSyncRetries; i++ {
		require.NoError(t, repo.MarkFailed(item.ID, "down"))
	}

	cleared, err := repo.ClearPermanentlyFailed()
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
}
