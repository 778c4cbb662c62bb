package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"sonexa/model"
)

// CatalogRepository defines the interface for catalog entry data operations.
type CatalogRepository interface {
	Create(entry *model.CatalogEntry) error
	GetByID(id string) (*model.CatalogEntry, error)
	GetByHash(contentHash string) (*model.CatalogEntry, error)
	List() ([]*model.CatalogEntry, error)
	ListLocalOnly() ([]*model.CatalogEntry, error)
	ListRemoteKeys() (map[string]struct{}, error)
	SetRemote(id, remoteKey, remoteURL string) error
	Update(entry *model.CatalogEntry) error
	Delete(id string) error
	DeleteAll() (int64, error)
	Stats() (*model.LibraryStats, error)
}

// gormCatalogRepository implements CatalogRepository on the embedded store.
type gormCatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new catalog repository.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &gormCatalogRepository{db: db}
}

// Create inserts a new catalog entry. The content hash carries a unique
// index, so inserting a duplicate hash fails at the database level too.
func (r *gormCatalogRepository) Create(entry *model.CatalogEntry) error {
	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create catalog entry %s: %w", entry.Filename, err)
	}
	return nil
}

// GetByID retrieves an entry by its ID. Returns (nil, nil) when not found.
func (r *gormCatalogRepository) GetByID(id string) (*model.CatalogEntry, error) {
	var entry model.CatalogEntry
	err := r.db.First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query catalog entry %s: %w", id, err)
	}
	return &entry, nil
}

// GetByHash retrieves an entry by content hash. This is the dedup lookup:
// returns (nil, nil) when no entry owns the hash.
func (r *gormCatalogRepository) GetByHash(contentHash string) (*model.CatalogEntry, error) {
	var entry model.CatalogEntry
	err := r.db.First(&entry, "content_hash = ?", contentHash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query catalog entry by hash: %w", err)
	}
	return &entry, nil
}

// List retrieves all entries, newest first.
func (r *gormCatalogRepository) List() ([]*model.CatalogEntry, error) {
	var entries []*model.CatalogEntry
	if err := r.db.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list catalog entries: %w", err)
	}
	return entries, nil
}

// ListLocalOnly retrieves entries that have no remote mirror yet. These are
// the upload candidates for reconciliation.
func (r *gormCatalogRepository) ListLocalOnly() ([]*model.CatalogEntry, error) {
	var entries []*model.CatalogEntry
	err := r.db.Where("remote_key IS NULL OR remote_key = ''").
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list local-only entries: %w", err)
	}
	return entries, nil
}

// ListRemoteKeys returns the set of non-null remote keys known locally.
func (r *gormCatalogRepository) ListRemoteKeys() (map[string]struct{}, error) {
	var keys []string
	err := r.db.Model(&model.CatalogEntry{}).
		Where("remote_key IS NOT NULL AND remote_key != ''").
		Pluck("remote_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list remote keys: %w", err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

// SetRemote records the remote identifiers after a successful upload.
func (r *gormCatalogRepository) SetRemote(id, remoteKey, remoteURL string) error {
	res := r.db.Model(&model.CatalogEntry{}).Where("id = ?", id).Updates(map[string]interface{}{
		"remote_key": remoteKey,
		"remote_url": remoteURL,
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to set remote info for entry %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("catalog entry %s not found", id)
	}
	return nil
}

// Update persists mutable fields (tags, bpm, favorite, asset class) and
// bumps UpdatedAt.
func (r *gormCatalogRepository) Update(entry *model.CatalogEntry) error {
	entry.UpdatedAt = time.Now()
	if err := r.db.Save(entry).Error; err != nil {
		return fmt.Errorf("failed to update catalog entry %s: %w", entry.ID, err)
	}
	return nil
}

// Delete removes an entry by ID.
func (r *gormCatalogRepository) Delete(id string) error {
	if err := r.db.Delete(&model.CatalogEntry{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete catalog entry %s: %w", id, err)
	}
	return nil
}

// DeleteAll empties the catalog and returns how many entries were removed.
func (r *gormCatalogRepository) DeleteAll() (int64, error) {
	res := r.db.Where("1 = 1").Delete(&model.CatalogEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear catalog: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Stats aggregates per-class counts and the total stored size.
func (r *gormCatalogRepository) Stats() (*model.LibraryStats, error) {
	stats := &model.LibraryStats{}

	type row struct {
		AssetClass model.AssetClass
		Count      int
		Size       int64
	}
	var rows []row
	err := r.db.Model(&model.CatalogEntry{}).
		Select("asset_class, COUNT(*) AS count, COALESCE(SUM(size_bytes), 0) AS size").
		Group("asset_class").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate library stats: %w", err)
	}

	for _, r := range rows {
		switch r.AssetClass {
		case model.AssetMusic:
			stats.MusicCount = r.Count
		case model.AssetSFX:
			stats.SFXCount = r.Count
		}
		stats.TotalSize += r.Size
	}
	return stats, nil
}
