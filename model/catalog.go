package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// AssetClass classifies an audio asset within the library tree.
type AssetClass string

const (
	AssetMusic AssetClass = "music"
	AssetSFX   AssetClass = "sfx"
)

// Valid reports whether the class is one of the known values.
func (c AssetClass) Valid() bool {
	return c == AssetMusic || c == AssetSFX
}

// TagList stores user tags as a JSON array in a text column.
type TagList []string

// Scan implements sql.Scanner.
func (t *TagList) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*t = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*t = nil
		return nil
	}
	return json.Unmarshal(bytes, t)
}

// Value implements driver.Valuer.
func (t TagList) Value() (driver.Value, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}

// CatalogEntry represents one tracked audio asset in the local library.
// ContentHash carries a unique index: two byte-identical files collapse to a
// single entry no matter what they were named at import time.
type CatalogEntry struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	Filename        string     `json:"filename"`
	AssetClass      AssetClass `json:"assetClass" gorm:"size:16;index"`
	LocalPath       string     `json:"localPath"`
	ContentHash     string     `json:"contentHash" gorm:"size:64;uniqueIndex"`
	DurationSeconds float64    `json:"durationSeconds"`
	SizeBytes       int64      `json:"sizeBytes"`
	Tags            TagList    `json:"tags" gorm:"type:text"`
	BPM             *int       `json:"bpm"`
	Favorite        bool       `json:"favorite"`
	RemoteKey       *string    `json:"remoteKey" gorm:"index"`
	RemoteURL       *string    `json:"remoteUrl"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// TableName maps the entry onto the files table.
func (CatalogEntry) TableName() string {
	return "catalog_entries"
}

// Mirrored reports whether the entry is believed to exist remotely.
func (e *CatalogEntry) Mirrored() bool {
	return e.RemoteKey != nil && *e.RemoteKey != ""
}

// LibraryStats aggregates per-class counts and the total stored size.
type LibraryStats struct {
	MusicCount int   `json:"musicCount"`
	SFXCount   int   `json:"sfxCount"`
	TotalSize  int64 `json:"totalSize"`
}
