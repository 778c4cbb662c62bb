package model

// Event names pushed to the notification sink. The core fires these and never
// waits for an acknowledgment.
const (
	EventImportProgress = "import-progress"
	EventLibraryUpdated = "library-updated"
	EventSyncComplete   = "sync-complete"
)

// ImportProgress is emitted after each processed path, in input order.
type ImportProgress struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Filename string `json:"filename"`
}

// LibraryUpdate announces an externally visible catalog change.
// Type is "add" (Entry set), "remove" (Path set) or "clear".
type LibraryUpdate struct {
	Type  string        `json:"type"`
	Entry *CatalogEntry `json:"entry,omitempty"`
	Path  string        `json:"path,omitempty"`
}

// SyncComplete reports the outcome of a full sync pass.
type SyncComplete struct {
	Synced int    `json:"synced"`
	Time   string `json:"time"`
}

// ImportResult aggregates a whole import batch, per-path isolated.
type ImportResult struct {
	Success    []*CatalogEntry `json:"success"`
	Failed     []string        `json:"failed"`
	Duplicates []string        `json:"duplicates"`
}

// SyncStatusReport counts the work a reconciliation pass would schedule.
type SyncStatusReport struct {
	UploadNeeded   int `json:"uploadNeeded"`
	DownloadNeeded int `json:"downloadNeeded"`
}

// SyncResult counts what a full sync pass actually moved.
type SyncResult struct {
	Uploaded   int `json:"uploaded"`
	Downloaded int `json:"downloaded"`
}
