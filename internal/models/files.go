package models

// FileEntry describes a single file produced by a directory scan. Entries
// are transient; they reflect the state of the filesystem at scan time.
type FileEntry struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Extension string `json:"extension"`
	Size      int64  `json:"size"`
	Modified  string `json:"modified"` // RFC 3339
}

// ListFilesRequest represents a request to list files in a directory.
type ListFilesRequest struct {
	// Filter is an extension filter such as ".zip" or "svg". Empty means
	// all regular files.
	Filter string `json:"filter,omitempty"`
	// Directory to scan. Accepts "downloads", "documents", an absolute
	// path, or a path relative to the downloads directory. Defaults to
	// downloads.
	Directory string `json:"directory,omitempty"`
	// Limit caps the number of entries returned. Zero means no limit.
	Limit int `json:"limit,omitempty"`
}

// ListFilesResponse represents the result of a directory scan, sorted by
// modification time, newest first.
type ListFilesResponse struct {
	Files      []FileEntry `json:"files"`
	TotalCount int         `json:"total_count"`
	Directory  string      `json:"directory"`
}

// FindLatestRequest represents a request for the most recently modified
// matching file in a directory.
type FindLatestRequest struct {
	Filter    string `json:"filter,omitempty"`
	Directory string `json:"directory,omitempty"`
}

// FindLatestResponse carries the most recent matching file.
type FindLatestResponse struct {
	File      FileEntry `json:"file"`
	Directory string    `json:"directory"`
}
