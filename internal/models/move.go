package models

// MoveFilesRequest represents a request to move all matching files from a
// source directory (searched recursively) into a destination directory.
type MoveFilesRequest struct {
	// Filter is an extension filter such as ".svg". Empty means all files.
	Filter string `json:"filter,omitempty"`
	// Source directory to search. Accepts "downloads", "documents", an
	// absolute path, or a path relative to the downloads directory.
	// Defaults to downloads.
	Source string `json:"source,omitempty"`
	// Destination directory. Accepts the same forms, with relative paths
	// resolving under the documents directory. Created if absent.
	Destination string `json:"destination,omitempty"`
}

// MoveFilesResponse reports the aggregate outcome of a batch move. Each file
// either fully moved or stayed at the source; one failure does not abort the
// batch. Name collisions at the destination are resolved by appending a
// numeric suffix, so Moved holds the final destination names.
type MoveFilesResponse struct {
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	MovedCount  int            `json:"moved_count"`
	Moved       []string       `json:"moved"`
	Failed      []EntryFailure `json:"failed,omitempty"`
}
