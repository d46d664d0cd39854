package models

// EntryFailure records a single archive entry or file that could not be
// processed, together with the reason. Security-relevant failures carry the
// error code and type discriminator so hosts can distinguish a rejected
// path-traversal entry from an ordinary I/O failure.
type EntryFailure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
	Code   int    `json:"code,omitempty"`
	Type   string `json:"type,omitempty"`
}

// UnzipArchiveRequest represents a request to extract a zip archive.
type UnzipArchiveRequest struct {
	// Source is the archive path. Relative paths resolve under the
	// downloads directory.
	Source string `json:"source"`
	// Destination is the directory entries are extracted into. Accepts
	// "downloads", "documents", an absolute path, or a path relative to
	// the documents directory. Empty means "<downloads>/<archive stem>".
	Destination string `json:"destination,omitempty"`
}

// UnzipArchiveResponse reports the aggregate outcome of an extraction.
// Entries that already existed at the destination are skipped, never
// overwritten.
type UnzipArchiveResponse struct {
	Archive        string         `json:"archive"`
	Destination    string         `json:"destination"`
	ExtractedCount int            `json:"extracted_count"`
	Extracted      []string       `json:"extracted"`
	Skipped        []string       `json:"skipped,omitempty"`
	Failed         []EntryFailure `json:"failed,omitempty"`
}

// UnzipLatestRequest extracts the most recently downloaded zip file.
type UnzipLatestRequest struct {
	// Directory to search for the newest archive. Defaults to downloads.
	Directory string `json:"directory,omitempty"`
	// Destination, as in UnzipArchiveRequest.
	Destination string `json:"destination,omitempty"`
}

// UnzipAndMoveRequest combines extraction with a follow-up move of the
// matching files out of the extracted tree.
type UnzipAndMoveRequest struct {
	Source string `json:"source"`
	// Filter selects the files to move after extraction, e.g. ".svg".
	Filter string `json:"filter,omitempty"`
	// DestinationFolder is the target subfolder under the documents
	// directory. Created if absent.
	DestinationFolder string `json:"destination_folder"`
}

// UnzipLatestAndMoveRequest is UnzipAndMoveRequest applied to the newest
// zip file in the downloads directory.
type UnzipLatestAndMoveRequest struct {
	Filter            string `json:"filter,omitempty"`
	DestinationFolder string `json:"destination_folder"`
}

// UnzipAndMoveResponse reports both halves of the combined operation.
type UnzipAndMoveResponse struct {
	Unzip UnzipArchiveResponse `json:"unzip"`
	Move  MoveFilesResponse    `json:"move"`
}
