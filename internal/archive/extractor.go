package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrCorrupt is returned when the source is not a readable zip archive.
	ErrCorrupt = errors.New("corrupt archive")
	// ErrTooManyEntries is returned when the archive exceeds the configured
	// entry count limit.
	ErrTooManyEntries = errors.New("archive has too many entries")
	// ErrTraversal marks an entry whose resolved path escapes the
	// destination directory.
	ErrTraversal = errors.New("path traversal")
)

// EntryFailure records an archive entry that was not extracted. Err holds
// the sentinel that classifies the failure (e.g. ErrTraversal) when one
// applies, so callers can type the failure instead of parsing Reason.
type EntryFailure struct {
	Name   string
	Reason string
	Err    error
}

// Outcome is the aggregate result of an extraction. Extraction continues
// past per-entry failures; nothing in Failed or Skipped was written.
type Outcome struct {
	Extracted []string
	Skipped   []string
	Failed    []EntryFailure
}

// Extractor extracts zip archives with a per-entry path-traversal guard.
// Pre-existing files at the destination are skipped, never overwritten.
type Extractor struct {
	maxEntries    int
	maxTotalBytes int64
}

// NewExtractor creates an Extractor with the given limits.
func NewExtractor(maxEntries int, maxTotalBytes int64) *Extractor {
	return &Extractor{maxEntries: maxEntries, maxTotalBytes: maxTotalBytes}
}

// Inspect opens the archive and returns its declared uncompressed size and
// entry count without extracting anything.
func (e *Extractor) Inspect(src string) (int64, int, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return 0, 0, fmt.Errorf("%w: %s", ErrCorrupt, src)
		}
		return 0, 0, fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer r.Close()

	if len(r.File) > e.maxEntries {
		return 0, 0, fmt.Errorf("%w: %d entries (limit %d)", ErrTooManyEntries, len(r.File), e.maxEntries)
	}

	var declared int64
	for _, f := range r.File {
		declared += int64(f.UncompressedSize64)
	}
	return declared, len(r.File), nil
}

// Extract extracts all entries of the archive at src into destDir. The
// destination directory must already exist. A returned error means the
// archive itself was unusable; per-entry problems land in the Outcome.
func (e *Extractor) Extract(src, destDir string) (*Outcome, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, fmt.Errorf("%w: %s", ErrCorrupt, src)
		}
		return nil, fmt.Errorf("failed to open archive %s: %w", src, err)
	}
	defer r.Close()

	if len(r.File) > e.maxEntries {
		return nil, fmt.Errorf("%w: %d entries (limit %d)", ErrTooManyEntries, len(r.File), e.maxEntries)
	}

	destDir = filepath.Clean(destDir)
	outcome := &Outcome{}
	budget := e.maxTotalBytes

	for _, f := range r.File {
		target, err := securePath(destDir, f.Name)
		if err != nil {
			outcome.Failed = append(outcome.Failed, EntryFailure{Name: f.Name, Reason: "entry resolves outside the destination directory", Err: err})
			continue
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				outcome.Failed = append(outcome.Failed, EntryFailure{Name: f.Name, Reason: fmt.Sprintf("create directory: %v", err)})
			}
			continue
		}
		if f.Mode()&os.ModeSymlink != 0 {
			outcome.Failed = append(outcome.Failed, EntryFailure{Name: f.Name, Reason: "symlink entries are not extracted"})
			continue
		}

		written, status := e.extractEntry(f, target, budget)
		budget -= written
		switch status.kind {
		case entryExtracted:
			outcome.Extracted = append(outcome.Extracted, f.Name)
		case entrySkipped:
			outcome.Skipped = append(outcome.Skipped, f.Name)
		case entryFailed:
			outcome.Failed = append(outcome.Failed, EntryFailure{Name: f.Name, Reason: status.reason})
		}
	}
	return outcome, nil
}

type entryKind int

const (
	entryExtracted entryKind = iota
	entrySkipped
	entryFailed
)

type entryStatus struct {
	kind   entryKind
	reason string
}

// extractEntry writes a single entry to target. It returns the bytes
// written, so the caller can keep the total-size budget honest even when an
// entry lies about its declared size.
func (e *Extractor) extractEntry(f *zip.File, target string, budget int64) (int64, entryStatus) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, entryStatus{entryFailed, fmt.Sprintf("create parent directory: %v", err)}
	}

	// O_EXCL enforces the skip-existing policy even when two extractions
	// race on the same destination.
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return 0, entryStatus{entrySkipped, ""}
		}
		return 0, entryStatus{entryFailed, fmt.Sprintf("create file: %v", err)}
	}

	rc, err := f.Open()
	if err != nil {
		out.Close()
		os.Remove(target)
		return 0, entryStatus{entryFailed, fmt.Sprintf("open entry: %v", err)}
	}

	written, copyErr := io.Copy(out, io.LimitReader(rc, budget+1))
	rc.Close()
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && written > budget {
		copyErr = fmt.Errorf("entry exceeds extraction size budget")
	}
	if copyErr != nil {
		os.Remove(target)
		return written, entryStatus{entryFailed, fmt.Sprintf("write entry: %v", copyErr)}
	}
	return written, entryStatus{kind: entryExtracted}
}

// securePath joins an archive entry name onto destDir and rejects any name
// whose cleaned path lands outside destDir ("zip slip").
func securePath(destDir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") {
		return "", ErrTraversal
	}
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if target != destDir && !strings.HasPrefix(target, destDir+string(os.PathSeparator)) {
		return "", ErrTraversal
	}
	return target, nil
}
