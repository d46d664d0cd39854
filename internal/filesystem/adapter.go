package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
)

// Entry holds information about a directory entry.
type Entry struct {
	Name     string
	Path     string
	Ext      string // lower-cased, including the dot; empty for none
	Size     int64
	ModTime  time.Time
	IsDir    bool
	IsHidden bool
}

// Adapter defines an interface for interacting with the file system. This
// allows for easier testing and keeps the dispatcher free of direct os calls.
type Adapter interface {
	ListDir(dir string) ([]Entry, error)
	WalkFiles(root string) ([]Entry, error)
	Stat(path string) (*Entry, error)
	DirExists(path string) (bool, error)
	FileExists(path string) (bool, error)
	MkdirAll(path string) error
	MoveFile(src, dst string) error
	NextFreeName(dir, name string) (string, error)
	FreeSpace(path string) (uint64, error)
}

// OSAdapter is the standard implementation of Adapter using the os package.
type OSAdapter struct{}

// NewOSAdapter creates a new OSAdapter.
func NewOSAdapter() *OSAdapter {
	return &OSAdapter{}
}

var _ Adapter = (*OSAdapter)(nil)

func entryFromInfo(dir string, info fs.FileInfo) Entry {
	name := info.Name()
	return Entry{
		Name:     name,
		Path:     filepath.Join(dir, name),
		Ext:      strings.ToLower(filepath.Ext(name)),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		IsDir:    info.IsDir(),
		IsHidden: strings.HasPrefix(name, "."),
	}
}

// ListDir lists the immediate contents of a directory. Entries that vanish
// between the directory read and the stat call are skipped.
func (a *OSAdapter) ListDir(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s: %w", dir, err)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading directory: %s: %w", dir, err)
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, entryFromInfo(dir, info))
	}
	return entries, nil
}

// WalkFiles returns all regular files under root, recursively. Hidden files
// and hidden directories are skipped.
func (a *OSAdapter) WalkFiles(root string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, entryFromInfo(filepath.Dir(path), info))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s: %w", root, err)
		}
		return nil, fmt.Errorf("failed to walk directory %s: %w", root, err)
	}
	return entries, nil
}

// Stat retrieves information about a single path.
func (a *OSAdapter) Stat(path string) (*Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("not found: %s: %w", path, err)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied: %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	e := entryFromInfo(filepath.Dir(path), info)
	return &e, nil
}

// DirExists reports whether path exists and is a directory.
func (a *OSAdapter) DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("error checking directory %s: %w", path, err)
	}
	return info.IsDir(), nil
}

// FileExists reports whether path exists.
func (a *OSAdapter) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("error checking file %s: %w", path, err)
}

// MkdirAll creates a directory and any missing parents.
func (a *OSAdapter) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

// MoveFile moves a single file. A plain rename is attempted first; when the
// source and destination live on different filesystems the move falls back
// to copy-then-rename-then-remove, so the destination never holds a
// half-written file under its final name.
func (a *OSAdapter) MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return fmt.Errorf("failed to move %s to %s: %w", src, dst, err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", dst, err)
	}
	defer os.Remove(tmp.Name())

	in, err := os.Open(src)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	_, copyErr := io.Copy(tmp, in)
	in.Close()
	if closeErr := tmp.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, copyErr)
	}

	if err := os.Chmod(tmp.Name(), srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", dst, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to rename temporary file to %s: %w", dst, err)
	}
	if err := os.Remove(src); err != nil {
		// The copy is complete; the source is the leftover. Report it so the
		// caller can surface the partial state.
		return fmt.Errorf("moved %s to %s but failed to remove source: %w", src, dst, err)
	}
	return nil
}

func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}

// NextFreeName returns a destination path in dir for name that does not
// collide with an existing file, probing "stem_1.ext", "stem_2.ext", ...
// in the way the collision policy documents.
func (a *OSAdapter) NextFreeName(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	exists, err := a.FileExists(candidate)
	if err != nil {
		return "", err
	}
	if !exists {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		exists, err := a.FileExists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
}

// FreeSpace reports the free bytes on the partition holding path.
func (a *OSAdapter) FreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read disk usage for %s: %w", path, err)
	}
	return usage.Free, nil
}
