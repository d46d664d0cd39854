package dispatcher

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"file-manager-server/internal/archive"
	"file-manager-server/internal/config"
	"file-manager-server/internal/errors"
	"file-manager-server/internal/filesystem"
	"file-manager-server/internal/lock"
	"file-manager-server/internal/models"

	"go.uber.org/zap"
)

// --- Mock filesystem.Adapter ---

type mockAdapter struct {
	dirs          map[string][]filesystem.Entry // ListDir results per directory
	walks         map[string][]filesystem.Entry // WalkFiles results per root
	existingDirs  map[string]bool
	existingFiles map[string]bool
	stats         map[string]*filesystem.Entry
	moveErrors    map[string]error // source path -> error
	moved         map[string]string
	mkdirs        []string
	freeSpace     uint64
	freeSpaceErr  error
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		dirs:          make(map[string][]filesystem.Entry),
		walks:         make(map[string][]filesystem.Entry),
		existingDirs:  make(map[string]bool),
		existingFiles: make(map[string]bool),
		stats:         make(map[string]*filesystem.Entry),
		moveErrors:    make(map[string]error),
		moved:         make(map[string]string),
		freeSpace:     1 << 40,
	}
}

func (m *mockAdapter) ListDir(dir string) ([]filesystem.Entry, error) {
	entries, ok := m.dirs[dir]
	if !ok {
		return nil, fmt.Errorf("directory not found: %s", dir)
	}
	return entries, nil
}

func (m *mockAdapter) WalkFiles(root string) ([]filesystem.Entry, error) {
	return m.walks[root], nil
}

func (m *mockAdapter) Stat(path string) (*filesystem.Entry, error) {
	if e, ok := m.stats[path]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("not found: %s", path)
}

func (m *mockAdapter) DirExists(path string) (bool, error) {
	return m.existingDirs[path], nil
}

func (m *mockAdapter) FileExists(path string) (bool, error) {
	return m.existingFiles[path], nil
}

func (m *mockAdapter) MkdirAll(path string) error {
	m.mkdirs = append(m.mkdirs, path)
	m.existingDirs[path] = true
	return nil
}

func (m *mockAdapter) MoveFile(src, dst string) error {
	if err, ok := m.moveErrors[src]; ok {
		return err
	}
	m.moved[src] = dst
	m.existingFiles[dst] = true
	return nil
}

func (m *mockAdapter) NextFreeName(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	if !m.existingFiles[candidate] {
		return candidate, nil
	}
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if !m.existingFiles[candidate] {
			return candidate, nil
		}
	}
}

func (m *mockAdapter) FreeSpace(path string) (uint64, error) {
	return m.freeSpace, m.freeSpaceErr
}

// --- Mock Extractor ---

type mockExtractor struct {
	declared   int64
	entries    int
	inspectErr error
	outcome    *archive.Outcome
	extractErr error
	extractTo  string
}

func (m *mockExtractor) Inspect(src string) (int64, int, error) {
	return m.declared, m.entries, m.inspectErr
}

func (m *mockExtractor) Extract(src, destDir string) (*archive.Outcome, error) {
	m.extractTo = destDir
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	if m.outcome == nil {
		return &archive.Outcome{}, nil
	}
	return m.outcome, nil
}

// --- Mock lock.Manager ---

type mockLockManager struct {
	acquireErr error
	acquired   []string
	released   int
}

func (m *mockLockManager) Acquire(dir string, timeout time.Duration) (*lock.DirLock, error) {
	if m.acquireErr != nil {
		return nil, m.acquireErr
	}
	m.acquired = append(m.acquired, dir)
	return &lock.DirLock{Dir: dir}, nil
}

func (m *mockLockManager) Release(l *lock.DirLock) error {
	m.released++
	return nil
}

func (m *mockLockManager) SweepStale(dirs []string, maxAge time.Duration) int { return 0 }

// --- Fixtures ---

const (
	downloads = "/home/user/Downloads"
	documents = "/home/user/Documents"
)

func testConfig() *config.Config {
	return &config.Config{
		DownloadsDir:      downloads,
		DocumentsDir:      documents,
		MaxArchiveSizeMB:  100,
		MaxArchiveEntries: 1000,
		LockTimeoutSec:    1,
	}
}

func newTestDispatcher(t *testing.T, fs *mockAdapter, ex *mockExtractor, lm *mockLockManager) *DefaultDispatcher {
	t.Helper()
	d, err := New(fs, ex, lm, testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func fileEntry(dir, name string, modTime time.Time) filesystem.Entry {
	return filesystem.Entry{
		Name:    name,
		Path:    filepath.Join(dir, name),
		Ext:     filepath.Ext(name),
		Size:    100,
		ModTime: modTime,
	}
}

// --- ListFiles / FindLatest ---

func TestListFilesFiltersAndSorts(t *testing.T) {
	fs := newMockAdapter()
	now := time.Now()
	fs.existingDirs[downloads] = true
	fs.dirs[downloads] = []filesystem.Entry{
		fileEntry(downloads, "a.zip", now.Add(-2*time.Hour)),
		fileEntry(downloads, "b.zip", now),
		fileEntry(downloads, "c.svg", now.Add(-time.Hour)),
		{Name: "sub", Path: filepath.Join(downloads, "sub"), IsDir: true, ModTime: now},
		{Name: ".hidden.zip", Path: filepath.Join(downloads, ".hidden.zip"), Ext: ".zip", IsHidden: true, ModTime: now},
	}
	d := newTestDispatcher(t, fs, &mockExtractor{}, &mockLockManager{})

	resp, errDetail := d.ListFiles(models.ListFilesRequest{Filter: ".zip"})
	if errDetail != nil {
		t.Fatalf("ListFiles failed: %+v", errDetail)
	}
	if len(resp.Files) != 2 {
		t.Fatalf("expected 2 zip files, got %d", len(resp.Files))
	}
	if resp.Files[0].Name != "b.zip" || resp.Files[1].Name != "a.zip" {
		t.Errorf("not sorted newest first: %v, %v", resp.Files[0].Name, resp.Files[1].Name)
	}
	if resp.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", resp.TotalCount)
	}
}

func TestListFilesCaseInsensitiveFilter(t *testing.T) {
	fs := newMockAdapter()
	fs.existingDirs[downloads] = true
	fs.dirs[downloads] = []filesystem.Entry{
		fileEntry(downloads, "logo.svg", time.Now()),
	}
	d := newTestDispatcher(t, fs, &mockExtractor{}, &mockLockManager{})

	for _, filter := range []string{"svg", ".svg", "SVG", ".SVG"} {
		resp, errDetail := d.ListFiles(models.ListFilesRequest{Filter: filter})
		if errDetail != nil {
			t.Fatalf("filter %q failed: %+v", filter, errDetail)
		}
		if len(resp.Files) != 1 {
			t.Errorf("filter %q matched %d files, want 1", filter, len(resp.Files))
		}
	}
}

func TestListFilesEmptyResultIsNotAnError(t *testing.T) {
	fs := newMockAdapter()
	fs.existingDirs[downloads] = true
	fs.dirs[downloads] = []filesystem.Entry{}
	d := newTestDispatcher(t, fs, &mockExtractor{}, &mockLockManager{})

	resp, errDetail := d.ListFiles(models.ListFilesRequest{Filter: ".zip"})
	if errDetail != nil {
		t.Fatalf("empty match should not error: %+v", errDetail)
	}
	if len(resp.Files) != 0 {
		t.Errorf("expected empty list, got %d", len(resp.Files))
	}
}

func TestListFilesMissingDirectory(t *testing.T) {
	d := newTestDispatcher(t, newMockAdapter(), &mockExtractor{}, &mockLockManager{})
	_, errDetail := d.ListFiles(models.ListFilesRequest{Directory: "/nope"})
	if errDetail == nil || errDetail.Code != errors.CodeNotFound {
		t.Errorf("expected NotFound, got %+v", errDetail)
	}
}

func TestListFilesLimit(t *testing.T) {
	fs := newMockAdapter()
	now := time.Now()
	fs.existingDirs[downloads] = true
	fs.dirs[downloads] = []filesystem.Entry{
		fileEntry(downloads, "1.zip", now),
		fileEntry(downloads, "2.zip", now.Add(-time.Minute)),
		fileEntry(downloads, "3.zip", now.Add(-2*time.Minute)),
	}
	d := newTestDispatcher(t, fs, &mockExtractor{}, &mockLockManager{})

	resp, errDetail := d.ListFiles(models.ListFilesRequest{Limit: 2})
	if errDetail != nil {
		t.Fatal(errDetail)
	}
	if len(resp.Files) != 2 || resp.TotalCount != 3 {
		t.Errorf("limit not applied: %d files, total %d", len(resp.Files), resp.TotalCount)
	}
}

func TestListFilesRejectsBadFilter(t *testing.T) {
	d := newTestDispatcher(t, newMockAdapter(), &mockExtractor{}, &mockLockManager{})
	for _, filter := range []string{"*.zip", "../zip", "z ip"} {
		_, errDetail := d.ListFiles(models.ListFilesRequest{Filter: filter})
		if errDetail == nil || errDetail.Code != errors.CodeInvalidParams {
			t.Errorf("filter %q: expected InvalidParams, got %+v", filter, errDetail)
		}
	}
}

func TestFindLatestReturnsHead(t *testing.T) {
	fs := newMockAdapter()
	now := time.Now()
	fs.existingDirs[downloads] = true
	fs.dirs[downloads] = []filesystem.Entry{
		fileEntry(downloads, "a.zip", now.Add(-time.Hour)),
		fileEntry(downloads, "b.zip", now),
	}
	d := newTestDispatcher(t, fs, &mockExtractor{}, &mockLockManager{})

	resp, errDetail := d.FindLatest(models.FindLatestRequest{Filter: ".zip"})
	if errDetail != nil {
		t.Fatalf("FindLatest failed: %+v", errDetail)
	}
	if resp.File.Name != "b.zip" {
		t.Errorf("latest = %q, want b.zip", resp.File.Name)
	}
}

func TestFindLatestEmptyIsAnError(t *testing.T) {
	fs := newMockAdapter()
	fs.existingDirs[downloads] = true
	fs.dirs[downloads] = []filesystem.Entry{}
	d := newTestDispatcher(t, fs, &mockExtractor{}, &mockLockManager{})

	_, errDetail := d.FindLatest(models.FindLatestRequest{Filter: ".zip"})
	if errDetail == nil || errDetail.Code != errors.CodeNotFound {
		t.Errorf("expected NotFound for empty result, got %+v", errDetail)
	}
}

// --- Directory resolution ---

func TestResolveDirKeywordsAndRelative(t *testing.T) {
	d := newTestDispatcher(t, newMockAdapter(), &mockExtractor{}, &mockLockManager{})

	tests := []struct {
		input string
		want  string
	}{
		{"", downloads},
		{"downloads", downloads},
		{"Documents", documents},
		{"/tmp/elsewhere", "/tmp/elsewhere"},
		{"project/icons", filepath.Join(downloads, "project", "icons")},
	}
	for _, tt := range tests {
		got, errDetail := d.resolveSourceDir(tt.input, "test")
		if errDetail != nil {
			t.Errorf("resolveSourceDir(%q) failed: %+v", tt.input, errDetail)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveSourceDir(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if _, errDetail := d.resolveSourceDir("../outside", "test"); errDetail == nil {
		t.Error("relative escape not rejected")
	}
}

// --- MoveFiles ---

func TestMoveFilesPartialFailure(t *testing.T) {
	fs := newMockAdapter()
	now := time.Now()
	fs.existingDirs[downloads] = true
	fs.walks[downloads] = []filesystem.Entry{
		fileEntry(downloads, "one.svg", now),
		fileEntry(downloads, "two.svg", now),
		fileEntry(downloads, "three.svg", now),
	}
	fs.moveErrors[filepath.Join(downloads, "two.svg")] = fmt.Errorf("device busy")
	lm := &mockLockManager{}
	d := newTestDispatcher(t, fs, &mockExtractor{}, lm)

	resp, errDetail := d.MoveFiles(models.MoveFilesRequest{Filter: ".svg", Destination: "Icons"})
	if errDetail != nil {
		t.Fatalf("MoveFiles failed: %+v", errDetail)
	}
	if resp.MovedCount != 2 {
		t.Errorf("MovedCount = %d, want 2", resp.MovedCount)
	}
	if len(resp.Failed) != 1 || resp.Failed[0].Name != "two.svg" {
		t.Errorf("expected exactly one failure for two.svg, got %+v", resp.Failed)
	}
	if resp.Destination != filepath.Join(documents, "Icons") {
		t.Errorf("destination = %q", resp.Destination)
	}
	if lm.released != len(lm.acquired) {
		t.Error("lock not released")
	}
}

func TestMoveFilesCollisionGetsSuffix(t *testing.T) {
	fs := newMockAdapter()
	fs.existingDirs[downloads] = true
	fs.walks[downloads] = []filesystem.Entry{
		fileEntry(downloads, "icon.svg", time.Now()),
	}
	dest := filepath.Join(documents, "Icons")
	fs.existingFiles[filepath.Join(dest, "icon.svg")] = true
	d := newTestDispatcher(t, fs, &mockExtractor{}, &mockLockManager{})

	resp, errDetail := d.MoveFiles(models.MoveFilesRequest{Filter: ".svg", Destination: "Icons"})
	if errDetail != nil {
		t.Fatal(errDetail)
	}
	if len(resp.Moved) != 1 || resp.Moved[0] != "icon_1.svg" {
		t.Errorf("collision not renamed: %v", resp.Moved)
	}
	if len(resp.Failed) != 0 {
		t.Errorf("collision must not count as failure: %+v", resp.Failed)
	}
}

func TestMoveFilesNoMatchesIsNotAnError(t *testing.T) {
	fs := newMockAdapter()
	fs.existingDirs[downloads] = true
	d := newTestDispatcher(t, fs, &mockExtractor{}, &mockLockManager{})

	resp, errDetail := d.MoveFiles(models.MoveFilesRequest{Filter: ".svg"})
	if errDetail != nil {
		t.Fatalf("expected success with zero moves, got %+v", errDetail)
	}
	if resp.MovedCount != 0 {
		t.Errorf("MovedCount = %d, want 0", resp.MovedCount)
	}
	if len(fs.mkdirs) != 0 {
		t.Error("destination should not be created when nothing matches")
	}
}

func TestMoveFilesMissingSource(t *testing.T) {
	d := newTestDispatcher(t, newMockAdapter(), &mockExtractor{}, &mockLockManager{})
	_, errDetail := d.MoveFiles(models.MoveFilesRequest{Source: "/gone"})
	if errDetail == nil || errDetail.Code != errors.CodeNotFound {
		t.Errorf("expected NotFound, got %+v", errDetail)
	}
}

// --- UnzipArchive ---

func archiveStat(path string, size int64) *filesystem.Entry {
	return &filesystem.Entry{
		Name:    filepath.Base(path),
		Path:    path,
		Ext:     ".zip",
		Size:    size,
		ModTime: time.Now(),
	}
}

func TestUnzipArchiveDefaultsToStemFolder(t *testing.T) {
	fs := newMockAdapter()
	src := filepath.Join(downloads, "project.zip")
	fs.stats[src] = archiveStat(src, 1000)
	ex := &mockExtractor{
		declared: 5000,
		entries:  2,
		outcome:  &archive.Outcome{Extracted: []string{"icon.svg", "readme.txt"}},
	}
	lm := &mockLockManager{}
	d := newTestDispatcher(t, fs, ex, lm)

	resp, errDetail := d.UnzipArchive(models.UnzipArchiveRequest{Source: "project.zip"})
	if errDetail != nil {
		t.Fatalf("UnzipArchive failed: %+v", errDetail)
	}
	wantDest := filepath.Join(downloads, "project")
	if resp.Destination != wantDest {
		t.Errorf("destination = %q, want %q", resp.Destination, wantDest)
	}
	if ex.extractTo != wantDest {
		t.Errorf("extractor destination = %q, want %q", ex.extractTo, wantDest)
	}
	if resp.ExtractedCount != 2 {
		t.Errorf("ExtractedCount = %d, want 2", resp.ExtractedCount)
	}
	if lm.released != 1 || len(lm.acquired) != 1 {
		t.Error("destination lock not acquired and released exactly once")
	}
}

func TestUnzipArchiveCorrupt(t *testing.T) {
	fs := newMockAdapter()
	src := filepath.Join(downloads, "bad.zip")
	fs.stats[src] = archiveStat(src, 10)
	ex := &mockExtractor{inspectErr: fmt.Errorf("%w: bad.zip", archive.ErrCorrupt)}
	d := newTestDispatcher(t, fs, ex, &mockLockManager{})

	_, errDetail := d.UnzipArchive(models.UnzipArchiveRequest{Source: "bad.zip"})
	if errDetail == nil || errDetail.Code != errors.CodeCorruptArchive {
		t.Errorf("expected CorruptArchive, got %+v", errDetail)
	}
}

func TestUnzipArchiveMissingSource(t *testing.T) {
	d := newTestDispatcher(t, newMockAdapter(), &mockExtractor{}, &mockLockManager{})
	_, errDetail := d.UnzipArchive(models.UnzipArchiveRequest{Source: "gone.zip"})
	if errDetail == nil || errDetail.Code != errors.CodeIOError && errDetail.Code != errors.CodeNotFound {
		t.Errorf("expected a not-found style error, got %+v", errDetail)
	}
}

func TestUnzipArchiveInsufficientSpace(t *testing.T) {
	fs := newMockAdapter()
	src := filepath.Join(downloads, "big.zip")
	fs.stats[src] = archiveStat(src, 1000)
	fs.freeSpace = 10
	ex := &mockExtractor{declared: 100000, entries: 1}
	d := newTestDispatcher(t, fs, ex, &mockLockManager{})

	_, errDetail := d.UnzipArchive(models.UnzipArchiveRequest{Source: "big.zip"})
	if errDetail == nil || errDetail.Code != errors.CodeIOError {
		t.Errorf("expected IOError for full disk, got %+v", errDetail)
	}
}

func TestUnzipArchiveTooLarge(t *testing.T) {
	fs := newMockAdapter()
	src := filepath.Join(downloads, "huge.zip")
	fs.stats[src] = archiveStat(src, 101*1024*1024) // config caps at 100 MB
	d := newTestDispatcher(t, fs, &mockExtractor{}, &mockLockManager{})

	_, errDetail := d.UnzipArchive(models.UnzipArchiveRequest{Source: "huge.zip"})
	if errDetail == nil || errDetail.Code != errors.CodeInvalidParams {
		t.Errorf("expected InvalidParams, got %+v", errDetail)
	}
}

func TestUnzipArchiveReportsTraversalEntries(t *testing.T) {
	fs := newMockAdapter()
	src := filepath.Join(downloads, "evil.zip")
	fs.stats[src] = archiveStat(src, 100)
	ex := &mockExtractor{
		entries: 2,
		outcome: &archive.Outcome{
			Extracted: []string{"fine.txt"},
			Failed: []archive.EntryFailure{
				{Name: "../../evil.txt", Reason: "entry resolves outside the destination directory", Err: archive.ErrTraversal},
				{Name: "locked.txt", Reason: "create file: permission denied"},
			},
		},
	}
	d := newTestDispatcher(t, fs, ex, &mockLockManager{})

	resp, errDetail := d.UnzipArchive(models.UnzipArchiveRequest{Source: "evil.zip"})
	if errDetail != nil {
		t.Fatal(errDetail)
	}
	if len(resp.Failed) != 2 || resp.Failed[0].Name != "../../evil.txt" {
		t.Fatalf("traversal entry not reported: %+v", resp.Failed)
	}
	if resp.Failed[0].Code != errors.CodeSecurityViolation || resp.Failed[0].Type != "path_traversal" {
		t.Errorf("traversal failure not typed as a security violation: %+v", resp.Failed[0])
	}
	if resp.Failed[1].Code != 0 || resp.Failed[1].Type != "" {
		t.Errorf("plain failure should stay untyped: %+v", resp.Failed[1])
	}
}

// --- Composites ---

func TestUnzipLatestPicksNewestZip(t *testing.T) {
	fs := newMockAdapter()
	now := time.Now()
	fs.existingDirs[downloads] = true
	fs.dirs[downloads] = []filesystem.Entry{
		fileEntry(downloads, "old.zip", now.Add(-time.Hour)),
		fileEntry(downloads, "new.zip", now),
	}
	newPath := filepath.Join(downloads, "new.zip")
	fs.stats[newPath] = archiveStat(newPath, 100)
	ex := &mockExtractor{outcome: &archive.Outcome{Extracted: []string{"x"}}}
	d := newTestDispatcher(t, fs, ex, &mockLockManager{})

	resp, errDetail := d.UnzipLatest(models.UnzipLatestRequest{})
	if errDetail != nil {
		t.Fatalf("UnzipLatest failed: %+v", errDetail)
	}
	if resp.Archive != newPath {
		t.Errorf("unzipped %q, want %q", resp.Archive, newPath)
	}
}

func TestUnzipAndMoveDefaultsToSvg(t *testing.T) {
	fs := newMockAdapter()
	src := filepath.Join(downloads, "project.zip")
	fs.stats[src] = archiveStat(src, 100)
	extractDir := filepath.Join(downloads, "project")
	fs.walks[extractDir] = []filesystem.Entry{
		fileEntry(extractDir, "logo.svg", time.Now()),
		fileEntry(extractDir, "readme.txt", time.Now()),
	}
	ex := &mockExtractor{outcome: &archive.Outcome{Extracted: []string{"logo.svg", "readme.txt"}}}
	d := newTestDispatcher(t, fs, ex, &mockLockManager{})

	resp, errDetail := d.UnzipAndMove(models.UnzipAndMoveRequest{
		Source:            "project.zip",
		DestinationFolder: "DoorHanger",
	})
	if errDetail != nil {
		t.Fatalf("UnzipAndMove failed: %+v", errDetail)
	}
	if resp.Unzip.Destination != extractDir {
		t.Errorf("extract dir = %q, want %q", resp.Unzip.Destination, extractDir)
	}
	if resp.Move.MovedCount != 1 || resp.Move.Moved[0] != "logo.svg" {
		t.Errorf("expected only the svg to move, got %+v", resp.Move)
	}
	if resp.Move.Destination != filepath.Join(documents, "DoorHanger") {
		t.Errorf("move destination = %q", resp.Move.Destination)
	}
}

func TestUnzipAndMoveRequiresDestinationFolder(t *testing.T) {
	d := newTestDispatcher(t, newMockAdapter(), &mockExtractor{}, &mockLockManager{})
	_, errDetail := d.UnzipAndMove(models.UnzipAndMoveRequest{Source: "a.zip"})
	if errDetail == nil || errDetail.Code != errors.CodeInvalidParams {
		t.Errorf("expected InvalidParams, got %+v", errDetail)
	}
}
