package dispatcher

import (
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"file-manager-server/internal/archive"
	"file-manager-server/internal/config"
	"file-manager-server/internal/errors"
	"file-manager-server/internal/filesystem"
	"file-manager-server/internal/lock"
	"file-manager-server/internal/models"

	"go.uber.org/zap"
)

// defaultMoveFilter is applied by the combined unzip-and-move operations
// when the caller does not name a filter; moving SVG assets out of a freshly
// extracted archive is the operation's original purpose.
const defaultMoveFilter = ".svg"

var filterRegex = regexp.MustCompile(`^\.?[A-Za-z0-9]+$`)

// Extractor is the archive-side dependency of the dispatcher.
type Extractor interface {
	Inspect(src string) (declaredBytes int64, entries int, err error)
	Extract(src, destDir string) (*archive.Outcome, error)
}

// Dispatcher translates structured commands into filesystem actions and
// reports a structured outcome. Each command is stateless and independent.
type Dispatcher interface {
	ListFiles(req models.ListFilesRequest) (*models.ListFilesResponse, *models.ErrorDetail)
	FindLatest(req models.FindLatestRequest) (*models.FindLatestResponse, *models.ErrorDetail)
	UnzipArchive(req models.UnzipArchiveRequest) (*models.UnzipArchiveResponse, *models.ErrorDetail)
	MoveFiles(req models.MoveFilesRequest) (*models.MoveFilesResponse, *models.ErrorDetail)
	UnzipLatest(req models.UnzipLatestRequest) (*models.UnzipArchiveResponse, *models.ErrorDetail)
	UnzipAndMove(req models.UnzipAndMoveRequest) (*models.UnzipAndMoveResponse, *models.ErrorDetail)
	UnzipLatestAndMove(req models.UnzipLatestAndMoveRequest) (*models.UnzipAndMoveResponse, *models.ErrorDetail)
}

// DefaultDispatcher implements the Dispatcher interface against a
// filesystem adapter, an archive extractor, and a lock manager.
type DefaultDispatcher struct {
	fs           filesystem.Adapter
	extractor    Extractor
	locks        lock.Manager
	logger       *zap.Logger
	downloadsDir string
	documentsDir string
	maxArchive   int64
	lockTimeout  time.Duration
}

// New creates a DefaultDispatcher. The well-known directories come from the
// configuration, never from ambient globals.
func New(fs filesystem.Adapter, ex Extractor, lm lock.Manager, cfg *config.Config, logger *zap.Logger) (*DefaultDispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if fs == nil {
		return nil, fmt.Errorf("filesystem adapter is required")
	}
	if ex == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if lm == nil {
		return nil, fmt.Errorf("lock manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	downloads, err := filepath.Abs(cfg.DownloadsDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve downloads directory: %w", err)
	}
	documents, err := filepath.Abs(cfg.DocumentsDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve documents directory: %w", err)
	}

	return &DefaultDispatcher{
		fs:           fs,
		extractor:    ex,
		locks:        lm,
		logger:       logger,
		downloadsDir: downloads,
		documentsDir: documents,
		maxArchive:   int64(cfg.MaxArchiveSizeMB) * 1024 * 1024,
		lockTimeout:  time.Duration(cfg.LockTimeoutSec) * time.Second,
	}, nil
}

// normalizeFilter validates an extension filter and returns it lower-cased
// with a leading dot, e.g. "ZIP" -> ".zip". Empty means no filter.
func normalizeFilter(filter, operation string) (string, *models.ErrorDetail) {
	if filter == "" {
		return "", nil
	}
	if !filterRegex.MatchString(filter) {
		return "", errors.NewInvalidParamsError(
			fmt.Sprintf("Unsupported extension filter '%s'", filter), filter, operation)
	}
	filter = strings.ToLower(filter)
	if !strings.HasPrefix(filter, ".") {
		filter = "." + filter
	}
	return filter, nil
}

// resolveDir maps caller-supplied directory strings onto concrete paths.
// The keywords "downloads" and "documents" select the well-known
// directories, absolute paths are taken as given, and anything else resolves
// under relBase. Relative inputs may not climb out of relBase.
func (d *DefaultDispatcher) resolveDir(input, fallback, relBase, operation string) (string, *models.ErrorDetail) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return fallback, nil
	case "downloads":
		return d.downloadsDir, nil
	case "documents":
		return d.documentsDir, nil
	}
	if filepath.IsAbs(input) {
		return filepath.Clean(input), nil
	}
	joined := filepath.Join(relBase, input)
	if joined != relBase && !strings.HasPrefix(joined, relBase+string(os.PathSeparator)) {
		return "", errors.NewInvalidParamsError(
			fmt.Sprintf("Relative path '%s' escapes %s", input, relBase), input, operation)
	}
	return joined, nil
}

func (d *DefaultDispatcher) resolveSourceDir(input, operation string) (string, *models.ErrorDetail) {
	return d.resolveDir(input, d.downloadsDir, d.downloadsDir, operation)
}

func (d *DefaultDispatcher) resolveDestDir(input, operation string) (string, *models.ErrorDetail) {
	return d.resolveDir(input, d.documentsDir, d.documentsDir, operation)
}

// classifyFSError converts an adapter error into the spec's error taxonomy.
func classifyFSError(err error, path, operation string) *models.ErrorDetail {
	underlying := err
	for unwrapped := stdErrors.Unwrap(underlying); unwrapped != nil; unwrapped = stdErrors.Unwrap(underlying) {
		underlying = unwrapped
	}
	if os.IsPermission(underlying) {
		return errors.NewPermissionDeniedError(path, operation)
	}
	if os.IsNotExist(underlying) {
		return errors.NewNotFoundError(path, operation)
	}
	return errors.NewIOError(path, operation, err.Error())
}

func toFileEntry(e filesystem.Entry) models.FileEntry {
	return models.FileEntry{
		Name:      e.Name,
		Path:      e.Path,
		Extension: e.Ext,
		Size:      e.Size,
		Modified:  e.ModTime.UTC().Format(time.RFC3339),
	}
}

// ListFiles scans the immediate contents of a directory, non-recursively,
// and returns matching entries ordered by modification time, newest first.
// An empty result is not an error.
func (d *DefaultDispatcher) ListFiles(req models.ListFilesRequest) (*models.ListFilesResponse, *models.ErrorDetail) {
	filter, errDetail := normalizeFilter(req.Filter, "list_files")
	if errDetail != nil {
		return nil, errDetail
	}
	if req.Limit < 0 {
		return nil, errors.NewInvalidParamsError("Limit must be 0 or greater", req.Directory, "list_files")
	}
	dir, errDetail := d.resolveSourceDir(req.Directory, "list_files")
	if errDetail != nil {
		return nil, errDetail
	}

	exists, err := d.fs.DirExists(dir)
	if err != nil {
		return nil, classifyFSError(err, dir, "list_files")
	}
	if !exists {
		return nil, errors.NewNotFoundError(dir, "list_files")
	}

	entries, err := d.fs.ListDir(dir)
	if err != nil {
		return nil, classifyFSError(err, dir, "list_files")
	}

	files := selectEntries(entries, filter)
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].Name < files[j].Name
		}
		return files[i].ModTime.After(files[j].ModTime)
	})

	total := len(files)
	if req.Limit > 0 && len(files) > req.Limit {
		files = files[:req.Limit]
	}

	resp := &models.ListFilesResponse{
		Files:      make([]models.FileEntry, 0, len(files)),
		TotalCount: total,
		Directory:  dir,
	}
	for _, f := range files {
		resp.Files = append(resp.Files, toFileEntry(f))
	}
	return resp, nil
}

func selectEntries(entries []filesystem.Entry, filter string) []filesystem.Entry {
	var files []filesystem.Entry
	for _, e := range entries {
		if e.IsDir || e.IsHidden {
			continue
		}
		if filter != "" && e.Ext != filter {
			continue
		}
		files = append(files, e)
	}
	return files
}

// FindLatest returns the most recently modified matching file. Unlike
// ListFiles, an empty result is an error here.
func (d *DefaultDispatcher) FindLatest(req models.FindLatestRequest) (*models.FindLatestResponse, *models.ErrorDetail) {
	listResp, errDetail := d.ListFiles(models.ListFilesRequest{
		Filter:    req.Filter,
		Directory: req.Directory,
		Limit:     1,
	})
	if errDetail != nil {
		return nil, errDetail
	}
	if len(listResp.Files) == 0 {
		return nil, errors.NewEmptyResultError(req.Filter, listResp.Directory, "find_latest")
	}
	return &models.FindLatestResponse{
		File:      listResp.Files[0],
		Directory: listResp.Directory,
	}, nil
}

func archiveStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// UnzipArchive extracts a zip archive. Entries whose resolved path would
// escape the destination are rejected and reported; pre-existing files are
// skipped, never overwritten.
func (d *DefaultDispatcher) UnzipArchive(req models.UnzipArchiveRequest) (*models.UnzipArchiveResponse, *models.ErrorDetail) {
	if strings.TrimSpace(req.Source) == "" {
		return nil, errors.NewInvalidParamsError("Source archive is required", "", "unzip")
	}
	src, errDetail := d.resolveDir(req.Source, "", d.downloadsDir, "unzip")
	if errDetail != nil {
		return nil, errDetail
	}

	info, err := d.fs.Stat(src)
	if err != nil {
		return nil, classifyFSError(err, src, "unzip")
	}
	if info.IsDir {
		return nil, errors.NewInvalidParamsError(fmt.Sprintf("'%s' is a directory, not an archive", src), src, "unzip")
	}
	if info.Size > d.maxArchive {
		return nil, errors.NewInvalidParamsError(
			fmt.Sprintf("Archive exceeds maximum size of %d MB", d.maxArchive/(1024*1024)), src, "unzip")
	}

	dest := req.Destination
	var destDir string
	if dest == "" {
		destDir = filepath.Join(d.downloadsDir, archiveStem(src))
	} else {
		destDir, errDetail = d.resolveDestDir(dest, "unzip")
		if errDetail != nil {
			return nil, errDetail
		}
	}

	declared, entryCount, err := d.extractor.Inspect(src)
	if err != nil {
		return nil, d.classifyArchiveError(err, src)
	}

	if err := d.fs.MkdirAll(destDir); err != nil {
		return nil, classifyFSError(err, destDir, "unzip")
	}

	// Best-effort pre-flight: a failing usage probe never blocks extraction,
	// but a confidently full disk does.
	if free, err := d.fs.FreeSpace(destDir); err == nil && declared > 0 && uint64(declared) > free {
		return nil, errors.NewInsufficientSpaceError(destDir, uint64(declared), free)
	}

	dirLock, err := d.locks.Acquire(destDir, d.lockTimeout)
	if err != nil {
		return nil, errors.NewOperationLockFailedError(destDir, "unzip", err.Error())
	}
	defer func() {
		if err := d.locks.Release(dirLock); err != nil {
			d.logger.Warn("failed to release directory lock", zap.String("dir", destDir), zap.Error(err))
		}
	}()

	outcome, err := d.extractor.Extract(src, destDir)
	if err != nil {
		return nil, d.classifyArchiveError(err, src)
	}

	d.logger.Info("archive extracted",
		zap.String("archive", src),
		zap.String("destination", destDir),
		zap.Int("entries", entryCount),
		zap.Int("extracted", len(outcome.Extracted)),
		zap.Int("skipped", len(outcome.Skipped)),
		zap.Int("failed", len(outcome.Failed)))

	return &models.UnzipArchiveResponse{
		Archive:        src,
		Destination:    destDir,
		ExtractedCount: len(outcome.Extracted),
		Extracted:      outcome.Extracted,
		Skipped:        outcome.Skipped,
		Failed:         toEntryFailures(outcome.Failed),
	}, nil
}

func (d *DefaultDispatcher) classifyArchiveError(err error, src string) *models.ErrorDetail {
	switch {
	case stdErrors.Is(err, archive.ErrCorrupt):
		return errors.NewCorruptArchiveError(src, err.Error())
	case stdErrors.Is(err, archive.ErrTooManyEntries):
		return errors.NewInvalidParamsError(err.Error(), src, "unzip")
	default:
		return classifyFSError(err, src, "unzip")
	}
}

// toEntryFailures converts the extractor's failure records into wire
// failures. Traversal rejections become typed security violations so the
// host can tell them apart from plain I/O failures.
func toEntryFailures(failures []archive.EntryFailure) []models.EntryFailure {
	if len(failures) == 0 {
		return nil
	}
	out := make([]models.EntryFailure, 0, len(failures))
	for _, f := range failures {
		if stdErrors.Is(f.Err, archive.ErrTraversal) {
			detail := errors.NewSecurityError(f.Name, "unzip")
			out = append(out, models.EntryFailure{
				Name:   f.Name,
				Reason: detail.Message,
				Code:   detail.Code,
				Type:   errors.ErrorType(detail),
			})
			continue
		}
		out = append(out, models.EntryFailure{Name: f.Name, Reason: f.Reason})
	}
	return out
}

// MoveFiles moves every matching file under the source tree into the
// destination directory. Each file either fully moves or stays put; one
// failure does not abort the batch. Collisions are resolved by numeric
// suffix, so nothing is overwritten or silently lost.
func (d *DefaultDispatcher) MoveFiles(req models.MoveFilesRequest) (*models.MoveFilesResponse, *models.ErrorDetail) {
	filter, errDetail := normalizeFilter(req.Filter, "move_files")
	if errDetail != nil {
		return nil, errDetail
	}
	srcDir, errDetail := d.resolveSourceDir(req.Source, "move_files")
	if errDetail != nil {
		return nil, errDetail
	}
	destDir, errDetail := d.resolveDestDir(req.Destination, "move_files")
	if errDetail != nil {
		return nil, errDetail
	}

	exists, err := d.fs.DirExists(srcDir)
	if err != nil {
		return nil, classifyFSError(err, srcDir, "move_files")
	}
	if !exists {
		return nil, errors.NewNotFoundError(srcDir, "move_files")
	}

	entries, err := d.fs.WalkFiles(srcDir)
	if err != nil {
		return nil, classifyFSError(err, srcDir, "move_files")
	}
	matching := selectEntries(entries, filter)

	resp := &models.MoveFilesResponse{
		Source:      srcDir,
		Destination: destDir,
		Moved:       []string{},
	}
	if len(matching) == 0 {
		return resp, nil
	}

	if err := d.fs.MkdirAll(destDir); err != nil {
		return nil, classifyFSError(err, destDir, "move_files")
	}

	dirLock, err := d.locks.Acquire(destDir, d.lockTimeout)
	if err != nil {
		return nil, errors.NewOperationLockFailedError(destDir, "move_files", err.Error())
	}
	defer func() {
		if err := d.locks.Release(dirLock); err != nil {
			d.logger.Warn("failed to release directory lock", zap.String("dir", destDir), zap.Error(err))
		}
	}()

	for _, entry := range matching {
		target, err := d.fs.NextFreeName(destDir, entry.Name)
		if err != nil {
			resp.Failed = append(resp.Failed, models.EntryFailure{Name: entry.Name, Reason: err.Error()})
			continue
		}
		if err := d.fs.MoveFile(entry.Path, target); err != nil {
			resp.Failed = append(resp.Failed, models.EntryFailure{Name: entry.Name, Reason: err.Error()})
			continue
		}
		resp.Moved = append(resp.Moved, filepath.Base(target))
	}
	resp.MovedCount = len(resp.Moved)

	d.logger.Info("files moved",
		zap.String("source", srcDir),
		zap.String("destination", destDir),
		zap.String("filter", filter),
		zap.Int("moved", resp.MovedCount),
		zap.Int("failed", len(resp.Failed)))
	return resp, nil
}

// UnzipLatest extracts the most recently modified zip file in the given
// directory (downloads by default).
func (d *DefaultDispatcher) UnzipLatest(req models.UnzipLatestRequest) (*models.UnzipArchiveResponse, *models.ErrorDetail) {
	latest, errDetail := d.FindLatest(models.FindLatestRequest{Filter: ".zip", Directory: req.Directory})
	if errDetail != nil {
		return nil, errDetail
	}
	return d.UnzipArchive(models.UnzipArchiveRequest{
		Source:      latest.File.Path,
		Destination: req.Destination,
	})
}

// UnzipAndMove extracts an archive into "<downloads>/<stem>" and then moves
// all matching files from the extracted tree into a documents subfolder.
func (d *DefaultDispatcher) UnzipAndMove(req models.UnzipAndMoveRequest) (*models.UnzipAndMoveResponse, *models.ErrorDetail) {
	if strings.TrimSpace(req.DestinationFolder) == "" {
		return nil, errors.NewInvalidParamsError("destination_folder is required", "", "unzip_and_move")
	}
	filter := req.Filter
	if filter == "" {
		filter = defaultMoveFilter
	}

	src, errDetail := d.resolveDir(req.Source, "", d.downloadsDir, "unzip_and_move")
	if errDetail != nil {
		return nil, errDetail
	}
	extractDir := filepath.Join(d.downloadsDir, archiveStem(src))

	unzipResp, errDetail := d.UnzipArchive(models.UnzipArchiveRequest{
		Source:      req.Source,
		Destination: extractDir,
	})
	if errDetail != nil {
		return nil, errDetail
	}

	moveResp, errDetail := d.MoveFiles(models.MoveFilesRequest{
		Filter:      filter,
		Source:      extractDir,
		Destination: req.DestinationFolder,
	})
	if errDetail != nil {
		return nil, errDetail
	}

	return &models.UnzipAndMoveResponse{Unzip: *unzipResp, Move: *moveResp}, nil
}

// UnzipLatestAndMove applies UnzipAndMove to the newest zip file in the
// downloads directory.
func (d *DefaultDispatcher) UnzipLatestAndMove(req models.UnzipLatestAndMoveRequest) (*models.UnzipAndMoveResponse, *models.ErrorDetail) {
	latest, errDetail := d.FindLatest(models.FindLatestRequest{Filter: ".zip"})
	if errDetail != nil {
		return nil, errDetail
	}
	return d.UnzipAndMove(models.UnzipAndMoveRequest{
		Source:            latest.File.Path,
		Filter:            req.Filter,
		DestinationFolder: req.DestinationFolder,
	})
}

var _ Dispatcher = (*DefaultDispatcher)(nil)
