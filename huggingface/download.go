// download.go - multi-file snapshot download with progress reporting
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/7blacky7/hf2onnx/logutil"
)

const (
	DefaultChunkSize       = 1024 * 1024
	MaxDownloadRetries     = 3
	ProgressUpdateInterval = 100 * time.Millisecond
	DefaultParallelism     = 4
)

// DownloadRetryDelay is the pause between attempts of one file.
var DownloadRetryDelay = 2 * time.Second

var ErrNoFilesSelected = errors.New("no files selected for download")

// ModelDownloadResult describes a downloaded snapshot.
type ModelDownloadResult struct {
	ModelID  string
	Revision string
	// Commit is the commit Revision pointed at, or Revision itself when
	// the Hub did not report one.
	Commit       string
	CachePath    string
	Files        []DownloadedFile
	TotalSize    int64
	DownloadTime time.Duration
}

// DownloadedFile is one file of a snapshot.
type DownloadedFile struct {
	Filename  string
	LocalPath string
	Size      int64
	FromCache bool
}

// ProgressCallback receives the bytes done so far and the total.
type ProgressCallback func(downloaded, total int64)

type DownloadOption func(*downloadConfig)

type downloadConfig struct {
	revision    string
	progressFn  ProgressCallback
	parallelism int
	selectFn    func([]APISibling) []APISibling
}

func WithDownloadRevision(revision string) DownloadOption {
	return func(cfg *downloadConfig) {
		if revision != "" {
			cfg.revision = revision
		}
	}
}

func WithDownloadProgress(fn ProgressCallback) DownloadOption {
	return func(cfg *downloadConfig) { cfg.progressFn = fn }
}

func WithDownloadParallelism(n int) DownloadOption {
	return func(cfg *downloadConfig) {
		if n > 0 {
			cfg.parallelism = n
		}
	}
}

// WithFileSelector chooses which repository files are downloaded.
func WithFileSelector(fn func([]APISibling) []APISibling) DownloadOption {
	return func(cfg *downloadConfig) { cfg.selectFn = fn }
}

// DownloadModel downloads the selected files of a repository into the
// snapshot cache. Files already cached with the expected size are skipped.
func (c *Client) DownloadModel(ctx context.Context, modelID string, opts ...DownloadOption) (*ModelDownloadResult, error) {
	startTime := time.Now()
	cfg := &downloadConfig{revision: DefaultRevision, parallelism: DefaultParallelism}
	for _, opt := range opts {
		opt(cfg)
	}

	info, err := c.GetModelInfo(ctx, modelID, cfg.revision)
	if err != nil {
		return nil, &HuggingFaceError{Op: "model info", ModelID: modelID, Err: err}
	}

	files := info.Siblings
	if cfg.selectFn != nil {
		files = cfg.selectFn(files)
	}
	if len(files) == 0 {
		return nil, &HuggingFaceError{Op: "download", ModelID: modelID, Err: ErrNoFilesSelected}
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.FileSize()
	}

	commit := info.SHA
	if !isCommitHash(commit) {
		commit = cfg.revision
	}
	snapshotDir := c.SnapshotDir(modelID, commit)

	var downloadedBytes int64
	var progressMu sync.Mutex
	lastProgressUpdate := time.Now()
	updateProgress := func(n int64) {
		if cfg.progressFn == nil {
			return
		}
		progressMu.Lock()
		defer progressMu.Unlock()
		downloadedBytes += n
		if now := time.Now(); now.Sub(lastProgressUpdate) >= ProgressUpdateInterval {
			cfg.progressFn(downloadedBytes, totalSize)
			lastProgressUpdate = now
		}
	}

	results := make([]DownloadedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.parallelism)
	for i, f := range files {
		g.Go(func() error {
			localPath := filepath.Join(snapshotDir, filepath.FromSlash(f.Filename))
			size := f.FileSize()
			fromCache := false
			if stat, err := os.Stat(localPath); err == nil && (size == 0 || stat.Size() == size) {
				fromCache = true
				updateProgress(stat.Size())
				size = stat.Size()
			} else {
				n, err := c.downloadFileWithRetry(gctx, modelID, f.Filename, commit, localPath, updateProgress)
				if err != nil {
					return fmt.Errorf("download %s: %w", f.Filename, err)
				}
				size = n
			}
			logutil.Trace("snapshot file ready", "model", modelID, "file", f.Filename, "cached", fromCache)
			results[i] = DownloadedFile{Filename: f.Filename, LocalPath: localPath, Size: size, FromCache: fromCache}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &HuggingFaceError{Op: "download", ModelID: modelID, Err: err}
	}
	if err := c.writeRef(modelID, cfg.revision, commit); err != nil {
		return nil, &HuggingFaceError{Op: "download", ModelID: modelID, Err: err}
	}

	if cfg.progressFn != nil {
		cfg.progressFn(totalSize, totalSize)
	}

	slog.Debug("snapshot downloaded", "model", modelID, "revision", cfg.revision, "commit", commit, "files", len(results), "elapsed", time.Since(startTime))
	return &ModelDownloadResult{
		ModelID: modelID, Revision: cfg.revision, Commit: commit, CachePath: snapshotDir,
		Files: results, TotalSize: totalSize, DownloadTime: time.Since(startTime),
	}, nil
}

func (c *Client) downloadFileWithRetry(ctx context.Context, modelID, filename, revision, targetPath string, progressFn func(int64)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return 0, fmt.Errorf("create cache directory: %w", err)
	}

	url := c.resolveURL(modelID, revision, filename)
	progress := &fileProgress{fn: progressFn}
	var lastErr error
	for attempt := range MaxDownloadRetries {
		if attempt > 0 {
			slog.Debug("retrying download", "file", filename, "attempt", attempt+1, "error", lastErr)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(DownloadRetryDelay):
			}
		}

		n, err := c.doDownload(ctx, url, targetPath, progress)
		if err == nil {
			return n, nil
		}
		// not worth retrying
		if errors.Is(err, ErrModelNotFound) || errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return 0, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("%w after %d attempts: %w", ErrDownloadFailed, MaxDownloadRetries, lastErr)
}

// doDownload streams url into targetPath, resuming a previous partial
// ".download" file with a Range request when one exists.
func (c *Client) doDownload(ctx context.Context, url, targetPath string, progress *fileProgress) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	c.setHeaders(req)

	var existingSize int64
	tmpPath := targetPath + ".download"
	if stat, err := os.Stat(tmpPath); err == nil {
		existingSize = stat.Size()
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", existingSize))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && existingSize > 0 {
		// server ignored the range
		existingSize = 0
		os.Remove(tmpPath)
	} else if err := c.handleResponseError(resp); err != nil {
		return 0, err
	}

	flags := os.O_WRONLY | os.O_CREATE
	if existingSize > 0 {
		flags |= os.O_APPEND
		progress.advanceTo(existingSize)
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(tmpPath, flags, 0o644)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	written, err := io.CopyBuffer(file, &progressReader{r: resp.Body, pos: existingSize, progress: progress}, make([]byte, DefaultChunkSize))
	if err != nil {
		return 0, err
	}
	if err := file.Close(); err != nil {
		return 0, err
	}
	return existingSize + written, os.Rename(tmpPath, targetPath)
}

// fileProgress reports the bytes of one file to fn, counting each offset
// once however many attempts it takes.
type fileProgress struct {
	fn       func(int64)
	reported int64
}

// advanceTo notes that the first n bytes of the file are on disk.
func (p *fileProgress) advanceTo(n int64) {
	if n <= p.reported {
		return
	}
	if p.fn != nil {
		p.fn(n - p.reported)
	}
	p.reported = n
}

type progressReader struct {
	r        io.Reader
	pos      int64
	progress *fileProgress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.pos += int64(n)
		p.progress.advanceTo(p.pos)
	}
	return n, err
}
