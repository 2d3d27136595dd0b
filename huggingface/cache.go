// cache.go - snapshot cache in the huggingface_hub layout
//
// models--<owner>--<name>/snapshots/<commit>/ holds the files of a commit and
// models--<owner>--<name>/refs/<revision> names the commit a branch or tag
// pointed at when it was last fetched. Files are stored directly in the
// snapshot directory; there is no blobs/ indirection.
package huggingface

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/7blacky7/hf2onnx/envconfig"
)

const (
	DefaultCacheSubdir = "huggingface/hub"
	CacheSnapshotDir   = "snapshots"
	CacheRefsDir       = "refs"
	CacheModelPrefix   = "models--"
)

var ErrModelNotInCache = errors.New("model not in cache")

// GetCacheDir returns the cache root: HF_HUB_CACHE, then $HF_HOME/hub, then
// the platform default.
func GetCacheDir() string {
	if cacheDir := envconfig.HFHubCache(); cacheDir != "" {
		return cacheDir
	}
	if hfHome := envconfig.HFHome(); hfHome != "" {
		return filepath.Join(hfHome, "hub")
	}
	return getDefaultCacheDir()
}

func getDefaultCacheDir() string {
	var baseDir string
	switch runtime.GOOS {
	case "windows":
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			baseDir = filepath.Join(userProfile, ".cache")
		} else {
			baseDir = filepath.Join(os.TempDir(), "huggingface_cache")
		}
	default:
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			baseDir = xdgCache
		} else if home, err := os.UserHomeDir(); err == nil {
			baseDir = filepath.Join(home, ".cache")
		} else {
			baseDir = filepath.Join(os.TempDir(), "huggingface_cache")
		}
	}
	return filepath.Join(baseDir, DefaultCacheSubdir)
}

// CachedSnapshot returns the snapshot directory a revision resolves to in
// the cache if it holds a config.json.
func (c *Client) CachedSnapshot(modelID, revision string) (string, error) {
	commit, ok := c.cachedCommit(modelID, revision)
	if !ok {
		return "", ErrModelNotInCache
	}
	dir := c.SnapshotDir(modelID, commit)
	if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err != nil {
		return "", ErrModelNotInCache
	}
	return dir, nil
}

// cachedCommit resolves revision through refs/. Commit hashes resolve to
// themselves.
func (c *Client) cachedCommit(modelID, revision string) (string, bool) {
	if isCommitHash(revision) {
		return revision, true
	}
	b, err := os.ReadFile(c.refPath(modelID, revision))
	if err != nil {
		return "", false
	}
	commit := strings.TrimSpace(string(b))
	return commit, commit != ""
}

// writeRef records that revision points at commit.
func (c *Client) writeRef(modelID, revision, commit string) error {
	if revision == commit {
		return nil
	}
	path := c.refPath(modelID, revision)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create refs directory: %w", err)
	}
	return os.WriteFile(path, []byte(commit), 0o644)
}

func (c *Client) refPath(modelID, revision string) string {
	return filepath.Join(c.cacheDir, modelIDToCacheDir(modelID), CacheRefsDir, filepath.FromSlash(revision))
}

func isCommitHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func modelIDToCacheDir(modelID string) string {
	return CacheModelPrefix + strings.ReplaceAll(modelID, "/", "--")
}
