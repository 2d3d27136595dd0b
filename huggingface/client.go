// client.go - Hugging Face Hub client
package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/7blacky7/hf2onnx/envconfig"
)

const (
	DefaultHubURL        = "https://huggingface.co"
	DefaultRevision      = "main"
	DefaultClientTimeout = 30 * time.Minute
	ClientUserAgent      = "hf2onnx/1.0"

	// HeaderRepoCommit carries the commit a resolve request was served from.
	HeaderRepoCommit = "X-Repo-Commit"
)

var (
	ErrModelNotFound   = errors.New("model not found")
	ErrUnauthorized    = errors.New("authentication failed")
	ErrRateLimited     = errors.New("rate limited")
	ErrNetworkError    = errors.New("network error")
	ErrInvalidModelID  = errors.New("invalid model id")
	ErrFileNotFound    = errors.New("file not found")
	ErrDownloadFailed  = errors.New("download failed")
	ErrInvalidResponse = errors.New("invalid server response")
)

// APIModelInfo is the subset of /api/models/{id} the resolver uses.
type APIModelInfo struct {
	ID           string       `json:"id"`
	Author       string       `json:"author"`
	SHA          string       `json:"sha"`
	LastModified time.Time    `json:"lastModified"`
	Private      bool         `json:"private"`
	Gated        any          `json:"gated"` // false, "auto" or "manual"
	Pipeline     string       `json:"pipeline_tag"`
	Tags         []string     `json:"tags"`
	LibraryName  string       `json:"library_name"`
	Siblings     []APISibling `json:"siblings"`
}

// IsGated reports whether downloading requires accepting terms.
func (m *APIModelInfo) IsGated() bool {
	switch v := m.Gated.(type) {
	case bool:
		return v
	case string:
		return v == "auto" || v == "manual"
	default:
		return false
	}
}

// APISibling is a file in a model repository.
type APISibling struct {
	Filename string   `json:"rfilename"`
	Size     int64    `json:"size"`
	BlobID   string   `json:"blobId"`
	LFS      *LFSInfo `json:"lfs,omitempty"`
}

// LFSInfo holds LFS metadata for large files.
type LFSInfo struct {
	Size        int64  `json:"size"`
	SHA256      string `json:"sha256"`
	PointerSize int64  `json:"pointerSize"`
}

// FileSize returns the LFS size when present, the plain size otherwise.
func (s APISibling) FileSize() int64 {
	if s.LFS != nil && s.LFS.Size > 0 {
		return s.LFS.Size
	}
	return s.Size
}

// Client talks to the Hugging Face Hub.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	cacheDir   string
}

type ClientOption func(*Client)

func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithCacheDir overrides the snapshot cache location.
func WithCacheDir(dir string) ClientOption {
	return func(c *Client) { c.cacheDir = dir }
}

// NewClient returns a client configured from HF_TOKEN and HF_ENDPOINT,
// then from options.
func NewClient(options ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
		baseURL:    DefaultHubURL,
		userAgent:  ClientUserAgent,
	}
	if token := envconfig.HFToken(); token != "" {
		c.token = token
	}
	if endpoint := envconfig.HFEndpoint(); endpoint != "" {
		c.baseURL = strings.TrimSuffix(endpoint, "/")
	}
	for _, opt := range options {
		opt(c)
	}
	if c.cacheDir == "" {
		c.cacheDir = GetCacheDir()
	}
	return c
}

// BaseURL returns the Hub endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// HasToken reports whether requests are authenticated.
func (c *Client) HasToken() bool { return c.token != "" }

// CacheDir returns the snapshot cache root.
func (c *Client) CacheDir() string { return c.cacheDir }

// GetModelInfo fetches repository metadata, including file sizes.
func (c *Client) GetModelInfo(ctx context.Context, modelID, revision string) (*APIModelInfo, error) {
	if err := ValidateModelID(modelID); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/api/models/%s", c.baseURL, modelID)
	if revision != "" && revision != DefaultRevision {
		u += "/revision/" + url.PathEscape(revision)
	}
	u += "?blobs=true"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := c.handleResponseError(resp); err != nil {
		return nil, err
	}

	var info APIModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &info, nil
}

// DownloadFile fetches one file of a repository into the snapshot cache and
// returns its local path. A file of a commit hash revision is served from
// the cache when present; branch and tag names are always looked up again
// so the file matches the commit they point at now.
func (c *Client) DownloadFile(ctx context.Context, modelID, filename, revision string) (string, error) {
	if err := ValidateModelID(modelID); err != nil {
		return "", err
	}
	if filename == "" {
		return "", fmt.Errorf("%w: filename must not be empty", ErrFileNotFound)
	}
	if revision == "" {
		revision = DefaultRevision
	}

	if isCommitHash(revision) {
		cached := filepath.Join(c.SnapshotDir(modelID, revision), filepath.FromSlash(filename))
		if _, err := os.Stat(cached); err == nil {
			return cached, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(modelID, revision, filename), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := c.handleResponseError(resp); err != nil {
		if errors.Is(err, ErrModelNotFound) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, filename)
		}
		return "", err
	}

	commit := resp.Header.Get(HeaderRepoCommit)
	if !isCommitHash(commit) {
		commit = revision
	}

	targetPath := filepath.Join(c.SnapshotDir(modelID, commit), filepath.FromSlash(filename))
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(targetPath), ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	tmpFile = nil

	if err := os.Rename(tmpPath, targetPath); err != nil {
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	if err := c.writeRef(modelID, revision, commit); err != nil {
		return "", err
	}
	return targetPath, nil
}

// SnapshotDir returns the cache directory holding the files of a commit.
func (c *Client) SnapshotDir(modelID, commit string) string {
	return filepath.Join(c.cacheDir, modelIDToCacheDir(modelID), CacheSnapshotDir, commit)
}

func (c *Client) resolveURL(modelID, revision, filename string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", c.baseURL, modelID, url.PathEscape(revision), filename)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) handleResponseError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		return nil
	case http.StatusNotFound:
		return ErrModelNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("%w: status %d - %s", ErrInvalidResponse, resp.StatusCode, string(body))
		}
		return nil
	}
}

// ValidateModelID checks the Hub naming rules: "name" or "owner/name",
// each part made of letters, digits, '-', '_' and '.', without "--" or "..".
func ValidateModelID(modelID string) error {
	if modelID == "" {
		return fmt.Errorf("%w: model id must not be empty", ErrInvalidModelID)
	}

	parts := strings.Split(modelID, "/")
	if len(parts) > 2 {
		return fmt.Errorf("%w: expected 'owner/model', got %q", ErrInvalidModelID, modelID)
	}

	for _, part := range parts {
		if part == "" || len(part) > 96 {
			return fmt.Errorf("%w: %q", ErrInvalidModelID, modelID)
		}
		if strings.Contains(part, "--") || strings.Contains(part, "..") {
			return fmt.Errorf("%w: %q contains '--' or '..'", ErrInvalidModelID, modelID)
		}
		for i := range part {
			switch c := part[i]; {
			case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			case c == '-', c == '_', c == '.':
				if i == 0 || i == len(part)-1 {
					return fmt.Errorf("%w: %q", ErrInvalidModelID, modelID)
				}
			default:
				return fmt.Errorf("%w: invalid character %q in %q", ErrInvalidModelID, c, modelID)
			}
		}
	}
	return nil
}
