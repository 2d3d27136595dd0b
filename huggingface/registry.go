// registry.go - resolves model identifiers to local snapshots
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/7blacky7/hf2onnx/envconfig"
	"github.com/7blacky7/hf2onnx/types/model"
)

var ErrNoWeights = errors.New("no pytorch or safetensors weights")

// Registry resolves identifiers against the Hub, the snapshot cache, or a
// local directory in that order of preference: an existing directory with
// a config.json always wins, as with from_pretrained.
type Registry struct {
	client      *Client
	revision    string
	parallelism int
	progress    ProgressCallback
	offline     bool
}

type RegistryOption func(*Registry)

func WithRevision(revision string) RegistryOption {
	return func(r *Registry) {
		if revision != "" {
			r.revision = revision
		}
	}
}

func WithParallelism(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

func WithProgress(fn ProgressCallback) RegistryOption {
	return func(r *Registry) { r.progress = fn }
}

// WithOffline restricts resolution to local directories and the cache.
func WithOffline(offline bool) RegistryOption {
	return func(r *Registry) { r.offline = offline }
}

// NewRegistry returns a registry backed by client. Parallelism and offline
// mode default to HF2ONNX_PARALLEL and HF_HUB_OFFLINE.
func NewRegistry(client *Client, opts ...RegistryOption) *Registry {
	r := &Registry{
		client:      client,
		revision:    DefaultRevision,
		parallelism: int(envconfig.Parallel()),
		offline:     envconfig.HFHubOffline(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveConfig fetches only config.json. It is cheap compared to Resolve
// and does not download weights.
func (r *Registry) ResolveConfig(ctx context.Context, id string) (*Config, error) {
	if dir, ok, err := localDir(id); err != nil {
		return nil, err
	} else if ok {
		return LoadConfig(dir)
	}

	if r.offline {
		dir, err := r.client.CachedSnapshot(id, r.revision)
		if err != nil {
			return nil, &HuggingFaceError{Op: "resolve config", ModelID: id, Err: err}
		}
		return LoadConfig(dir)
	}

	path, err := r.client.DownloadFile(ctx, id, ConfigFile, r.revision)
	if err != nil {
		return nil, &HuggingFaceError{Op: "resolve config", ModelID: id, Err: r.authHint(err)}
	}
	return LoadConfig(filepath.Dir(path))
}

// Resolve makes configuration, weights and tokenizer of id available in one
// local directory.
func (r *Registry) Resolve(ctx context.Context, id string) (*Snapshot, error) {
	dir, local, err := localDir(id)
	if err != nil {
		return nil, err
	}

	switch {
	case local:
		slog.Debug("using local model directory", "model", id, "dir", dir)
	case r.offline:
		if dir, err = r.client.CachedSnapshot(id, r.revision); err != nil {
			return nil, &HuggingFaceError{Op: "resolve", ModelID: id, Err: err}
		}
	default:
		result, err := r.client.DownloadModel(ctx, id,
			WithDownloadRevision(r.revision),
			WithDownloadParallelism(r.parallelism),
			WithDownloadProgress(r.progress),
			WithFileSelector(SelectSnapshotFiles),
		)
		if err != nil {
			return nil, r.authHint(err)
		}
		dir = result.CachePath
	}

	cfg, err := LoadConfig(dir)
	if err != nil {
		return nil, err
	}

	weights, err := weightFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(weights) == 0 {
		return nil, &HuggingFaceError{Op: "resolve", ModelID: id, Err: ErrNoWeights}
	}

	tok, err := LoadTokenizer(dir)
	if err != nil {
		return nil, err
	}

	return &Snapshot{ID: id, Revision: r.revision, Dir: dir, Config: cfg, Weights: weights, Tokenizer: tok}, nil
}

// authHint points at HF_TOKEN when an anonymous request was refused.
func (r *Registry) authHint(err error) error {
	if errors.Is(err, ErrUnauthorized) && !r.client.HasToken() {
		return fmt.Errorf("%w (gated or private model: set HF_TOKEN)", err)
	}
	return err
}

// localDir reports whether id names a model directory on disk.
func localDir(id string) (string, bool, error) {
	fi, err := os.Stat(id)
	if err == nil && fi.IsDir() {
		if _, err := os.Stat(filepath.Join(id, ConfigFile)); err == nil {
			abs, err := filepath.Abs(id)
			return abs, err == nil, err
		}
	}

	if model.Identifier(id).IsLocal() {
		return "", false, &HuggingFaceError{Op: "resolve", ModelID: id, Err: fmt.Errorf("%w: no %s in local directory", ErrModelNotFound, ConfigFile)}
	}
	return "", false, nil
}

// SelectSnapshotFiles picks config, tokenizer and one set of weights from
// the top level of a repository. Safetensors are preferred over pytorch
// pickles; other frameworks and sub-directories are skipped.
func SelectSnapshotFiles(siblings []APISibling) []APISibling {
	var selected, safetensors, pickles []APISibling
	for _, s := range siblings {
		name := s.Filename
		if strings.Contains(name, "/") {
			continue
		}

		switch {
		case name == ConfigFile, IsTokenizerFile(name):
			selected = append(selected, s)
		case isSafetensorsFile(name):
			safetensors = append(safetensors, s)
		case isPickleFile(name):
			pickles = append(pickles, s)
		}
	}

	if len(safetensors) > 0 {
		return append(selected, safetensors...)
	}
	return append(selected, pickles...)
}

func weightFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var safetensors, pickles []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch name := e.Name(); {
		case isSafetensorsFile(name):
			safetensors = append(safetensors, name)
		case isPickleFile(name):
			pickles = append(pickles, name)
		}
	}

	if len(safetensors) > 0 {
		return safetensors, nil
	}
	return pickles, nil
}

func isSafetensorsFile(name string) bool {
	return strings.HasSuffix(name, ".safetensors") || name == "model.safetensors.index.json"
}

func isPickleFile(name string) bool {
	return name == "pytorch_model.bin" ||
		name == "pytorch_model.bin.index.json" ||
		(strings.HasPrefix(name, "pytorch_model-") && strings.HasSuffix(name, ".bin"))
}
