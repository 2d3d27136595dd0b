// Package export turns a model identifier and an export mode into an ONNX
// bundle on disk.
//
// A Driver validates the request, resolves the bundle directory below its
// base directory and hands the work to the strategy of the requested mode.
// Failures are not retried and partially written bundles are left in place.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/7blacky7/hf2onnx/huggingface"
	"github.com/7blacky7/hf2onnx/onnx"
	"github.com/7blacky7/hf2onnx/store"
	"github.com/7blacky7/hf2onnx/types/model"
)

// Registry resolves model identifiers to local files.
type Registry interface {
	// ResolveConfig returns only the model configuration.
	ResolveConfig(ctx context.Context, id string) (*huggingface.Config, error)
	// Resolve makes configuration, weights and tokenizer available locally.
	Resolve(ctx context.Context, id string) (*huggingface.Snapshot, error)
}

// GraphExporter serializes a resolved model to ONNX.
type GraphExporter interface {
	ExportFeatureExtraction(ctx context.Context, modelDir, outDir string) (*onnx.Result, error)
	Export(ctx context.Context, req onnx.Request) (*onnx.Result, error)
}

// Config configures a Driver.
type Config struct {
	// BaseDir is the directory bundles are created in.
	BaseDir  string
	Registry Registry
	Exporter GraphExporter
	// Opset of the token classification export. Zero means onnx.DefaultOpset.
	Opset int
}

// Request names one conversion.
type Request struct {
	Model string
	// Output names the bundle directory. Empty means the model identifier.
	Output string
	Mode   model.Mode
}

// Bundle describes the files written by a successful run.
type Bundle struct {
	Model string
	Mode  model.Mode
	Dir   string
	// Files are slash-separated paths relative to Dir, sorted.
	Files  []string
	Size   int64
	Graph  *onnx.Header
	Labels *LabelMap
}

func newBundle(id model.Identifier, mode model.Mode, dir string, graph *onnx.Header, labels *LabelMap) (*Bundle, error) {
	files, err := store.Files(dir)
	if err != nil {
		return nil, failed(mode, id, "list bundle", err)
	}
	size, err := store.Size(dir)
	if err != nil {
		return nil, failed(mode, id, "list bundle", err)
	}

	return &Bundle{
		Model:  id.String(),
		Mode:   mode,
		Dir:    dir,
		Files:  files,
		Size:   size,
		Graph:  graph,
		Labels: labels,
	}, nil
}

// Driver runs conversions. It holds no per-run state.
type Driver struct {
	store    *store.Store
	registry Registry
	exporter GraphExporter
	opset    int
}

// NewDriver validates cfg and returns a driver.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.Registry == nil {
		return nil, errors.New("export: registry is required")
	}
	if cfg.Exporter == nil {
		return nil, errors.New("export: exporter is required")
	}

	s, err := store.New(cfg.BaseDir)
	if err != nil {
		return nil, err
	}

	opset := cfg.Opset
	if opset == 0 {
		opset = onnx.DefaultOpset
	}

	return &Driver{store: s, registry: cfg.Registry, exporter: cfg.Exporter, opset: opset}, nil
}

// Location returns the bundle directory a request would write to, without
// creating it.
func (d *Driver) Location(req Request) (string, error) {
	id, err := model.ParseIdentifier(req.Model)
	if err != nil {
		return "", err
	}
	return d.store.Resolve(outputName(id, req.Output))
}

// Run converts one model. The mode is checked first, then the identifier;
// both before anything touches the filesystem or the network.
func (d *Driver) Run(ctx context.Context, req Request) (*Bundle, error) {
	strategy, err := strategyFor(req.Mode, d.registry, d.exporter, d.opset)
	if err != nil {
		return nil, err
	}

	id, err := model.ParseIdentifier(req.Model)
	if err != nil {
		return nil, err
	}

	name := outputName(id, req.Output)
	if _, err := d.store.Resolve(name); err != nil {
		return nil, err
	}

	location, err := d.store.Ensure(name)
	if err != nil {
		return nil, failed(req.Mode, id, "create output directory", err)
	}

	start := time.Now()
	slog.Info("starting export", "model", id, "mode", req.Mode, "location", location)

	bundle, err := strategy.export(ctx, id, location)
	if err != nil {
		slog.Error("export failed", "model", id, "mode", req.Mode, "location", location, "duration", time.Since(start), "error", err)
		return nil, err
	}

	slog.Info("export finished", "model", id, "mode", req.Mode, "location", location, "files", len(bundle.Files), "duration", time.Since(start))
	return bundle, nil
}

func outputName(id model.Identifier, output string) string {
	if name := strings.TrimSpace(output); name != "" {
		return name
	}
	return id.OutputName()
}

// String formats the mode and location of a bundle for log lines.
func (b *Bundle) String() string {
	return fmt.Sprintf("%s bundle at %s (%d files)", b.Mode.Short(), b.Dir, len(b.Files))
}
