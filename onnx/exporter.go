// exporter.go - runs the embedded Python export helper
//
// The helper (scripts/export.py) is written to a temporary directory for
// each run and executed with the configured interpreter. stdout and stderr
// are streamed line by line to the logger; the tail of stderr ends up in
// the returned error.
package onnx

import (
	"bufio"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/7blacky7/hf2onnx/envconfig"
)

// ModelFile is the graph file name inside a bundle.
const ModelFile = "model.onnx"

const (
	MinTimeout            = 1 * time.Minute
	MaxTimeout            = 24 * time.Hour
	PythonCommand         = "python"
	FallbackPythonCommand = "python3"

	helperScript = "export.py"
	stderrTail   = 20
)

var (
	ErrPythonNotFound = errors.New("python not found")
	ErrHelperFailed   = errors.New("export helper failed")
	ErrExportTimeout  = errors.New("export timed out")
	ErrMissingOutput  = errors.New("export helper produced no model")
	ErrInvalidRequest = errors.New("invalid export request")
)

//go:embed scripts/export.py
var scripts embed.FS

// Request describes an explicit graph export.
type Request struct {
	// ModelDir holds config.json, weights and tokenizer files.
	ModelDir string
	// Output is the path of the model file to write.
	Output string
	Opset  int
	Config *ExportConfig
}

// Result reports a finished export.
type Result struct {
	Output   string
	Size     int64
	Duration time.Duration
}

// Exporter drives the Python export helper.
type Exporter struct {
	python  string
	timeout time.Duration
}

type Option func(*Exporter)

// WithPython sets the interpreter instead of looking one up on PATH.
func WithPython(path string) Option {
	return func(e *Exporter) { e.python = path }
}

// WithTimeout bounds a single helper run. Values are clamped to
// [MinTimeout, MaxTimeout]; zero keeps the configured default.
func WithTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		if d != 0 {
			e.timeout = d
		}
	}
}

// NewExporter returns an exporter configured from HF2ONNX_PYTHON and
// HF2ONNX_EXPORT_TIMEOUT.
func NewExporter(opts ...Option) *Exporter {
	e := &Exporter{
		python:  envconfig.Python(),
		timeout: envconfig.ExportTimeout(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.timeout = clampTimeout(e.timeout)
	return e
}

func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}

// ExportFeatureExtraction exports the model in modelDir with optimum and
// saves model.onnx and config.json into outDir.
func (e *Exporter) ExportFeatureExtraction(ctx context.Context, modelDir, outDir string) (*Result, error) {
	if modelDir == "" || outDir == "" {
		return nil, fmt.Errorf("%w: model and output directory are required", ErrInvalidRequest)
	}

	output := filepath.Join(outDir, ModelFile)
	return e.run(ctx, output, "feature-extraction", "--model", modelDir, "--output", outDir)
}

// Export exports the model in req.ModelDir for req.Config's feature at
// req.Opset into req.Output.
func (e *Exporter) Export(ctx context.Context, req Request) (*Result, error) {
	if req.ModelDir == "" || req.Output == "" {
		return nil, fmt.Errorf("%w: model directory and output are required", ErrInvalidRequest)
	}
	if req.Config == nil {
		return nil, fmt.Errorf("%w: missing export config", ErrInvalidRequest)
	}
	if req.Opset == 0 {
		req.Opset = DefaultOpset
	}
	if req.Opset < req.Config.MinOpset {
		return nil, fmt.Errorf("%w: %s needs opset %d or newer, got %d", ErrInvalidRequest, req.Config.ModelType, req.Config.MinOpset, req.Opset)
	}

	return e.run(ctx, req.Output, req.Config.Feature,
		"--model", req.ModelDir,
		"--output", req.Output,
		"--opset", strconv.Itoa(req.Opset),
		"--feature", req.Config.Feature,
		"--model-type", req.Config.ModelType,
	)
}

func (e *Exporter) run(ctx context.Context, output, command string, args ...string) (*Result, error) {
	start := time.Now()

	python, err := e.findPython()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "hf2onnx-helper-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	script, err := writeHelper(dir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, python, append([]string{script, command}, args...)...)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	slog.Info("starting export helper", "command", command, "python", python, "timeout", e.timeout)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start python: %w", err)
	}

	var tail lineTail
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		stream(stdoutPipe, "stdout", nil)
	}()
	go func() {
		defer wg.Done()
		stream(stderrPipe, "stderr", &tail)
	}()
	wg.Wait()

	err = cmd.Wait()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %v", ErrExportTimeout, time.Since(start).Round(time.Second))
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("export helper: %w", ctxErr)
	}
	if err != nil {
		if msg := tail.String(); msg != "" {
			return nil, fmt.Errorf("%w: %v\n%s", ErrHelperFailed, err, msg)
		}
		return nil, fmt.Errorf("%w: %v", ErrHelperFailed, err)
	}

	fi, err := os.Stat(output)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingOutput, err)
	}

	result := &Result{Output: output, Size: fi.Size(), Duration: time.Since(start)}
	slog.Info("export helper finished", "command", command, "output", output, "size", result.Size, "duration", result.Duration)
	return result, nil
}

func (e *Exporter) findPython() (string, error) {
	if e.python != "" {
		return e.python, nil
	}
	for _, cmd := range []string{PythonCommand, FallbackPythonCommand} {
		if p, err := exec.LookPath(cmd); err == nil {
			e.python = p
			return p, nil
		}
	}
	return "", ErrPythonNotFound
}

func writeHelper(dir string) (string, error) {
	b, err := scripts.ReadFile("scripts/" + helperScript)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, helperScript)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func stream(r io.Reader, name string, tail *lineTail) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64<<10), 1<<20)
	for s.Scan() {
		line := s.Text()
		slog.Debug("export helper", "stream", name, "line", line)
		if tail != nil {
			tail.add(line)
		}
	}
}

// lineTail keeps the last stderrTail lines written to it.
type lineTail struct {
	lines []string
}

func (t *lineTail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > stderrTail {
		t.lines = t.lines[len(t.lines)-stderrTail:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}
