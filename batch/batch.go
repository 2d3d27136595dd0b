// Package batch runs a list of conversions read from a TOML file.
//
//	base_dir = "models"
//
//	[[convert]]
//	model = "sentence-transformers/all-MiniLM-L6-v2"
//	mode = "feature"
//
//	[[convert]]
//	model = "dslim/bert-base-NER"
//	output = "bert-base-ner-converted"
//	mode = "token"
//
// Jobs run one after another and the first failure stops the batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/7blacky7/hf2onnx/export"
	"github.com/7blacky7/hf2onnx/types/model"
)

var ErrInvalidFile = errors.New("invalid batch file")

// Job is one conversion. A missing mode means token classification.
type Job struct {
	Model  string     `toml:"model"`
	Output string     `toml:"output,omitempty"`
	Mode   model.Mode `toml:"mode"`
}

func (j Job) Request() export.Request {
	return export.Request{Model: j.Model, Output: j.Output, Mode: j.Mode}
}

func (j Job) String() string {
	if j.Output != "" {
		return fmt.Sprintf("%s -> %s (%s)", j.Model, j.Output, j.Mode.Short())
	}
	return fmt.Sprintf("%s (%s)", j.Model, j.Mode.Short())
}

// File is a parsed batch file.
type File struct {
	BaseDir  string `toml:"base_dir,omitempty"`
	Revision string `toml:"revision,omitempty"`
	Jobs     []Job  `toml:"convert"`
}

// Defaults returns the built-in batch: one embedding model and one NER
// model.
func Defaults() *File {
	return &File{
		Jobs: []Job{
			{Model: "sentence-transformers/all-MiniLM-L6-v2", Mode: model.ModeFeatureExtraction},
			{Model: "dslim/bert-base-NER", Output: "bert-base-ner-converted", Mode: model.ModeTokenClassification},
		},
	}
}

// Load reads and validates the batch file at path.
func Load(path string) (*File, error) {
	var f File
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if err := f.check(md); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Parse parses and validates a batch file from memory.
func Parse(data string) (*File, error) {
	var f File
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if err := f.check(md); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) check(md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalidFile, strings.Join(keys, ", "))
	}

	if len(f.Jobs) == 0 {
		return fmt.Errorf("%w: no [[convert]] entries", ErrInvalidFile)
	}

	for i := range f.Jobs {
		job := &f.Jobs[i]
		if strings.TrimSpace(job.Model) == "" {
			return fmt.Errorf("%w: convert #%d has no model", ErrInvalidFile, i+1)
		}
		if job.Mode == 0 {
			job.Mode = model.ModeTokenClassification
		}
	}
	return nil
}

// Encode writes f as TOML.
func (f *File) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(f)
}

// Runner converts one model.
type Runner interface {
	Run(ctx context.Context, req export.Request) (*export.Bundle, error)
}

// Result is the outcome of one job.
type Result struct {
	Job    Job
	Bundle *export.Bundle
	Err    error
}

// Run executes jobs in order and stops at the first failure. It returns the
// results of every job that ran, the failed one included. done, if not
// nil, is called after each job.
func Run(ctx context.Context, r Runner, jobs []Job, done func(Result)) ([]Result, error) {
	results := make([]Result, 0, len(jobs))
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		slog.Info("batch job", "index", i+1, "total", len(jobs), "job", job.String())
		bundle, err := r.Run(ctx, job.Request())

		result := Result{Job: job, Bundle: bundle, Err: err}
		results = append(results, result)
		if done != nil {
			done(result)
		}

		if err != nil {
			return results, fmt.Errorf("job %d (%s): %w", i+1, job.Model, err)
		}
	}
	return results, nil
}
