// cmd_convert.go - convert command and the shared export runner
// Main functions: ConvertHandler, newRunner, printBundle
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/7blacky7/hf2onnx/envconfig"
	"github.com/7blacky7/hf2onnx/export"
	"github.com/7blacky7/hf2onnx/history"
	"github.com/7blacky7/hf2onnx/huggingface"
	"github.com/7blacky7/hf2onnx/onnx"
	"github.com/7blacky7/hf2onnx/types/model"
)

// runner is the part of *export.Driver the commands use.
type runner interface {
	Run(ctx context.Context, req export.Request) (*export.Bundle, error)
	Location(req export.Request) (string, error)
}

// runnerOptions are the flags shared by convert and batch.
type runnerOptions struct {
	BaseDir  string
	Revision string
	Parallel int
}

// newRunner builds the export pipeline. Tests replace it.
var newRunner = func(opts runnerOptions, progress huggingface.ProgressCallback) (runner, error) {
	registry := huggingface.NewRegistry(
		huggingface.NewClient(huggingface.WithUserAgent("hf2onnx/"+Version)),
		huggingface.WithRevision(opts.Revision),
		huggingface.WithParallelism(opts.Parallel),
		huggingface.WithProgress(progress),
	)

	return export.NewDriver(export.Config{
		BaseDir:  opts.BaseDir,
		Registry: registry,
		Exporter: onnx.NewExporter(),
	})
}

// exportFlags reads --base-dir, --revision and --parallel.
func exportFlags(cmd *cobra.Command) (opts runnerOptions, err error) {
	if opts.BaseDir, err = cmd.Flags().GetString("base-dir"); err != nil {
		return opts, err
	}
	if opts.Revision, err = cmd.Flags().GetString("revision"); err != nil {
		return opts, err
	}
	if opts.Parallel, err = cmd.Flags().GetInt("parallel"); err != nil {
		return opts, err
	}
	if opts.Parallel < 1 && cmd.Flags().Changed("parallel") {
		return opts, fmt.Errorf("--parallel must be at least 1, got %d", opts.Parallel)
	}
	return opts, nil
}

// openJournal opens the run journal. A journal that cannot be opened is
// logged and skipped; it never fails a conversion.
func openJournal() *history.Journal {
	if envconfig.NoHistory() {
		return nil
	}

	j, err := history.Open(envconfig.History())
	if err != nil {
		slog.Warn("conversion journal unavailable", "path", envconfig.History(), "error", err)
		return nil
	}
	return j
}

// recordingRunner records every run in the journal.
type recordingRunner struct {
	runner
	journal *history.Journal
}

func (r *recordingRunner) Run(ctx context.Context, req export.Request) (*export.Bundle, error) {
	if r.journal == nil {
		return r.runner.Run(ctx, req)
	}

	entry := history.Begin(req.Model, req.Output, req.Mode.Short())
	bundle, err := r.runner.Run(ctx, req)
	location, _ := r.runner.Location(req)
	var files int
	var size int64
	if bundle != nil {
		location, files, size = bundle.Dir, len(bundle.Files), bundle.Size
	}
	entry.Finish(location, files, size, err)

	if rerr := r.journal.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		slog.Warn("failed to record conversion", "model", req.Model, "error", rerr)
	}
	return bundle, err
}

func ConvertHandler(cmd *cobra.Command, args []string) error {
	modelName, err := cmd.Flags().GetString("model")
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	modeName, err := cmd.Flags().GetString("mode")
	if err != nil {
		return err
	}

	mode, err := model.ParseMode(modeName)
	if err != nil {
		return err
	}
	if _, err := model.ParseIdentifier(modelName); err != nil {
		return fmt.Errorf("%w (set one with --model)", err)
	}

	opts, err := exportFlags(cmd)
	if err != nil {
		return err
	}

	progress := newDownloadProgress(os.Stderr)
	r, err := newRunner(opts, progress.Callback())
	if err != nil {
		return err
	}

	journal := openJournal()
	if journal != nil {
		defer journal.Close()
	}

	bundle, err := (&recordingRunner{runner: r, journal: journal}).Run(cmd.Context(), export.Request{
		Model:  modelName,
		Output: output,
		Mode:   mode,
	})
	progress.Reset()
	if err != nil {
		return err
	}

	printBundle(cmd.OutOrStdout(), bundle)
	return nil
}

// printBundle writes a short summary of a written or verified bundle.
func printBundle(w io.Writer, b *export.Bundle) {
	color.New(color.FgGreen, color.Bold).Fprint(w, "✓ ")
	if b.Model != "" {
		fmt.Fprintf(w, "%s -> %s\n", b.Model, b.Dir)
	} else {
		fmt.Fprintf(w, "%s\n", b.Dir)
	}

	details := []string{b.Mode.Task(), fmt.Sprintf("%d files", len(b.Files)), humanSize(b.Size)}
	if b.Graph != nil {
		if opset, ok := b.Graph.Opset(""); ok {
			details = append(details, fmt.Sprintf("opset %d", opset))
		}
	}
	if b.Labels != nil {
		details = append(details, fmt.Sprintf("%d labels", b.Labels.Len()))
	}
	color.New(color.FgHiBlack).Fprintf(w, "  %s\n", strings.Join(details, ", "))
}
