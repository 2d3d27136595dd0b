// cmd_batch.go - batch command
// Main functions: BatchHandler
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/7blacky7/hf2onnx/batch"
)

func BatchHandler(cmd *cobra.Command, args []string) error {
	if printDefaults, _ := cmd.Flags().GetBool("print-defaults"); printDefaults {
		return batch.Defaults().Encode(cmd.OutOrStdout())
	}

	file := batch.Defaults()
	if len(args) == 1 {
		var err error
		if file, err = batch.Load(args[0]); err != nil {
			return err
		}
	}

	opts, err := exportFlags(cmd)
	if err != nil {
		return err
	}
	if file.BaseDir != "" && !cmd.Flags().Changed("base-dir") {
		opts.BaseDir = file.BaseDir
	}
	if file.Revision != "" && !cmd.Flags().Changed("revision") {
		opts.Revision = file.Revision
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

	w := cmd.OutOrStdout()
	results, err := batch.Run(cmd.Context(), &recordingRunner{runner: r, journal: journal}, file.Jobs, func(res batch.Result) {
		progress.Reset()
		if res.Err == nil {
			printBundle(w, res.Bundle)
		}
	})
	if err != nil {
		if skipped := len(file.Jobs) - len(results); skipped > 0 {
			color.New(color.FgYellow).Fprintf(w, "%d of %d conversions not started\n", skipped, len(file.Jobs))
		}
		return err
	}

	fmt.Fprintf(w, "%d conversions finished\n", len(results))
	return nil
}
