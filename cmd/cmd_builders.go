// cmd_builders.go - command builders
// Main functions: newConvertCmd, newBatchCmd, newVerifyCmd, newHistoryCmd, newArchitecturesCmd
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/7blacky7/hf2onnx/envconfig"
	"github.com/7blacky7/hf2onnx/types/model"
)

// addExportFlags registers the flags shared by convert and batch.
func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().String("base-dir", envconfig.Models(), "Directory the bundles are written to")
	cmd.Flags().String("revision", "", "Hub revision (branch, tag or commit) to download")
	cmd.Flags().Int("parallel", int(envconfig.Parallel()), "Number of files downloaded at once")
}

func newConvertCmd() *cobra.Command {
	convertCmd := &cobra.Command{
		Use:   "convert",
		Short: "Export a model to an ONNX bundle",
		Example: `  hf2onnx convert -m dslim/bert-base-NER -o bert-base-ner-converted
  hf2onnx convert -m sentence-transformers/all-MiniLM-L6-v2 --mode feature`,
		Args: cobra.NoArgs,
		RunE: ConvertHandler,
	}

	convertCmd.Flags().StringP("model", "m", "", "Hub model identifier or local model directory")
	convertCmd.Flags().StringP("output", "o", "", "Bundle directory name below the base directory (default: model name)")
	convertCmd.Flags().String("mode", model.ModeTokenClassification.Short(), "Export mode: feature or token")
	addExportFlags(convertCmd)

	return convertCmd
}

func newBatchCmd() *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch [FILE]",
		Short: "Run the conversions listed in a TOML file",
		Long: `Run the conversions listed in a TOML file, one after another.
The first failing conversion stops the batch. Without FILE the built-in
list is used; print it with --print-defaults.`,
		Args: cobra.MaximumNArgs(1),
		RunE: BatchHandler,
	}

	batchCmd.Flags().Bool("print-defaults", false, "Print the built-in batch file and exit")
	addExportFlags(batchCmd)

	return batchCmd
}

func newVerifyCmd() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify DIR",
		Short: "Check that a directory holds a complete bundle",
		Args:  cobra.ExactArgs(1),
		RunE:  VerifyHandler,
	}

	verifyCmd.Flags().String("mode", model.ModeTokenClassification.Short(), "Export mode the bundle was written for: feature or token")

	return verifyCmd
}

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded conversions",
		Args:  cobra.NoArgs,
		RunE:  HistoryHandler,
	}

	historyCmd.Flags().IntP("limit", "n", 20, "Number of conversions to show, 0 for all")

	return historyCmd
}

func newArchitecturesCmd() *cobra.Command {
	architecturesCmd := &cobra.Command{
		Use:     "architectures",
		Aliases: []string{"archs"},
		Short:   "List the model types that can be exported",
		Args:    cobra.NoArgs,
		RunE:    ArchitecturesHandler,
	}

	architecturesCmd.Flags().String("feature", "", "Only list model types supporting this feature (default, token-classification)")

	return architecturesCmd
}
