// cmd.go - root command and environment documentation
// Main functions: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/7blacky7/hf2onnx/envconfig"
	"github.com/7blacky7/hf2onnx/logutil"
)

// Version is set at build time with -ldflags "-X github.com/7blacky7/hf2onnx/cmd.Version=...".
var Version = "0.0.0"

// appendEnvDocs adds the environment variables a command reads to its usage.
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI builds the hf2onnx command tree.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "hf2onnx",
		Short:         "Convert Hugging Face models to ONNX bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				fmt.Fprintf(cmd.OutOrStdout(), "hf2onnx version %s\n", Version)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	convertCmd := newConvertCmd()
	batchCmd := newBatchCmd()
	verifyCmd := newVerifyCmd()
	historyCmd := newHistoryCmd()
	architecturesCmd := newArchitecturesCmd()

	envVars := envconfig.AsMap()
	exportEnvs := []envconfig.EnvVar{
		envVars["HF2ONNX_DEBUG"],
		envVars["HF2ONNX_MODELS"],
		envVars["HF2ONNX_PYTHON"],
		envVars["HF2ONNX_EXPORT_TIMEOUT"],
		envVars["HF2ONNX_PARALLEL"],
		envVars["HF2ONNX_HISTORY"],
		envVars["HF2ONNX_NOHISTORY"],
		envVars["HF_TOKEN"],
		envVars["HF_ENDPOINT"],
		envVars["HF_HOME"],
		envVars["HF_HUB_CACHE"],
		envVars["HF_HUB_OFFLINE"],
		envVars["HTTPS_PROXY"],
	}

	for _, cmd := range []*cobra.Command{
		convertCmd,
		batchCmd,
		verifyCmd,
		historyCmd,
	} {
		switch cmd {
		case convertCmd, batchCmd:
			appendEnvDocs(cmd, exportEnvs)
		case historyCmd:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["HF2ONNX_HISTORY"]})
		default:
			appendEnvDocs(cmd, []envconfig.EnvVar{envVars["HF2ONNX_DEBUG"]})
		}
	}

	rootCmd.AddCommand(
		convertCmd,
		batchCmd,
		verifyCmd,
		historyCmd,
		architecturesCmd,
	)

	return rootCmd
}
