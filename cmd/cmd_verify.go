// cmd_verify.go - verify command
// Main functions: VerifyHandler
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/7blacky7/hf2onnx/export"
	"github.com/7blacky7/hf2onnx/types/model"
)

func VerifyHandler(cmd *cobra.Command, args []string) error {
	modeName, err := cmd.Flags().GetString("mode")
	if err != nil {
		return err
	}
	mode, err := model.ParseMode(modeName)
	if err != nil {
		return err
	}

	bundle, err := export.Verify(args[0], mode)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printBundle(w, bundle)
	if g := bundle.Graph; g != nil {
		fmt.Fprintf(w, "  inputs:  %s\n", strings.Join(g.Inputs, ", "))
		fmt.Fprintf(w, "  outputs: %s\n", strings.Join(g.Outputs, ", "))
		if g.ProducerName != "" {
			fmt.Fprintf(w, "  producer: %s %s\n", g.ProducerName, g.ProducerVersion)
		}
	}
	if bundle.Labels != nil {
		fmt.Fprintf(w, "  labels:  %s\n", strings.Join(bundle.Labels.Labels(), ", "))
	}
	return nil
}
