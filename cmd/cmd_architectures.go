// cmd_architectures.go - architectures command
// Main functions: ArchitecturesHandler
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/hf2onnx/onnx"
)

func ArchitecturesHandler(cmd *cobra.Command, args []string) error {
	feature, err := cmd.Flags().GetString("feature")
	if err != nil {
		return err
	}
	if feature != "" {
		feature = onnx.NormalizeFeature(feature)
	}

	names := onnx.Architectures(feature)
	if len(names) == 0 {
		return fmt.Errorf("%w: no model type supports feature %q", onnx.ErrUnsupportedArchitecture, feature)
	}

	var data [][]string
	for _, name := range names {
		minOpset := "-"
		if cfg, err := onnx.ConfigFor(name, onnx.FeaturesOf(name)[0]); err == nil {
			minOpset = strconv.Itoa(cfg.MinOpset)
		}
		data = append(data, []string{name, strings.Join(onnx.FeaturesOf(name), ", "), minOpset})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"MODEL TYPE", "FEATURES", "MIN OPSET"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()

	return nil
}
