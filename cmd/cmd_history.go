// cmd_history.go - history command
// Main functions: HistoryHandler
package cmd

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/7blacky7/hf2onnx/envconfig"
	"github.com/7blacky7/hf2onnx/history"
)

func HistoryHandler(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	journal, err := history.Open(envconfig.History())
	if err != nil {
		return err
	}
	defer journal.Close()

	entries, err := journal.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no conversions recorded")
		return nil
	}

	var data [][]string
	for _, e := range entries {
		status := string(e.Status)
		if e.Status == history.StatusFailed {
			status = "failed: " + truncate(e.Error, 48)
		}

		size := "-"
		if e.Size > 0 {
			size = humanSize(e.Size)
		}

		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}

		data = append(data, []string{
			id,
			e.Model,
			e.Mode,
			e.Location,
			size,
			e.Duration.Round(time.Second).String(),
			e.Started.Local().Format(time.DateTime),
			status,
		})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "MODEL", "MODE", "LOCATION", "SIZE", "DURATION", "STARTED", "STATUS"})
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

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
