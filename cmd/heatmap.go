package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/pkg/export"
)

var heatmapFormat string

var heatmapCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "Print the fleet weekly demand heatmap",
	RunE:  runHeatmap,
}

func init() {
	heatmapCmd.Flags().StringVarP(&heatmapFormat, "format", "f", string(export.FormatCSV), "output format: csv or json")
	rootCmd.AddCommand(heatmapCmd)
}

func runHeatmap(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(heatmapFormat)
	if err != nil {
		return err
	}
	svc, err := offline()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	hs := svc.Pipeline.Heatmap(context.Background())
	if hs.Status != dashboard.StatusOK || hs.Diagnostic != "" {
		if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", hs.Status, hs.Diagnostic); err != nil {
			return err
		}
	}
	return export.WriteHeatmap(cmd.OutOrStdout(), hs, format)
}
