package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/atmcast/core/dashboard"
	"github.com/kilianp07/atmcast/pkg/export"
)

var forecastOpts struct {
	atm     string
	horizon int
	format  string
	history bool
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Print the forecast and stocking verdict for one ATM",
	RunE:  runForecast,
}

func init() {
	f := forecastCmd.Flags()
	f.StringVar(&forecastOpts.atm, "atm", "", "ATM identifier (defaults to dashboard.atm_id)")
	f.IntVar(&forecastOpts.horizon, "horizon", 0, "forecast horizon in days (defaults to dashboard.horizon)")
	f.StringVarP(&forecastOpts.format, "format", "f", string(export.FormatTable), "output format: table, csv or json")
	f.BoolVar(&forecastOpts.history, "history", false, "include fitted historical values")
	rootCmd.AddCommand(forecastCmd)
}

func runForecast(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(forecastOpts.format)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := offline()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	snap, err := svc.Pipeline.Refresh(ctx, dashboard.Request{
		ATMID:          forecastOpts.atm,
		Horizon:        forecastOpts.horizon,
		IncludeHistory: forecastOpts.history,
	})
	if err != nil {
		return err
	}
	if snap.Degraded() {
		if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", snap.Status, snap.Diagnostic); err != nil {
			return err
		}
	}
	return export.WriteSnapshot(cmd.OutOrStdout(), snap, format)
}
