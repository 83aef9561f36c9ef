package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cbailey/wheelhouse/internal/records"
)

func newMonitorCmd(a *app) *cobra.Command {
	var (
		refresh bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Check every open trade against live prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			positions, err := a.store.ListOpen()
			if err != nil {
				return err
			}

			statuses := a.monitor.CheckAll(cmd.Context(), positions, refresh)
			if len(statuses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no open trades")
				return nil
			}

			if asJSON {
				out := make([]records.StatusRecord, 0, len(statuses))
				for _, st := range statuses {
					out = append(out, records.FlattenStatus(st))
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			for _, st := range statuses {
				rec := records.FlattenStatus(st)
				fmt.Fprintf(cmd.OutOrStdout(), "[%-6s] %s %s $%.2f exp %s (%d DTE): price $%.2f, %+.2f%% from strike\n",
					rec.Risk, rec.Symbol, rec.Direction, rec.Strike, rec.Expiration, rec.DTE,
					rec.Price, rec.PercentFromStrike)
				if rec.Note != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "         %s\n", rec.Note)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the price cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit statuses as JSON")
	return cmd
}
