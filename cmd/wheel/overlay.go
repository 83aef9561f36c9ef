package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cbailey/wheelhouse/internal/overlay"
	"github.com/cbailey/wheelhouse/internal/records"
)

func newOverlayCmd(a *app) *cobra.Command {
	var (
		shares          int
		asJSON          bool
		includeEarnings bool
	)

	cmd := &cobra.Command{
		Use:   "overlay SYMBOL",
		Short: "Scan covered calls for held shares under the overwrite cap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Overlay
			if includeEarnings {
				cfg.SkipEarningsWeeks = false
			}

			scanner := overlay.NewScanner(a.client, a.earningsSource(), cfg, a.logger)
			report, err := scanner.Scan(cmd.Context(), args[0], shares)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records.FlattenOverlay(report))
			}
			printOverlay(cmd, report)
			return nil
		},
	}

	cmd.Flags().IntVar(&shares, "shares", 0, "shares held (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")
	cmd.Flags().BoolVar(&includeEarnings, "include-earnings", false, "scan earnings-overlapping weeks too")
	_ = cmd.MarkFlagRequired("shares")
	return cmd
}

func printOverlay(cmd *cobra.Command, report *overlay.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d shares, %d contract(s) under the overwrite cap\n",
		report.Symbol, report.Shares, report.Contracts)
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "  ! %s\n", w)
	}
	if !report.Actionable {
		return
	}

	for i := range report.Accepted {
		c := records.FlattenCandidate(&report.Accepted[i])
		fmt.Fprintf(out, "  sell $%.2f call exp %s: net credit $%.2f, delta %.3f, p(ITM) %.2f%%\n",
			c.Strike, c.Expiration, c.NetCredit, c.Delta, c.ProbabilityPct)
	}
	for i := range report.NearMisses {
		c := records.FlattenCandidate(&report.NearMisses[i])
		fmt.Fprintf(out, "  near miss $%.2f exp %s: score %.2f, binding: %s\n",
			c.Strike, c.Expiration, c.NearMissScore, c.BindingConstraint)
	}

	if len(report.Checklist) > 0 {
		fmt.Fprintln(out, "  before executing, re-verify:")
		for _, item := range report.Checklist {
			fmt.Fprintf(out, "    - %s: %s\n", item.Label, item.Expected)
		}
	}
}
