package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cbailey/wheelhouse/internal/recommend"
	"github.com/cbailey/wheelhouse/internal/records"
)

func newRecommendCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "recommend POSITION_ID",
		Short: "Recommend the next short option for one position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := a.store.GetPosition(args[0])
			if err != nil {
				return err
			}

			engine := recommend.NewEngine(a.client, a.earningsSource(), a.cfg.Recommend, a.logger)
			result, err := engine.Recommend(cmd.Context(), pos)
			if err != nil {
				return err
			}

			if asJSON {
				return writeResultJSON(result)
			}
			printResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full result as JSON")
	return cmd
}

func newScanCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan SYMBOL [SYMBOL...]",
		Short: "Scan symbols across every profile and both directions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := recommend.NewEngine(a.client, a.earningsSource(), a.cfg.Recommend, a.logger)
			recs, err := engine.ScanPortfolio(cmd.Context(), args)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no candidates cleared every gate")
				return nil
			}

			if asJSON {
				out := make([]records.RecommendationRecord, 0, len(recs))
				for i := range recs {
					out = append(out, records.FlattenRecommendation(&recs[i]))
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			for i := range recs {
				printRecommendation(cmd, &recs[i])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "emit results as JSON")
	return cmd
}

func writeResultJSON(result *recommend.Result) error {
	type flatResult struct {
		Symbol          string                         `json:"symbol"`
		Direction       string                         `json:"direction"`
		Profile         string                         `json:"profile"`
		Recommendations []records.RecommendationRecord `json:"recommendations"`
		NearMisses      []records.CandidateRecord      `json:"near_misses,omitempty"`
		Warnings        []string                       `json:"warnings,omitempty"`
	}
	flat := flatResult{
		Symbol:    result.Symbol,
		Direction: string(result.Direction),
		Profile:   result.Profile,
		Warnings:  result.Warnings,
	}
	for i := range result.Recommendations {
		flat.Recommendations = append(flat.Recommendations, records.FlattenRecommendation(&result.Recommendations[i]))
	}
	for i := range result.NearMisses {
		flat.NearMisses = append(flat.NearMisses, records.FlattenCandidate(&result.NearMisses[i]))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(flat)
}

func printResult(cmd *cobra.Command, result *recommend.Result) {
	out := cmd.OutOrStdout()
	if len(result.Recommendations) == 0 {
		fmt.Fprintf(out, "%s %s (%s): no suitable contracts found\n",
			result.Symbol, result.Direction, result.Profile)
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "  ! %s\n", w)
		}
		for i := range result.NearMisses {
			nm := records.FlattenCandidate(&result.NearMisses[i])
			fmt.Fprintf(out, "  near miss: $%.2f %s, score %.2f, binding: %s\n",
				nm.Strike, nm.Expiration, nm.NearMissScore, nm.BindingConstraint)
		}
		return
	}
	for i := range result.Recommendations {
		printRecommendation(cmd, &result.Recommendations[i])
	}
}

func printRecommendation(cmd *cobra.Command, r *recommend.Recommendation) {
	rec := records.FlattenRecommendation(r)
	fmt.Fprintf(cmd.OutOrStdout(),
		"%s sell %d %s $%.2f exp %s (%s): premium $%.2f, p(ITM) %.2f%%, yield %.2f%%/yr, bias %.4f\n",
		rec.Symbol, rec.Contracts, rec.Direction, rec.Strike, rec.Expiration, rec.Profile,
		rec.Premium, rec.ProbabilityPct, rec.AnnualizedYield, rec.BiasScore)
	if len(rec.Warnings) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  ! %s\n", strings.Join(rec.Warnings, "\n  ! "))
	}
}
