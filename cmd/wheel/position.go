package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cbailey/wheelhouse/internal/models"
)

const dateLayout = "2006-01-02"

// newPositionCmd groups the trade-event recording commands. These drive
// the position state machine; the engine only ever reads the result.
func newPositionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Create positions and record trade events",
	}
	cmd.AddCommand(newPositionNewCmd(a))
	cmd.AddCommand(newPositionSellCmd(a))
	cmd.AddCommand(newPositionSettleCmd(a))
	cmd.AddCommand(newPositionCloseCmd(a))
	cmd.AddCommand(newPositionArchiveCmd(a))
	cmd.AddCommand(newPositionListCmd(a))
	return cmd
}

func newPositionNewCmd(a *app) *cobra.Command {
	var (
		capital   float64
		shares    int
		costBasis float64
		profile   string
	)

	cmd := &cobra.Command{
		Use:   "new SYMBOL",
		Short: "Create a position (cash with --capital, shares with --shares)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := args[0]
			id := uuid.NewString()

			var pos *models.Position
			switch {
			case capital > 0 && shares == 0:
				pos = models.NewCashPosition(id, symbol, capital, profile)
			case shares > 0 && capital == 0:
				pos = models.NewSharesPosition(id, symbol, shares, costBasis, profile)
			default:
				return fmt.Errorf("exactly one of --capital or --shares is required")
			}

			if err := a.store.CreatePosition(pos); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s position %s for %s\n", pos.State, id, symbol)
			return nil
		},
	}

	cmd.Flags().Float64Var(&capital, "capital", 0, "capital allocated to secure puts")
	cmd.Flags().IntVar(&shares, "shares", 0, "shares already held (covered-call entry)")
	cmd.Flags().Float64Var(&costBasis, "cost-basis", 0, "per-share cost basis for held shares")
	cmd.Flags().StringVar(&profile, "profile", "balanced", "sigma profile name")
	return cmd
}

func newPositionSellCmd(a *app) *cobra.Command {
	var (
		strike     float64
		expiration string
		premium    float64
		contracts  int
	)

	cmd := &cobra.Command{
		Use:   "sell POSITION_ID",
		Short: "Record selling the option the position's state permits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := time.Parse(dateLayout, expiration)
			if err != nil {
				return fmt.Errorf("parsing --expiration: %w", err)
			}

			return a.store.UpdatePosition(args[0], func(p *models.Position) error {
				direction, err := p.SellDirection()
				if err != nil {
					return err
				}
				err = p.RecordTrade(models.TradeEvent{
					ID:              uuid.NewString(),
					Direction:       direction,
					Strike:          strike,
					Expiration:      exp,
					PremiumPerShare: premium,
					Contracts:       contracts,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %d short %s(s) at $%.2f, exp %s\n",
					contracts, direction, strike, expiration)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&strike, "strike", 0, "strike price")
	cmd.Flags().StringVar(&expiration, "expiration", "", "expiration date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&premium, "premium", 0, "premium per share collected")
	cmd.Flags().IntVar(&contracts, "contracts", 1, "number of contracts")
	_ = cmd.MarkFlagRequired("strike")
	_ = cmd.MarkFlagRequired("expiration")
	_ = cmd.MarkFlagRequired("premium")
	return cmd
}

func newPositionSettleCmd(a *app) *cobra.Command {
	var price float64

	cmd := &cobra.Command{
		Use:   "settle POSITION_ID",
		Short: "Settle the open trade at expiry against a settlement price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.UpdatePosition(args[0], func(p *models.Position) error {
				outcome, err := p.SettleAtExpiry(price, time.Now().UTC())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "settled at $%.2f: %s; position now %s\n",
					price, outcome, p.State)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&price, "price", 0, "settlement price of the underlying")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newPositionCloseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "close POSITION_ID",
		Short: "Buy back the open trade before expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.UpdatePosition(args[0], func(p *models.Position) error {
				if err := p.CloseEarly(time.Now().UTC()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "closed early; position now %s\n", p.State)
				return nil
			})
		},
	}
}

func newPositionArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive POSITION_ID",
		Short: "Retire a position with no working trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.ArchivePosition(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %s\n", args[0])
			return nil
		},
	}
}

func newPositionListCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			positions, err := a.store.ListOpen()
			if all {
				positions, err = a.store.ListAll()
			}
			if err != nil {
				return err
			}
			if len(positions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no positions")
				return nil
			}
			for _, p := range positions {
				line := fmt.Sprintf("%s  %-6s %-16s", p.ID, p.Symbol, p.State)
				if p.OpenTrade != nil {
					line += fmt.Sprintf("  short %s $%.2f exp %s", p.OpenTrade.Direction,
						p.OpenTrade.Strike, p.OpenTrade.Expiration.Format(dateLayout))
				}
				if p.IsArchived() {
					line += "  (archived)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include archived positions")
	return cmd
}
