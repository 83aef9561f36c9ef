// Package overlay implements the batch covered-call scan: size contracts
// from held shares under an overwrite cap, price and delta-band every OTM
// call across the near expirations, and report accepted candidates plus
// the near misses worth watching.
package overlay

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbailey/wheelhouse/internal/filter"
	"github.com/cbailey/wheelhouse/internal/marketdata"
	"github.com/cbailey/wheelhouse/internal/models"
	"github.com/cbailey/wheelhouse/internal/pricing"
	"github.com/cbailey/wheelhouse/internal/recommend"
)

// Config holds overlay scan settings.
type Config struct {
	// OverwriteCapPct is the maximum percentage of held shares committed
	// to covered calls at once.
	OverwriteCapPct float64 `yaml:"overwrite_cap_pct"`
	// MaxExpirations bounds how many of the nearest expirations to scan.
	MaxExpirations int `yaml:"max_expirations"`
	// SkipEarningsWeeks drops earnings-overlapping expirations outright;
	// when false they are scanned and the hard gate marks them instead.
	SkipEarningsWeeks bool `yaml:"skip_earnings_weeks"`
	// Filter is the named tradability configuration.
	Filter filter.Config `yaml:"filter"`
	// Cost is the execution-cost model.
	Cost filter.CostModel `yaml:"cost"`
	// NearMissLimit caps retained rejected candidates.
	NearMissLimit int `yaml:"near_miss_limit"`
}

// DefaultConfig returns workable overlay settings.
func DefaultConfig() Config {
	return Config{
		OverwriteCapPct:   50,
		MaxExpirations:    4,
		SkipEarningsWeeks: true,
		Filter:            filter.DefaultConfig,
		Cost: filter.CostModel{
			CommissionPerContract: 0.65,
			Slippage:              filter.SlippageHalfSpreadCapped,
			MaxSlippagePerShare:   0.05,
		},
		NearMissLimit: 5,
	}
}

// ContractsToSell sizes the overwrite: floor(shares x capPct / 100 / 100).
// Below 100 shares this is always zero and the position is non-actionable.
func ContractsToSell(shares int, capPct float64) int {
	if shares <= 0 || capPct <= 0 {
		return 0
	}
	return int(math.Floor(float64(shares) * capPct / 100 / float64(models.SharesPerContract)))
}

// ChecklistItem is one threshold to re-verify manually before execution;
// quotes move between scan time and order entry.
type ChecklistItem struct {
	Label    string `json:"label"`
	Expected string `json:"expected"`
}

// Payload summarizes the top recommendation for downstream narrative
// generation.
type Payload struct {
	Symbol          string    `json:"symbol"`
	Strike          float64   `json:"strike"`
	Expiration      time.Time `json:"expiration"`
	DTE             int       `json:"dte"`
	Contracts       int       `json:"contracts"`
	Bid             float64   `json:"bid"`
	NetCredit       float64   `json:"net_credit"`
	Delta           float64   `json:"delta"`
	Probability     float64   `json:"probability"`
	AnnualizedYield float64   `json:"annualized_yield"`
}

// Report is the outcome of one overlay scan.
type Report struct {
	Symbol     string             `json:"symbol"`
	Price      float64            `json:"price"`
	Shares     int                `json:"shares"`
	Contracts  int                `json:"contracts"`
	Actionable bool               `json:"actionable"`
	Accepted   []filter.Candidate `json:"accepted"`
	NearMisses []filter.Candidate `json:"near_misses,omitempty"`
	Checklist  []ChecklistItem    `json:"checklist,omitempty"`
	Payload    *Payload           `json:"payload,omitempty"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// Best returns the top accepted candidate by net credit, or nil.
func (r *Report) Best() *filter.Candidate {
	if len(r.Accepted) == 0 {
		return nil
	}
	return &r.Accepted[0]
}

// Scanner runs overlay scans against live market data.
type Scanner struct {
	client   marketdata.Client
	earnings marketdata.EarningsSource
	cfg      Config
	logger   *logrus.Logger
	now      func() time.Time
}

// NewScanner creates an overlay scanner; the earnings source may be nil.
func NewScanner(client marketdata.Client, earnings marketdata.EarningsSource, cfg Config, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		client:   client,
		earnings: earnings,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the scanner's clock, for tests.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Scan evaluates covered calls on shares of symbol. Missing market data
// degrades to an empty, warning-carrying report rather than an error.
func (s *Scanner) Scan(ctx context.Context, symbol string, shares int) (*Report, error) {
	report := &Report{Symbol: symbol, Shares: shares}

	contracts := ContractsToSell(shares, s.cfg.OverwriteCapPct)
	report.Contracts = contracts
	if contracts == 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"non-actionable: %d shares at %.0f%% overwrite cap sizes zero contracts",
			shares, s.cfg.OverwriteCapPct))
		return report, nil
	}
	report.Actionable = true

	quote, err := s.client.GetQuote(ctx, symbol)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Warn("quote fetch failed")
		report.Actionable = false
		report.Warnings = append(report.Warnings, fmt.Sprintf("quote unavailable for %s", symbol))
		return report, nil
	}
	price := quote.Price()
	report.Price = price
	if price <= 0 {
		report.Actionable = false
		report.Warnings = append(report.Warnings, fmt.Sprintf("no usable price for %s", symbol))
		return report, nil
	}

	now := s.now()
	expirations, err := s.client.GetExpirations(ctx, symbol)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Warn("expirations fetch failed")
		report.Actionable = false
		report.Warnings = append(report.Warnings, fmt.Sprintf("expirations unavailable for %s", symbol))
		return report, nil
	}

	var earnings []time.Time
	if s.earnings != nil {
		horizon := now.AddDate(0, 0, 120)
		dates, err := s.earnings.GetEarningsDates(ctx, symbol, now, horizon)
		if err != nil {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("earnings lookup failed")
			report.Warnings = append(report.Warnings, "earnings calendar unavailable; earnings gate skipped")
		} else {
			earnings = dates
		}
	}

	var rejected []filter.Candidate
	maxNetCredit := 0.0
	scanned := 0

	for _, exp := range expirations {
		if scanned >= s.cfg.MaxExpirations {
			break
		}
		dte := models.DaysBetweenFloor(now, exp)
		if dte <= 0 {
			continue
		}
		earningsWeek := overlapsEarnings(exp, earnings)
		if earningsWeek && s.cfg.SkipEarningsWeeks {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"skipped %s: expiration week overlaps earnings", exp.Format("2006-01-02")))
			continue
		}
		scanned++

		chain, err := s.client.GetOptionChain(ctx, symbol, exp)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"symbol": symbol, "expiration": exp.Format("2006-01-02"),
			}).Warn("chain fetch failed")
			continue
		}

		vol := recommend.EstimateVolatility(chain, price)
		for i := range chain {
			c := chain[i]
			if c.OptionType != models.OptionTypeCall {
				continue
			}
			if c.Bid <= 0 || c.Ask < c.Bid {
				continue
			}
			if !c.IsOTM(price) {
				continue
			}

			cand, ok := s.priceCandidate(c, price, vol, dte, contracts)
			if !ok {
				continue
			}
			if cand.Cost.NetCredit > maxNetCredit {
				maxNetCredit = cand.Cost.NetCredit
			}

			filter.Evaluate(&cand, s.cfg.Filter, earningsWeek)
			filter.EvaluateDeltaBand(&cand, s.cfg.Filter.DeltaBand)

			if cand.IsRecommended() {
				report.Accepted = append(report.Accepted, cand)
			} else {
				rejected = append(rejected, cand)
			}
		}
	}

	sort.SliceStable(report.Accepted, func(i, j int) bool {
		return report.Accepted[i].Cost.NetCredit > report.Accepted[j].Cost.NetCredit
	})

	for i := range rejected {
		filter.NearMissScore(&rejected[i], maxNetCredit)
	}
	sort.SliceStable(rejected, func(i, j int) bool { return rejected[i].NearMiss > rejected[j].NearMiss })
	limit := s.cfg.NearMissLimit
	if limit <= 0 {
		limit = 5
	}
	if len(rejected) > limit {
		rejected = rejected[:limit]
	}
	report.NearMisses = rejected

	if best := report.Best(); best != nil {
		report.Checklist = s.checklist(best)
		report.Payload = s.payload(symbol, best, now)
	} else if len(report.Warnings) == 0 || len(rejected) > 0 {
		report.Warnings = append(report.Warnings, "no covered call cleared every gate; see near misses")
	}
	return report, nil
}

// priceCandidate computes sigma distance, assignment probability, and
// execution cost for one contract. Delta prefers the provider's Greeks
// and falls back to Black-Scholes off the contract's own IV.
func (s *Scanner) priceCandidate(c models.Contract, price, chainVol float64, dte, contracts int) (filter.Candidate, bool) {
	vol := c.IV
	if vol <= 0 {
		vol = chainVol
	}
	if vol <= 0 {
		return filter.Candidate{}, false
	}

	sigma, err := pricing.SigmaForStrike(c.Strike, price, vol, dte, models.OptionTypeCall)
	if err != nil {
		return filter.Candidate{}, false
	}
	assignment, err := pricing.AssignmentProbability(c.Strike, price, vol, dte, models.OptionTypeCall)
	if err != nil {
		return filter.Candidate{}, false
	}
	delta := assignment.Delta
	if c.Greeks != nil && c.Greeks.Delta != 0 {
		delta = c.Greeks.Delta
	}

	return filter.Candidate{
		Contract:    c,
		Sigma:       sigma,
		Probability: assignment.Probability,
		Delta:       delta,
		Cost:        filter.EstimateCost(&c, contracts, s.cfg.Cost),
	}, true
}

// checklist lists the thresholds to re-verify against live quotes right
// before manual execution.
func (s *Scanner) checklist(best *filter.Candidate) []ChecklistItem {
	cfg := s.cfg.Filter
	return []ChecklistItem{
		{Label: "bid", Expected: fmt.Sprintf("still >= $%.2f (was $%.2f)", cfg.MinBidPrice, best.Contract.Bid)},
		{Label: "spread", Expected: fmt.Sprintf("still <= $%.2f (was $%.2f)", cfg.MaxSpread, best.Contract.Spread())},
		{Label: "open interest", Expected: fmt.Sprintf("still >= %d (was %d)", cfg.MinOpenInterest, best.Contract.OpenInterest)},
		{Label: "delta", Expected: fmt.Sprintf("still inside [%.2f, %.2f) (was %.3f)",
			cfg.DeltaBand.Min, cfg.DeltaBand.Max, math.Abs(best.Delta))},
	}
}

func (s *Scanner) payload(symbol string, best *filter.Candidate, now time.Time) *Payload {
	dte := best.Contract.DTE(now)
	notional := best.Contract.Strike * float64(models.SharesPerContract) * float64(best.Cost.Contracts)
	annualized := 0.0
	if notional > 0 && dte > 0 {
		annualized = best.Cost.NetCredit / notional * (365.0 / float64(dte)) * 100
	}
	return &Payload{
		Symbol:          symbol,
		Strike:          best.Contract.Strike,
		Expiration:      best.Contract.Expiration,
		DTE:             dte,
		Contracts:       best.Cost.Contracts,
		Bid:             best.Contract.Bid,
		NetCredit:       best.Cost.NetCredit,
		Delta:           best.Delta,
		Probability:     best.Probability,
		AnnualizedYield: annualized,
	}
}

// overlapsEarnings reports whether an earnings date falls in the week
// ending at the expiration.
func overlapsEarnings(expiration time.Time, earnings []time.Time) bool {
	weekStart := expiration.AddDate(0, 0, -6)
	for _, d := range earnings {
		if !d.Before(weekStart) && !d.After(expiration) {
			return true
		}
	}
	return false
}
