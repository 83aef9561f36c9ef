// Package recommend orchestrates the pricing engine and tradability filter
// into ranked trade recommendations for wheel positions. The position's
// state decides which side may be sold; the bias score deliberately favors
// retained premium over assignment.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cbailey/wheelhouse/internal/filter"
	"github.com/cbailey/wheelhouse/internal/marketdata"
	"github.com/cbailey/wheelhouse/internal/models"
	"github.com/cbailey/wheelhouse/internal/pricing"
)

// Bias score weights. Further OTM, sooner expiring, and less likely to be
// assigned all score higher, even when absolute yield suffers.
const (
	biasSigmaWeight = 0.4
	biasDTEWeight   = 0.3
	biasProbWeight  = 0.3

	biasSigmaCeiling = 2.5
	biasDTECeiling   = 45.0
)

// Config holds recommendation tuning.
type Config struct {
	// MaxDTE bounds the expiration window in calendar days.
	MaxDTE int `yaml:"max_dte"`
	// Profiles is the sigma-range table positions reference by name.
	Profiles pricing.ProfileTable `yaml:"profiles"`
	// Filter is the named tradability configuration applied to candidates.
	Filter filter.Config `yaml:"filter"`
	// Cost is the execution-cost model.
	Cost filter.CostModel `yaml:"cost"`
	// ProbabilityWarn maps profile name to the P(ITM) above which a
	// warning is attached. More aggressive profiles tolerate more.
	ProbabilityWarn map[string]float64 `yaml:"probability_warn"`
	// MinAnnualYieldPct warns below this annualized yield.
	MinAnnualYieldPct float64 `yaml:"min_annual_yield_pct"`
	// ShortDTEWarnDays warns at or under this many days to expiry.
	ShortDTEWarnDays int `yaml:"short_dte_warn_days"`
	// NearMissLimit caps the rejected candidates retained for diagnostics.
	NearMissLimit int `yaml:"near_miss_limit"`
}

// DefaultConfig returns workable recommendation settings.
func DefaultConfig() Config {
	return Config{
		MaxDTE:   21,
		Profiles: pricing.DefaultProfiles,
		Filter:   filter.DefaultConfig,
		Cost: filter.CostModel{
			CommissionPerContract: 0.65,
			Slippage:              filter.SlippageHalfSpread,
		},
		ProbabilityWarn: map[string]float64{
			"aggressive":   0.45,
			"balanced":     0.35,
			"conservative": 0.25,
		},
		MinAnnualYieldPct: 5.0,
		ShortDTEWarnDays:  7,
		NearMissLimit:     5,
	}
}

// Engine produces ranked recommendations. Construct with NewEngine; all
// collaborators are injected, the earnings source may be nil.
type Engine struct {
	client   marketdata.Client
	earnings marketdata.EarningsSource
	cfg      Config
	logger   *logrus.Logger
	now      func() time.Time
}

// NewEngine creates a recommendation engine.
func NewEngine(client marketdata.Client, earnings marketdata.EarningsSource, cfg Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		client:   client,
		earnings: earnings,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Recommendation is a ranked candidate for a given position.
type Recommendation struct {
	Candidate filter.Candidate  `json:"candidate"`
	Symbol    string            `json:"symbol"`
	Direction models.OptionType `json:"direction"`
	Profile   string            `json:"profile"`
	Contracts int               `json:"contracts"`
	DTE       int               `json:"dte"`
	// Premium is the gross credit at the bid for the full size.
	Premium float64 `json:"premium"`
	// AnnualizedYield is premium/notional scaled to a year, in percent.
	AnnualizedYield float64  `json:"annualized_yield"`
	BiasScore       float64  `json:"bias_score"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Result is the outcome of one recommendation request. An empty
// Recommendations list always carries Warnings explaining which filters
// eliminated every candidate.
type Result struct {
	Symbol          string             `json:"symbol"`
	Direction       models.OptionType  `json:"direction"`
	Profile         string             `json:"profile"`
	Recommendations []Recommendation   `json:"recommendations"`
	NearMisses      []filter.Candidate `json:"near_misses,omitempty"`
	Eliminations    map[string]int     `json:"eliminations,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
}

// Best returns the top-ranked recommendation, or nil when none survived.
func (r *Result) Best() *Recommendation {
	if len(r.Recommendations) == 0 {
		return nil
	}
	return &r.Recommendations[0]
}

// BiasScore computes the premium-retention bias:
// 0.4*min(sigma/2.5, 1) + 0.3*(1 - min(dte/45, 1)) + 0.3*(1 - pITM).
func BiasScore(sigma float64, dte int, pITM float64) float64 {
	sigmaTerm := math.Min(sigma/biasSigmaCeiling, 1)
	dteTerm := 1 - math.Min(float64(dte)/biasDTECeiling, 1)
	probTerm := 1 - pITM
	return biasSigmaWeight*sigmaTerm + biasDTEWeight*dteTerm + biasProbWeight*probTerm
}

// EstimateVolatility derives an at-the-money volatility estimate from the
// chain: the mean implied volatility of the contracts whose strikes sit
// closest to the underlying price. Returns 0 when the chain carries no IV.
func EstimateVolatility(contracts []models.Contract, price float64) float64 {
	type atm struct {
		dist float64
		iv   float64
	}
	var candidates []atm
	for i := range contracts {
		c := &contracts[i]
		if c.IV <= 0 {
			continue
		}
		candidates = append(candidates, atm{dist: math.Abs(c.Strike - price), iv: c.IV})
	}
	if len(candidates) == 0 {
		return 0
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	// Average the nearest few to smooth stale single-contract marks.
	n := len(candidates)
	if n > 4 {
		n = 4
	}
	var sum float64
	for _, c := range candidates[:n] {
		sum += c.iv
	}
	return sum / float64(n)
}

// chainData is the per-symbol snapshot a recommendation pass works over.
type chainData struct {
	price      float64
	volatility float64
	contracts  []models.Contract
	earnings   []time.Time
	warnings   []string
}

// Recommend produces ranked candidates for the direction the position's
// state permits. Collaborator failures degrade to an empty result with
// warnings; state-machine violations are returned as errors.
func (e *Engine) Recommend(ctx context.Context, pos *models.Position) (*Result, error) {
	direction, err := pos.SellDirection()
	if err != nil {
		return nil, err
	}

	profile, ok := e.cfg.Profiles.Range(pos.Profile)
	if !ok {
		return nil, fmt.Errorf("position %s: unknown risk profile %q", pos.ID, pos.Profile)
	}

	data := e.fetchChainData(ctx, pos.Symbol)
	sizer := positionSizer(direction, pos)

	result := e.build(pos.Symbol, direction, profile, sizer, data)
	return result, nil
}

// positionSizer returns the contract-count function the position's
// holdings support: capital-secured for puts, share-covered for calls.
func positionSizer(direction models.OptionType, pos *models.Position) func(strike float64) int {
	if direction == models.OptionTypePut {
		return func(strike float64) int {
			if strike <= 0 {
				return 0
			}
			return int(pos.CapitalAllocated / (strike * float64(models.SharesPerContract)))
		}
	}
	return func(float64) int {
		return pos.SharesHeld / models.SharesPerContract
	}
}

// fetchChainData gathers quote, chains, volatility, and earnings for one
// symbol. Failures never propagate: they become warnings on the snapshot.
func (e *Engine) fetchChainData(ctx context.Context, symbol string) chainData {
	var data chainData

	quote, err := e.client.GetQuote(ctx, symbol)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", symbol).Warn("quote fetch failed")
		data.warnings = append(data.warnings, fmt.Sprintf("quote unavailable for %s", symbol))
		return data
	}
	data.price = quote.Price()
	if data.price <= 0 {
		data.warnings = append(data.warnings, fmt.Sprintf("no usable price for %s", symbol))
		return data
	}

	now := e.now()
	expirations, err := e.client.GetExpirations(ctx, symbol)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", symbol).Warn("expirations fetch failed")
		data.warnings = append(data.warnings, fmt.Sprintf("expirations unavailable for %s", symbol))
		return data
	}

	for _, exp := range expirations {
		dte := models.DaysBetweenFloor(now, exp)
		if dte <= 0 || dte > e.cfg.MaxDTE {
			continue
		}
		chain, err := e.client.GetOptionChain(ctx, symbol, exp)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"symbol": symbol, "expiration": exp.Format("2006-01-02"),
			}).Warn("chain fetch failed")
			continue
		}
		data.contracts = append(data.contracts, chain...)
	}
	if len(data.contracts) == 0 {
		data.warnings = append(data.warnings,
			fmt.Sprintf("no contracts within %d DTE for %s", e.cfg.MaxDTE, symbol))
		return data
	}

	data.volatility = EstimateVolatility(data.contracts, data.price)
	if data.volatility <= 0 {
		data.warnings = append(data.warnings, fmt.Sprintf("no volatility estimate for %s", symbol))
	}

	if e.earnings != nil {
		dates, err := e.earnings.GetEarningsDates(ctx, symbol, now, now.AddDate(0, 0, e.cfg.MaxDTE+7))
		if err != nil {
			// Earnings are advisory; treat a failed lookup as unknown.
			e.logger.WithError(err).WithField("symbol", symbol).Warn("earnings lookup failed")
		} else {
			data.earnings = dates
		}
	}
	return data
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

// Elimination counter keys, used when reporting why nothing survived.
const (
	elimITM         = "in the money"
	elimZeroBid     = "zero bid"
	elimSigmaRange  = "outside sigma range"
	elimNoCapacity  = "insufficient capacity"
	elimTradability = "failed tradability gates"
)

// build runs the pricing and filtering pipeline over a chain snapshot and
// ranks the survivors. Pure over its inputs apart from the clock.
func (e *Engine) build(symbol string, direction models.OptionType, profile pricing.ProfileRange,
	sizer func(strike float64) int, data chainData) *Result {

	result := &Result{
		Symbol:       symbol,
		Direction:    direction,
		Profile:      profile.Name,
		Eliminations: make(map[string]int),
		Warnings:     append([]string(nil), data.warnings...),
	}
	if data.price <= 0 || data.volatility <= 0 || len(data.contracts) == 0 {
		if len(result.Warnings) == 0 {
			result.Warnings = append(result.Warnings, "no market data available")
		}
		return result
	}

	now := e.now()
	var rejected []filter.Candidate
	maxNetCredit := 0.0

	for i := range data.contracts {
		c := data.contracts[i]
		if c.OptionType != direction {
			continue
		}
		dte := c.DTE(now)
		if dte <= 0 || dte > e.cfg.MaxDTE {
			continue
		}
		if !c.IsOTM(data.price) {
			result.Eliminations[elimITM]++
			continue
		}
		if c.Bid <= 0 {
			result.Eliminations[elimZeroBid]++
			continue
		}

		sigma, err := pricing.SigmaForStrike(c.Strike, data.price, data.volatility, dte, direction)
		if err != nil {
			continue
		}
		if sigma < profile.Min || sigma >= profile.Max {
			result.Eliminations[elimSigmaRange]++
			continue
		}

		contracts := sizer(c.Strike)
		if contracts <= 0 {
			result.Eliminations[elimNoCapacity]++
			continue
		}

		assignment, err := pricing.AssignmentProbability(c.Strike, data.price, data.volatility, dte, direction)
		if err != nil {
			continue
		}

		cand := filter.Candidate{
			Contract:    c,
			Sigma:       sigma,
			Probability: assignment.Probability,
			Delta:       assignment.Delta,
			Cost:        filter.EstimateCost(&c, contracts, e.cfg.Cost),
		}
		if cand.Cost.NetCredit > maxNetCredit {
			maxNetCredit = cand.Cost.NetCredit
		}

		earningsWeek := overlapsEarnings(c.Expiration, data.earnings)
		if rejections := filter.Evaluate(&cand, e.cfg.Filter, earningsWeek); len(rejections) > 0 {
			result.Eliminations[elimTradability]++
			rejected = append(rejected, cand)
			continue
		}

		premium := c.Bid * float64(models.SharesPerContract) * float64(contracts)
		notional := c.Strike * float64(models.SharesPerContract) * float64(contracts)
		annualized := 0.0
		if notional > 0 {
			annualized = premium / notional * (365.0 / float64(dte)) * 100
		}

		rec := Recommendation{
			Candidate:       cand,
			Symbol:          symbol,
			Direction:       direction,
			Profile:         profile.Name,
			Contracts:       contracts,
			DTE:             dte,
			Premium:         premium,
			AnnualizedYield: annualized,
			BiasScore:       BiasScore(sigma, dte, assignment.Probability),
		}
		rec.Warnings = e.candidateWarnings(&rec, profile.Name, earningsWeek)
		result.Recommendations = append(result.Recommendations, rec)
	}

	sort.SliceStable(result.Recommendations, func(i, j int) bool {
		return result.Recommendations[i].BiasScore > result.Recommendations[j].BiasScore
	})

	// Near-miss ranking surfaces the almost-qualified strikes.
	for i := range rejected {
		filter.NearMissScore(&rejected[i], maxNetCredit)
	}
	sort.SliceStable(rejected, func(i, j int) bool {
		return rejected[i].NearMiss > rejected[j].NearMiss
	})
	limit := e.cfg.NearMissLimit
	if limit <= 0 {
		limit = 5
	}
	if len(rejected) > limit {
		rejected = rejected[:limit]
	}
	result.NearMisses = rejected

	if len(result.Recommendations) == 0 {
		result.Warnings = append(result.Warnings, noCandidatesMessage(result.Eliminations))
	}
	return result
}

// noCandidatesMessage explains which filters eliminated every candidate.
func noCandidatesMessage(eliminations map[string]int) string {
	if len(eliminations) == 0 {
		return "no suitable contracts found: chain had no contracts in the expiration window"
	}
	keys := make([]string, 0, len(eliminations))
	for k := range eliminations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", eliminations[k], k))
	}
	return "no suitable contracts found: " + strings.Join(parts, ", ")
}

func (e *Engine) candidateWarnings(rec *Recommendation, profile string, earningsWeek bool) []string {
	var warnings []string
	if threshold, ok := e.cfg.ProbabilityWarn[profile]; ok && rec.Candidate.Probability > threshold {
		warnings = append(warnings, fmt.Sprintf(
			"assignment probability %.1f%% exceeds %.0f%% tolerance for %s profile",
			rec.Candidate.Probability*100, threshold*100, profile))
	}
	if earningsWeek {
		warnings = append(warnings, "expiration overlaps an earnings date")
	}
	if rec.AnnualizedYield < e.cfg.MinAnnualYieldPct {
		warnings = append(warnings, fmt.Sprintf(
			"annualized yield %.2f%% below %.0f%%", rec.AnnualizedYield, e.cfg.MinAnnualYieldPct))
	}
	if rec.DTE <= e.cfg.ShortDTEWarnDays {
		warnings = append(warnings, fmt.Sprintf("only %d days to expiration", rec.DTE))
	}
	return warnings
}

// ScanPortfolio fetches each symbol's data once and produces a
// contract-normalized candidate set across both directions and every
// profile, merged and sorted by bias score. Per-symbol failures are
// logged and skipped; the scan itself only fails on context cancellation.
func (e *Engine) ScanPortfolio(ctx context.Context, symbols []string) ([]Recommendation, error) {
	var (
		mu  sync.Mutex
		all []Recommendation
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			recs := e.scanSymbol(ctx, symbol)
			mu.Lock()
			all = append(all, recs...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].BiasScore > all[j].BiasScore })
	return all, nil
}

// scanSymbol iterates every (direction, profile) pair over one fetched
// snapshot using synthetic single-contract positions.
func (e *Engine) scanSymbol(ctx context.Context, symbol string) []Recommendation {
	data := e.fetchChainData(ctx, symbol)
	if data.price <= 0 || data.volatility <= 0 {
		e.logger.WithField("symbol", symbol).Warn("scan skipped: no usable market data")
		return nil
	}

	// One contract regardless of strike keeps candidates comparable
	// across profiles and directions.
	unit := func(float64) int { return 1 }

	var out []Recommendation
	for _, direction := range []models.OptionType{models.OptionTypePut, models.OptionTypeCall} {
		for _, profile := range e.cfg.Profiles {
			res := e.build(symbol, direction, profile, unit, data)
			out = append(out, res.Recommendations...)
		}
	}
	return out
}
