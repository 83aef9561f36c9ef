// Package monitor watches open short-option positions: where the
// underlying sits relative to the strike, and how urgently the trade
// needs attention.
package monitor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbailey/wheelhouse/internal/marketdata"
	"github.com/cbailey/wheelhouse/internal/models"
)

// RiskLevel grades how close an open trade is to assignment.
type RiskLevel string

const (
	// RiskHigh: the option is in the money.
	RiskHigh RiskLevel = "HIGH"
	// RiskMedium: out of the money by 5% or less.
	RiskMedium RiskLevel = "MEDIUM"
	// RiskLow: out of the money by more than 5%.
	RiskLow RiskLevel = "LOW"
)

// mediumRiskPct is the OTM distance, in percent of strike, below which
// an open trade is graded MEDIUM rather than LOW.
const mediumRiskPct = 5.0

// priceTTL is how long a cached underlying price stays fresh.
const priceTTL = 5 * time.Minute

// Moneyness locates the underlying relative to an open trade's strike.
type Moneyness struct {
	ITM bool `json:"itm"`
	// Distance is strike minus price for puts and price minus strike for
	// calls: positive once the strike is breached, negative while OTM.
	Distance float64 `json:"distance"`
	// PercentFromStrike is (price - strike) / strike x 100 for both
	// directions.
	PercentFromStrike float64 `json:"percent_from_strike"`
}

// ComputeMoneyness evaluates price against strike for a short option of
// the given direction. At the strike exactly, the seller is treated as
// in the money.
func ComputeMoneyness(direction models.OptionType, price, strike float64) Moneyness {
	m := Moneyness{}
	if strike > 0 {
		m.PercentFromStrike = (price - strike) / strike * 100
	}
	switch direction {
	case models.OptionTypePut:
		m.ITM = price <= strike
		m.Distance = strike - price
	case models.OptionTypeCall:
		m.ITM = price >= strike
		m.Distance = price - strike
	}
	return m
}

// GradeRisk maps moneyness onto the three-tier risk scale.
func GradeRisk(m Moneyness) RiskLevel {
	if m.ITM {
		return RiskHigh
	}
	if math.Abs(m.PercentFromStrike) <= mediumRiskPct {
		return RiskMedium
	}
	return RiskLow
}

// Status is the monitor's view of one position's open trade.
type Status struct {
	PositionID string            `json:"position_id"`
	Symbol     string            `json:"symbol"`
	Direction  models.OptionType `json:"direction"`
	Strike     float64           `json:"strike"`
	Expiration time.Time         `json:"expiration"`
	DTE        int               `json:"dte"`
	Price      float64           `json:"price"`
	PriceAsOf  time.Time         `json:"price_as_of"`
	Moneyness  Moneyness         `json:"moneyness"`
	Risk       RiskLevel         `json:"risk"`
	Note       string            `json:"note,omitempty"`
}

type cachedPrice struct {
	price   float64
	fetched time.Time
}

// Monitor checks open positions against fresh-enough underlying prices.
// Prices are cached per symbol for five minutes; the secondary fetcher
// covers primary outages.
type Monitor struct {
	client    marketdata.Client
	secondary marketdata.PriceFetcher
	logger    *logrus.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrice
}

// NewMonitor creates a monitor. The secondary fetcher may be nil.
func NewMonitor(client marketdata.Client, secondary marketdata.PriceFetcher, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		client:    client,
		secondary: secondary,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		cache:     make(map[string]cachedPrice),
	}
}

// WithClock overrides the monitor's clock, for tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Price returns the underlying price for symbol, serving from cache
// while the entry is under five minutes old. forceRefresh bypasses the
// cache. The primary client is tried first, the secondary fetcher on
// failure; a stale cached price is better than none and is returned as
// a last resort.
func (m *Monitor) Price(ctx context.Context, symbol string, forceRefresh bool) (float64, time.Time, error) {
	now := m.now()

	m.mu.Lock()
	entry, ok := m.cache[symbol]
	m.mu.Unlock()
	if ok && !forceRefresh && now.Sub(entry.fetched) < priceTTL {
		return entry.price, entry.fetched, nil
	}

	price, err := m.fetch(ctx, symbol)
	if err != nil {
		if ok {
			m.logger.WithError(err).WithField("symbol", symbol).
				Warn("price fetch failed, serving stale cache")
			return entry.price, entry.fetched, nil
		}
		return 0, time.Time{}, err
	}

	m.mu.Lock()
	m.cache[symbol] = cachedPrice{price: price, fetched: now}
	m.mu.Unlock()
	return price, now, nil
}

func (m *Monitor) fetch(ctx context.Context, symbol string) (float64, error) {
	quote, err := m.client.GetQuote(ctx, symbol)
	if err == nil {
		if p := quote.Price(); p > 0 {
			return p, nil
		}
		err = fmt.Errorf("quote for %s carries no usable price: %w", symbol, marketdata.ErrNoData)
	}
	if m.secondary == nil {
		return 0, fmt.Errorf("price for %s: %w", symbol, err)
	}

	m.logger.WithError(err).WithField("symbol", symbol).Debug("falling back to secondary price source")
	price, ferr := m.secondary.FetchPrice(ctx, symbol)
	if ferr != nil {
		return 0, fmt.Errorf("price for %s: primary: %v; secondary: %w", symbol, err, ferr)
	}
	return price, nil
}

// Check evaluates one position's open trade. Positions without an open
// trade return ErrNoOpenTrade.
func (m *Monitor) Check(ctx context.Context, p *models.Position, forceRefresh bool) (*Status, error) {
	if p.OpenTrade == nil {
		return nil, fmt.Errorf("position %s: %w", p.ID, models.ErrNoOpenTrade)
	}
	trade := p.OpenTrade

	price, asOf, err := m.Price(ctx, p.Symbol, forceRefresh)
	if err != nil {
		return nil, err
	}

	now := m.now()
	mny := ComputeMoneyness(trade.Direction, price, trade.Strike)
	st := &Status{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Direction:  trade.Direction,
		Strike:     trade.Strike,
		Expiration: trade.Expiration,
		DTE:        models.DaysBetweenFloor(now, trade.Expiration),
		Price:      price,
		PriceAsOf:  asOf,
		Moneyness:  mny,
		Risk:       GradeRisk(mny),
	}
	st.Note = note(st)
	return st, nil
}

// CheckAll evaluates every position carrying an open trade, sorted most
// urgent first. Per-symbol fetch failures are logged and skipped.
func (m *Monitor) CheckAll(ctx context.Context, positions []*models.Position, forceRefresh bool) []*Status {
	statuses := make([]*Status, 0, len(positions))
	for _, p := range positions {
		if p.OpenTrade == nil {
			continue
		}
		st, err := m.Check(ctx, p, forceRefresh)
		if err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"position": p.ID,
				"symbol":   p.Symbol,
			}).Warn("monitor check failed")
			continue
		}
		statuses = append(statuses, st)
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		if statuses[i].Risk != statuses[j].Risk {
			return riskRank(statuses[i].Risk) < riskRank(statuses[j].Risk)
		}
		return statuses[i].DTE < statuses[j].DTE
	})
	return statuses
}

func riskRank(r RiskLevel) int {
	switch r {
	case RiskHigh:
		return 0
	case RiskMedium:
		return 1
	default:
		return 2
	}
}

func note(st *Status) string {
	switch st.Risk {
	case RiskHigh:
		return fmt.Sprintf("%s ITM: %s at $%.2f vs $%.2f strike, %d DTE; roll or accept assignment",
			st.Direction, st.Symbol, st.Price, st.Strike, st.DTE)
	case RiskMedium:
		return fmt.Sprintf("%s within %.1f%% of $%.2f strike, %d DTE; watch closely",
			st.Symbol, math.Abs(st.Moneyness.PercentFromStrike), st.Strike, st.DTE)
	default:
		return ""
	}
}
