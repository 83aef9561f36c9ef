// Package filter implements the tradability gates applied to priced option
// candidates. Every gate is evaluated independently so a rejected candidate
// reports all of its failures, each with a normalized distance-to-threshold
// margin that makes heterogeneous constraints comparable on one scale.
package filter

import (
	"fmt"
	"math"

	"github.com/cbailey/wheelhouse/internal/models"
	"github.com/cbailey/wheelhouse/internal/pricing"
)

// RejectionReason enumerates why a candidate failed a tradability gate.
type RejectionReason string

const (
	// ReasonZeroBid means nobody is bidding; hard reject
	ReasonZeroBid RejectionReason = "zero_bid"
	// ReasonBidBelowMin means the bid is under the minimum bid price
	ReasonBidBelowMin RejectionReason = "bid_below_min"
	// ReasonSpreadTooWide means the absolute bid-ask spread is too wide
	ReasonSpreadTooWide RejectionReason = "spread_too_wide"
	// ReasonRelSpreadTooWide means spread/mid exceeds the maximum
	ReasonRelSpreadTooWide RejectionReason = "relative_spread_too_wide"
	// ReasonOpenInterestLow means open interest is under the minimum
	ReasonOpenInterestLow RejectionReason = "open_interest_low"
	// ReasonVolumeLow means day volume is under the minimum
	ReasonVolumeLow RejectionReason = "volume_low"
	// ReasonYieldBelowMin means net credit yield in bps is under the weekly minimum
	ReasonYieldBelowMin RejectionReason = "yield_below_min"
	// ReasonFrictionFloor means net credit does not clear the friction multiple
	ReasonFrictionFloor RejectionReason = "credit_below_friction_floor"
	// ReasonDeltaOutsideBand means delta falls outside the configured band
	ReasonDeltaOutsideBand RejectionReason = "delta_outside_band"
	// ReasonEarningsWeek means the expiration overlaps an earnings date; hard reject
	ReasonEarningsWeek RejectionReason = "earnings_week"
)

// ConstraintKind distinguishes minimum gates (actual must reach threshold)
// from maximum gates (actual must stay under threshold).
type ConstraintKind int

const (
	// ConstraintMinimum rejects when actual < threshold
	ConstraintMinimum ConstraintKind = iota
	// ConstraintMaximum rejects when actual > threshold
	ConstraintMaximum
)

// hardMargin is the fixed margin for gates that are never partially
// satisfiable (zero bid, earnings week).
const hardMargin = 1.0

// RejectionDetail records one failed gate with its normalized margin.
// Margin is 0 exactly at the threshold and grows without bound as the
// candidate worsens.
type RejectionDetail struct {
	Reason    RejectionReason `json:"reason"`
	Actual    float64         `json:"actual"`
	Threshold float64         `json:"threshold"`
	Margin    float64         `json:"margin"`
	Display   string          `json:"display"`
}

// MarginOf normalizes the gap between actual and threshold. For minimum
// constraints margin = max(0, (threshold-actual)/threshold); for maximum
// constraints margin = max(0, (actual-threshold)/threshold). A zero
// threshold yields margin 0 when the actual already satisfies the
// constraint and the hard margin otherwise.
func MarginOf(actual, threshold float64, kind ConstraintKind) float64 {
	if threshold == 0 {
		if kind == ConstraintMinimum && actual > 0 {
			return 0
		}
		if kind == ConstraintMaximum && actual <= 0 {
			return 0
		}
		return hardMargin
	}
	var m float64
	if kind == ConstraintMinimum {
		m = (threshold - actual) / threshold
	} else {
		m = (actual - threshold) / threshold
	}
	return math.Max(0, m)
}

// Config is a named set of tradability thresholds.
type Config struct {
	Name              string  `yaml:"name"`
	MinBidPrice       float64 `yaml:"min_bid_price"`
	MaxSpread         float64 `yaml:"max_spread"`
	MaxRelativeSpread float64 `yaml:"max_relative_spread"`
	// MinMidForRelSpread is the mid-price floor under which the relative
	// spread gate is skipped; cheap options trip it spuriously.
	MinMidForRelSpread float64 `yaml:"min_mid_for_relative_spread"`
	MinOpenInterest    int64   `yaml:"min_open_interest"`
	MinVolume          int64   `yaml:"min_volume"`
	// MinWeeklyYieldBps is the minimum per-contract net credit yield,
	// net credit over notional in basis points.
	MinWeeklyYieldBps float64 `yaml:"min_weekly_yield_bps"`
	// FrictionMultiple is the minimum ratio of net credit to total
	// friction cost (commission plus slippage).
	FrictionMultiple float64 `yaml:"friction_multiple"`
	// DeltaBand bounds delta magnitude; the primary selector for weekly
	// strategies, evaluated apart from the generic gates.
	DeltaBand pricing.DeltaBand `yaml:"delta_band"`
}

// DefaultConfig is a workable starting point for liquid weekly chains.
var DefaultConfig = Config{
	Name:               "default",
	MinBidPrice:        0.05,
	MaxSpread:          0.30,
	MaxRelativeSpread:  0.25,
	MinMidForRelSpread: 0.20,
	MinOpenInterest:    50,
	MinVolume:          10,
	MinWeeklyYieldBps:  10,
	FrictionMultiple:   3,
	DeltaBand:          pricing.DeltaBand{Name: "target", Min: 0.15, Max: 0.30},
}

// ExecutionCost estimates what executing a candidate actually collects
// after commission and slippage.
type ExecutionCost struct {
	Contracts  int     `json:"contracts"`
	Gross      float64 `json:"gross"`
	Commission float64 `json:"commission"`
	Slippage   float64 `json:"slippage"`
	NetCredit  float64 `json:"net_credit"`
}

// Friction returns the total cost of execution in dollars.
func (e ExecutionCost) Friction() float64 {
	return e.Commission + e.Slippage
}

// Candidate is a priced, cost-estimated option under consideration.
// Transient: recomputed per request, never persisted.
type Candidate struct {
	Contract    models.Contract   `json:"contract"`
	Sigma       float64           `json:"sigma"`
	Probability float64           `json:"probability"`
	Delta       float64           `json:"delta"`
	Cost        ExecutionCost     `json:"cost"`
	Rejections  []RejectionDetail `json:"rejections,omitempty"`
	NearMiss    float64           `json:"near_miss_score,omitempty"`
}

// IsRecommended reports whether the candidate cleared every gate.
func (c *Candidate) IsRecommended() bool {
	return len(c.Rejections) == 0
}

// BindingConstraint returns the rejection with the smallest margin, the
// single constraint closest to being satisfied, or nil when accepted.
func (c *Candidate) BindingConstraint() *RejectionDetail {
	if len(c.Rejections) == 0 {
		return nil
	}
	best := &c.Rejections[0]
	for i := 1; i < len(c.Rejections); i++ {
		if c.Rejections[i].Margin < best.Margin {
			best = &c.Rejections[i]
		}
	}
	return best
}

func detail(reason RejectionReason, actual, threshold float64, kind ConstraintKind, display string) RejectionDetail {
	return RejectionDetail{
		Reason:    reason,
		Actual:    actual,
		Threshold: threshold,
		Margin:    MarginOf(actual, threshold, kind),
		Display:   display,
	}
}

// Evaluate runs every tradability gate against the candidate and stores
// the accumulated rejections on it. earningsWeek marks an expiration that
// overlaps a known earnings date. An empty result means accepted.
func Evaluate(c *Candidate, cfg Config, earningsWeek bool) []RejectionDetail {
	var rejections []RejectionDetail
	ct := &c.Contract

	if ct.Bid <= 0 {
		rejections = append(rejections, RejectionDetail{
			Reason:    ReasonZeroBid,
			Actual:    ct.Bid,
			Threshold: 0,
			Margin:    hardMargin,
			Display:   "no bid: nobody is buying this contract",
		})
	} else if ct.Bid < cfg.MinBidPrice {
		rejections = append(rejections, detail(ReasonBidBelowMin, ct.Bid, cfg.MinBidPrice, ConstraintMinimum,
			fmt.Sprintf("bid $%.2f below minimum $%.2f", ct.Bid, cfg.MinBidPrice)))
	}

	if spread := ct.Spread(); spread > cfg.MaxSpread {
		rejections = append(rejections, detail(ReasonSpreadTooWide, spread, cfg.MaxSpread, ConstraintMaximum,
			fmt.Sprintf("spread $%.2f above maximum $%.2f", spread, cfg.MaxSpread)))
	}

	// Relative spread only matters once the mid is big enough to trust.
	if mid := ct.Mid(); mid >= cfg.MinMidForRelSpread {
		if rel := ct.RelativeSpread(); rel > cfg.MaxRelativeSpread {
			rejections = append(rejections, detail(ReasonRelSpreadTooWide, rel, cfg.MaxRelativeSpread, ConstraintMaximum,
				fmt.Sprintf("relative spread %.1f%% above maximum %.1f%%", rel*100, cfg.MaxRelativeSpread*100)))
		}
	}

	if ct.OpenInterest < cfg.MinOpenInterest {
		rejections = append(rejections, detail(ReasonOpenInterestLow, float64(ct.OpenInterest), float64(cfg.MinOpenInterest), ConstraintMinimum,
			fmt.Sprintf("open interest %d below minimum %d", ct.OpenInterest, cfg.MinOpenInterest)))
	}

	if ct.Volume < cfg.MinVolume {
		rejections = append(rejections, detail(ReasonVolumeLow, float64(ct.Volume), float64(cfg.MinVolume), ConstraintMinimum,
			fmt.Sprintf("volume %d below minimum %d", ct.Volume, cfg.MinVolume)))
	}

	if notional := ct.Strike * float64(models.SharesPerContract) * float64(c.Cost.Contracts); notional > 0 {
		yieldBps := c.Cost.NetCredit / notional * 10000
		if yieldBps < cfg.MinWeeklyYieldBps {
			rejections = append(rejections, detail(ReasonYieldBelowMin, yieldBps, cfg.MinWeeklyYieldBps, ConstraintMinimum,
				fmt.Sprintf("net yield %.1f bps below minimum %.1f bps", yieldBps, cfg.MinWeeklyYieldBps)))
		}
	}

	if floor := cfg.FrictionMultiple * c.Cost.Friction(); c.Cost.NetCredit < floor {
		rejections = append(rejections, detail(ReasonFrictionFloor, c.Cost.NetCredit, floor, ConstraintMinimum,
			fmt.Sprintf("net credit $%.2f below friction floor $%.2f (%.0fx costs)",
				c.Cost.NetCredit, floor, cfg.FrictionMultiple)))
	}

	if earningsWeek {
		rejections = append(rejections, RejectionDetail{
			Reason:    ReasonEarningsWeek,
			Actual:    1,
			Threshold: 0,
			Margin:    hardMargin,
			Display:   "expiration overlaps an earnings date",
		})
	}

	c.Rejections = rejections
	return rejections
}

// EvaluateDeltaBand checks the candidate's delta magnitude against the
// configured band. Kept apart from Evaluate because the band is the
// primary strike selector, not a liquidity gate. Returns nil when inside
// the band.
func EvaluateDeltaBand(c *Candidate, band pricing.DeltaBand) *RejectionDetail {
	mag := math.Abs(c.Delta)
	if mag >= band.Min && mag < band.Max {
		return nil
	}
	var d RejectionDetail
	if mag < band.Min {
		d = detail(ReasonDeltaOutsideBand, mag, band.Min, ConstraintMinimum,
			fmt.Sprintf("delta %.3f below band [%.2f, %.2f)", mag, band.Min, band.Max))
	} else {
		d = detail(ReasonDeltaOutsideBand, mag, band.Max, ConstraintMaximum,
			fmt.Sprintf("delta %.3f above band [%.2f, %.2f)", mag, band.Min, band.Max))
	}
	c.Rejections = append(c.Rejections, d)
	return &d
}

// Near-miss score weights: how much credit, how few failed gates, and how
// close the closest gate came.
const (
	nearMissCreditWeight = 0.6
	nearMissCountWeight  = 0.2
	nearMissMarginWeight = 0.2
)

// NearMissScore ranks a rejected candidate by how close it came to
// qualifying: score = 0.6*min(1, credit/maxSeen) + 0.2*max(0,
// 1-0.25*(rejections-1)) + 0.2*max(0, 1-minMargin). Accepted candidates
// score 0; they rank by other means.
func NearMissScore(c *Candidate, maxNetCreditSeen float64) float64 {
	if len(c.Rejections) == 0 {
		return 0
	}

	creditTerm := 0.0
	if maxNetCreditSeen > 0 {
		creditTerm = math.Min(1, c.Cost.NetCredit/maxNetCreditSeen)
	}
	countTerm := math.Max(0, 1-0.25*float64(len(c.Rejections)-1))
	minMargin := c.BindingConstraint().Margin
	marginTerm := math.Max(0, 1-minMargin)

	score := nearMissCreditWeight*creditTerm +
		nearMissCountWeight*countTerm +
		nearMissMarginWeight*marginTerm
	c.NearMiss = score
	return score
}
