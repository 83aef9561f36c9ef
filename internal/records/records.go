// Package records flattens engine results into fixed-rounding records
// for CLI tables, JSON APIs, and logs. Prices and premiums round to 2
// decimals, probabilities to a 4-decimal fraction plus a 2-decimal
// percentage, yields to 2 decimals. Downstream consumers read both
// probability representations, so both are always populated.
package records

import (
	"github.com/shopspring/decimal"

	"github.com/cbailey/wheelhouse/internal/filter"
	"github.com/cbailey/wheelhouse/internal/monitor"
	"github.com/cbailey/wheelhouse/internal/overlay"
	"github.com/cbailey/wheelhouse/internal/recommend"
)

const (
	priceDP    = 2
	fractionDP = 4
	percentDP  = 2
	yieldDP    = 2
)

// Price rounds a price or premium to 2 decimals, half away from zero.
func Price(x float64) float64 {
	return round(x, priceDP)
}

// Yield rounds a percentage yield to 2 decimals.
func Yield(x float64) float64 {
	return round(x, yieldDP)
}

// Probability returns the dual representation of a probability: the
// fraction rounded to 4 decimals and the percentage rounded to 2.
func Probability(p float64) (fraction, percent float64) {
	d := decimal.NewFromFloat(p)
	fraction, _ = d.Round(fractionDP).Float64()
	percent, _ = d.Mul(decimal.NewFromInt(100)).Round(percentDP).Float64()
	return fraction, percent
}

func round(x float64, places int32) float64 {
	out, _ := decimal.NewFromFloat(x).Round(places).Float64()
	return out
}

// CandidateRecord is the flat form of a priced, filtered candidate.
type CandidateRecord struct {
	Symbol             string   `json:"symbol"`
	Strike             float64  `json:"strike"`
	Expiration         string   `json:"expiration"`
	Bid                float64  `json:"bid"`
	Ask                float64  `json:"ask"`
	Sigma              float64  `json:"sigma"`
	Delta              float64  `json:"delta"`
	Probability        float64  `json:"probability"`
	ProbabilityPct     float64  `json:"probability_pct"`
	NetCredit          float64  `json:"net_credit"`
	Recommended        bool     `json:"recommended"`
	NearMissScore      float64  `json:"near_miss_score,omitempty"`
	BindingConstraint  string   `json:"binding_constraint,omitempty"`
	RejectionSummaries []string `json:"rejections,omitempty"`
}

// FlattenCandidate converts a filter.Candidate.
func FlattenCandidate(c *filter.Candidate) CandidateRecord {
	frac, pct := Probability(c.Probability)
	rec := CandidateRecord{
		Symbol:         c.Contract.Symbol,
		Strike:         Price(c.Contract.Strike),
		Expiration:     c.Contract.Expiration.Format("2006-01-02"),
		Bid:            Price(c.Contract.Bid),
		Ask:            Price(c.Contract.Ask),
		Sigma:          round(c.Sigma, 2),
		Delta:          round(c.Delta, fractionDP),
		Probability:    frac,
		ProbabilityPct: pct,
		NetCredit:      Price(c.Cost.NetCredit),
		Recommended:    c.IsRecommended(),
		NearMissScore:  round(c.NearMiss, fractionDP),
	}
	if binding := c.BindingConstraint(); binding != nil {
		rec.BindingConstraint = string(binding.Reason)
	}
	for _, rj := range c.Rejections {
		rec.RejectionSummaries = append(rec.RejectionSummaries, rj.Display)
	}
	return rec
}

// RecommendationRecord is the flat form of a ranked recommendation.
type RecommendationRecord struct {
	CandidateRecord
	Direction       string   `json:"direction"`
	Profile         string   `json:"profile"`
	Contracts       int      `json:"contracts"`
	DTE             int      `json:"dte"`
	Premium         float64  `json:"premium"`
	AnnualizedYield float64  `json:"annualized_yield"`
	BiasScore       float64  `json:"bias_score"`
	Warnings        []string `json:"warnings,omitempty"`
}

// FlattenRecommendation converts a recommend.Recommendation.
func FlattenRecommendation(r *recommend.Recommendation) RecommendationRecord {
	return RecommendationRecord{
		CandidateRecord: FlattenCandidate(&r.Candidate),
		Direction:       string(r.Direction),
		Profile:         r.Profile,
		Contracts:       r.Contracts,
		DTE:             r.DTE,
		Premium:         Price(r.Premium),
		AnnualizedYield: Yield(r.AnnualizedYield),
		BiasScore:       round(r.BiasScore, fractionDP),
		Warnings:        r.Warnings,
	}
}

// OverlayRecord is the flat form of an overlay scan report.
type OverlayRecord struct {
	Symbol     string            `json:"symbol"`
	Price      float64           `json:"price"`
	Shares     int               `json:"shares"`
	Contracts  int               `json:"contracts"`
	Actionable bool              `json:"actionable"`
	Accepted   []CandidateRecord `json:"accepted"`
	NearMisses []CandidateRecord `json:"near_misses,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
}

// FlattenOverlay converts an overlay.Report.
func FlattenOverlay(r *overlay.Report) OverlayRecord {
	rec := OverlayRecord{
		Symbol:     r.Symbol,
		Price:      Price(r.Price),
		Shares:     r.Shares,
		Contracts:  r.Contracts,
		Actionable: r.Actionable,
		Warnings:   r.Warnings,
	}
	for i := range r.Accepted {
		rec.Accepted = append(rec.Accepted, FlattenCandidate(&r.Accepted[i]))
	}
	for i := range r.NearMisses {
		rec.NearMisses = append(rec.NearMisses, FlattenCandidate(&r.NearMisses[i]))
	}
	return rec
}

// StatusRecord is the flat form of a monitor status.
type StatusRecord struct {
	PositionID        string  `json:"position_id"`
	Symbol            string  `json:"symbol"`
	Direction         string  `json:"direction"`
	Strike            float64 `json:"strike"`
	Expiration        string  `json:"expiration"`
	DTE               int     `json:"dte"`
	Price             float64 `json:"price"`
	ITM               bool    `json:"itm"`
	Distance          float64 `json:"distance"`
	PercentFromStrike float64 `json:"percent_from_strike"`
	Risk              string  `json:"risk"`
	Note              string  `json:"note,omitempty"`
}

// FlattenStatus converts a monitor.Status.
func FlattenStatus(st *monitor.Status) StatusRecord {
	return StatusRecord{
		PositionID:        st.PositionID,
		Symbol:            st.Symbol,
		Direction:         string(st.Direction),
		Strike:            Price(st.Strike),
		Expiration:        st.Expiration.Format("2006-01-02"),
		DTE:               st.DTE,
		Price:             Price(st.Price),
		ITM:               st.Moneyness.ITM,
		Distance:          Price(st.Moneyness.Distance),
		PercentFromStrike: Yield(st.Moneyness.PercentFromStrike),
		Risk:              string(st.Risk),
		Note:              st.Note,
	}
}
