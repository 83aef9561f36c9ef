// Package models provides data structures and state management for wheel positions.
package models

import (
	"math"
	"time"
)

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
)

// Valid returns true if the OptionType is one of the defined constants
func (t OptionType) Valid() bool {
	return t == OptionTypePut || t == OptionTypeCall
}

// Greeks contains option Greeks data from the market-data provider.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	MidIV float64 `json:"mid_iv"`
}

// Contract is an immutable snapshot of a single option contract as returned
// by the market-data provider. Market fields reflect the moment of the fetch.
type Contract struct {
	Greeks       *Greeks    `json:"greeks,omitempty"`
	Symbol       string     `json:"symbol"`
	Underlying   string     `json:"underlying"`
	OptionType   OptionType `json:"option_type"`
	Expiration   time.Time  `json:"expiration"`
	Strike       float64    `json:"strike"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Last         float64    `json:"last"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	IV           float64    `json:"iv"` // implied volatility as decimal (0.30 = 30%)
}

// Mid returns the bid/ask midpoint, or 0 when both sides are empty.
func (c *Contract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// Spread returns the absolute bid-ask spread.
func (c *Contract) Spread() float64 {
	return c.Ask - c.Bid
}

// RelativeSpread returns spread/mid, or +Inf when the mid is zero.
func (c *Contract) RelativeSpread() float64 {
	mid := c.Mid()
	if mid <= 0 {
		return math.Inf(1)
	}
	return c.Spread() / mid
}

// DTE returns calendar days from now until expiration, never negative.
func (c *Contract) DTE(now time.Time) int {
	return DaysBetweenFloor(now, c.Expiration)
}

// IsOTM reports whether the contract is out of the money at the given
// underlying price. The at-the-money boundary counts as in the money,
// consistent with seller-unfavorable settlement.
func (c *Contract) IsOTM(price float64) bool {
	if c.OptionType == OptionTypePut {
		return price > c.Strike
	}
	return price < c.Strike
}

// Quote is a snapshot of the underlying's market data. Zero-valued fields
// mean the provider did not supply them.
type Quote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Close  float64 `json:"close"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
}

// Price returns the best available price using last -> close -> bid
// fallback order. Returns 0 when no field is populated.
func (q *Quote) Price() float64 {
	switch {
	case q.Last > 0:
		return q.Last
	case q.Close > 0:
		return q.Close
	default:
		return q.Bid
	}
}

// DaysBetweenFloor returns whole calendar days from one date to a later
// date, clamped at zero.
func DaysBetweenFloor(from, to time.Time) int {
	f := from.UTC().Truncate(24 * time.Hour)
	t := to.UTC().Truncate(24 * time.Hour)
	d := int(t.Sub(f).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
