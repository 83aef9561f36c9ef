// Package pricing implements the option math behind strike selection:
// sigma-distance strikes, Black-Scholes assignment probability, and the
// tradeable-strike rounding rules. Everything here is pure computation
// over its inputs.
package pricing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cbailey/wheelhouse/internal/models"
	"github.com/cbailey/wheelhouse/internal/util"
)

// RiskFreeRate is the annualized rate used in the Black-Scholes drift term.
const RiskFreeRate = 0.05

const daysPerYear = 365.0

// ErrInvalidInput indicates a non-positive price, volatility, or DTE, or an
// unrecognized option type. Inputs are never silently clamped.
var ErrInvalidInput = errors.New("invalid pricing input")

func validate(price, volatility float64, days int, optionType models.OptionType) error {
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %.4f", ErrInvalidInput, price)
	}
	if volatility <= 0 {
		return fmt.Errorf("%w: volatility must be positive, got %.4f", ErrInvalidInput, volatility)
	}
	if days <= 0 {
		return fmt.Errorf("%w: days to expiry must be positive, got %d", ErrInvalidInput, days)
	}
	if !optionType.Valid() {
		return fmt.Errorf("%w: unrecognized option type %q", ErrInvalidInput, optionType)
	}
	return nil
}

// StrikeAtSigma returns the theoretical strike N standard deviations OTM of
// the current price under a log-normal return assumption: K = S*exp(n*v*sqrt(T))
// with the exponent signed positive for calls and negative for puts.
func StrikeAtSigma(price, volatility float64, days int, sigma float64, optionType models.OptionType) (float64, error) {
	if err := validate(price, volatility, days, optionType); err != nil {
		return 0, err
	}
	t := float64(days) / daysPerYear
	n := math.Abs(sigma)
	if optionType == models.OptionTypePut {
		n = -n
	}
	return price * math.Exp(n*volatility*math.Sqrt(t)), nil
}

// SigmaForStrike is the exact algebraic inverse of StrikeAtSigma. The result
// is sign-adjusted so that OTM distance comes back as a positive magnitude
// for both directions; ITM strikes report negative.
func SigmaForStrike(strike, price, volatility float64, days int, optionType models.OptionType) (float64, error) {
	if err := validate(price, volatility, days, optionType); err != nil {
		return 0, err
	}
	if strike <= 0 {
		return 0, fmt.Errorf("%w: strike must be positive, got %.4f", ErrInvalidInput, strike)
	}
	t := float64(days) / daysPerYear
	n := math.Log(strike/price) / (volatility * math.Sqrt(t))
	if optionType == models.OptionTypePut {
		n = -n
	}
	return n, nil
}

// Assignment holds the Black-Scholes probability of finishing ITM along
// with the intermediate terms, so callers can surface them without
// recomputing.
type Assignment struct {
	Probability float64
	Delta       float64
	D1          float64
	D2          float64
}

// AssignmentProbability computes P(ITM) at expiry and delta for a short
// option: prob = N(d2) for calls, N(-d2) for puts; delta = N(d1) for calls,
// N(d1)-1 for puts.
func AssignmentProbability(strike, price, volatility float64, days int, optionType models.OptionType) (Assignment, error) {
	if err := validate(price, volatility, days, optionType); err != nil {
		return Assignment{}, err
	}
	if strike <= 0 {
		return Assignment{}, fmt.Errorf("%w: strike must be positive, got %.4f", ErrInvalidInput, strike)
	}

	t := float64(days) / daysPerYear
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(price/strike) + (RiskFreeRate+volatility*volatility/2)*t) / (volatility * sqrtT)
	d2 := d1 - volatility*sqrtT

	a := Assignment{D1: d1, D2: d2}
	if optionType == models.OptionTypeCall {
		a.Probability = NormCDF(d2)
		a.Delta = NormCDF(d1)
	} else {
		a.Probability = NormCDF(-d2)
		a.Delta = NormCDF(d1) - 1
	}
	return a, nil
}

// NormCDF is the standard normal cumulative distribution function,
// computed via the complementary error function.
func NormCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// strikeIncrement returns the listing increment assumed for an underlying
// trading at the given price, used when no discrete strike list is known.
func strikeIncrement(price float64) float64 {
	switch {
	case price < 25:
		return 0.50
	case price < 200:
		return 1.00
	case price < 500:
		return 2.50
	default:
		return 5.00
	}
}

// RoundToTradeable snaps a theoretical strike onto a strike the market
// actually lists, always rounding further OTM (up for calls, down for
// puts). When availableStrikes is non-empty it picks from the list;
// otherwise it rounds to a price-tiered increment. Returns 0 when the list
// contains no strike on the conservative side.
func RoundToTradeable(strike, price float64, optionType models.OptionType, availableStrikes []float64) float64 {
	if len(availableStrikes) > 0 {
		sorted := make([]float64, len(availableStrikes))
		copy(sorted, availableStrikes)
		sort.Float64s(sorted)

		if optionType == models.OptionTypeCall {
			for _, s := range sorted {
				if s >= strike {
					return s
				}
			}
			return 0
		}
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i] <= strike {
				return sorted[i]
			}
		}
		return 0
	}

	tick := strikeIncrement(price)
	if optionType == models.OptionTypeCall {
		return util.CeilToTick(strike, tick)
	}
	return util.FloorToTick(strike, tick)
}

// ProfileRange names a half-open sigma-distance interval [Min, Max).
type ProfileRange struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// ProfileTable is an ordered set of non-overlapping sigma ranges.
type ProfileTable []ProfileRange

// Classify returns the name of the range containing sigma, or "none".
func (t ProfileTable) Classify(sigma float64) string {
	for _, r := range t {
		if sigma >= r.Min && sigma < r.Max {
			return r.Name
		}
	}
	return "none"
}

// Range looks up a profile by name.
func (t ProfileTable) Range(name string) (ProfileRange, bool) {
	for _, r := range t {
		if r.Name == name {
			return r, true
		}
	}
	return ProfileRange{}, false
}

// DefaultProfiles orders profiles from closest to the money (most premium,
// most assignment risk) to furthest.
var DefaultProfiles = ProfileTable{
	{Name: "aggressive", Min: 0.75, Max: 1.25},
	{Name: "balanced", Min: 1.25, Max: 1.75},
	{Name: "conservative", Min: 1.75, Max: 3.00},
}

// DeltaBand names a half-open interval of delta magnitude [Min, Max).
type DeltaBand struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// DeltaBandTable is an ordered set of non-overlapping delta bands.
type DeltaBandTable []DeltaBand

// Classify returns the band containing the delta's magnitude, or "none".
func (t DeltaBandTable) Classify(delta float64) string {
	mag := math.Abs(delta)
	for _, b := range t {
		if mag >= b.Min && mag < b.Max {
			return b.Name
		}
	}
	return "none"
}

// DefaultDeltaBands covers the short-dated overwriting range; "target" is
// the primary selector for weekly covered calls.
var DefaultDeltaBands = DeltaBandTable{
	{Name: "low", Min: 0.05, Max: 0.15},
	{Name: "target", Min: 0.15, Max: 0.30},
	{Name: "high", Min: 0.30, Max: 0.50},
}
