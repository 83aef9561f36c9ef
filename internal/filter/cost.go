package filter

import (
	"math"

	"github.com/cbailey/wheelhouse/internal/models"
)

// SlippageModel selects how expected slippage is charged against gross
// premium when estimating execution cost.
type SlippageModel string

const (
	// SlippageNone charges nothing.
	SlippageNone SlippageModel = "none"
	// SlippagePricedIn charges nothing on the grounds that selling at the
	// bid already concedes the full spread.
	SlippagePricedIn SlippageModel = "priced_in"
	// SlippageHalfSpread charges half the bid-ask spread per share.
	SlippageHalfSpread SlippageModel = "half_spread"
	// SlippageHalfSpreadCapped charges half the spread per share, capped
	// at a configured per-share maximum.
	SlippageHalfSpreadCapped SlippageModel = "half_spread_capped"
)

// Valid returns true if the model is one of the defined constants.
func (m SlippageModel) Valid() bool {
	switch m {
	case SlippageNone, SlippagePricedIn, SlippageHalfSpread, SlippageHalfSpreadCapped:
		return true
	default:
		return false
	}
}

// CostModel holds the execution-cost assumptions for a scan.
type CostModel struct {
	CommissionPerContract float64       `yaml:"commission_per_contract"`
	Slippage              SlippageModel `yaml:"slippage"`
	// MaxSlippagePerShare caps the half-spread charge when the model is
	// half_spread_capped.
	MaxSlippagePerShare float64 `yaml:"max_slippage_per_share"`
}

// EstimateCost computes the credit a trade of the given size actually
// collects: gross = bid x 100 x contracts, minus commission and the
// model's slippage charge.
func EstimateCost(c *models.Contract, contracts int, m CostModel) ExecutionCost {
	gross := c.Bid * float64(models.SharesPerContract) * float64(contracts)
	commission := m.CommissionPerContract * float64(contracts)

	var perShare float64
	switch m.Slippage {
	case SlippageHalfSpread:
		perShare = c.Spread() / 2
	case SlippageHalfSpreadCapped:
		perShare = math.Min(c.Spread()/2, m.MaxSlippagePerShare)
	}
	slippage := perShare * float64(models.SharesPerContract) * float64(contracts)

	return ExecutionCost{
		Contracts:  contracts,
		Gross:      gross,
		Commission: commission,
		Slippage:   slippage,
		NetCredit:  gross - commission - slippage,
	}
}
