package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbailey/wheelhouse/internal/models"
	"github.com/cbailey/wheelhouse/internal/pricing"
)

// liquidContract clears every default gate.
func liquidContract() models.Contract {
	return models.Contract{
		Symbol:       "XYZ260918P00095000",
		Underlying:   "XYZ",
		OptionType:   models.OptionTypePut,
		Expiration:   time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
		Strike:       95,
		Bid:          1.20,
		Ask:          1.30,
		Volume:       250,
		OpenInterest: 1200,
	}
}

func liquidCandidate(t *testing.T) *Candidate {
	t.Helper()
	c := &Candidate{
		Contract:    liquidContract(),
		Sigma:       1.4,
		Probability: 0.22,
		Delta:       -0.21,
	}
	c.Cost = EstimateCost(&c.Contract, 1, CostModel{
		CommissionPerContract: 0.65,
		Slippage:              SlippageHalfSpread,
	})
	return c
}

func TestMarginOf(t *testing.T) {
	tests := []struct {
		name              string
		actual, threshold float64
		kind              ConstraintKind
		want              float64
	}{
		{"minimum at threshold", 50, 50, ConstraintMinimum, 0},
		{"minimum satisfied clamps to zero", 80, 50, ConstraintMinimum, 0},
		{"minimum halfway", 25, 50, ConstraintMinimum, 0.5},
		{"minimum at zero actual", 0, 50, ConstraintMinimum, 1},
		{"maximum at threshold", 0.30, 0.30, ConstraintMaximum, 0},
		{"maximum exceeded", 0.45, 0.30, ConstraintMaximum, 0.5},
		{"maximum satisfied clamps to zero", 0.10, 0.30, ConstraintMaximum, 0},
		{"zero threshold minimum satisfied", 1, 0, ConstraintMinimum, 0},
		{"zero threshold minimum violated", 0, 0, ConstraintMinimum, 1},
		{"zero threshold maximum satisfied", 0, 0, ConstraintMaximum, 0},
		{"zero threshold maximum violated", 2, 0, ConstraintMaximum, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, MarginOf(tc.actual, tc.threshold, tc.kind), 1e-9)
		})
	}
}

func TestEvaluate_AcceptsLiquidCandidate(t *testing.T) {
	c := liquidCandidate(t)
	rejections := Evaluate(c, DefaultConfig, false)
	assert.Empty(t, rejections)
	assert.True(t, c.IsRecommended())
	assert.Nil(t, c.BindingConstraint())
}

func TestEvaluate_ZeroBidIsHardReject(t *testing.T) {
	c := liquidCandidate(t)
	c.Contract.Bid = 0
	c.Cost = EstimateCost(&c.Contract, 1, CostModel{})

	Evaluate(c, DefaultConfig, false)
	require.False(t, c.IsRecommended())

	var found *RejectionDetail
	for i := range c.Rejections {
		if c.Rejections[i].Reason == ReasonZeroBid {
			found = &c.Rejections[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 1.0, found.Margin, "zero bid carries the fixed hard margin")

	// The bid-below-min gate must not double-report on a zero bid.
	for _, r := range c.Rejections {
		assert.NotEqual(t, ReasonBidBelowMin, r.Reason)
	}
}

func TestEvaluate_GatesAreIndependent(t *testing.T) {
	c := liquidCandidate(t)
	c.Contract.Bid = 0.02
	c.Contract.Ask = 0.60
	c.Contract.Volume = 2
	c.Contract.OpenInterest = 5
	c.Cost = EstimateCost(&c.Contract, 1, CostModel{
		CommissionPerContract: 0.65,
		Slippage:              SlippageHalfSpread,
	})

	Evaluate(c, DefaultConfig, false)

	reasons := make(map[RejectionReason]bool)
	for _, r := range c.Rejections {
		reasons[r.Reason] = true
	}
	assert.True(t, reasons[ReasonBidBelowMin])
	assert.True(t, reasons[ReasonSpreadTooWide])
	assert.True(t, reasons[ReasonOpenInterestLow])
	assert.True(t, reasons[ReasonVolumeLow])
	assert.GreaterOrEqual(t, len(c.Rejections), 4, "every violated gate reports")
}

func TestEvaluate_RelativeSpreadSkippedBelowMidFloor(t *testing.T) {
	c := liquidCandidate(t)
	// Mid 0.10, relative spread 100%: spurious for cheap options.
	c.Contract.Bid = 0.05
	c.Contract.Ask = 0.15
	c.Cost = EstimateCost(&c.Contract, 1, CostModel{})

	Evaluate(c, DefaultConfig, false)
	for _, r := range c.Rejections {
		assert.NotEqual(t, ReasonRelSpreadTooWide, r.Reason,
			"relative spread must not fire when mid is under the floor")
	}
}

func TestEvaluate_EarningsWeekHardGate(t *testing.T) {
	c := liquidCandidate(t)
	Evaluate(c, DefaultConfig, true)
	require.Len(t, c.Rejections, 1)
	assert.Equal(t, ReasonEarningsWeek, c.Rejections[0].Reason)
	assert.Equal(t, 1.0, c.Rejections[0].Margin)
}

func TestEvaluate_YieldGate(t *testing.T) {
	c := liquidCandidate(t)
	// 1 contract at $95 strike: notional $9500. A $0.05 bid nets well
	// under 10 bps.
	c.Contract.Bid = 0.05
	c.Contract.Ask = 0.10
	c.Cost = EstimateCost(&c.Contract, 1, CostModel{})

	Evaluate(c, DefaultConfig, false)
	var hit bool
	for _, r := range c.Rejections {
		if r.Reason == ReasonYieldBelowMin {
			hit = true
		}
	}
	assert.True(t, hit)
}

func TestBindingConstraint_PicksSmallestMargin(t *testing.T) {
	c := &Candidate{Rejections: []RejectionDetail{
		{Reason: ReasonVolumeLow, Margin: 0.8},
		{Reason: ReasonOpenInterestLow, Margin: 0.05},
		{Reason: ReasonSpreadTooWide, Margin: 0.4},
	}}
	binding := c.BindingConstraint()
	require.NotNil(t, binding)
	assert.Equal(t, ReasonOpenInterestLow, binding.Reason)
}

func TestEvaluateDeltaBand(t *testing.T) {
	band := pricing.DeltaBand{Name: "target", Min: 0.15, Max: 0.30}

	inside := &Candidate{Delta: -0.20}
	assert.Nil(t, EvaluateDeltaBand(inside, band))
	assert.True(t, inside.IsRecommended())

	below := &Candidate{Delta: 0.10}
	d := EvaluateDeltaBand(below, band)
	require.NotNil(t, d)
	assert.Equal(t, ReasonDeltaOutsideBand, d.Reason)
	assert.InDelta(t, (0.15-0.10)/0.15, d.Margin, 1e-9)

	above := &Candidate{Delta: -0.45}
	d = EvaluateDeltaBand(above, band)
	require.NotNil(t, d)
	assert.InDelta(t, (0.45-0.30)/0.30, d.Margin, 1e-9)

	// The band is [min, max): the upper boundary is outside.
	atMax := &Candidate{Delta: 0.30}
	assert.NotNil(t, EvaluateDeltaBand(atMax, band))
	atMin := &Candidate{Delta: 0.15}
	assert.Nil(t, EvaluateDeltaBand(atMin, band))
}

func TestNearMissScore(t *testing.T) {
	accepted := liquidCandidate(t)
	Evaluate(accepted, DefaultConfig, false)
	assert.Zero(t, NearMissScore(accepted, 100), "accepted candidates score zero")

	// One rejection with margin 0 and the best credit seen scores the
	// maximum: 0.6 + 0.2 + 0.2.
	perfect := &Candidate{
		Cost:       ExecutionCost{NetCredit: 120},
		Rejections: []RejectionDetail{{Reason: ReasonVolumeLow, Margin: 0}},
	}
	assert.InDelta(t, 1.0, NearMissScore(perfect, 120), 1e-9)
	assert.InDelta(t, 1.0, perfect.NearMiss, 1e-9, "score is stored on the candidate")

	// More rejections and wider margins score lower.
	worse := &Candidate{
		Cost: ExecutionCost{NetCredit: 60},
		Rejections: []RejectionDetail{
			{Margin: 0.5}, {Margin: 0.9}, {Margin: 2.0},
		},
	}
	score := NearMissScore(worse, 120)
	assert.Less(t, score, 1.0)
	assert.InDelta(t, 0.6*0.5+0.2*0.5+0.2*0.5, score, 1e-9)

	// Margins past 1 and rejection counts past 5 clamp at zero.
	hopeless := &Candidate{
		Cost: ExecutionCost{NetCredit: 0},
		Rejections: []RejectionDetail{
			{Margin: 3}, {Margin: 3}, {Margin: 3}, {Margin: 3}, {Margin: 3}, {Margin: 3},
		},
	}
	assert.Zero(t, NearMissScore(hopeless, 120))
}

func TestEstimateCost(t *testing.T) {
	ct := liquidContract() // bid 1.20, ask 1.30, spread 0.10

	t.Run("none and priced_in charge no slippage", func(t *testing.T) {
		for _, m := range []SlippageModel{SlippageNone, SlippagePricedIn} {
			cost := EstimateCost(&ct, 2, CostModel{CommissionPerContract: 0.65, Slippage: m})
			assert.InDelta(t, 240.0, cost.Gross, 1e-9)
			assert.InDelta(t, 1.30, cost.Commission, 1e-9)
			assert.Zero(t, cost.Slippage)
			assert.InDelta(t, 238.70, cost.NetCredit, 1e-9)
		}
	})

	t.Run("half spread", func(t *testing.T) {
		cost := EstimateCost(&ct, 1, CostModel{CommissionPerContract: 0.65, Slippage: SlippageHalfSpread})
		assert.InDelta(t, 5.0, cost.Slippage, 1e-9) // 0.05/share x 100
		assert.InDelta(t, 120-0.65-5, cost.NetCredit, 1e-9)
	})

	t.Run("half spread capped", func(t *testing.T) {
		wide := ct
		wide.Ask = 1.60 // half spread 0.20, cap 0.03
		cost := EstimateCost(&wide, 1, CostModel{
			CommissionPerContract: 0.65,
			Slippage:              SlippageHalfSpreadCapped,
			MaxSlippagePerShare:   0.03,
		})
		assert.InDelta(t, 3.0, cost.Slippage, 1e-9)
	})

	t.Run("friction", func(t *testing.T) {
		cost := ExecutionCost{Commission: 1.3, Slippage: 4.2}
		assert.InDelta(t, 5.5, cost.Friction(), 1e-9)
	})
}

func TestSlippageModelValid(t *testing.T) {
	assert.True(t, SlippageHalfSpread.Valid())
	assert.True(t, SlippageNone.Valid())
	assert.False(t, SlippageModel("generous").Valid())
}
