package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbailey/wheelhouse/internal/filter"
	"github.com/cbailey/wheelhouse/internal/marketdata"
	"github.com/cbailey/wheelhouse/internal/models"
)

var (
	testNow = time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC)
	testExp = time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC) // 14 DTE
)

func TestContractsToSell(t *testing.T) {
	tests := []struct {
		shares int
		capPct float64
		want   int
	}{
		{500, 25, 1}, // floor(1.25)
		{500, 50, 2}, // floor(2.5)
		{1000, 50, 5},
		{400, 100, 4},
		{50, 25, 0}, // under one contract's worth of shares
		{99, 100, 0},
		{100, 100, 1},
		{0, 50, 0},
		{-200, 50, 0},
		{500, 0, 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ContractsToSell(tc.shares, tc.capPct),
			"%d shares at %.0f%%", tc.shares, tc.capPct)
	}
}

func call(strike, bid, ask float64, oi, vol int64, delta float64) models.Contract {
	c := models.Contract{
		Symbol:       "XYZ call",
		Underlying:   "XYZ",
		OptionType:   models.OptionTypeCall,
		Expiration:   testExp,
		Strike:       strike,
		Bid:          bid,
		Ask:          ask,
		OpenInterest: oi,
		Volume:       vol,
		IV:           0.40,
	}
	if delta != 0 {
		c.Greeks = &models.Greeks{Delta: delta}
	}
	return c
}

func testScanner(client *marketdata.MockClient, cfg Config) *Scanner {
	s := NewScanner(client, client, cfg, nil)
	return s.WithClock(func() time.Time { return testNow })
}

func seedChain(client *marketdata.MockClient) {
	client.Quotes["XYZ"] = &models.Quote{Symbol: "XYZ", Last: 100}
	client.SetChain("XYZ", testExp, []models.Contract{
		call(108, 0.80, 0.90, 800, 60, 0.20), // liquid, in band: accepted
		call(106, 1.20, 1.30, 900, 80, 0.26), // liquid, in band: accepted, richer
		call(112, 0.30, 0.40, 20, 5, 0.08),   // illiquid and under the band: near miss
		call(95, 6.10, 6.40, 500, 50, 0.75),  // in the money: skipped
		call(120, 0, 0.05, 100, 10, 0.02),    // no bid: skipped
		{Symbol: "XYZ put", OptionType: models.OptionTypePut, Expiration: testExp,
			Strike: 92, Bid: 0.70, Ask: 0.80, IV: 0.40}, // wrong side
	})
}

func TestScan_NonActionableBelowOneContract(t *testing.T) {
	client := marketdata.NewMockClient()
	cfg := DefaultConfig()
	cfg.OverwriteCapPct = 25

	report, err := testScanner(client, cfg).Scan(context.Background(), "XYZ", 50)
	require.NoError(t, err)
	assert.False(t, report.Actionable)
	assert.Zero(t, report.Contracts)
	assert.NotEmpty(t, report.Warnings)
	assert.Zero(t, client.QuoteCalls, "no market data fetched for a non-actionable position")
}

func TestScan_AcceptsSortedByNetCredit(t *testing.T) {
	client := marketdata.NewMockClient()
	seedChain(client)

	report, err := testScanner(client, DefaultConfig()).Scan(context.Background(), "XYZ", 400)
	require.NoError(t, err)

	assert.True(t, report.Actionable)
	assert.Equal(t, 2, report.Contracts, "400 shares at 50%% cap")

	require.Len(t, report.Accepted, 2)
	assert.InDelta(t, 106.0, report.Accepted[0].Contract.Strike, 1e-9,
		"richer credit ranks first")
	assert.InDelta(t, 108.0, report.Accepted[1].Contract.Strike, 1e-9)
	assert.Greater(t, report.Accepted[0].Cost.NetCredit, report.Accepted[1].Cost.NetCredit)

	require.NotEmpty(t, report.NearMisses)
	assert.InDelta(t, 112.0, report.NearMisses[0].Contract.Strike, 1e-9)
	assert.Positive(t, report.NearMisses[0].NearMiss)

	// The top candidate carries the execution checklist and payload.
	require.NotEmpty(t, report.Checklist)
	require.NotNil(t, report.Payload)
	assert.InDelta(t, 106.0, report.Payload.Strike, 1e-9)
	assert.Equal(t, 2, report.Payload.Contracts)
	assert.Equal(t, 14, report.Payload.DTE)
	assert.Positive(t, report.Payload.AnnualizedYield)
}

func TestScan_DeltaBandIsPrimarySelector(t *testing.T) {
	client := marketdata.NewMockClient()
	client.Quotes["XYZ"] = &models.Quote{Symbol: "XYZ", Last: 100}
	// Liquid but far OTM: delta 0.05 sits under the target band.
	client.SetChain("XYZ", testExp, []models.Contract{
		call(115, 0.40, 0.45, 900, 80, 0.05),
	})

	report, err := testScanner(client, DefaultConfig()).Scan(context.Background(), "XYZ", 400)
	require.NoError(t, err)
	assert.Empty(t, report.Accepted)
	require.NotEmpty(t, report.NearMisses)

	var bandReject bool
	for _, r := range report.NearMisses[0].Rejections {
		if r.Reason == filter.ReasonDeltaOutsideBand {
			bandReject = true
		}
	}
	assert.True(t, bandReject)
}

func TestScan_EarningsWeekSkipped(t *testing.T) {
	client := marketdata.NewMockClient()
	seedChain(client)
	client.Earnings["XYZ"] = []time.Time{time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)}

	report, err := testScanner(client, DefaultConfig()).Scan(context.Background(), "XYZ", 400)
	require.NoError(t, err)
	assert.Empty(t, report.Accepted, "earnings week expirations are skipped outright")
	assert.NotEmpty(t, report.Warnings)
	assert.Zero(t, client.ChainCalls, "skipped before fetching the chain")
}

func TestScan_EarningsOverrideStillHardGates(t *testing.T) {
	client := marketdata.NewMockClient()
	seedChain(client)
	client.Earnings["XYZ"] = []time.Time{time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)}

	cfg := DefaultConfig()
	cfg.SkipEarningsWeeks = false
	report, err := testScanner(client, cfg).Scan(context.Background(), "XYZ", 400)
	require.NoError(t, err)

	// Scanned, but the hard gate marks every candidate so the overlap is
	// visible in the diagnostics.
	assert.Empty(t, report.Accepted)
	require.NotEmpty(t, report.NearMisses)

	var earningsReject bool
	for _, r := range report.NearMisses[0].Rejections {
		if r.Reason == filter.ReasonEarningsWeek {
			earningsReject = true
		}
	}
	assert.True(t, earningsReject)
}

func TestScan_QuoteFailureDegrades(t *testing.T) {
	client := marketdata.NewMockClient()
	// No quote registered.

	report, err := testScanner(client, DefaultConfig()).Scan(context.Background(), "XYZ", 400)
	require.NoError(t, err)
	assert.False(t, report.Actionable)
	assert.NotEmpty(t, report.Warnings)
}

func TestScan_NearMissLimit(t *testing.T) {
	client := marketdata.NewMockClient()
	client.Quotes["XYZ"] = &models.Quote{Symbol: "XYZ", Last: 100}
	// Eight illiquid calls: more rejects than the limit keeps.
	var chain []models.Contract
	for i := 0; i < 8; i++ {
		chain = append(chain, call(104+float64(i), 0.20, 0.90, 1, 0, 0.20))
	}
	client.SetChain("XYZ", testExp, chain)

	cfg := DefaultConfig()
	cfg.NearMissLimit = 3
	report, err := testScanner(client, cfg).Scan(context.Background(), "XYZ", 400)
	require.NoError(t, err)
	assert.Empty(t, report.Accepted)
	assert.Len(t, report.NearMisses, 3)
}
