package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putEvent(strike float64, contracts int) TradeEvent {
	return TradeEvent{
		ID:              "ev-1",
		Direction:       OptionTypePut,
		Strike:          strike,
		Expiration:      time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC),
		PremiumPerShare: 1.10,
		Contracts:       contracts,
	}
}

func callEvent(strike float64, contracts int) TradeEvent {
	ev := putEvent(strike, contracts)
	ev.Direction = OptionTypeCall
	return ev
}

func TestTradeEvent_PremiumAndNotional(t *testing.T) {
	ev := putEvent(95, 2)
	assert.InDelta(t, 220.0, ev.Premium(), 1e-9)    // 1.10 x 2 x 100
	assert.InDelta(t, 19000.0, ev.Notional(), 1e-9) // 95 x 2 x 100
}

func TestSellDirection(t *testing.T) {
	cash := NewCashPosition("p1", "XYZ", 10000, "balanced")
	dir, err := cash.SellDirection()
	require.NoError(t, err)
	assert.Equal(t, OptionTypePut, dir)

	shares := NewSharesPosition("p2", "XYZ", 200, 95, "balanced")
	dir, err = shares.SellDirection()
	require.NoError(t, err)
	assert.Equal(t, OptionTypeCall, dir)

	require.NoError(t, cash.RecordTrade(putEvent(95, 1)))
	_, err = cash.SellDirection()
	assert.ErrorIs(t, err, ErrTradeOpen)
}

func TestRecordTrade_CapacityGatesPut(t *testing.T) {
	pos := NewCashPosition("p1", "XYZ", 9000, "balanced")

	// $95 strike x 100 shares needs $9500 secured; only $9000 allocated.
	err := pos.RecordTrade(putEvent(95, 1))
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, StateCash, pos.State, "capacity failures must not mutate state")
	assert.Nil(t, pos.OpenTrade)

	// $85 fits.
	require.NoError(t, pos.RecordTrade(putEvent(85, 1)))
	assert.Equal(t, StateCashPutOpen, pos.State)
	require.NotNil(t, pos.OpenTrade)
	assert.Equal(t, OutcomeOpen, pos.OpenTrade.Outcome)
}

func TestRecordTrade_CapacityGatesCall(t *testing.T) {
	pos := NewSharesPosition("p1", "XYZ", 100, 95, "balanced")

	err := pos.RecordTrade(callEvent(105, 2))
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, StateShares, pos.State)

	require.NoError(t, pos.RecordTrade(callEvent(105, 1)))
	assert.Equal(t, StateSharesCallOpen, pos.State)
}

func TestRecordTrade_DirectionMustMatchState(t *testing.T) {
	cash := NewCashPosition("p1", "XYZ", 50000, "balanced")
	err := cash.RecordTrade(callEvent(105, 1))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	shares := NewSharesPosition("p2", "XYZ", 100, 95, "balanced")
	err = shares.RecordTrade(putEvent(90, 1))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordTrade_RejectsBadEvents(t *testing.T) {
	pos := NewCashPosition("p1", "XYZ", 50000, "balanced")

	ev := putEvent(95, 1)
	ev.Direction = OptionType("strangle")
	assert.Error(t, pos.RecordTrade(ev))

	assert.Error(t, pos.RecordTrade(putEvent(95, 0)))
	assert.Error(t, pos.RecordTrade(putEvent(95, -2)))
}

// Assignment converts secured capital into shares at the strike, and a
// later call-away returns the proceeds; a full cycle ends back in cash
// with no shares.
func TestPosition_FullWheelCycle(t *testing.T) {
	pos := NewCashPosition("p1", "XYZ", 10000, "balanced")
	at := time.Date(2026, 9, 18, 21, 0, 0, 0, time.UTC)

	require.NoError(t, pos.RecordTrade(putEvent(95, 1)))
	outcome, err := pos.SettleAtExpiry(92, at)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, outcome)
	assert.Equal(t, StateShares, pos.State)
	assert.Equal(t, 100, pos.SharesHeld)
	assert.InDelta(t, 95.0, pos.CostBasis, 1e-9)
	assert.InDelta(t, 500.0, pos.CapitalAllocated, 1e-9, "9500 went to the shares")

	require.NoError(t, pos.RecordTrade(callEvent(98, 1)))
	outcome, err = pos.SettleAtExpiry(101, at.AddDate(0, 0, 7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCalledAway, outcome)
	assert.Equal(t, StateCash, pos.State)
	assert.Equal(t, 0, pos.SharesHeld)
	assert.Zero(t, pos.CostBasis)
	assert.InDelta(t, 10300.0, pos.CapitalAllocated, 1e-9, "sold at 98, bought at 95")

	assert.Len(t, pos.History, 2)
	assert.InDelta(t, 220.0, pos.PremiumCollected(), 1e-9)
	assert.NoError(t, pos.Validate())
}

func TestSettleAtExpiry_ExpiredWorthless(t *testing.T) {
	pos := NewCashPosition("p1", "XYZ", 10000, "balanced")
	require.NoError(t, pos.RecordTrade(putEvent(95, 1)))

	outcome, err := pos.SettleAtExpiry(97, time.Now())
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpiredWorthless, outcome)
	assert.Equal(t, StateCash, pos.State)
	assert.InDelta(t, 10000.0, pos.CapitalAllocated, 1e-9, "capital untouched")
	assert.Nil(t, pos.OpenTrade)
}

func TestSettleAtExpiry_RequiresOpenTrade(t *testing.T) {
	pos := NewCashPosition("p1", "XYZ", 10000, "balanced")
	_, err := pos.SettleAtExpiry(97, time.Now())
	assert.ErrorIs(t, err, ErrNoOpenTrade)
}

func TestCloseEarly(t *testing.T) {
	pos := NewCashPosition("p1", "XYZ", 10000, "balanced")
	assert.ErrorIs(t, pos.CloseEarly(time.Now()), ErrNoOpenTrade)

	require.NoError(t, pos.RecordTrade(putEvent(95, 1)))
	require.NoError(t, pos.CloseEarly(time.Now()))
	assert.Equal(t, StateCash, pos.State)
	require.Len(t, pos.History, 1)
	assert.Equal(t, OutcomeClosedEarly, pos.History[0].Outcome)
}

func TestArchive(t *testing.T) {
	pos := NewCashPosition("p1", "XYZ", 10000, "balanced")
	require.NoError(t, pos.RecordTrade(putEvent(95, 1)))

	err := pos.Archive(time.Now())
	assert.ErrorIs(t, err, ErrTradeOpen)
	assert.False(t, pos.IsArchived())

	require.NoError(t, pos.CloseEarly(time.Now()))
	require.NoError(t, pos.Archive(time.Now()))
	assert.True(t, pos.IsArchived())
}

func TestValidate(t *testing.T) {
	pos := NewCashPosition("p1", "XYZ", 10000, "balanced")
	assert.NoError(t, pos.Validate())

	bad := NewSharesPosition("p2", "XYZ", 150, 95, "balanced")
	assert.Error(t, bad.Validate(), "shares must come in whole contracts")

	orphan := NewCashPosition("p3", "XYZ", 10000, "balanced")
	orphan.State = StateCashPutOpen
	assert.Error(t, orphan.Validate(), "open-trade state with no trade")

	stray := NewCashPosition("p4", "XYZ", 10000, "balanced")
	ev := putEvent(95, 1)
	stray.OpenTrade = &ev
	assert.Error(t, stray.Validate(), "cash state cannot carry an open trade")
}
