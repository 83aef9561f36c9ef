package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextState_Transitions(t *testing.T) {
	tests := []struct {
		from   PositionState
		action Action
		want   PositionState
	}{
		{StateCash, ActionSellPut, StateCashPutOpen},
		{StateCashPutOpen, ActionExpiredOTM, StateCash},
		{StateCashPutOpen, ActionClosedEarly, StateCash},
		{StateCashPutOpen, ActionAssigned, StateShares},
		{StateShares, ActionSellCall, StateSharesCallOpen},
		{StateSharesCallOpen, ActionExpiredOTM, StateShares},
		{StateSharesCallOpen, ActionClosedEarly, StateShares},
		{StateSharesCallOpen, ActionCalledAway, StateCash},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"/"+string(tc.action), func(t *testing.T) {
			got, err := NextState(tc.from, tc.action)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextState_IllegalTransitions(t *testing.T) {
	tests := []struct {
		from   PositionState
		action Action
	}{
		{StateCash, ActionSellCall}, // no shares to cover a call
		{StateCash, ActionExpiredOTM},
		{StateCash, ActionAssigned},
		{StateShares, ActionSellPut},
		{StateShares, ActionCalledAway},
		{StateCashPutOpen, ActionSellPut}, // a trade is already working
		{StateCashPutOpen, ActionSellCall},
		{StateCashPutOpen, ActionCalledAway},
		{StateSharesCallOpen, ActionAssigned},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"/"+string(tc.action), func(t *testing.T) {
			_, err := NextState(tc.from, tc.action)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestNextState_ErrorNamesLegalActions(t *testing.T) {
	_, err := NextState(StateCash, ActionSellCall)
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(ActionSellPut),
		"the error should tell the caller what is legal instead")
}

func TestLegalActions_Sorted(t *testing.T) {
	actions := LegalActions(StateCashPutOpen)
	require.Len(t, actions, 3)
	for i := 1; i < len(actions); i++ {
		assert.LessOrEqual(t, string(actions[i-1]), string(actions[i]))
	}
	assert.Empty(t, LegalActions(PositionState("nonsense")))
}

func TestHasOpenTradeState(t *testing.T) {
	assert.False(t, HasOpenTradeState(StateCash))
	assert.True(t, HasOpenTradeState(StateCashPutOpen))
	assert.False(t, HasOpenTradeState(StateShares))
	assert.True(t, HasOpenTradeState(StateSharesCallOpen))
}

func TestSettleExpiry(t *testing.T) {
	// Put: OTM strictly above the strike; at the strike the seller is
	// assigned.
	assert.Equal(t, OutcomeExpiredWorthless, SettleExpiry(OptionTypePut, 100.01, 100))
	assert.Equal(t, OutcomeAssigned, SettleExpiry(OptionTypePut, 100, 100))
	assert.Equal(t, OutcomeAssigned, SettleExpiry(OptionTypePut, 92.50, 100))

	// Call: OTM strictly below the strike; at the strike the shares are
	// called away.
	assert.Equal(t, OutcomeExpiredWorthless, SettleExpiry(OptionTypeCall, 99.99, 100))
	assert.Equal(t, OutcomeCalledAway, SettleExpiry(OptionTypeCall, 100, 100))
	assert.Equal(t, OutcomeCalledAway, SettleExpiry(OptionTypeCall, 112, 100))
}

// The full wheel: sell put, get assigned, sell call, get called away,
// back to cash.
func TestStateMachine_FullCycle(t *testing.T) {
	state := StateCash

	state, err := NextState(state, ActionSellPut)
	require.NoError(t, err)
	state, err = NextState(state, ActionAssigned)
	require.NoError(t, err)
	require.Equal(t, StateShares, state)
	state, err = NextState(state, ActionSellCall)
	require.NoError(t, err)
	state, err = NextState(state, ActionCalledAway)
	require.NoError(t, err)
	assert.Equal(t, StateCash, state)
}
