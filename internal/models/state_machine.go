package models

import (
	"fmt"
	"sort"
	"strings"
)

// PositionState represents where a wheel position sits in the put/call
// selling cycle.
type PositionState string

const (
	// StateCash holds cash, ready to sell a put
	StateCash PositionState = "cash"
	// StateCashPutOpen has a short put working against allocated cash
	StateCashPutOpen PositionState = "cash_put_open"
	// StateShares holds assigned shares, ready to sell a call
	StateShares PositionState = "shares"
	// StateSharesCallOpen has a short call working against held shares
	StateSharesCallOpen PositionState = "shares_call_open"
)

// Valid returns true if the state is one of the defined constants
func (s PositionState) Valid() bool {
	switch s {
	case StateCash, StateCashPutOpen, StateShares, StateSharesCallOpen:
		return true
	default:
		return false
	}
}

// Action is an event applied to a position's state machine.
type Action string

const (
	// ActionSellPut opens a cash-secured put
	ActionSellPut Action = "sell_put"
	// ActionSellCall opens a covered call
	ActionSellCall Action = "sell_call"
	// ActionExpiredOTM closes the open trade worthless at expiry
	ActionExpiredOTM Action = "expired_otm"
	// ActionAssigned converts an expired ITM put into shares
	ActionAssigned Action = "assigned"
	// ActionCalledAway converts an expired ITM call back into cash
	ActionCalledAway Action = "called_away"
	// ActionClosedEarly buys the open trade back before expiry
	ActionClosedEarly Action = "closed_early"
)

// transitions is the full wheel cycle. Any (state, action) pair not listed
// here is illegal.
var transitions = map[PositionState]map[Action]PositionState{
	StateCash: {
		ActionSellPut: StateCashPutOpen,
	},
	StateCashPutOpen: {
		ActionExpiredOTM:  StateCash,
		ActionAssigned:    StateShares,
		ActionClosedEarly: StateCash,
	},
	StateShares: {
		ActionSellCall: StateSharesCallOpen,
	},
	StateSharesCallOpen: {
		ActionExpiredOTM:  StateShares,
		ActionCalledAway:  StateCash,
		ActionClosedEarly: StateShares,
	},
}

// NextState returns the state reached by applying action in from.
// Illegal pairs fail with ErrInvalidTransition, naming the legal actions.
func NextState(from PositionState, action Action) (PositionState, error) {
	edges, ok := transitions[from]
	if !ok {
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, from)
	}
	to, ok := edges[action]
	if !ok {
		return "", fmt.Errorf("%w: %q not allowed in state %q (legal: %s)",
			ErrInvalidTransition, action, from, joinActions(LegalActions(from)))
	}
	return to, nil
}

// LegalActions returns the actions permitted in the given state, sorted
// for stable error messages.
func LegalActions(state PositionState) []Action {
	edges := transitions[state]
	out := make([]Action, 0, len(edges))
	for a := range edges {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinActions(actions []Action) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}

// HasOpenTradeState reports whether the state implies a working short option.
func HasOpenTradeState(s PositionState) bool {
	return s == StateCashPutOpen || s == StateSharesCallOpen
}

// SettleExpiry determines the outcome of a short option at expiration from
// the settlement price. Price exactly at the strike resolves against the
// seller (assigned / called away); this boundary changes capital allocation
// and must not be relaxed.
func SettleExpiry(direction OptionType, price, strike float64) TradeOutcome {
	if direction == OptionTypePut {
		if price > strike {
			return OutcomeExpiredWorthless
		}
		return OutcomeAssigned
	}
	if price < strike {
		return OutcomeExpiredWorthless
	}
	return OutcomeCalledAway
}

// expiryAction maps a settlement outcome onto the state machine action that
// applies it.
func expiryAction(outcome TradeOutcome) Action {
	switch outcome {
	case OutcomeAssigned:
		return ActionAssigned
	case OutcomeCalledAway:
		return ActionCalledAway
	default:
		return ActionExpiredOTM
	}
}
