package models

import (
	"fmt"
	"time"
)

// SharesPerContract is the deliverable share count of one equity option.
const SharesPerContract = 100

// TradeOutcome describes how a trade event was, or will be, resolved.
type TradeOutcome string

const (
	// OutcomeOpen means the short option is still working
	OutcomeOpen TradeOutcome = "open"
	// OutcomeExpiredWorthless means the option expired OTM; full premium kept
	OutcomeExpiredWorthless TradeOutcome = "expired_worthless"
	// OutcomeAssigned means an ITM put delivered shares at the strike
	OutcomeAssigned TradeOutcome = "assigned"
	// OutcomeCalledAway means an ITM call sold the shares at the strike
	OutcomeCalledAway TradeOutcome = "called_away"
	// OutcomeClosedEarly means the option was bought back before expiry
	OutcomeClosedEarly TradeOutcome = "closed_early"
)

// TradeEvent records one short-option trade against a position. Exactly one
// open TradeEvent may exist per position at a time; the state machine, not
// this struct, enforces that.
type TradeEvent struct {
	ID              string       `json:"id"`
	Direction       OptionType   `json:"direction"`
	Strike          float64      `json:"strike"`
	Expiration      time.Time    `json:"expiration"`
	PremiumPerShare float64      `json:"premium_per_share"`
	Contracts       int          `json:"contracts"`
	Outcome         TradeOutcome `json:"outcome"`
	OpenedAt        time.Time    `json:"opened_at"`
	ClosedAt        time.Time    `json:"closed_at,omitempty"`
}

// Premium returns the total premium collected by the event in dollars.
func (e *TradeEvent) Premium() float64 {
	return e.PremiumPerShare * float64(e.Contracts) * SharesPerContract
}

// Notional returns the capital the event's strike represents.
func (e *TradeEvent) Notional() float64 {
	return e.Strike * float64(e.Contracts) * SharesPerContract
}

// Position is one wheel cycle on a single underlying. State uniquely
// determines whether capital (put side) or shares (call side) gate sizing.
type Position struct {
	ID               string        `json:"id"`
	Symbol           string        `json:"symbol"`
	State            PositionState `json:"state"`
	Profile          string        `json:"profile"`
	CapitalAllocated float64       `json:"capital_allocated"`
	SharesHeld       int           `json:"shares_held"`
	CostBasis        float64       `json:"cost_basis"`
	OpenTrade        *TradeEvent   `json:"open_trade,omitempty"`
	History          []TradeEvent  `json:"history"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	ArchivedAt       time.Time     `json:"archived_at,omitempty"`
}

// NewCashPosition creates a position in the cash state with the given
// capital allocated to secure puts.
func NewCashPosition(id, symbol string, capital float64, profile string) *Position {
	now := time.Now().UTC()
	return &Position{
		ID:               id,
		Symbol:           symbol,
		State:            StateCash,
		Profile:          profile,
		CapitalAllocated: capital,
		History:          make([]TradeEvent, 0),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewSharesPosition creates a position in the shares state, for underlyings
// already held (covered-call entry point into the wheel).
func NewSharesPosition(id, symbol string, shares int, costBasis float64, profile string) *Position {
	now := time.Now().UTC()
	return &Position{
		ID:         id,
		Symbol:     symbol,
		State:      StateShares,
		Profile:    profile,
		SharesHeld: shares,
		CostBasis:  costBasis,
		History:    make([]TradeEvent, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SellDirection returns the option type the current state permits selling,
// or ErrTradeOpen when a trade is already working.
func (p *Position) SellDirection() (OptionType, error) {
	switch p.State {
	case StateCash:
		return OptionTypePut, nil
	case StateShares:
		return OptionTypeCall, nil
	default:
		return "", fmt.Errorf("position %s: %w (state %s)", p.ID, ErrTradeOpen, p.State)
	}
}

// sellAction maps a trade direction onto its opening action.
func sellAction(direction OptionType) Action {
	if direction == OptionTypePut {
		return ActionSellPut
	}
	return ActionSellCall
}

// RecordTrade opens a trade event against the position. The direction must
// match what the current state permits and the trade must fit capacity:
// puts need strike x contracts x 100 of allocated capital, calls need
// contracts x 100 held shares. Capacity violations fail without mutating
// state.
func (p *Position) RecordTrade(ev TradeEvent) error {
	if !ev.Direction.Valid() {
		return fmt.Errorf("position %s: unrecognized direction %q", p.ID, ev.Direction)
	}
	if ev.Contracts <= 0 {
		return fmt.Errorf("position %s: contracts must be positive, got %d", p.ID, ev.Contracts)
	}

	next, err := NextState(p.State, sellAction(ev.Direction))
	if err != nil {
		return fmt.Errorf("position %s: %w", p.ID, err)
	}

	// Capacity check before any mutation.
	switch ev.Direction {
	case OptionTypePut:
		required := ev.Notional()
		if required > p.CapitalAllocated {
			return fmt.Errorf("position %s: %w: put requires $%.2f secured, allocated $%.2f",
				p.ID, ErrInsufficientCapacity, required, p.CapitalAllocated)
		}
	case OptionTypeCall:
		required := ev.Contracts * SharesPerContract
		if required > p.SharesHeld {
			return fmt.Errorf("position %s: %w: call requires %d shares, holding %d",
				p.ID, ErrInsufficientCapacity, required, p.SharesHeld)
		}
	}

	ev.Outcome = OutcomeOpen
	if ev.OpenedAt.IsZero() {
		ev.OpenedAt = time.Now().UTC()
	}
	p.State = next
	p.OpenTrade = &ev
	p.UpdatedAt = ev.OpenedAt
	return nil
}

// SettleAtExpiry resolves the open trade against the settlement price and
// advances the state machine. Assignment converts secured capital into
// shares at the strike; a call-away liquidates the shares at the strike and
// returns the proceeds to allocated capital.
func (p *Position) SettleAtExpiry(price float64, at time.Time) (TradeOutcome, error) {
	if p.OpenTrade == nil {
		return "", fmt.Errorf("position %s: %w", p.ID, ErrNoOpenTrade)
	}

	trade := p.OpenTrade
	outcome := SettleExpiry(trade.Direction, price, trade.Strike)
	next, err := NextState(p.State, expiryAction(outcome))
	if err != nil {
		return "", fmt.Errorf("position %s: %w", p.ID, err)
	}

	switch outcome {
	case OutcomeAssigned:
		p.SharesHeld = trade.Contracts * SharesPerContract
		p.CostBasis = trade.Strike
		p.CapitalAllocated -= trade.Notional()
	case OutcomeCalledAway:
		p.SharesHeld = 0
		p.CostBasis = 0
		p.CapitalAllocated += trade.Notional()
	}

	p.closeTrade(outcome, at)
	p.State = next
	return outcome, nil
}

// CloseEarly buys back the open trade before expiry, leaving holdings
// untouched.
func (p *Position) CloseEarly(at time.Time) error {
	if p.OpenTrade == nil {
		return fmt.Errorf("position %s: %w", p.ID, ErrNoOpenTrade)
	}
	next, err := NextState(p.State, ActionClosedEarly)
	if err != nil {
		return fmt.Errorf("position %s: %w", p.ID, err)
	}
	p.closeTrade(OutcomeClosedEarly, at)
	p.State = next
	return nil
}

func (p *Position) closeTrade(outcome TradeOutcome, at time.Time) {
	p.OpenTrade.Outcome = outcome
	p.OpenTrade.ClosedAt = at.UTC()
	p.History = append(p.History, *p.OpenTrade)
	p.OpenTrade = nil
	p.UpdatedAt = at.UTC()
}

// Archive marks the position retired. Only legal when no trade is working.
func (p *Position) Archive(at time.Time) error {
	if p.OpenTrade != nil || HasOpenTradeState(p.State) {
		return fmt.Errorf("position %s: cannot archive: %w", p.ID, ErrTradeOpen)
	}
	p.ArchivedAt = at.UTC()
	p.UpdatedAt = at.UTC()
	return nil
}

// IsArchived reports whether the position has been retired.
func (p *Position) IsArchived() bool {
	return !p.ArchivedAt.IsZero()
}

// PremiumCollected sums the premium of all closed trade events.
func (p *Position) PremiumCollected() float64 {
	var total float64
	for i := range p.History {
		total += p.History[i].Premium()
	}
	return total
}

// Validate checks the position's structural invariants.
func (p *Position) Validate() error {
	if !p.State.Valid() {
		return fmt.Errorf("position %s: unknown state %q", p.ID, p.State)
	}
	if p.SharesHeld != 0 && p.SharesHeld%SharesPerContract != 0 {
		return fmt.Errorf("position %s: shares_held %d is not a multiple of %d",
			p.ID, p.SharesHeld, SharesPerContract)
	}
	if p.SharesHeld < 0 {
		return fmt.Errorf("position %s: shares_held cannot be negative (%d)", p.ID, p.SharesHeld)
	}
	if p.CapitalAllocated < 0 {
		return fmt.Errorf("position %s: capital_allocated cannot be negative (%.2f)",
			p.ID, p.CapitalAllocated)
	}
	if HasOpenTradeState(p.State) && p.OpenTrade == nil {
		return fmt.Errorf("position %s: state %s requires an open trade", p.ID, p.State)
	}
	if !HasOpenTradeState(p.State) && p.OpenTrade != nil {
		return fmt.Errorf("position %s: state %s cannot carry an open trade", p.ID, p.State)
	}
	if p.OpenTrade != nil && p.OpenTrade.Outcome != OutcomeOpen {
		return fmt.Errorf("position %s: open trade has terminal outcome %q",
			p.ID, p.OpenTrade.Outcome)
	}
	if (p.State == StateShares || p.State == StateSharesCallOpen) && p.SharesHeld == 0 {
		return fmt.Errorf("position %s: state %s requires held shares", p.ID, p.State)
	}
	return nil
}
