package models

import "errors"

// Domain errors raised by position lifecycle operations. Callers are
// expected to match these with errors.Is and handle them explicitly;
// nothing in this package auto-corrects an illegal request.
var (
	// ErrInvalidTransition indicates an action not legal in the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrInsufficientCapacity indicates the trade exceeds allocated capital
	// (puts) or held shares (calls).
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrTradeOpen indicates an operation that requires no working trade.
	ErrTradeOpen = errors.New("position has an open trade")
	// ErrNoOpenTrade indicates an operation that requires a working trade.
	ErrNoOpenTrade = errors.New("position has no open trade")
)
