// Package storage persists wheel positions and their trade history.
package storage

import (
	"github.com/cbailey/wheelhouse/internal/models"
)

// Interface defines the contract for position persistence.
//
// Implementations must be safe for concurrent use - callers can assume
// all methods are goroutine-safe. The provided JSONStorage uses a
// sync.RWMutex to serialize access, which also gives the state machine
// its single-writer-per-position discipline: a position is checked and
// mutated under one lock hold.
type Interface interface {
	// CreatePosition adds a new position. Fails with
	// ErrDuplicatePosition when the ID is already present.
	CreatePosition(pos *models.Position) error
	// GetPosition returns a copy of the position with the given ID.
	GetPosition(id string) (*models.Position, error)
	// UpdatePosition applies fn to the stored position under the write
	// lock and persists the result; fn returning an error aborts without
	// mutation.
	UpdatePosition(id string, fn func(*models.Position) error) error
	// ArchivePosition retires a position; refuses while a trade is open.
	ArchivePosition(id string) error

	// ListOpen returns copies of all non-archived positions.
	ListOpen() ([]*models.Position, error)
	// ListAll returns copies of every position, archived included.
	ListAll() ([]*models.Position, error)

	// Summary aggregates premium and outcome counts across all positions.
	Summary() (*Summary, error)

	Save() error
	Load() error
}

// Summary aggregates realized results across the book.
type Summary struct {
	Positions        int     `json:"positions"`
	OpenTrades       int     `json:"open_trades"`
	ClosedTrades     int     `json:"closed_trades"`
	ExpiredWorthless int     `json:"expired_worthless"`
	Assigned         int     `json:"assigned"`
	CalledAway       int     `json:"called_away"`
	ClosedEarly      int     `json:"closed_early"`
	PremiumCollected float64 `json:"premium_collected"`
}

// NewStorage creates the default storage implementation (JSON-based).
func NewStorage(filepath string) (Interface, error) {
	return NewJSONStorage(filepath)
}

var _ Interface = (*JSONStorage)(nil)
