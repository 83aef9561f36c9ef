// Package marketdata provides clients for quotes, option chains, and
// earnings calendars. The decision engine only consumes the interfaces
// here; failures at this boundary are logged and degrade to "data
// unavailable" rather than propagating into the engine.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/cbailey/wheelhouse/internal/models"
)

// ErrNoData indicates the provider returned nothing usable for the request.
var ErrNoData = errors.New("no market data available")

// Client is the primary market-data contract.
//
// Implementations must be safe for concurrent use; the portfolio scanner
// fans out across symbols from multiple goroutines.
type Client interface {
	// GetQuote returns the underlying's current quote snapshot.
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// GetExpirations returns the listed option expirations for a symbol,
	// ascending.
	GetExpirations(ctx context.Context, symbol string) ([]time.Time, error)

	// GetOptionChain returns every contract for one expiration.
	GetOptionChain(ctx context.Context, symbol string, expiration time.Time) ([]models.Contract, error)
}

// PriceFetcher is the secondary price source the monitor falls back to
// when the primary client cannot produce a price.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// EarningsSource supplies earnings dates for the hard earnings-week gate.
// Optional collaborator: a nil source means earnings are unknown and the
// gate is skipped.
type EarningsSource interface {
	GetEarningsDates(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error)
}
