package marketdata

import (
	"context"
	"fmt"

	"github.com/piquette/finance-go/quote"
)

// YahooFetcher is the secondary price source, backed by Yahoo Finance.
// It only answers price lookups; chains and expirations stay with the
// primary client.
type YahooFetcher struct{}

var _ PriceFetcher = (*YahooFetcher)(nil)

// NewYahooFetcher creates the Yahoo-backed fallback fetcher.
func NewYahooFetcher() *YahooFetcher {
	return &YahooFetcher{}
}

// FetchPrice returns the regular-market price for a symbol, falling back
// to the previous close when the market price is unavailable.
func (y *YahooFetcher) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q, err := quote.Get(symbol)
	if err != nil {
		return 0, fmt.Errorf("yahoo quote for %s: %w", symbol, err)
	}
	if q == nil {
		return 0, fmt.Errorf("%w: yahoo returned no quote for %s", ErrNoData, symbol)
	}
	if q.RegularMarketPrice > 0 {
		return q.RegularMarketPrice, nil
	}
	if q.RegularMarketPreviousClose > 0 {
		return q.RegularMarketPreviousClose, nil
	}
	return 0, fmt.Errorf("%w: yahoo quote for %s has no usable price", ErrNoData, symbol)
}
