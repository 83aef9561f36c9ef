package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/cbailey/wheelhouse/internal/models"
)

// MockClient is a deterministic in-memory Client, PriceFetcher, and
// EarningsSource for tests. Safe for concurrent use.
type MockClient struct {
	mu sync.RWMutex

	Quotes      map[string]*models.Quote
	Chains      map[string][]models.Contract // keyed by symbol|YYYY-MM-DD
	Expirations map[string][]time.Time
	Earnings    map[string][]time.Time

	QuoteErr       error
	ChainErr       error
	ExpirationsErr error
	EarningsErr    error

	QuoteCalls int
	ChainCalls int
}

var (
	_ Client         = (*MockClient)(nil)
	_ EarningsSource = (*MockClient)(nil)
	_ PriceFetcher   = (*MockClient)(nil)
)

// NewMockClient creates an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{
		Quotes:      make(map[string]*models.Quote),
		Chains:      make(map[string][]models.Contract),
		Expirations: make(map[string][]time.Time),
		Earnings:    make(map[string][]time.Time),
	}
}

func chainKey(symbol string, expiration time.Time) string {
	return symbol + "|" + expiration.Format(expirationLayout)
}

// SetChain registers a chain for one symbol and expiration.
func (m *MockClient) SetChain(symbol string, expiration time.Time, contracts []models.Contract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Chains[chainKey(symbol, expiration)] = contracts
	found := false
	for _, e := range m.Expirations[symbol] {
		if e.Equal(expiration) {
			found = true
			break
		}
	}
	if !found {
		m.Expirations[symbol] = append(m.Expirations[symbol], expiration)
	}
}

// GetQuote returns the canned quote for symbol.
func (m *MockClient) GetQuote(_ context.Context, symbol string) (*models.Quote, error) {
	m.mu.Lock()
	m.QuoteCalls++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.QuoteErr != nil {
		return nil, m.QuoteErr
	}
	q, ok := m.Quotes[symbol]
	if !ok {
		return nil, ErrNoData
	}
	copied := *q
	return &copied, nil
}

// GetExpirations returns the canned expirations for symbol.
func (m *MockClient) GetExpirations(_ context.Context, symbol string) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ExpirationsErr != nil {
		return nil, m.ExpirationsErr
	}
	return append([]time.Time(nil), m.Expirations[symbol]...), nil
}

// GetOptionChain returns the canned chain for symbol and expiration.
func (m *MockClient) GetOptionChain(_ context.Context, symbol string, expiration time.Time) ([]models.Contract, error) {
	m.mu.Lock()
	m.ChainCalls++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ChainErr != nil {
		return nil, m.ChainErr
	}
	return append([]models.Contract(nil), m.Chains[chainKey(symbol, expiration)]...), nil
}

// GetEarningsDates returns canned earnings dates within [from, to].
func (m *MockClient) GetEarningsDates(_ context.Context, symbol string, from, to time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.EarningsErr != nil {
		return nil, m.EarningsErr
	}
	var out []time.Time
	for _, d := range m.Earnings[symbol] {
		if !d.Before(from) && !d.After(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

// FetchPrice implements PriceFetcher from the canned quote.
func (m *MockClient) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	q, err := m.GetQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	price := q.Price()
	if price <= 0 {
		return 0, ErrNoData
	}
	return price, nil
}
