package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/cbailey/wheelhouse/internal/models"
)

// CircuitBreakerClient wraps a Client with circuit breaker protection so a
// misbehaving provider fails fast instead of stalling every scan.
type CircuitBreakerClient struct {
	client  Client
	breaker *gobreaker.CircuitBreaker
}

var _ Client = (*CircuitBreakerClient)(nil)

// BreakerSettings configures circuit breaker behavior.
type BreakerSettings struct {
	MaxRequests  uint32        // max requests allowed half-open
	Interval     time.Duration // counter reset interval
	Timeout      time.Duration // open-circuit duration
	MinRequests  uint32        // minimum requests before tripping
	FailureRatio float64       // failure ratio threshold
}

// NewCircuitBreakerClient wraps client with sensible defaults.
func NewCircuitBreakerClient(client Client, logger *logrus.Logger) *CircuitBreakerClient {
	return NewCircuitBreakerClientWithSettings(client, logger, BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerClientWithSettings wraps client with custom settings.
func NewCircuitBreakerClientWithSettings(client Client, logger *logrus.Logger, settings BreakerSettings) *CircuitBreakerClient {
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
	}
	if logger != nil {
		gbSettings.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		}
	}

	return &CircuitBreakerClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetQuote wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return execBreaker(c.breaker, func() (*models.Quote, error) { return c.client.GetQuote(ctx, symbol) })
}

// GetExpirations wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	return execBreaker(c.breaker, func() ([]time.Time, error) { return c.client.GetExpirations(ctx, symbol) })
}

// GetOptionChain wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) ([]models.Contract, error) {
	return execBreaker(c.breaker, func() ([]models.Contract, error) {
		return c.client.GetOptionChain(ctx, symbol, expiration)
	})
}
