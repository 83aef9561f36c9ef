package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const earningsDateLayout = "2006-01-02"

// EarningsCalendar fetches confirmed earnings dates from a calendar API.
// The endpoint is expected to serve
// GET {base}/calendar/earnings?symbol=X&from=Y&to=Z returning
// {"earnings":[{"symbol":"X","date":"2026-01-29"}, ...]}.
type EarningsCalendar struct {
	http *resty.Client
}

var _ EarningsSource = (*EarningsCalendar)(nil)

// NewEarningsCalendar creates a calendar client for the given base URL.
// The token is sent as a bearer credential when non-empty.
func NewEarningsCalendar(baseURL, token string) *EarningsCalendar {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &EarningsCalendar{http: client}
}

type earningsResponse struct {
	Earnings []struct {
		Symbol string `json:"symbol"`
		Date   string `json:"date"`
	} `json:"earnings"`
}

// GetEarningsDates returns confirmed earnings dates for symbol within
// [from, to], ascending.
func (e *EarningsCalendar) GetEarningsDates(ctx context.Context, symbol string, from, to time.Time) ([]time.Time, error) {
	var out earningsResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"from":   from.Format(earningsDateLayout),
			"to":     to.Format(earningsDateLayout),
		}).
		SetResult(&out).
		Get("/calendar/earnings")
	if err != nil {
		return nil, fmt.Errorf("earnings calendar for %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Body: resp.String()}
	}

	dates := make([]time.Time, 0, len(out.Earnings))
	for _, entry := range out.Earnings {
		d, err := time.Parse(earningsDateLayout, entry.Date)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}
