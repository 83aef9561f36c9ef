package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cbailey/wheelhouse/internal/models"
)

const expirationLayout = "2006-01-02"

// APIError represents a provider API error with status code and body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierClient implements Client against the Tradier market-data API.
// Only the read-only endpoints are used; this system never places orders.
type TradierClient struct {
	client  *http.Client
	apiKey  string
	baseURL string
	sandbox bool
}

var _ Client = (*TradierClient)(nil)

// NewTradierClient creates a Tradier market-data client. An empty baseURL
// selects the production or sandbox endpoint from the sandbox flag.
func NewTradierClient(apiKey, baseURL string, sandbox bool) *TradierClient {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	return &TradierClient{
		client:  &http.Client{Timeout: 10 * time.Second},
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		sandbox: sandbox,
	}
}

// WithHTTPClient overrides the HTTP client (tests, custom transport).
func (t *TradierClient) WithHTTPClient(c *http.Client) *TradierClient {
	if c != nil {
		t.client = c
	}
	return t
}

// singleOrArray handles Tradier returning a bare object where one element
// matched and an array otherwise.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`"null"`)) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[wireQuote] `json:"quote"`
	} `json:"quotes"`
}

type wireQuote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Close  float64 `json:"close"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
}

type expirationsResponse struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[wireOption] `json:"option"`
	} `json:"options"`
}

type wireGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	MidIV float64 `json:"mid_iv"`
}

type wireOption struct {
	Greeks         *wireGreeks `json:"greeks,omitempty"`
	Symbol         string      `json:"symbol"`
	Underlying     string      `json:"underlying"`
	OptionType     string      `json:"option_type"`
	ExpirationDate string      `json:"expiration_date"`
	Strike         float64     `json:"strike"`
	Bid            float64     `json:"bid"`
	Ask            float64     `json:"ask"`
	Last           float64     `json:"last"`
	Volume         int64       `json:"volume"`
	OpenInterest   int64       `json:"open_interest"`
}

// GetQuote returns the underlying's current quote snapshot.
func (t *TradierClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")

	var resp quotesResponse
	if err := t.get(ctx, "/markets/quotes?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("%w: no quote for %s", ErrNoData, symbol)
	}

	q := resp.Quotes.Quote[0]
	return &models.Quote{
		Symbol: q.Symbol,
		Last:   q.Last,
		Close:  q.Close,
		Bid:    q.Bid,
		Ask:    q.Ask,
		Open:   q.Open,
		High:   q.High,
		Low:    q.Low,
	}, nil
}

// GetExpirations returns listed option expirations for a symbol, ascending.
func (t *TradierClient) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")

	var resp expirationsResponse
	if err := t.get(ctx, "/markets/options/expirations?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, len(resp.Expirations.Date))
	for _, d := range resp.Expirations.Date {
		exp, err := time.Parse(expirationLayout, d)
		if err != nil {
			continue
		}
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// GetOptionChain returns every contract for one expiration, with Greeks.
func (t *TradierClient) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) ([]models.Contract, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration.Format(expirationLayout))
	params.Set("greeks", "true")

	var resp chainResponse
	if err := t.get(ctx, "/markets/options/chains?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	out := make([]models.Contract, 0, len(resp.Options.Option))
	for _, w := range resp.Options.Option {
		exp, err := time.Parse(expirationLayout, w.ExpirationDate)
		if err != nil {
			exp = expiration
		}
		c := models.Contract{
			Symbol:       w.Symbol,
			Underlying:   w.Underlying,
			OptionType:   models.OptionType(w.OptionType),
			Expiration:   exp,
			Strike:       w.Strike,
			Bid:          w.Bid,
			Ask:          w.Ask,
			Last:         w.Last,
			Volume:       w.Volume,
			OpenInterest: w.OpenInterest,
		}
		if w.Greeks != nil {
			c.Greeks = &models.Greeks{
				Delta: w.Greeks.Delta,
				Gamma: w.Greeks.Gamma,
				Theta: w.Greeks.Theta,
				Vega:  w.Greeks.Vega,
				MidIV: w.Greeks.MidIV,
			}
			c.IV = w.Greeks.MidIV
		}
		out = append(out, c)
	}
	return out, nil
}

func (t *TradierClient) get(ctx context.Context, path string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "wheelhouse/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// 64KB cap to avoid huge error payloads
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return &APIError{Status: resp.StatusCode, Body: "failed to read error body"}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", path, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
