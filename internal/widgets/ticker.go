package widgets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultSymbols is the ticker used when none are configured
var DefaultSymbols = []string{"BTC", "ETH", "BNB", "LTC", "DOGE", "NEO", "ADA", "SOL", "XRP", "TRX"}

// TickerClient reads cryptocurrency prices
type TickerClient struct {
	backend
}

func NewTickerClient(url string, httpClient *http.Client) *TickerClient {
	return &TickerClient{backend: newBackend(url, httpClient)}
}

// Price is one ticker entry
type Price struct {
	Symbol string
	USD    float64
}

// Label formats the price the way the ticker displays it
func (p Price) Label() string {
	return fmt.Sprintf("$%.2f", p.USD)
}

type tickerResponse struct {
	Prices map[string]float64 `json:"prices"`
}

// Prices returns quotes in the order of symbols. Symbols the backend did not
// quote are skipped.
func (c *TickerClient) Prices(ctx context.Context, symbols []string) ([]Price, error) {
	if len(symbols) == 0 {
		symbols = DefaultSymbols
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid ticker url: %w", err)
	}
	q := u.Query()
	q.Set("symbols", strings.Join(symbols, ","))
	u.RawQuery = q.Encode()

	var out tickerResponse
	if err := c.do(ctx, http.MethodGet, u.String(), nil, &out); err != nil {
		return nil, err
	}
	if out.Prices == nil {
		return nil, fmt.Errorf("no prices found in response")
	}

	prices := make([]Price, 0, len(symbols))
	for _, s := range symbols {
		if usd, ok := out.Prices[s]; ok {
			prices = append(prices, Price{Symbol: s, USD: usd})
		}
	}
	return prices, nil
}
