// USD to asset conversion with a short-lived rate cache.
package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ratesTTL bounds how stale a cached quote may be. Donations are not
// arbitrage; a few minutes of drift is fine.
const ratesTTL = 5 * time.Minute

// RateSource fetches provider quotes.
type RateSource interface {
	GetExchangeRates(ctx context.Context) ([]ExchangeRate, error)
}

// Converter turns USD amounts into crypto asset amounts using cached
// provider quotes. Safe for concurrent use.
type Converter struct {
	src RateSource

	mu      sync.Mutex
	rates   []ExchangeRate
	fetched time.Time
}

// NewConverter builds a Converter over src.
func NewConverter(src RateSource) *Converter {
	return &Converter{src: src}
}

// FromUSD converts a USD amount into the given asset, rounded to 8 decimal
// places. Assets quoted in USD as "asset→USD" are inverted.
func (c *Converter) FromUSD(ctx context.Context, usd decimal.Decimal, asset string) (decimal.Decimal, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "USD" || asset == "USDT" {
		return usd.Round(2), nil
	}

	rates, err := c.current(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, r := range rates {
		if !r.Valid || r.Rate.IsZero() {
			continue
		}
		if strings.EqualFold(r.Source, asset) && strings.EqualFold(r.Target, "USD") {
			return usd.Div(r.Rate).Round(8), nil
		}
	}
	return decimal.Zero, fmt.Errorf("no exchange rate for %s", asset)
}

func (c *Converter) current(ctx context.Context) ([]ExchangeRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rates != nil && time.Since(c.fetched) < ratesTTL {
		return c.rates, nil
	}
	rates, err := c.src.GetExchangeRates(ctx)
	if err != nil {
		// Serve the stale cache over failing the flow outright.
		if c.rates != nil {
			return c.rates, nil
		}
		return nil, fmt.Errorf("fetch exchange rates: %w", err)
	}
	c.rates = rates
	c.fetched = time.Now()
	return c.rates, nil
}
