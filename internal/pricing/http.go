package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// coinIDs maps token symbols to the identifiers the price API understands.
var coinIDs = map[string]string{
	"btc": "bitcoin",
	"eth": "ethereum",
	"pol": "matic-network",
	"sol": "solana",
}

// HTTPSource quotes prices from a CoinGecko-style simple/price endpoint.
type HTTPSource struct {
	client  *http.Client
	baseURL string
}

// NewHTTPSource builds a price source backed by the given endpoint.
func NewHTTPSource(client *http.Client, baseURL string) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client, baseURL: baseURL}
}

// Quote fetches the current USD price for one whole token.
func (s *HTTPSource) Quote(ctx context.Context, symbol string) (float64, error) {
	id, ok := coinIDs[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}

	query := url.Values{}
	query.Set("ids", id)
	query.Set("vs_currencies", "usd")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch price for %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var payload map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}

	usd, ok := payload[id]["usd"]
	if !ok || usd <= 0 {
		return 0, fmt.Errorf("no usd quote for %s", symbol)
	}
	return usd, nil
}
