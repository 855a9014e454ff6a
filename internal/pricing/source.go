package pricing

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownSymbol indicates no quote exists for the requested token symbol.
var ErrUnknownSymbol = errors.New("unknown token symbol")

// Source quotes the USD price of one whole token.
type Source interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// StaticSource serves quotes from a fixed table. Used in tests and as a dev
// fallback when no live price API is configured.
type StaticSource struct {
	rates map[string]float64
}

// NewStaticSource builds a fixed-rate quote source.
func NewStaticSource(rates map[string]float64) *StaticSource {
	copied := make(map[string]float64, len(rates))
	for symbol, usd := range rates {
		copied[symbol] = usd
	}
	return &StaticSource{rates: copied}
}

// Quote returns the configured USD rate for the symbol.
func (s *StaticSource) Quote(_ context.Context, symbol string) (float64, error) {
	usd, ok := s.rates[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	return usd, nil
}
