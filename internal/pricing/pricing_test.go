package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(map[string]float64{"btc": 50_000})

	usd, err := src.Quote(context.Background(), "btc")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if usd != 50_000 {
		t.Fatalf("expected 50000, got %f", usd)
	}

	if _, err := src.Quote(context.Background(), "doge"); !errors.Is(err, ErrUnknownSymbol) {
		t.Fatalf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("ids") != "ethereum" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"ethereum":{"usd":3200.5}}`)
	}))
	t.Cleanup(srv.Close)

	src := NewHTTPSource(srv.Client(), srv.URL)
	usd, err := src.Quote(context.Background(), "eth")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if usd != 3200.5 {
		t.Fatalf("expected 3200.5, got %f", usd)
	}
	if calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls)
	}
}

type countingSource struct {
	calls int
	usd   float64
}

func (s *countingSource) Quote(_ context.Context, _ string) (float64, error) {
	s.calls++
	return s.usd, nil
}

func TestCachedSource(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	upstream := &countingSource{usd: 100}
	src := NewCachedSource(upstream, cache, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		usd, err := src.Quote(ctx, "sol")
		if err != nil {
			t.Fatalf("quote %d: %v", i, err)
		}
		if usd != 100 {
			t.Fatalf("expected 100, got %f", usd)
		}
	}
	if upstream.calls != 1 {
		t.Fatalf("expected 1 upstream call through the cache, got %d", upstream.calls)
	}

	// Expired entries refetch.
	mr.FastForward(2 * time.Minute)
	if _, err := src.Quote(ctx, "sol"); err != nil {
		t.Fatalf("quote after expiry: %v", err)
	}
	if upstream.calls != 2 {
		t.Fatalf("expected refetch after TTL, got %d calls", upstream.calls)
	}
}

func TestCachedSourceFailOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })
	mr.Close() // cache is down from the start

	upstream := &countingSource{usd: 42}
	src := NewCachedSource(upstream, cache, time.Minute)

	usd, err := src.Quote(context.Background(), "btc")
	if err != nil {
		t.Fatalf("quote with dead cache: %v", err)
	}
	if usd != 42 {
		t.Fatalf("expected 42, got %f", usd)
	}
}
