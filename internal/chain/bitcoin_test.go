package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
)

func bitcoinTestServer(t *testing.T, tip int64, txsJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "%d", tip)
	})
	mux.HandleFunc("/address/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, txsJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestBitcoinCheckPaymentStatus(t *testing.T) {
	const address = "bc1qtest"
	txs := `[
        {"txid":"t1","status":{"confirmed":true,"block_height":800},
         "vout":[{"scriptpubkey_address":"bc1qtest","value":700000},{"scriptpubkey_address":"bc1qother","value":123}]},
        {"txid":"t2","status":{"confirmed":true,"block_height":805},
         "vout":[{"scriptpubkey_address":"bc1qtest","value":260000}]}
    ]`
	srv := bitcoinTestServer(t, 806, txs)

	adapter := NewBitcoin(srv.Client(), srv.URL, address, nil)
	status, err := adapter.CheckPaymentStatus(context.Background(), address, big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	if status.TotalReceived.Cmp(big.NewInt(960_000)) != 0 {
		t.Fatalf("expected 960000 sats, got %s", status.TotalReceived)
	}
	if !status.IsPaid {
		t.Fatal("960000 of 1000000 should be paid within tolerance")
	}
	// t1 has 7 confirmations, t2 has 2; aggregate takes the minimum.
	if status.Confirmations != 2 {
		t.Fatalf("expected 2 confirmations, got %d", status.Confirmations)
	}
	if !status.IsConfirmed {
		t.Fatal("expected confirmed at the 2-confirmation threshold")
	}
	if len(status.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(status.Transactions))
	}
}

func TestBitcoinNoTransactions(t *testing.T) {
	srv := bitcoinTestServer(t, 806, `[]`)

	adapter := NewBitcoin(srv.Client(), srv.URL, "bc1qtest", nil)
	status, err := adapter.CheckPaymentStatus(context.Background(), "bc1qtest", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if status.IsPaid || status.IsConfirmed || status.TotalReceived.Sign() != 0 {
		t.Fatalf("expected zero-valued status, got %+v", status)
	}
}

func TestBitcoinUnconfirmedMempoolTx(t *testing.T) {
	txs := `[{"txid":"t1","status":{"confirmed":false,"block_height":0},
        "vout":[{"scriptpubkey_address":"bc1qtest","value":1000000}]}]`
	srv := bitcoinTestServer(t, 806, txs)

	adapter := NewBitcoin(srv.Client(), srv.URL, "bc1qtest", nil)
	status, err := adapter.CheckPaymentStatus(context.Background(), "bc1qtest", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !status.IsPaid {
		t.Fatal("mempool transaction still counts toward paid")
	}
	if status.IsConfirmed {
		t.Fatal("unconfirmed transaction must not confirm the payment")
	}
}

func TestBitcoinLookupFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	adapter := NewBitcoin(srv.Client(), srv.URL, "bc1qtest", nil)
	_, err := adapter.CheckPaymentStatus(context.Background(), "bc1qtest", big.NewInt(1))
	if !errors.Is(err, ErrPaymentLookup) {
		t.Fatalf("expected ErrPaymentLookup, got %v", err)
	}
}

func TestBitcoinConvertUSD(t *testing.T) {
	adapter := NewBitcoin(nil, "http://example.invalid", "bc1qtest", staticQuote{"btc": 50_000})
	units, err := adapter.ConvertUSDToToken(context.Background(), 5)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// 5 USD at 50k = 0.0001 BTC = 10000 sats.
	if units.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("expected 10000 sats, got %s", units)
	}
}

// staticQuote is a minimal in-test price source.
type staticQuote map[string]float64

func (q staticQuote) Quote(_ context.Context, symbol string) (float64, error) {
	usd, ok := q[symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", symbol)
	}
	return usd, nil
}
