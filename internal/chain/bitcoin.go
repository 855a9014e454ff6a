package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
)

const bitcoinConfirmations = 2

// BitcoinAdapter checks payments against a mempool.space-style REST API.
// Amounts are satoshis.
type BitcoinAdapter struct {
	client        *http.Client
	baseURL       string
	address       string
	confirmations int64
	prices        pricingSource
}

// pricingSource is the slice of pricing.Source the adapters need. Declared
// locally to keep the chain package free of an import cycle hazard.
type pricingSource interface {
	Quote(ctx context.Context, symbol string) (float64, error)
}

// NewBitcoin builds the Bitcoin adapter.
func NewBitcoin(client *http.Client, baseURL, address string, prices pricingSource) *BitcoinAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &BitcoinAdapter{
		client:        client,
		baseURL:       strings.TrimRight(baseURL, "/"),
		address:       address,
		confirmations: bitcoinConfirmations,
		prices:        prices,
	}
}

func (a *BitcoinAdapter) Kind() Kind                   { return KindBitcoin }
func (a *BitcoinAdapter) Symbol() string               { return "btc" }
func (a *BitcoinAdapter) PaymentAddress() string       { return a.address }
func (a *BitcoinAdapter) RequiredConfirmations() int64 { return a.confirmations }

// ConvertUSDToToken converts a USD amount to satoshis at the current quote.
func (a *BitcoinAdapter) ConvertUSDToToken(ctx context.Context, usd float64) (*big.Int, error) {
	quote, err := a.prices.Quote(ctx, a.Symbol())
	if err != nil {
		return nil, err
	}
	return usdToSmallestUnit(usd, quote, 8)
}

type mempoolTx struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
	Vout []struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"`
	} `json:"vout"`
}

// CheckPaymentStatus sums inbound outputs to the address and computes
// confirmations from the chain tip.
func (a *BitcoinAdapter) CheckPaymentStatus(ctx context.Context, address string, required *big.Int) (Status, error) {
	tip, err := a.tipHeight(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("bitcoin tip height: %w: %v", ErrPaymentLookup, err)
	}

	var entries []mempoolTx
	if err := a.getJSON(ctx, "/address/"+address+"/txs", &entries); err != nil {
		return Status{}, fmt.Errorf("bitcoin transactions: %w: %v", ErrPaymentLookup, err)
	}

	var txs []Transaction
	for _, entry := range entries {
		received := int64(0)
		for _, vout := range entry.Vout {
			if vout.ScriptPubKeyAddress == address {
				received += vout.Value
			}
		}
		if received == 0 {
			continue
		}

		var confirmations int64
		if entry.Status.Confirmed && entry.Status.BlockHeight > 0 {
			confirmations = tip - entry.Status.BlockHeight + 1
		}
		txs = append(txs, Transaction{
			Hash:          entry.TxID,
			Amount:        big.NewInt(received),
			Confirmations: confirmations,
		})
	}

	return summarize(required, a.confirmations, txs), nil
}

func (a *BitcoinAdapter) tipHeight(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
}

func (a *BitcoinAdapter) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
