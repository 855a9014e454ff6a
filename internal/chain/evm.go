package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
)

const (
	ethereumConfirmations = 12
	polygonConfirmations  = 128
	evmDecimals           = 18
)

// EVMAdapter checks payments through an Etherscan-family account API. One
// implementation serves both Ethereum and Polygon; only the endpoint, symbol
// and confirmation threshold differ. Amounts are wei.
type EVMAdapter struct {
	kind          Kind
	symbol        string
	client        *http.Client
	baseURL       string
	apiKey        string
	address       string
	confirmations int64
	prices        pricingSource
}

// NewEthereum builds the Ethereum adapter (12 confirmations).
func NewEthereum(client *http.Client, baseURL, apiKey, address string, prices pricingSource) *EVMAdapter {
	return newEVM(KindEthereum, "eth", ethereumConfirmations, client, baseURL, apiKey, address, prices)
}

// NewPolygon builds the Polygon adapter (128 confirmations, matching the
// chain's reorg-safe depth).
func NewPolygon(client *http.Client, baseURL, apiKey, address string, prices pricingSource) *EVMAdapter {
	return newEVM(KindPolygon, "pol", polygonConfirmations, client, baseURL, apiKey, address, prices)
}

func newEVM(kind Kind, symbol string, confirmations int64, client *http.Client, baseURL, apiKey, address string, prices pricingSource) *EVMAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &EVMAdapter{
		kind:          kind,
		symbol:        symbol,
		client:        client,
		baseURL:       baseURL,
		apiKey:        apiKey,
		address:       address,
		confirmations: confirmations,
		prices:        prices,
	}
}

func (a *EVMAdapter) Kind() Kind                   { return a.kind }
func (a *EVMAdapter) Symbol() string               { return a.symbol }
func (a *EVMAdapter) PaymentAddress() string       { return a.address }
func (a *EVMAdapter) RequiredConfirmations() int64 { return a.confirmations }

// ConvertUSDToToken converts a USD amount to wei at the current quote.
func (a *EVMAdapter) ConvertUSDToToken(ctx context.Context, usd float64) (*big.Int, error) {
	quote, err := a.prices.Quote(ctx, a.symbol)
	if err != nil {
		return nil, err
	}
	return usdToSmallestUnit(usd, quote, evmDecimals)
}

type etherscanTx struct {
	Hash          string `json:"hash"`
	To            string `json:"to"`
	Value         string `json:"value"`
	Confirmations string `json:"confirmations"`
	IsError       string `json:"isError"`
}

type etherscanResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Result  []etherscanTx `json:"result"`
}

// CheckPaymentStatus sums successful inbound transfers to the address using
// the explorer's txlist action. The explorer reports confirmations directly.
func (a *EVMAdapter) CheckPaymentStatus(ctx context.Context, address string, required *big.Int) (Status, error) {
	query := url.Values{}
	query.Set("module", "account")
	query.Set("action", "txlist")
	query.Set("address", address)
	query.Set("sort", "desc")
	if a.apiKey != "" {
		query.Set("apikey", a.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return Status{}, fmt.Errorf("%s transactions: %w: %v", a.kind, ErrPaymentLookup, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("%s transactions: %w: %v", a.kind, ErrPaymentLookup, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("%s transactions: %w: unexpected status %d", a.kind, ErrPaymentLookup, resp.StatusCode)
	}

	var payload etherscanResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Status{}, fmt.Errorf("%s transactions: %w: %v", a.kind, ErrPaymentLookup, err)
	}

	// The explorer reports status "0" both for real failures and for an
	// address with no history; an empty result set is the latter.
	if payload.Status != "1" && len(payload.Result) > 0 {
		return Status{}, fmt.Errorf("%s transactions: %w: %s", a.kind, ErrPaymentLookup, payload.Message)
	}

	var txs []Transaction
	for _, entry := range payload.Result {
		if !strings.EqualFold(entry.To, address) || entry.IsError == "1" {
			continue
		}
		amount, ok := new(big.Int).SetString(entry.Value, 10)
		if !ok || amount.Sign() <= 0 {
			continue
		}
		confirmations, ok := new(big.Int).SetString(entry.Confirmations, 10)
		if !ok {
			confirmations = big.NewInt(0)
		}
		txs = append(txs, Transaction{
			Hash:          entry.Hash,
			Amount:        amount,
			Confirmations: confirmations.Int64(),
		})
	}

	return summarize(required, a.confirmations, txs), nil
}
