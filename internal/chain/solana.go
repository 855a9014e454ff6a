package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
)

const (
	solanaConfirmations = 32
	solanaDecimals      = 9
	solanaSignatureCap  = 50
)

// SolanaAdapter checks payments over JSON-RPC. The received amount per
// transaction is the lamport balance delta of the payment address; slot depth
// below the current slot stands in for confirmations.
type SolanaAdapter struct {
	client        *http.Client
	rpcURL        string
	address       string
	confirmations int64
	prices        pricingSource
}

// NewSolana builds the Solana adapter.
func NewSolana(client *http.Client, rpcURL, address string, prices pricingSource) *SolanaAdapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &SolanaAdapter{
		client:        client,
		rpcURL:        rpcURL,
		address:       address,
		confirmations: solanaConfirmations,
		prices:        prices,
	}
}

func (a *SolanaAdapter) Kind() Kind                   { return KindSolana }
func (a *SolanaAdapter) Symbol() string               { return "sol" }
func (a *SolanaAdapter) PaymentAddress() string       { return a.address }
func (a *SolanaAdapter) RequiredConfirmations() int64 { return a.confirmations }

// ConvertUSDToToken converts a USD amount to lamports at the current quote.
func (a *SolanaAdapter) ConvertUSDToToken(ctx context.Context, usd float64) (*big.Int, error) {
	quote, err := a.prices.Quote(ctx, a.Symbol())
	if err != nil {
		return nil, err
	}
	return usdToSmallestUnit(usd, quote, solanaDecimals)
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type solanaSignature struct {
	Signature string          `json:"signature"`
	Slot      int64           `json:"slot"`
	Err       json.RawMessage `json:"err"`
}

type solanaTransaction struct {
	Slot int64 `json:"slot"`
	Meta struct {
		Err          json.RawMessage `json:"err"`
		PreBalances  []int64         `json:"preBalances"`
		PostBalances []int64         `json:"postBalances"`
	} `json:"meta"`
	Transaction struct {
		Message struct {
			AccountKeys []string `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// CheckPaymentStatus walks recent signatures for the address and sums positive
// lamport deltas from finalized transactions.
func (a *SolanaAdapter) CheckPaymentStatus(ctx context.Context, address string, required *big.Int) (Status, error) {
	var currentSlot int64
	if err := a.call(ctx, "getSlot", []any{}, &currentSlot); err != nil {
		return Status{}, fmt.Errorf("solana slot: %w: %v", ErrPaymentLookup, err)
	}

	var signatures []solanaSignature
	params := []any{address, map[string]any{"limit": solanaSignatureCap}}
	if err := a.call(ctx, "getSignaturesForAddress", params, &signatures); err != nil {
		return Status{}, fmt.Errorf("solana signatures: %w: %v", ErrPaymentLookup, err)
	}

	var txs []Transaction
	for _, sig := range signatures {
		if len(sig.Err) > 0 && string(sig.Err) != "null" {
			continue
		}

		var tx solanaTransaction
		txParams := []any{sig.Signature, map[string]any{"encoding": "json", "maxSupportedTransactionVersion": 0}}
		if err := a.call(ctx, "getTransaction", txParams, &tx); err != nil {
			return Status{}, fmt.Errorf("solana transaction %s: %w: %v", sig.Signature, ErrPaymentLookup, err)
		}
		if len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null" {
			continue
		}

		delta := lamportDelta(tx, address)
		if delta <= 0 {
			continue
		}

		confirmations := currentSlot - sig.Slot
		if confirmations < 0 {
			confirmations = 0
		}
		txs = append(txs, Transaction{
			Hash:          sig.Signature,
			Amount:        big.NewInt(delta),
			Confirmations: confirmations,
		})
	}

	return summarize(required, a.confirmations, txs), nil
}

func lamportDelta(tx solanaTransaction, address string) int64 {
	keys := tx.Transaction.Message.AccountKeys
	for i, key := range keys {
		if key != address {
			continue
		}
		if i < len(tx.Meta.PreBalances) && i < len(tx.Meta.PostBalances) {
			return tx.Meta.PostBalances[i] - tx.Meta.PreBalances[i]
		}
	}
	return 0
}

func (a *SolanaAdapter) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if out != nil && len(envelope.Result) > 0 {
		return json.Unmarshal(envelope.Result, out)
	}
	return nil
}
