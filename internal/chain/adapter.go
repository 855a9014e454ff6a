package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// Kind identifies a supported blockchain.
type Kind string

const (
	KindBitcoin  Kind = "bitcoin"
	KindEthereum Kind = "ethereum"
	KindPolygon  Kind = "polygon"
	KindSolana   Kind = "solana"
)

var (
	// ErrPaymentLookup indicates the upstream chain API failed. Lookups are not
	// retried here; the caller is expected to re-poll.
	ErrPaymentLookup = errors.New("payment lookup failed")

	// ErrUnsupportedChain indicates no adapter is registered for the kind.
	ErrUnsupportedChain = errors.New("unsupported blockchain")
)

// ParseKind validates a chain identifier from client input.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBitcoin, KindEthereum, KindPolygon, KindSolana:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChain, s)
	}
}

// Transaction is a single inbound transfer to the payment address.
type Transaction struct {
	Hash          string
	Amount        *big.Int
	Confirmations int64
}

// Status reports how much a payment address has received and whether that
// satisfies a required amount, in the chain's smallest unit.
type Status struct {
	TotalReceived *big.Int
	Confirmations int64
	IsPaid        bool
	IsConfirmed   bool
	Transactions  []Transaction
}

// Adapter normalizes "did address X receive at least Y with Z confirmations"
// across chains. Implementations are stateless; every call queries the chain's
// read API directly.
type Adapter interface {
	Kind() Kind
	Symbol() string
	PaymentAddress() string
	RequiredConfirmations() int64
	ConvertUSDToToken(ctx context.Context, usd float64) (*big.Int, error)
	CheckPaymentStatus(ctx context.Context, address string, required *big.Int) (Status, error)
}

// Underpayment tolerance: received >= 95% of required still counts as paid.
const paidTolerancePercent = 5

func paidWithinTolerance(received, required *big.Int) bool {
	if required == nil || required.Sign() <= 0 {
		return received != nil && received.Sign() > 0
	}
	if received == nil {
		return false
	}
	lhs := new(big.Int).Mul(received, big.NewInt(100))
	rhs := new(big.Int).Mul(required, big.NewInt(100-paidTolerancePercent))
	return lhs.Cmp(rhs) >= 0
}

// summarize folds per-transaction amounts into a Status. Confirmations of the
// aggregate is the minimum across counted transactions so a payment split over
// several transfers is only confirmed once the youngest one is. No transactions
// yields a zero-valued, non-paid status rather than an error.
func summarize(required *big.Int, requiredConfirmations int64, txs []Transaction) Status {
	status := Status{TotalReceived: big.NewInt(0)}
	if len(txs) == 0 {
		return status
	}

	minConfirmations := txs[0].Confirmations
	for _, tx := range txs {
		status.TotalReceived.Add(status.TotalReceived, tx.Amount)
		if tx.Confirmations < minConfirmations {
			minConfirmations = tx.Confirmations
		}
	}

	status.Transactions = txs
	status.Confirmations = minConfirmations
	status.IsPaid = paidWithinTolerance(status.TotalReceived, required)
	status.IsConfirmed = status.IsPaid && minConfirmations >= requiredConfirmations
	return status
}

func usdToSmallestUnit(usd, usdPerToken float64, decimals int) (*big.Int, error) {
	if usd <= 0 {
		return nil, fmt.Errorf("usd amount must be positive")
	}
	if usdPerToken <= 0 {
		return nil, fmt.Errorf("non-positive quote: %f", usdPerToken)
	}
	tokens := new(big.Float).Quo(big.NewFloat(usd), big.NewFloat(usdPerToken))
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	units, _ := new(big.Float).Mul(tokens, scale).Int(nil)
	return units, nil
}
