package credit

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientCredits occurs when an account lacks the credits to cover
	// a requested spend.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrDuplicateGrant indicates the provided reference was already posted and
	// therefore the operation should be treated as idempotent.
	ErrDuplicateGrant = errors.New("duplicate grant")
)

const (
	// TreasuryAccountCode is the ledger account credits are granted from.
	TreasuryAccountCode = "treasury:credits"
	// RevenueAccountCode is the ledger account spent credits settle into.
	RevenueAccountCode = "revenue:credits"

	kindGrant = "grant"
	kindSpend = "spend"
)

// PostingResult captures the outcome of a ledger posting.
type PostingResult struct {
	PostingID string
	Balance   int64
}

// Ledger defines the contract implemented by credit ledger backends.
// Grants and spends are balanced double-entry postings keyed by a caller
// reference; reposting the same reference never moves credits twice.
type Ledger interface {
	EnsureAccount(ctx context.Context, code string) error
	Balance(ctx context.Context, code string) (int64, error)
	Grant(ctx context.Context, accountCode, reference string, amount int64) (PostingResult, error)
	Spend(ctx context.Context, accountCode, reference string, amount int64) (PostingResult, error)
}

// AccountCode derives the ledger account code for a user account id.
func AccountCode(accountID string) string {
	return "account:" + accountID
}
