package credit

import (
	"context"
	"fmt"
	"sync"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]int64
	postings map[string]PostingResult
}

// NewInMemory creates a concurrency-safe in-memory credit ledger useful for
// unit tests and dev mode.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances: make(map[string]int64),
		postings: make(map[string]PostingResult),
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[code]; !exists {
		l.balances[code] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, code string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[code]
	if !exists {
		return 0, fmt.Errorf("account %s not found", code)
	}
	return balance, nil
}

func (l *inMemoryLedger) Grant(_ context.Context, accountCode, reference string, amount int64) (PostingResult, error) {
	if amount <= 0 {
		return PostingResult{}, fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := kindGrant + ":" + reference
	if res, exists := l.postings[key]; exists {
		return res, ErrDuplicateGrant
	}

	balance, ok := l.balances[accountCode]
	if !ok {
		return PostingResult{}, fmt.Errorf("account %s not found", accountCode)
	}

	// The treasury side may go negative; it is the issuing counterparty.
	balance += amount
	l.balances[accountCode] = balance
	l.balances[TreasuryAccountCode] -= amount

	res := PostingResult{PostingID: key, Balance: balance}
	l.postings[key] = res
	return res, nil
}

func (l *inMemoryLedger) Spend(_ context.Context, accountCode, reference string, amount int64) (PostingResult, error) {
	if amount <= 0 {
		return PostingResult{}, fmt.Errorf("amount must be positive")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := kindSpend + ":" + reference
	if res, exists := l.postings[key]; exists {
		return res, ErrDuplicateGrant
	}

	balance, ok := l.balances[accountCode]
	if !ok {
		return PostingResult{}, fmt.Errorf("account %s not found", accountCode)
	}
	if balance < amount {
		return PostingResult{}, ErrInsufficientCredits
	}

	balance -= amount
	l.balances[accountCode] = balance
	l.balances[RevenueAccountCode] += amount

	res := PostingResult{PostingID: key, Balance: balance}
	l.postings[key] = res
	return res, nil
}
