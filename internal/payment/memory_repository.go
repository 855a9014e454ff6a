package payment

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.Mutex
	payments map[string]Payment
}

// NewMemoryRepository builds an in-memory payment store for testing.
func NewMemoryRepository() Repository {
	return &memoryRepository{payments: make(map[string]Payment)}
}

func (r *memoryRepository) Create(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.Token] = p
	return nil
}

func (r *memoryRepository) Get(_ context.Context, token string) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[token]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) MarkConfirmed(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[token]
	if !ok {
		return ErrNotFound
	}
	if p.Status != StatusPending {
		return nil
	}
	now := time.Now().UTC()
	p.Status = StatusConfirmed
	p.ConfirmedAt = &now
	r.payments[token] = p
	return nil
}

func (r *memoryRepository) MarkClaimed(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[token]
	if !ok {
		return ErrNotFound
	}
	switch p.Status {
	case StatusClaimed:
		return ErrAlreadyClaimed
	case StatusPending:
		return ErrNotConfirmed
	}
	now := time.Now().UTC()
	p.Status = StatusClaimed
	p.ClaimedAt = &now
	r.payments[token] = p
	return nil
}
