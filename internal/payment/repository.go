package payment

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates no payment matches the token.
	ErrNotFound = errors.New("payment not found")
	// ErrAlreadyClaimed indicates the payment token was claimed before.
	// Claiming is the sole mutation that grants credits, and it happens once.
	ErrAlreadyClaimed = errors.New("payment already claimed")
	// ErrNotConfirmed indicates a claim on a payment that is not yet confirmed.
	ErrNotConfirmed = errors.New("payment not confirmed")
)

// Repository persists payment records. Status transitions are single-row
// conditional updates so concurrent pollers and claimers cannot skip states
// or claim twice.
type Repository interface {
	Create(ctx context.Context, p Payment) error
	Get(ctx context.Context, token string) (Payment, error)
	// MarkConfirmed transitions pending -> confirmed. A payment already past
	// pending is left untouched without error.
	MarkConfirmed(ctx context.Context, token string) error
	// MarkClaimed transitions confirmed -> claimed exactly once.
	MarkClaimed(ctx context.Context, token string) error
}
