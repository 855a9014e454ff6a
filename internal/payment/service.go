package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/keykeeper/keykeeper/internal/chain"
	"github.com/keykeeper/keykeeper/internal/credit"
	"github.com/keykeeper/keykeeper/internal/notification"
)

// Service drives the payment lifecycle: initiate a purchase, poll the chain
// until confirmed, and claim credits exactly once.
type Service struct {
	repo          Repository
	chains        *chain.Registry
	credits       credit.Ledger
	notifier      notification.Notifier
	creditsPerUSD int64
}

// NewService constructs a payment service.
func NewService(repo Repository, chains *chain.Registry, credits credit.Ledger, notifier notification.Notifier, creditsPerUSD int64) *Service {
	return &Service{
		repo:          repo,
		chains:        chains,
		credits:       credits,
		notifier:      notifier,
		creditsPerUSD: creditsPerUSD,
	}
}

// InitiateInput captures a purchase request.
type InitiateInput struct {
	AccountID string
	Chain     chain.Kind
	AmountUSD float64
}

// Initiate converts the USD amount to the chain's smallest unit at the current
// quote and persists a pending payment bound to the chain's payment address.
func (s *Service) Initiate(ctx context.Context, input InitiateInput) (Payment, error) {
	if input.AmountUSD <= 0 {
		return Payment{}, fmt.Errorf("usd amount must be positive")
	}

	adapter, err := s.chains.ForKind(input.Chain)
	if err != nil {
		return Payment{}, err
	}
	if adapter.PaymentAddress() == "" {
		return Payment{}, fmt.Errorf("no payment address configured for %s", input.Chain)
	}

	required, err := adapter.ConvertUSDToToken(ctx, input.AmountUSD)
	if err != nil {
		return Payment{}, err
	}

	p := Payment{
		Token:                 uuid.NewString(),
		AccountID:             input.AccountID,
		Chain:                 adapter.Kind(),
		Symbol:                adapter.Symbol(),
		Address:               adapter.PaymentAddress(),
		RequiredAmount:        required,
		RequiredConfirmations: adapter.RequiredConfirmations(),
		Credits:               int64(math.Round(input.AmountUSD * float64(s.creditsPerUSD))),
		Status:                StatusPending,
		CreatedAt:             time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// Check re-polls the chain for the payment and promotes pending records to
// confirmed once the adapter reports both paid and enough confirmations.
// Chain lookups are not retried; the caller re-polls.
func (s *Service) Check(ctx context.Context, token string) (Payment, chain.Status, error) {
	p, err := s.repo.Get(ctx, token)
	if err != nil {
		return Payment{}, chain.Status{}, err
	}

	adapter, err := s.chains.ForKind(p.Chain)
	if err != nil {
		return Payment{}, chain.Status{}, err
	}

	status, err := adapter.CheckPaymentStatus(ctx, p.Address, p.RequiredAmount)
	if err != nil {
		return Payment{}, chain.Status{}, err
	}

	if status.IsConfirmed && p.Status == StatusPending {
		if err := s.repo.MarkConfirmed(ctx, token); err != nil {
			return Payment{}, chain.Status{}, err
		}
		p.Status = StatusConfirmed
		if s.notifier != nil {
			_ = s.notifier.Send(ctx, notification.Message{
				Kind:        notification.KindPaymentConfirmed,
				Destination: p.AccountID,
				Body:        fmt.Sprintf("Payment %s confirmed on %s", p.Token, p.Chain),
			})
		}
	}

	return p, status, nil
}

// ClaimResult reports the credits issued by a claim.
type ClaimResult struct {
	Token   string
	Credits int64
	Balance int64
}

// Claim transitions a confirmed payment to claimed and grants its credits.
// The conditional status update makes a second claim fail with
// ErrAlreadyClaimed before the ledger is touched, and the ledger posting is
// itself keyed by the payment token, so credits can never be issued twice for
// one token.
func (s *Service) Claim(ctx context.Context, token string) (ClaimResult, error) {
	p, err := s.repo.Get(ctx, token)
	if err != nil {
		return ClaimResult{}, err
	}

	// A claim on a still-pending record gets one fresh poll before rejection.
	if p.Status == StatusPending {
		if p, _, err = s.Check(ctx, token); err != nil {
			return ClaimResult{}, err
		}
	}

	if err := s.repo.MarkClaimed(ctx, token); err != nil {
		return ClaimResult{}, err
	}

	accountCode := credit.AccountCode(p.AccountID)
	if err := s.credits.EnsureAccount(ctx, accountCode); err != nil {
		return ClaimResult{}, err
	}
	res, err := s.credits.Grant(ctx, accountCode, p.Token, p.Credits)
	if err != nil && !errors.Is(err, credit.ErrDuplicateGrant) {
		return ClaimResult{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindCreditsGranted,
			Destination: p.AccountID,
			Body:        fmt.Sprintf("%d credits granted for payment %s", p.Credits, p.Token),
		})
	}

	return ClaimResult{Token: p.Token, Credits: p.Credits, Balance: res.Balance}, nil
}

// Balance reports the account's current credit balance.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	code := credit.AccountCode(accountID)
	if err := s.credits.EnsureAccount(ctx, code); err != nil {
		return 0, err
	}
	return s.credits.Balance(ctx, code)
}
