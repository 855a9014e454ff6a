package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/keykeeper/keykeeper/internal/mailcred"
)

var (
	// ErrEmailTaken indicates the email already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials indicates a failed password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotOwner indicates the caller is not the account that owns the mailbox.
	ErrNotOwner = errors.New("mailbox belongs to a different account")
)

// Service manages the account lifecycle and mailbox provisioning.
type Service struct {
	repo       Repository
	mailUsers  MailUserRepository
	deriver    *mailcred.Deriver
	challenges *ChallengeStore
}

// NewService creates a new account service.
func NewService(repo Repository, mailUsers MailUserRepository, deriver *mailcred.Deriver, challenges *ChallengeStore) *Service {
	return &Service{repo: repo, mailUsers: mailUsers, deriver: deriver, challenges: challenges}
}

// RegisterInput captures signup data.
type RegisterInput struct {
	Email          string
	Password       string
	PGPFingerprint string
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Account, error) {
	email := mailcred.NormalizeEmail(input.Email)
	if !strings.Contains(email, "@") {
		return Account{}, errors.New("invalid email address")
	}
	if len(input.Password) < 8 {
		return Account{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return Account{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		ID:             uuid.New().String(),
		Email:          email,
		PasswordHash:   hash,
		PGPFingerprint: input.PGPFingerprint,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Authenticate verifies credentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Account, error) {
	acct, err := s.repo.FindByEmail(ctx, mailcred.NormalizeEmail(creds.Email))
	if err != nil {
		return Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(creds.Password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// IssueChallenge creates a signing challenge for the caller's own email.
func (s *Service) IssueChallenge(ctx context.Context, ownerID, email string) (string, error) {
	email = mailcred.NormalizeEmail(email)
	acct, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if acct.ID != ownerID {
		return "", ErrNotOwner
	}
	return s.challenges.Issue(ctx, email)
}

// ActivationResult reports the mailbox credential produced by activation.
type ActivationResult struct {
	Email    string
	Password string
	Scheme   mailcred.Scheme
}

// ActivateMail derives the mailbox password and stores it for the mail server.
// Only the owning account may activate. With a signature present the challenge
// flow is used (the signature over the consumed challenge is the stable
// secret); otherwise derivation falls back to the account's stored password
// hash. Re-activation with the same secret reproduces the same password, so
// the stored entry never drifts.
func (s *Service) ActivateMail(ctx context.Context, ownerID, email string, signature []byte) (ActivationResult, error) {
	email = mailcred.NormalizeEmail(email)
	acct, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return ActivationResult{}, err
	}
	if acct.ID != ownerID {
		return ActivationResult{}, ErrNotOwner
	}

	password, scheme, err := s.derive(ctx, acct, signature, true)
	if err != nil {
		return ActivationResult{}, err
	}

	if err := s.mailUsers.Upsert(ctx, email, mailcred.DovecotEntry(password)); err != nil {
		return ActivationResult{}, err
	}
	if err := s.repo.SetMailActivated(ctx, acct.ID); err != nil {
		return ActivationResult{}, err
	}

	return ActivationResult{Email: email, Password: password, Scheme: scheme}, nil
}

// MailCredential re-derives the mailbox password for IMAP/SMTP login without
// touching the stored entry. The signature, when present, must be over a
// previously issued challenge the client retained; the derivation itself does
// not depend on the challenge value, only on the signature bytes.
func (s *Service) MailCredential(ctx context.Context, ownerID, email string, signature []byte) (ActivationResult, error) {
	email = mailcred.NormalizeEmail(email)
	acct, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return ActivationResult{}, err
	}
	if acct.ID != ownerID {
		return ActivationResult{}, ErrNotOwner
	}

	password, scheme, err := s.derive(ctx, acct, signature, false)
	if err != nil {
		return ActivationResult{}, err
	}
	return ActivationResult{Email: email, Password: password, Scheme: scheme}, nil
}

func (s *Service) derive(ctx context.Context, acct Account, signature []byte, consumeChallenge bool) (string, mailcred.Scheme, error) {
	if len(signature) > 0 {
		if consumeChallenge {
			if _, err := s.challenges.Consume(ctx, acct.Email); err != nil {
				return "", "", err
			}
		}
		password, err := s.deriver.Derive(signature, acct.Email, mailcred.SchemeSignature)
		if err != nil {
			return "", "", err
		}
		return password, mailcred.SchemeSignature, nil
	}

	password, err := s.deriver.Derive(acct.PasswordHash, acct.Email, mailcred.SchemeHash)
	if err != nil {
		return "", "", err
	}
	return password, mailcred.SchemeHash, nil
}
