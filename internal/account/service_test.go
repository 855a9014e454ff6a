package account

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keykeeper/keykeeper/internal/mailcred"
)

func newTestService(t *testing.T) (*Service, MailUserRepository, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	mailUsers := NewMemoryMailUsers()
	svc := NewService(
		NewMemoryRepository(),
		mailUsers,
		mailcred.NewDeriver("test-salt"),
		NewChallengeStore(cache, time.Minute),
	)
	return svc, mailUsers, mr
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, RegisterInput{Email: "User@KeyKeeper.io", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acct.Email != "user@keykeeper.io" {
		t.Fatalf("expected normalized email, got %q", acct.Email)
	}

	if _, err := svc.Register(ctx, RegisterInput{Email: "user@keykeeper.io", Password: "correct-horse"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Email: "user@keykeeper.io", Password: "correct-horse"}); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Email: "user@keykeeper.io", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestActivateMailWithPasswordHash(t *testing.T) {
	svc, mailUsers, _ := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, RegisterInput{Email: "user@keykeeper.io", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := svc.ActivateMail(ctx, acct.ID, "user@keykeeper.io", nil)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if first.Scheme != mailcred.SchemeHash {
		t.Fatalf("expected hash scheme, got %s", first.Scheme)
	}
	if len(first.Password) != mailcred.PasswordLength {
		t.Fatalf("expected %d-char password, got %d", mailcred.PasswordLength, len(first.Password))
	}

	entry, err := mailUsers.Lookup(ctx, "user@keykeeper.io")
	if err != nil {
		t.Fatalf("lookup mail user: %v", err)
	}
	if entry != "{PLAIN}"+first.Password {
		t.Fatalf("unexpected stored entry %q", entry)
	}

	// Re-activation reproduces the same credential.
	second, err := svc.ActivateMail(ctx, acct.ID, "user@keykeeper.io", nil)
	if err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if second.Password != first.Password {
		t.Fatal("re-activation changed the derived password")
	}
}

func TestActivateMailWithSignature(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, RegisterInput{Email: "user@keykeeper.io", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.IssueChallenge(ctx, acct.ID, "user@keykeeper.io"); err != nil {
		t.Fatalf("issue challenge: %v", err)
	}

	signature := []byte("detached signature bytes over the challenge")
	result, err := svc.ActivateMail(ctx, acct.ID, "user@keykeeper.io", signature)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if result.Scheme != mailcred.SchemeSignature {
		t.Fatalf("expected signature scheme, got %s", result.Scheme)
	}

	// The challenge is single use; a second signed activation needs a new one.
	if _, err := svc.ActivateMail(ctx, acct.ID, "user@keykeeper.io", signature); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}

	// Credential lookup re-derives without a challenge and matches.
	cred, err := svc.MailCredential(ctx, acct.ID, "user@keykeeper.io", signature)
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	if cred.Password != result.Password {
		t.Fatal("credential lookup diverged from activation")
	}
}

func TestIssueChallengeUnknownAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.IssueChallenge(context.Background(), "any-caller", "ghost@keykeeper.io"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestChallengeExpiry(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, RegisterInput{Email: "user@keykeeper.io", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.IssueChallenge(ctx, acct.ID, "user@keykeeper.io"); err != nil {
		t.Fatalf("issue challenge: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := svc.ActivateMail(ctx, acct.ID, "user@keykeeper.io", []byte("sig")); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired after TTL, got %v", err)
	}
}

func TestMailOperationsRejectForeignCaller(t *testing.T) {
	svc, mailUsers, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterInput{Email: "victim@keykeeper.io", Password: "correct-horse"}); err != nil {
		t.Fatalf("register victim: %v", err)
	}
	attacker, err := svc.Register(ctx, RegisterInput{Email: "attacker@keykeeper.io", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("register attacker: %v", err)
	}

	if _, err := svc.ActivateMail(ctx, attacker.ID, "victim@keykeeper.io", nil); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner from activate, got %v", err)
	}
	if _, err := svc.MailCredential(ctx, attacker.ID, "victim@keykeeper.io", nil); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner from credential, got %v", err)
	}
	if _, err := svc.IssueChallenge(ctx, attacker.ID, "victim@keykeeper.io"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner from challenge, got %v", err)
	}

	// No mailbox entry may exist after the rejected activation.
	if _, err := mailUsers.Lookup(ctx, "victim@keykeeper.io"); err == nil {
		t.Fatal("rejected activation still provisioned a mailbox entry")
	}
}
