package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengePrefix = "mail:challenge:"

// ErrChallengeExpired indicates no outstanding challenge exists for the email
// or it was already consumed.
var ErrChallengeExpired = errors.New("challenge expired or already used")

// ChallengeStore issues single-use derivation challenges with a TTL. A client
// signs the challenge with its PGP key and the detached signature becomes the
// stable secret for mailbox password derivation.
type ChallengeStore struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewChallengeStore builds a Redis-backed challenge store.
func NewChallengeStore(cache *redis.Client, ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{cache: cache, ttl: ttl}
}

// Issue creates and stores a fresh challenge for the email, replacing any
// outstanding one.
func (s *ChallengeStore) Issue(ctx context.Context, email string) (string, error) {
	if s.cache == nil {
		return "", errors.New("challenge store requires redis")
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	challenge := hex.EncodeToString(raw)

	if err := s.cache.Set(ctx, challengePrefix+email, challenge, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return challenge, nil
}

// Consume atomically removes the outstanding challenge for the email and
// returns it. A second consume, or a consume after the TTL, fails.
func (s *ChallengeStore) Consume(ctx context.Context, email string) (string, error) {
	if s.cache == nil {
		return "", ErrChallengeExpired
	}
	challenge, err := s.cache.GetDel(ctx, challengePrefix+email).Result()
	if err == redis.Nil {
		return "", ErrChallengeExpired
	}
	if err != nil {
		return "", fmt.Errorf("consume challenge: %w", err)
	}
	return challenge, nil
}
