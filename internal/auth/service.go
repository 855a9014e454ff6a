package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keykeeper/keykeeper/internal/account"
	"github.com/keykeeper/keykeeper/internal/config"
)

// ErrInvalidToken indicates a token that fails verification or whose version
// was invalidated by logout.
var ErrInvalidToken = errors.New("invalid token")

// Service issues and verifies JWT access/refresh tokens.
type Service struct {
	cfg      config.Config
	accounts account.Repository
}

// NewService creates a new auth service.
func NewService(cfg config.Config, accounts account.Repository) *Service {
	return &Service{cfg: cfg, accounts: accounts}
}

// TokenPair bundles the issued tokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims carries the verified identity extracted from a token.
type Claims struct {
	AccountID    string
	TokenVersion int
}

// Login issues an access/refresh token pair for the authenticated account.
func (s *Service) Login(acct account.Account) (TokenPair, error) {
	access, err := s.sign(acct, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(acct, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *Service) sign(acct account.Account, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": acct.ID,
		"ver": acct.TokenVersion,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// VerifyAccess parses an access token and checks its version against the
// account record.
func (s *Service) VerifyAccess(ctx context.Context, tokenStr string) (Claims, error) {
	return s.verify(ctx, tokenStr, s.cfg.JWTSecret)
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.verify(ctx, refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}

	acct, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil {
		return "", 0, ErrInvalidToken
	}

	access, err := s.sign(acct, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return access, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version so outstanding tokens become invalid.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	return s.accounts.UpdateTokenVersion(ctx, acct.ID, acct.TokenVersion+1)
}

func (s *Service) verify(ctx context.Context, tokenStr, secret string) (Claims, error) {
	parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	sub, _ := mapClaims["sub"].(string)
	verFloat, _ := mapClaims["ver"].(float64)
	claims := Claims{AccountID: sub, TokenVersion: int(verFloat)}

	acct, err := s.accounts.FindByID(ctx, claims.AccountID)
	if err != nil || acct.TokenVersion != claims.TokenVersion {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
