package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "KeyKeeper"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultAccessTTL      = 15 * time.Minute
	defaultRefreshTTL     = 720 * time.Hour
	defaultChallengeTTL   = 5 * time.Minute
	defaultPriceTTL       = 60 * time.Second
	defaultHTTPTimeout    = 15 * time.Second
	defaultCreditsPerUSD  = 100
)

// ChainConfig holds per-blockchain explorer endpoints and payment addresses.
type ChainConfig struct {
	BitcoinAPIURL   string
	BitcoinAddress  string
	EthereumAPIURL  string
	EthereumAPIKey  string
	EthereumAddress string
	PolygonAPIURL   string
	PolygonAPIKey   string
	PolygonAddress  string
	SolanaRPCURL    string
	SolanaAddress   string
	HTTPTimeout     time.Duration
}

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	DatabaseURL     string
	RedisURL        string
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	DerivationSalt  string
	ChallengeTTL    time.Duration
	PriceAPIURL     string
	PriceTTL        time.Duration
	CreditsPerUSD   int64
	Chain           ChainConfig
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		JWTSecret:       os.Getenv("JWT_SECRET"),
		RefreshSecret:   os.Getenv("REFRESH_SECRET"),
		AccessTokenTTL:  defaultAccessTTL,
		RefreshTokenTTL: defaultRefreshTTL,
		DerivationSalt:  os.Getenv("DERIVATION_SALT"),
		ChallengeTTL:    defaultChallengeTTL,
		PriceAPIURL:     getEnv("PRICE_API_URL", "https://api.coingecko.com/api/v3/simple/price"),
		PriceTTL:        defaultPriceTTL,
		CreditsPerUSD:   defaultCreditsPerUSD,
		Chain: ChainConfig{
			BitcoinAPIURL:   getEnv("BITCOIN_API_URL", "https://mempool.space/api"),
			BitcoinAddress:  os.Getenv("BITCOIN_PAYMENT_ADDRESS"),
			EthereumAPIURL:  getEnv("ETHEREUM_API_URL", "https://api.etherscan.io/api"),
			EthereumAPIKey:  os.Getenv("ETHEREUM_API_KEY"),
			EthereumAddress: os.Getenv("ETHEREUM_PAYMENT_ADDRESS"),
			PolygonAPIURL:   getEnv("POLYGON_API_URL", "https://api.polygonscan.com/api"),
			PolygonAPIKey:   os.Getenv("POLYGON_API_KEY"),
			PolygonAddress:  os.Getenv("POLYGON_PAYMENT_ADDRESS"),
			SolanaRPCURL:    getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
			SolanaAddress:   os.Getenv("SOLANA_PAYMENT_ADDRESS"),
			HTTPTimeout:     defaultHTTPTimeout,
		},
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv("IDEMPOTENCY_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
		}
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv("ACCESS_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("REFRESH_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REFRESH_TOKEN_TTL: %w", err)
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("CHALLENGE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CHALLENGE_TTL: %w", err)
		}
		cfg.ChallengeTTL = d
	}

	if v := os.Getenv("PRICE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PRICE_TTL: %w", err)
		}
		cfg.PriceTTL = d
	}

	if v := os.Getenv("CREDITS_PER_USD"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid CREDITS_PER_USD: %q", v)
		}
		cfg.CreditsPerUSD = n
	}

	// Dev runs against in-memory backends when the URLs are absent; every
	// other environment needs real Postgres and Redis.
	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.JWTSecret
	}
	if cfg.DerivationSalt == "" {
		return Config{}, fmt.Errorf("DERIVATION_SALT must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a development-like environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
