package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/keykeeper/keykeeper/internal/account"
	"github.com/keykeeper/keykeeper/internal/auth"
	"github.com/keykeeper/keykeeper/internal/chain"
	"github.com/keykeeper/keykeeper/internal/config"
	"github.com/keykeeper/keykeeper/internal/credit"
	"github.com/keykeeper/keykeeper/internal/mailcred"
	"github.com/keykeeper/keykeeper/internal/middleware"
	"github.com/keykeeper/keykeeper/internal/notification"
	"github.com/keykeeper/keykeeper/internal/payment"
	"github.com/keykeeper/keykeeper/internal/pricing"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce backend presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health
	RegisterHealthRoutes(app, d)

	// Storage backends
	var creditLedger credit.Ledger
	if d.DB != nil {
		creditLedger = credit.NewPostgresLedger(d.DB)
	} else {
		creditLedger = credit.NewInMemory()
	}
	for _, code := range []string{credit.TreasuryAccountCode, credit.RevenueAccountCode} {
		if err := creditLedger.EnsureAccount(context.Background(), code); err != nil {
			return err
		}
	}

	var accountRepo account.Repository
	var mailUsers account.MailUserRepository
	var paymentRepo payment.Repository
	if d.DB != nil {
		accountRepo = account.NewPostgresRepository(d.DB)
		mailUsers = account.NewPostgresMailUsers(d.DB)
		paymentRepo = payment.NewPostgresRepository(d.DB)
	} else {
		accountRepo = account.NewMemoryRepository()
		mailUsers = account.NewMemoryMailUsers()
		paymentRepo = payment.NewMemoryRepository()
	}

	// Services and handlers
	deriver := mailcred.NewDeriver(d.Cfg.DerivationSalt)
	challenges := account.NewChallengeStore(d.Cache, d.Cfg.ChallengeTTL)
	accountSvc := account.NewService(accountRepo, mailUsers, deriver, challenges)
	accountHandler := account.NewHandler(accountSvc)

	authSvc := auth.NewService(d.Cfg, accountRepo)
	authHandler := auth.NewHandler(accountSvc, authSvc)

	httpClient := &http.Client{Timeout: d.Cfg.Chain.HTTPTimeout}
	var prices pricing.Source = pricing.NewHTTPSource(httpClient, d.Cfg.PriceAPIURL)
	if d.Cache != nil {
		prices = pricing.NewCachedSource(prices, d.Cache, d.Cfg.PriceTTL)
	}

	cc := d.Cfg.Chain
	registry := chain.NewRegistry(
		chain.NewBitcoin(httpClient, cc.BitcoinAPIURL, cc.BitcoinAddress, prices),
		chain.NewEthereum(httpClient, cc.EthereumAPIURL, cc.EthereumAPIKey, cc.EthereumAddress, prices),
		chain.NewPolygon(httpClient, cc.PolygonAPIURL, cc.PolygonAPIKey, cc.PolygonAddress, prices),
		chain.NewSolana(httpClient, cc.SolanaRPCURL, cc.SolanaAddress, prices),
	)

	notifier := notification.NewLoggerNotifier(d.Logger)
	paymentSvc := payment.NewService(paymentRepo, registry, creditLedger, notifier, d.Cfg.CreditsPerUSD)
	paymentHandler := payment.NewHandler(paymentSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterAccountRoutes(api, accountHandler)
	RegisterAuthRoutes(api, authHandler)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authSvc))
	challengeLimiter := middleware.ChallengeRateLimit(d.Cache, 5)
	RegisterMailRoutes(protected, accountHandler, challengeLimiter)
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/me", func(c *fiber.Ctx) error {
		accountID, _ := c.Locals("account_id").(string)
		if accountID == "" {
			return c.SendStatus(http.StatusUnauthorized)
		}
		acct, err := accountRepo.FindByID(c.UserContext(), accountID)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "account not found")
		}
		return c.JSON(fiber.Map{
			"account_id":      acct.ID,
			"email":           acct.Email,
			"pgp_fingerprint": acct.PGPFingerprint,
			"mail_activated":  acct.MailActivated,
			"token_version":   acct.TokenVersion,
			"created_at":      acct.CreatedAt,
		})
	})
	RegisterPaymentRoutes(protected, paymentHandler)

	return nil
}
