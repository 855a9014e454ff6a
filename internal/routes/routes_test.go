package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keykeeper/keykeeper/internal/config"
	"github.com/keykeeper/keykeeper/internal/logging"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	cfg := config.Config{
		AppName:         "keykeeper-test",
		AppEnv:          "dev",
		JWTSecret:       "test-jwt-secret",
		RefreshSecret:   "test-refresh-secret",
		DerivationSalt:  "test-salt",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		ChallengeTTL:    time.Minute,
		IdempotencyTTL:  time.Minute,
		CreditsPerUSD:   100,
	}

	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, payload any) (int, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()

	decoded := map[string]any{}
	_ = json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded
}

func registerAndLogin(t *testing.T, app *fiber.App, email string) string {
	t.Helper()
	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", "", fiber.Map{
		"email": email, "password": "correct-horse",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("register %s: status %d", email, status)
	}
	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"email": email, "password": "correct-horse",
	})
	if status != fiber.StatusOK {
		t.Fatalf("login %s: status %d", email, status)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("login %s: no access token in %v", email, body)
	}
	return token
}

func TestMailRoutesRequireAuthentication(t *testing.T) {
	app := newTestApp(t)

	status, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/accounts", "", fiber.Map{
		"email": "victim@keykeeper.io", "password": "correct-horse",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("register: status %d", status)
	}

	for _, path := range []string{
		"/api/v1/mail/challenge",
		"/api/v1/mail/activate",
		"/api/v1/mail/credentials",
	} {
		status, body := doJSON(t, app, fiber.MethodPost, path, "", fiber.Map{
			"email": "victim@keykeeper.io",
		})
		if status != fiber.StatusUnauthorized {
			t.Fatalf("%s without token: expected %d got %d (%v)", path, fiber.StatusUnauthorized, status, body)
		}
		if _, leaked := body["password"]; leaked {
			t.Fatalf("%s without token leaked a password", path)
		}
	}
}

func TestMailActivateRejectsForeignToken(t *testing.T) {
	app := newTestApp(t)

	registerAndLogin(t, app, "victim@keykeeper.io")
	attackerToken := registerAndLogin(t, app, "attacker@keykeeper.io")

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/mail/activate", attackerToken, fiber.Map{
		"email": "victim@keykeeper.io",
	})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected %d got %d (%v)", fiber.StatusForbidden, status, body)
	}
	if _, leaked := body["password"]; leaked {
		t.Fatal("foreign activation leaked a password")
	}
}

func TestMailActivateForOwner(t *testing.T) {
	app := newTestApp(t)

	token := registerAndLogin(t, app, "user@keykeeper.io")

	status, body := doJSON(t, app, fiber.MethodPost, "/api/v1/mail/activate", token, fiber.Map{
		"email": "user@keykeeper.io",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("activate: expected %d got %d (%v)", fiber.StatusCreated, status, body)
	}
	password, _ := body["password"].(string)
	if len(password) != 32 {
		t.Fatalf("expected 32-char password, got %q", password)
	}

	status, cred := doJSON(t, app, fiber.MethodPost, "/api/v1/mail/credentials", token, fiber.Map{
		"email": "user@keykeeper.io",
	})
	if status != fiber.StatusOK {
		t.Fatalf("credentials: expected %d got %d (%v)", fiber.StatusOK, status, cred)
	}
	if cred["password"] != password {
		t.Fatal("credential lookup diverged from activation")
	}
}
