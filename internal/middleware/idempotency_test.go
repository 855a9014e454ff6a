package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keykeeper/keykeeper/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *atomic.Int64, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	app := fiber.New()
	logger := logging.Discard()
	app.Use(Idempotency(cache, time.Minute, logger))

	var calls atomic.Int64
	handler := func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "path": c.Path()})
	}
	app.Post("/payments", handler)
	app.Post("/accounts", handler)

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &calls, cleanup
}

func postJSON(t *testing.T, app *fiber.App, path, idemKey string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if idemKey != "" {
		req.Header.Set(idempotencyKeyHeader, idemKey)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, string(body)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	first, _ := postJSON(t, app, "/payments", "")
	second, _ := postJSON(t, app, "/payments", "")

	if first != fiber.StatusCreated || second != fiber.StatusCreated {
		t.Fatalf("expected both %d got %d and %d", fiber.StatusCreated, first, second)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", got)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	firstStatus, firstBody := postJSON(t, app, "/payments", "abc123")
	if firstStatus != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, firstStatus)
	}

	secondStatus, secondBody := postJSON(t, app, "/payments", "abc123")
	if secondStatus != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, secondStatus)
	}

	if secondBody != firstBody {
		t.Fatalf("expected cached payload %s got %s", firstBody, secondBody)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected handler to run once, ran %d times", got)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(secondBody), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeyScopedToPath(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	paymentsStatus, paymentsBody := postJSON(t, app, "/payments", "shared-key")
	accountsStatus, accountsBody := postJSON(t, app, "/accounts", "shared-key")

	if paymentsStatus != fiber.StatusCreated || accountsStatus != fiber.StatusCreated {
		t.Fatalf("expected both %d got %d and %d", fiber.StatusCreated, paymentsStatus, accountsStatus)
	}
	if paymentsBody == accountsBody {
		t.Fatalf("reused key across paths replayed a foreign response: %s", accountsBody)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", got)
	}
}

func TestIdempotencyInFlightRequestConflicts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/payments", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	// A concurrent request holds the reservation for this key.
	mr.Set(idempotencyPrefix+"POST:/payments:inflight", inProgressMarker)

	req := httptest.NewRequest(fiber.MethodPost, "/payments", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(idempotencyKeyHeader, "inflight")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected %d while reservation held, got %d", fiber.StatusConflict, resp.StatusCode)
	}
}
