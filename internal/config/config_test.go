package config

import (
	"testing"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DERIVATION_SALT", "test-salt")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
}

func TestLoadDevWithoutBackends(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "dev")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("dev load without backend URLs: %v", err)
	}
	if !cfg.IsDev() {
		t.Fatalf("expected dev environment, got %q", cfg.AppEnv)
	}
	if cfg.DatabaseURL != "" || cfg.RedisURL != "" {
		t.Fatal("expected empty backend URLs")
	}
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL in production")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost:5432/keykeeper")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without REDIS_URL in production")
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	if _, err := Load(); err != nil {
		t.Fatalf("production load with backends: %v", err)
	}
}

func TestLoadRequiresDerivationSalt(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("APP_ENV", "dev")
	t.Setenv("DERIVATION_SALT", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DERIVATION_SALT")
	}
}
