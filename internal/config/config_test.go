package config

import (
	"testing"
	"time"
)

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pokeclicker")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.JWTTTL != 168*time.Hour || cfg.BcryptCost != 10 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Cache.StatTTL != 24*time.Hour || cfg.Cache.UserSweep != time.Minute || cfg.Cache.AbsentTTL != 10*time.Minute {
		t.Fatalf("unexpected cache defaults %+v", cfg.Cache)
	}
	if cfg.PokeAPI.BaseURL != "https://pokeapi.co/api/v2" || cfg.PokeAPI.RPS != 20 {
		t.Fatalf("unexpected pokeapi defaults %+v", cfg.PokeAPI)
	}
}

func TestLoadAPIFromEnvPortOverridesAddr(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pokeclicker")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9000")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("got addr %q", cfg.Addr)
	}
}

func TestLoadAPIFromEnvRequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pokeclicker")
	t.Setenv("JWT_SECRET", "")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected missing JWT_SECRET to fail")
	}
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")
	if _, err := LoadAPIFromEnv(); err == nil {
		t.Fatalf("expected missing DATABASE_URL to fail")
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/pokeclicker")
	t.Setenv("SEED_BATCH", "0")
	t.Setenv("WORKER_RUN_ONCE", "true")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Batch != 1 || !cfg.RunOnce || cfg.MaxID != 1025 || cfg.Schedule != "@daily" {
		t.Fatalf("unexpected worker config %+v", cfg)
	}
	if cfg.Concurrency != 8 || cfg.DBPool.MaxConns != 20 || cfg.DBPool.MaxConnIdleTime != 10*time.Minute {
		t.Fatalf("unexpected worker defaults %+v", cfg)
	}
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("PK_API_BASE_URL", "https://pk.example.com/")
	if got := LoadCLIFromEnv().APIBaseURL; got != "https://pk.example.com" {
		t.Fatalf("got %q", got)
	}
}
