package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type PokeAPIConfig struct {
	BaseURL string        `env:"POKEAPI_BASE_URL" envDefault:"https://pokeapi.co/api/v2"`
	Timeout time.Duration `env:"POKEAPI_TIMEOUT" envDefault:"10s"`
	RPS     float64       `env:"POKEAPI_RPS" envDefault:"20"`
}

type CacheConfig struct {
	StatTTL   time.Duration `env:"STAT_CACHE_TTL" envDefault:"24h"`
	StatSweep time.Duration `env:"STAT_CACHE_SWEEP" envDefault:"1h"`
	UserTTL   time.Duration `env:"USER_CACHE_TTL" envDefault:"5m"`
	UserSweep time.Duration `env:"USER_CACHE_SWEEP" envDefault:"60s"`
	AbsentTTL time.Duration `env:"ABSENT_CACHE_TTL" envDefault:"10m"`
}

type DBPoolConfig struct {
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE" envDefault:"10m"`
}

type APIConfig struct {
	Addr         string        `env:"POKECLICKER_API_ADDR" envDefault:":8080"`
	Port         string        `env:"PORT"`
	DatabaseURL  string        `env:"DATABASE_URL"`
	JWTSecret    string        `env:"JWT_SECRET"`
	JWTTTL       time.Duration `env:"JWT_TTL" envDefault:"168h"`
	BcryptCost   int           `env:"BCRYPT_COST" envDefault:"10"`
	OTelEndpoint string        `env:"POKECLICKER_OTEL_ENDPOINT"`
	DBPool       DBPoolConfig
	PokeAPI      PokeAPIConfig
	Cache        CacheConfig
}

type WorkerConfig struct {
	DatabaseURL  string `env:"DATABASE_URL"`
	Schedule     string `env:"SEED_SCHEDULE" envDefault:"@daily"`
	MaxID        int    `env:"SEED_MAX_ID" envDefault:"1025"`
	Batch        int    `env:"SEED_BATCH" envDefault:"50"`
	Concurrency  int    `env:"SEED_CONCURRENCY" envDefault:"8"`
	RunOnce      bool   `env:"WORKER_RUN_ONCE" envDefault:"false"`
	OTelEndpoint string `env:"POKECLICKER_OTEL_ENDPOINT"`
	DBPool       DBPoolConfig
	PokeAPI      PokeAPIConfig
	Cache        CacheConfig
}

type CLIConfig struct {
	APIBaseURL string `env:"PK_API_BASE_URL" envDefault:"http://localhost:8080"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if port := strings.TrimSpace(cfg.Port); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return cfg, fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.MaxID < 1 {
		return cfg, fmt.Errorf("SEED_MAX_ID must be >= 1")
	}
	if cfg.Batch < 1 {
		cfg.Batch = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := env.Parse(&cfg); err != nil {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	return cfg
}
