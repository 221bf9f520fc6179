package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	GatewayWebhook = "webhook"
	GatewayMock    = "mock"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Gateway   GatewayConfig
	Reconcile ReconcileConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	Driver string
	URL    string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type GatewayConfig struct {
	Mode       string
	URL        string
	StatusURL  string
	Token      string
	RatePerSec float64
}

type ReconcileConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

type LogConfig struct {
	Level slog.Level
}

type MetricsConfig struct {
	Path string
}

// LoadAll reads the whole configuration from the environment and reports
// every problem at once.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		},
		Gateway: GatewayConfig{
			Mode:      strings.ToLower(getEnv("GATEWAY_MODE", GatewayWebhook)),
			URL:       os.Getenv("GATEWAY_URL"),
			StatusURL: os.Getenv("GATEWAY_STATUS_URL"),
			Token:     os.Getenv("GATEWAY_TOKEN"),
		},
		Metrics: MetricsConfig{
			Path: getEnv("METRICS_PATH", "/metrics"),
		},
	}

	var err error
	cfg.Database.URL, err = requireEnv("DATABASE_URL")
	collect(err)

	cfg.Gateway.RatePerSec, err = getEnvFloat("GATEWAY_RATE_PER_SEC", 1)
	collect(err)

	interval, err := getEnvInt("RECONCILE_INTERVAL_SECONDS", 300)
	collect(err)
	cfg.Reconcile.Interval = time.Duration(interval) * time.Second

	stale, err := getEnvInt("STALE_SESSION_HOURS", 6)
	collect(err)
	cfg.Reconcile.StaleAfter = time.Duration(stale) * time.Hour

	cfg.Log.Level, err = parseLevel(getEnv("LOG_LEVEL", "info"))
	collect(err)

	cfg.Redis, err = loadRedisConfig()
	collect(err)

	if len(errs) == 0 {
		errs = append(errs, validate(cfg)...)
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 172800)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, joinErrors(errs)
}

func validate(cfg *Config) []error {
	var errs []error

	switch cfg.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be %s or %s, got %q", DriverPostgres, DriverSQLite, cfg.Database.Driver))
	}

	switch cfg.Gateway.Mode {
	case GatewayWebhook:
		if cfg.Gateway.URL == "" {
			errs = append(errs, errors.New("missing required env var: GATEWAY_URL (required when GATEWAY_MODE=webhook)"))
		}
	case GatewayMock:
	default:
		errs = append(errs, fmt.Errorf("GATEWAY_MODE must be %s or %s, got %q", GatewayWebhook, GatewayMock, cfg.Gateway.Mode))
	}

	if cfg.Gateway.RatePerSec < 0 {
		errs = append(errs, errors.New("GATEWAY_RATE_PER_SEC must be >= 0"))
	}
	if cfg.Reconcile.Interval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Reconcile.StaleAfter <= 0 {
		errs = append(errs, errors.New("STALE_SESSION_HOURS must be > 0"))
	}
	if cfg.Redis.Enabled && cfg.Redis.TTL <= 0 {
		errs = append(errs, errors.New("REDIS_TTL_SECONDS must be > 0"))
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("METRICS_PATH must start with /, got %q", cfg.Metrics.Path))
	}

	return errs
}

func parseLevel(raw string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: must be debug, info, warn or error", raw)
	}
	return l, nil
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid number for env %s: %s", key, v)
	}
	return f, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
