package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/anotheregi/blastkeun/internal/cache"
	"github.com/anotheregi/blastkeun/internal/client"
	"github.com/anotheregi/blastkeun/internal/config"
	"github.com/anotheregi/blastkeun/internal/repo"
)

func openLedger(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, *repo.SQLLedger, error) {
	driver, dialect := "pgx", repo.Postgres
	if cfg.Driver == config.DriverSQLite {
		driver, dialect = "sqlite", repo.SQLite
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if dialect == repo.SQLite {
		// One writer avoids "database is locked" under concurrent sessions.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	ledger := repo.NewSQLLedger(db, dialect)
	if err := ledger.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db, ledger, nil
}

// newQuota returns a Redis-backed quota when Redis is configured. The
// returned close func is never nil.
func newQuota(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (cache.DailyQuota, func() error, error) {
	if !cfg.Enabled {
		logger.Info("redis not configured, daily quota kept in memory")
		return cache.NewMemoryQuota(), func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}

	return cache.NewRedisQuota(rdb, cfg.TTL), rdb.Close, nil
}

func newGateway(cfg config.GatewayConfig) client.Gateway {
	var gw client.Gateway
	switch cfg.Mode {
	case config.GatewayMock:
		gw = client.NewMockClient()
	default:
		gw = client.NewWebhookClient(cfg.URL,
			client.WithToken(cfg.Token),
			client.WithStatusURL(cfg.StatusURL),
		)
	}
	return client.NewThrottled(gw, cfg.RatePerSec, 1)
}
