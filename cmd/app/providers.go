package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/valkey-io/valkey-go"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/yanqian/todoauth/internal/domain/auth"
	"github.com/yanqian/todoauth/internal/infra/config"
	"github.com/yanqian/todoauth/internal/infra/googleauth"
	"github.com/yanqian/todoauth/internal/infra/ratelimit"
	"github.com/yanqian/todoauth/internal/infra/userrepo"
	"github.com/yanqian/todoauth/pkg/logger"
	"github.com/yanqian/todoauth/pkg/metrics"
	"github.com/yanqian/todoauth/pkg/util"
)

const connectTimeout = 5 * time.Second

func provideLogger(cfg *config.Config) *slog.Logger {
	return logger.New(cfg.Log.Level, cfg.Env)
}

func provideAuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
	}
}

func provideClock() util.Clock {
	return util.NowUTC
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideMetrics(reg *prometheus.Registry) *metrics.Auth {
	return metrics.NewAuth(reg)
}

func provideIdentityProvider(cfg *config.Config, logger *slog.Logger) auth.IdentityProvider {
	if !cfg.Auth.Google.Enabled() {
		logger.Info("google oauth not configured, flow disabled")
		return nil
	}
	return googleauth.New(googleauth.Config{
		ClientID:     cfg.Auth.Google.ClientID,
		ClientSecret: cfg.Auth.Google.ClientSecret,
		CallbackURL:  cfg.Auth.Google.CallbackURL,
	})
}

// provideRepository opens the configured credential store. Unlike optional caches, a
// store that cannot be reached is fatal.
func provideRepository(cfg *config.Config, logger *slog.Logger) (auth.Repository, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		return providePostgresRepository(cfg, logger)
	case config.DriverMongo:
		return provideMongoRepository(cfg, logger)
	default:
		logger.Warn("using in-memory credential store, accounts are lost on restart")
		return userrepo.NewMemoryRepository(), func() {}, nil
	}
}

func providePostgresRepository(cfg *config.Config, logger *slog.Logger) (auth.Repository, func(), error) {
	poolConfig, err := pgxpool.ParseConfig(strings.TrimSpace(cfg.Store.Postgres.DSN))
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.Store.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Store.Postgres.MaxConns
	}
	if cfg.Store.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Store.Postgres.MinConns
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := userrepo.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure users schema: %w", err)
	}
	logger.Info("postgres credential store enabled")
	return repo, pool.Close, nil
}

func provideMongoRepository(cfg *config.Config, logger *slog.Logger) (auth.Repository, func(), error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Store.Mongo.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	disconnect := func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			logger.Error("mongo disconnect failed", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	repo := userrepo.NewMongoRepository(client.Database(cfg.Store.Mongo.Database))
	if err := repo.EnsureIndexes(ctx); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("ensure users indexes: %w", err)
	}
	logger.Info("mongo credential store enabled", "database", cfg.Store.Mongo.Database)
	return repo, disconnect, nil
}

// provideLimiter falls back to in-process buckets when valkey is unreachable, since the
// limiter is an optional layer.
func provideLimiter(cfg *config.Config, clock util.Clock, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	rl := cfg.HTTP.RateLimit
	if !rl.Enabled {
		return nil, func() {}, nil
	}
	fallback := ratelimit.NewMemoryLimiter(rl.RequestsPerMinute, rl.Burst, clock)
	if strings.TrimSpace(rl.ValkeyAddr) == "" {
		return fallback, func() {}, nil
	}
	opt, err := buildValkeyOptions(rl.ValkeyAddr)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory limiter", "error", err)
		return fallback, func() {}, nil
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory limiter", "error", err)
		return fallback, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory limiter", "error", err)
		client.Close()
		return fallback, func() {}, nil
	}
	logger.Info("valkey rate limiter enabled", "addr", rl.ValkeyAddr)
	return ratelimit.NewValkeyLimiter(client, "ratelimit", rl.RequestsPerMinute), client.Close, nil
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}
