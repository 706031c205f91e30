package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/fivehints/internal/config"
	"github.com/playperu/fivehints/internal/database"
	"github.com/playperu/fivehints/internal/engine"
	"github.com/playperu/fivehints/internal/handler/health"
	"github.com/playperu/fivehints/internal/judge"
	"github.com/playperu/fivehints/internal/migrations"
	"github.com/playperu/fivehints/internal/ratelimit"
	"github.com/playperu/fivehints/internal/server"
	"github.com/playperu/fivehints/internal/token"
	"github.com/playperu/fivehints/internal/upstream"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	version, err := migrations.Run(ctx, db, logger)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath, "schema_version", version)

	store := server.NewSQLStore(db)
	if cfg.AdminEmail != "" && cfg.AdminPasswordHash != "" {
		if err := store.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPasswordHash); err != nil {
			return err
		}
		logger.Info("admin account ensured", "email", cfg.AdminEmail)
	}

	checks := map[string]health.Checker{"sqlite": health.SQL(db)}

	// --- Rate limiting ---
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		limiter = ratelimit.NewRedisLimiter(rdb, "fivehints:rl:")
		checks["redis"] = health.Redis(rdb)
	} else {
		mem := ratelimit.NewMemoryLimiter()
		mem.StartCleanup(ctx, time.Minute)
		limiter = mem
		logger.Info("using in-memory rate limiter")
	}

	// --- Judge and engine ---
	codec, err := token.NewCodec([]byte(cfg.TokenSecret))
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	judgeOpts := []judge.Option{judge.WithEventLog(store)}
	if cfg.UpstreamURL != "" {
		client := upstream.New(cfg.UpstreamURL, cfg.UpstreamAPIKey, logger)
		judgeOpts = append(judgeOpts,
			judge.WithOracle(client, cfg.EquivalenceTimeout),
			judge.WithProvider(client),
		)
		logger.Info("content provider configured", "url", cfg.UpstreamURL)
	} else {
		logger.Warn("UPSTREAM_URL not set, nudges and analyses are disabled")
	}
	j := judge.New(codec, logger, judgeOpts...)

	broker := server.NewBroker()
	engineOpts := []engine.Option{engine.WithNotifier(broker.Notify)}
	if cfg.UpstreamURL != "" {
		engineOpts = append(engineOpts, engine.WithEnricher(j, cfg.UpstreamTimeout))
	}
	eng := engine.New(j, logger, engineOpts...)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Options{
		Store:             store,
		Codec:             codec,
		Judge:             j,
		Engine:            eng,
		Broker:            broker,
		Limiter:           limiter,
		Checks:            checks,
		PublicBaseURL:     cfg.PublicBaseURL,
		AllowedOrigins:    cfg.AllowedOrigins,
		SPADir:            cfg.SPADir,
		PlayerTokenTTL:    cfg.PlayerTokenTTL,
		DailyWindow:       cfg.DailyWindow,
		EnrichmentTimeout: cfg.UpstreamTimeout,
		GuessRateLimit:    cfg.GuessRateLimit,
		CreateRateLimit:   cfg.CreateRateLimit,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
