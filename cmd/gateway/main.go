package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"admission-gateway/internal/config"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := ratelimit.NewMetrics(reg)

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			// o gate falha aberto, mas subir sem Redis é quase sempre erro de configuração
			return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
	}

	store, err := newAdmissionStore(ctx, cfg.Rate, rdb, metrics, logger)
	if err != nil {
		return err
	}

	gw := gateway{
		cfg:      cfg,
		store:    store,
		stats:    newStatsStore(cfg.Stats, rdb),
		metrics:  metrics,
		gatherer: reg,
		logger:   logger,
		upstream: newProxy(cfg.UpstreamURL, logger),
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	logger.Info("gateway listening",
		"addr", cfg.ListenAddr, "upstream", cfg.UpstreamURL.String())
	logger.Info("rate limit",
		"enabled", cfg.Rate.Enabled, "backend", cfg.Rate.Backend,
		"default_max", cfg.Rate.Policy.Default.MaxRequests, "default_window", cfg.Rate.Policy.Default.Window,
		"routes", len(cfg.Rate.Policy.Routes), "exempt", cfg.Rate.Policy.Exempt,
		"sweep_every", cfg.Rate.SweepEvery, "max_entries", cfg.Rate.MaxEntries)
	logger.Info("rate stats",
		"enabled", cfg.Stats.Enabled, "backend", cfg.Stats.Backend,
		"bucket", cfg.Stats.Bucket, "ttl", cfg.Stats.TTL, "track_keys", cfg.Stats.TrackKeys)
	logger.Info("concurrency", "max", cfg.Concurrency.Max, "acquire_timeout", cfg.Concurrency.Timeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		logger.Info("gateway stopped")
		return nil
	})
	return g.Wait()
}

// newAdmissionStore devolve nil quando o gate está desligado.
func newAdmissionStore(ctx context.Context, cfg config.RateConfig, rdb *redis.Client, metrics *ratelimit.Metrics, logger *slog.Logger) (domain.AdmissionStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Backend {
	case config.BackendRedis:
		return infra.NewRedisStore(rdb, infra.WithKeyPrefix(cfg.RedisPrefix)), nil
	default:
		store, err := infra.NewMemoryStore(
			infra.WithMaxEntries(cfg.MaxEntries),
			infra.WithSweepEvery(cfg.SweepEvery),
			infra.WithEvictHook(metrics.ObserveEviction),
			infra.WithSweepHook(metrics.ObserveSweep),
			infra.WithSweepErrorHook(metrics.ObserveSweepError),
			infra.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("memory store: %w", err)
		}
		metrics.TrackRecords(store.Len)
		store.StartJanitor(ctx)
		return store, nil
	}
}

func newStatsStore(cfg config.StatsConfig, rdb *redis.Client) domain.StatsStore {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Backend == config.BackendRedis {
		return infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.Prefix),
			infra.WithStatsTTL(cfg.TTL),
			infra.WithStatsBucket(cfg.Bucket),
			infra.WithStatsTrackKeys(cfg.TrackKeys),
		)
	}
	return infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.TrackKeys))
}
