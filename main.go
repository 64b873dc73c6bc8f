// Command sliding-rate-limiter runs the rate limiter behind a demo HTTP server
// or replays recorded request scenarios.
//
// Usage:
//
//	sliding-rate-limiter serve --config limits.yaml
//	sliding-rate-limiter simulate internal/simulate/testdata/*.yaml
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

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Dzaakk/sliding-rate-limiter/config"
	"github.com/Dzaakk/sliding-rate-limiter/internal/handler"
	"github.com/Dzaakk/sliding-rate-limiter/internal/logging"
	"github.com/Dzaakk/sliding-rate-limiter/internal/metrics"
	"github.com/Dzaakk/sliding-rate-limiter/internal/middleware"
	"github.com/Dzaakk/sliding-rate-limiter/internal/observability"
	"github.com/Dzaakk/sliding-rate-limiter/internal/simulate"
	"github.com/Dzaakk/sliding-rate-limiter/limiter"
)

type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server with rate limiting."`
	Simulate SimulateCmd `cmd:"" help:"Replay request scenarios through the limiter."`

	Config  string `short:"c" help:"Path to config file." type:"path"`
	EnvFile string `name:"env-file" help:"Path to a .env file (default: ./.env if present)." type:"path"`
}

type ServeCmd struct {
	Watch bool `help:"Reload limits when the config file changes. Requires --config."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, watcher, err := loadConfig(cli.Config, c.Watch)
	if err != nil {
		return err
	}

	logger, logCloser := logging.New(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	if cfg.Tracing.Enabled {
		shutdownTracing, err := observability.InitTracing(ctx, os.Stderr)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("tracing shutdown", "error", err)
			}
		}()
	}

	clock, closeClock, err := initClock(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeClock()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	rl := limiter.NewRateLimiter(clock,
		limiter.WithBucketWidth(cfg.Limits.BucketWidthMs),
		limiter.WithLogger(logger),
		limiter.WithObserver(m),
	)
	applyLimits(rl, m, nil, &cfg.Limits, logger)

	if watcher != nil {
		watcher.SetLogger(logger)
		watcher.Start(func(prev, next *config.Config) {
			applyLimits(rl, m, &prev.Limits, &next.Limits, logger)
		})
	}

	rateLimitMW := middleware.NewRateLimitMiddleware(rl, logger)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/api/hello", rateLimitMW.Handler(handler.HelloHandler))
	r.Get("/api/limits", handler.LimitsHandler(rl))
	r.Get("/api/status", handler.StatusHandler)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

type SimulateCmd struct {
	Files []string `arg:"" help:"Scenario YAML files." type:"existingfile"`
}

func (c *SimulateCmd) Run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	failed := 0
	for _, path := range c.Files {
		s, err := simulate.Load(path)
		if err != nil {
			return err
		}
		report := s.Run(logger)
		report.Print(os.Stdout)
		if report.Mismatches > 0 {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios had mismatches", failed, len(c.Files))
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sliding-rate-limiter"),
		kong.Description("Sliding-window requests-per-second limiter."),
		kong.UsageOnError(),
	)

	if err := loadDotEnv(cli.EnvFile); err != nil {
		ctx.FatalIfErrorf(err)
	}

	ctx.FatalIfErrorf(ctx.Run(&cli))
}

// loadDotEnv loads path, or ./.env when path is empty. Existing variables are not overwritten.
func loadDotEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig(path string, watch bool) (*config.Config, *config.Watcher, error) {
	if watch && path == "" {
		return nil, nil, errors.New("--watch requires --config")
	}
	if watch {
		w, err := config.NewWatcher(path, nil)
		if err != nil {
			return nil, nil, err
		}
		return w.Current(), w, nil
	}
	cfg, err := config.Load(path)
	return cfg, nil, err
}

func applyLimits(rl *limiter.RateLimiter, m *metrics.Metrics, prev, next *config.LimitsConfig, logger *slog.Logger) {
	config.Apply(rl, prev, next, logger)

	m.SetGlobalLimit(next.Global)
	for _, u := range next.Users {
		m.SetUserLimit(u.ID, u.RPS)
	}
	if prev == nil {
		return
	}
	nextUsers := next.UserLimits()
	for _, u := range prev.Users {
		if _, ok := nextUsers[u.ID]; !ok {
			m.DeleteUserLimit(u.ID)
		}
	}
}

func initClock(ctx context.Context, cfg *config.Config, logger *slog.Logger) (limiter.Clock, func(), error) {
	if cfg.Clock.Source != config.ClockRedis {
		logger.Info("using system clock")
		return limiter.SystemClock{}, func() {}, nil
	}

	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	client := limiter.NewRedisClient(cfg.Redis.Addr, func(o *goredis.Options) {
		o.DialTimeout = cfg.Redis.DialTimeout
	})

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		defer cancel()
		return client.Ping(pingCtx)
	}
	notify := func(err error, delay time.Duration) {
		logger.Warn("redis not ready, retrying", "error", err, "delay", delay)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.Redis.MaxRetries), ctx)

	if err := backoff.RetryNotify(ping, b, notify); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.Redis.Addr, err)
	}

	logger.Info("successfully connected to Redis")
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error("close redis client", "error", err)
		}
	}
	return limiter.NewRedisClock(client, cfg.Redis.Timeout, logger), closeFn, nil
}
