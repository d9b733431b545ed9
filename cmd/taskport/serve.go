package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	taskport "github.com/Swind/go-task-port"
	"github.com/Swind/go-task-port/builtin"
	"github.com/Swind/go-task-port/codec"
	"github.com/Swind/go-task-port/config"
	"github.com/Swind/go-task-port/core"
	"github.com/Swind/go-task-port/observability/logging"
	promexp "github.com/Swind/go-task-port/observability/prometheus"
	"github.com/Swind/go-task-port/storage"
	"github.com/Swind/go-task-port/transport/websocket"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve one task runner per WebSocket connection",

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
			},
			&cli.StringFlag{
				Name:  "listen",
				Usage: "Override server.listen",
			},
		},

		Action: ServeAction,
	}
}

func ServeAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}
	if listen := c.String("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	logger, syncLogs, err := logging.New(cfg.Log)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to set up logging: %v", err), 1)
	}
	defer func() { _ = syncLogs() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open storage: %v", err), 1)
	}
	defer store.Close()

	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := promexp.NewMetricsExporter("taskport", reg, promexp.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to register metrics: %v", err), 1)
	}
	poller, err := promexp.NewSnapshotPoller(reg, cfg.Server.SnapshotInterval)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to register snapshot metrics: %v", err), 1)
	}

	srv := websocket.NewServer(newRunnerFactory(cfg, logger, metrics, store), websocket.ServerOptions{
		Path:           cfg.Server.WSPath,
		Codec:          codec.ByName(cfg.Server.Codec),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxMessageSize: cfg.Server.MaxMessageSize,
		Logger:         logger,
		Tracker:        poller,
	})
	srv.Router().Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	poller.Start(ctx)
	defer poller.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening",
			core.F("addr", cfg.Server.Listen),
			core.F("ws_path", cfg.Server.WSPath),
			core.F("codec", cfg.Server.Codec),
			core.F("storage", cfg.Storage.Driver),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.Close()
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	logger.Info("server stopped")
	return nil
}

// newRunnerFactory registers the storage tasks and the configured builtins
// for every connection. All connections share one HTTP rate limiter.
func newRunnerFactory(cfg *config.Config, logger core.Logger, metrics *promexp.MetricsExporter, store storage.Store) websocket.RunnerFactory {
	builtins := []builtin.Option{builtin.WithDefaultHTTPTimeout(cfg.HTTP.DefaultTimeout)}
	if cfg.HTTP.RateLimit > 0 {
		builtins = append(builtins, builtin.WithLimiter(rate.NewLimiter(rate.Limit(cfg.HTTP.RateLimit), cfg.HTTP.Burst)))
	}
	tasks := storage.Tasks(cfg.Storage.Prefix, store, logger)

	return func(ctx context.Context, connID string, ch core.Channels) (*core.Runner, error) {
		name := "conn-" + connID
		runner, err := taskport.Register(ctx, taskport.Options{
			Tasks:    tasks,
			Channels: ch,
			Builtins: builtins,
			Debug: taskport.Debug{
				TraceStart:     cfg.Dispatch.TraceStart,
				TraceFinish:    cfg.Dispatch.TraceFinish,
				FlagCollisions: cfg.Dispatch.FlagCollisions,
				IncludeRaw:     cfg.Dispatch.IncludeRaw,
			},
			Name:              name,
			Logger:            logger,
			Metrics:           metrics,
			Policy:            cfg.Dispatch.Policy(),
			DebounceThreshold: cfg.Dispatch.DebounceThreshold,
			DebounceWindow:    cfg.Dispatch.DebounceWindow,
		})
		if err != nil {
			return nil, err
		}

		context.AfterFunc(ctx, func() { metrics.ForgetRunner(name) })
		return runner, nil
	}
}

// openStore opens the backend named by c.Driver.
func openStore(ctx context.Context, c config.StorageConfig) (storage.Store, error) {
	switch c.Driver {
	case "sqlite":
		if c.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(c.SQLitePath), 0o755); err != nil {
				return nil, err
			}
		}
		return storage.NewSQLiteStore(c.SQLitePath)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr, DB: c.RedisDB})
		store := storage.NewRedisStore(client)
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s: %w", c.RedisAddr, err)
		}
		return &redisBackend{RedisStore: store, client: client}, nil
	default:
		return storage.NewMemoryStore(storage.WithQuota(c.MemoryQuota)), nil
	}
}

// redisBackend closes the client it owns.
type redisBackend struct {
	*storage.RedisStore
	client *redis.Client
}

func (b *redisBackend) Close() error {
	return b.client.Close()
}
