package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/marks/internal/bus"
	"github.com/MrSnakeDoc/marks/internal/config"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/httpserver"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/mutation"
	"github.com/MrSnakeDoc/marks/internal/reconcile"
	"github.com/MrSnakeDoc/marks/internal/redis"
	"github.com/MrSnakeDoc/marks/internal/scheduler"
	"github.com/MrSnakeDoc/marks/internal/sources/homepage"
	redisstore "github.com/MrSnakeDoc/marks/internal/store/redis"
	"github.com/MrSnakeDoc/marks/internal/version"
)

// App owns every long-lived component of the process.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	redisClient *goredis.Client
	store       *redisstore.Store
	bus         *bus.Bus
	initiator   *mutation.Initiator
	engine      *reconcile.Engine
}

// New connects to Redis and builds the view. Nothing runs until Run or
// Import is called.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	redisClient, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ns := redisstore.Namespace{Schema: cfg.Schema, Table: cfg.Table}
	store := redisstore.NewStore(redisClient, ns)
	feed := redisstore.NewFeed(redisClient, ns, cfg.StreamBuffer, loggerClient)

	b := bus.New(loggerClient)
	initiator := mutation.NewInitiator(b, store, loggerClient)
	engine := reconcile.New(
		reconcile.Scope{Schema: cfg.Schema, Table: cfg.Table},
		store,
		feed,
		initiator,
		b,
		loggerClient,
	)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		redisClient: redisClient,
		store:       store,
		bus:         b,
		initiator:   initiator,
		engine:      engine,
	}, nil
}

// Run serves the API until ctx ends or SIGINT/SIGTERM is received.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("🚀 Starting Marks",
		logger.String("version", version.Version),
		logger.String("commit", version.Commit),
		logger.String("built", version.BuildDate),
		logger.String("go", version.GoVersion),
		logger.String("addr", a.cfg.ListenPort))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.close()

	if a.cfg.Principal != "" {
		if err := a.engine.SwitchPrincipal(ctx, domain.Authenticated(a.cfg.Principal)); err != nil {
			return fmt.Errorf("failed to sign in %q: %w", a.cfg.Principal, err)
		}
	}

	resyncTrigger := make(chan struct{}, 1)
	resyncer := scheduler.NewResyncer(a.engine, a.logger, a.cfg.ResyncInterval, resyncTrigger)
	resyncer.Start(ctx)
	defer resyncer.Stop()
	a.logger.Info("resyncer started", logger.Duration("interval", a.cfg.ResyncInterval))

	collector := scheduler.NewTombstoneCollector(a.engine, a.logger, a.cfg.GCInterval, a.cfg.TombstoneTTL)
	collector.Start(ctx)
	defer collector.Stop()
	a.logger.Info("tombstone collector started",
		logger.Duration("interval", a.cfg.GCInterval),
		logger.Duration("ttl", a.cfg.TombstoneTTL))

	server := httpserver.New(a.cfg, a.logger, deps.Deps{
		Logger:        a.logger,
		StartTime:     time.Now(),
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.BuildDate,
		GoVersion:     version.GoVersion,
		TimeNow:       time.Now,
		AllowedHosts:  a.cfg.AllowedHosts,
		AllowedCIDRS:  a.cfg.AllowedCIDRS,
		TrustProxy:    a.cfg.TrustProxy,
		CORSOrigins:   a.cfg.CORSOrigins,
		RateBurst:     a.cfg.RateBurst,
		RatePerMin:    a.cfg.RatePerMin,
		View:          a.engine,
		Bus:           a.bus,
		Store:         a.store,
		ResyncTrigger: resyncTrigger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("⏳ Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		return nil
	})
	if a.cfg.ImportFile != "" {
		g.Go(func() error {
			if _, err := a.importFile(gctx, a.cfg.ImportFile); err != nil {
				a.logger.Error("startup import failed",
					logger.String("file", a.cfg.ImportFile),
					logger.Error(err))
			}
			return nil
		})
	}

	return g.Wait()
}

// Import signs in as principal, imports a homepage bookmarks file and
// waits until the store has answered for every record.
func (a *App) Import(ctx context.Context, path, principal string) (homepage.Report, error) {
	defer a.close()

	if principal == "" {
		return homepage.Report{}, fmt.Errorf("%w: principal is required", domain.ErrUnauthenticated)
	}
	if err := a.engine.SwitchPrincipal(ctx, domain.Authenticated(principal)); err != nil {
		return homepage.Report{}, fmt.Errorf("failed to sign in %q: %w", principal, err)
	}
	return a.importFile(ctx, path)
}

func (a *App) importFile(ctx context.Context, path string) (homepage.Report, error) {
	a.logger.Info("importing bookmarks", logger.String("file", path))
	return homepage.NewImporter(a.engine, a.logger).ImportFile(ctx, path)
}

// close waits for pending writes, then releases the view and Redis.
func (a *App) close() {
	a.initiator.Wait()
	err := errors.Join(a.engine.Close(), a.redisClient.Close())
	if err != nil {
		a.logger.Warn("failed to close cleanly", logger.Error(err))
		return
	}
	a.logger.Info("✅ Marks stopped cleanly")
}
