package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/eddb-ingest/internal/config"
	"github.com/JonMunkholm/eddb-ingest/internal/core"
	_ "github.com/JonMunkholm/eddb-ingest/internal/core/resources" // Register all kinds
	"github.com/JonMunkholm/eddb-ingest/internal/lock"
	"github.com/JonMunkholm/eddb-ingest/internal/logging"
	"github.com/JonMunkholm/eddb-ingest/internal/store"
	"github.com/JonMunkholm/eddb-ingest/internal/web"
	"github.com/JonMunkholm/eddb-ingest/internal/web/middleware"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"source", cfg.Source.BaseURL,
		"download_max_concurrent", cfg.Download.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"redis_guard", cfg.Redis.URL != "",
	)

	authUsers, err := cfg.Auth.ParseUsers()
	if err != nil {
		log.Error("failed to parse users", "error", err)
		os.Exit(1)
	}
	if len(authUsers) == 0 {
		log.Warn("AUTH_USERS is empty, every ingestion route will answer 401")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	records, audit, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	guard, closeGuard, err := openGuard(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer closeGuard()

	client := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Source.ResponseHeaderTimeout,
		},
	}

	service, err := core.NewService(core.Deps{
		BaseURL:  cfg.Source.BaseURL,
		Client:   userAgentDoer{client: client, ua: cfg.Source.UserAgent},
		Store:    records,
		Guard:    guard,
		Limiter:  core.NewJobLimiter(cfg.Download.MaxConcurrent, cfg.Download.MaxWaitTime),
		Tracker:  core.NewTracker(cfg.Download.TrackedJobs),
		Observer: core.Observers(core.MetricsObserver(), core.LogObserver(log)),
		Logger:   log,
		Audit:    audit,
	})
	if err != nil {
		log.Error("failed to create service", "error", err)
		os.Exit(1)
	}
	log.Info("resources registered", "count", core.ResourceCount(), "kinds", service.Kinds())

	server := web.NewServer(service, cfg, middleware.NewUsers(authUsers), log)

	schedule := core.ScheduleConfig{Interval: cfg.Schedule.Interval, From: core.BulkOrder[0]}
	if cfg.Schedule.From != "" {
		if schedule.From, err = core.ParseKind(cfg.Schedule.From); err != nil {
			log.Error("invalid BULK_SCHEDULE_FROM", "error", err)
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		service.StartScheduler(gctx, schedule, log)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}

		// Jobs run detached from requests; let them commit what they have.
		if err := service.Drain(shutdownCtx); err != nil {
			log.Warn("downloads did not complete in time", "error", err)
		} else {
			log.Info("all downloads completed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// openStore connects the record store and the audit sink for the configured
// driver. The returned func releases them.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*store.Store, core.AuditSink, func(), error) {
	if strings.EqualFold(cfg.Store.Driver, "memory") {
		log.Warn("using in-memory store, records are lost on restart")
		return store.New(store.NewMemory(), core.Collections()...),
			core.NewMemoryAudit(core.DefaultAuditLimit),
			func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		log.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		log.Info("connected to database")
	}

	if cfg.Database.AutoMigrate {
		if err := store.MigrateUp(pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info("schema up to date")
	}

	return store.New(store.NewPostgres(pool), core.Collections()...),
		core.NewPostgresAudit(pool),
		pool.Close, nil
}

// openGuard returns the Redis guard when REDIS_URL is set. Without it each
// downloader keeps an in-process guard.
func openGuard(ctx context.Context, cfg *config.Config, log *slog.Logger) (lock.Guard, func(), error) {
	if cfg.Redis.URL == "" {
		return nil, func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	cl := redis.NewClient(opt)
	if err := cl.Ping(ctx).Err(); err != nil {
		cl.Close()
		return nil, nil, err
	}
	log.Info("using redis in-flight guard", "addr", opt.Addr)

	return lock.NewRedis(cl, cfg.Redis.LeaseTTL, log), func() { cl.Close() }, nil
}

// userAgentDoer identifies the service to the dump archive.
type userAgentDoer struct {
	client *http.Client
	ua     string
}

func (d userAgentDoer) Do(req *http.Request) (*http.Response, error) {
	if d.ua != "" {
		req.Header.Set("User-Agent", d.ua)
	}
	return d.client.Do(req)
}
