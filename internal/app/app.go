package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/echoworld-backend/internal/data/db"
	apphttp "github.com/yungbote/echoworld-backend/internal/http"
	"github.com/yungbote/echoworld-backend/internal/observability"
	"github.com/yungbote/echoworld-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *apphttp.Server
	Cfg      Config
	Repos    Repos
	Services Services
	Realtime Realtime
	Metrics  *observability.Metrics

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	boot, err := logger.New("development")
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	boot.Info("Loading configuration...")
	cfg, err := LoadConfig(boot)
	if err != nil {
		boot.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := boot
	if cfg.LogMode != "development" {
		if log, err = logger.New(cfg.LogMode); err != nil {
			boot.Sync()
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	return NewWithConfig(ctx, log, cfg)
}

// NewWithConfig wires the process from an already loaded config.
func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.Init(log)
	}

	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.Migrate {
		if err := pg.AutoMigrateAll(); err != nil {
			_ = pg.Close()
			log.Sync()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
	}
	theDB := pg.DB()

	rt, err := wireRealtime(log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, rt.Publisher)
	handlerset := wireHandlers(theDB, log, cfg, serviceset, rt)
	middleware := wireMiddleware(log, cfg, serviceset)
	server := wireServer(log, cfg, metrics, handlerset, middleware)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Realtime:     rt,
		Metrics:      metrics,
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Run starts background loops and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Realtime.start(ctx); err != nil {
		return fmt.Errorf("start realtime: %w", err)
	}
	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	if a.Realtime.Bus != nil {
		a.Metrics.StartRedisCollector(ctx, a.Log, a.Realtime.Bus.Client())
	}
	a.Metrics.StartServer(ctx, a.Log, a.Cfg.Metrics.Addr)

	return a.Server.Run(ctx, a.Cfg.HTTP.Addr, a.Cfg.HTTP.ShutdownGrace)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if err := a.Realtime.close(); err != nil && a.Log != nil {
		a.Log.Warn("closing realtime bus", "error", err)
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil && a.Log != nil {
			a.Log.Warn("closing postgres", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
