// Package runtime builds a running back-office node from configuration:
// database pools, redis, stores, services, scheduler and the HTTP server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	app "github.com/coopfund/backoffice/internal/app"
	"github.com/coopfund/backoffice/internal/app/files"
	"github.com/coopfund/backoffice/internal/app/httpapi"
	"github.com/coopfund/backoffice/internal/app/lock"
	"github.com/coopfund/backoffice/internal/app/services/dbsync"
	"github.com/coopfund/backoffice/internal/app/storage/postgres"
	"github.com/coopfund/backoffice/internal/config"
	"github.com/coopfund/backoffice/internal/middleware"
	"github.com/coopfund/backoffice/internal/platform/database"
	"github.com/coopfund/backoffice/internal/platform/migrations"
	"github.com/coopfund/backoffice/pkg/logger"
)

// orderCacheTTL bounds how long a computed table order is reused for one
// schema hash.
const orderCacheTTL = 24 * time.Hour

// Application owns the process-level resources of one node.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	db     *sqlx.DB
	cloud  *sqlx.DB
	redis  *redis.Client
	sink   io.Closer
	app    *app.Application
	tokens *middleware.TokenService
	http   *httpapi.Service
	done   chan struct{}
}

// Option tweaks NewApplication.
type Option func(*settings)

type settings struct {
	withHTTP bool
}

// WithoutHTTP builds the node without the HTTP server, for CLI commands.
func WithoutHTTP() Option {
	return func(s *settings) { s.withHTTP = false }
}

// NewApplication connects to the databases and wires every service. Resources
// opened before a failure are released.
func NewApplication(ctx context.Context, cfg *config.Config, log *logger.Logger, options ...Option) (_ *Application, err error) {
	if log == nil {
		log = logger.NewDefault("backoffice")
	}
	set := settings{withHTTP: true}
	for _, opt := range options {
		opt(&set)
	}

	a := &Application{cfg: cfg, log: log, done: make(chan struct{})}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	a.db, err = database.Open(ctx, cfg.Database.DSN, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err = migrations.Apply(ctx, a.db.DB); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("database schema applied")
	}

	var locker lock.Locker = lock.NewLocal()
	var orderCache dbsync.OrderCache = dbsync.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(redisOptions(cfg.Redis))
		if err = a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		locker = lock.NewRedis(a.redis)
		orderCache = dbsync.NewRedisCache(a.redis, orderCacheTTL)
	}

	a.tokens, err = middleware.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	blobs, err := files.NewLocalStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	var engine *dbsync.Engine
	if cfg.Sync.Enabled {
		a.cloud, err = database.OpenLazy(cfg.Database.CloudDSN, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open cloud database: %w", err)
		}
		planner := dbsync.NewPlanner(cfg.Sync.Tables, orderCache, log.Component("dbsync"))
		engine = dbsync.New(a.db, a.cloud, planner, nil, dbsync.Options{
			Node:           cfg.Sync.Node,
			CloudNode:      cfg.Sync.CloudNode,
			BatchSize:      cfg.Sync.BatchSize,
			ConnectTimeout: cfg.Sync.ConnectTimeout,
			Tables:         cfg.Sync.Tables,
		}, log.Component("dbsync"))
	}

	store := postgres.New(a.db.DB, cfg.Sync.Node)
	a.app, err = app.New(app.Stores{
		Cooperatives:  store,
		Programs:      store,
		Checklists:    store,
		CoopPrograms:  store,
		Amortization:  store,
		Notifications: store,
		Users:         store,
		SyncLogs:      store,
	}, app.Options{
		Loans:    cfg.Loans,
		Schedule: cfg.Schedule,
		Blobs:    blobs,
		Tokens:   a.tokens,
		Locker:   locker,
		Sync:     engine,
	}, log)
	if err != nil {
		return nil, err
	}

	if set.withHTTP {
		sink := httpapi.NewFileSink(cfg.Server.AuditLogPath)
		var auditSink io.Writer
		if sink != nil {
			a.sink = sink
			auditSink = sink
		}
		handler := httpapi.NewHandler(a.app, httpapi.Options{
			Tokens:         a.tokens,
			CORSOrigins:    cfg.Server.CORSOrigins,
			LoginRate:      float64(cfg.Auth.LoginRatePerSec),
			LoginBurst:     cfg.Auth.LoginBurst,
			APIRate:        float64(cfg.Auth.APIRatePerSec),
			APIBurst:       cfg.Auth.APIBurst,
			Audit:          httpapi.NewAuditLog(500, auditSink),
			MaxUploadBytes: cfg.Storage.MaxUploadBytes,
			UploadDir:      cfg.Storage.UploadDir,
			Ready:          a.db.PingContext,
			Done:           a.done,
		}, log.Component("http"))
		a.http = httpapi.NewService(ListenAddr(cfg.Server), handler, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, log.Component("http"))
		if err = a.app.Attach(a.http); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// App exposes the wired services.
func (a *Application) App() *app.Application { return a.app }

// Config returns the configuration the node was built from.
func (a *Application) Config() *config.Config { return a.cfg }

// DB exposes the local database pool.
func (a *Application) DB() *sqlx.DB { return a.db }

// Run starts every service and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Shutdown stops the services, then releases pools and sinks.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	err := a.app.Stop(shutdownCtx)
	a.closeResources()
	return err
}

func (a *Application) closeResources() {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	var errs []error
	if a.sink != nil {
		errs = append(errs, a.sink.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.cloud != nil {
		errs = append(errs, a.cloud.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.log.WithError(err).Warn("error releasing resources")
	}
}

// ListenAddr joins host and port.
func ListenAddr(cfg config.ServerConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
