// Package app wires the stores, services and HTTP router of the trails backend.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jengzang/trails-backend-go/internal/api"
	"github.com/jengzang/trails-backend-go/internal/config"
	"github.com/jengzang/trails-backend-go/internal/database"
	"github.com/jengzang/trails-backend-go/internal/handler"
	"github.com/jengzang/trails-backend-go/internal/kvstore"
	"github.com/jengzang/trails-backend-go/internal/middleware"
	"github.com/jengzang/trails-backend-go/internal/repository"
	"github.com/jengzang/trails-backend-go/internal/service"
	"github.com/jengzang/trails-backend-go/internal/stream"
)

var connectPostgresFn = database.ConnectPostgres

// App holds every long-lived component of one backend process
type App struct {
	Config *config.Config

	primaryDB *sql.DB
	offlineDB *sql.DB
	pg        *pgxpool.Pool
	redis     *redis.Client
	kv        kvstore.Store

	Trails    *service.TrailService
	Snapshots *service.SnapshotService
	Recording *service.RecordingService
	Sync      *service.SyncService
	Hub       *stream.Hub
	Limiter   *middleware.RateLimiter
}

// New opens the configured stores and builds the services. An unreachable
// postgres primary is logged and the app runs on the offline store alone.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	primary, err := a.openPrimary(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.openOffline(); err != nil {
		a.Close()
		return nil, err
	}

	offline := repository.NewOfflineTrailRepository(a.kv)
	a.Trails = service.NewTrailService(primary, offline, service.GatewayConfig{
		MaxAttempts: cfg.GatewayAttempts,
		RetryDelay:  cfg.GatewayRetryDelay,
	})
	a.Snapshots = service.NewSnapshotService(repository.NewSnapshotRepository(a.kv))
	a.Hub = stream.NewHub(a.redis, cfg.DeviceID)
	a.Recording = service.NewRecordingService(a.Trails, a.Snapshots, nil, a.Hub, service.RecordingConfig{
		SnapshotEvery:    cfg.SnapshotEvery,
		SnapshotInterval: cfg.SnapshotInterval,
	})
	a.Sync = service.NewSyncService(primary, offline, service.SyncConfig{
		Interval:    cfg.SyncInterval,
		BackoffBase: cfg.SyncBackoffBase,
		BackoffMax:  cfg.SyncBackoffMax,
	})
	if cfg.RateLimit > 0 {
		a.Limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}

	return a, nil
}

func (a *App) openPrimary(ctx context.Context) (repository.TrailStore, error) {
	switch a.Config.PrimaryDriver {
	case config.DriverSQLite:
		db, err := database.Open(database.Config{Path: a.Config.DBPath})
		if err != nil {
			return nil, err
		}
		a.primaryDB = db
		return repository.NewTrailRepository(db), nil

	case config.DriverPostgres:
		pool, err := connectPostgresFn(a.Config.PostgresURL)
		if err != nil {
			log.Printf("Warning: postgres primary unavailable, recording offline only: %v", err)
			return nil, nil
		}
		if err := database.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		a.pg = pool
		return repository.NewPostgresTrailRepository(pool), nil

	default:
		log.Printf("No primary store configured, trails are kept offline")
		return nil, nil
	}
}

func (a *App) openOffline() error {
	switch a.Config.OfflineBackend {
	case kvstore.BackendRedis:
		if a.redis == nil {
			return fmt.Errorf("redis offline backend requires REDIS_ADDR")
		}
		a.kv = kvstore.NewRedisStore(a.redis, "trails:"+a.Config.DeviceID+":")

	case kvstore.BackendSQLite:
		if err := os.MkdirAll(a.Config.OfflinePath, 0o755); err != nil {
			return fmt.Errorf("failed to create offline directory: %w", err)
		}
		dsn := filepath.Join(a.Config.OfflinePath, "offline.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return fmt.Errorf("failed to open offline database: %w", err)
		}
		a.offlineDB = db
		store, err := kvstore.NewSQLiteStore(db)
		if err != nil {
			return err
		}
		a.kv = store

	default:
		store, err := kvstore.OpenBadger(a.Config.OfflinePath)
		if err != nil {
			return err
		}
		a.kv = store
	}
	return nil
}

// Router builds the HTTP router over the app's services
func (a *App) Router() *gin.Engine {
	return api.SetupRouter(a.Config, api.Handlers{
		Recording: handler.NewRecordingHandler(a.Recording),
		Trails:    handler.NewTrailHandler(a.Trails, a.Config.GPXSimplifyEpsilon),
		Sync:      handler.NewSyncHandler(a.Sync),
		Hub:       a.Hub,
		Limiter:   a.Limiter,
	})
}

// Close flushes pending snapshots and releases every store
func (a *App) Close() error {
	var errs []error
	if a.Limiter != nil {
		a.Limiter.Stop()
	}
	if a.Snapshots != nil {
		a.Snapshots.Close()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close offline store: %w", err))
		}
	}
	if a.offlineDB != nil {
		if err := a.offlineDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close offline database: %w", err))
		}
	}
	if a.primaryDB != nil {
		if err := a.primaryDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
