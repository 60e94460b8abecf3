// Package application wires configuration, the object API client, the
// dataset store and the audit log into a core.Service. Both binaries build
// on it.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/datamakelaar/internal/config"
	"github.com/JonMunkholm/datamakelaar/internal/core"
	"github.com/JonMunkholm/datamakelaar/internal/dataset"
	"github.com/JonMunkholm/datamakelaar/internal/vip"
	"github.com/JonMunkholm/datamakelaar/internal/web"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config   *config.Config
	Service  *core.Service
	Datasets *dataset.Store
	Logger   *slog.Logger

	pool  *pgxpool.Pool
	audit core.AuditStore
}

// New builds an App from cfg. The audit log is backed by Postgres when
// Database.URL is set and disabled otherwise.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := vip.New(vip.Options{
		BaseURL:      cfg.API.BaseURL,
		TokenURL:     cfg.API.TokenURL,
		ClientID:     cfg.API.ClientID,
		ClientSecret: cfg.API.ClientSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}
	client.WithLogger(logger)

	store, err := dataset.Open(cfg.Datasets.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("open dataset dir: %w", err)
	}

	app := &App{
		Config:   cfg,
		Datasets: store,
		Logger:   logger,
		audit:    core.NopAuditStore{},
	}

	if cfg.Database.URL != "" {
		pool, err := connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		audit := core.NewPgAuditStore(pool)
		if err := audit.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("create audit schema: %w", err)
		}
		app.pool = pool
		app.audit = audit
		logger.Info("connected to database", "name", databaseName(cfg.Database.URL))
	} else {
		logger.Info("no database configured, audit log disabled")
	}

	app.Service = core.NewService(client, store, app.audit, ServiceOptions(cfg)).WithLogger(logger)

	logger.Info("datasets loaded",
		"dir", store.Dir(),
		"count", len(store.List()),
		"problems", len(store.Problems()),
	)
	return app, nil
}

// ServiceOptions maps the API section of cfg onto core.ServiceOptions.
func ServiceOptions(cfg *config.Config) core.ServiceOptions {
	return core.ServiceOptions{
		PageSize:   cfg.API.PageSize,
		OnlyActive: cfg.API.OnlyActive,
		FilterKey:  cfg.API.FilterKey,
		Upload: core.UploadOptions{
			BatchSize:  cfg.API.BatchSize,
			Timeout:    cfg.API.Timeout,
			MaxRetries: cfg.API.MaxRetries,
			Mode:       core.ParseWriteMode(cfg.API.WriteMode),
		},
		Workbook: core.WorkbookOptions{
			HighlightAllColumns: cfg.Export.HighlightAllColumns,
		},
	}
}

func connect(ctx context.Context, dbCfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(dbCfg.MaxConns)
	poolConfig.MinConns = int32(dbCfg.MinConns)
	poolConfig.MaxConnLifetime = dbCfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dbCfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func databaseName(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return strings.TrimPrefix(u.Path, "/")
	}
	return ""
}

// Close releases the database pool.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// StartBackground runs the dataset watcher and the audit purge scheduler
// until ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) {
	if a.Config.Datasets.Watch {
		go func() {
			if err := a.Datasets.Watch(ctx, dataset.DefaultDebounce, nil); err != nil {
				a.Logger.Error("dataset watcher stopped", "error", err)
			}
		}()
	}

	if a.pool != nil {
		go func() {
			err := core.StartPurgeScheduler(ctx, a.audit, core.PurgeConfig{
				Schedule:      a.Config.Audit.PurgeSchedule,
				RetentionDays: a.Config.Audit.RetentionDays,
			}, a.Logger)
			if err != nil {
				a.Logger.Error("audit purge scheduler failed", "error", err)
			}
		}()
	}
}

// Serve runs the HTTP server until ctx is cancelled, then drains running
// imports and shuts down within Server.ShutdownTimeout.
func (a *App) Serve(ctx context.Context) error {
	server := web.NewServer(a.Service, a.Config)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server starting", "addr", a.Config.Server.Addr())
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if status := server.ImportStatus(); status.Active > 0 {
		a.Logger.Info("waiting for imports to complete", "active", status.Active)
		if err := server.WaitForImports(shutdownCtx); err != nil {
			a.Logger.Warn("imports did not complete in time", "error", err)
		} else {
			a.Logger.Info("all imports completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
