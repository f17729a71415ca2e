// Package server initializes and runs the application server. It wires the
// storage backends, the mail sender and the services, seeds the default
// user, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/authkeeper/internal/blob"
	"github.com/dmitrijs2005/authkeeper/internal/kvstore"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/mail"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/authkeeper/internal/server/migrations"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/session"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
)

type App struct {
	config       *config.Config
	logger       logging.Logger
	authService  *auth.Service
	server       *http.Server
	closeStorage func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewDefault()

	app := &App{config: cfg, logger: logger}

	for _, setting := range cfg.InsecureDefaults() {
		logger.Warn(ctx, "insecure built-in default still in use, override it before exposing the server", "setting", setting)
	}

	factory, closeStorage, err := NewFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closeStorage = closeStorage
	blobs, err := app.initBlobStorage(ctx)
	if err != nil {
		return nil, err
	}

	var sender mail.Sender
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	} else {
		logger.Warn(ctx, "no SMTP host configured, reset mails are only logged")
		sender = mail.NewCaptureSender()
	}

	userService := users.NewService(factory)
	authService := auth.NewService(userService, factory, sender, logger, cfg)
	app.authService = authService

	err = authService.SeedDefaultUser(ctx, &models.User{
		Username: cfg.DefaultAdminUser,
		Password: cfg.DefaultAdminPassword,
		Roles:    []string{"admin"},
	})
	if err != nil {
		return nil, fmt.Errorf("seeding default user: %w", err)
	}

	sessionManager := session.NewManager(factory, blobs, authService, logger, cfg)
	router := httpapi.NewServer(authService, userService, sessionManager, logger).Router()

	app.server = &http.Server{Addr: cfg.EndpointAddr, Handler: router}
	return app, nil
}

// NewFactory builds the key-value storage factory for the configured
// backend. The returned close function releases the backend connection, if
// any. Shared by the server and the admin CLI.
func NewFactory(ctx context.Context, cfg *config.Config) (kvstore.Factory, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageBackend {
	case config.BackendInMemory:
		return kvstore.NewInMemoryFactory(), noop, nil
	case config.BackendLocal:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("data dir init error: %w", err)
		}
		return kvstore.NewLocalFactory(cfg.DataDir, cfg.SubfolderChars), noop, nil
	case config.BackendPostgres:
		db, err := sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db init error: %w", err)
		}
		if err := migrations.Run(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("db migration error: %w", err)
		}
		return kvstore.NewPostgresFactory(db), db.Close, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis init error: %w", err)
		}
		return kvstore.NewRedisFactory(client), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}

func (app *App) initBlobStorage(ctx context.Context) (blob.Storage, error) {
	switch app.config.BlobBackend {
	case config.BlobInMemory:
		return blob.NewInMemoryStorage(), nil
	case config.BlobLocal:
		return blob.NewLocalStorage(app.config.BlobDir)
	case config.BlobS3:
		return blob.NewS3Storage(ctx, blob.S3Config{
			RootUser:     app.config.S3RootUser,
			RootPassword: app.config.S3RootPassword,
			Bucket:       app.config.S3Bucket,
			Region:       app.config.S3Region,
			BaseEndpoint: app.config.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", app.config.BlobBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	app.logger.Info(ctx, "starting HTTP server", "addr", app.config.EndpointAddr)

	if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startBlacklistSweeper(ctx context.Context) {
	ticker := time.NewTicker(app.config.BlacklistSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.authService.SweepBlacklist(ctx); err != nil {
				app.logger.Warn(ctx, "blacklist sweep failed", "error", err)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startBlacklistSweeper(ctx)
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "server shutdown error", "error", err)
	}

	wg.Wait()

	if err := app.closeStorage(); err != nil {
		app.logger.Error(ctx, "storage close error", "error", err)
	}
}
