package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campusworks/interndocs/internal/api"
	"github.com/campusworks/interndocs/internal/app"
	iauth "github.com/campusworks/interndocs/internal/auth"
	"github.com/campusworks/interndocs/internal/cache"
	"github.com/campusworks/interndocs/internal/database"
	"github.com/campusworks/interndocs/internal/middleware"
	"github.com/campusworks/interndocs/internal/notifications"
	"github.com/campusworks/interndocs/internal/services"
	"github.com/campusworks/interndocs/internal/storage"
	"github.com/campusworks/interndocs/pkg/logger"
	"github.com/campusworks/interndocs/pkg/mail"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("interndocs-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	// The signing secret is the one thing the server refuses to invent.
	tokens, err := iauth.NewTokenService(iauth.TokenConfig{
		Secret: strings.TrimSpace(cfg.Auth.JWT.Secret),
		Issuer: cfg.Auth.JWT.Issuer,
		TTL:    cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return err
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	blobs, err := initialiseStorage(ctx, cfg)
	if err != nil {
		return err
	}

	rateStore, closeRate := initialiseRateStore(cfg, db, log)
	defer closeRate()

	var mailer mail.Mailer
	if cfg.Email.SMTP.Enabled {
		mailer, err = mail.NewSMTPMailer(mail.SMTPSettings{
			Enabled:  true,
			Host:     cfg.Email.SMTP.Host,
			Port:     cfg.Email.SMTP.Port,
			Username: cfg.Email.SMTP.Username,
			Password: cfg.Email.SMTP.Password,
			From:     cfg.Email.SMTP.From,
			UseTLS:   cfg.Email.SMTP.UseTLS,
			Timeout:  cfg.Email.SMTP.Timeout,
		})
		if err != nil {
			return fmt.Errorf("initialise mailer: %w", err)
		}
	}

	hub := notifications.NewHub()

	notifSvc, err := services.NewNotificationService(db, hub, mailer)
	if err != nil {
		return fmt.Errorf("initialise notification service: %w", err)
	}

	docSvc, err := services.NewDocumentService(db, blobs, notifSvc)
	if err != nil {
		return fmt.Errorf("initialise document service: %w", err)
	}

	logSvc, err := services.NewVerificationLogService(db)
	if err != nil {
		return fmt.Errorf("initialise verification log service: %w", err)
	}

	userSvc, err := services.NewUserService(db, tokens)
	if err != nil {
		return fmt.Errorf("initialise user service: %w", err)
	}

	router, err := api.NewRouter(api.Deps{
		DB:            db,
		Config:        cfg,
		Tokens:        tokens,
		Hub:           hub,
		RateStore:     rateStore,
		Users:         userSvc,
		Documents:     docSvc,
		Logs:          logSvc,
		Notifications: notifSvc,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.Open(database.Config{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.Username,
		Password: cfg.Database.Password,
		Name:     cfg.Database.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := database.SeedAdmin(db, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return nil, fmt.Errorf("seed admin account: %w", err)
		}
	}

	return db, nil
}

func initialiseStorage(ctx context.Context, cfg *app.Config) (storage.BlobStore, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", "local":
		return storage.NewLocalStore(cfg.Storage.Local.Directory)
	case "minio", "s3":
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.Storage.Minio.Endpoint,
			AccessKey: cfg.Storage.Minio.AccessKey,
			SecretKey: cfg.Storage.Minio.SecretKey,
			Bucket:    cfg.Storage.Minio.Bucket,
			UseSSL:    cfg.Storage.Minio.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// initialiseRateStore prefers Redis so limits hold across instances, then
// falls back to the shared database table, keeping single-node deployments
// dependency-free.
func initialiseRateStore(cfg *app.Config, db *gorm.DB, log *zap.Logger) (middleware.RateStore, func()) {
	if cfg.Cache.Redis.Enabled {
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			Address:  cfg.Cache.Redis.Address,
			Username: cfg.Cache.Redis.Username,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			TLS:      cfg.Cache.Redis.TLS,
			Timeout:  cfg.Cache.Redis.Timeout,
		})
		if err != nil {
			log.Warn("redis unavailable; using database-backed rate counters", zap.Error(err))
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
			return middleware.NewSharedRateStore(redisStore), func() { _ = redisStore.Close() }
		}
	}

	dbStore := cache.NewDatabaseStore(db)
	return middleware.NewSharedRateStore(dbStore), func() { _ = dbStore.Close() }
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("access underlying database handle", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
