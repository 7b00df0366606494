package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/mpetrenko/auth-backend/internal/avatar"
	"github.com/mpetrenko/auth-backend/internal/config"
	"github.com/mpetrenko/auth-backend/internal/database"
	"github.com/mpetrenko/auth-backend/internal/handlers"
	"github.com/mpetrenko/auth-backend/internal/logging"
	"github.com/mpetrenko/auth-backend/internal/mail"
	"github.com/mpetrenko/auth-backend/internal/middleware"
	"github.com/mpetrenko/auth-backend/internal/repository"
	"github.com/mpetrenko/auth-backend/internal/routes"
	"github.com/mpetrenko/auth-backend/internal/services"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Upload directories
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		slog.Error("failed to create temp directory", "path", cfg.TempDir, "error", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.AvatarsDir, 0o755); err != nil {
		slog.Error("failed to create avatars directory", "path", cfg.AvatarsDir, "error", err)
		os.Exit(1)
	}

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Audit log handler (ERROR+ async batch to Postgres)
	dbLogHandler := logging.NewDBHandler(db)
	slog.SetDefault(slog.New(logging.NewFanout(
		logging.NewStdoutHandler(),
		dbLogHandler,
	)))

	// Log retention sweep
	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cfg.LogRetentionDays, cleanupDone)

	// Collaborators and workflow core
	repo := repository.NewUsers(db)
	mailer := mail.NewSMTPSender(cfg)
	ingestor := avatar.NewIngestor(cfg.TempDir, cfg.AvatarsDir)
	userService := services.NewUserService(repo, mailer, cfg)

	// Handlers
	userHandler := handlers.NewUserHandler(userService, ingestor)
	healthHandler := handlers.NewHealthHandler(db)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    5 * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Stored avatar URLs are relative ("avatars/<name>")
	app.Static("/avatars", cfg.AvatarsDir)

	// Routes
	routes.Setup(app, cfg, repo, userHandler, healthHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)
	dbLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}
