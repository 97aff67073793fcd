package main

import (
	"context"
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
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/cache"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/config"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/database"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/janitor"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/logging"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/routes"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/services"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/store"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := config.Load()
	usedFallback, err := cfg.Validate()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if usedFallback {
		slog.Warn("JWT_SECRET is not set; using the insecure development secret. Tokens are forgeable.")
	}
	if cfg.OpenAIAPIKey == "" {
		slog.Warn("OPENAI_API_KEY is not set; chat requests will fail")
	}

	// Database
	db, err := database.Open(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Error logs also go to the system_logs table
	dbLogHandler := logging.NewDBHandler(db, 5*time.Second)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		logging.NewJSONHandler(os.Stdout),
		dbLogHandler,
	)))

	// Services
	st := store.New(db)
	tokenService := services.NewTokenService(cfg.JWTSecret)
	dbDenylist := services.NewDBDenylist(st)

	var denylist services.Denylist = dbDenylist
	var redisDenylist *cache.RedisDenylist
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisDenylist, err = cache.NewRedisDenylist(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			slog.Error("redis unavailable", "error", err)
			os.Exit(1)
		}
		denylist = redisDenylist
		slog.Info("token denylist backed by redis")
	}

	authService := services.NewAuthService(st, tokenService, denylist)
	chatService := services.NewChatService(st, services.NewOpenAIClient(cfg))

	// Daily cleanup of old error logs and expired denylist rows
	cleanupDone := make(chan struct{})
	janitor.Start(24*time.Hour, cleanupDone,
		janitor.Task{Name: "system_logs", Run: logging.PurgeExpired(db)},
		janitor.Task{Name: "revoked_tokens", Run: dbDenylist.Purge},
	)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(authService)
	chatHandler := handlers.NewChatHandler(chatService)
	healthHandler := handlers.NewHealthHandler(db)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Env,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())

	// Routes
	routes.Setup(app, cfg, middleware.RequireUser(tokenService, st, denylist),
		authHandler, userHandler, chatHandler, healthHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	close(cleanupDone)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	dbLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if redisDenylist != nil {
		if err := redisDenylist.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if err := database.Close(db); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}
