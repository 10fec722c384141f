package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/festra/festra-api/internal/config"
	"github.com/festra/festra-api/internal/handlers"
	"github.com/festra/festra-api/internal/idempotency"
	"github.com/festra/festra-api/internal/middleware"
	"github.com/festra/festra-api/internal/migration"
	"github.com/festra/festra-api/internal/notification"
	"github.com/festra/festra-api/internal/push"
	"github.com/festra/festra-api/internal/queue"
	"github.com/festra/festra-api/internal/repository"
	"github.com/festra/festra-api/internal/routes"
	"github.com/festra/festra-api/internal/scheduler"
	"github.com/festra/festra-api/internal/worker"
	"github.com/go-redis/redis/v8"
	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config *config.Config
	db     *sql.DB
	logger zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	app := &application{
		config: cfg,
		db:     db,
		logger: logger,
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)

	// Push gateway client.
	pushClient := push.NewClient(push.ClientConfig{
		BaseURL:     cfg.Push.BaseURL,
		AccessToken: cfg.Push.AccessToken,
		Timeout:     cfg.Push.Timeout,
	}, logger)

	// Optional abandoned-receipt email alerts.
	var alerter notification.Alerter
	if cfg.Email.SMTPHost != "" {
		emailAlerter, err := notification.NewEmailAlerter(cfg.Email, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure email alerter")
		}
		alerter = emailAlerter
	}

	// Core pipeline.
	dispatcher := notification.NewDispatcher(userRepo, receiptRepo, pushClient, logger)
	reconciler := notification.NewReconciler(receiptRepo, userRepo, pushClient, cfg.Reconcile.ReceiptWindow, alerter, logger)

	dispatchWorker := worker.NewWorker(worker.Config{
		Notifications: notificationRepo,
		Dispatcher:    dispatcher,
		PollInterval:  cfg.Dispatch.PollInterval,
	}, logger)

	// Receipt reconciliation schedule.
	reconcileScheduler, err := scheduler.NewReconcileScheduler(cfg.Reconcile.Schedule, reconciler, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid reconcile schedule")
	}
	reconcileScheduler.Start()
	defer reconcileScheduler.Stop()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	go func() {
		if err := dispatchWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("dispatch worker exited")
		}
	}()

	// Optional RabbitMQ trigger path. The polling worker covers dispatch on
	// its own when the broker is not configured.
	var publisher handlers.DispatchPublisher
	if cfg.RabbitMQURL != "" {
		manager, err := queue.NewManager(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer manager.Close()

		if err := manager.DeclareDispatchTopology(cfg.Dispatch.Queue); err != nil {
			logger.Fatal().Err(err).Msg("Failed to declare dispatch topology")
		}

		publisher = queue.NewPublisher(manager.Connection(), cfg.Dispatch.Queue)
		consumer := queue.NewConsumer(manager.Connection(), cfg.Dispatch.Queue, dispatchWorker, logger)
		go func() {
			if err := consumer.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("dispatch consumer exited")
			}
		}()
	}

	// Optional Redis-backed idempotency guard for the broadcast endpoint.
	var guard *idempotency.Guard
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid redis url")
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		guard = idempotency.NewGuard(redisClient)
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(userRepo, notificationRepo, publisher, guard)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"*"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization", "Idempotency-Key"}),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, stopWorkers, logger)

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(userRepo repository.UserRepository, notificationRepo repository.NotificationRepository, publisher handlers.DispatchPublisher, guard *idempotency.Guard) http.Handler {
	authHandler := handlers.NewAuthHandler(userRepo, app.config.JWTSecret, app.logger)
	deviceHandler := handlers.NewDeviceHandler(userRepo, app.logger)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, publisher, guard, app.logger)

	return routes.NewRouter(authHandler, deviceHandler, notificationHandler)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, stopWorkers context.CancelFunc, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Stop the dispatch worker and queue consumer.
	logger.Info().Msg("Stopping background workers...")
	stopWorkers()
	logger.Info().Msg("Background workers stopped.")
}
