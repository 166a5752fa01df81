package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tinylink/docs"
	"tinylink/internal/config"
	"tinylink/internal/database"
	"tinylink/internal/events"
	"tinylink/internal/handlers"
	"tinylink/internal/logger"
	"tinylink/internal/repository"
	"tinylink/internal/service"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Logging)
	appLogger := logger.Default()

	appLogger.Info("Starting TinyLink on port %d (env: %s)", cfg.Port, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error("Server exited with error: %v", err)
		os.Exit(1)
	}
	appLogger.Info("Server shutdown completed successfully")
}

func run(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) error {
	repo, closeStore, err := openStore(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Event hub is optional; the service publishes to a no-op otherwise
	var publisher events.Publisher = events.Nop{}
	var hub *events.Hub
	if cfg.EventsEnabled {
		hub = events.NewHub(cfg.CORSOrigin, appLogger.With("component", "events"))
		publisher = hub
	}

	appLogger.Info("Initializing services")
	linkService := service.NewLinkService(repo, appLogger,
		service.WithPublisher(publisher),
		service.WithMaxCodeAttempts(cfg.MaxCodeAttempts),
	)
	docService := service.NewDocumentService(docs.FS, appLogger)

	appLogger.Info("Initializing handlers")
	var eventsHandler http.Handler
	if hub != nil {
		eventsHandler = hub
	}
	handler := handlers.NewHandler(linkService, eventsHandler, cfg, appLogger)
	docHandler := handlers.NewDocumentHandler(docService, appLogger)

	// Document routes go first; /{shortCode} catches every other single segment
	router := mux.NewRouter()
	docHandler.RegisterRoutes(router)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handlers.Middleware(router, cfg, appLogger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if hub != nil {
		g.Go(func() error {
			return hub.Run(gctx)
		})
	}

	g.Go(func() error {
		appLogger.Info("Starting HTTP server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down HTTP server (timeout: 30s)")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStore connects to PostgreSQL when DATABASE_URL is a postgres URL and
// to a SQLite file otherwise. The returned func releases the connection.
func openStore(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (service.LinkRepository, func(), error) {
	if cfg.UsesPostgres() {
		appLogger.Info("Connecting to PostgreSQL (max conns: %d)", cfg.DBMaxConns)
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, nil, err
		}

		appLogger.Info("Running database migrations")
		if err := database.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewPostgresLinkRepository(pool, appLogger), pool.Close, nil
	}

	appLogger.Info("Initializing database: %s", cfg.DatabaseURL)
	db, err := database.NewSQLiteDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	appLogger.Info("Running database migrations")
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	appLogger.Info("Database migrations completed successfully")

	closeDB := func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Failed to close database: %v", err)
		}
	}
	return repository.NewLinkRepository(db, appLogger), closeDB, nil
}
