package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/smart-budget/internal/api/handlers"
	"github.com/dvloznov/smart-budget/internal/api/middleware"
	"github.com/dvloznov/smart-budget/internal/categorize"
	"github.com/dvloznov/smart-budget/internal/config"
	"github.com/dvloznov/smart-budget/internal/jobs/inmemory"
	"github.com/dvloznov/smart-budget/internal/logger"
	mirrorBQ "github.com/dvloznov/smart-budget/internal/mirror/bigquery"
	"github.com/dvloznov/smart-budget/internal/override"
	"github.com/dvloznov/smart-budget/internal/store/sqlite"
	"github.com/gorilla/mux"
)

func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Flags override the environment
	var (
		port     = flag.Int("port", cfg.Port, "HTTP server port (or set PORT env)")
		dbPath   = flag.String("db", cfg.DBPath, "SQLite database path (or set DB_PATH env)")
		modelURI = flag.String("model", cfg.ModelURI, "Model artifact path or gs:// URI (or set MODEL_URI env)")
	)
	flag.Parse()
	cfg.Port = *port
	cfg.DBPath = *dbPath
	cfg.ModelURI = *modelURI

	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	ctx := logger.WithContext(context.Background(), log)

	// Initialize repositories
	store, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("Failed to open transaction store")
	}
	defer store.Close()

	rules, err := override.LoadRules(cfg.RulesPath)
	if err != nil {
		log.Fatal().Err(err).Str("rules_path", cfg.RulesPath).Msg("Failed to load override rules")
	}

	var opts []categorize.Option

	// The service treats a nil predictor as "model not loaded"
	predictor, err := categorize.LoadPredictor(ctx, cfg, rules)
	if err != nil {
		log.Warn().
			Err(err).
			Str("backend", cfg.ClassifierBackend).
			Str("model_uri", cfg.ModelURI).
			Msg("Classifier not loaded - predictions will fail until restart")
	} else {
		log.Info().Str("backend", cfg.ClassifierBackend).Msg("Classifier loaded")
	}

	// Initialize the optional analytics mirror and its job infrastructure
	var (
		jobsHandler *handlers.JobsHandler
		jobQueue    *inmemory.Queue
		mirror      *mirrorBQ.Mirror
	)
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if cfg.MirrorEnabled() {
		mirror, err = mirrorBQ.NewMirror(ctx, cfg.BQProject, cfg.BQDataset, cfg.BQTable)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery mirror")
		}
		defer mirror.Close()

		if err := mirror.EnsureTable(ctx); err != nil {
			log.Warn().Err(err).Msg("Could not ensure mirror table - inserts may fail")
		}

		jobStore := inmemory.NewStore()
		jobQueue = inmemory.NewQueue(100, jobStore)

		// Start job consumer in background
		go func() {
			log.Info().Str("project", cfg.BQProject).Msg("Starting mirror worker")
			if err := jobQueue.Start(workerCtx, mirror.Handler()); err != nil {
				log.Error().Err(err).Msg("Mirror worker stopped with error")
			}
		}()

		opts = append(opts, categorize.WithPublisher(jobQueue))
		jobsHandler = handlers.NewJobsHandler(jobStore, log)
	} else {
		log.Info().Msg("No BQ_PROJECT configured - analytics mirror disabled")
	}

	svc := categorize.NewService(predictor, override.NewResolver(rules), store, opts...)

	// Initialize handlers
	transactionsHandler := handlers.NewTransactionsHandler(svc, log)
	healthHandler := handlers.NewHealthHandler(svc)
	categoriesHandler := handlers.NewCategoriesHandler(svc)

	// Create router
	router := mux.NewRouter()
	handlers.RegisterRoutes(router, transactionsHandler, healthHandler, categoriesHandler, jobsHandler)

	// Apply middleware
	handler := middleware.Chain(router,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS(cfg.CORSOrigins),
		middleware.Timeout(cfg.RequestTimeout),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", strconv.Itoa(cfg.Port)).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if jobQueue != nil {
		// Stop job queue and wait for in-flight mirror inserts
		if err := jobQueue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
		cancelWorker()
		if err := jobQueue.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close job queue")
		}
	}

	log.Info().Msg("Server exited")
}
