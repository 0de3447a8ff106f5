// Command netlensd is the main executable for the NetLens analyzer service.
// It initializes the database, parser engines, analysis service, and HTTP API
// server, and handles graceful shutdown when terminated. With -analyze it runs
// a single batch over a directory and exits instead of serving HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netlens/internal/analysis"
	"netlens/internal/anomaly"
	"netlens/internal/api"
	"netlens/internal/config"
	"netlens/internal/database"
	"netlens/internal/engine"
)

// Global variables for command line flags
var (
	logLevelFlag string
	analyzeFlag  string
)

// parseFlags parses command line flags and returns the config path
func parseFlags() string {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&analyzeFlag, "analyze", "", "Analyze a directory or file once and exit")
	flag.Parse()
	return *configPath
}

func main() {
	// Parse command line flags
	configPath := parseFlags()

	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(logLevelFlag)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use colored console output for development
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	log.Info().Msg("Starting NetLens analyzer")

	// Load configuration
	cfg := config.GetConfig()
	if err := cfg.LoadConfig(configPath); err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}

	// Initialize database
	log.Info().Str("path", cfg.Database.Path).Msg("Initializing database")
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Initialize parser engines and analysis service with the configured
	// anomaly thresholds and classification sample size
	registry := engine.DefaultRegistryWith(anomaly.ThresholdsFromConfig(cfg))
	arbitrator := engine.NewArbitratorWith(registry, cfg.Analyzer.SamplePrefixKB*1024)
	service := analysis.New(cfg, db, arbitrator)

	// One-shot mode: analyze the given path and exit
	if analyzeFlag != "" {
		runOnce(service, db, analyzeFlag)
		return
	}

	// Initialize router and API handlers
	router := mux.NewRouter()

	// Create API handlers
	analysisHandler := api.NewAnalysisHandler(service)
	recordHandler := api.NewRecordHandler(db)
	topologyHandler := api.NewTopologyHandler(db)
	statusHandler := api.NewStatusHandler(db)

	// Register API routes
	analysisHandler.RegisterRoutes(router)
	recordHandler.RegisterRoutes(router)
	topologyHandler.RegisterRoutes(router)
	statusHandler.RegisterRoutes(router)

	// Set up CORS
	corsMiddleware := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	// Set up HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware(router),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for termination signal
	sig := <-signalChan
	log.Info().Str("signal", sig.String()).Msg("Received termination signal")

	// Begin graceful shutdown
	log.Info().Msg("Shutting down...")

	// Create a shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown HTTP server
	log.Info().Msg("Shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Cancel any in-flight analysis
	service.Cancel()

	// Optimize database before exit
	log.Info().Msg("Optimizing database before exit")
	if err := db.OptimizeDatabase(); err != nil {
		log.Error().Err(err).Msg("Database optimization failed")
	}

	log.Info().Msg("NetLens has been shut down gracefully")
}

// runOnce analyzes a directory or single file as one batch and prints a
// short summary to stdout
func runOnce(service *analysis.Service, db *database.DB, path string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID, records, err := service.AnalyzeDirectory(ctx, path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Analysis failed")
	}

	for _, rec := range records {
		fmt.Printf("%s\tvendor=%s\thealth=%d\tfindings=%d\tinterfaces=%d\n",
			rec.Identity(), rec.Vendor, rec.HealthScore, len(rec.Findings), len(rec.Interfaces))
	}

	stats := service.GetStatus()
	log.Info().
		Int64("run_id", runID).
		Int("parsed", stats.FilesParsed).
		Int("failed", stats.FilesFailed).
		Msg("Analysis complete")

	if err := db.OptimizeDatabase(); err != nil {
		log.Error().Err(err).Msg("Database optimization failed")
	}
}
