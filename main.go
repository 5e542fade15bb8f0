package main

import (
	"context"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/taxdeclaration/backend/src/config"
	"github.com/username/taxdeclaration/backend/src/database"
	"github.com/username/taxdeclaration/backend/src/datasource"
	"github.com/username/taxdeclaration/backend/src/handlers"
	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/parsers"
	"github.com/username/taxdeclaration/backend/src/processors"
	"github.com/username/taxdeclaration/backend/src/report"
	"github.com/username/taxdeclaration/backend/src/security"
	"github.com/username/taxdeclaration/backend/src/services"
	"github.com/username/taxdeclaration/backend/src/utils"
)

const purgeInterval = 15 * time.Minute

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Declaration backend server starting...")

	layout, err := parsers.LoadLayout(config.Cfg.SheetLayoutPath)
	if err != nil {
		logger.L.Error("Invalid sheet layout", "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	source := datasource.NewWorkbookSource(config.Cfg.WorkbookPath)
	if _, err := source.ModTime(); err != nil {
		logger.L.Warn("Workbook not available at startup, requests will fail until it appears", "path", config.Cfg.WorkbookPath, "error", err)
	}
	reader := parsers.NewSheetReader(source, layout)
	ledgerCache := services.NewLedgerCache(source, reader, config.Cfg.LedgerScanLimit)

	tolerance, err := decimal.NewFromString(config.Cfg.ConsistencyTolerance)
	if err != nil {
		logger.L.Warn("Invalid CONSISTENCY_TOLERANCE, using default", "value", config.Cfg.ConsistencyTolerance, "default", processors.DefaultTolerance)
		tolerance = processors.DefaultTolerance
	}

	logger.L.Info("Initializing services and handlers...")
	locator := processors.NewClientLocator(reader)
	aggregator := processors.NewAggregationProcessor(ledgerCache, processors.AggregationOptions{
		RevenueToken:  config.Cfg.RevenueToken,
		ExpenseToken:  config.Cfg.ExpenseToken,
		NameThreshold: config.Cfg.LedgerNameThreshold,
	})
	reconciler := processors.NewReconciliationProcessor(tolerance)
	renderer := report.NewHTMLRenderer(report.Issuer{
		CompanyName:  config.Cfg.CompanyName,
		CompanyCNPJ:  config.Cfg.CompanyCNPJ,
		CalendarYear: config.Cfg.CalendarYear,
	})
	failures := services.NewFailureTracker(services.NewAlertService(), config.Cfg.AlertThreshold)
	resultCache := cache.New(config.Cfg.ResultCacheTTL, services.CacheCleanupInterval)

	declarationService := services.NewDeclarationService(
		source, locator, aggregator, reconciler, renderer, failures, resultCache,
		services.DeclarationOptions{
			AllowGenerationDespiteDiscrepancy: config.Cfg.AllowGenerationDespiteDiscrepancy,
			OutputDir:                         config.Cfg.OutputDir,
			ResultCacheTTL:                    config.Cfg.ResultCacheTTL,
		},
	)
	tokenService := security.NewTokenService(config.Cfg.DownloadTokenSecret, config.Cfg.DownloadTokenExpiry)
	taskService := services.NewTaskService(database.DB, declarationService, tokenService, services.TaskOptions{
		Workers:   config.Cfg.TaskWorkers,
		QueueSize: config.Cfg.TaskQueueSize,
		TimeLimit: config.Cfg.TaskTimeLimit,
		Retention: config.Cfg.TaskRetention,
		OutputDir: config.Cfg.OutputDir,
	})
	adminAuth := security.NewAdminAuth(config.Cfg.AdminUser, config.Cfg.AdminPasswordHash)

	declarationHandler := handlers.NewDeclarationHandler(declarationService, taskService, tokenService, config.Cfg.OutputDir)
	adminHandler := handlers.NewAdminHandler(adminAuth, ledgerCache, declarationService)
	healthHandler := handlers.NewHealthHandler(handlers.HealthDeps{
		Source:   source,
		DB:       database.DB,
		Ledger:   ledgerCache,
		Tasks:    taskService,
		Failures: failures,
	})

	logger.L.Info("Configuring routes...")
	if err := utils.SetTrustedProxies(config.Cfg.TrustedProxies); err != nil {
		logger.L.Error("Invalid TRUSTED_PROXIES", "error", err)
		os.Exit(1)
	}
	limiter := handlers.NewRateLimiter()
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	handlers.RegisterRoutes(apiRouter, declarationHandler, adminHandler, healthHandler, limiter, handlers.RouteLimits{
		Search:   config.Cfg.SearchRateLimit,
		Generate: config.Cfg.GenerateRateLimit,
		Async:    config.Cfg.AsyncRateLimit,
		Download: config.Cfg.DownloadRateLimit,
		Admin:    config.Cfg.AdminRateLimit,
	})

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Declaration backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := handlers.RequestLogger(handlers.SecurityHeaders(handlers.CORS(config.Cfg.CORSOrigins)(rootMux)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if _, err := ledgerCache.Snapshot(ctx); err != nil {
			logger.L.Warn("Initial ledger load failed", "error", err)
		}
	}()
	go purgeLoop(ctx, taskService)

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		logger.L.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("HTTP server shutdown failed", "error", err)
		}
		if err := taskService.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("Task service shutdown failed", "error", err)
		}
	}()

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	}
	<-shutdownDone
	logger.L.Info("Server stopped gracefully.")
}

// purgeLoop removes expired tasks and documents until ctx is done.
func purgeLoop(ctx context.Context, tasks services.TaskService) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := tasks.PurgeExpired(ctx); err != nil {
				logger.L.Error("Purge of expired tasks failed", "error", err)
			}
		}
	}
}
