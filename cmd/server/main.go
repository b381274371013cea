package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/stockfood/traceflow/internal/cache"
	"github.com/stockfood/traceflow/internal/config"
	"github.com/stockfood/traceflow/internal/dedup"
	"github.com/stockfood/traceflow/internal/export"
	httpserver "github.com/stockfood/traceflow/internal/interfaces/http"
	"github.com/stockfood/traceflow/internal/repository"
	"github.com/stockfood/traceflow/internal/service"
	"github.com/stockfood/traceflow/pkg/database"
	"github.com/stockfood/traceflow/pkg/utils"
)

func main() {
	// Optional .env for local development; environment wins over file.
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice reconciliation engine",
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	invoiceRepo := repository.NewInvoiceRepository(db.DB, logger)
	mappingRepo := repository.NewMappingRepository(db.DB, logger)
	ingredientRepo := repository.NewIngredientRepository(db.DB, logger)
	lotRepo := repository.NewLotRepository(db.DB, logger)
	movementRepo := repository.NewMovementRepository(db.DB, logger)

	// Ingredient directory cache: redis when configured, no-op otherwise.
	var ingredientCache cache.IngredientCache = cache.NoopIngredientCache{}
	if cfg.Redis.Addr != "" {
		ingredientCache = cache.NewRedisIngredientCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		logger.Info("Ingredient cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Services
	ingredients := service.NewIngredientProvider(ingredientRepo, ingredientCache, cfg.Redis.TTL, logger)
	gate := dedup.NewGate(invoiceRepo, logger)
	ledger := service.NewLedgerService(db, lotRepo, movementRepo, logger)
	reconcile := service.NewReconcileService(
		db, invoiceRepo, mappingRepo, ledger, gate, ingredients, cfg.Matching, logger)
	mappings := service.NewMappingService(mappingRepo, ingredients, cfg.Matching, logger)
	trace := service.NewTraceService(lotRepo, invoiceRepo, ingredients, logger)
	reporter := export.NewExpiryReporter(cfg.Export.CompanyName, logger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, reconcile, mappings, trace, ledger, reporter, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
