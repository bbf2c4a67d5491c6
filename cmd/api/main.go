package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/loomworks/millgo/internal/allocation"
	"github.com/loomworks/millgo/internal/config"
	"github.com/loomworks/millgo/internal/database"
	"github.com/loomworks/millgo/internal/handlers"
	"github.com/loomworks/millgo/internal/models"
	"github.com/loomworks/millgo/internal/production"
	"github.com/loomworks/millgo/internal/stockledger"
	"github.com/loomworks/millgo/internal/utils"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Initialize database (detects embedded vs external automatically)
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Note: db.Close() is called manually in shutdown handler below

	// 3. Synchronize schema
	logger.Info("synchronizing database schema")
	err = db.AutoMigrate(
		&models.Fabric{},
		&models.Roll{},
		&models.ProductionOrder{},
		&models.ProductionBatch{},
		&models.Demand{},
		&models.StockAggregate{},
		&models.StockMovement{},
		&models.OperatorAuth{},
	)
	if err != nil {
		logger.Warn("migration warning", zap.Error(err))
	} else {
		logger.Info("schema synchronized")
	}

	if err := ensureOperatorPIN(db.DB, cfg); err != nil {
		log.Fatalf("Failed to configure operator PIN: %v", err)
	}

	// 4. Wire the engine
	ledger := stockledger.New()
	prodSvc := production.NewService(db.DB, ledger, logger)
	allocEngine := allocation.NewEngine(db.DB, ledger, logger)

	// 5. Set up HTTP router
	router := handlers.NewRouter(db.DB, cfg, prodSvc, allocEngine, ledger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start server in goroutine
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sig := <-shutdown
	logger.Info("shutting down gracefully", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Close database (this also stops embedded PostgreSQL)
	logger.Info("closing database connection")
	if err := db.Close(); err != nil {
		logger.Warn("database close error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ensureOperatorPIN seeds the bcrypt PIN hash from OPERATOR_PIN on first run
// so a fresh install can log in. An existing hash is never overwritten here.
func ensureOperatorPIN(db *gorm.DB, cfg *config.Config) error {
	var count int64
	if err := db.Model(&models.OperatorAuth{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 || cfg.OperatorPIN == "" {
		return nil
	}
	hash, err := utils.HashPIN(cfg.OperatorPIN)
	if err != nil {
		return err
	}
	return db.Create(&models.OperatorAuth{PINHash: hash}).Error
}
