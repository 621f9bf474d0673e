package main

import (
	"database/sql"

	"github.com/navid-fn/premiumradar/configs"
	"github.com/navid-fn/premiumradar/internal/migrations"
	"github.com/navid-fn/premiumradar/internal/scraper"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
)

func main() {
	cfg := configs.AppLoad()
	logger := scraper.NewLogger(cfg.Log.Level, cfg.Log.Format)

	// Connect using native ClickHouse driver
	db, err := sql.Open("clickhouse", cfg.DBDSN)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Verify connection
	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("Failed to ping database")
	}

	logger.Info("Running database migrations...")
	if err := migrations.Up(db); err != nil {
		logger.WithError(err).Fatal("Goose migration failed")
	}

	logger.Info("Migrations completed successfully")
}
