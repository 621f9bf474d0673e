package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/navid-fn/premiumradar/configs"
	"github.com/navid-fn/premiumradar/internal/drivers/binance"
	"github.com/navid-fn/premiumradar/internal/drivers/coinbase"
	"github.com/navid-fn/premiumradar/internal/pipeline"
	"github.com/navid-fn/premiumradar/internal/publisher"
	"github.com/navid-fn/premiumradar/internal/scraper"
	"github.com/navid-fn/premiumradar/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/clickhouse"
	"gorm.io/gorm"
)

func main() {
	appConfig := configs.AppLoad()
	logger := scraper.NewLogger(appConfig.Log.Level, appConfig.Log.Format)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coinbaseFetcher := newFetcher(coinbase.New(appConfig.Coinbase.BaseURL), appConfig.Coinbase, logger)
	binanceFetcher := newFetcher(binance.New(appConfig.Binance.BaseURL), appConfig.Binance, logger)

	var conn driver.Conn
	if appConfig.StorageBackend == "clickhouse" || appConfig.Pipeline.History {
		var err error
		conn, err = storage.OpenClickHouse(appConfig.DBDSN)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer conn.Close()
	}

	tableA, tableB := openTables(appConfig, conn)
	defer tableA.Close()
	defer tableB.Close()

	var history storage.IndicatorHistory
	if appConfig.Pipeline.History {
		db, err := gorm.Open(clickhouse.Open(appConfig.DBDSN), &gorm.Config{})
		if err != nil {
			logger.WithError(err).Fatal("Failed to open indicator history")
		}
		history = storage.NewGormIndicatorHistory(db)
	}

	sink, closeSinks := newPublisher(appConfig.Publisher, logger)
	defer closeSinks()

	cfg := pipeline.Config{
		BackfillDays:    appConfig.Pipeline.BackfillDays,
		RefreshInterval: appConfig.Pipeline.RefreshInterval,
		RefreshLookback: appConfig.Pipeline.RefreshLookback,
		ErrorCooldown:   appConfig.Pipeline.ErrorCooldown,
		Tolerance:       appConfig.Pipeline.AlignTolerance,
		Batch:           scraper.DefaultBatchConfig(),
	}

	sourceA := pipeline.NewSource(coinbaseFetcher, appConfig.Coinbase.Markets, tableA)
	sourceA.Batch = scraper.BatchConfig{Size: appConfig.Coinbase.BatchSize, Delay: appConfig.Coinbase.BatchDelay}
	sourceB := pipeline.NewSource(binanceFetcher, appConfig.Binance.Markets, tableB)
	sourceB.Batch = scraper.BatchConfig{Size: appConfig.Binance.BatchSize, Delay: appConfig.Binance.BatchDelay}

	p := pipeline.New(
		cfg,
		sourceA,
		sourceB,
		sink,
		history,
		logger,
	)

	logger.WithFields(logrus.Fields{
		"coinbase_markets": len(appConfig.Coinbase.Markets),
		"binance_markets":  len(appConfig.Binance.Markets),
		"storage":          appConfig.StorageBackend,
	}).Info("Starting premium radar")

	if err := p.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Pipeline failed")
	}
	logger.Info("Shutdown complete")
}

func newFetcher(ex scraper.Exchange, cfg configs.ExchangeConfig, logger *logrus.Logger) *scraper.Fetcher {
	log := logger.WithField("exchange", ex.Name())
	limiter := scraper.NewSlidingWindowLimiter(cfg.RateBudget, scraper.DefaultRateWindow, log)

	httpCfg := scraper.DefaultHTTPConfig()
	httpCfg.RequestDelay = cfg.RequestDelay
	httpCfg.RequestTimeout = cfg.RequestTimeout
	httpCfg.Retry.MaxAttempts = cfg.MaxAttempts
	httpCfg.Retry.BackoffBase = cfg.BackoffBase

	return scraper.NewFetcher(ex, limiter, httpCfg, log)
}

func openTables(cfg *configs.AppConfig, conn driver.Conn) (storage.Table, storage.Table) {
	if cfg.StorageBackend == "clickhouse" {
		return storage.NewClickHouseTable(conn, coinbase.Name), storage.NewClickHouseTable(conn, binance.Name)
	}
	return storage.NewCSVTable(filepath.Join(cfg.DataDir, coinbase.Name+"_5m.csv")),
		storage.NewCSVTable(filepath.Join(cfg.DataDir, binance.Name+"_5m.csv"))
}

// newPublisher builds every configured sink and a func that releases them.
func newPublisher(cfg configs.PublisherConfig, logger *logrus.Logger) (publisher.Publisher, func()) {
	var sinks []publisher.Publisher
	var closers []func()

	if cfg.DashboardURL != "" {
		sinks = append(sinks, publisher.NewHTTPPublisher(cfg.DashboardURL, cfg.Timeout))
	}

	if cfg.KafkaBroker != "" {
		kp := publisher.NewKafkaPublisher(publisher.NewKafkaWriter(cfg.KafkaBroker, cfg.KafkaTopic))
		sinks = append(sinks, kp)
		closers = append(closers, func() { _ = kp.Close() })
	}

	if cfg.WSAddr != "" {
		b := publisher.NewBroadcaster(logger.WithField("sink", "websocket"))
		mux := http.NewServeMux()
		mux.Handle("/ws", b.Handler())
		srv := &http.Server{Addr: cfg.WSAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Websocket server stopped")
			}
		}()
		sinks = append(sinks, b)
		closers = append(closers, func() {
			_ = b.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		})
	}

	if len(sinks) == 0 {
		logger.Warn("No publisher configured, records are only logged")
	}

	return publisher.NewMulti(logger, sinks...), func() {
		for _, c := range closers {
			c()
		}
	}
}
