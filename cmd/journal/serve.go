package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/laimis/stock-analysis-sub003/internal/alerts"
	"github.com/laimis/stock-analysis-sub003/internal/api"
	"github.com/laimis/stock-analysis-sub003/internal/cache"
	"github.com/laimis/stock-analysis-sub003/internal/config"
	"github.com/laimis/stock-analysis-sub003/internal/database"
	"github.com/laimis/stock-analysis-sub003/internal/journal"
	"github.com/laimis/stock-analysis-sub003/internal/kafka"
	"github.com/laimis/stock-analysis-sub003/internal/logging"
	"github.com/laimis/stock-analysis-sub003/internal/marketdata"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the trade consumer, alert scanner and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsDir); err != nil {
		return err
	}

	market := marketdata.NewClient(marketdata.Options{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
		Feed:      cfg.Alpaca.Feed,
	}, logger.Named("marketdata"))

	var quotes alerts.QuoteSource = market
	redisClient, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("quote cache disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		quotes = cache.NewQuoteCache(redisClient, market, cfg.Redis.QuoteTTL, logger.Named("cache"))
	}

	calendar, err := loadCalendar(ctx, cfg.Calendar.Path, market, logger)
	if err != nil {
		return fmt.Errorf("failed to load market calendar: %w", err)
	}

	registry := alerts.NewRegistry(cfg.Scanner.HistoryLimit)
	defer registry.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.AlertsTopic, cfg.Kafka.PositionTopic)
	defer producer.Close()

	svc := journal.NewService(db, registry, market, logger.Named("journal"),
		journal.WithPublisher(producer),
		journal.WithProfitLevel(cfg.Scanner.ProfitRRLevel),
	)
	if _, err := svc.LoadMonitors(ctx); err != nil {
		return err
	}

	patterns := alerts.DefaultPatternSettings()
	patterns.GapMinPct = cfg.Scanner.GapMinPct
	patterns.NewHighLookback = cfg.Scanner.NewHighLookback
	patterns.HistoryDays = cfg.Scanner.HistoryDays

	scanner := alerts.NewScanner(registry, calendar, quotes, market, logger.Named("scanner"),
		alerts.WithPublisher(producer),
		alerts.WithStore(db),
		alerts.WithPatternSettings(patterns),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic, cfg.Kafka.GroupID, svc, logger.Named("consumer"))

	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           api.SetupRoutes(api.NewHandler(svc, registry, db, db, logger.Named("api"))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() { errCh <- scanner.Run(ctx) }()
	go func() { errCh <- consumer.Start(ctx) }()
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("component stopped", zap.Error(runErr))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	return runErr
}
