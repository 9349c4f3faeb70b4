package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/rvdberg/tweedekans-monitor/internal/api"
	"github.com/rvdberg/tweedekans-monitor/internal/browser"
	"github.com/rvdberg/tweedekans-monitor/internal/config"
	"github.com/rvdberg/tweedekans-monitor/internal/database"
	"github.com/rvdberg/tweedekans-monitor/internal/llm"
	"github.com/rvdberg/tweedekans-monitor/internal/monitor"
	"github.com/rvdberg/tweedekans-monitor/internal/notify"
	"github.com/rvdberg/tweedekans-monitor/internal/parser"
	"github.com/rvdberg/tweedekans-monitor/internal/price"
	"github.com/rvdberg/tweedekans-monitor/internal/scraper"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	b, err := browser.New(&browser.Options{
		Headless:           cfg.Browser.Headless,
		Timeout:            cfg.Browser.Timeout,
		ViewportWidth:      cfg.Browser.ViewportWidth,
		ViewportHeight:     cfg.Browser.ViewportHeight,
		AcceptLanguage:     cfg.Browser.AcceptLanguage,
		TimezoneID:         cfg.Browser.TimezoneID,
		Locale:             cfg.Browser.Locale,
		NetworkIdleTimeout: cfg.Scraper.NetworkIdleTimeout,
		SettleDelay:        cfg.Scraper.SettleDelay,
	})
	if err != nil {
		logger.Error("failed to initialize browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	relay := database.NewRelay(db, redisClient, logger, database.RelayConfig{})
	go func() {
		if err := relay.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("relay stopped with error", "error", err)
		}
	}()

	// Scrape pipeline: browser first, static fetch second, model fallback
	// only for fields the deterministic strategies miss.
	prices := price.NewParser(cfg.Price.MinCents, cfg.Price.MaxCents)
	pages := parser.New(prices, cfg.Scraper.BaseURL)
	fetcher := scraper.NewFetcher(cfg.Scraper.FetchTimeout, cfg.Browser.AcceptLanguage)

	strategies := []scraper.Strategy{
		scraper.NewBrowserStrategy(b, prices, cfg.Scraper.BaseURL, cfg.Scraper.NavRetries, cfg.Scraper.NavRetryDelay, logger),
		scraper.NewFetchStrategy(fetcher, pages, logger),
	}

	var fallback scraper.ModelExtractor
	if cfg.LLM.APIKey != "" {
		fallback = llm.New(llm.Options{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			MaxHTMLSize: cfg.LLM.MaxHTMLSize,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
	} else {
		logger.Warn("no LLM API key configured, model fallback disabled")
	}

	orchestrator := scraper.NewOrchestrator(strategies, pages, fetcher, fallback, logger)

	entries := database.NewEntryRepository(db)
	history := database.NewHistoryRepository(db)
	outbox := database.NewOutboxRepository(db)

	var notifier notify.Notifier
	if cfg.SMTP.Host != "" {
		notifier = notify.NewMailer(notify.MailerOptions{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		}, logger)
	} else {
		logger.Warn("no SMTP host configured, mail notifications disabled")
	}

	publisher := notify.NewEventPublisher(outbox, cfg.Redis.Stream)

	scheduler := monitor.NewScheduler(entries, history, orchestrator, notifier, publisher, cfg.Monitor.SweepInterval, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	handlers := api.NewHandlers(entries, history, scheduler, relay, cfg.Monitor.MinIntervalMinutes, logger)
	router := api.NewRouter(handlers)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.WriteTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
