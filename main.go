package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"carwatch/config"
	"carwatch/fipe"
	"carwatch/models"
	"carwatch/notify"
	"carwatch/scraper"
	"carwatch/scraper/browser"
	"carwatch/services"
	"carwatch/storage"
	"carwatch/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	logger.SetDebug(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	logger.Info("=== Car price monitor starting (run %s) ===", runID)
	logger.Info("Config: FIPE budget %d | memory %s | notify unchanged %v",
		cfg.FipeMaxRequests, cfg.PriceMemoryPath, cfg.NotifyUnchanged)

	search, err := config.LoadSearchConfig(cfg.SearchConfigPath)
	if err != nil {
		logger.Error("Invalid search config: %v", err)
		os.Exit(1)
	}

	retry := &utils.RetryConfig{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   2 * time.Second,
		Logger:      logger,
	}

	// Price memory
	var memoryStore storage.PriceMemoryStore
	memory := models.PriceMemory{}
	memoryStore, err = storage.OpenMemoryStore(cfg.PriceMemoryPath)
	if err != nil {
		logger.Error("Price memory unavailable, changes will not be remembered: %v", err)
	} else {
		defer memoryStore.Close()
		memory, err = memoryStore.Load()
		if errors.Is(err, storage.ErrCorruptMemory) {
			logger.Warn("Starting with empty price memory: %v", err)
		} else if err != nil {
			logger.Error("Failed to load price memory: %v", err)
		}
		logger.Info("Loaded price memory: %d known listings", len(memory))
	}

	// Scrape
	chrome := browser.New(cfg.ChromeBin, logger)
	sources, err := scraper.NewSources(search, chrome, retry, logger)
	if err != nil {
		chrome.Close()
		logger.Error("%v", err)
		os.Exit(1)
	}
	results := scraper.ScrapeAll(ctx, sources, len(sources), cfg.RateLimit(), logger)
	chrome.Close()

	succeeded := scraper.Succeeded(results)
	for _, r := range results {
		if r.Err == nil {
			logger.Info("Source %s: %d listings", r.Source, len(r.Listings))
		}
	}

	cleaner := services.NewCleaner(logger, search.Exclude)
	listings := cleaner.Clean(scraper.Listings(results))

	// Classify and value
	catalog := fipe.NewCatalog(fipe.NewClient(cfg.FipeBaseURL, cfg.FipeTimeout), cfg.FipeMaxRequests, logger)
	matcher := fipe.NewMatcher(catalog, logger)
	monitor := services.NewMonitor(logger, matcher, services.MonitorOptions{
		RunID:           runID,
		NotifyUnchanged: cfg.NotifyUnchanged,
	})
	observations, updated := monitor.Run(ctx, listings, memory)
	logger.Info("FIPE: %d calls used, %d remaining", catalog.Calls(), catalog.Remaining())

	// Notify
	notifier, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger, retry)
	if err != nil {
		logger.Error("Telegram unavailable: %v", err)
	} else {
		notifier.NotifyBySource(ctx, observations, time.Now())
	}

	// Sinks
	writers := openWriters(cfg, logger)
	for _, w := range writers {
		if err := w.Write(observations); err != nil {
			logger.Error("Observation write failed: %v", err)
		}
	}

	// Memory is only replaced when the run actually saw a listing site.
	switch {
	case memoryStore == nil:
	case succeeded == 0:
		logger.Warn("All sources failed, price memory left untouched")
	default:
		if err := memoryStore.Save(updated); err != nil {
			logger.Error("Failed to save price memory: %v", err)
		} else {
			logger.Info("Price memory saved: %d listings", len(updated))
		}
	}

	insightSvc := services.NewInsightService(logger)
	report := insightSvc.Generate(observations)
	insightSvc.Print(report)

	for _, w := range writers {
		if pg, ok := w.(*storage.PostgresWriter); ok {
			printHistory(pg, report, logger)
		}
		_ = w.Close()
	}

	fmt.Printf("  Done. %d/%d sources ok | %d observations → %s\n\n",
		succeeded, len(sources), len(observations), cfg.CSVOutputPath)

	if succeeded == 0 {
		os.Exit(1)
	}
}

func openWriters(cfg *config.Config, logger *utils.Logger) []storage.ObservationWriter {
	var writers []storage.ObservationWriter

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
	} else {
		writers = append(writers, csvWriter)
	}

	if !cfg.PostgresEnabled {
		return writers
	}
	pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Error("Make sure Docker is running: docker compose up -d")
		return writers
	}
	return append(writers, pgWriter)
}

func printHistory(pg *storage.PostgresWriter, report *models.RunReport, logger *utils.Logger) {
	stats, err := pg.Stats()
	if err != nil {
		logger.Error("%v", err)
		return
	}
	logger.Info("History: %d records of %d listings | avg %s | min %s | max %s",
		stats.TotalRecords, stats.DistinctListings,
		utils.FormatBRL(stats.AveragePrice), utils.FormatBRL(stats.MinPrice), utils.FormatBRL(stats.MaxPrice))

	if report.BestDeal != nil {
		points, err := pg.History(report.BestDeal.Listing.CarID, 5)
		if err != nil {
			logger.Error("%v", err)
		}
		for _, p := range points {
			logger.Info("  %s  %-9s %s", p.CreatedAt.Format("2006-01-02 15:04"), p.Status, utils.FormatBRL(p.PriceNumeric))
		}
	}

	recent, err := pg.Recent(5)
	if err != nil {
		logger.Error("%v", err)
		return
	}
	for _, r := range recent {
		logger.Debug("  recent: %s %s %s (%s)", r.CarID, r.FullName, r.PriceDisplay, r.Status)
	}
}
