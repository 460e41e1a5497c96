package scraper

import (
	"context"
	"fmt"
	"time"

	"carwatch/config"
	"carwatch/models"
	"carwatch/scraper/autocarro"
	"carwatch/scraper/browser"
	"carwatch/scraper/webmotors"
	"carwatch/utils"
)

// Source is one listing site search.
type Source interface {
	Name() string
	Scrape(ctx context.Context) ([]*models.ListingRecord, error)
}

// Result is the outcome of scraping one source.
type Result struct {
	Source   string
	Listings []*models.ListingRecord
	Err      error
}

// NewSources builds a Source per configured search, all sharing one browser.
func NewSources(sc *config.SearchConfig, b *browser.Browser, retry *utils.RetryConfig, logger *utils.Logger) ([]Source, error) {
	sources := make([]Source, 0, len(sc.Sources))
	for _, src := range sc.Sources {
		switch src.Kind {
		case config.KindAutocarro:
			sources = append(sources, autocarro.New(src, b, retry, logger))
		case config.KindWebmotors:
			sources = append(sources, webmotors.New(src, b, retry, logger))
		default:
			return nil, fmt.Errorf("scraper: unknown source kind %q", src.Kind)
		}
	}
	return sources, nil
}

// ScrapeAll runs every source through a worker pool and returns the results
// in source order. A failed source does not stop the others.
func ScrapeAll(ctx context.Context, sources []Source, maxWorkers int, interval time.Duration, logger *utils.Logger) []Result {
	results := make([]Result, len(sources))
	pool := utils.NewWorkerPool(maxWorkers, interval)

	for i, src := range sources {
		i, src := i, src
		pool.Submit(func() {
			listings, err := src.Scrape(ctx)
			if err != nil {
				logger.Error("[scraper] %s failed: %v", src.Name(), err)
			}
			results[i] = Result{Source: src.Name(), Listings: listings, Err: err}
		})
	}
	pool.Wait()

	return results
}

// Succeeded counts the sources that returned without error.
func Succeeded(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Listings concatenates the listings of all results in source order.
func Listings(results []Result) []*models.ListingRecord {
	var all []*models.ListingRecord
	for _, r := range results {
		all = append(all, r.Listings...)
	}
	return all
}
