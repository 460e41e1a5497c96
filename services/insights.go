package services

import (
	"fmt"
	"sort"
	"strings"

	"carwatch/models"
	"carwatch/utils"
)

var statusOrder = []models.Status{
	models.StatusNew, models.StatusDecreased, models.StatusIncreased, models.StatusUnchanged,
}

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(observations []*models.Observation) *models.RunReport {
	report := &models.RunReport{
		ByStatus: make(map[models.Status]int),
		BySource: make(map[string]int),
	}

	if len(observations) == 0 {
		return report
	}

	report.TotalObservations = len(observations)

	var priced int
	var total float64
	for _, o := range observations {
		report.ByStatus[o.Status]++
		if o.Listing == nil {
			continue
		}
		if o.Listing.Source != "" {
			report.BySource[o.Listing.Source]++
		}

		if p := o.Listing.NumericPrice; p > 0 {
			if priced == 0 || p < report.MinPrice {
				report.MinPrice = p
			}
			if p > report.MaxPrice {
				report.MaxPrice = p
			}
			total += p
			priced++
		}

		if pct, ok := o.FipeDiffPercent(); ok {
			report.Valued++
			if o.Listing.NumericPrice > 0 && (report.BestDeal == nil || pct < report.BestDealPercent) {
				report.BestDeal = o
				report.BestDealPercent = pct
			}
		}
	}

	if priced > 0 {
		report.AveragePrice = round2(total / float64(priced))
	}
	report.BestDealPercent = round2(report.BestDealPercent)
	return report
}

func (s *InsightService) Print(r *models.RunReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 RUN SUMMARY\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Observations\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Reported  : \033[1m%d\033[0m\n", r.TotalObservations)
	for _, st := range statusOrder {
		fmt.Printf("  %-9s : %d\n", st, r.ByStatus[st])
	}
	fmt.Printf("  With FIPE : %d\n", r.Valued)
	fmt.Println()

	fmt.Printf("\033[1;33m  Asking Prices\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Printf("  Average : \033[1;32m%s\033[0m\n", utils.FormatBRL(r.AveragePrice))
		fmt.Printf("  Minimum : \033[1;32m%s\033[0m\n", utils.FormatBRL(r.MinPrice))
		fmt.Printf("  Maximum : \033[1;32m%s\033[0m\n", utils.FormatBRL(r.MaxPrice))
	} else {
		fmt.Printf("  No price data available\n")
	}
	fmt.Println()

	if r.BestDeal != nil {
		l := r.BestDeal.Listing
		fmt.Printf("\033[1;33m  Best Deal vs FIPE\033[0m\n")
		fmt.Printf("  %s\n", thin)
		fmt.Printf("  %s\n", truncate(l.FullName(), 50))
		fmt.Printf("  Price : %s | FIPE %s (\033[1;32m%+.1f%%\033[0m)\n",
			l.DisplayPrice, r.BestDeal.Valuation.Value, r.BestDealPercent)
		fmt.Printf("  Link  : %s\n", l.Link)
		fmt.Println()
	}

	if len(r.BySource) > 0 {
		fmt.Printf("\033[1;33m  Listings by Source\033[0m\n")
		fmt.Printf("  %s\n", thin)
		sources := make([]string, 0, len(r.BySource))
		for src := range r.BySource {
			sources = append(sources, src)
		}
		sort.Slice(sources, func(i, j int) bool {
			return r.BySource[sources[i]] > r.BySource[sources[j]]
		})
		for _, src := range sources {
			bar := strings.Repeat("█", r.BySource[src])
			fmt.Printf("  %-20s %s (%d)\n", truncate(src, 18), bar, r.BySource[src])
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	if f < 0 {
		return -round2(-f)
	}
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
