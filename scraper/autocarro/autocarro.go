package autocarro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"carwatch/config"
	"carwatch/models"
	"carwatch/scraper/browser"
	"carwatch/utils"
)

const pageTimeout = 60 * time.Second

// ErrNoNextData means the page did not embed its search state.
var ErrNoNextData = errors.New("autocarro: __NEXT_DATA__ not found")

// Scraper reads an Autocarro search page. The results are embedded in the
// page's Next.js state, so no card parsing is needed.
type Scraper struct {
	src     config.SearchSource
	browser *browser.Browser
	retry   *utils.RetryConfig
	logger  *utils.Logger
}

// New creates a Scraper for one saved search.
func New(src config.SearchSource, b *browser.Browser, retry *utils.RetryConfig, logger *utils.Logger) *Scraper {
	return &Scraper{src: src, browser: b, retry: retry, logger: logger}
}

func (s *Scraper) Name() string { return s.src.Name }

// Scrape loads the search page and maps every offer to a listing.
func (s *Scraper) Scrape(ctx context.Context) ([]*models.ListingRecord, error) {
	s.logger.Info("[autocarro] Loading %s", s.src.URL)

	var raw string
	err := s.retry.DoContext(ctx, "autocarro-search", func() error {
		tab, cancel := s.browser.NewTab(ctx, pageTimeout)
		defer cancel()

		raw = ""
		err := chromedp.Run(tab,
			chromedp.Navigate(s.src.URL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(`(function() {
				var el = document.getElementById('__NEXT_DATA__');
				return el ? el.textContent : '';
			})()`, &raw),
		)
		if err != nil {
			return fmt.Errorf("chromedp evaluate: %w", err)
		}
		if strings.TrimSpace(raw) == "" {
			return ErrNoNextData
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	listings, cities, err := parseNextData([]byte(raw), s.src, time.Now())
	if err != nil {
		return nil, err
	}
	if cities == 0 {
		s.logger.Warn("[autocarro] City map missing, city ids will be shown")
	}
	s.logger.Info("[autocarro] %s: %d offers (%d known cities)", s.src.Name, len(listings), cities)
	return listings, nil
}

type nextData struct {
	Props struct {
		PageProps struct {
			Search struct {
				Filters struct {
					Data struct {
						Cidades []city `json:"cidades"`
					} `json:"data"`
				} `json:"filters"`
			} `json:"search"`
			Offers struct {
				Items []offer `json:"items"`
			} `json:"offers"`
		} `json:"pageProps"`
	} `json:"props"`
}

type city struct {
	ID   utils.FlexText `json:"id_cid"`
	Name string         `json:"ds_cid"`
}

type offer struct {
	ID            utils.FlexText `json:"id"`
	Brand         string         `json:"brand"`
	Model         string         `json:"model"`
	Version       string         `json:"version"`
	PriceCurrency string         `json:"priceCurrency"`
	YearModel     utils.FlexText `json:"yearModel"`
	Km            utils.FlexText `json:"km"`
	Link          string         `json:"link"`
	CityID        utils.FlexText `json:"cityId"`
}

// parseNextData maps the page state to listings. It also returns the size
// of the city map; city ids missing from it are kept as text.
func parseNextData(data []byte, src config.SearchSource, now time.Time) ([]*models.ListingRecord, int, error) {
	var nd nextData
	if err := json.Unmarshal(data, &nd); err != nil {
		return nil, 0, fmt.Errorf("autocarro: decode __NEXT_DATA__: %w", err)
	}
	props := nd.Props.PageProps

	cities := make(map[string]string, len(props.Search.Filters.Data.Cidades))
	for _, c := range props.Search.Filters.Data.Cidades {
		cities[c.ID.String()] = c.Name
	}

	base, _ := url.Parse(src.URL)

	listings := make([]*models.ListingRecord, 0, len(props.Offers.Items))
	for _, o := range props.Offers.Items {
		cityID := o.CityID.String()
		cityName, ok := cities[cityID]
		if !ok {
			cityName = cityID
		}

		listings = append(listings, &models.ListingRecord{
			CarID:        o.ID.String(),
			Source:       src.Name,
			Brand:        o.Brand,
			Model:        o.Model,
			Version:      o.Version,
			ModelYear:    o.YearModel.String(),
			DisplayPrice: o.PriceCurrency,
			Odometer:     parseKm(o.Km.String()),
			City:         cityName,
			Link:         absoluteLink(base, o.Link),
			ScrapedAt:    now,
		})
	}
	return listings, len(cities), nil
}

func absoluteLink(base *url.URL, link string) string {
	link = strings.TrimSpace(link)
	if link == "" || base == nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}

func parseKm(s string) int {
	return int(utils.ParseBRL(s))
}
