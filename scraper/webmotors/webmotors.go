package webmotors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"carwatch/config"
	"carwatch/models"
	"carwatch/scraper/browser"
	"carwatch/utils"
)

const (
	pageTimeout = 60 * time.Second
	listingURL  = "https://www.webmotors.com.br/comprar/carro/"
	defaultUF   = "RS"
)

// Scraper queries the Webmotors search API. The API rejects plain HTTP
// clients, so the request is issued with fetch from a page on the site.
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

type fetchResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Scrape runs the search and maps the results to listings.
func (s *Scraper) Scrape(ctx context.Context) ([]*models.ListingRecord, error) {
	referer := s.src.Referer
	if referer == "" {
		referer = "https://www.webmotors.com.br/"
	}
	s.logger.Info("[webmotors] Querying search API from %s", referer)

	var res fetchResult
	err := s.retry.DoContext(ctx, "webmotors-search", func() error {
		tab, cancel := s.browser.NewTab(ctx, pageTimeout)
		defer cancel()

		var raw string
		err := chromedp.Run(tab,
			chromedp.Navigate(referer),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Evaluate(fetchScript(s.src.URL), &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			}),
		)
		if err != nil {
			return fmt.Errorf("chromedp fetch: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return fmt.Errorf("decode fetch result: %w", err)
		}
		if res.Status != 200 {
			return fmt.Errorf("search API status %d: %s", res.Status, snippet(res.Body))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	listings, err := parseSearchResults([]byte(res.Body), s.src.Name, time.Now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("[webmotors] %s: %d results", s.src.Name, len(listings))
	return listings, nil
}

func fetchScript(apiURL string) string {
	quoted, _ := json.Marshal(apiURL)
	return `fetch(` + string(quoted) + `, {credentials: 'include', headers: {'accept': 'application/json'}})
		.then(function(r) { return r.text().then(function(body) {
			return JSON.stringify({status: r.status, body: body});
		}); })
		.catch(function(e) { return JSON.stringify({status: 0, body: String(e)}); })`
}

func snippet(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

type searchResponse struct {
	SearchResults []searchResult `json:"SearchResults"`
}

type searchResult struct {
	UniqueID      utils.FlexText `json:"UniqueId"`
	Specification struct {
		Title           string         `json:"Title"`
		Make            namedValue     `json:"Make"`
		Model           namedValue     `json:"Model"`
		Version         namedValue     `json:"Version"`
		YearFabrication utils.FlexText `json:"YearFabrication"`
		YearModel       utils.FlexText `json:"YearModel"`
		Odometer        float64        `json:"Odometer"`
		BodyType        string         `json:"BodyType"`
	} `json:"Specification"`
	Prices struct {
		Price float64 `json:"Price"`
	} `json:"Prices"`
	Seller struct {
		City  string `json:"City"`
		State string `json:"State"`
	} `json:"Seller"`
}

// namedValue accepts both "TOYOTA" and {"id": 1, "Value": "TOYOTA"}.
type namedValue string

func (n *namedValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Value string `json:"Value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*n = namedValue(obj.Value)
		return nil
	}
	var t utils.FlexText
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*n = namedValue(t)
	return nil
}

// parseSearchResults maps the API response to listings. Only the numeric
// price is set; the cleaner formats the display price.
func parseSearchResults(data []byte, source string, now time.Time) ([]*models.ListingRecord, error) {
	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("webmotors: decode search results: %w", err)
	}

	listings := make([]*models.ListingRecord, 0, len(resp.SearchResults))
	for _, r := range resp.SearchResults {
		spec := r.Specification
		id := r.UniqueID.String()

		link := ""
		if id != "" {
			link = listingURL + id
		}

		title := spec.Title
		if title == "" {
			title = strings.TrimSpace(string(spec.Make) + " " + string(spec.Model) + " " + string(spec.Version))
		}

		listings = append(listings, &models.ListingRecord{
			CarID:        id,
			Source:       source,
			Brand:        string(spec.Make),
			Model:        string(spec.Model),
			Version:      string(spec.Version),
			BodyType:     spec.BodyType,
			Title:        title,
			ModelYear:    wholeYear(spec.YearModel.String()),
			NumericPrice: r.Prices.Price,
			Odometer:     int(spec.Odometer),
			City:         sellerCity(r.Seller.City, r.Seller.State),
			Link:         link,
			ScrapedAt:    now,
		})
	}
	return listings, nil
}

// wholeYear turns "2017.0" into "2017".
func wholeYear(s string) string {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.Itoa(int(f))
	}
	return s
}

func sellerCity(city, state string) string {
	if city == "" {
		city = defaultUF
	}
	if state == "" {
		state = defaultUF
	}
	return city + " - " + state
}
