package autocarro

import (
	"testing"
	"time"

	"carwatch/config"
)

const samplePage = `{
  "props": {
    "pageProps": {
      "search": {"filters": {"data": {"cidades": [
        {"id_cid": 4323002, "ds_cid": "VIAMAO"},
        {"id_cid": "4314902", "ds_cid": "PORTO ALEGRE"}
      ]}}},
      "offers": {"items": [
        {"id": 9911, "model": "ETIOS", "version": "1.5 XS 16V FLEX 4P MANUAL", "priceCurrency": "R$ 45.000",
         "yearModel": 2017, "km": "85.000", "link": "/carros/toyota/etios/9911", "cityId": 4314902},
        {"model": "ETIOS", "version": "1.5 X SEDAN", "priceCurrency": "R$ 48.900", "yearModel": "2018",
         "link": "https://m.autocarro.com.br/carros/toyota/etios/9912", "cityId": 4300001}
      ]}
    }
  }
}`

func TestParseNextData(t *testing.T) {
	src := config.SearchSource{Name: "Autocarro", URL: "https://m.autocarro.com.br/autobusca/carros?q=etios"}
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	listings, cities, err := parseNextData([]byte(samplePage), src, now)
	if err != nil {
		t.Fatal(err)
	}
	if cities != 2 {
		t.Errorf("cities: got %d", cities)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	first := listings[0]
	if first.CarID != "9911" || first.Source != "Autocarro" || first.ModelYear != "2017" {
		t.Errorf("unexpected first listing: %+v", first)
	}
	if first.City != "PORTO ALEGRE" {
		t.Errorf("city: got %q", first.City)
	}
	if first.Link != "https://m.autocarro.com.br/carros/toyota/etios/9911" {
		t.Errorf("link: got %q", first.Link)
	}
	if first.Odometer != 85000 || first.DisplayPrice != "R$ 45.000" {
		t.Errorf("km/price: got %d %q", first.Odometer, first.DisplayPrice)
	}
	if !first.ScrapedAt.Equal(now) {
		t.Errorf("ScrapedAt: got %v", first.ScrapedAt)
	}

	second := listings[1]
	if second.CarID != "" {
		t.Errorf("missing id should stay empty, got %q", second.CarID)
	}
	if second.City != "4300001" {
		t.Errorf("unknown city should fall back to its id, got %q", second.City)
	}
}

func TestParseNextDataWithoutCityMap(t *testing.T) {
	page := `{"props":{"pageProps":{"offers":{"items":[{"model":"ETIOS","cityId":42,"link":"x"}]}}}}`

	listings, cities, err := parseNextData([]byte(page), config.SearchSource{Name: "A"}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if cities != 0 || len(listings) != 1 || listings[0].City != "42" {
		t.Errorf("got cities=%d listings=%+v", cities, listings)
	}
}

func TestParseNextDataMalformed(t *testing.T) {
	if _, _, err := parseNextData([]byte(`{"props":`), config.SearchSource{}, time.Now()); err == nil {
		t.Error("expected decode error")
	}
}
