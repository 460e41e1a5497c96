package fipe

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"carwatch/utils"
)

type fakeModel struct {
	Code  int
	Name  string
	Years []YearEntry
}

// fakeCatalog serves the FIPE URL layout from memory and counts requests.
type fakeCatalog struct {
	brands      []Brand
	models      map[string][]fakeModel
	modelStatus int
	calls       int64

	// Per-path failures, keyed "brand", "brand/model" or "brand/model/year".
	malformedModels map[string]bool
	yearStatus      map[string]int
	detailStatus    map[string]int
}

func (f *fakeCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&f.calls, 1)

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] == "marcas":
		writeJSON(w, f.brands)

	case len(parts) == 3 && parts[2] == "modelos":
		if f.modelStatus != 0 {
			w.WriteHeader(f.modelStatus)
			return
		}
		if f.malformedModels[parts[1]] {
			fmt.Fprint(w, `{"modelos": [`)
			return
		}
		type wire struct {
			Codigo int    `json:"codigo"`
			Nome   string `json:"nome"`
		}
		var out []wire
		for _, m := range f.models[parts[1]] {
			out = append(out, wire{m.Code, m.Name})
		}
		writeJSON(w, map[string]any{"modelos": out, "anos": []any{}})

	case len(parts) == 5 && parts[4] == "anos":
		if status := f.yearStatus[parts[1]+"/"+parts[3]]; status != 0 {
			w.WriteHeader(status)
			return
		}
		m, ok := f.model(parts[1], parts[3])
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, m.Years)

	case len(parts) == 6:
		if status := f.detailStatus[parts[1]+"/"+parts[3]+"/"+parts[5]]; status != 0 {
			w.WriteHeader(status)
			return
		}
		m, ok := f.model(parts[1], parts[3])
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for _, y := range m.Years {
			if string(y.Code) == parts[5] {
				writeJSON(w, Detail{
					Value:     "R$ 48.312,00",
					Brand:     parts[1],
					Model:     m.Name,
					ModelYear: 2016,
					Fuel:      "Gasolina",
				})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCatalog) model(brandCode, modelCode string) (fakeModel, bool) {
	for _, m := range f.models[brandCode] {
		if strconv.Itoa(m.Code) == modelCode {
			return m, true
		}
	}
	return fakeModel{}, false
}

func (f *fakeCatalog) Calls() int { return int(atomic.LoadInt64(&f.calls)) }

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func toyotaCatalog() *fakeCatalog {
	return &fakeCatalog{
		brands: []Brand{
			{Code: "21", Name: "Fiat"},
			{Code: "25", Name: "Honda"},
			{Code: "56", Name: "Toyota"},
		},
		models: map[string][]fakeModel{
			"21": {{Code: 100, Name: "Uno Mille 1.0", Years: []YearEntry{{Code: "2012-1", Label: "2012 Gasolina"}}}},
			"25": {{Code: 200, Name: "Fit LX 1.4", Years: []YearEntry{{Code: "2016-1", Label: "2016 Gasolina"}}}},
			"56": {
				{Code: 300, Name: "Corolla XEi 2.0", Years: []YearEntry{{Code: "2016-1", Label: "2016 Gasolina"}}},
				{Code: 301, Name: "ETIOS XS", Years: []YearEntry{
					{Code: "2017-1", Label: "2017 Gasolina"},
					{Code: "2016-1", Label: "2016 Gasolina"},
				}},
			},
		},
	}
}

func newTestMatcher(t *testing.T, fake *fakeCatalog, budget int) (*Matcher, *Catalog) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	catalog := NewCatalog(NewClient(srv.URL, 2*time.Second), budget, utils.NewNopLogger())
	return NewMatcher(catalog, utils.NewNopLogger()), catalog
}
