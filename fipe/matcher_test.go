package fipe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carwatch/utils"
)

func TestMatchPrecise(t *testing.T) {
	fake := toyotaCatalog()
	m, catalog := newTestMatcher(t, fake, DefaultMaxRequests)

	v, err := m.Match(context.Background(), "ETIOS", "1.5 XS", "2016")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v == nil {
		t.Fatal("expected a valuation")
	}
	if v.ModelName != "ETIOS XS" {
		t.Errorf("ModelName: got %q, want %q", v.ModelName, "ETIOS XS")
	}
	if v.YearLabel != "2016 Gasolina" {
		t.Errorf("YearLabel: got %q, want %q", v.YearLabel, "2016 Gasolina")
	}
	if v.BrandName != "Toyota" {
		t.Errorf("BrandName: got %q, want Toyota", v.BrandName)
	}
	if v.Value != "R$ 48.312,00" || v.NumericValue != 48312 {
		t.Errorf("Value: got %q (%.2f)", v.Value, v.NumericValue)
	}
	wantURL := "/marcas/56/modelos/301/anos/2016-1"
	if len(v.SourceURL) < len(wantURL) || v.SourceURL[len(v.SourceURL)-len(wantURL):] != wantURL {
		t.Errorf("SourceURL: got %q, want suffix %q", v.SourceURL, wantURL)
	}

	// brands + 3 model lists + years + detail
	if got := fake.Calls(); got != 6 {
		t.Errorf("catalog calls: got %d, want 6", got)
	}
	if catalog.Calls() != fake.Calls() {
		t.Errorf("budget counted %d calls, server saw %d", catalog.Calls(), fake.Calls())
	}
}

func TestMatchModelListFailures(t *testing.T) {
	fake := toyotaCatalog()
	fake.modelStatus = http.StatusInternalServerError
	m, _ := newTestMatcher(t, fake, DefaultMaxRequests)

	v, err := m.Match(context.Background(), "ETIOS", "1.5 XS", "2016")
	if v != nil {
		t.Errorf("expected no valuation, got %+v", v)
	}
	if err != nil {
		t.Errorf("HTTP 500 model lists should read as no match, got error %v", err)
	}
	// one brand list call, then exactly one model-list call per brand
	if got := fake.Calls(); got != 1+len(fake.brands) {
		t.Errorf("catalog calls: got %d, want %d", got, 1+len(fake.brands))
	}
}

func TestMatchRelaxedFallback(t *testing.T) {
	fake := toyotaCatalog()
	m, _ := newTestMatcher(t, fake, DefaultMaxRequests)

	v, err := m.Match(context.Background(), "Toyota Etios", "1.5", "2016")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v == nil {
		t.Fatal("expected the relaxed pass to find ETIOS XS")
	}
	if v.ModelName != "ETIOS XS" {
		t.Errorf("ModelName: got %q, want ETIOS XS", v.ModelName)
	}
}

func TestMatchFirstFoundWins(t *testing.T) {
	fake := toyotaCatalog()
	fake.models["25"] = append(fake.models["25"], fakeModel{
		Code: 201, Name: "Etios Imported", Years: []YearEntry{{Code: "2016-1", Label: "2016 Gasolina"}},
	})
	m, _ := newTestMatcher(t, fake, DefaultMaxRequests)

	v, err := m.Match(context.Background(), "ETIOS", "", "2016")
	if err != nil || v == nil {
		t.Fatalf("expected a valuation, got %v / %v", v, err)
	}
	if v.BrandName != "Honda" {
		t.Errorf("expected the earlier brand in catalog order, got %q", v.BrandName)
	}
}

func TestMatchYearIsSubstring(t *testing.T) {
	fake := toyotaCatalog()
	m, _ := newTestMatcher(t, fake, DefaultMaxRequests)

	v, err := m.Match(context.Background(), "ETIOS", "XS", "2019")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Errorf("no year entry contains 2019, got %+v", v)
	}
}

func TestMatchEmptyInputsMakeNoCalls(t *testing.T) {
	fake := toyotaCatalog()
	m, _ := newTestMatcher(t, fake, DefaultMaxRequests)

	inputs := [][3]string{
		{"", "", ""},
		{"", "1.5 XS", "2016"},
		{"ETIOS", "1.5", ""},
		{"!!!", "", "2016"},
	}
	for _, in := range inputs {
		v, err := m.Match(context.Background(), in[0], in[1], in[2])
		if v != nil || err != nil {
			t.Errorf("Match(%q) = %v, %v; want nil, nil", in, v, err)
		}
	}
	if fake.Calls() != 0 {
		t.Errorf("catalog calls: got %d, want 0", fake.Calls())
	}
}

func TestMatchBudgetExhausted(t *testing.T) {
	fake := toyotaCatalog()
	m, _ := newTestMatcher(t, fake, 2)

	v, err := m.Match(context.Background(), "ETIOS", "1.5 XS", "2016")
	if v != nil {
		t.Errorf("expected no valuation, got %+v", v)
	}
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Errorf("expected ErrBudgetExhausted, got %v", err)
	}
	if fake.Calls() != 2 {
		t.Errorf("catalog calls: got %d, want 2", fake.Calls())
	}
}

func TestMatchNeverExceedsBudget(t *testing.T) {
	queries := [][3]string{
		{"ETIOS", "1.5 XS", "2016"},
		{"Toyota Etios", "1.5", "2016"},
		{"Civic", "EXL", "2020"},
		{"Gol", "", "2010"},
		{"A", "B", "1999"},
	}

	for budget := 0; budget <= 12; budget++ {
		fake := toyotaCatalog()
		m, catalog := newTestMatcher(t, fake, budget)
		for _, q := range queries {
			_, _ = m.Match(context.Background(), q[0], q[1], q[2])
		}
		if fake.Calls() > budget {
			t.Errorf("budget %d: server saw %d calls", budget, fake.Calls())
		}
		if catalog.Remaining() < 0 {
			t.Errorf("budget %d: remaining went negative", budget)
		}
	}
}

func TestMatchMemoizesBrandsAndModels(t *testing.T) {
	fake := toyotaCatalog()
	m, _ := newTestMatcher(t, fake, DefaultMaxRequests)

	ctx := context.Background()
	if _, err := m.Match(ctx, "ETIOS", "1.5 XS", "2016"); err != nil {
		t.Fatal(err)
	}
	first := fake.Calls()

	if _, err := m.Match(ctx, "ETIOS", "1.5 XS", "2016"); err != nil {
		t.Fatal(err)
	}
	// only years + detail are fetched again
	if got := fake.Calls() - first; got != 2 {
		t.Errorf("second match issued %d calls, want 2", got)
	}
}

func TestMatchSkipsFailedYearList(t *testing.T) {
	fake := toyotaCatalog()
	fake.models["56"] = append([]fakeModel{
		{Code: 299, Name: "ETIOS OLD", Years: []YearEntry{{Code: "2016-1", Label: "2016 Gasolina"}}},
	}, fake.models["56"]...)
	fake.yearStatus = map[string]int{"56/299": http.StatusInternalServerError}
	m, catalog := newTestMatcher(t, fake, DefaultMaxRequests)

	v, err := m.Match(context.Background(), "ETIOS", "1.5 XS", "2016")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v == nil || v.ModelName != "ETIOS XS" || v.YearLabel != "2016 Gasolina" {
		t.Fatalf("expected the next model to match, got %+v", v)
	}

	// brands + 3 model lists + failed years + years + detail
	if got := catalog.Calls(); got != 7 {
		t.Errorf("budget counted %d calls, want 7", got)
	}
	if catalog.Calls() != fake.Calls() {
		t.Errorf("budget counted %d calls, server saw %d", catalog.Calls(), fake.Calls())
	}
}

func TestMatchSkipsFailedDetail(t *testing.T) {
	fake := toyotaCatalog()
	fake.models["56"][1].Years = append([]YearEntry{{Code: "2016-3", Label: "2016 Flex"}}, fake.models["56"][1].Years...)
	fake.detailStatus = map[string]int{"56/301/2016-3": http.StatusInternalServerError}
	m, catalog := newTestMatcher(t, fake, DefaultMaxRequests)

	v, err := m.Match(context.Background(), "ETIOS", "1.5 XS", "2016")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v == nil || v.YearLabel != "2016 Gasolina" {
		t.Fatalf("expected the next year entry to match, got %+v", v)
	}

	// brands + 3 model lists + years + failed detail + detail
	if got := catalog.Calls(); got != 7 {
		t.Errorf("budget counted %d calls, want 7", got)
	}
}

func TestMatchMovesPastMalformedModelList(t *testing.T) {
	fake := toyotaCatalog()
	fake.malformedModels = map[string]bool{"21": true}
	m, _ := newTestMatcher(t, fake, DefaultMaxRequests)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := m.Match(ctx, "ETIOS", "1.5 XS", "2016")
		if err != nil {
			t.Fatalf("match %d: unexpected error: %v", i, err)
		}
		if v == nil || v.ModelName != "ETIOS XS" {
			t.Fatalf("match %d: expected ETIOS XS, got %+v", i, v)
		}
	}

	// first match: brands + 3 model lists + years + detail; then years + detail
	// each, so the broken list of brand 21 is fetched once
	if got := fake.Calls(); got != 10 {
		t.Errorf("catalog calls: got %d, want 10", got)
	}
}

func TestMatchTransportFailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	catalog := NewCatalog(NewClient(srv.URL, time.Second), DefaultMaxRequests, utils.NewNopLogger())
	m := NewMatcher(catalog, utils.NewNopLogger())

	v, err := m.Match(context.Background(), "ETIOS", "1.5 XS", "2016")
	if v != nil {
		t.Errorf("expected no valuation, got %+v", v)
	}
	if err == nil {
		t.Error("expected the transport failure to be reported")
	}
}

func TestMatchMalformedBrandList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{not json")
	}))
	defer srv.Close()

	catalog := NewCatalog(NewClient(srv.URL, time.Second), DefaultMaxRequests, utils.NewNopLogger())
	m := NewMatcher(catalog, utils.NewNopLogger())

	v, err := m.Match(context.Background(), "ETIOS", "1.5 XS", "2016")
	if v != nil || err == nil {
		t.Errorf("got %v, %v; want nil valuation and a decode error", v, err)
	}
}

func TestCandidateBrands(t *testing.T) {
	brands := []Brand{
		{Code: "21", Name: "Fiat"},
		{Code: "23", Name: "GM - Chevrolet"},
		{Code: "56", Name: "Toyota"},
		{Code: "59", Name: "VW - VolksWagen"},
	}

	tests := []struct {
		name  string
		model string
		want  []Code
	}{
		{"named in query", "Toyota Etios", []Code{"56"}},
		{"token of brand name", "Chevrolet Onix", []Code{"23"}},
		{"near spelling", "Toiota Etios", []Code{"56"}},
		{"nothing points anywhere", "Etios", []Code{"21", "23", "56", "59"}},
		// brand words must equal a query token; a prefix does not name the brand
		{"abbreviation is not a brand token", "Chev Onix", []Code{"21", "23", "56", "59"}},
	}

	for _, tt := range tests {
		got := candidateBrands(brands, newQuery(tt.model, "", "2016"))
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want codes %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i].Code != tt.want[i] {
				t.Errorf("%s: got %v, want codes %v", tt.name, got, tt.want)
				break
			}
		}
	}
}

func TestCandidateBrandsFallbackIsBounded(t *testing.T) {
	var brands []Brand
	for i := 0; i < 25; i++ {
		brands = append(brands, Brand{Code: Code(fmt.Sprint(i)), Name: fmt.Sprintf("Brand%c", 'A'+i)})
	}
	got := candidateBrands(brands, newQuery("Etios", "", "2016"))
	if len(got) != fallbackBrandCount {
		t.Errorf("got %d brands, want %d", len(got), fallbackBrandCount)
	}
}

func TestSimilarity(t *testing.T) {
	if s := similarity("TOYOTA", "TOYOTA"); s != 1 {
		t.Errorf("identical: got %v", s)
	}
	if s := similarity("TOIOTA", "TOYOTA"); s < brandSimilarityCutoff {
		t.Errorf("one edit: got %v, want >= %v", s, brandSimilarityCutoff)
	}
	if s := similarity("ETIOS", "HONDA"); s >= brandSimilarityCutoff {
		t.Errorf("unrelated: got %v, want < %v", s, brandSimilarityCutoff)
	}
}
