package fipe

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"carwatch/models"
	"carwatch/utils"
)

const (
	// Phase 2b: minimum similarity and number of near-matching brands kept.
	brandSimilarityCutoff = 0.6
	maxSimilarBrands      = 5
	// Phase 2c: brands tried when nothing else points to a brand.
	fallbackBrandCount = 10
)

// Matcher finds the FIPE entry of a listing by walking brand -> model -> year.
type Matcher struct {
	catalog *Catalog
	logger  *utils.Logger
}

// NewMatcher creates a Matcher over a run-scoped Catalog.
func NewMatcher(catalog *Catalog, logger *utils.Logger) *Matcher {
	return &Matcher{catalog: catalog, logger: logger}
}

type query struct {
	model  string
	term   string
	tokens []string
	year   string
}

func newQuery(modelText, versionText, modelYear string) query {
	model := utils.Normalize(modelText)
	term := strings.TrimSpace(model + " " + utils.Normalize(versionText))
	return query{
		model:  model,
		term:   term,
		tokens: utils.Tokens(term, 1),
		year:   strings.TrimSpace(modelYear),
	}
}

// modelPredicate decides whether a normalized catalog model name is a candidate.
type modelPredicate func(q query, name string) bool

// strictModelMatch: either side contains the other.
func strictModelMatch(q query, name string) bool {
	return q.model != "" && (strings.Contains(name, q.model) || strings.Contains(q.model, name))
}

// relaxedModelMatch: any query token of two or more characters occurs in the name.
func relaxedModelMatch(q query, name string) bool {
	for _, tok := range q.tokens {
		if strings.Contains(name, tok) {
			return true
		}
	}
	return false
}

// Match looks up the FIPE valuation for a listing.
//
// It returns (nil, nil) when the catalog has no sufficiently close entry and
// (nil, err) when the lookup could not finish: budget exhausted, transport or
// decode failure. Callers that only need "value or nothing" can ignore err.
func (m *Matcher) Match(ctx context.Context, modelText, versionText, modelYear string) (*models.Valuation, error) {
	q := newQuery(modelText, versionText, modelYear)
	if q.model == "" || q.year == "" {
		return nil, nil
	}

	brands, err := m.catalog.Brands(ctx)
	if err != nil {
		return nil, err
	}

	v, err := m.scan(ctx, brands, q, strictModelMatch)
	if v != nil || err != nil {
		return v, err
	}

	if m.catalog.Remaining() <= 0 {
		return nil, ErrBudgetExhausted
	}

	candidates := candidateBrands(brands, q)
	m.logger.Debug("[fipe] No precise match for %q/%s, trying %d candidate brands", q.term, q.year, len(candidates))
	return m.scan(ctx, candidates, q, relaxedModelMatch)
}

// scan walks brands in order and returns the first model accepted by pred
// that has a year entry containing q.year and a fetchable detail record.
func (m *Matcher) scan(ctx context.Context, brands []Brand, q query, pred modelPredicate) (*models.Valuation, error) {
	for _, brand := range brands {
		if brand.Code == "" {
			continue
		}

		brandModels, err := m.catalog.Models(ctx, brand.Code)
		if err != nil {
			return nil, err
		}

		for _, model := range brandModels {
			if model.Code == "" {
				continue
			}
			name := utils.Normalize(model.Name)
			if name == "" || !pred(q, name) {
				continue
			}

			v, err := m.matchYear(ctx, brand, model, q.year)
			if v != nil || err != nil {
				return v, err
			}
		}
	}
	return nil, nil
}

func (m *Matcher) matchYear(ctx context.Context, brand Brand, model Model, year string) (*models.Valuation, error) {
	years, err := m.catalog.Years(ctx, brand.Code, model.Code)
	if err != nil {
		return nil, skipStatus(err)
	}

	for _, y := range years {
		if !strings.Contains(y.Label, year) {
			continue
		}

		detail, err := m.catalog.Detail(ctx, brand.Code, model.Code, y.Code)
		if err != nil {
			if err = skipStatus(err); err != nil {
				return nil, err
			}
			continue
		}

		m.logger.Debug("[fipe] Matched %s / %s / %s -> %s", brand.Name, model.Name, y.Label, detail.Value)
		return &models.Valuation{
			Value:        detail.Value,
			NumericValue: utils.ParseBRL(detail.Value),
			SourceURL:    m.catalog.DetailURL(brand.Code, model.Code, y.Code),
			BrandName:    brand.Name,
			ModelName:    model.Name,
			YearLabel:    y.Label,
		}, nil
	}
	return nil, nil
}

// skipStatus turns a non-2xx or malformed answer into "no data here"; every
// other error is kept.
func skipStatus(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) || errors.Is(err, ErrMalformed) {
		return nil
	}
	return err
}

// candidateBrands narrows the brand list for the relaxed pass: brands named in
// the query, then brands similar to the first query word, then the head of
// the catalog.
func candidateBrands(brands []Brand, q query) []Brand {
	var named []Brand
	padded := " " + q.term + " "
	for _, b := range brands {
		name := utils.Normalize(b.Name)
		if name == "" {
			continue
		}
		if strings.Contains(padded, " "+name+" ") || sharesToken(name, utils.Tokens(q.term, 2)) {
			named = append(named, b)
		}
	}
	if len(named) > 0 {
		return named
	}

	if similar := similarBrands(brands, firstWord(q.term)); len(similar) > 0 {
		return similar
	}

	if len(brands) > fallbackBrandCount {
		return brands[:fallbackBrandCount]
	}
	return brands
}

func sharesToken(name string, tokens []string) bool {
	for _, nt := range strings.Fields(name) {
		for _, tok := range tokens {
			if nt == tok {
				return true
			}
		}
	}
	return false
}

func similarBrands(brands []Brand, word string) []Brand {
	if word == "" {
		return nil
	}

	type scored struct {
		brand Brand
		score float64
	}
	var hits []scored
	for _, b := range brands {
		name := utils.Normalize(b.Name)
		if name == "" {
			continue
		}
		if s := similarity(word, name); s >= brandSimilarityCutoff {
			hits = append(hits, scored{b, s})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > maxSimilarBrands {
		hits = hits[:maxSimilarBrands]
	}

	out := make([]Brand, len(hits))
	for i, h := range hits {
		out[i] = h.brand
	}
	return out
}

// similarity is 1 - editDistance/longerLength, in [0, 1].
func similarity(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func firstWord(term string) string {
	if fields := strings.Fields(term); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

// Remaining reports how many catalog calls this run may still issue.
func (m *Matcher) Remaining() int {
	return m.catalog.Remaining()
}
