package fipe

import (
	"context"
	"errors"
	"fmt"

	"carwatch/utils"
)

// DefaultMaxRequests is the per-run ceiling on catalog calls.
const DefaultMaxRequests = 120

// ErrBudgetExhausted is returned once the run's request budget is spent.
// It is an expected stopping condition.
var ErrBudgetExhausted = errors.New("fipe: request budget exhausted")

// API is the catalog transport. *Client implements it.
type API interface {
	Brands(ctx context.Context) ([]Brand, error)
	Models(ctx context.Context, brandCode Code) ([]Model, error)
	Years(ctx context.Context, brandCode, modelCode Code) ([]YearEntry, error)
	Detail(ctx context.Context, brandCode, modelCode, yearCode Code) (*Detail, error)
	DetailURL(brandCode, modelCode, yearCode Code) string
}

// Budget counts catalog calls against a fixed ceiling.
type Budget struct {
	limit int
	used  int
}

// NewBudget creates a Budget allowing limit calls.
func NewBudget(limit int) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit}
}

// Take consumes one call or reports ErrBudgetExhausted.
func (b *Budget) Take() error {
	if b.used >= b.limit {
		return ErrBudgetExhausted
	}
	b.used++
	return nil
}

func (b *Budget) Used() int      { return b.used }
func (b *Budget) Remaining() int { return b.limit - b.used }

// Catalog memoizes the brand list and per-brand model lists for one run and
// charges every network call to a shared Budget. Build a new one per run.
// Not safe for concurrent use.
type Catalog struct {
	api    API
	budget *Budget
	logger *utils.Logger

	brands       []Brand
	brandsLoaded bool
	models       map[Code][]Model
}

// NewCatalog creates an empty run-scoped Catalog.
func NewCatalog(api API, maxRequests int, logger *utils.Logger) *Catalog {
	return &Catalog{
		api:    api,
		budget: NewBudget(maxRequests),
		logger: logger,
		models: make(map[Code][]Model),
	}
}

// Brands returns the brand list, fetching it on first use. A failed fetch is
// not cached.
func (c *Catalog) Brands(ctx context.Context) ([]Brand, error) {
	if c.brandsLoaded {
		return c.brands, nil
	}
	if err := c.budget.Take(); err != nil {
		return nil, err
	}

	brands, err := c.api.Brands(ctx)
	if err != nil {
		return nil, fmt.Errorf("load brands: %w", err)
	}

	c.brands = brands
	c.brandsLoaded = true
	c.logger.Debug("[fipe] Loaded %d brands", len(brands))
	return brands, nil
}

// Models returns a brand's models, fetching them once per brand. A non-2xx
// or malformed answer caches an empty list for that brand, so later matches
// move past it. Transport errors are returned uncached and may be retried by
// the next match.
func (c *Catalog) Models(ctx context.Context, brandCode Code) ([]Model, error) {
	if models, ok := c.models[brandCode]; ok {
		return models, nil
	}
	if err := c.budget.Take(); err != nil {
		return nil, err
	}

	models, err := c.api.Models(ctx, brandCode)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) || errors.Is(err, ErrMalformed) {
			c.logger.Debug("[fipe] No models for brand %s: %v", brandCode, err)
			c.models[brandCode] = []Model{}
			return c.models[brandCode], nil
		}
		return nil, fmt.Errorf("load models of brand %s: %w", brandCode, err)
	}

	if models == nil {
		models = []Model{}
	}
	c.models[brandCode] = models
	return models, nil
}

// Years fetches a model's year entries. Not cached.
func (c *Catalog) Years(ctx context.Context, brandCode, modelCode Code) ([]YearEntry, error) {
	if err := c.budget.Take(); err != nil {
		return nil, err
	}
	return c.api.Years(ctx, brandCode, modelCode)
}

// Detail fetches a year entry's priced record. Not cached.
func (c *Catalog) Detail(ctx context.Context, brandCode, modelCode, yearCode Code) (*Detail, error) {
	if err := c.budget.Take(); err != nil {
		return nil, err
	}
	return c.api.Detail(ctx, brandCode, modelCode, yearCode)
}

// DetailURL is the address of a year entry's detail record.
func (c *Catalog) DetailURL(brandCode, modelCode, yearCode Code) string {
	return c.api.DetailURL(brandCode, modelCode, yearCode)
}

// Calls returns the number of catalog calls issued so far in this run.
func (c *Catalog) Calls() int { return c.budget.Used() }

// Remaining returns how many catalog calls are still allowed in this run.
func (c *Catalog) Remaining() int { return c.budget.Remaining() }
