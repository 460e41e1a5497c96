package fipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"carwatch/utils"
)

// DefaultBaseURL is the public FIPE mirror for passenger cars.
const DefaultBaseURL = "https://parallelum.com.br/fipe/api/v1/carros"

// Code is a catalog identifier. The API sends brand and year codes as strings
// and model codes as numbers, so both forms are accepted.
type Code string

func (c *Code) UnmarshalJSON(data []byte) error {
	var t utils.FlexText
	if err := t.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("fipe: code: %w", err)
	}
	*c = Code(t)
	return nil
}

// Brand is a catalog brand ("marca").
type Brand struct {
	Code Code   `json:"codigo"`
	Name string `json:"nome"`
}

// Model is a catalog model ("modelo") of one brand.
type Model struct {
	Code      Code   `json:"codigo"`
	Name      string `json:"nome"`
	BrandCode Code   `json:"-"`
}

// YearEntry is one model-year/fuel variant, e.g. {"2016-1", "2016 Gasolina"}.
type YearEntry struct {
	Code  Code   `json:"codigo"`
	Label string `json:"nome"`
}

// Detail is the priced record of one year entry.
type Detail struct {
	Value          string `json:"Valor"`
	Brand          string `json:"Marca"`
	Model          string `json:"Modelo"`
	ModelYear      int    `json:"AnoModelo"`
	Fuel           string `json:"Combustivel"`
	FipeCode       string `json:"CodigoFipe"`
	ReferenceMonth string `json:"MesReferencia"`
}

// ErrMalformed wraps a response body that could not be decoded.
var ErrMalformed = errors.New("fipe: malformed response")

// StatusError reports a non-2xx answer from the catalog.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fipe: %s returned HTTP %d", e.URL, e.StatusCode)
}

// Client talks to the hierarchical FIPE HTTP API. It does not retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client with a fixed per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Brands lists all brands.
func (c *Client) Brands(ctx context.Context) ([]Brand, error) {
	var brands []Brand
	if err := c.getJSON(ctx, c.endpoint("marcas"), &brands); err != nil {
		return nil, err
	}
	return brands, nil
}

// Models lists the models of one brand.
func (c *Client) Models(ctx context.Context, brandCode Code) ([]Model, error) {
	var payload struct {
		Models []Model `json:"modelos"`
	}
	if err := c.getJSON(ctx, c.endpoint("marcas", brandCode, "modelos"), &payload); err != nil {
		return nil, err
	}
	for i := range payload.Models {
		payload.Models[i].BrandCode = brandCode
	}
	return payload.Models, nil
}

// Years lists the year entries of one model.
func (c *Client) Years(ctx context.Context, brandCode, modelCode Code) ([]YearEntry, error) {
	var years []YearEntry
	if err := c.getJSON(ctx, c.endpoint("marcas", brandCode, "modelos", modelCode, "anos"), &years); err != nil {
		return nil, err
	}
	return years, nil
}

// Detail fetches the priced record of one year entry.
func (c *Client) Detail(ctx context.Context, brandCode, modelCode, yearCode Code) (*Detail, error) {
	var d Detail
	if err := c.getJSON(ctx, c.DetailURL(brandCode, modelCode, yearCode), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DetailURL is the address of a year entry's detail record.
func (c *Client) DetailURL(brandCode, modelCode, yearCode Code) string {
	return c.endpoint("marcas", brandCode, "modelos", modelCode, "anos", yearCode)
}

func (c *Client) endpoint(parts ...any) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(fmt.Sprint(p)))
	}
	return b.String()
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("fipe: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fipe: get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w from %s: %v", ErrMalformed, u, err)
	}
	return nil
}
