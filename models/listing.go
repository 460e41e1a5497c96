package models

import "time"

// ListingRecord is one classified ad as produced by a listing source.
// It is not modified after the cleaner has filled in CarID and NumericPrice.
type ListingRecord struct {
	CarID        string
	Source       string
	Brand        string
	Model        string
	Version      string
	BodyType     string
	Title        string
	ModelYear    string
	DisplayPrice string
	NumericPrice float64
	Odometer     int
	City         string
	Link         string
	ScrapedAt    time.Time
}

// FullName is the human readable vehicle name used in messages and storage.
func (l *ListingRecord) FullName() string {
	if l.Title != "" {
		return l.Title
	}
	name := l.Model
	if l.Version != "" {
		name += " " + l.Version
	}
	return name
}

// Valuation is a FIPE reference price attached to a listing.
type Valuation struct {
	Value        string
	NumericValue float64
	SourceURL    string
	BrandName    string
	ModelName    string
	YearLabel    string
}

// Observation is the outbound record of one listing in one run.
type Observation struct {
	RunID         string
	Status        Status
	PreviousPrice float64
	Listing       *ListingRecord
	Valuation     *Valuation
	ObservedAt    time.Time
}

// FipeDiffPercent returns how far the asking price sits from the FIPE value,
// negative when the listing is below the table. ok is false without a valuation.
func (o *Observation) FipeDiffPercent() (pct float64, ok bool) {
	if o.Valuation == nil || o.Valuation.NumericValue <= 0 || o.Listing == nil {
		return 0, false
	}
	return (o.Listing.NumericPrice - o.Valuation.NumericValue) / o.Valuation.NumericValue * 100, true
}

// RunReport holds the computed summary of one run.
type RunReport struct {
	TotalObservations int
	ByStatus          map[Status]int
	Valued            int
	AveragePrice      float64
	MinPrice          float64
	MaxPrice          float64
	BestDeal          *Observation
	BestDealPercent   float64
	BySource          map[string]int
}
