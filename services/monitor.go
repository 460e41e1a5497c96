package services

import (
	"context"
	"time"

	"carwatch/models"
	"carwatch/utils"
)

// Valuator attaches a reference valuation to a listing. (nil, nil) means no
// match; a non-nil error means the lookup could not be completed.
type Valuator interface {
	Match(ctx context.Context, modelText, versionText, modelYear string) (*models.Valuation, error)
	Remaining() int
}

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	RunID string
	// NotifyUnchanged keeps UNCHANGED observations in the outbound stream.
	NotifyUnchanged bool
	Now             func() time.Time
}

// Monitor classifies a run's listings against price memory and values the
// ones worth reporting.
type Monitor struct {
	logger   *utils.Logger
	valuator Valuator
	opts     MonitorOptions
}

// NewMonitor creates a Monitor. valuator may be nil to skip valuations.
func NewMonitor(logger *utils.Logger, valuator Valuator, opts MonitorOptions) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{logger: logger, valuator: valuator, opts: opts}
}

// Run processes listings in order. It returns the observations to report and
// the updated memory; the input memory is left untouched. Suppressed
// UNCHANGED listings are still folded into the returned memory.
func (m *Monitor) Run(ctx context.Context, listings []*models.ListingRecord, memory models.PriceMemory) ([]*models.Observation, models.PriceMemory) {
	updated := memory.Clone()
	observations := make([]*models.Observation, 0, len(listings))

	var valued, lookupFailures int
	for _, l := range listings {
		c, u := Classify(l.CarID, l.NumericPrice, updated)
		updated.Apply(u)

		if c.Status == models.StatusUnchanged && !m.opts.NotifyUnchanged {
			m.logger.Debug("[monitor] Unchanged: %s (%s)", l.FullName(), l.DisplayPrice)
			continue
		}

		obs := &models.Observation{
			RunID:         m.opts.RunID,
			Status:        c.Status,
			PreviousPrice: c.PreviousPrice,
			Listing:       l,
			ObservedAt:    m.opts.Now(),
		}

		if v, err := m.value(ctx, l); err != nil {
			lookupFailures++
			m.logger.Debug("[monitor] FIPE lookup failed for %s: %v", l.CarID, err)
		} else if v != nil {
			obs.Valuation = v
			valued++
		}

		m.logger.Info("[monitor] %-9s %s | %s", c.Status, l.FullName(), l.DisplayPrice)
		observations = append(observations, obs)
	}

	m.logger.Info("[monitor] %d listings, %d to report, %d valued, %d FIPE lookups failed",
		len(listings), len(observations), valued, lookupFailures)
	return observations, updated
}

func (m *Monitor) value(ctx context.Context, l *models.ListingRecord) (*models.Valuation, error) {
	if m.valuator == nil || m.valuator.Remaining() <= 0 {
		return nil, nil
	}
	return m.valuator.Match(ctx, l.Model, l.Version, l.ModelYear)
}
