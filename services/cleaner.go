package services

import (
	"strings"
	"time"

	"carwatch/models"
	"carwatch/utils"
)

// DefaultExclude drops the sedan body of the tracked hatchback.
var DefaultExclude = []string{"SEDAN"}

// Cleaner turns scraped listings into identified, priced, de-duplicated records.
type Cleaner struct {
	logger  *utils.Logger
	exclude []string
}

// NewCleaner creates a Cleaner. exclude lists keywords that drop a listing
// when they appear in its model, version, title or body type.
func NewCleaner(logger *utils.Logger, exclude []string) *Cleaner {
	normalized := make([]string, 0, len(exclude))
	for _, kw := range exclude {
		if n := utils.Normalize(kw); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &Cleaner{logger: logger, exclude: normalized}
}

// Clean processes scraped listings and returns cleaned copies. The first
// listing seen for a car_id wins.
func (c *Cleaner) Clean(raw []*models.ListingRecord) []*models.ListingRecord {
	seen := utils.NewKeySet()
	result := make([]*models.ListingRecord, 0, len(raw))

	for _, r := range raw {
		if r == nil {
			continue
		}

		l := *r
		l.Link = strings.TrimSpace(l.Link)
		l.CarID = CarID(l.CarID, l.Link)
		if l.CarID == "" {
			c.logger.Warn("[cleaner] Dropping listing without id or link: %s", l.FullName())
			continue
		}

		if kw, hit := c.excluded(&l); hit {
			c.logger.Debug("[cleaner] Excluded (%s): %s", kw, l.FullName())
			continue
		}

		if !seen.Add(l.CarID) {
			c.logger.Debug("[cleaner] Duplicate car_id skipped: %s", l.CarID)
			continue
		}

		l.Brand = normaliseText(l.Brand)
		l.Model = normaliseText(l.Model)
		l.Version = normaliseText(l.Version)
		l.Title = normaliseText(l.Title)
		l.ModelYear = strings.TrimSpace(l.ModelYear)
		c.fillPrice(&l)
		if l.ScrapedAt.IsZero() {
			l.ScrapedAt = time.Now()
		}

		result = append(result, &l)
	}

	c.logger.Info("[cleaner] Cleaned %d -> %d listings (dropped %d)",
		len(raw), len(result), len(raw)-len(result))
	return result
}

// CarID is the listing identity: the source's own id, or its link when the
// source has none.
func CarID(nativeID, link string) string {
	if id := strings.TrimSpace(nativeID); id != "" {
		return id
	}
	return strings.TrimSpace(link)
}

func (c *Cleaner) excluded(l *models.ListingRecord) (string, bool) {
	haystack := " " + utils.Normalize(strings.Join([]string{l.Model, l.Version, l.Title, l.BodyType}, " ")) + " "
	for _, kw := range c.exclude {
		if strings.Contains(haystack, " "+kw+" ") {
			return kw, true
		}
	}
	return "", false
}

// fillPrice derives the numeric price from the display price, or formats a
// display price for sources that only report a number.
func (c *Cleaner) fillPrice(l *models.ListingRecord) {
	l.DisplayPrice = strings.TrimSpace(l.DisplayPrice)
	switch {
	case l.DisplayPrice != "":
		l.NumericPrice = utils.ParseBRL(l.DisplayPrice)
		if l.NumericPrice == 0 {
			c.logger.Warn("[cleaner] Unparseable price %q for %s", l.DisplayPrice, l.CarID)
		}
	case l.NumericPrice > 0:
		l.DisplayPrice = utils.FormatBRL(l.NumericPrice)
	}
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
