package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
)

const (
	DefaultRadius = 50000
	DefaultLimit  = 50
	DefaultSort   = "distance"
)

// Parameters are the structured search parameters derived from a caption.
type Parameters struct {
	Query      string         `json:"query"`
	Radius     float64        `json:"radius"`
	Sort       string         `json:"sort"`
	Limit      int            `json:"limit"`
	Tags       []string       `json:"tags,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	MinPrice   *int           `json:"min_price,omitempty"`
	MaxPrice   *int           `json:"max_price,omitempty"`
	OpenAt     string         `json:"open_at,omitempty"`
	OpenNow    *bool          `json:"open_now,omitempty"`
	Near       string         `json:"near,omitempty"`
	Section    models.Section `json:"section"`
}

const (
	minPriceLevel = 1
	maxPriceLevel = 4
)

// ValidateFilters rejects filter values Parameters could not apply. Empty
// values count as absent.
func ValidateFilters(filters map[string]string) error {
	if v := filters["distance"]; v != "" {
		km, err := strconv.ParseFloat(v, 64)
		if err != nil || km <= 0 {
			return apperrors.ValidationFailure(fmt.Sprintf("distance filter %q must be a positive number of kilometers", v))
		}
	}

	prices := make(map[string]int, 2)
	for _, key := range []string{"min_price", "max_price"} {
		v := filters[key]
		if v == "" {
			continue
		}
		level, err := strconv.Atoi(v)
		if err != nil || level < minPriceLevel || level > maxPriceLevel {
			return apperrors.ValidationFailure(fmt.Sprintf("%s filter %q must be a price level from %d to %d", key, v, minPriceLevel, maxPriceLevel))
		}
		prices[key] = level
	}
	lo, hasMin := prices["min_price"]
	hi, hasMax := prices["max_price"]
	if hasMin && hasMax && lo > hi {
		return apperrors.ValidationFailure(fmt.Sprintf("min_price %d is above max_price %d", lo, hi))
	}

	if v := filters["open_now"]; v != "" {
		if _, err := strconv.ParseBool(v); err != nil {
			return apperrors.ValidationFailure(fmt.Sprintf("open_now filter %q must be true or false", v))
		}
	}
	return nil
}

type Defaults struct {
	Radius float64
	Limit  int
}

// Parameters builds the default parameters for rawQuery. Filter values win
// over values extracted from the text: "distance" is in kilometers.
func (e *FilterExtractor) Parameters(rawQuery string, tags TaggedWords, filters map[string]string, defaults Defaults) *Parameters {
	p := &Parameters{
		Radius: defaults.Radius,
		Sort:   DefaultSort,
		Limit:  defaults.Limit,
	}
	if p.Radius <= 0 {
		p.Radius = DefaultRadius
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}

	if r, ok := e.Radius(rawQuery); ok {
		p.Radius = r
	}
	if km, err := strconv.ParseFloat(filters["distance"], 64); err == nil && km > 0 {
		p.Radius = km * 1000
	}

	if tags != nil {
		p.Tags = tags.Words()
		p.Categories = e.CategoryCodes(rawQuery, tags)
	}

	if v, ok := e.MinPrice(rawQuery); ok {
		p.MinPrice = &v
	}
	if v, ok := e.MaxPrice(rawQuery); ok {
		p.MaxPrice = &v
	}
	if v, err := strconv.Atoi(filters["min_price"]); err == nil {
		p.MinPrice = &v
	}
	if v, err := strconv.Atoi(filters["max_price"]); err == nil {
		p.MaxPrice = &v
	}

	if v, ok := e.OpenAt(rawQuery); ok {
		p.OpenAt = v
	}
	if v, ok := filters["open_at"]; ok && v != "" {
		p.OpenAt = v
	}

	if v, ok := e.OpenNow(rawQuery); ok {
		p.OpenNow = &v
	}
	if v, err := strconv.ParseBool(filters["open_now"]); err == nil {
		p.OpenNow = &v
	}

	if near, ok := e.NearLocation(rawQuery); ok {
		p.Near = near
	}

	p.Query = e.ParsedQuery(rawQuery, tags)
	p.Section = Section(rawQuery)
	return p
}

// Section maps a caption to a browse section.
func Section(text string) models.Section {
	return taxonomy.SectionFor(strings.TrimSpace(beforeNear(text)))
}
