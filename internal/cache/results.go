package cache

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
)

// LocationIdentity is the cache key of a location: the coordinate quantized
// to four decimals, or the lowercased name when the coordinate is unknown.
func LocationIdentity(loc models.LocationResult) string {
	if loc.Coordinate == nil {
		return strings.ToLower(strings.TrimSpace(loc.Name))
	}
	return fmt.Sprintf("%.4f,%.4f", quantize(loc.Coordinate.Latitude), quantize(loc.Coordinate.Longitude))
}

// quantize rounds to four decimals. Values that round to zero from below
// come back as positive zero so both sides of the axis share one key.
func quantize(v float64) float64 {
	q := math.Round(v*1e4) / 1e4
	if q == 0 {
		return 0
	}
	return q
}

func parseLocationIdentity(identity string) (*models.Coordinate, bool) {
	lat, lon, ok := strings.Cut(identity, ",")
	if !ok {
		return nil, false
	}
	latitude, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return nil, false
	}
	longitude, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return nil, false
	}
	return &models.Coordinate{Latitude: latitude, Longitude: longitude}, true
}

func sectionOf(record models.CachedRecord) models.Section {
	s, _ := models.ParseSection(record.Section)
	return s
}

func categoryResults(records []models.CachedRecord) []models.CategoryResult {
	results := make([]models.CategoryResult, 0, len(records))
	for i, r := range records {
		section := sectionOf(r)
		results = append(results, models.CategoryResult{
			ID:             r.RecordID,
			ParentCategory: r.Title,
			List:           r.List,
			Icon:           r.Icons,
			Rating:         r.Rating,
			Section:        section,
			ChatResults: []models.ChatResult{{
				ID:       taxonomy.ResultID("cached-chat", string(r.Group)+":"+r.Identity),
				ParentID: r.RecordID,
				Index:    i,
				Identity: r.Identity,
				Title:    r.Title,
				List:     r.List,
				Icon:     r.Icons,
				Rating:   r.Rating,
				Section:  section,
			}},
		})
	}
	sortByParent(results)
	return results
}

// placeResults attaches a minimal place response so the chat result carries
// the provider id stored as the record identity.
func placeResults(records []models.CachedRecord) []models.CategoryResult {
	results := categoryResults(records)
	for i := range results {
		for j := range results[i].ChatResults {
			c := &results[i].ChatResults[j]
			c.Place = &models.PlaceResponse{FsqID: c.Identity, Name: c.Title}
		}
	}
	return results
}

func locationResults(records []models.CachedRecord) []models.LocationResult {
	results := make([]models.LocationResult, 0, len(records))
	for _, r := range records {
		loc := models.LocationResult{ID: r.RecordID, Name: r.Title}
		if c, ok := parseLocationIdentity(r.Identity); ok {
			loc.Coordinate = c
		}
		results = append(results, loc)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return strings.ToLower(results[i].Name) < strings.ToLower(results[j].Name)
	})
	return results
}

// defaultResults is one category per personalized section.
func defaultResults() []models.CategoryResult {
	sections := models.Sections()
	results := make([]models.CategoryResult, 0, len(sections))
	for i, s := range sections {
		id := taxonomy.ResultID("section", string(s))
		results = append(results, models.CategoryResult{
			ID:             id,
			ParentCategory: string(s),
			List:           string(s),
			Rating:         1,
			Section:        s,
			ChatResults: []models.ChatResult{{
				ID:       taxonomy.ResultID("section-chat", string(s)),
				ParentID: id,
				Index:    i,
				Identity: string(s),
				Title:    string(s),
				List:     string(s),
				Rating:   1,
				Section:  s,
			}},
		})
	}
	return results
}

func sortByParent(results []models.CategoryResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return strings.ToLower(results[i].ParentCategory) < strings.ToLower(results[j].ParentCategory)
	})
}
