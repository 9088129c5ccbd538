package orchestrator

import (
	"github.com/google/uuid"

	"github.com/shubhsaxena/nearby-assistant/internal/intent"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
)

const defaultRating = 1

func placeChatResult(place models.PlaceResponse, section models.Section, list string, index int, details *models.PlaceDetails) models.ChatResult {
	p := place
	return models.ChatResult{
		ID:       uuid.NewString(),
		Index:    index,
		Identity: place.Name,
		Title:    place.Name,
		List:     list,
		Rating:   defaultRating,
		Section:  section,
		Place:    &p,
		Details:  details,
	}
}

// BuildPlaceResults formats the intent's places. A selected place with
// details replaces the list.
func BuildPlaceResults(in *intent.Intent) []models.ChatResult {
	f := in.Fulfillment
	if f.SelectedPlace != nil && f.SelectedDetails != nil {
		d := *f.SelectedDetails
		return []models.ChatResult{placeChatResult(*f.SelectedPlace, models.SectionTopPicks, in.Caption, 0, &d)}
	}

	results := make([]models.ChatResult, 0, len(f.Places))
	for i, place := range f.Places {
		if place.Name == "" {
			continue
		}
		var details *models.PlaceDetails
		if d, ok := in.DetailsFor(place.FsqID); ok {
			copied := *d
			details = &copied
		}
		results = append(results, placeChatResult(place, models.SectionTopPicks, in.Caption, i, details))
	}
	return results
}

// BuildSearchResults lists places with details first, the selected place
// included, then the remaining places not already present.
func BuildSearchResults(in *intent.Intent) []models.ChatResult {
	f := in.Fulfillment
	details := append([]models.PlaceDetails(nil), f.Details...)
	if f.SelectedDetails != nil {
		details = append(details, *f.SelectedDetails)
	}

	results := make([]models.ChatResult, 0, len(details)+len(f.Places))
	seen := make(map[string]struct{}, len(details)+len(f.Places))
	for i, d := range details {
		if _, ok := seen[d.FsqID]; ok {
			continue
		}
		seen[d.FsqID] = struct{}{}
		copied := d
		results = append(results, placeChatResult(d.Place, models.SectionTopPicks, in.Caption, i, &copied))
	}

	for i, place := range f.Places {
		if _, ok := seen[place.FsqID]; ok {
			continue
		}
		seen[place.FsqID] = struct{}{}
		results = append(results, placeChatResult(place, models.SectionTopPicks, in.Caption, i, nil))
	}
	return results
}

// BuildRecommendedResults formats the personalized venues under the intent's section.
func BuildRecommendedResults(in *intent.Intent) []models.ChatResult {
	section := models.SectionTopPicks
	if in.Parameters != nil && in.Parameters.Section != "" {
		section = in.Parameters.Section
	}

	recs := in.Fulfillment.Recommendations
	results := make([]models.ChatResult, 0, len(recs))
	for i, rec := range recs {
		if rec.FsqID == "" {
			continue
		}
		r := rec
		var details *models.PlaceDetails
		if d, ok := in.DetailsFor(rec.FsqID); ok {
			copied := *d
			details = &copied
		}
		results = append(results, models.ChatResult{
			ID:          uuid.NewString(),
			Index:       i,
			Identity:    rec.Name,
			Title:       rec.Name,
			List:        in.Caption,
			Rating:      defaultRating,
			Section:     section,
			Recommended: &r,
			Details:     details,
		})
	}
	return results
}

// BuildRelatedResults maps related places one to one, preserving order.
func BuildRelatedResults(in *intent.Intent) []models.ChatResult {
	related := in.Fulfillment.Related
	if len(related) == 0 {
		return []models.ChatResult{}
	}
	results := make([]models.ChatResult, 0, len(related))
	for i, place := range related {
		results = append(results, placeChatResult(place, models.SectionTopPicks, in.Caption, i, nil))
	}
	return results
}

// AutocompleteResults formats autocomplete suggestions under top picks.
func AutocompleteResults(caption string, suggestions []models.AutocompleteResult) ([]models.PlaceResponse, []models.ChatResult) {
	places := make([]models.PlaceResponse, 0, len(suggestions))
	results := make([]models.ChatResult, 0, len(suggestions))
	for _, s := range suggestions {
		if s.Place == nil {
			continue
		}
		results = append(results, placeChatResult(*s.Place, models.SectionTopPicks, caption, len(places), nil))
		places = append(places, *s.Place)
	}
	return places, results
}

// TasteResults builds one category result per taste, with stable ids.
func TasteResults(tastes []string) []models.CategoryResult {
	results := make([]models.CategoryResult, 0, len(tastes))
	for _, taste := range tastes {
		if taste == "" {
			continue
		}
		id := taxonomy.ResultID("taste", taste)
		section := taxonomy.SectionFor(taste)
		results = append(results, models.CategoryResult{
			ID:             id,
			ParentCategory: taste,
			List:           taste,
			Section:        section,
			ChatResults: []models.ChatResult{{
				ID:       taxonomy.ResultID("taste-chat", taste),
				ParentID: id,
				Identity: taste,
				Title:    taste,
				List:     taste,
				Section:  section,
			}},
		})
	}
	return results
}
