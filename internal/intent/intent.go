// Package intent holds the conversation history of classified search turns.
package intent

import (
	"github.com/google/uuid"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/query"
)

// Fulfillment is the response data attached to an intent by the orchestrator.
type Fulfillment struct {
	SelectedPlace   *models.PlaceResponse  `json:"selected_place,omitempty"`
	SelectedDetails *models.PlaceDetails   `json:"selected_details,omitempty"`
	Places          []models.PlaceResponse `json:"places,omitempty"`
	Details         []models.PlaceDetails  `json:"details,omitempty"`
	Recommendations []models.PlaceResponse `json:"recommendations,omitempty"`
	Related         []models.PlaceResponse `json:"related,omitempty"`
}

// Clone copies the slices so the copy can be filled without touching the original.
func (f Fulfillment) Clone() Fulfillment {
	out := f
	out.Places = append([]models.PlaceResponse(nil), f.Places...)
	out.Details = append([]models.PlaceDetails(nil), f.Details...)
	out.Recommendations = append([]models.PlaceResponse(nil), f.Recommendations...)
	out.Related = append([]models.PlaceResponse(nil), f.Related...)
	return out
}

type Intent struct {
	ID          string                 `json:"id"`
	Caption     string                 `json:"caption"`
	Kind        models.IntentKind      `json:"kind"`
	Filters     map[string]string      `json:"filters,omitempty"`
	Parameters  *query.Parameters      `json:"parameters,omitempty"`
	Destination *models.LocationResult `json:"destination,omitempty"`
	Fulfillment Fulfillment            `json:"fulfillment"`
}

func New(caption string, kind models.IntentKind, filters map[string]string, params *query.Parameters, destination *models.LocationResult) *Intent {
	copied := make(map[string]string, len(filters))
	for k, v := range filters {
		copied[k] = v
	}
	return &Intent{
		ID:          uuid.NewString(),
		Caption:     caption,
		Kind:        kind,
		Filters:     copied,
		Parameters:  params,
		Destination: destination,
	}
}

// Equal compares by id only.
func (in *Intent) Equal(other *Intent) bool {
	if in == nil || other == nil {
		return in == other
	}
	return in.ID == other.ID
}

// DetailsFor returns the fetched details for a provider id.
func (in *Intent) DetailsFor(fsqID string) (*models.PlaceDetails, bool) {
	for i := range in.Fulfillment.Details {
		if in.Fulfillment.Details[i].FsqID == fsqID {
			return &in.Fulfillment.Details[i], true
		}
	}
	return nil, false
}
