package elasticsearch

import (
	"encoding/json"
	"fmt"

	"github.com/shubhsaxena/nearby-assistant/internal/models"
)

type geoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// placeDocument is the shape of a document in the places index.
type placeDocument struct {
	FsqID            string   `json:"fsq_id"`
	Name             string   `json:"name"`
	Categories       []string `json:"categories"`
	CategoryCodes    []string `json:"category_codes"`
	Location         geoPoint `json:"location"`
	Address          string   `json:"address"`
	FormattedAddress string   `json:"formatted_address"`
	Locality         string   `json:"locality"`
	Region           string   `json:"region"`
	PostCode         string   `json:"post_code"`
	Country          string   `json:"country"`
	Photo            string   `json:"photo"`
	Photos           []string `json:"photos"`
	Tastes           []string `json:"tastes"`
	Tips             []string `json:"tips"`
	Description      string   `json:"description"`
	Tel              string   `json:"tel"`
	Website          string   `json:"website"`
	Hours            string   `json:"hours"`
	OpenNow          *bool    `json:"open_now"`
	Rating           float64  `json:"rating"`
	Price            int      `json:"price"`
	Popularity       float64  `json:"popularity"`
}

func (d *placeDocument) response(id string, distance float64) models.PlaceResponse {
	fsqID := d.FsqID
	if fsqID == "" {
		fsqID = id
	}
	return models.PlaceResponse{
		FsqID:            fsqID,
		Name:             d.Name,
		Categories:       d.Categories,
		Latitude:         d.Location.Lat,
		Longitude:        d.Location.Lon,
		Address:          d.Address,
		FormattedAddress: d.FormattedAddress,
		Locality:         d.Locality,
		Region:           d.Region,
		PostCode:         d.PostCode,
		Country:          d.Country,
		Distance:         distance,
		Photo:            d.Photo,
		Tastes:           d.Tastes,
	}
}

func (d *placeDocument) details(id string) models.PlaceDetails {
	place := d.response(id, 0)
	return models.PlaceDetails{
		FsqID:       place.FsqID,
		Place:       place,
		Description: d.Description,
		Tel:         d.Tel,
		Website:     d.Website,
		Hours:       d.Hours,
		OpenNow:     d.OpenNow,
		Rating:      d.Rating,
		Price:       d.Price,
		Popularity:  d.Popularity,
		Tastes:      d.Tastes,
		Photos:      d.Photos,
		Tips:        d.Tips,
	}
}

// locationDocument is the shape of a document in the locations index.
type locationDocument struct {
	Name     string   `json:"name"`
	Locality string   `json:"locality"`
	Region   string   `json:"region"`
	Country  string   `json:"country"`
	Location geoPoint `json:"location"`
}

func (d *locationDocument) placemark() models.Placemark {
	return models.Placemark{
		Name:       d.Name,
		Locality:   d.Locality,
		Region:     d.Region,
		Country:    d.Country,
		Coordinate: models.Coordinate{Latitude: d.Location.Lat, Longitude: d.Location.Lon},
	}
}

func decodePlace(hit Hit) (models.PlaceResponse, error) {
	var doc placeDocument
	if err := json.Unmarshal(hit.Source, &doc); err != nil {
		return models.PlaceResponse{}, fmt.Errorf("decoding place %s: %w", hit.ID, err)
	}
	return doc.response(hit.ID, sortDistance(hit.Sort)), nil
}

func decodeLocation(hit Hit) (models.Placemark, error) {
	var doc locationDocument
	if err := json.Unmarshal(hit.Source, &doc); err != nil {
		return models.Placemark{}, fmt.Errorf("decoding location %s: %w", hit.ID, err)
	}
	return doc.placemark(), nil
}

// sortDistance reads the geo distance sort value, which is always first when present.
func sortDistance(sort []any) float64 {
	if len(sort) == 0 {
		return 0
	}
	if v, ok := sort[0].(float64); ok {
		return v
	}
	return 0
}
