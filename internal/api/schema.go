package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
)

const messageSchemaJSON = `{
  "type": "object",
  "required": ["caption"],
  "properties": {
    "caption": {"type": "string", "minLength": 1, "maxLength": 500},
    "filters": {
      "type": "object",
      "properties": {
        "min_price": {"type": "string", "pattern": "^[1-4]?$"},
        "max_price": {"type": "string", "pattern": "^[1-4]?$"},
        "distance": {"type": "string", "pattern": "^([0-9]+(\\.[0-9]+)?)?$"},
        "open_now": {"type": "string", "enum": ["", "true", "false"]}
      },
      "additionalProperties": {"type": "string"}
    },
    "kind": {"type": "string", "enum": ["search", "autocomplete"]},
    "refine": {"type": "boolean"},
    "destination_id": {"type": "string"}
  },
  "additionalProperties": false
}`

const recordSchemaJSON = `{
  "type": "object",
  "required": ["group", "identity", "title"],
  "properties": {
    "group": {"type": "string", "enum": ["Category", "Taste", "Place"]},
    "identity": {"type": "string", "minLength": 1},
    "title": {"type": "string", "minLength": 1},
    "icons": {"type": "string"},
    "list": {"type": "string"},
    "section": {"type": "string"},
    "rating": {"type": "number", "minimum": 0}
  }
}`

const locationSchemaJSON = `{
  "type": "object",
  "required": ["name", "coordinate"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "coordinate": {
      "type": "object",
      "required": ["latitude", "longitude"],
      "properties": {
        "latitude": {"type": "number", "minimum": -90, "maximum": 90},
        "longitude": {"type": "number", "minimum": -180, "maximum": 180}
      }
    }
  }
}`

const recommendationSchemaJSON = `{
  "type": "object",
  "required": ["identity", "attribute"],
  "properties": {
    "identity": {"type": "string", "minLength": 1},
    "attribute": {"type": "string", "minLength": 1},
    "rating": {"type": "number"}
  }
}`

var (
	messageSchema        = mustSchema(messageSchemaJSON)
	recordSchema         = mustSchema(recordSchemaJSON)
	locationSchema       = mustSchema(locationSchemaJSON)
	recommendationSchema = mustSchema(recommendationSchemaJSON)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compiling request schema: %v", err))
	}
	return s
}

// validate checks body against schema and returns a ValidationFailure
// listing every violation.
func validate(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return apperrors.ValidationFailure("malformed request body: " + err.Error())
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		errs[i] = desc.String()
	}
	return apperrors.ValidationFailure(strings.Join(errs, "; "))
}
