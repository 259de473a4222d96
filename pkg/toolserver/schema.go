package toolserver

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// MetadataSchema is the JSON Schema (Draft-07) every generated metadata
// document must satisfy. It is served verbatim by get_metadata_schema.
const MetadataSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Dataset metadata",
  "type": "object",
  "required": ["title", "notes", "tags"],
  "additionalProperties": false,
  "properties": {
    "title": {
      "type": "string",
      "description": "Human readable dataset title"
    },
    "notes": {
      "type": "string",
      "description": "Description of the dataset contents"
    },
    "tags": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"}
        }
      }
    },
    "publisher": {
      "oneOf": [
        {
          "type": "object",
          "properties": {
            "name": {"type": "string"},
            "email": {"type": "string"}
          },
          "required": ["name", "email"]
        },
        {"type": "null"}
      ]
    },
    "license": {
      "type": ["string", "null"]
    },
    "organization": {
      "oneOf": [
        {
          "type": "object",
          "properties": {
            "name": {"type": "string"},
            "title": {"type": "string"}
          },
          "required": ["name", "title"]
        },
        {"type": "null"}
      ]
    },
    "update_frequency": {
      "enum": [
        "daily",
        "weekly",
        "monthly",
        "quarterly",
        "biennially",
        "biannually",
        "annually",
        "infrequently",
        "never",
        null
      ]
    },
    "language": {
      "type": ["string", "null"]
    },
    "jurisdiction": {
      "type": ["string", "null"]
    }
  }
}`

var metadataSchemaLoader = gojsonschema.NewStringLoader(MetadataSchema)

// ValidateMetadata checks doc against MetadataSchema and joins every
// violation into the returned error.
func ValidateMetadata(doc string) error {
	result, err := gojsonschema.Validate(metadataSchemaLoader, gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
}
