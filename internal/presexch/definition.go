// Package presexch implements the parts of DIF Presentation Exchange the
// wallet needs: definition parsing, input descriptor matching and
// presentation submission building.
package presexch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDefinition is returned for definitions that fail schema validation.
var ErrInvalidDefinition = errors.New("invalid presentation definition")

// PresentationDefinition describes the credentials a verifier asks for.
type PresentationDefinition struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Purpose          string            `json:"purpose,omitempty"`
	Format           json.RawMessage   `json:"format,omitempty"`
	InputDescriptors []InputDescriptor `json:"input_descriptors"`
}

// InputDescriptor describes one requested credential.
type InputDescriptor struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Purpose     string          `json:"purpose,omitempty"`
	Format      json.RawMessage `json:"format,omitempty"`
	Constraints *Constraints    `json:"constraints,omitempty"`
}

// Constraints holds the fields a credential must satisfy.
type Constraints struct {
	Fields          []Field `json:"fields,omitempty"`
	LimitDisclosure string  `json:"limit_disclosure,omitempty"`
}

// UnmarshalJSON accepts a single constraints object or a list of them.
// Fields of a list are concatenated.
func (c *Constraints) UnmarshalJSON(data []byte) error {
	type plain Constraints

	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "[") {
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*c = Constraints(p)
		return nil
	}

	var list []plain
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	merged := Constraints{}
	for _, p := range list {
		merged.Fields = append(merged.Fields, p.Fields...)
		if p.LimitDisclosure != "" {
			merged.LimitDisclosure = p.LimitDisclosure
		}
	}
	*c = merged
	return nil
}

// Field is a single constraint. Path holds JSONPath candidates tried in order.
type Field struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name,omitempty"`
	Purpose  string   `json:"purpose,omitempty"`
	Path     []string `json:"path"`
	Filter   *Filter  `json:"filter,omitempty"`
	Optional bool     `json:"optional,omitempty"`
}

// ParseDefinition validates data against the presentation definition
// schema and decodes it.
func ParseDefinition(data []byte) (*PresentationDefinition, error) {
	if err := validateSchema(gojsonschema.NewBytesLoader(data)); err != nil {
		return nil, err
	}

	var pd PresentationDefinition
	if err := json.Unmarshal(data, &pd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	return &pd, nil
}

// ValidateSchema checks the definition against the presentation definition schema.
func (pd *PresentationDefinition) ValidateSchema() error {
	return validateSchema(gojsonschema.NewGoLoader(pd))
}

// DescriptorIDs returns the ids of all input descriptors in order.
func (pd *PresentationDefinition) DescriptorIDs() []string {
	ids := make([]string, 0, len(pd.InputDescriptors))
	for _, d := range pd.InputDescriptors {
		ids = append(ids, d.ID)
	}
	return ids
}

var definitionSchemaLoader = gojsonschema.NewStringLoader(definitionSchema)

func validateSchema(document gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(definitionSchemaLoader, document)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	if result.Valid() {
		return nil
	}

	resultErrors := result.Errors()
	errs := make([]string, len(resultErrors))
	for i := range resultErrors {
		errs[i] = resultErrors[i].String()
	}

	return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(errs, ","))
}

const definitionSchema = `
{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "field": {
      "type": "object",
      "properties": {
        "id": { "type": "string" },
        "name": { "type": "string" },
        "purpose": { "type": "string" },
        "path": { "type": "array", "items": { "type": "string" }, "minItems": 1 },
        "filter": { "type": "object" },
        "optional": { "type": "boolean" }
      },
      "required": ["path"]
    },
    "constraints": {
      "type": "object",
      "properties": {
        "limit_disclosure": { "type": "string", "enum": ["required", "preferred"] },
        "fields": { "type": "array", "items": { "$ref": "#/definitions/field" } }
      }
    },
    "input_descriptor": {
      "type": "object",
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "name": { "type": "string" },
        "purpose": { "type": "string" },
        "format": { "type": "object" },
        "constraints": {
          "oneOf": [
            { "$ref": "#/definitions/constraints" },
            { "type": "array", "items": { "$ref": "#/definitions/constraints" } }
          ]
        }
      },
      "required": ["id"]
    }
  },
  "type": "object",
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "name": { "type": "string" },
    "purpose": { "type": "string" },
    "format": { "type": "object" },
    "input_descriptors": {
      "type": "array",
      "items": { "$ref": "#/definitions/input_descriptor" },
      "minItems": 1
    }
  },
  "required": ["id", "input_descriptors"]
}`
