package statelang

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema screens the raw shape of a definition document before
// structural validation. It is deliberately loose about variant-specific
// fields; referential checks live in the loader where they can name the
// offending state.
const definitionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["StartAt", "States"],
	"properties": {
		"Comment": {"type": "string"},
		"StartAt": {"type": "string", "minLength": 1},
		"States": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {"$ref": "#/definitions/state"}
		}
	},
	"definitions": {
		"state": {
			"type": "object",
			"required": ["Type"],
			"properties": {
				"Type": {
					"type": "string",
					"enum": ["Task", "Choice", "Wait", "Pass", "Succeed", "Fail", "Parallel", "Map"]
				},
				"Next": {"type": "string"},
				"End": {"type": "boolean"},
				"InputPath": {"type": "string"},
				"OutputPath": {"type": "string"},
				"ResultPath": {"type": "string"},
				"Parameters": {"type": "object"},
				"Resource": {"type": "string"},
				"Choices": {"type": "array"},
				"Default": {"type": "string"},
				"Seconds": {"type": "number", "minimum": 0},
				"SecondsPath": {"type": "string"},
				"Timestamp": {"type": "string"},
				"TimestampPath": {"type": "string"},
				"Branches": {"type": "array"},
				"Iterator": {"type": "object"},
				"ItemsPath": {"type": "string"},
				"MaxConcurrency": {"type": "integer", "minimum": 0},
				"Retry": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["ErrorEquals"],
						"properties": {
							"ErrorEquals": {"type": "array", "items": {"type": "string"}, "minItems": 1},
							"IntervalSeconds": {"type": "number", "minimum": 0},
							"MaxAttempts": {"type": "integer", "minimum": 1},
							"BackoffRate": {"type": "number", "minimum": 1}
						}
					}
				},
				"Catch": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["ErrorEquals", "Next"],
						"properties": {
							"ErrorEquals": {"type": "array", "items": {"type": "string"}, "minItems": 1},
							"Next": {"type": "string"},
							"ResultPath": {"type": "string"}
						}
					}
				},
				"Error": {"type": "string"},
				"Cause": {"type": "string"}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(definitionSchema)

func checkSchema(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if !result.Valid() {
		first := result.Errors()[0]

		return fmt.Errorf("%w: %s: %s", ErrInvalidDocument, first.Field(), first.Description())
	}

	return nil
}
