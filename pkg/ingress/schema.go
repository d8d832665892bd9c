package ingress

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const sequenceRunSchema = `{
	"type": "object",
	"required": ["id", "name", "instrumentRunId", "dateModified", "status", "gdsFolderPath", "gdsVolumeName"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"instrumentRunId": {"type": "string", "minLength": 1},
		"dateModified": {"type": "string", "format": "date-time"},
		"status": {"type": "string", "minLength": 1},
		"gdsFolderPath": {"type": "string"},
		"gdsVolumeName": {"type": "string"},
		"acl": {"type": "array", "items": {"type": "string"}}
	}
}`

const workflowRunSchema = `{
	"type": "object",
	"required": ["WorkflowRun", "EventType", "Timestamp"],
	"properties": {
		"WorkflowRun": {
			"type": "object",
			"required": ["Id", "WorkflowVersion"],
			"properties": {
				"Id": {"type": "string", "minLength": 1},
				"WorkflowVersion": {
					"type": "object",
					"required": ["Id"],
					"properties": {"Id": {"type": "string", "minLength": 1}}
				}
			}
		},
		"EventType": {"type": "string", "minLength": 1},
		"EventDetails": {"type": ["object", "null"]},
		"Timestamp": {"type": "string", "format": "date-time"}
	}
}`

var (
	sequenceRunSchemaLoader = gojsonschema.NewStringLoader(sequenceRunSchema)
	workflowRunSchemaLoader = gojsonschema.NewStringLoader(workflowRunSchema)
)

// validate checks body against schema. Violations wrap ErrInvalidRecord.
func validate(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(errs, "; "))
	}

	return nil
}
