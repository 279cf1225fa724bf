package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const submissionSchema = `{
  "type": "object",
  "required": ["score", "display_name", "expire_in"],
  "properties": {
    "score":        {"type": "number"},
    "display_name": {"type": "string"},
    "expire_in":    {"type": "integer", "minimum": 1},
    "profile":      {"type": "object"}
  }
}`

const purgeSchema = `{
  "type": "object",
  "required": ["accounts"],
  "properties": {
    "event_id":       {"type": "string"},
    "gamespace":      {"type": "string"},
    "accounts":       {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
    "gamespace_only": {"type": "boolean"}
  },
  "if":   {"required": ["gamespace_only"], "properties": {"gamespace_only": {"const": true}}},
  "then": {"required": ["gamespace"], "properties": {"gamespace": {"minLength": 1}}}
}`

var (
	submissionLoader = gojsonschema.NewStringLoader(submissionSchema)
	purgeLoader      = gojsonschema.NewStringLoader(purgeSchema)
)

// ValidationError lists the schema violations of a request body.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid body: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrBadRequest }

// validate checks body against schema. A body that is not JSON at all is
// reported as a bad request too.
func validate(schema gojsonschema.JSONLoader, body []byte) error {
	res, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, item := range res.Errors() {
		problems = append(problems, item.Field()+": "+item.Description())
	}
	return &ValidationError{Problems: problems}
}
