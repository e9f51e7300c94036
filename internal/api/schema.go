package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// analyzeResponseSchema checks types only. Lists, list items and rewrite
// fields may be absent or null and unknown fields are allowed so newer
// service versions still decode.
const analyzeResponseSchema = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "message": {"type": ["string", "null"]},
    "feedbackId": {"type": ["string", "null"]},
    "analysis": {
      "type": ["object", "null"],
      "properties": {
        "score": {"type": "number"},
        "summary": {"type": ["string", "null"]},
        "strengths": {"$ref": "#/definitions/stringList"},
        "weaknesses": {"$ref": "#/definitions/stringList"},
        "improvementSuggestions": {"$ref": "#/definitions/stringList"},
        "bulletPointRewrites": {
          "type": ["array", "null"],
          "items": {
            "type": ["object", "null"],
            "properties": {
              "before": {"type": ["string", "null"]},
              "after": {"type": ["string", "null"]},
              "explanation": {"type": ["string", "null"]}
            }
          }
        },
        "atsAnalysis": {
          "type": ["object", "null"],
          "properties": {
            "score": {"type": "number"},
            "issues": {"$ref": "#/definitions/stringList"},
            "missingKeywords": {"$ref": "#/definitions/stringList"},
            "formatWarnings": {"$ref": "#/definitions/stringList"}
          }
        }
      }
    }
  },
  "definitions": {
    "stringList": {"type": ["array", "null"], "items": {"type": ["string", "null"]}}
  }
}`

var analyzeSchemaLoader = gojsonschema.NewStringLoader(analyzeResponseSchema)

// validateAnalyzeResponse validates a raw envelope against the schema
func validateAnalyzeResponse(body []byte) error {
	result, err := gojsonschema.Validate(analyzeSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("response does not match schema: %s", strings.Join(problems, "; "))
}
