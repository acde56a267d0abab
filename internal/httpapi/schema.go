package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// planSchemaJSON describes the plan document shape ingested by the
// plan create/update routes. It is deliberately looser than
// internal/graph's own checks: it catches malformed JSON and missing
// required fields early, but doesn't attempt to validate edges or
// sentinels — internal/graph.Build still runs on every write and is the
// source of truth for cycle/sentinel correctness.
const planSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["name", "project", "environment", "version", "nodes", "edges"],
	"properties": {
		"id": {"type": "string"},
		"name": {"type": "string", "minLength": 1},
		"project": {"type": "string", "minLength": 1},
		"environment": {"type": "string", "minLength": 1},
		"version": {"type": "string", "minLength": 1},
		"frequency": {
			"type": "object",
			"required": ["every", "unit"],
			"properties": {
				"every": {"type": "integer", "minimum": 1},
				"unit": {"enum": ["MINUTE", "HOUR", "DAY"]}
			}
		},
		"locations": {"type": "array", "items": {"type": "string"}},
		"edges": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["from", "to"],
				"properties": {
					"from": {"type": "string"},
					"to": {"type": "string"}
				}
			}
		},
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "type"],
				"properties": {
					"id": {"type": "string"},
					"type": {"enum": ["http_request", "wait", "assertions"]}
				},
				"oneOf": [
					{
						"properties": {"type": {"const": "http_request"}},
						"required": ["method", "base", "path", "response_format"]
					},
					{
						"properties": {"type": {"const": "wait"}},
						"required": ["duration_ms"]
					},
					{
						"properties": {"type": {"const": "assertions"}},
						"required": ["assertions"]
					}
				]
			}
		}
	}
}`

func compilePlanSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("plan.json", bytes.NewReader([]byte(planSchemaJSON))); err != nil {
		return nil, fmt.Errorf("httpapi: compiling plan schema: %w", err)
	}
	return compiler.Compile("plan.json")
}

// ValidatePlanBody validates POST/PUT /plans request bodies against
// schema before they reach huma's typed decode, as defense-in-depth
// ahead of internal/graph's own well-formedness checks.
func ValidatePlanBody(schema *jsonschema.Schema) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isPlanWriteRoute(r) {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, `{"error":"failed to read request body"}`, http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var doc any
			if err := json.Unmarshal(body, &doc); err != nil {
				http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
				return
			}
			if err := schema.Validate(doc); err != nil {
				msg, _ := json.Marshal(fmt.Sprintf("plan schema validation failed: %s", err.Error()))
				http.Error(w, fmt.Sprintf(`{"error":%s}`, msg), http.StatusBadRequest)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isPlanWriteRoute(r *http.Request) bool {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/plans")
}
