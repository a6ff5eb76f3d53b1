package rest

import (
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// LoadOpenAPISpec parses and validates the OpenAPI document so a malformed
// contract fails the server at startup instead of at first request.
func LoadOpenAPISpec(path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("openapi spec is invalid: %w", err)
	}
	return doc, nil
}

// serveOpenAPISpec serves the raw contract file for the swagger UI.
func serveOpenAPISpec(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}
}
