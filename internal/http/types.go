package http

import (
	"github.com/danielfsbarreto/crewai-expert/internal/collections"
	"github.com/danielfsbarreto/crewai-expert/internal/search"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// SearchRequest is the request body for POST /api/v1/search.
type SearchRequest struct {
	Prompt string `json:"prompt"`
	K      int    `json:"k,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse = search.Response

// CurrentCollectionResponse is the response body for
// GET /api/v1/collections/current.
type CurrentCollectionResponse struct {
	Prefix     string `json:"prefix"`
	Collection string `json:"collection"`
}

// CollectionsResponse is the response body for GET /api/v1/collections.
type CollectionsResponse struct {
	Prefix      string                `json:"prefix"`
	Collections []collections.Summary `json:"collections"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
