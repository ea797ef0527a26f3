// Package knowledge defines the contracts for retrieval backends and a
// static snapshot corpus used when no vector store is configured.
package knowledge

import (
	"context"
	"errors"
)

// ImageResult is one ranked hit from an image search backend.
type ImageResult struct {
	ID          string
	URL         string
	Description string
	Label       string
	Score       float64
}

// ContextRetriever returns relevance-ordered text passages for a query.
type ContextRetriever interface {
	// RetrieveContext returns passages most relevant first. Order must be
	// preserved when passages are joined into a prompt.
	RetrieveContext(ctx context.Context, query string) ([]string, error)
}

// ImageSearcher returns ranked image hits for a query.
type ImageSearcher interface {
	SearchImages(ctx context.Context, query string) ([]ImageResult, error)
}

// ErrNotConfigured reports a retrieval backend that was never set up.
var ErrNotConfigured = errors.New("search backend is not configured")

// UnconfiguredImageSearcher stands in when no vector store is configured.
// Searches fail so callers report the missing backend instead of silently
// returning nothing.
type UnconfiguredImageSearcher struct{}

var _ ImageSearcher = UnconfiguredImageSearcher{}

func (UnconfiguredImageSearcher) SearchImages(_ context.Context, _ string) ([]ImageResult, error) {
	return nil, ErrNotConfigured
}
