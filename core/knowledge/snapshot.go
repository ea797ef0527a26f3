package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// Snapshot is a fixed, relevance-ordered corpus held in memory. It serves
// context retrieval when no vector store is configured and never fails.
type Snapshot struct {
	passages []string
}

var _ ContextRetriever = (*Snapshot)(nil)

// defaultPassages is the built-in wetlands corpus.
var defaultPassages = []string{
	"Manatees are large, fully aquatic, mostly herbivorous marine mammals. Their diet consists of seagrasses and other aquatic vegetation.",
	"The San San Pond Sak wetlands are a Ramsar site of international importance, located in the Bocas del Toro province of Panama.",
	"Local folklore speaks of the 'tulivieja', a spirit that protects the rivers and is said to appear as a woman with a monstrous face.",
	"The red mangrove, or 'Mangle Rojo', has distinctive prop roots that help stabilize coastlines and provide critical nursery habitat for fish and invertebrates.",
}

// NewSnapshot creates a snapshot over the given passages. With no passages
// the built-in corpus is used.
func NewSnapshot(passages []string) *Snapshot {
	if len(passages) == 0 {
		passages = defaultPassages
	}
	return &Snapshot{passages: slices.Clone(passages)}
}

// LoadPassages reads a JSON array of passages from path. An empty path
// yields the built-in corpus.
func LoadPassages(path string) ([]string, error) {
	if path == "" {
		return slices.Clone(defaultPassages), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}

	var passages []string
	if err := json.Unmarshal(raw, &passages); err != nil {
		return nil, fmt.Errorf("failed to parse corpus file: %w", err)
	}
	return passages, nil
}

// LoadSnapshot reads a JSON array of passages from path. An empty path
// yields the built-in corpus.
func LoadSnapshot(path string) (*Snapshot, error) {
	passages, err := LoadPassages(path)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(passages), nil
}

// RetrieveContext returns the full snapshot in stored order for every query.
func (s *Snapshot) RetrieveContext(_ context.Context, _ string) ([]string, error) {
	return slices.Clone(s.passages), nil
}
