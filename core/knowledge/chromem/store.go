// Package chromem implements the retrieval contracts over the chromem-go
// embedded vector database. One store carries two collections: text passages
// for grounding generation and image documents for visual search.
package chromem

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	chromemgo "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/terratale/terratale/core/knowledge"
)

// Config holds the vector store settings. The zero value yields an
// in-memory store with default collection names.
type Config struct {
	// Path is the directory for persistent storage. Empty keeps the store
	// in memory.
	Path string
	// Compress enables gzip compression for persisted data.
	Compress bool

	PassageCollection string
	ImageCollection   string

	// PassageTopK bounds context retrieval results.
	PassageTopK int
	// ImageTopK bounds image search results.
	ImageTopK int
}

func (c *Config) applyDefaults() {
	if c.PassageCollection == "" {
		c.PassageCollection = "passages"
	}
	if c.ImageCollection == "" {
		c.ImageCollection = "images"
	}
	if c.PassageTopK <= 0 {
		c.PassageTopK = 3
	}
	if c.ImageTopK <= 0 {
		c.ImageTopK = 5
	}
}

// ImageDocument is one indexable image record.
type ImageDocument struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Label       string `json:"label"`
}

// Store backs both retrieval contracts with embedded vector collections.
type Store struct {
	db       *chromemgo.DB
	passages *chromemgo.Collection
	images   *chromemgo.Collection

	passageTopK int
	imageTopK   int
}

var (
	_ knowledge.ContextRetriever = (*Store)(nil)
	_ knowledge.ImageSearcher    = (*Store)(nil)
)

// NewStore opens the collections. The embedding function is shared by both
// collections for indexing and querying.
func NewStore(config Config, embed chromemgo.EmbeddingFunc) (*Store, error) {
	if embed == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	config.applyDefaults()

	var (
		db  *chromemgo.DB
		err error
	)
	if config.Path == "" {
		db = chromemgo.NewDB()
	} else {
		if err := os.MkdirAll(config.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create vector store directory: %w", err)
		}
		if db, err = chromemgo.NewPersistentDB(config.Path, config.Compress); err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	}

	passages, err := db.GetOrCreateCollection(config.PassageCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open passage collection: %w", err)
	}
	images, err := db.GetOrCreateCollection(config.ImageCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open image collection: %w", err)
	}

	return &Store{
		db:       db,
		passages: passages,
		images:   images,

		passageTopK: config.PassageTopK,
		imageTopK:   config.ImageTopK,
	}, nil
}

// Seed indexes both datasets concurrently. Either slice may be empty.
func (s *Store) Seed(ctx context.Context, passages []string, images []ImageDocument) error {
	ctx, span := tracer.Start(ctx, "seed vector store")
	defer span.End()
	span.SetAttributes(
		attribute.Int("seed.passages", len(passages)),
		attribute.Int("seed.images", len(images)),
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.IndexPassages(ctx, passages) })
	group.Go(func() error { return s.IndexImages(ctx, images) })

	if err := group.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to seed vector store: %w", err)
	}
	return nil
}

// IndexPassages embeds and stores text passages. A collection that already
// holds documents is left as is, so restarts do not duplicate the seed data.
func (s *Store) IndexPassages(ctx context.Context, passages []string) error {
	if len(passages) == 0 || s.passages.Count() > 0 {
		return nil
	}

	docs := make([]chromemgo.Document, 0, len(passages))
	for _, passage := range passages {
		docs = append(docs, chromemgo.Document{
			ID:      uuid.NewString(),
			Content: passage,
		})
	}
	if err := s.passages.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to index passages: %w", err)
	}
	return nil
}

// IndexImages embeds image descriptions and stores the image records. Like
// IndexPassages it only seeds an empty collection.
func (s *Store) IndexImages(ctx context.Context, images []ImageDocument) error {
	if len(images) == 0 || s.images.Count() > 0 {
		return nil
	}

	docs := make([]chromemgo.Document, 0, len(images))
	for _, image := range images {
		id := image.ID
		if id == "" {
			id = uuid.NewString()
		}
		docs = append(docs, chromemgo.Document{
			ID:      id,
			Content: image.Description,
			Metadata: map[string]string{
				"url":   image.URL,
				"label": image.Label,
			},
		})
	}
	if err := s.images.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to index images: %w", err)
	}
	return nil
}

// RetrieveContext returns the most similar passages, best match first.
func (s *Store) RetrieveContext(ctx context.Context, query string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "retrieve context")
	defer span.End()

	k := min(s.passageTopK, s.passages.Count())
	if k == 0 {
		return nil, nil
	}

	results, err := s.passages.Query(ctx, query, k, nil, nil)
	if err != nil {
		err = fmt.Errorf("failed to query passage collection: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	passages := make([]string, len(results))
	for i, result := range results {
		passages[i] = result.Content
	}
	span.SetAttributes(attribute.Int("results.count", len(passages)))
	return passages, nil
}

// SearchImages returns ranked image hits, best match first.
func (s *Store) SearchImages(ctx context.Context, query string) ([]knowledge.ImageResult, error) {
	ctx, span := tracer.Start(ctx, "search images")
	defer span.End()

	k := min(s.imageTopK, s.images.Count())
	if k == 0 {
		return []knowledge.ImageResult{}, nil
	}

	results, err := s.images.Query(ctx, query, k, nil, nil)
	if err != nil {
		err = fmt.Errorf("failed to query image collection: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits := make([]knowledge.ImageResult, len(results))
	for i, result := range results {
		hits[i] = knowledge.ImageResult{
			ID:          result.ID,
			URL:         result.Metadata["url"],
			Description: result.Content,
			Label:       result.Metadata["label"],
			Score:       float64(result.Similarity),
		}
	}
	span.SetAttributes(attribute.Int("results.count", len(hits)))
	return hits, nil
}
