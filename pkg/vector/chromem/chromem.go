// Package chromem provides an embedded vector driver backed by chromem-go.
// It needs no external service, which makes it the default backend for local
// development and the test suites.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/vector"
)

const (
	// DefaultCollectionName is the collection memory records are stored in.
	DefaultCollectionName = "memories"
)

// Driver implements vector.Driver using chromem-go's in-process index.
//
// chromem has no scan or delete-by-filter surface, so the driver keeps its
// own id -> document map alongside the index; List and Delete resolve the
// where filter against the map and only touch chromem by id.
type Driver struct {
	collection *chromemgo.Collection
	logger     *zap.Logger

	mu   sync.RWMutex
	docs map[string]vector.Document
}

// Config holds configuration for the chromem driver.
type Config struct {
	// CollectionName overrides DefaultCollectionName when set.
	CollectionName string
}

// NewDriver creates an embedded chromem-backed vector driver.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	name := c.CollectionName
	if name == "" {
		name = DefaultCollectionName
	}

	db := chromemgo.NewDB()
	// Embeddings are always supplied by the caller, so no embedding func.
	collection, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", name, err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Driver{
		collection: collection,
		logger:     logger,
		docs:       make(map[string]vector.Document),
	}, nil
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	for _, doc := range docs {
		err := d.collection.AddDocument(ctx, chromemgo.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("adding document %q: %w", doc.ID, err)
		}

		d.mu.Lock()
		d.docs[doc.ID] = doc
		d.mu.Unlock()
	}

	d.logger.Debug("added documents to chromem", zap.Int("count", len(docs)))

	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, where map[string]string) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	// chromem rejects nResults larger than the number of matching documents.
	d.mu.RLock()
	matching := 0
	for _, doc := range d.docs {
		if vector.Matches(doc.Metadata, where) {
			matching++
		}
	}
	d.mu.RUnlock()

	if matching == 0 {
		return nil, nil
	}
	if topK > matching {
		topK = matching
	}

	results, err := d.collection.QueryEmbedding(ctx, embedding, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	out := make([]vector.QueryResult, 0, len(results))
	for _, r := range results {
		out = append(out, vector.QueryResult{
			Document: vector.Document{
				ID:        r.ID,
				Text:      r.Content,
				Metadata:  r.Metadata,
				Embedding: r.Embedding,
			},
			Score: r.Similarity,
		})
	}

	d.logger.Debug("queried chromem", zap.Int("results", len(out)))

	return out, nil
}

func (d *Driver) List(_ context.Context, where map[string]string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []vector.Document
	for _, doc := range d.docs {
		if vector.Matches(doc.Metadata, where) {
			out = append(out, doc)
		}
	}

	return out, nil
}

func (d *Driver) Delete(ctx context.Context, where map[string]string) error {
	d.mu.Lock()
	var ids []string
	for id, doc := range d.docs {
		if vector.Matches(doc.Metadata, where) {
			ids = append(ids, id)
			delete(d.docs, id)
		}
	}
	d.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	if err := d.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting from chromem: %w", err)
	}

	d.logger.Debug("deleted documents from chromem", zap.Int("count", len(ids)))

	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return nil
}
