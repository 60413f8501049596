// Package qdrant provides a Qdrant vector database driver implementation
// backed by the official gRPC client.
package qdrant

import (
	"context"
	"fmt"

	qdrantgo "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/vector"
)

const (
	// DefaultCollectionName is the collection memory records are stored in.
	DefaultCollectionName = "memories"

	// payloadTextKey is the payload field holding the record's raw text.
	// Metadata keys live beside it in the same payload map.
	payloadTextKey = "text"

	// scrollPageSize bounds a single List page.
	scrollPageSize = 256
)

// Driver implements vector.Driver using Qdrant's gRPC API.
type Driver struct {
	client         *qdrantgo.Client
	collectionName string
	logger         *zap.Logger
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Host is the Qdrant server host (e.g. "localhost").
	Host string

	// Port is the gRPC port, typically 6334.
	Port int

	// CollectionName overrides DefaultCollectionName when set.
	CollectionName string

	// VectorSize is the embedding dimensionality used when the collection
	// has to be created.
	VectorSize uint64
}

// NewDriver creates a new Qdrant vector driver, creating the collection with
// cosine distance if it doesn't exist yet.
func NewDriver(ctx context.Context, c Config, logger *zap.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrantgo.NewClient(&qdrantgo.Config{
		Host: c.Host,
		Port: c.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	exists, err := client.CollectionExists(ctx, collectionName)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("checking collection %q: %w", collectionName, err)
	}

	if !exists {
		err := client.CreateCollection(ctx, &qdrantgo.CreateCollection{
			CollectionName: collectionName,
			VectorsConfig: qdrantgo.NewVectorsConfig(&qdrantgo.VectorParams{
				Size:     c.VectorSize,
				Distance: qdrantgo.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %q: %w", collectionName, err)
		}
	}

	logger.Info("connected to qdrant",
		zap.String("host", c.Host),
		zap.String("collection", collectionName),
	)

	return &Driver{
		client:         client,
		collectionName: collectionName,
		logger:         logger,
	}, nil
}

// filterFor converts a where map into a qdrant must-match filter.
func filterFor(where map[string]string) *qdrantgo.Filter {
	if len(where) == 0 {
		return nil
	}

	conditions := make([]*qdrantgo.Condition, 0, len(where))
	for k, v := range where {
		conditions = append(conditions, qdrantgo.NewMatch(k, v))
	}

	return &qdrantgo.Filter{Must: conditions}
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrantgo.PointStruct, len(docs))
	for i, doc := range docs {
		payload := map[string]any{payloadTextKey: doc.Text}
		for k, v := range doc.Metadata {
			payload[k] = v
		}

		points[i] = &qdrantgo.PointStruct{
			Id:      qdrantgo.NewID(doc.ID),
			Vectors: qdrantgo.NewVectors(doc.Embedding...),
			Payload: qdrantgo.NewValueMap(payload),
		}
	}

	_, err := d.client.Upsert(ctx, &qdrantgo.UpsertPoints{
		CollectionName: d.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", zap.Int("count", len(docs)))

	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, where map[string]string) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrantgo.QueryPoints{
		CollectionName: d.collectionName,
		Query:          qdrantgo.NewQuery(embedding...),
		Limit:          qdrantgo.PtrOf(uint64(topK)),
		Filter:         filterFor(where),
		WithPayload:    qdrantgo.NewWithPayload(true),
		WithVectors:    qdrantgo.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying qdrant: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		doc := docFromPayload(p.GetId().GetUuid(), p.GetPayload())
		doc.Embedding = p.GetVectors().GetVector().GetData()
		results = append(results, vector.QueryResult{
			Document: doc,
			Score:    p.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant", zap.Int("results", len(results)))

	return results, nil
}

func (d *Driver) List(ctx context.Context, where map[string]string) ([]vector.Document, error) {
	var (
		docs   []vector.Document
		offset *qdrantgo.PointId
	)

	for {
		points, err := d.client.Scroll(ctx, &qdrantgo.ScrollPoints{
			CollectionName: d.collectionName,
			Filter:         filterFor(where),
			Limit:          qdrantgo.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrantgo.NewWithPayload(true),
			WithVectors:    qdrantgo.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling qdrant: %w", err)
		}
		if len(points) == 0 {
			break
		}

		for _, p := range points {
			doc := docFromPayload(p.GetId().GetUuid(), p.GetPayload())
			doc.Embedding = p.GetVectors().GetVector().GetData()
			docs = append(docs, doc)
		}

		if len(points) < scrollPageSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	return docs, nil
}

func (d *Driver) Delete(ctx context.Context, where map[string]string) error {
	_, err := d.client.Delete(ctx, &qdrantgo.DeletePoints{
		CollectionName: d.collectionName,
		Points:         qdrantgo.NewPointsSelectorFilter(filterFor(where)),
	})
	if err != nil {
		return fmt.Errorf("deleting from qdrant: %w", err)
	}

	return nil
}

// Close closes the underlying gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

func docFromPayload(id string, payload map[string]*qdrantgo.Value) vector.Document {
	doc := vector.Document{ID: id, Metadata: make(map[string]string)}
	for k, v := range payload {
		if k == payloadTextKey {
			doc.Text = v.GetStringValue()
			continue
		}
		doc.Metadata[k] = v.GetStringValue()
	}
	return doc
}
