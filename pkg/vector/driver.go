// Package vector provides interfaces and implementations for vector storage
// and similarity search over memory records.
package vector

import "context"

// Document represents a stored item with its embedding and metadata.
type Document struct {
	// ID is a unique identifier for the document.
	ID string

	// Text is the raw content the embedding was computed from.
	Text string

	// Metadata holds scoping keys (chat_id, agent_id, capsule_id) used for
	// filtered queries.
	Metadata map[string]string

	// Embedding is the vector representation of the document content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings. A document with an
	// existing ID replaces the stored one.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding.
	// A non-empty where map restricts results to documents whose metadata
	// matches every entry.
	Query(ctx context.Context, embedding []float32, topK int, where map[string]string) ([]QueryResult, error)

	// List returns every document whose metadata matches the where map,
	// without similarity ranking.
	List(ctx context.Context, where map[string]string) ([]Document, error)

	// Delete removes every document whose metadata matches the where map.
	Delete(ctx context.Context, where map[string]string) error

	// Close releases any resources held by the driver.
	Close() error
}

// Matches reports whether a document's metadata satisfies every entry of the
// where map. An empty where matches everything.
func Matches(meta, where map[string]string) bool {
	for k, v := range where {
		if meta[k] != v {
			return false
		}
	}
	return true
}
