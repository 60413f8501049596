// Package local implements the memory adapter over an embedding pipeline:
// conversation turns are embedded and stored in a vector.Driver, and recall
// is similarity search filtered by the scoping tag.
package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/embeddings"
	"github.com/yashdodwani/anymind/pkg/llm"
	"github.com/yashdodwani/anymind/pkg/memory"
	"github.com/yashdodwani/anymind/pkg/vector"
)

// Adapter implements memory.Adapter using a vector store and an embedder.
type Adapter struct {
	vectors  vector.Driver
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// NewAdapter creates a local memory engine over the given vector driver and
// embedder.
func NewAdapter(vectors vector.Driver, embedder embeddings.Embedder, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		vectors:  vectors,
		embedder: embedder,
		logger:   logger,
	}
}

func (a *Adapter) Available() bool {
	return a.vectors != nil && a.embedder != nil
}

func (a *Adapter) UsingPlatform() bool { return false }

func (a *Adapter) Search(ctx context.Context, _ string, tag memory.Tag, query string, limit int) []memory.Record {
	if !a.Available() {
		return nil
	}

	embedding, err := a.embedder.Embed(ctx, query)
	if err != nil {
		a.logger.Warn("memory search embedding failed", zap.String("chat_id", tag.ChatID), zap.Error(err))
		return nil
	}

	results, err := a.vectors.Query(ctx, embedding, limit, tag.Metadata())
	if err != nil {
		a.logger.Warn("memory search failed", zap.String("chat_id", tag.ChatID), zap.Error(err))
		return nil
	}

	records := make([]memory.Record, 0, len(results))
	for _, r := range results {
		records = append(records, memory.Record{Text: r.Text, Metadata: r.Metadata})
	}

	a.logger.Debug("retrieved memories",
		zap.String("chat_id", tag.ChatID),
		zap.Int("count", len(records)),
	)

	return records
}

func (a *Adapter) Add(ctx context.Context, _ string, tag memory.Tag, msgs []llm.ChatMessage) bool {
	if !a.Available() {
		return false
	}
	if len(msgs) < 2 {
		return false
	}

	text := transcript(msgs)
	embedding, err := a.embedder.Embed(ctx, text)
	if err != nil {
		a.logger.Warn("memory add embedding failed", zap.String("chat_id", tag.ChatID), zap.Error(err))
		return false
	}

	doc := vector.Document{
		ID:        uuid.New().String(),
		Text:      text,
		Metadata:  tag.Metadata(),
		Embedding: embedding,
	}

	if err := a.vectors.Add(ctx, []vector.Document{doc}); err != nil {
		a.logger.Warn("memory add failed", zap.String("chat_id", tag.ChatID), zap.Error(err))
		return false
	}

	a.logger.Debug("stored memory", zap.String("chat_id", tag.ChatID))

	return true
}

func (a *Adapter) GetAll(ctx context.Context, _ string, tag memory.Tag) []memory.Record {
	if !a.Available() {
		return nil
	}

	docs, err := a.vectors.List(ctx, tag.Metadata())
	if err != nil {
		a.logger.Warn("memory listing failed", zap.String("chat_id", tag.ChatID), zap.Error(err))
		return nil
	}

	records := make([]memory.Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, memory.Record{Text: d.Text, Metadata: d.Metadata})
	}

	return records
}

func (a *Adapter) Delete(ctx context.Context, _ string, tag memory.Tag) error {
	if !a.Available() {
		return nil
	}

	if err := a.vectors.Delete(ctx, tag.Metadata()); err != nil {
		return fmt.Errorf("deleting memories for chat %s: %w", tag.ChatID, err)
	}

	return nil
}

func (a *Adapter) Close() error {
	var firstErr error
	if a.embedder != nil {
		firstErr = a.embedder.Close()
	}
	if a.vectors != nil {
		if err := a.vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// transcript flattens a message exchange into one fact document.
func transcript(msgs []llm.ChatMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

var _ memory.Adapter = (*Adapter)(nil)
