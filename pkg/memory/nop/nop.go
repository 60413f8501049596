// Package nop provides the disabled memory adapter used when neither the
// platform client nor the local engine is configured. Turns proceed without
// memory context.
package nop

import (
	"context"

	"github.com/yashdodwani/anymind/pkg/llm"
	"github.com/yashdodwani/anymind/pkg/memory"
)

// Adapter implements memory.Adapter with no backing store.
type Adapter struct{}

// NewAdapter creates a disabled memory adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

func (*Adapter) Available() bool     { return false }
func (*Adapter) UsingPlatform() bool { return false }

func (*Adapter) Search(context.Context, string, memory.Tag, string, int) []memory.Record {
	return nil
}

func (*Adapter) Add(context.Context, string, memory.Tag, []llm.ChatMessage) bool {
	return false
}

func (*Adapter) GetAll(context.Context, string, memory.Tag) []memory.Record {
	return nil
}

func (*Adapter) Delete(context.Context, string, memory.Tag) error {
	return nil
}

func (*Adapter) Close() error { return nil }

var _ memory.Adapter = (*Adapter)(nil)
