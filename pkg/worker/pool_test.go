package worker

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/llm"
	"github.com/yashdodwani/anymind/pkg/memory"
)

// recordingAdapter captures every Add call so tests can assert after Close
// has drained the pool.
type recordingAdapter struct {
	mu   sync.Mutex
	adds []Job
}

func (r *recordingAdapter) Available() bool     { return true }
func (r *recordingAdapter) UsingPlatform() bool { return false }

func (r *recordingAdapter) Add(_ context.Context, agentID string, tag memory.Tag, msgs []llm.ChatMessage) bool {
	if len(msgs) < 2 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds = append(r.adds, Job{AgentID: agentID, Tag: tag, Messages: msgs})
	return true
}

func (r *recordingAdapter) Search(context.Context, string, memory.Tag, string, int) []memory.Record {
	return nil
}
func (r *recordingAdapter) GetAll(context.Context, string, memory.Tag) []memory.Record { return nil }
func (r *recordingAdapter) Delete(context.Context, string, memory.Tag) error          { return nil }
func (r *recordingAdapter) Close() error                                              { return nil }

func (r *recordingAdapter) stored() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, len(r.adds))
	copy(out, r.adds)
	return out
}

func exchange(user, assistant string) []llm.ChatMessage {
	return []llm.ChatMessage{
		{Role: llm.RoleUser, Content: user},
		{Role: llm.RoleAssistant, Content: assistant},
	}
}

var _ = Describe("Worker Pool", func() {
	var (
		wp      *Pool
		adapter *recordingAdapter
	)

	BeforeEach(func() {
		adapter = &recordingAdapter{}

		var err error
		wp, err = NewPool(&Config{
			Memory: adapter,
			Logger: zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Enqueue", func() {
		It("returns true when the queue has capacity", func() {
			ok := wp.Enqueue(Job{
				AgentID:  "agent-1",
				Tag:      memory.Tag{ChatID: "chat-1", AgentID: "agent-1"},
				Messages: exchange("hello", "hi"),
			})
			Expect(ok).To(BeTrue())
			wp.Close()
		})

		It("drops jobs when the queue is full", func() {
			full, err := NewPool(&Config{
				Memory:     adapter,
				NumWorkers: 1,
				QueueSize:  1,
				Logger:     zap.NewNop(),
			})
			Expect(err).NotTo(HaveOccurred())

			// Saturate the queue; with one worker busy at most one extra
			// job fits, so eventually Enqueue reports a drop.
			dropped := false
			for range 64 {
				if !full.Enqueue(Job{
					AgentID:  "agent-1",
					Tag:      memory.Tag{ChatID: "chat-1", AgentID: "agent-1"},
					Messages: exchange("hello", "hi"),
				}) {
					dropped = true
					break
				}
			}
			Expect(dropped).To(BeTrue())
			full.Close()
		})
	})

	Describe("Close", func() {
		It("drains in-flight jobs before returning", func() {
			for range 10 {
				wp.Enqueue(Job{
					AgentID:  "agent-1",
					Tag:      memory.Tag{ChatID: "chat-1", AgentID: "agent-1"},
					Messages: exchange("question", "answer"),
				})
			}

			wp.Close()
			Expect(adapter.stored()).To(HaveLen(10))
		})
	})

	Describe("processJob", func() {
		It("passes the tag through to the adapter unmodified", func() {
			tag := memory.Tag{ChatID: "chat-9", AgentID: "agent-1", CapsuleID: "cap-1"}
			wp.Enqueue(Job{
				AgentID:  "agent-1",
				Tag:      tag,
				Messages: exchange("question", "answer"),
			})
			wp.Close()

			stored := adapter.stored()
			Expect(stored).To(HaveLen(1))
			Expect(stored[0].Tag).To(Equal(tag))
		})

		It("swallows short exchanges without storing", func() {
			wp.Enqueue(Job{
				AgentID: "agent-1",
				Tag:     memory.Tag{ChatID: "chat-1", AgentID: "agent-1"},
				Messages: []llm.ChatMessage{
					{Role: llm.RoleUser, Content: "hello"},
				},
			})
			wp.Close()

			Expect(adapter.stored()).To(BeEmpty())
		})
	})
})
