package turn_test

import (
	"context"
	"errors"
	"io"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/llm"
	"github.com/yashdodwani/anymind/pkg/llm/provider"
	"github.com/yashdodwani/anymind/pkg/memory"
	"github.com/yashdodwani/anymind/pkg/model"
	"github.com/yashdodwani/anymind/pkg/store/local"
	"github.com/yashdodwani/anymind/pkg/turn"
	"github.com/yashdodwani/anymind/pkg/worker"
)

// stubStreamer replays canned fragments and records the request it was
// opened with.
type stubStreamer struct {
	name      string
	fragments []string
	failAfter int // fragments produced before the stream errors; <0 disables
	failErr   error

	mu      sync.Mutex
	lastReq provider.Request
}

func (s *stubStreamer) Name() string { return s.name }

func (s *stubStreamer) Stream(_ context.Context, req provider.Request) (*provider.Stream, error) {
	s.mu.Lock()
	s.lastReq = req
	s.mu.Unlock()

	i := 0
	recv := func() (string, error) {
		if s.failAfter >= 0 && i >= s.failAfter {
			return "", s.failErr
		}
		if i >= len(s.fragments) {
			return "", io.EOF
		}
		frag := s.fragments[i]
		i++
		return frag, nil
	}
	return provider.NewStream(recv, nil), nil
}

func (s *stubStreamer) request() provider.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

// stubMemory serves canned records and captures Add calls.
type stubMemory struct {
	records  []memory.Record
	platform bool

	mu   sync.Mutex
	adds [][]llm.ChatMessage
}

func (m *stubMemory) Available() bool     { return true }
func (m *stubMemory) UsingPlatform() bool { return m.platform }

func (m *stubMemory) Search(context.Context, string, memory.Tag, string, int) []memory.Record {
	return m.records
}

func (m *stubMemory) Add(_ context.Context, _ string, _ memory.Tag, msgs []llm.ChatMessage) bool {
	if len(msgs) < 2 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds = append(m.adds, msgs)
	return true
}

func (m *stubMemory) GetAll(context.Context, string, memory.Tag) []memory.Record {
	return m.records
}

func (m *stubMemory) Delete(context.Context, string, memory.Tag) error { return nil }
func (m *stubMemory) Close() error                                     { return nil }

func (m *stubMemory) added() [][]llm.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]llm.ChatMessage, len(m.adds))
	copy(out, m.adds)
	return out
}

var _ = Describe("Turn Orchestrator", func() {
	var (
		ctx      context.Context
		db       *local.Driver
		streamer *stubStreamer
	)

	seed := func(agent *model.Agent, chat *model.Chat) {
		Expect(db.PutAgent(ctx, agent)).To(Succeed())
		Expect(db.PutChat(ctx, chat)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		db = local.NewDriver()
		streamer = &stubStreamer{
			name:      "stub",
			fragments: []string{"Hi", " there"},
			failAfter: -1,
		}
		provider.Register(streamer)

		seed(
			&model.Agent{ID: "agent-1", Name: "helper", Platform: "stub", Model: "test-model", UserWallet: "0xabc"},
			&model.Chat{ID: "chat-1", Name: "first", AgentID: "agent-1", UserWallet: "0xabc", MemorySize: model.MemoryMedium},
		)
	})

	newOrchestrator := func(c turn.Config) *turn.Orchestrator {
		if c.Store == nil {
			c.Store = db
		}
		c.Logger = zap.NewNop()
		return turn.New(c)
	}

	Describe("Run", func() {
		It("returns the assembled reply and persists both turn halves", func() {
			o := newOrchestrator(turn.Config{})

			result, err := o.Run(ctx, turn.Request{
				AgentID: "agent-1",
				ChatID:  "chat-1",
				Wallet:  "0xabc",
				Content: "Hello",
			}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Content).To(Equal("Hi there"))
			Expect(result.Model).To(Equal("test-model"))

			msgs, err := db.GetMessages(ctx, "chat-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Role).To(Equal(model.RoleUser))
			Expect(msgs[0].Content).To(Equal("Hello"))
			Expect(msgs[1].Role).To(Equal(model.RoleAssistant))
			Expect(msgs[1].Content).To(Equal("Hi there"))

			chat, err := db.GetChat(ctx, "chat-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(chat.MessageCount).To(Equal(2))
			Expect(chat.LastMessage).To(Equal("Hi there"))
		})

		It("relays fragments through emit in order", func() {
			o := newOrchestrator(turn.Config{})

			var got []string
			_, err := o.Run(ctx, turn.Request{
				AgentID: "agent-1",
				ChatID:  "chat-1",
				Content: "Hello",
			}, func(frag string) error {
				got = append(got, frag)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal([]string{"Hi", " there"}))
		})

		It("sends the agent's credentials and model to the provider", func() {
			o := newOrchestrator(turn.Config{})

			agent, err := db.GetAgent(ctx, "agent-1")
			Expect(err).NotTo(HaveOccurred())
			agent.APIKey = "sk-agent-key"
			Expect(db.PutAgent(ctx, agent)).To(Succeed())

			_, err = o.Run(ctx, turn.Request{AgentID: "agent-1", ChatID: "chat-1", Content: "Hello"}, nil)
			Expect(err).NotTo(HaveOccurred())

			req := streamer.request()
			Expect(req.Model).To(Equal("test-model"))
			Expect(req.APIKey).To(Equal("sk-agent-key"))
		})

		It("prefers the chat's bound agent over the path agent", func() {
			seed(
				&model.Agent{ID: "agent-2", Name: "other", Platform: "stub", Model: "other-model"},
				&model.Chat{ID: "chat-2", AgentID: "agent-2", MemorySize: model.MemorySmall},
			)
			o := newOrchestrator(turn.Config{})

			result, err := o.Run(ctx, turn.Request{
				AgentID: "agent-1",
				ChatID:  "chat-2",
				Content: "Hello",
			}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Model).To(Equal("other-model"))
		})

		It("returns ErrChatNotFound for unknown chats", func() {
			o := newOrchestrator(turn.Config{})

			_, err := o.Run(ctx, turn.Request{AgentID: "agent-1", ChatID: "nope", Content: "Hello"}, nil)
			Expect(err).To(MatchError(turn.ErrChatNotFound))
		})

		It("returns ErrChatNotFound when the wallet does not own the chat", func() {
			o := newOrchestrator(turn.Config{})

			_, err := o.Run(ctx, turn.Request{
				AgentID: "agent-1",
				ChatID:  "chat-1",
				Wallet:  "0xother",
				Content: "Hello",
			}, nil)
			Expect(err).To(MatchError(turn.ErrChatNotFound))
		})

		It("returns ErrAgentNotFound when the chat's agent is missing", func() {
			Expect(db.PutChat(ctx, &model.Chat{ID: "chat-3", AgentID: "gone"})).To(Succeed())
			o := newOrchestrator(turn.Config{})

			_, err := o.Run(ctx, turn.Request{AgentID: "agent-1", ChatID: "chat-3", Content: "Hello"}, nil)
			Expect(err).To(MatchError(turn.ErrAgentNotFound))
		})

		It("keeps the user message when the provider stream fails", func() {
			flaky := &stubStreamer{
				name:      "flaky",
				fragments: []string{"partial"},
				failAfter: 1,
				failErr:   errors.New("upstream reset"),
			}
			provider.Register(flaky)
			seed(
				&model.Agent{ID: "agent-f", Platform: "flaky"},
				&model.Chat{ID: "chat-f", AgentID: "agent-f"},
			)
			o := newOrchestrator(turn.Config{})

			_, err := o.Run(ctx, turn.Request{AgentID: "agent-f", ChatID: "chat-f", Content: "Hello"}, nil)
			Expect(err).To(HaveOccurred())

			msgs, err := db.GetMessages(ctx, "chat-f")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
			Expect(msgs[0].Role).To(Equal(model.RoleUser))
		})

		It("stops producing and skips persistence when the caller disconnects", func() {
			o := newOrchestrator(turn.Config{})

			_, err := o.Run(ctx, turn.Request{
				AgentID: "agent-1",
				ChatID:  "chat-1",
				Content: "Hello",
			}, func(string) error {
				return errors.New("client gone")
			})
			Expect(err).To(HaveOccurred())

			msgs, err := db.GetMessages(ctx, "chat-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
		})

		It("treats an empty reply as success without persisting it", func() {
			empty := &stubStreamer{name: "empty", failAfter: -1}
			provider.Register(empty)
			seed(
				&model.Agent{ID: "agent-e", Platform: "empty"},
				&model.Chat{ID: "chat-e", AgentID: "agent-e"},
			)
			o := newOrchestrator(turn.Config{})

			result, err := o.Run(ctx, turn.Request{AgentID: "agent-e", ChatID: "chat-e", Content: "Hello"}, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Content).To(BeEmpty())

			msgs, err := db.GetMessages(ctx, "chat-e")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
		})

		It("injects recalled memories into the system prompt", func() {
			mem := &stubMemory{records: []memory.Record{
				{Text: "User likes Go"},
				{Text: "User lives in Pune"},
			}}
			o := newOrchestrator(turn.Config{Memory: mem})

			_, err := o.Run(ctx, turn.Request{AgentID: "agent-1", ChatID: "chat-1", Content: "Hello"}, nil)
			Expect(err).NotTo(HaveOccurred())

			req := streamer.request()
			Expect(req.Messages).NotTo(BeEmpty())
			Expect(req.Messages[0].Role).To(Equal(llm.RoleSystem))
			Expect(req.Messages[0].Content).To(ContainSubstring("Relevant context from memory:"))
			Expect(req.Messages[0].Content).To(ContainSubstring("- User likes Go"))
			Expect(req.Messages[0].Content).To(ContainSubstring("- User lives in Pune"))
		})

		It("hands the finished exchange to the memory pool", func() {
			mem := &stubMemory{}
			pool, err := worker.NewPool(&worker.Config{Memory: mem, Logger: zap.NewNop()})
			Expect(err).NotTo(HaveOccurred())

			o := newOrchestrator(turn.Config{Memory: mem, Pool: pool})

			_, err = o.Run(ctx, turn.Request{AgentID: "agent-1", ChatID: "chat-1", Content: "Hello"}, nil)
			Expect(err).NotTo(HaveOccurred())
			pool.Close()

			added := mem.added()
			Expect(added).To(HaveLen(1))
			last := added[0][len(added[0])-1]
			Expect(last.Role).To(Equal(llm.RoleAssistant))
			Expect(last.Content).To(Equal("Hi there"))
		})
	})

	Describe("Memories", func() {
		It("reports the chat's records and the adapter mode", func() {
			mem := &stubMemory{
				records:  []memory.Record{{Text: "User likes Go"}},
				platform: true,
			}
			o := newOrchestrator(turn.Config{Memory: mem})

			report, err := o.Memories(ctx, "agent-1", "chat-1", "0xabc")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.ChatID).To(Equal("chat-1"))
			Expect(report.AgentID).To(Equal("agent-1"))
			Expect(report.MemoryCount).To(Equal(1))
			Expect(report.Memories[0].Text).To(Equal("User likes Go"))
			Expect(report.UsingPlatform).To(BeTrue())
		})

		It("returns an empty list when no adapter is wired", func() {
			o := newOrchestrator(turn.Config{})

			report, err := o.Memories(ctx, "agent-1", "chat-1", "0xabc")
			Expect(err).NotTo(HaveOccurred())
			Expect(report.MemoryCount).To(BeZero())
			Expect(report.Memories).NotTo(BeNil())
			Expect(report.UsingPlatform).To(BeFalse())
		})

		It("rejects chats owned by another wallet", func() {
			o := newOrchestrator(turn.Config{})

			_, err := o.Memories(ctx, "agent-1", "chat-1", "0xother")
			Expect(err).To(MatchError(turn.ErrChatNotFound))
		})
	})
})
