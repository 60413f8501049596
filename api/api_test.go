package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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
)

const testWallet = "0xabc"

// cannedStreamer replays fixed fragments for every completion request.
type cannedStreamer struct {
	fragments []string
}

func (s *cannedStreamer) Name() string { return "stub" }

func (s *cannedStreamer) Stream(context.Context, provider.Request) (*provider.Stream, error) {
	i := 0
	recv := func() (string, error) {
		if i >= len(s.fragments) {
			return "", io.EOF
		}
		frag := s.fragments[i]
		i++
		return frag, nil
	}
	return provider.NewStream(recv, nil), nil
}

// trackingMemory records Delete calls so deletion cascades can be asserted.
type trackingMemory struct {
	mu      sync.Mutex
	deleted []memory.Tag
}

func (m *trackingMemory) Available() bool     { return true }
func (m *trackingMemory) UsingPlatform() bool { return false }

func (m *trackingMemory) Search(context.Context, string, memory.Tag, string, int) []memory.Record {
	return nil
}

func (m *trackingMemory) Add(context.Context, string, memory.Tag, []llm.ChatMessage) bool {
	return false
}

func (m *trackingMemory) GetAll(context.Context, string, memory.Tag) []memory.Record {
	return []memory.Record{{Text: "User likes Go"}}
}

func (m *trackingMemory) Delete(_ context.Context, _ string, tag memory.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, tag)
	return nil
}

func (m *trackingMemory) Close() error { return nil }

func (m *trackingMemory) deletedTags() []memory.Tag {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.Tag, len(m.deleted))
	copy(out, m.deleted)
	return out
}

var _ = Describe("API Server", func() {
	var (
		server *Server
		db     *local.Driver
		mem    *trackingMemory
		ctx    context.Context
	)

	request := func(method, path string, body any, withWallet bool) *http.Request {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if withWallet {
			req.Header.Set(walletHeader, testWallet)
		}
		return req
	}

	decode := func(resp *http.Response, out any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		provider.Register(&cannedStreamer{fragments: []string{"Hi", " there"}})

		db = local.NewDriver()
		mem = &trackingMemory{}

		orchestrator := turn.New(turn.Config{
			Store:  db,
			Memory: mem,
			Logger: zap.NewNop(),
		})
		server = NewServer(Config{ListenAddr: ":0"}, db, orchestrator, zap.NewNop())

		Expect(db.PutAgent(ctx, &model.Agent{
			ID:         "agent-1",
			Name:       "helper",
			Platform:   "stub",
			Model:      "test-model",
			UserWallet: testWallet,
			APIKey:     "sk-secret",
		})).To(Succeed())
		Expect(db.PutChat(ctx, &model.Chat{
			ID:         "chat-1",
			Name:       "first",
			AgentID:    "agent-1",
			UserWallet: testWallet,
			MemorySize: model.MemoryMedium,
		})).To(Succeed())
	})

	Describe("GET /ping", func() {
		It("responds with pong", func() {
			resp, err := server.app.Test(request(http.MethodGet, "/ping", nil, false))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("agents", func() {
		It("rejects creation without a wallet", func() {
			resp, err := server.app.Test(request(http.MethodPost, "/api/v1/agents/", CreateAgentRequest{
				Name: "x", Platform: "stub",
			}, false))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

			var body ErrorResponse
			decode(resp, &body)
			Expect(body.Error).To(Equal("Wallet address required"))
		})

		It("creates an agent without leaking the API key", func() {
			resp, err := server.app.Test(request(http.MethodPost, "/api/v1/agents/", CreateAgentRequest{
				Name:        "writer",
				DisplayName: "Writer",
				Platform:    "stub",
				APIKey:      "sk-new-key",
			}, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(string(raw)).NotTo(ContainSubstring("sk-new-key"))

			var agent model.Agent
			Expect(json.Unmarshal(raw, &agent)).To(Succeed())
			Expect(agent.ID).NotTo(BeEmpty())
			Expect(agent.APIKeyConfigured).To(BeTrue())
		})

		It("lists only the caller's agents", func() {
			Expect(db.PutAgent(ctx, &model.Agent{ID: "agent-2", UserWallet: "0xother"})).To(Succeed())

			resp, err := server.app.Test(request(http.MethodGet, "/api/v1/agents/", nil, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var agents []model.Agent
			decode(resp, &agents)
			Expect(agents).To(HaveLen(1))
			Expect(agents[0].ID).To(Equal("agent-1"))
		})

		It("updates only the display name and model", func() {
			display := "Renamed"
			resp, err := server.app.Test(request(http.MethodPut, "/api/v1/agents/agent-1", UpdateAgentRequest{
				DisplayName: &display,
			}, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			agent, err := db.GetAgent(ctx, "agent-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(agent.DisplayName).To(Equal("Renamed"))
			Expect(agent.Platform).To(Equal("stub"))
		})

		It("deletes an agent and cascades to its chats", func() {
			resp, err := server.app.Test(request(http.MethodDelete, "/api/v1/agents/agent-1", nil, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body StatusResponse
			decode(resp, &body)
			Expect(body.Success).To(BeTrue())
			Expect(body.Message).To(Equal("Agent deleted successfully"))

			_, err = db.GetAgent(ctx, "agent-1")
			Expect(err).To(HaveOccurred())
			_, err = db.GetChat(ctx, "chat-1")
			Expect(err).To(HaveOccurred())
			Expect(mem.deletedTags()).To(HaveLen(1))
		})
	})

	Describe("chats", func() {
		It("creates a chat with the small memory default", func() {
			resp, err := server.app.Test(request(http.MethodPost, "/api/v1/agents/agent-1/chats", CreateChatRequest{
				Name: "second",
			}, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var chat model.Chat
			decode(resp, &chat)
			Expect(chat.MemorySize).To(Equal(model.MemorySmall))
			Expect(chat.AgentID).To(Equal("agent-1"))
		})

		It("rejects chat creation for unknown agents", func() {
			resp, err := server.app.Test(request(http.MethodPost, "/api/v1/agents/ghost/chats", CreateChatRequest{
				Name: "second",
			}, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns a chat with its messages attached", func() {
			Expect(db.AppendMessage(ctx, "chat-1", &model.Message{
				ID: "m1", Role: model.RoleUser, Content: "Hello",
			})).To(Succeed())

			resp, err := server.app.Test(request(http.MethodGet, "/api/v1/agents/agent-1/chats/chat-1", nil, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var chat ChatResponse
			decode(resp, &chat)
			Expect(chat.ID).To(Equal("chat-1"))
			Expect(chat.Messages).To(HaveLen(1))
			Expect(chat.Messages[0].Content).To(Equal("Hello"))
		})

		It("hides chats owned by another wallet", func() {
			req := request(http.MethodGet, "/api/v1/agents/agent-1/chats/chat-1", nil, false)
			req.Header.Set(walletHeader, "0xother")

			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("updates chat metadata partially", func() {
			enabled := true
			resp, err := server.app.Test(request(http.MethodPut, "/api/v1/agents/agent-1/chats/chat-1", UpdateChatRequest{
				WebSearchEnabled: &enabled,
			}, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			chat, err := db.GetChat(ctx, "chat-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(chat.WebSearchEnabled).To(BeTrue())
			Expect(chat.Name).To(Equal("first"))
		})

		It("deletes a chat along with its memories", func() {
			resp, err := server.app.Test(request(http.MethodDelete, "/api/v1/agents/agent-1/chats/chat-1", nil, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body StatusResponse
			decode(resp, &body)
			Expect(body.Message).To(Equal("Chat deleted"))

			_, err = db.GetChat(ctx, "chat-1")
			Expect(err).To(HaveOccurred())

			tags := mem.deletedTags()
			Expect(tags).To(HaveLen(1))
			Expect(tags[0].ChatID).To(Equal("chat-1"))
		})
	})

	Describe("messages", func() {
		It("runs a turn and returns the full reply", func() {
			resp, err := server.app.Test(request(http.MethodPost, "/api/v1/agents/agent-1/chats/chat-1/messages", SendMessageRequest{
				Role: model.RoleUser, Content: "Hello",
			}, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body LLMResponse
			decode(resp, &body)
			Expect(body.Content).To(Equal("Hi there"))
			Expect(body.Model).To(Equal("test-model"))

			msgs, err := db.GetMessages(ctx, "chat-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
		})

		It("returns 404 for a turn against an unknown chat", func() {
			resp, err := server.app.Test(request(http.MethodPost, "/api/v1/agents/agent-1/chats/ghost/messages", SendMessageRequest{
				Role: model.RoleUser, Content: "Hello",
			}, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			var body ErrorResponse
			decode(resp, &body)
			Expect(body.Error).To(Equal("Chat not found"))
		})

		It("rejects an empty message body", func() {
			resp, err := server.app.Test(request(http.MethodPost, "/api/v1/agents/agent-1/chats/chat-1/messages", SendMessageRequest{
				Role: model.RoleUser,
			}, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("streams fragments followed by a done frame", func() {
			req := request(http.MethodPost, "/api/v1/agents/agent-1/chats/chat-1/messages/stream", SendMessageRequest{
				Role: model.RoleUser, Content: "Hello",
			}, true)

			resp, err := server.app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			body := string(raw)
			Expect(body).To(ContainSubstring(`data: {"content":"Hi"}`))
			Expect(body).To(ContainSubstring(`data: {"content":" there"}`))
			Expect(body).To(ContainSubstring(`data: {"done":true}`))
		})

		It("returns a plain 404 before streaming for unknown chats", func() {
			resp, err := server.app.Test(request(http.MethodPost, "/api/v1/agents/agent-1/chats/ghost/messages/stream", SendMessageRequest{
				Role: model.RoleUser, Content: "Hello",
			}, true), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("returns ordered history", func() {
			Expect(db.AppendMessage(ctx, "chat-1", &model.Message{ID: "m1", Role: model.RoleUser, Content: "one"})).To(Succeed())
			Expect(db.AppendMessage(ctx, "chat-1", &model.Message{ID: "m2", Role: model.RoleAssistant, Content: "two"})).To(Succeed())

			resp, err := server.app.Test(request(http.MethodGet, "/api/v1/agents/agent-1/chats/chat-1/messages", nil, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var msgs []model.Message
			decode(resp, &msgs)
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Content).To(Equal("one"))
			Expect(msgs[1].Content).To(Equal("two"))
		})
	})

	Describe("memories", func() {
		It("requires a wallet", func() {
			resp, err := server.app.Test(request(http.MethodGet, "/api/v1/agents/agent-1/chats/chat-1/memories", nil, false))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("returns the chat's memory report", func() {
			resp, err := server.app.Test(request(http.MethodGet, "/api/v1/agents/agent-1/chats/chat-1/memories", nil, true))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var report turn.MemoriesReport
			decode(resp, &report)
			Expect(report.ChatID).To(Equal("chat-1"))
			Expect(report.AgentID).To(Equal("agent-1"))
			Expect(report.MemoryCount).To(Equal(1))
			Expect(report.Memories[0].Text).To(Equal("User likes Go"))
		})
	})
})
