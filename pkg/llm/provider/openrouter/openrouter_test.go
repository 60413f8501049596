package openrouter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yashdodwani/anymind/pkg/llm"
	"github.com/yashdodwani/anymind/pkg/llm/provider"
	"github.com/yashdodwani/anymind/pkg/llm/provider/openrouter"
)

func TestOpenRouter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "OpenRouter Provider Suite")
}

// chunkFrame renders one OpenAI-style streaming frame.
func chunkFrame(content string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]string{"content": content}},
		},
	})
	return fmt.Sprintf("data: %s\n\n", payload)
}

func collect(stream *provider.Stream) (string, error) {
	var full string
	for {
		frag, ok := stream.Next()
		if !ok {
			return full, stream.Err()
		}
		full += frag
	}
}

var _ = Describe("Client", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		received struct {
			auth    string
			body    map[string]any
			referer string
		}
		frames []string
	)

	BeforeEach(func() {
		ctx = context.Background()
		frames = nil

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			received.auth = r.Header.Get("Authorization")
			received.referer = r.Header.Get("HTTP-Referer")
			Expect(json.NewDecoder(r.Body).Decode(&received.body)).To(Succeed())

			w.Header().Set("Content-Type", "text/event-stream")
			for _, f := range frames {
				fmt.Fprint(w, f)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func() *openrouter.Client {
		return openrouter.New(openrouter.Config{
			BaseURL: server.URL,
			APIKey:  "sk-default",
			Referer: "https://anymind.example",
			Title:   "anymind",
		}, nil)
	}

	It("concatenates delta fragments in order", func() {
		frames = []string{chunkFrame("Hi"), chunkFrame(" there")}

		stream, err := newClient().Stream(ctx, provider.Request{
			Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: "Hello"}},
		})
		Expect(err).NotTo(HaveOccurred())

		full, err := collect(stream)
		Expect(err).NotTo(HaveOccurred())
		Expect(full).To(Equal("Hi there"))
	})

	It("skips frames without a content delta", func() {
		empty, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"role": "assistant"}}},
		})
		frames = []string{fmt.Sprintf("data: %s\n\n", empty), chunkFrame("ok")}

		stream, err := newClient().Stream(ctx, provider.Request{})
		Expect(err).NotTo(HaveOccurred())

		full, err := collect(stream)
		Expect(err).NotTo(HaveOccurred())
		Expect(full).To(Equal("ok"))
	})

	It("prefers the request credentials and model over the defaults", func() {
		stream, err := newClient().Stream(ctx, provider.Request{
			Model:  "mistralai/mistral-7b",
			APIKey: "sk-agent",
		})
		Expect(err).NotTo(HaveOccurred())
		collect(stream)

		Expect(received.auth).To(Equal("Bearer sk-agent"))
		Expect(received.body["model"]).To(Equal("mistralai/mistral-7b"))
		Expect(received.body["stream"]).To(BeTrue())
	})

	It("falls back to the configured key, default model, and attribution headers", func() {
		stream, err := newClient().Stream(ctx, provider.Request{})
		Expect(err).NotTo(HaveOccurred())
		collect(stream)

		Expect(received.auth).To(Equal("Bearer sk-default"))
		Expect(received.body["model"]).To(Equal(openrouter.DefaultModel))
		Expect(received.referer).To(Equal("https://anymind.example"))
	})

	It("returns an error for non-200 responses", func() {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
		}))
		defer failing.Close()

		client := openrouter.New(openrouter.Config{BaseURL: failing.URL}, nil)
		_, err := client.Stream(ctx, provider.Request{})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("status 401"))
	})

	It("fails the stream on malformed chunk JSON", func() {
		frames = []string{"data: {not json}\n\n"}

		stream, err := newClient().Stream(ctx, provider.Request{})
		Expect(err).NotTo(HaveOccurred())

		_, err = collect(stream)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("decoding completion chunk"))
	})
})

var _ = Describe("Registry", func() {
	It("resolves decorated platform strings to the registered provider", func() {
		client := openrouter.New(openrouter.Config{}, nil)
		provider.Register(client)

		got, err := provider.For("OpenRouter (hosted)")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Name()).To(Equal("openrouter"))
	})

	It("falls back to the default provider for unknown platforms", func() {
		client := openrouter.New(openrouter.Config{}, nil)
		provider.Register(client)

		got, err := provider.For("anthropic")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Name()).To(Equal("openrouter"))
	})
})
