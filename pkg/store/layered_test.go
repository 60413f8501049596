package store_test

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/yashdodwani/anymind/pkg/model"
	"github.com/yashdodwani/anymind/pkg/store"
	"github.com/yashdodwani/anymind/pkg/store/cache"
	"github.com/yashdodwani/anymind/pkg/store/local"
)

func testAgent(id, wallet string) *model.Agent {
	return &model.Agent{
		ID:               id,
		Name:             "helper",
		DisplayName:      "Helper",
		Platform:         "openrouter",
		Model:            "openai/gpt-4-turbo",
		UserWallet:       wallet,
		APIKey:           "sk-secret",
		APIKeyConfigured: true,
	}
}

func testChat(id, agentID, wallet string) *model.Chat {
	return &model.Chat{
		ID:         id,
		Name:       "test chat",
		AgentID:    agentID,
		UserWallet: wallet,
		MemorySize: model.MemoryMedium,
		CreatedAt:  time.Now().UTC(),
	}
}

var _ = Describe("Layered", func() {
	var (
		ctx      context.Context
		cacheDrv *cache.Driver
		durable  *local.Driver
		localDrv *local.Driver
		layered  *store.Layered
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		cacheDrv, err = cache.NewDriver(cache.Config{})
		Expect(err).NotTo(HaveOccurred())

		durable = local.NewDriver()
		localDrv = local.NewDriver()
		layered = store.NewLayered(cacheDrv, durable, localDrv, nil)
	})

	AfterEach(func() {
		layered.Close()
	})

	Describe("write-through", func() {
		It("writes chats to every layer", func() {
			chat := testChat("c1", "a1", "0xabc")
			Expect(layered.PutChat(ctx, chat)).To(Succeed())

			for _, d := range []store.Driver{cacheDrv, durable, localDrv} {
				got, err := d.GetChat(ctx, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Name).To(Equal("test chat"))
			}
		})

		It("writes messages to every layer", func() {
			msg := &model.Message{ID: "m1", Role: model.RoleUser, Content: "hi", CreatedAt: time.Now()}
			Expect(layered.AppendMessage(ctx, "c1", msg)).To(Succeed())

			for _, d := range []store.Driver{cacheDrv, durable, localDrv} {
				msgs, err := d.GetMessages(ctx, "c1")
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(HaveLen(1))
			}
		})
	})

	Describe("reads", func() {
		It("serves chats from the cache when present", func() {
			chat := testChat("c1", "a1", "0xabc")
			Expect(cacheDrv.PutChat(ctx, chat)).To(Succeed())

			got, err := layered.GetChat(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("c1"))
		})

		It("falls back to the durable layer and backfills the cache", func() {
			chat := testChat("c1", "a1", "0xabc")
			Expect(durable.PutChat(ctx, chat)).To(Succeed())

			got, err := layered.GetChat(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("c1"))

			cached, err := cacheDrv.GetChat(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(cached.ID).To(Equal("c1"))
		})

		It("falls back to the local layer when cache and durable miss", func() {
			chat := testChat("c1", "a1", "0xabc")
			Expect(localDrv.PutChat(ctx, chat)).To(Succeed())

			got, err := layered.GetChat(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("c1"))
		})

		It("returns ErrNotFound when the chat is nowhere", func() {
			_, err := layered.GetChat(ctx, "missing")
			Expect(store.IsNotFound(err)).To(BeTrue())
		})

		It("backfills the cache message list from the durable layer", func() {
			msg := &model.Message{ID: "m1", Role: model.RoleUser, Content: "hi", CreatedAt: time.Now()}
			Expect(durable.AppendMessage(ctx, "c1", msg)).To(Succeed())

			msgs, err := layered.GetMessages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))

			cached, err := cacheDrv.GetMessages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(cached).To(HaveLen(1))
		})
	})

	Describe("agents", func() {
		It("round-trips the API key through local and durable layers", func() {
			Expect(layered.PutAgent(ctx, testAgent("a1", "0xabc"))).To(Succeed())

			got, err := layered.GetAgent(ctx, "a1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.APIKey).To(Equal("sk-secret"))
		})

		It("never serializes the API key", func() {
			payload, err := json.Marshal(testAgent("a1", "0xabc"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(payload)).NotTo(ContainSubstring("sk-secret"))
			Expect(string(payload)).To(ContainSubstring(`"api_key_configured":true`))
		})

		It("lists agents scoped to a wallet", func() {
			Expect(layered.PutAgent(ctx, testAgent("a1", "0xabc"))).To(Succeed())
			Expect(layered.PutAgent(ctx, testAgent("a2", "0xdef"))).To(Succeed())

			agents, err := layered.ListAgents(ctx, "0xabc")
			Expect(err).NotTo(HaveOccurred())
			Expect(agents).To(HaveLen(1))
			Expect(agents[0].ID).To(Equal("a1"))
		})
	})

	Describe("degraded operation", func() {
		It("works with only the local layer", func() {
			degraded := store.NewLayered(nil, nil, local.NewDriver(), nil)
			defer degraded.Close()

			chat := testChat("c1", "a1", "0xabc")
			Expect(degraded.PutChat(ctx, chat)).To(Succeed())

			got, err := degraded.GetChat(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("c1"))

			msg := &model.Message{ID: "m1", Role: model.RoleUser, Content: "hi", CreatedAt: time.Now()}
			Expect(degraded.AppendMessage(ctx, "c1", msg)).To(Succeed())

			msgs, err := degraded.GetMessages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
		})
	})

	Describe("deletion", func() {
		It("removes the chat and its messages from every layer", func() {
			chat := testChat("c1", "a1", "0xabc")
			Expect(layered.PutChat(ctx, chat)).To(Succeed())

			msg := &model.Message{ID: "m1", Role: model.RoleUser, Content: "hi", CreatedAt: time.Now()}
			Expect(layered.AppendMessage(ctx, "c1", msg)).To(Succeed())

			Expect(layered.DeleteChat(ctx, "c1", "a1", "0xabc")).To(Succeed())

			_, err := layered.GetChat(ctx, "c1")
			Expect(store.IsNotFound(err)).To(BeTrue())

			ids, err := layered.ListChatIDs(ctx, "a1", "0xabc")
			if err != nil {
				Expect(store.IsNotFound(err)).To(BeTrue())
			} else {
				Expect(ids).To(BeEmpty())
			}
		})
	})

	Describe("chat listing", func() {
		It("returns ids for all chats bound to the agent", func() {
			Expect(layered.PutChat(ctx, testChat("c1", "a1", "0xabc"))).To(Succeed())
			Expect(layered.PutChat(ctx, testChat("c2", "a1", "0xabc"))).To(Succeed())
			Expect(layered.PutChat(ctx, testChat("c3", "a2", "0xabc"))).To(Succeed())

			ids, err := layered.ListChatIDs(ctx, "a1", "0xabc")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("c1", "c2"))
		})
	})
})
