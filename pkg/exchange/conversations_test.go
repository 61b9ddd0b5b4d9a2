package exchange_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/exchange"
	"github.com/papercomputeco/reel/pkg/memory"
	"github.com/papercomputeco/reel/pkg/persona"
	"github.com/papercomputeco/reel/pkg/vector"
	"github.com/papercomputeco/reel/pkg/vector/vectortest"
)

var _ = Describe("Conversations", func() {
	var (
		ctx context.Context
		h   *harness
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = newHarness(nil)
	})

	AfterEach(func() {
		h.pool.Close()
	})

	Describe("CreateConversation", func() {
		It("defaults the persona and title", func() {
			conv, err := h.controller.CreateConversation(ctx, "alice", "  ", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(conv.ID).NotTo(BeEmpty())
			Expect(conv.Persona).To(Equal(persona.Default))
			Expect(conv.Title).To(Equal("New conversation"))
			Expect(conv.TurnCount).To(BeZero())
		})

		It("truncates long titles", func() {
			conv, err := h.controller.CreateConversation(ctx, "alice", strings.Repeat("t", 500), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(len([]rune(conv.Title))).To(BeNumerically("<=", 120))
		})

		It("rejects unknown personas", func() {
			_, err := h.controller.CreateConversation(ctx, "alice", "x", "pirate")

			var verr *exchange.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Field).To(Equal("persona"))
		})
	})

	Describe("ListConversations", func() {
		It("only lists the owner's conversations", func() {
			h.conversation("alice", "")
			h.conversation("alice", "")
			h.conversation("bob", "")

			convs, err := h.controller.ListConversations(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(HaveLen(2))
			for _, c := range convs {
				Expect(c.OwnerID).To(Equal("alice"))
			}
		})
	})

	Describe("GetConversation and Turns", func() {
		It("hides conversations owned by someone else", func() {
			conv := h.conversation("alice", "")

			_, err := h.controller.GetConversation(ctx, conv.ID, "bob")
			Expect(err).To(MatchError(memory.ErrNotFound))

			_, err = h.controller.Turns(ctx, conv.ID, "bob")
			Expect(err).To(MatchError(memory.ErrNotFound))
		})

		It("returns turns in order", func() {
			conv := h.conversation("alice", "")
			h.seedTurns(conv.ID, 4)

			turns, err := h.controller.Turns(ctx, conv.ID, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(4))
			Expect(turns[0].Content).To(Equal("seed 0"))
			Expect(turns[3].Content).To(Equal("seed 3"))
		})
	})

	Describe("DeleteConversation", func() {
		It("keeps archive records by default", func() {
			conv := h.conversation("alice", "")
			Expect(h.index.Upsert(ctx, "user_alice", []vector.Record{
				vectortest.Record(conv.ID, "alice", "Requester: hi", 1, 0, 0, 0),
			})).To(Succeed())

			Expect(h.controller.DeleteConversation(ctx, conv.ID, "alice")).To(Succeed())

			_, err := h.controller.GetConversation(ctx, conv.ID, "alice")
			Expect(err).To(MatchError(memory.ErrNotFound))
			Expect(h.index.Count("user_alice")).To(Equal(1))
		})

		It("drops archive records with cascade delete", func() {
			h.pool.Close()
			h = newHarness(func(c *memory.Config) { c.CascadeDelete = true })

			conv := h.conversation("alice", "")
			other := h.conversation("alice", "")
			Expect(h.index.Upsert(ctx, "user_alice", []vector.Record{
				vectortest.Record(conv.ID, "alice", "Requester: hi", 1, 0, 0, 0),
				vectortest.Record(other.ID, "alice", "Requester: bye", 0, 1, 0, 0),
			})).To(Succeed())

			Expect(h.controller.DeleteConversation(ctx, conv.ID, "alice")).To(Succeed())

			records := h.index.Records("user_alice")
			Expect(records).To(HaveLen(1))
			Expect(records[0].Metadata.ConversationID).To(Equal(other.ID))
		})

		It("refuses to delete another owner's conversation", func() {
			conv := h.conversation("alice", "")

			err := h.controller.DeleteConversation(ctx, conv.ID, "bob")
			Expect(err).To(MatchError(memory.ErrNotFound))
			Expect(h.reload(conv.ID).OwnerID).To(Equal("alice"))
		})
	})

	Describe("SearchMemory", func() {
		It("rejects empty queries", func() {
			_, err := h.controller.SearchMemory(ctx, "alice", "  ")

			var verr *exchange.ValidationError
			Expect(errors.As(err, &verr)).To(BeTrue())
		})

		It("returns the owner's matching fragments", func() {
			conv := h.conversation("alice", "")
			Expect(h.index.Upsert(ctx, "user_alice", []vector.Record{
				vectortest.Record(conv.ID, "alice", "Requester: my cat is Miso", 1, 0, 0, 0),
			})).To(Succeed())
			h.embedder.Set("cat name", []float32{1, 0, 0, 0})

			fragments, err := h.controller.SearchMemory(ctx, "alice", "cat name")
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments).To(HaveLen(1))
			Expect(fragments[0].Content).To(Equal("Requester: my cat is Miso"))
			Expect(fragments[0].ConversationID).To(Equal(conv.ID))

			fragments, err = h.controller.SearchMemory(ctx, "bob", "cat name")
			Expect(err).NotTo(HaveOccurred())
			Expect(fragments).To(BeEmpty())
		})
	})
})
