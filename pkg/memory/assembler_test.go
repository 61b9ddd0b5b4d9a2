package memory_test

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/memory"
	"github.com/papercomputeco/reel/pkg/persona"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/reel/pkg/utils/test"
	"github.com/papercomputeco/reel/pkg/vector"
)

var _ = Describe("Assembler", func() {
	var (
		ctx       context.Context
		store     *inmemory.Driver
		embedder  *testutils.MockEmbedder
		index     *testutils.MockVectorDriver
		personas  *persona.Catalog
		assembler *memory.Assembler
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		embedder = testutils.NewMockEmbedder(testDimensions)
		index = testutils.NewMockVectorDriver(testDimensions)
		personas = persona.NewCatalog(zap.NewNop())

		c := testConfig()
		retriever := memory.NewRetriever(embedder, index, c, zap.NewNop())
		assembler = memory.NewAssembler(store, retriever, personas, c, zap.NewNop())
	})

	Describe("Window", func() {
		It("returns every turn when fewer than the capacity exist", func() {
			conv := seedConversation(ctx, store, "alice", 5)

			window, err := assembler.Window(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(window).To(HaveLen(5))
		})

		It("returns the newest 20 turns in chronological order", func() {
			conv := seedConversation(ctx, store, "alice", 30)

			window, err := assembler.Window(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(window).To(HaveLen(20))
			Expect(window[0].Content).To(Equal("turn 10"))
			Expect(window[19].Content).To(Equal("turn 29"))
			for i := 1; i < len(window); i++ {
				Expect(window[i-1].Before(window[i])).To(BeTrue())
			}
		})
	})

	Describe("Assemble", func() {
		It("maps turn origins to alternating roles", func() {
			conv := seedConversation(ctx, store, "alice", 4)

			out, err := assembler.Assemble(ctx, memory.Input{
				ConversationID: conv.ID,
				OwnerID:        "alice",
				Message:        "next",
				Persona:        persona.GeneralAssistant,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.History).To(Equal([]llm.Message{
				{Role: llm.RoleUser, Content: "turn 0"},
				{Role: llm.RoleAssistant, Content: "turn 1"},
				{Role: llm.RoleUser, Content: "turn 2"},
				{Role: llm.RoleAssistant, Content: "turn 3"},
			}))
		})

		It("leaves the inbound message out of the history", func() {
			conv := seedConversation(ctx, store, "alice", 2)

			out, err := assembler.Assemble(ctx, memory.Input{
				ConversationID: conv.ID,
				OwnerID:        "alice",
				Message:        "brand new question",
			})
			Expect(err).NotTo(HaveOccurred())
			for _, m := range out.History {
				Expect(m.Content).NotTo(Equal("brand new question"))
			}
		})

		It("excludes the given turn and keeps the 20 turns before it", func() {
			conv := seedConversation(ctx, store, "alice", 24)
			inbound := storage.NewTurn(conv.ID, storage.OriginRequester, "inbound")
			Expect(store.AppendTurn(ctx, inbound)).To(Succeed())

			out, err := assembler.Assemble(ctx, memory.Input{
				ConversationID: conv.ID,
				OwnerID:        "alice",
				Message:        "inbound",
				ExcludeTurnID:  inbound.ID,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.History).To(HaveLen(20))
			Expect(out.History[0].Content).To(Equal("turn 4"))
			Expect(out.History[19].Content).To(Equal("turn 23"))
		})

		It("uses the persona instruction alone when nothing is retrieved", func() {
			conv := seedConversation(ctx, store, "alice", 0)

			out, err := assembler.Assemble(ctx, memory.Input{
				ConversationID: conv.ID,
				OwnerID:        "alice",
				Message:        "Explain closures",
				Persona:        persona.ProgrammingExpert,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.System).To(Equal(personas.Instruction(persona.ProgrammingExpert)))
			Expect(out.Fragments).To(BeEmpty())
			Expect(out.History).To(BeEmpty())
		})

		It("falls back to the general assistant for an unknown persona", func() {
			conv := seedConversation(ctx, store, "alice", 0)

			out, err := assembler.Assemble(ctx, memory.Input{
				ConversationID: conv.ID,
				OwnerID:        "alice",
				Message:        "hi",
				Persona:        "retired-persona",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.System).To(Equal(personas.Instruction(persona.GeneralAssistant)))
		})

		It("appends retrieved fragments as one block after the guidance", func() {
			conv := seedConversation(ctx, store, "alice", 0)
			embedder.Set("closures again", []float32{1, 0, 0, 0})
			for i := range 2 {
				Expect(index.Upsert(ctx, vector.Namespace("alice"), []vector.Record{{
					ID:        uuid.NewString(),
					Content:   fmt.Sprintf("fragment %d", i),
					Embedding: []float32{1, float32(i) / 10, 0, 0},
					Metadata: vector.Metadata{
						ConversationID: "older",
						OwnerID:        "alice",
						Kind:           memory.RecordKind,
						ArchivedAt:     time.Now().UTC(),
					},
				}})).To(Succeed())
			}

			out, err := assembler.Assemble(ctx, memory.Input{
				ConversationID: conv.ID,
				OwnerID:        "alice",
				Message:        "closures again",
				Persona:        persona.ProgrammingExpert,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Fragments).To(HaveLen(2))

			base := personas.Instruction(persona.ProgrammingExpert)
			Expect(out.System).To(HavePrefix(base))
			Expect(out.System).To(ContainSubstring("Never say that you remember it"))
			Expect(out.System).To(HaveSuffix("fragment 0" + memory.FragmentSeparator + "fragment 1"))
			Expect(strings.Count(out.System, base)).To(Equal(1))
		})

		It("still assembles when retrieval fails", func() {
			conv := seedConversation(ctx, store, "alice", 2)
			index.FailQuery(vector.ErrConnection)

			out, err := assembler.Assemble(ctx, memory.Input{
				ConversationID: conv.ID,
				OwnerID:        "alice",
				Message:        "hi",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.History).To(HaveLen(2))
			Expect(out.Fragments).To(BeEmpty())
		})
	})
})
