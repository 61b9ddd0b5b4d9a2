// Package vectortest holds the behavior every vector.VectorDriver must
// satisfy. Driver suites call DriverConformance inside a Describe block.
package vectortest

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/vector"
)

// Dimensions is the vector length DriverConformance expects newDriver to use.
const Dimensions = 4

// Record builds a record with a fresh UUID.
func Record(conversationID, ownerID, content string, embedding ...float32) vector.Record {
	return vector.Record{
		ID:        uuid.NewString(),
		Content:   content,
		Embedding: embedding,
		Metadata: vector.Metadata{
			ConversationID: conversationID,
			OwnerID:        ownerID,
			Kind:           "conversation_memory",
			ArchivedAt:     time.Now().UTC(),
		},
	}
}

// DriverConformance registers the shared vector.VectorDriver specs.
func DriverConformance(newDriver func() vector.VectorDriver) {
	var (
		driver vector.VectorDriver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
		}
	})

	It("reports its dimensions", func() {
		Expect(driver.Dimensions()).To(Equal(uint(Dimensions)))
	})

	It("returns the closest records first with scores in [0, 1]", func() {
		ns := vector.Namespace("alice")
		Expect(driver.Upsert(ctx, ns, []vector.Record{
			Record("c1", "alice", "near", 1, 0, 0, 0),
			Record("c1", "alice", "middle", 1, 1, 0, 0),
			Record("c1", "alice", "far", 0, 0, 1, 0),
		})).To(Succeed())

		matches, err := driver.Query(ctx, ns, []float32{1, 0, 0, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(matches).To(HaveLen(3))
		Expect(matches[0].Content).To(Equal("near"))
		Expect(matches[1].Content).To(Equal("middle"))

		for i, m := range matches {
			Expect(m.Score).To(BeNumerically(">=", 0))
			Expect(m.Score).To(BeNumerically("<=", 1))
			if i > 0 {
				Expect(m.Score).To(BeNumerically("<=", matches[i-1].Score))
			}
		}
		Expect(matches[0].Score).To(BeNumerically("~", 1, 1e-4))
		Expect(matches[0].Metadata.ConversationID).To(Equal("c1"))
		Expect(matches[0].Metadata.OwnerID).To(Equal("alice"))
		Expect(matches[0].Metadata.Kind).To(Equal("conversation_memory"))
	})

	It("never returns more than topK records", func() {
		ns := vector.Namespace("alice")
		Expect(driver.Upsert(ctx, ns, []vector.Record{
			Record("c1", "alice", "a", 1, 0, 0, 0),
			Record("c1", "alice", "b", 0, 1, 0, 0),
			Record("c1", "alice", "c", 0, 0, 1, 0),
		})).To(Succeed())

		matches, err := driver.Query(ctx, ns, []float32{1, 0, 0, 0}, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(matches).To(HaveLen(2))
	})

	It("returns an empty result for an empty namespace", func() {
		matches, err := driver.Query(ctx, vector.Namespace("nobody"), []float32{1, 0, 0, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(matches).To(BeEmpty())
	})

	It("isolates namespaces", func() {
		Expect(driver.Upsert(ctx, vector.Namespace("alice"), []vector.Record{
			Record("c1", "alice", "alice secret", 1, 0, 0, 0),
		})).To(Succeed())
		Expect(driver.Upsert(ctx, vector.Namespace("bob"), []vector.Record{
			Record("c2", "bob", "bob secret", 1, 0, 0, 0),
		})).To(Succeed())

		matches, err := driver.Query(ctx, vector.Namespace("bob"), []float32{1, 0, 0, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(matches).To(HaveLen(1))
		Expect(matches[0].Content).To(Equal("bob secret"))
	})

	It("rejects vectors with the wrong dimensions", func() {
		err := driver.Upsert(ctx, vector.Namespace("alice"), []vector.Record{
			Record("c1", "alice", "short", 1, 0),
		})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))

		_, err = driver.Query(ctx, vector.Namespace("alice"), []float32{1, 0}, 5)
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})

	It("deletes only the given conversation's records", func() {
		ns := vector.Namespace("alice")
		Expect(driver.Upsert(ctx, ns, []vector.Record{
			Record("c1", "alice", "gone", 1, 0, 0, 0),
			Record("c2", "alice", "kept", 1, 0, 0, 0),
		})).To(Succeed())

		Expect(driver.DeleteConversation(ctx, ns, "c1")).To(Succeed())

		matches, err := driver.Query(ctx, ns, []float32{1, 0, 0, 0}, 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(matches).To(HaveLen(1))
		Expect(matches[0].Content).To(Equal("kept"))
	})
}
