// Package storagetest holds the behavior every storage.Driver must satisfy.
// Driver suites call DriverConformance from inside a Describe block.
package storagetest

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/storage"
)

// DriverConformance registers the shared storage.Driver specs. newDriver is
// called once per spec and the returned driver is closed afterwards.
func DriverConformance(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
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

	newConversation := func(owner string) *storage.Conversation {
		conv := &storage.Conversation{OwnerID: owner, Title: "t", Persona: "general-assistant"}
		Expect(driver.CreateConversation(ctx, conv)).To(Succeed())
		return conv
	}

	isNotFound := func(err error) bool {
		var nf storage.NotFoundError
		return errors.As(err, &nf)
	}

	Describe("conversations", func() {
		It("creates and reads back a conversation", func() {
			conv := newConversation("alice")
			Expect(conv.ID).NotTo(BeEmpty())

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.OwnerID).To(Equal("alice"))
			Expect(got.Persona).To(Equal("general-assistant"))
			Expect(got.TurnCount).To(Equal(0))
			Expect(got.ArchivedOnce).To(BeFalse())
			Expect(got.CreatedAt).To(BeTemporally("~", conv.CreatedAt, time.Millisecond))
		})

		It("returns NotFoundError for unknown IDs", func() {
			_, err := driver.GetConversation(ctx, "6b0d3c55-0000-4000-8000-000000000000")
			Expect(isNotFound(err)).To(BeTrue())
		})

		It("lists only the owner's conversations, most recent first", func() {
			older := newConversation("alice")
			newer := newConversation("alice")
			newConversation("bob")

			_, err := driver.RecordExchange(ctx, newer.ID, 2, time.Now().UTC().Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())

			list, err := driver.ListConversations(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].ID).To(Equal(newer.ID))
			Expect(list[1].ID).To(Equal(older.ID))
		})

		It("deletes a conversation together with its turns", func() {
			conv := newConversation("alice")
			Expect(driver.AppendTurn(ctx, storage.NewTurn(conv.ID, storage.OriginRequester, "hi"))).To(Succeed())

			Expect(driver.DeleteConversation(ctx, conv.ID)).To(Succeed())

			_, err := driver.GetConversation(ctx, conv.ID)
			Expect(isNotFound(err)).To(BeTrue())
			_, err = driver.Turns(ctx, conv.ID)
			Expect(isNotFound(err)).To(BeTrue())
			Expect(isNotFound(driver.DeleteConversation(ctx, conv.ID))).To(BeTrue())
		})
	})

	Describe("turns", func() {
		It("rejects turns for unknown conversations", func() {
			err := driver.AppendTurn(ctx, storage.NewTurn("missing", storage.OriginRequester, "hi"))
			Expect(isNotFound(err)).To(BeTrue())
		})

		It("rejects unknown origins", func() {
			conv := newConversation("alice")
			err := driver.AppendTurn(ctx, storage.NewTurn(conv.ID, storage.Origin("system"), "hi"))
			Expect(err).To(HaveOccurred())
		})

		It("returns turns chronologically and breaks timestamp ties by insertion", func() {
			conv := newConversation("alice")
			at := time.Now().UTC().Truncate(time.Millisecond)

			for _, content := range []string{"one", "two", "three"} {
				turn := storage.NewTurn(conv.ID, storage.OriginRequester, content)
				turn.CreatedAt = at
				Expect(driver.AppendTurn(ctx, turn)).To(Succeed())
			}

			turns, err := driver.Turns(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
			Expect(turns[0].Content).To(Equal("one"))
			Expect(turns[1].Content).To(Equal("two"))
			Expect(turns[2].Content).To(Equal("three"))
			Expect(turns[0].Seq).To(BeNumerically("<", turns[1].Seq))
		})

		It("returns the newest turns in chronological order", func() {
			conv := newConversation("alice")
			base := time.Now().UTC()
			for i := range 25 {
				turn := storage.NewTurn(conv.ID, storage.OriginRequester, string(rune('a'+i)))
				turn.CreatedAt = base.Add(time.Duration(i) * time.Second)
				Expect(driver.AppendTurn(ctx, turn)).To(Succeed())
			}

			recent, err := driver.RecentTurns(ctx, conv.ID, 20)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(20))
			Expect(recent[0].Content).To(Equal("f"))
			Expect(recent[19].Content).To(Equal("y"))

			all, err := driver.RecentTurns(ctx, conv.ID, 100)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(25))
		})
	})

	Describe("counters", func() {
		It("adds the exchange delta and refreshes last activity", func() {
			conv := newConversation("alice")
			at := time.Now().UTC().Add(time.Hour)

			count, err := driver.RecordExchange(ctx, conv.ID, 2, at)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2))

			count, err = driver.RecordExchange(ctx, conv.ID, 2, at)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(4))

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.TurnCount).To(Equal(4))
			Expect(got.LastActivity).To(BeTemporally("~", at, time.Millisecond))
		})

		It("returns NotFoundError when recording on a missing conversation", func() {
			_, err := driver.RecordExchange(ctx, "missing", 2, time.Now())
			Expect(isNotFound(err)).To(BeTrue())
		})

		It("marks archived and never moves the watermark backwards", func() {
			conv := newConversation("alice")

			Expect(driver.MarkArchived(ctx, conv.ID, 8)).To(Succeed())
			Expect(driver.MarkArchived(ctx, conv.ID, 4)).To(Succeed())

			got, err := driver.GetConversation(ctx, conv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ArchivedOnce).To(BeTrue())
			Expect(got.ArchivedTurns).To(Equal(8))
		})
	})
}
