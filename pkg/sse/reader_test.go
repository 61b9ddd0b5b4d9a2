package sse

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	Describe("Next", func() {
		It("parses a single event", func() {
			r := NewReader(strings.NewReader("data: hello world\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("hello world"))
			Expect(ev.Type).To(BeEmpty())
			Expect(ev.ID).To(BeEmpty())

			ev, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("parses multiple events", func() {
			r := NewReader(strings.NewReader("data: first\n\ndata: second\n\n"))

			ev1, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev1.Data).To(Equal("first"))

			ev2, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev2.Data).To(Equal("second"))
		})

		It("parses event type and ID", func() {
			r := NewReader(strings.NewReader("id: 42\nevent: chunk\ndata: {\"type\":\"chunk\"}\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.ID).To(Equal("42"))
			Expect(ev.Type).To(Equal("chunk"))
			Expect(ev.Data).To(Equal("{\"type\":\"chunk\"}"))
		})

		It("joins multiple data lines with newline", func() {
			r := NewReader(strings.NewReader("data: line one\ndata: line two\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("line one\nline two"))
		})

		It("skips comments and keep-alive newlines", func() {
			r := NewReader(strings.NewReader("\n\n: ping\n\ndata: x\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("x"))
		})

		It("yields a final event without a trailing blank line", func() {
			r := NewReader(strings.NewReader("data: [DONE]"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("[DONE]"))
		})

		It("keeps a value without the optional space", func() {
			r := NewReader(strings.NewReader("data:tight\n\n"))

			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Data).To(Equal("tight"))
		})
	})
})
