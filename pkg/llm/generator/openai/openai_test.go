package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/llm/generator/openai"
)

var _ = Describe("Generator", func() {
	var (
		server   *httptest.Server
		received map[string]any
		status   int
		reply    string
	)

	BeforeEach(func() {
		received = nil
		status = http.StatusOK
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			w.WriteHeader(status)
			_, _ = io.WriteString(w, reply)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newGenerator := func() *openai.Generator {
		g, err := openai.New(openai.Config{BaseURL: server.URL, APIKey: "sk-test", Model: "gpt-test"})
		Expect(err).NotTo(HaveOccurred())
		return g
	}

	history := []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}

	It("requires an API key for the hosted endpoint", func() {
		_, err := openai.New(openai.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("returns the first choice", func() {
		reply = `{"id":"c1","model":"gpt-test","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`

		out, err := newGenerator().Generate(context.Background(), "sys", history)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("hello"))

		messages, ok := received["messages"].([]any)
		Expect(ok).To(BeTrue())
		Expect(messages).To(HaveLen(2))
		Expect(messages[0]).To(HaveKeyWithValue("role", "system"))
	})

	It("streams deltas until the done sentinel", func() {
		reply = "data: {\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
			"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"A closure \"}}]}\n\n" +
			"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"captures.\"}}]}\n\n" +
			"data: [DONE]\n\n"

		var parts []string
		for part, err := range newGenerator().GenerateStream(context.Background(), "", history) {
			Expect(err).NotTo(HaveOccurred())
			parts = append(parts, part)
		}
		Expect(parts).To(Equal([]string{"A closure ", "captures."}))
		Expect(received["stream"]).To(BeTrue())
	})

	It("reports API errors", func() {
		status = http.StatusTooManyRequests
		reply = `{"error":{"message":"rate limited","type":"requests"}}`

		_, err := newGenerator().Generate(context.Background(), "", history)
		Expect(err).To(MatchError(ContainSubstring("rate limited")))
	})
})
