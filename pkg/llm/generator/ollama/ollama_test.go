package ollama_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/llm/generator/ollama"
)

type chatBody struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

var _ = Describe("Generator", func() {
	var (
		server   *httptest.Server
		received chatBody
		reply    string
	)

	BeforeEach(func() {
		received = chatBody{}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/chat"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())
			_, _ = io.WriteString(w, reply)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	history := []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")}

	It("prepends the system instruction and returns the reply", func() {
		reply = `{"model":"llama3.2","message":{"role":"assistant","content":"hello"},"done":true}`

		g := ollama.New(ollama.Config{BaseURL: server.URL})
		out, err := g.Generate(context.Background(), "be kind", history)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("hello"))

		Expect(received.Stream).To(BeFalse())
		Expect(received.Messages).To(HaveLen(2))
		Expect(received.Messages[0].Role).To(Equal("system"))
		Expect(received.Messages[0].Content).To(Equal("be kind"))
		Expect(received.Messages[1].Content).To(Equal("hi"))
	})

	It("streams NDJSON fragments in order", func() {
		reply = `{"message":{"role":"assistant","content":"Clo"},"done":false}
{"message":{"role":"assistant","content":"sures"},"done":false}
{"message":{"role":"assistant","content":""},"done":true}
`
		g := ollama.New(ollama.Config{BaseURL: server.URL})

		var parts []string
		for part, err := range g.GenerateStream(context.Background(), "", history) {
			Expect(err).NotTo(HaveOccurred())
			parts = append(parts, part)
		}
		Expect(parts).To(Equal([]string{"Clo", "sures"}))
		Expect(received.Stream).To(BeTrue())
	})

	It("surfaces an error line mid-stream", func() {
		reply = `{"message":{"role":"assistant","content":"par"},"done":false}
{"error":"model crashed"}
`
		g := ollama.New(ollama.Config{BaseURL: server.URL})

		var (
			parts   []string
			lastErr error
		)
		for part, err := range g.GenerateStream(context.Background(), "", history) {
			if err != nil {
				lastErr = err
				continue
			}
			parts = append(parts, part)
		}
		Expect(parts).To(Equal([]string{"par"}))
		Expect(lastErr).To(MatchError("model crashed"))
	})

	It("treats a stream without a done line as truncated", func() {
		reply = `{"message":{"role":"assistant","content":"par"},"done":false}
`
		g := ollama.New(ollama.Config{BaseURL: server.URL})

		var lastErr error
		for _, err := range g.GenerateStream(context.Background(), "", history) {
			if err != nil {
				lastErr = err
			}
		}
		Expect(lastErr).To(MatchError(io.ErrUnexpectedEOF))
	})
})
