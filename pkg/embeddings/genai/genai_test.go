package genai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/embeddings"
	"github.com/papercomputeco/reel/pkg/embeddings/genai"
	"github.com/papercomputeco/reel/pkg/vector"
)

var _ = Describe("Embedder", func() {
	var (
		server *httptest.Server

		mu       sync.Mutex
		requests int
		dims     int
		extra    int
		status   int
	)

	BeforeEach(func() {
		mu.Lock()
		requests, dims, extra, status = 0, 3, 0, http.StatusOK
		mu.Unlock()

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(HaveSuffix("gemini-embedding-001:batchEmbedContents"))
			Expect(r.Header.Get("x-goog-api-key")).To(Equal("test-key"))

			var body struct {
				Requests []map[string]any `json:"requests"`
			}
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())

			mu.Lock()
			requests++
			d, n, code := dims, len(body.Requests)+extra, status
			mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			if code != http.StatusOK {
				w.WriteHeader(code)
				_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad model","status":"INVALID_ARGUMENT"}}`))
				return
			}

			out := make([]map[string]any, n)
			for i := range out {
				values := make([]float32, d)
				values[0] = float32(i + 1)
				out[i] = map[string]any{"values": values}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newEmbedder := func() *genai.Embedder {
		e, err := genai.NewEmbedder(context.Background(), genai.EmbedderConfig{
			APIKey:     "test-key",
			Dimensions: 3,
			BaseURL:    server.URL,
		})
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	Describe("NewEmbedder", func() {
		It("requires an API key", func() {
			_, err := genai.NewEmbedder(context.Background(), genai.EmbedderConfig{Dimensions: 3})
			Expect(err).To(MatchError(ContainSubstring("API key")))
		})

		It("requires dimensions", func() {
			_, err := genai.NewEmbedder(context.Background(), genai.EmbedderConfig{APIKey: "k"})
			Expect(err).To(MatchError(ContainSubstring("dimensions")))
		})
	})

	It("embeds a batch in one request, in input order", func() {
		e := newEmbedder()

		out, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(out[0][0]).To(BeNumerically("==", 1))
		Expect(out[1][0]).To(BeNumerically("==", 2))
		Expect(e.Dimensions()).To(Equal(uint(3)))

		mu.Lock()
		defer mu.Unlock()
		Expect(requests).To(Equal(1))
	})

	It("returns nothing for an empty batch without calling the API", func() {
		out, err := newEmbedder().EmbedBatch(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())

		mu.Lock()
		defer mu.Unlock()
		Expect(requests).To(BeZero())
	})

	It("rejects a response with the wrong number of embeddings", func() {
		mu.Lock()
		extra = -1
		mu.Unlock()

		_, err := newEmbedder().EmbedBatch(context.Background(), []string{"a", "b"})
		Expect(err).To(MatchError(vector.ErrEmbedding))
		Expect(err).To(MatchError(ContainSubstring("expected 2 embeddings, got 1")))
	})

	It("rejects vectors of another size", func() {
		mu.Lock()
		dims = 2
		mu.Unlock()

		_, err := newEmbedder().Embed(context.Background(), "hello")
		Expect(err).To(MatchError(embeddings.ErrDimensionMismatch))
	})

	It("wraps API errors", func() {
		mu.Lock()
		status = http.StatusBadRequest
		mu.Unlock()

		_, err := newEmbedder().Embed(context.Background(), "hello")
		Expect(err).To(MatchError(vector.ErrEmbedding))
	})
})
