package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/pkg/exchange"
	"github.com/papercomputeco/reel/pkg/identity"
	reellogger "github.com/papercomputeco/reel/pkg/logger"
	"github.com/papercomputeco/reel/pkg/memory"
	"github.com/papercomputeco/reel/pkg/persona"
	"github.com/papercomputeco/reel/pkg/sse"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/reel/pkg/utils/test"
	"github.com/papercomputeco/reel/pkg/worker"
)

const (
	aliceToken = "secret-a"
	bobToken   = "secret-b"
)

var _ = Describe("Server", func() {
	var (
		server    *Server
		generator *testutils.MockGenerator
		pool      *worker.Pool
	)

	BeforeEach(func() {
		logger := reellogger.Nop()
		c := memory.DefaultConfig()
		c.Dimensions = 4

		store := inmemory.NewDriver()
		embedder := testutils.NewMockEmbedder(4)
		index := testutils.NewMockVectorDriver(4)
		generator = testutils.NewMockGenerator("Closures ", "capture ", "variables.")

		var err error
		pool, err = worker.NewPool(&worker.Config{NumWorkers: 1, Logger: logger})
		Expect(err).NotTo(HaveOccurred())

		retriever := memory.NewRetriever(embedder, index, c, logger)
		controller := exchange.NewController(&exchange.Config{
			Store:     store,
			Assembler: memory.NewAssembler(store, retriever, persona.NewCatalog(logger), c, logger),
			Archiver:  memory.NewArchiver(store, embedder, index, c, logger),
			Retriever: retriever,
			Generator: generator,
			Index:     index,
			Pool:      pool,
			Memory:    c,
			Logger:    logger,
		})

		server, err = NewServer(Config{
			ListenAddr: ":0",
			Controller: controller,
			Resolver: identity.NewStaticResolver(map[string]string{
				aliceToken: "alice",
				bobToken:   "bob",
			}),
		}, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		pool.Close()
	})

	do := func(method, path, token, body string) *http.Response {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, path, reader)
		Expect(err).NotTo(HaveOccurred())
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, out any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}

	errorOf := func(resp *http.Response) string {
		var body ErrorResponse
		decode(resp, &body)
		return body.Error
	}

	create := func(token, body string) *storage.Conversation {
		resp := do(http.MethodPost, "/v1/conversations", token, body)
		Expect(resp.StatusCode).To(Equal(fiber.StatusCreated))
		var conv storage.Conversation
		decode(resp, &conv)
		return &conv
	}

	Describe("NewServer", func() {
		It("requires a controller", func() {
			_, err := NewServer(Config{Resolver: identity.NewStaticResolver(nil)}, reellogger.Nop())
			Expect(err).To(MatchError(ContainSubstring("exchange controller is required")))
		})
	})

	Describe("GET /ping", func() {
		It("does not require a token", func() {
			resp := do(http.MethodGet, "/ping", "", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})
	})

	Describe("authentication", func() {
		It("returns 401 without a token", func() {
			resp := do(http.MethodGet, "/v1/conversations", "", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
			Expect(errorOf(resp)).To(Equal("unauthorized"))
		})

		It("returns 401 for an unknown token", func() {
			resp := do(http.MethodGet, "/v1/conversations", "nope", "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
		})

		It("protects the MCP endpoint", func() {
			resp := do(http.MethodPost, "/mcp", "", `{}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusUnauthorized))
		})
	})

	Describe("conversations", func() {
		It("creates a conversation with defaults", func() {
			conv := create(aliceToken, "")
			Expect(conv.ID).NotTo(BeEmpty())
			Expect(conv.OwnerID).To(Equal("alice"))
			Expect(conv.Persona).To(Equal(persona.Default))
		})

		It("rejects unknown personas", func() {
			resp := do(http.MethodPost, "/v1/conversations", aliceToken, `{"persona":"pirate"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(errorOf(resp)).To(ContainSubstring("persona"))
		})

		It("rejects malformed bodies", func() {
			resp := do(http.MethodPost, "/v1/conversations", aliceToken, `{"title":`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(errorOf(resp)).To(Equal("invalid request body"))
		})

		It("lists only the caller's conversations", func() {
			create(aliceToken, `{"title":"mine"}`)
			create(bobToken, `{"title":"theirs"}`)

			resp := do(http.MethodGet, "/v1/conversations", aliceToken, "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var convs []storage.Conversation
			decode(resp, &convs)
			Expect(convs).To(HaveLen(1))
			Expect(convs[0].Title).To(Equal("mine"))
		})

		It("returns 404 for another owner's conversation", func() {
			conv := create(aliceToken, "")

			resp := do(http.MethodGet, "/v1/conversations/"+conv.ID, bobToken, "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
			Expect(errorOf(resp)).To(Equal(memory.ErrNotFound.Error()))
		})

		It("returns 400 for malformed ids", func() {
			resp := do(http.MethodGet, "/v1/conversations/not-a-uuid", aliceToken, "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("deletes a conversation", func() {
			conv := create(aliceToken, "")

			resp := do(http.MethodDelete, "/v1/conversations/"+conv.ID, aliceToken, "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNoContent))

			resp = do(http.MethodGet, "/v1/conversations/"+conv.ID, aliceToken, "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("POST /v1/conversations/:id/messages", func() {
		It("returns both turns", func() {
			conv := create(aliceToken, "")

			resp := do(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", aliceToken, `{"content":"Explain closures"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result exchange.Result
			decode(resp, &result)
			Expect(result.RequesterTurn.Content).To(Equal("Explain closures"))
			Expect(result.GeneratorTurn.Content).To(Equal("Closures capture variables."))

			resp = do(http.MethodGet, "/v1/conversations/"+conv.ID+"/turns", aliceToken, "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var turns []storage.Turn
			decode(resp, &turns)
			Expect(turns).To(HaveLen(2))
		})

		It("returns 400 for whitespace content", func() {
			conv := create(aliceToken, "")

			resp := do(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", aliceToken, `{"content":"  "}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(generator.Calls()).To(BeEmpty())
		})

		It("returns 502 when generation fails", func() {
			conv := create(aliceToken, "")
			generator.Err = errors.New("model overloaded")

			resp := do(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", aliceToken, `{"content":"hi"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadGateway))
			Expect(errorOf(resp)).To(ContainSubstring("model overloaded"))
		})
	})

	Describe("POST /v1/conversations/:id/messages/stream", func() {
		It("streams chunk events and one done event", func() {
			conv := create(aliceToken, `{"persona":"programming-expert"}`)

			resp := do(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages/stream", aliceToken, `{"content":"Explain closures"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			defer resp.Body.Close()

			var events []exchange.Event
			reader := sse.NewReader(resp.Body)
			for {
				ev, err := reader.Next()
				Expect(err).NotTo(HaveOccurred())
				if ev == nil {
					break
				}
				var parsed exchange.Event
				Expect(json.Unmarshal([]byte(ev.Data), &parsed)).To(Succeed())
				events = append(events, parsed)
			}

			Expect(events).To(HaveLen(4))
			Expect(events[0].Type).To(Equal(exchange.EventChunk))
			Expect(events[0].Content).To(Equal("Closures "))
			last := events[len(events)-1]
			Expect(last.Type).To(Equal(exchange.EventDone))
			Expect(last.FullContent).To(Equal("Closures capture variables."))
			Expect(last.ID).NotTo(BeEmpty())
		})

		It("returns 404 before streaming for another owner", func() {
			conv := create(aliceToken, "")

			resp := do(http.MethodPost, "/v1/conversations/"+conv.ID+"/messages/stream", bobToken, `{"content":"hi"}`)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("GET /v1/memory/search", func() {
		It("returns 400 without a query", func() {
			resp := do(http.MethodGet, "/v1/memory/search", aliceToken, "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 200 with no fragments for an empty archive", func() {
			resp := do(http.MethodGet, "/v1/memory/search?query=cats", aliceToken, "")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var body struct {
				Query string `json:"query"`
				Count int    `json:"count"`
			}
			decode(resp, &body)
			Expect(body.Query).To(Equal("cats"))
			Expect(body.Count).To(BeZero())
		})
	})
})
