package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apimcp "github.com/papercomputeco/reel/api/mcp"
	"github.com/papercomputeco/reel/pkg/identity"
	reellogger "github.com/papercomputeco/reel/pkg/logger"
	"github.com/papercomputeco/reel/pkg/memory"
)

// fakeSearcher returns canned fragments and records who asked.
type fakeSearcher struct {
	mu     sync.Mutex
	owners []string
	byUser map[string][]memory.Fragment
}

func (f *fakeSearcher) SearchMemory(_ context.Context, ownerID, _ string) ([]memory.Fragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append(f.owners, ownerID)
	return f.byUser[ownerID], nil
}

func (f *fakeSearcher) Owners() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.owners...)
}

type bearerTransport struct {
	token string
}

func (b bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return http.DefaultTransport.RoundTrip(r)
}

var _ = Describe("MCP Server", func() {
	var (
		searcher *fakeSearcher
		resolver *identity.StaticResolver
		server   *apimcp.Server
	)

	BeforeEach(func() {
		searcher = &fakeSearcher{byUser: map[string][]memory.Fragment{
			"alice": {{
				Content:        "Requester: my cat is Miso",
				Score:          0.91,
				ConversationID: "c-1",
				ArchivedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			}},
		}}
		resolver = identity.NewStaticResolver(map[string]string{
			"secret-a": "alice",
			"secret-b": "bob",
		})

		var err error
		server, err = apimcp.NewServer(apimcp.Config{
			Searcher: searcher,
			Resolver: resolver,
			Logger:   reellogger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when the searcher is nil", func() {
			_, err := apimcp.NewServer(apimcp.Config{Resolver: resolver, Logger: reellogger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("searcher is required")))
		})

		It("returns an error when the resolver is nil", func() {
			_, err := apimcp.NewServer(apimcp.Config{Searcher: searcher, Logger: reellogger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("identity resolver is required")))
		})

		It("returns an error when the logger is nil", func() {
			_, err := apimcp.NewServer(apimcp.Config{Searcher: searcher, Resolver: resolver})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("authentication", func() {
		DescribeTable("rejects requests without a known bearer token",
			func(header string) {
				req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
				if header != "" {
					req.Header.Set("Authorization", header)
				}
				rec := httptest.NewRecorder()

				server.Handler().ServeHTTP(rec, req)
				Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			},
			Entry("missing header", ""),
			Entry("wrong scheme", "Basic secret-a"),
			Entry("unknown token", "Bearer nope"),
		)
	})

	Describe("memory_search", func() {
		var ts *httptest.Server

		BeforeEach(func() {
			ts = httptest.NewServer(server.Handler())
		})

		AfterEach(func() {
			ts.Close()
		})

		call := func(token string) *mcp.CallToolResult {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			client := mcp.NewClient(&mcp.Implementation{Name: "reel-test", Version: "v0.0.0"}, nil)
			session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
				Endpoint:   ts.URL,
				HTTPClient: &http.Client{Transport: bearerTransport{token: token}},
			}, nil)
			Expect(err).NotTo(HaveOccurred())
			defer session.Close()

			result, err := session.CallTool(ctx, &mcp.CallToolParams{
				Name:      "memory_search",
				Arguments: map[string]any{"query": "cat name"},
			})
			Expect(err).NotTo(HaveOccurred())
			return result
		}

		It("searches the caller's archive", func() {
			result := call("secret-a")
			Expect(result.IsError).To(BeFalse())
			Expect(result.Content).To(HaveLen(1))

			text, ok := result.Content[0].(*mcp.TextContent)
			Expect(ok).To(BeTrue())

			var output apimcp.MemorySearchOutput
			Expect(json.Unmarshal([]byte(text.Text), &output)).To(Succeed())
			Expect(output.Query).To(Equal("cat name"))
			Expect(output.Count).To(Equal(1))
			Expect(output.Results[0].Content).To(Equal("Requester: my cat is Miso"))
			Expect(output.Results[0].ConversationID).To(Equal("c-1"))

			Expect(searcher.Owners()).To(ConsistOf("alice"))
		})

		It("never searches another owner's archive", func() {
			result := call("secret-b")
			Expect(result.IsError).To(BeFalse())

			text, ok := result.Content[0].(*mcp.TextContent)
			Expect(ok).To(BeTrue())

			var output apimcp.MemorySearchOutput
			Expect(json.Unmarshal([]byte(text.Text), &output)).To(Succeed())
			Expect(output.Count).To(BeZero())
			Expect(output.Results).To(BeEmpty())

			Expect(searcher.Owners()).To(ConsistOf("bob"))
		})
	})
})
