package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/reel/api"
	"github.com/papercomputeco/reel/pkg/cliui"
	"github.com/papercomputeco/reel/pkg/dotdir"
	"github.com/papercomputeco/reel/pkg/exchange"
	"github.com/papercomputeco/reel/pkg/sse"
	"github.com/papercomputeco/reel/pkg/storage"
)

const testConversationID = "6f1c2a8e-4b7d-4e1a-9c3f-2d5e8a7b9c01"

// fakeServer mimics the reel API routes the chat client uses.
type fakeServer struct {
	mu       sync.Mutex
	tokens   []string
	messages []string
	events   []exchange.Event
	missing  bool
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, r.Header.Get("Authorization"))

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/conversations":
		var req api.CreateConversationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(storage.Conversation{
			ID:      testConversationID,
			OwnerID: "alice",
			Title:   "New conversation",
			Persona: req.Persona,
		})

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/conversations/"):
		if f.missing {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "conversation not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(storage.Conversation{ID: testConversationID, Title: "saved", TurnCount: 4})

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/messages/stream"):
		var req api.MessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.messages = append(f.messages, req.Content)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range f.events {
			data, _ := json.Marshal(ev)
			_ = sse.Write(w, sse.Event{Data: string(data)})
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// update mutates the fake while no request is in flight.
func (f *fakeServer) update(fn func(f *fakeServer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeServer) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *fakeServer) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

var _ = Describe("client", func() {
	var (
		fake *fakeServer
		ts   *httptest.Server
		c    *client
		ctx  context.Context
	)

	BeforeEach(func() {
		fake = &fakeServer{events: []exchange.Event{
			{Type: exchange.EventChunk, Content: "Hello "},
			{Type: exchange.EventChunk, Content: "there"},
			{Type: exchange.EventDone, ID: "turn-1", FullContent: "Hello there"},
		}}
		ts = httptest.NewServer(fake)
		c = newClient(ts.URL+"/", "secret-a")
		ctx = context.Background()
	})

	AfterEach(func() {
		ts.Close()
	})

	It("sends the bearer token", func() {
		_, err := c.createConversation(ctx, "", "patient-educator")
		Expect(err).NotTo(HaveOccurred())
		Expect(fake.Tokens()).To(ConsistOf("Bearer secret-a"))
	})

	It("decodes created conversations", func() {
		conv, err := c.createConversation(ctx, "", "patient-educator")
		Expect(err).NotTo(HaveOccurred())
		Expect(conv.ID).To(Equal(testConversationID))
		Expect(conv.Persona).To(Equal("patient-educator"))
	})

	It("maps 404 to a gone conversation", func() {
		fake.update(func(f *fakeServer) { f.missing = true })
		_, err := c.getConversation(ctx, testConversationID)
		Expect(err).To(MatchError(errConversationGone))
	})

	It("streams chunks and returns the done event", func() {
		var chunks []string
		done, err := c.stream(ctx, testConversationID, "hi", func(s string) { chunks = append(chunks, s) })
		Expect(err).NotTo(HaveOccurred())
		Expect(chunks).To(Equal([]string{"Hello ", "there"}))
		Expect(done.FullContent).To(Equal("Hello there"))
		Expect(fake.Messages()).To(ConsistOf("hi"))
	})

	It("returns error events as errors", func() {
		fake.update(func(f *fakeServer) {
			f.events = []exchange.Event{
				{Type: exchange.EventChunk, Content: "Hel"},
				{Type: exchange.EventError, Message: "upstream reset"},
			}
		})
		_, err := c.stream(ctx, testConversationID, "hi", func(string) {})
		Expect(err).To(MatchError("upstream reset"))
	})

	It("fails streams that end without a terminal event", func() {
		fake.update(func(f *fakeServer) {
			f.events = []exchange.Event{{Type: exchange.EventChunk, Content: "Hel"}}
		})
		_, err := c.stream(ctx, testConversationID, "hi", func(string) {})
		Expect(err).To(MatchError(ContainSubstring("without a reply")))
	})
})

var _ = Describe("chatCommander", func() {
	var (
		fake      *fakeServer
		ts        *httptest.Server
		configDir string
		out       *bytes.Buffer
	)

	BeforeEach(func() {
		fake = &fakeServer{events: []exchange.Event{
			{Type: exchange.EventChunk, Content: "A closure captures variables."},
			{Type: exchange.EventDone, ID: "turn-1", FullContent: "A closure captures variables."},
		}}
		ts = httptest.NewServer(fake)
		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		ts.Close()
	})

	newCommander := func(input string) *chatCommander {
		return &chatCommander{
			apiTarget: ts.URL,
			token:     "secret-a",
			persona:   "programming-expert",
			configDir: configDir,
			in:        strings.NewReader(input),
			out:       out,
		}
	}

	It("creates a conversation, saves the session and prints replies", func() {
		Expect(newCommander("Explain closures\n/exit\n").run(context.Background())).To(Succeed())

		Expect(fake.Messages()).To(ConsistOf("Explain closures"))
		Expect(out.String()).To(ContainSubstring("A closure captures variables."))

		state, err := dotdir.NewManager().LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).NotTo(BeNil())
		Expect(state.ConversationID).To(Equal(testConversationID))
	})

	It("follows each reply with a success mark and its latency", func() {
		Expect(newCommander("Explain closures\n/exit\n").run(context.Background())).To(Succeed())

		Expect(out.String()).To(ContainSubstring(cliui.SuccessMark))
		Expect(out.String()).To(MatchRegexp(`\(\d+(ms|\.\ds)\)`))
	})

	It("reports a failed exchange with a failure mark and keeps going", func() {
		fake.update(func(f *fakeServer) {
			f.events = []exchange.Event{{Type: exchange.EventError, Message: "generation failed"}}
		})

		Expect(newCommander("Explain closures\nAgain\n/exit\n").run(context.Background())).To(Succeed())

		Expect(fake.Messages()).To(ConsistOf("Explain closures", "Again"))
		Expect(out.String()).To(ContainSubstring(cliui.FailMark))
		Expect(out.String()).To(ContainSubstring("generation failed"))
	})

	It("resumes a saved conversation", func() {
		Expect(dotdir.NewManager().SaveSession(&dotdir.SessionState{ConversationID: testConversationID}, configDir)).To(Succeed())

		Expect(newCommander("").run(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Resuming"))
	})

	It("starts over when the saved conversation is gone", func() {
		Expect(dotdir.NewManager().SaveSession(&dotdir.SessionState{ConversationID: "gone"}, configDir)).To(Succeed())
		fake.update(func(f *fakeServer) { f.missing = true })

		Expect(newCommander("").run(context.Background())).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Creating conversation"))

		state, err := dotdir.NewManager().LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.ConversationID).To(Equal(testConversationID))
	})
})
