package memory

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/persona"
	"github.com/papercomputeco/reel/pkg/storage"
)

// FragmentSeparator joins fragments inside the memory block.
const FragmentSeparator = "\n---\n"

// memoryGuidance prefixes retrieved fragments in the system instruction.
const memoryGuidance = "Below is background context from earlier conversations with this user. " +
	"Treat it as knowledge you already have and use it naturally where it helps. " +
	"Never say that you remember it or that it was retrieved, and ignore it when it is not relevant."

// Input identifies the exchange being assembled.
type Input struct {
	ConversationID string
	OwnerID        string
	Message        string
	Persona        string

	// ExcludeTurnID drops one turn from the window, normally the inbound
	// turn the caller already persisted.
	ExcludeTurnID string
}

// Context is the payload handed to the generator, minus the inbound message.
type Context struct {
	System    string
	History   []llm.Message
	Fragments []Fragment
}

// Assembler builds generator context from the persona, the short-term
// window and retrieved long-term fragments.
type Assembler struct {
	store     storage.Driver
	retriever *Retriever
	personas  *persona.Catalog
	config    Config
	logger    *zap.Logger
}

func NewAssembler(store storage.Driver, retriever *Retriever, personas *persona.Catalog, c Config, logger *zap.Logger) *Assembler {
	return &Assembler{
		store:     store,
		retriever: retriever,
		personas:  personas,
		config:    c,
		logger:    logger,
	}
}

// Window returns the newest ShortTermCapacity turns, oldest first.
func (a *Assembler) Window(ctx context.Context, conversationID string) ([]*storage.Turn, error) {
	return a.store.RecentTurns(ctx, conversationID, a.config.ShortTermCapacity)
}

// Assemble returns the system instruction and history for an exchange. It
// does not add in.Message to the history.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Context, error) {
	var (
		window    []*storage.Turn
		fragments []Fragment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fragments = a.retriever.Retrieve(gctx, in.Message, in.OwnerID)
		return nil
	})
	g.Go(func() error {
		var err error
		window, err = a.window(gctx, in.ConversationID, in.ExcludeTurnID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	history := make([]llm.Message, len(window))
	for i, t := range window {
		role := llm.RoleUser
		if t.Origin == storage.OriginGenerator {
			role = llm.RoleAssistant
		}
		history[i] = llm.NewTextMessage(role, t.Content)
	}

	return &Context{
		System:    a.System(in.Persona, fragments),
		History:   history,
		Fragments: fragments,
	}, nil
}

// System composes the persona instruction with an optional memory block.
func (a *Assembler) System(personaTag string, fragments []Fragment) string {
	base := a.personas.Instruction(personaTag)
	if len(fragments) == 0 {
		return base
	}

	contents := make([]string, len(fragments))
	for i, f := range fragments {
		contents[i] = f.Content
	}
	return base + "\n\n" + memoryGuidance + "\n\n" + strings.Join(contents, FragmentSeparator)
}

func (a *Assembler) window(ctx context.Context, conversationID, excludeTurnID string) ([]*storage.Turn, error) {
	if excludeTurnID == "" {
		return a.Window(ctx, conversationID)
	}

	turns, err := a.store.RecentTurns(ctx, conversationID, a.config.ShortTermCapacity+1)
	if err != nil {
		return nil, err
	}

	kept := make([]*storage.Turn, 0, len(turns))
	for _, t := range turns {
		if t.ID != excludeTurnID {
			kept = append(kept, t)
		}
	}
	if len(kept) > a.config.ShortTermCapacity {
		kept = kept[len(kept)-a.config.ShortTermCapacity:]
	}
	return kept, nil
}
