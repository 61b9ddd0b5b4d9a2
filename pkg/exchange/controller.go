// Package exchange runs exchanges: one requester message answered by one
// generator reply, with both turns persisted and memory kept up to date.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/eventstream"
	"github.com/papercomputeco/reel/pkg/llm"
	"github.com/papercomputeco/reel/pkg/llm/generator"
	"github.com/papercomputeco/reel/pkg/memory"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/utils"
	"github.com/papercomputeco/reel/pkg/vector"
	"github.com/papercomputeco/reel/pkg/worker"
)

// streamBuffer is the capacity of a stream's event channel.
const streamBuffer = 16

var errEmptyReply = errors.New("generator returned an empty reply")

// Config wires a Controller to its collaborators.
type Config struct {
	Store     storage.Driver
	Assembler *memory.Assembler
	Archiver  *memory.Archiver
	Retriever *memory.Retriever
	Generator generator.Generator

	// Index is used to drop archive records when Memory.CascadeDelete is set.
	Index vector.VectorDriver

	// Pool runs archival and event publishing off the request path.
	Pool *worker.Pool

	// Publisher is optional.
	Publisher eventstream.Publisher

	Memory memory.Config
	Logger *zap.Logger
}

// Request is one inbound message.
type Request struct {
	ConversationID string
	OwnerID        string
	Message        string
}

// Result holds both turns of a completed buffered exchange.
type Result struct {
	RequesterTurn *storage.Turn `json:"requesterTurn"`
	GeneratorTurn *storage.Turn `json:"generatorTurn"`
}

// Controller executes exchanges. It holds no per-conversation state, so
// concurrent exchanges on one conversation are not serialized.
type Controller struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time
}

func NewController(c *Config) *Controller {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		config: c,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// pending is an exchange whose requester turn is persisted and whose
// generator context is assembled.
type pending struct {
	conv      *storage.Conversation
	inbound   *storage.Turn
	system    string
	history   []llm.Message
	fragments int
	started   time.Time
}

// Send runs a buffered exchange.
func (c *Controller) Send(ctx context.Context, req Request) (*Result, error) {
	p, err := c.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	reply, err := c.config.Generator.Generate(ctx, p.system, p.history)
	if err == nil && reply == "" {
		err = errEmptyReply
	}
	if err != nil {
		c.logger.Warn("generation failed",
			zap.String("conversation_id", p.conv.ID),
			zap.Error(err),
		)
		return nil, &GenerationError{Err: err}
	}

	outbound, err := c.complete(ctx, p, reply, false)
	if err != nil {
		return nil, err
	}

	return &Result{RequesterTurn: p.inbound, GeneratorTurn: outbound}, nil
}

// Stream runs an incremental exchange. Validation, ownership and
// persistence of the requester turn happen before Stream returns, so those
// failures are returned directly. Everything after arrives on the channel,
// which always ends with one terminal event (unless ctx is cancelled) and
// is always closed.
//
// Cancelling ctx stops forwarding, releases the generator and abandons the
// reply: no generator turn is persisted for a departed consumer.
func (c *Controller) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	p, err := c.begin(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, streamBuffer)
	go c.produce(ctx, p, out)
	return out, nil
}

func (c *Controller) produce(ctx context.Context, p *pending, out chan<- Event) {
	defer close(out)

	log := c.logger.With(zap.String("conversation_id", p.conv.ID))

	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var full strings.Builder
	for part, err := range c.config.Generator.GenerateStream(ctx, p.system, p.history) {
		if ctx.Err() != nil {
			log.Info("stream consumer left, abandoning reply", zap.Int("chars", full.Len()))
			return
		}
		if err != nil {
			log.Warn("stream generation failed", zap.Error(err))
			send(errorEvent(err.Error()))
			return
		}

		full.WriteString(part)
		if !send(chunkEvent(part)) {
			log.Info("stream consumer left, abandoning reply", zap.Int("chars", full.Len()))
			return
		}
	}

	if ctx.Err() != nil {
		log.Info("stream consumer left, abandoning reply", zap.Int("chars", full.Len()))
		return
	}
	if full.Len() == 0 {
		send(errorEvent(errEmptyReply.Error()))
		return
	}

	outbound, err := c.complete(ctx, p, full.String(), true)
	if err != nil {
		log.Error("persisting streamed reply failed", zap.Error(err))
		send(errorEvent("failed to save reply"))
		return
	}

	send(doneEvent(outbound.ID, outbound.Content))
}

// begin validates the request, checks ownership, persists the requester
// turn and assembles the generator context.
func (c *Controller) begin(ctx context.Context, req Request) (*pending, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, &ValidationError{Field: "content", Reason: "message must not be empty"}
	}
	if err := validateID(req.ConversationID); err != nil {
		return nil, err
	}

	conv, err := memory.OwnedConversation(ctx, c.config.Store, req.ConversationID, req.OwnerID)
	if err != nil {
		return nil, err
	}

	started := c.now()
	inbound := storage.NewTurn(conv.ID, storage.OriginRequester, req.Message)
	if err := c.config.Store.AppendTurn(ctx, inbound); err != nil {
		return nil, err
	}

	c.logger.Debug("requester turn persisted",
		zap.String("conversation_id", conv.ID),
		zap.String("turn_id", inbound.ID),
		zap.String("preview", utils.Truncate(req.Message, 64)),
	)

	assembled, err := c.config.Assembler.Assemble(ctx, memory.Input{
		ConversationID: conv.ID,
		OwnerID:        conv.OwnerID,
		Message:        req.Message,
		Persona:        conv.Persona,
		ExcludeTurnID:  inbound.ID,
	})
	if err != nil {
		return nil, err
	}

	history := append(assembled.History, llm.NewTextMessage(llm.RoleUser, req.Message))
	return &pending{
		conv:      conv,
		inbound:   inbound,
		system:    assembled.System,
		history:   history,
		fragments: len(assembled.Fragments),
		started:   started,
	}, nil
}

// complete persists the generator turn, records the exchange and hands
// archival and publishing to the worker pool.
func (c *Controller) complete(ctx context.Context, p *pending, reply string, streaming bool) (*storage.Turn, error) {
	outbound := storage.NewTurn(p.conv.ID, storage.OriginGenerator, reply)
	if err := c.config.Store.AppendTurn(ctx, outbound); err != nil {
		return nil, err
	}

	completed := c.now()
	count, err := c.config.Store.RecordExchange(ctx, p.conv.ID, 2, completed)
	if err != nil {
		// both turns are stored but turn_count now lags them
		c.logger.Error("generator turn stored but exchange not recorded",
			zap.String("conversation_id", p.conv.ID),
			zap.String("requester_turn_id", p.inbound.ID),
			zap.String("generator_turn_id", outbound.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("recording exchange for turn %s: %w", outbound.ID, err)
	}

	archiveQueued := false
	if count > c.config.Memory.ShortTermCapacity {
		archiveQueued = c.enqueueArchive(p.conv)
	}

	c.enqueuePublish(p, outbound, count, completed, streaming, archiveQueued)

	c.logger.Info("exchange completed",
		zap.String("conversation_id", p.conv.ID),
		zap.Int("turn_count", count),
		zap.Int("fragments", p.fragments),
		zap.Bool("streaming", streaming),
		zap.Duration("took", completed.Sub(p.started)),
	)
	return outbound, nil
}

func (c *Controller) enqueueArchive(conv *storage.Conversation) bool {
	if c.config.Pool == nil || c.config.Archiver == nil {
		return false
	}

	conversationID, ownerID := conv.ID, conv.OwnerID
	return c.config.Pool.Enqueue(worker.Job{
		Kind:           "archive",
		ConversationID: conversationID,
		Run: func(ctx context.Context) error {
			c.config.Archiver.Archive(ctx, conversationID, ownerID)
			return nil
		},
	})
}

func (c *Controller) enqueuePublish(p *pending, outbound *storage.Turn, count int, completed time.Time, streaming, archiveQueued bool) {
	if c.config.Pool == nil || c.config.Publisher == nil {
		return
	}

	event := eventstream.NewExchangeEvent(completed)
	event.ConversationID = p.conv.ID
	event.OwnerID = p.conv.OwnerID
	event.Persona = p.conv.Persona
	event.RequesterTurnID = p.inbound.ID
	event.GeneratorTurnID = outbound.ID
	event.TurnCount = count
	event.Exchange = eventstream.ExchangeMeta{
		StartedAt:      p.started,
		CompletedAt:    completed,
		DurationMs:     completed.Sub(p.started).Milliseconds(),
		Streaming:      streaming,
		FragmentCount:  p.fragments,
		ReplyCharCount: len([]rune(outbound.Content)),
		ArchiveQueued:  archiveQueued,
	}

	c.config.Pool.Enqueue(worker.Job{
		Kind:           "publish",
		ConversationID: p.conv.ID,
		Run: func(ctx context.Context) error {
			return c.config.Publisher.PublishExchange(ctx, event)
		},
	})
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{Field: "conversationId", Reason: "must be a UUID"}
	}
	return nil
}
