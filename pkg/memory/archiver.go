package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/papercomputeco/reel/pkg/embeddings"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/vector"
)

// Archiver rolls turns that have left the short-term window into the
// long-term archive.
type Archiver struct {
	store    storage.Driver
	embedder embeddings.Embedder
	index    vector.VectorDriver
	config   Config
	logger   *zap.Logger

	group singleflight.Group
	now   func() time.Time
}

func NewArchiver(store storage.Driver, embedder embeddings.Embedder, index vector.VectorDriver, c Config, logger *zap.Logger) *Archiver {
	return &Archiver{
		store:    store,
		embedder: embedder,
		index:    index,
		config:   c,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Archive embeds every turn older than the short-term window that is not
// yet archived and stores the chunks in the owner's namespace. Concurrent
// calls for one conversation share a single run. Errors are logged, never
// returned: the watermark only advances on success so the next exchange
// retries.
func (a *Archiver) Archive(ctx context.Context, conversationID, ownerID string) {
	_, _, _ = a.group.Do(conversationID, func() (any, error) {
		a.archive(ctx, conversationID, ownerID)
		return nil, nil
	})
}

func (a *Archiver) archive(ctx context.Context, conversationID, ownerID string) {
	log := a.logger.With(
		zap.String("conversation_id", conversationID),
		zap.String("owner_id", ownerID),
	)

	conv, err := a.store.GetConversation(ctx, conversationID)
	if err != nil {
		log.Warn("archive: loading conversation failed", zap.Error(err))
		return
	}
	if conv.OwnerID != ownerID {
		log.Error("archive: owner mismatch", zap.String("stored_owner_id", conv.OwnerID))
		return
	}

	turns, err := a.store.Turns(ctx, conversationID)
	if err != nil {
		log.Warn("archive: loading turns failed", zap.Error(err))
		return
	}

	total := len(turns)
	if total <= a.config.ShortTermCapacity {
		return
	}

	end := total - a.config.ShortTermCapacity
	start := min(conv.ArchivedTurns, end)
	if start == end {
		log.Debug("archive: nothing new to archive", zap.Int("archived_turns", start))
		return
	}

	chunks := Chunk(turns[start:end], a.config.ChunkSize)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = Flatten(c)
	}

	embs, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		log.Warn("archive: embedding failed", zap.Error(err))
		return
	}
	if len(embs) != len(texts) {
		log.Warn("archive: embedder returned wrong number of vectors",
			zap.Int("want", len(texts)),
			zap.Int("got", len(embs)),
		)
		return
	}

	archivedAt := a.now()
	records := make([]vector.Record, len(chunks))
	first := start
	for i, c := range chunks {
		records[i] = vector.Record{
			ID:        uuid.NewString(),
			Content:   texts[i],
			Embedding: embs[i],
			Metadata: vector.Metadata{
				ConversationID: conversationID,
				OwnerID:        ownerID,
				Kind:           RecordKind,
				ArchivedAt:     archivedAt,
				FirstTurn:      first,
				LastTurn:       first + len(c) - 1,
			},
		}
		first += len(c)
	}

	if err := a.index.Upsert(ctx, vector.Namespace(ownerID), records); err != nil {
		log.Warn("archive: upsert failed", zap.Error(err))
		return
	}

	if err := a.store.MarkArchived(ctx, conversationID, end); err != nil {
		// records are in the index but the watermark did not move, the
		// next run re-archives these turns
		log.Error("archive: advancing watermark failed", zap.Error(err))
		return
	}

	log.Info("archived turns",
		zap.Int("from", start),
		zap.Int("through", end),
		zap.Int("chunks", len(records)),
	)
}

// Chunk splits turns into consecutive groups of size. The last group may
// be smaller but is never empty.
func Chunk(turns []*storage.Turn, size int) [][]*storage.Turn {
	if size <= 0 {
		size = 1
	}

	chunks := make([][]*storage.Turn, 0, (len(turns)+size-1)/size)
	for i := 0; i < len(turns); i += size {
		chunks = append(chunks, turns[i:min(i+size, len(turns))])
	}
	return chunks
}

// Flatten renders turns as "Requester: ..." and "Generator: ..." lines in
// their original order.
func Flatten(turns []*storage.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		if t.Origin == storage.OriginGenerator {
			b.WriteString("Generator: ")
		} else {
			b.WriteString("Requester: ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}
