package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/reel/pkg/embeddings"
	"github.com/papercomputeco/reel/pkg/vector"
)

// Fragment is a piece of the long-term archive returned by retrieval.
type Fragment struct {
	Content        string    `json:"content"`
	Score          float32   `json:"score"`
	ConversationID string    `json:"conversationId"`
	ArchivedAt     time.Time `json:"archivedAt"`
}

// Retriever searches an owner's archive for fragments relevant to a query.
type Retriever struct {
	embedder embeddings.Embedder
	index    vector.VectorDriver
	config   Config
	logger   *zap.Logger
}

func NewRetriever(embedder embeddings.Embedder, index vector.VectorDriver, c Config, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		config:   c,
		logger:   logger,
	}
}

// Retrieve returns at most TopK fragments scoring at least MinScore, best
// first, searched only within ownerID's namespace. Failures are logged and
// yield an empty result so that an unavailable archive never fails an
// exchange.
func (r *Retriever) Retrieve(ctx context.Context, query, ownerID string) []Fragment {
	if strings.TrimSpace(query) == "" || ownerID == "" {
		return []Fragment{}
	}

	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("memory retrieval embedding failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		return []Fragment{}
	}

	matches, err := r.index.Query(ctx, vector.Namespace(ownerID), emb, r.config.TopK)
	if err != nil {
		r.logger.Warn("memory retrieval query failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
		return []Fragment{}
	}

	kept := make([]vector.Match, 0, len(matches))
	for _, m := range matches {
		if float64(m.Score) < r.config.MinScore {
			continue
		}
		if m.Metadata.OwnerID != ownerID {
			r.logger.Error("discarding archive record from another owner",
				zap.String("owner_id", ownerID),
				zap.String("record_id", m.ID),
			)
			continue
		}
		kept = append(kept, m)
	}

	// ties keep the index's order
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if len(kept) > r.config.TopK {
		kept = kept[:r.config.TopK]
	}

	fragments := make([]Fragment, len(kept))
	for i, m := range kept {
		fragments[i] = Fragment{
			Content:        m.Content,
			Score:          vector.Clamp(m.Score),
			ConversationID: m.Metadata.ConversationID,
			ArchivedAt:     m.Metadata.ArchivedAt,
		}
	}

	r.logger.Debug("memory retrieval",
		zap.String("owner_id", ownerID),
		zap.Int("matches", len(matches)),
		zap.Int("fragments", len(fragments)),
	)
	return fragments
}
