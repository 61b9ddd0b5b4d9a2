// Package generator defines the text generation capability used to answer
// requester messages.
package generator

import (
	"context"
	"iter"

	"github.com/papercomputeco/reel/pkg/llm"
)

// Generator produces a reply given a system instruction and the ordered
// history. The last history entry is the message being answered.
type Generator interface {
	// Generate returns the complete reply.
	Generate(ctx context.Context, system string, history []llm.Message) (string, error)

	// GenerateStream yields reply fragments in order. A non-nil error ends
	// the sequence. Cancelling ctx or breaking out of the range loop
	// releases the underlying connection.
	GenerateStream(ctx context.Context, system string, history []llm.Message) iter.Seq2[string, error]

	Close() error
}
