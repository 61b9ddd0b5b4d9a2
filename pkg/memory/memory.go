// Package memory implements the two memory tiers that feed the generator.
//
// The short-term tier is a window over the newest turns of a conversation,
// read from the turn store on every exchange. The long-term tier is an
// archive of embedded turn chunks in a vector index, partitioned per owner.
// The [Archiver] moves turns that fall out of the window into the archive,
// the [Retriever] searches it, and the [Assembler] combines both tiers with
// the persona instruction into the payload handed to the generator.
package memory

import (
	"errors"
	"fmt"
)

// RecordKind tags archive records written by the Archiver.
const RecordKind = "conversation_memory"

// Config holds the memory policy. It is passed to every component at
// construction so that alternate values can be exercised in tests.
type Config struct {
	// ShortTermCapacity is the number of newest turns in the window.
	ShortTermCapacity int

	// ChunkSize is the number of turns embedded together as one record.
	ChunkSize int

	// TopK bounds how many fragments retrieval returns.
	TopK int

	// MinScore drops matches scoring below it.
	MinScore float64

	// Dimensions is the embedding length shared by embedder and index.
	Dimensions uint

	// CascadeDelete removes a conversation's archive records when the
	// conversation is deleted. Records are retained by default.
	CascadeDelete bool
}

// DefaultConfig returns the standard policy: a 20 turn window, chunks of 4,
// top 5 fragments scoring at least 0.7.
func DefaultConfig() Config {
	return Config{
		ShortTermCapacity: 20,
		ChunkSize:         4,
		TopK:              5,
		MinScore:          0.7,
		Dimensions:        768,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.ShortTermCapacity <= 0:
		return fmt.Errorf("short term capacity must be positive, got %d", c.ShortTermCapacity)
	case c.ChunkSize <= 0:
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	case c.TopK <= 0:
		return fmt.Errorf("top k must be positive, got %d", c.TopK)
	case c.MinScore < 0 || c.MinScore > 1:
		return fmt.Errorf("min score must be within [0, 1], got %g", c.MinScore)
	case c.Dimensions == 0:
		return errors.New("embedding dimensions cannot be 0")
	}
	return nil
}
