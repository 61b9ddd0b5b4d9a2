package testutils

import (
	"context"
	"iter"
	"sync"

	"github.com/papercomputeco/reel/pkg/llm"
)

// GeneratorCall records the arguments of one Generate or GenerateStream call.
type GeneratorCall struct {
	System  string
	History []llm.Message
}

// MockGenerator is a scripted generator. Generate returns the joined
// Chunks, GenerateStream yields them one by one.
type MockGenerator struct {
	mu sync.Mutex

	// Chunks make up the reply.
	Chunks []string

	// Err fails the call. For streams it is yielded after FailAfter chunks.
	Err       error
	FailAfter int

	// Block makes calls wait for ctx cancellation after yielding Chunks.
	Block bool

	calls []GeneratorCall
}

func NewMockGenerator(chunks ...string) *MockGenerator {
	return &MockGenerator{Chunks: chunks}
}

// Calls returns a copy of every recorded call.
func (m *MockGenerator) Calls() []GeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]GeneratorCall(nil), m.calls...)
}

func (m *MockGenerator) record(system string, history []llm.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, GeneratorCall{
		System:  system,
		History: append([]llm.Message(nil), history...),
	})
}

func (m *MockGenerator) Generate(ctx context.Context, system string, history []llm.Message) (string, error) {
	m.record(system, history)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	var out string
	for _, c := range m.Chunks {
		out += c
	}
	return out, nil
}

func (m *MockGenerator) GenerateStream(ctx context.Context, system string, history []llm.Message) iter.Seq2[string, error] {
	m.record(system, history)
	return func(yield func(string, error) bool) {
		for i, c := range m.Chunks {
			if m.Err != nil && i == m.FailAfter {
				yield("", m.Err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
		if m.Err != nil {
			yield("", m.Err)
			return
		}
		if m.Block {
			<-ctx.Done()
			yield("", ctx.Err())
		}
	}
}

func (m *MockGenerator) Close() error {
	return nil
}
