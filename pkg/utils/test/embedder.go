package testutils

import (
	"context"
	"hash/fnv"
	"sync"
)

// MockEmbedder is a test embedder that returns predictable embeddings.
// Texts present in Embeddings get that vector, anything else gets a
// deterministic vector derived from a hash of the text.
type MockEmbedder struct {
	mu         sync.Mutex
	dimensions uint
	embeddings map[string][]float32
	failErr    error
	skew       int
	calls      int
	texts      []string
}

func NewMockEmbedder(dimensions uint) *MockEmbedder {
	return &MockEmbedder{
		dimensions: dimensions,
		embeddings: make(map[string][]float32),
	}
}

// Set pins the vector returned for text.
func (m *MockEmbedder) Set(text string, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embeddings[text] = embedding
}

// FailWith makes every following call return err. A nil err restores
// normal behavior.
func (m *MockEmbedder) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// SkewBatch makes EmbedBatch return len(texts)+delta vectors, simulating a
// provider that drops or duplicates results.
func (m *MockEmbedder) SkewBatch(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skew = delta
}

// Calls is the number of Embed and EmbedBatch invocations so far.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Texts lists every text embedded so far, in call order.
func (m *MockEmbedder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failErr != nil {
		return nil, m.failErr
	}
	m.texts = append(m.texts, text)
	return m.vectorFor(text), nil
}

func (m *MockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.failErr != nil {
		return nil, m.failErr
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		m.texts = append(m.texts, text)
		out = append(out, m.vectorFor(text))
	}
	switch {
	case m.skew < 0:
		out = out[:max(len(out)+m.skew, 0)]
	case m.skew > 0:
		for range m.skew {
			out = append(out, m.vectorFor("extra"))
		}
	}
	return out, nil
}

func (m *MockEmbedder) vectorFor(text string) []float32 {
	if emb, ok := m.embeddings[text]; ok {
		return emb
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	emb := make([]float32, m.dimensions)
	emb[int(h.Sum32()%uint32(m.dimensions))] = 1
	return emb
}

func (m *MockEmbedder) Dimensions() uint {
	return m.dimensions
}

func (m *MockEmbedder) Close() error {
	return nil
}
