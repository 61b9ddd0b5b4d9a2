package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/reel/pkg/vector"
	"github.com/papercomputeco/reel/pkg/vector/inmemory"
)

// MockVectorDriver wraps an in-memory driver and can be told to fail.
type MockVectorDriver struct {
	*inmemory.Driver

	mu         sync.Mutex
	upsertErr  error
	queryErr   error
	upserts    int
	namespaces []string
}

func NewMockVectorDriver(dimensions uint) *MockVectorDriver {
	return &MockVectorDriver{Driver: inmemory.NewDriver(dimensions)}
}

// FailUpsert makes following Upsert calls return err.
func (m *MockVectorDriver) FailUpsert(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// FailQuery makes following Query calls return err.
func (m *MockVectorDriver) FailQuery(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryErr = err
}

// Upserts is the number of successful Upsert calls.
func (m *MockVectorDriver) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// QueriedNamespaces lists the namespace of every Query call.
func (m *MockVectorDriver) QueriedNamespaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.namespaces...)
}

func (m *MockVectorDriver) Upsert(ctx context.Context, namespace string, records []vector.Record) error {
	m.mu.Lock()
	err := m.upsertErr
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if err := m.Driver.Upsert(ctx, namespace, records); err != nil {
		return err
	}

	m.mu.Lock()
	m.upserts++
	m.mu.Unlock()
	return nil
}

func (m *MockVectorDriver) Query(ctx context.Context, namespace string, embedding []float32, topK int) ([]vector.Match, error) {
	m.mu.Lock()
	m.namespaces = append(m.namespaces, namespace)
	err := m.queryErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.Driver.Query(ctx, namespace, embedding, topK)
}
