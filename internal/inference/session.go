package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrMissingOutput is returned when a model result lacks a named output.
var ErrMissingOutput = errors.New("missing model output")

// Session runs a loaded model on named input tensors. Run may block on the
// backend and must honour ctx cancellation.
type Session interface {
	Run(ctx context.Context, inputs map[string]Tensor) (map[string]Tensor, error)

	// Close releases any resources held by the session.
	Close() error
}

// Output fetches a named output or returns ErrMissingOutput.
func Output(outputs map[string]Tensor, name string) (Tensor, error) {
	t, ok := outputs[name]
	if !ok {
		return Tensor{}, fmt.Errorf("%w: %s", ErrMissingOutput, name)
	}
	return t, nil
}

// MockSession is a test implementation of the Session interface.
// Results are returned in the order they were queued; the last one repeats.
type MockSession struct {
	mu      sync.Mutex
	results []mockResult
	calls   []map[string]Tensor
}

type mockResult struct {
	outputs map[string]Tensor
	err     error
}

// NewMockSession creates a new MockSession instance.
func NewMockSession() *MockSession {
	return &MockSession{}
}

// QueueOutputs adds a result that Run will return.
func (m *MockSession) QueueOutputs(outputs map[string]Tensor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, mockResult{outputs: outputs})
}

// QueueError adds an error that Run will return.
func (m *MockSession) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, mockResult{err: err})
}

// Calls returns the inputs of every Run call so far.
func (m *MockSession) Calls() []map[string]Tensor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]Tensor(nil), m.calls...)
}

// Run returns the next queued result.
func (m *MockSession) Run(ctx context.Context, inputs map[string]Tensor) (map[string]Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, inputs)
	if len(m.results) == 0 {
		return nil, errors.New("mock session has no queued results")
	}
	next := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return next.outputs, next.err
}

// Close is a no-op for the mock session.
func (m *MockSession) Close() error {
	return nil
}
