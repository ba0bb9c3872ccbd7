package writer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

var _ Writer = (*MemoryWriter)(nil)

// MemoryWriter keeps written results in memory. Entities are copied at write
// time, so later mutations of the originals are not visible through it.
type MemoryWriter struct {
	mu          sync.Mutex
	tests       map[string]*types.TestResult
	containers  map[string]*types.TestResultContainer
	binaries    map[string][]byte
	writeErr    error
	cleanupRuns int
}

// NewMemoryWriter creates an empty in-memory writer
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{
		tests:      make(map[string]*types.TestResult),
		containers: make(map[string]*types.TestResultContainer),
		binaries:   make(map[string][]byte),
	}
}

// FailWith makes every following write return err; nil restores normal operation
func (w *MemoryWriter) FailWith(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writeErr = err
}

func (w *MemoryWriter) WriteTest(result *types.TestResult) error {
	if result == nil {
		return types.NewArgumentError("test result")
	}
	copied, err := clone(result)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	if _, exists := w.tests[result.UUID]; exists {
		return fmt.Errorf("test result %s written twice", result.UUID)
	}
	w.tests[result.UUID] = copied
	return nil
}

func (w *MemoryWriter) WriteContainer(container *types.TestResultContainer) error {
	if container == nil {
		return types.NewArgumentError("container")
	}
	copied, err := clone(container)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	if _, exists := w.containers[container.UUID]; exists {
		return fmt.Errorf("container %s written twice", container.UUID)
	}
	w.containers[container.UUID] = copied
	return nil
}

func (w *MemoryWriter) WriteBinary(name string, content []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.binaries[name] = append([]byte(nil), content...)
	return nil
}

func (w *MemoryWriter) Cleanup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tests = make(map[string]*types.TestResult)
	w.containers = make(map[string]*types.TestResultContainer)
	w.binaries = make(map[string][]byte)
	w.cleanupRuns++
	return nil
}

// Test returns the written test result with the given uuid
func (w *MemoryWriter) Test(uuid string) (*types.TestResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tests[uuid]
	return t, ok
}

// Container returns the written container with the given uuid
func (w *MemoryWriter) Container(uuid string) (*types.TestResultContainer, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.containers[uuid]
	return c, ok
}

// Binary returns the content written under name
func (w *MemoryWriter) Binary(name string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.binaries[name]
	return b, ok
}

// Tests returns every written test result
func (w *MemoryWriter) Tests() []*types.TestResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*types.TestResult, 0, len(w.tests))
	for _, t := range w.tests {
		out = append(out, t)
	}
	return out
}

// Containers returns every written container
func (w *MemoryWriter) Containers() []*types.TestResultContainer {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*types.TestResultContainer, 0, len(w.containers))
	for _, c := range w.containers {
		out = append(out, c)
	}
	return out
}

// CleanupRuns returns how many times Cleanup was called
func (w *MemoryWriter) CleanupRuns() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cleanupRuns
}

func clone[T any](v *T) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return out, nil
}
