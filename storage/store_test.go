package storage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

func TestPutGetRemove(t *testing.T) {
	s := New()
	test := types.NewTestResult("t")

	require.NoError(t, s.Put(test.UUID, test))
	assert.True(t, s.Contains(test.UUID))
	assert.Equal(t, 1, s.Len())

	got, err := s.Get(test.UUID)
	require.NoError(t, err)
	assert.Same(t, test, got)

	removed, err := s.Remove(test.UUID)
	require.NoError(t, err)
	assert.Same(t, test, removed)
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains(test.UUID))
}

func TestUnknownID(t *testing.T) {
	s := New()

	_, err := s.Get("missing")
	require.True(t, types.IsNotFoundError(err))
	assert.EqualError(t, err, "entity missing not found")

	_, err = s.Remove("missing")
	assert.True(t, types.IsNotFoundError(err))
}

func TestRemovedIDFailsLoudly(t *testing.T) {
	s := New()
	test := types.NewTestResult("t")
	require.NoError(t, s.Put(test.UUID, test))
	_, err := s.Remove(test.UUID)
	require.NoError(t, err)

	_, err = s.Get(test.UUID)
	assert.EqualError(t, err, fmt.Sprintf("entity %s has already been written", test.UUID))

	_, err = s.Remove(test.UUID)
	assert.True(t, types.IsNotFoundError(err))

	err = s.Put(test.UUID, test)
	assert.True(t, types.IsNotFoundError(err))
}

func TestPutRejectsLiveID(t *testing.T) {
	s := New()
	test := types.NewTestResult("t")
	require.NoError(t, s.Put(test.UUID, test))

	other := types.NewTestResult("other")
	err := s.Put(test.UUID, other)
	assert.True(t, types.IsInvalidStateError(err))
	assert.True(t, types.IsInvalidStateError(s.Put(test.UUID, test)))

	got, err := s.Get(test.UUID)
	require.NoError(t, err)
	assert.Same(t, test, got)
}

func TestPutValidation(t *testing.T) {
	s := New()
	assert.Error(t, s.Put("", types.NewTestResult("t")))
	assert.True(t, types.IsArgumentError(s.Put("id", nil)))
}

func TestTypedAccess(t *testing.T) {
	s := New()
	container := types.NewTestResultContainer("c")
	require.NoError(t, s.Put(container.UUID, container))

	got, err := Get[*types.TestResultContainer](s, container.UUID)
	require.NoError(t, err)
	assert.Same(t, container, got)

	_, err = Get[*types.TestResult](s, container.UUID)
	require.Error(t, err)
	assert.False(t, types.IsNotFoundError(err))

	_, err = Remove[*types.TestResult](s, container.UUID)
	require.Error(t, err)
	assert.True(t, s.Contains(container.UUID), "wrong type must not remove the entity")

	removed, err := Remove[*types.TestResultContainer](s, container.UUID)
	require.NoError(t, err)
	assert.Same(t, container, removed)

	_, err = Get[*types.TestResultContainer](s, container.UUID)
	assert.True(t, types.IsNotFoundError(err))
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	const workers = 16
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				test := types.NewTestResult(fmt.Sprintf("w%d-%d", w, i))
				assert.NoError(t, s.Put(test.UUID, test))
				got, err := Get[*types.TestResult](s, test.UUID)
				assert.NoError(t, err)
				assert.Same(t, test, got)
				if i%2 == 0 {
					_, err = s.Remove(test.UUID)
					assert.NoError(t, err)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker/2, s.Len())
}
