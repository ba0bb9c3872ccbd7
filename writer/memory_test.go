package writer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

func TestMemoryWriterCopiesAtWriteTime(t *testing.T) {
	w := NewMemoryWriter()
	result := types.NewTestResult("t")
	result.Status = types.StatusPassed

	require.NoError(t, w.WriteTest(result))
	result.Status = types.StatusBroken

	written, ok := w.Test(result.UUID)
	require.True(t, ok)
	assert.Equal(t, types.StatusPassed, written.Status)
	assert.NotSame(t, result, written)
}

func TestMemoryWriterRejectsDoubleWrite(t *testing.T) {
	w := NewMemoryWriter()
	result := types.NewTestResult("t")
	require.NoError(t, w.WriteTest(result))
	assert.Error(t, w.WriteTest(result))

	container := types.NewTestResultContainer("c")
	require.NoError(t, w.WriteContainer(container))
	assert.Error(t, w.WriteContainer(container))
}

func TestMemoryWriterFailWith(t *testing.T) {
	w := NewMemoryWriter()
	diskFull := errors.New("disk full")
	w.FailWith(diskFull)

	assert.ErrorIs(t, w.WriteTest(types.NewTestResult("t")), diskFull)
	assert.ErrorIs(t, w.WriteContainer(types.NewTestResultContainer("c")), diskFull)
	assert.ErrorIs(t, w.WriteBinary("x", nil), diskFull)

	w.FailWith(nil)
	assert.NoError(t, w.WriteTest(types.NewTestResult("t")))
}

func TestMemoryWriterCleanup(t *testing.T) {
	w := NewMemoryWriter()
	require.NoError(t, w.WriteTest(types.NewTestResult("t")))
	require.NoError(t, w.WriteBinary("a", []byte("x")))
	require.NoError(t, w.Cleanup())

	assert.Empty(t, w.Tests())
	assert.Empty(t, w.Containers())
	_, ok := w.Binary("a")
	assert.False(t, ok)
	assert.Equal(t, 1, w.CleanupRuns())
}
