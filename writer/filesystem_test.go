package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

func newTestWriter(t *testing.T, indent bool) *FileSystemWriter {
	t.Helper()
	w, err := NewFileSystemWriter(Config{
		Directory:    filepath.Join(t.TempDir(), "allure-results"),
		IndentOutput: indent,
		Log:          log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)
	return w
}

func TestNewFileSystemWriter(t *testing.T) {
	_, err := NewFileSystemWriter(Config{})
	assert.Error(t, err)

	w := newTestWriter(t, false)
	info, err := os.Stat(w.Directory())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(w.Directory()))
}

func TestWriteTest(t *testing.T) {
	w := newTestWriter(t, true)
	result := types.NewTestResult("adds numbers")
	result.Status = types.StatusFailed
	result.StatusDetails = &types.StatusDetails{Message: "expected 3, got 4"}

	require.NoError(t, w.WriteTest(result))

	data, err := os.ReadFile(filepath.Join(w.Directory(), result.UUID+"-result.json"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "\n  "), "output is indented")

	var decoded types.TestResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, result.UUID, decoded.UUID)
	assert.Equal(t, types.StatusFailed, decoded.Status)
	assert.Equal(t, "expected 3, got 4", decoded.StatusDetails.Message)
}

func TestWriteContainer(t *testing.T) {
	w := newTestWriter(t, false)
	container := types.NewTestResultContainer("suite")
	container.Children = []string{"a", "b"}
	container.Befores = []*types.FixtureResult{types.NewFixtureResult("setup")}

	require.NoError(t, w.WriteContainer(container))

	data, err := os.ReadFile(filepath.Join(w.Directory(), ContainerFileName(container.UUID)))
	require.NoError(t, err)
	var decoded types.TestResultContainer
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"a", "b"}, decoded.Children)
	require.Len(t, decoded.Befores, 1)
	assert.Equal(t, "setup", decoded.Befores[0].Name)
}

func TestWriteNilEntities(t *testing.T) {
	w := newTestWriter(t, false)
	assert.True(t, types.IsArgumentError(w.WriteTest(nil)))
	assert.True(t, types.IsArgumentError(w.WriteContainer(nil)))
}

func TestWriteBinary(t *testing.T) {
	w := newTestWriter(t, false)
	require.NoError(t, w.WriteBinary("abc-attachment.txt", []byte("hello")))

	data, err := os.ReadFile(filepath.Join(w.Directory(), "abc-attachment.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.Error(t, w.WriteBinary("../escape.txt", []byte("x")))
	assert.Error(t, w.WriteBinary("", []byte("x")))
}

func TestWriteFailurePropagates(t *testing.T) {
	w := newTestWriter(t, false)
	require.NoError(t, os.RemoveAll(w.Directory()))

	err := w.WriteTest(types.NewTestResult("t"))
	assert.Error(t, err)
}

func TestCleanup(t *testing.T) {
	w := newTestWriter(t, false)
	require.NoError(t, w.WriteTest(types.NewTestResult("t")))
	require.NoError(t, w.WriteContainer(types.NewTestResultContainer("c")))
	require.NoError(t, w.WriteBinary("x-attachment.png", []byte{1, 2, 3}))

	require.NoError(t, w.Cleanup())

	entries, err := os.ReadDir(w.Directory())
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Equal(t, LockFileName, entry.Name())
	}

	// The writer keeps working after a cleanup
	require.NoError(t, w.WriteTest(types.NewTestResult("after")))
}

func TestConcurrentWrites(t *testing.T) {
	w := newTestWriter(t, false)
	const n = 50

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return w.WriteTest(types.NewTestResult(fmt.Sprintf("t%d", i)))
		})
		// Every goroutine also rewrites the same binary path
		g.Go(func() error {
			return w.WriteBinary("shared-attachment.txt", []byte(fmt.Sprintf("%03d", i)))
		})
	}
	require.NoError(t, g.Wait())

	matches, err := filepath.Glob(filepath.Join(w.Directory(), "*"+TestResultSuffix))
	require.NoError(t, err)
	assert.Len(t, matches, n)

	data, err := os.ReadFile(filepath.Join(w.Directory(), "shared-attachment.txt"))
	require.NoError(t, err)
	assert.Len(t, data, 3, "a whole write wins, never an interleaving")

	temps, err := filepath.Glob(filepath.Join(w.Directory(), ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, temps)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Empty(t, w.pathLocks)
	assert.Zero(t, w.sharedHolders)
}
