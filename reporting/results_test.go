package reporting

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	allure "github.com/ethereum-optimism/infra/op-allure"
	"github.com/ethereum-optimism/infra/op-allure/types"
)

// recordRun writes one container holding a passing, a failing and a broken test
func recordRun(t *testing.T, dir string) {
	t.Helper()
	l, err := allure.New(allure.Config{
		Directory:      dir,
		FailExceptions: []string{"*reporting.assertionError"},
		Log:            log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)
	ctx := l.Fork(context.Background())

	require.NoError(t, l.StartTestContainer(ctx, types.NewTestResultContainer("suite")))
	outcomes := []struct {
		name  string
		suite string
		err   error
	}{
		{"passes", "math", nil},
		{"fails", "math", &assertionError{"expected 3"}},
		{"breaks", "", errors.New("connection refused")},
	}
	for _, o := range outcomes {
		test := types.NewTestResult(o.name)
		if o.suite != "" {
			test.AddLabel(types.LabelSuite, o.suite)
		}
		require.NoError(t, l.StartTestCase(ctx, test))
		require.NoError(t, l.AddAttachment(ctx, "log", "text/plain", []byte(o.name), ""))
		status := l.StatusFor(o.err)
		require.NoError(t, l.UpdateTestCase(ctx, func(tr *types.TestResult) { tr.SetStatus(status, o.err) }))
		require.NoError(t, l.StopTestCase(ctx))
		require.NoError(t, l.WriteTestCase(ctx))
	}
	require.NoError(t, l.StopTestContainer(ctx))
	require.NoError(t, l.WriteTestContainer(ctx))
}

type assertionError struct {
	msg string
}

func (e *assertionError) Error() string {
	return e.msg
}

func TestLoadResults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "allure-results")
	recordRun(t, dir)

	summary, err := LoadResults(context.Background(), log.NewLogger(log.DiscardHandler()), dir)
	require.NoError(t, err)

	assert.Len(t, summary.Tests, 3)
	require.Len(t, summary.Containers, 1)
	assert.Len(t, summary.Containers[0].Children, 3)
	assert.Equal(t, 3, summary.Attachments)
	assert.Equal(t, 1, summary.Count(types.StatusPassed))
	assert.Equal(t, 1, summary.Count(types.StatusFailed))
	assert.Equal(t, 1, summary.Count(types.StatusBroken))
	assert.True(t, summary.Failed())

	suites := summary.Suites()
	assert.Len(t, suites["math"], 2)
	assert.Len(t, suites[NoSuite], 1)

	err = NewTestFailureError(summary)
	assert.True(t, IsTestFailureError(err))
	assert.Equal(t, "test failure: 1 failed, 1 broken", err.Error())
}

func TestLoadResultsErrors(t *testing.T) {
	_, err := LoadResults(context.Background(), log.NewLogger(log.DiscardHandler()), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-result.json"), []byte("{"), 0644))
	_, err = LoadResults(context.Background(), log.NewLogger(log.DiscardHandler()), dir)
	assert.ErrorContains(t, err, "bad-result.json")
}

func TestSummaryDuration(t *testing.T) {
	summary := &Summary{Tests: []*types.TestResult{
		{ExecutableItem: types.ExecutableItem{Start: 1000, Stop: 1500}},
		{ExecutableItem: types.ExecutableItem{Start: 1200, Stop: 3000}},
	}}
	assert.Equal(t, "2.0s", formatDuration(summary.Duration()))
	assert.Zero(t, (&Summary{}).Duration())
	assert.False(t, (&Summary{}).Failed())
}

func TestFormatSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "allure-results")
	recordRun(t, dir)
	summary, err := LoadResults(context.Background(), log.NewLogger(log.DiscardHandler()), dir)
	require.NoError(t, err)

	var out bytes.Buffer
	FormatSummary(&out, summary, "Nightly")
	rendered := out.String()

	assert.Contains(t, rendered, "Nightly")
	assert.Contains(t, rendered, "math")
	assert.Contains(t, rendered, NoSuite)
	assert.Contains(t, rendered, "passes")
	assert.Contains(t, rendered, "expected 3")
	assert.Contains(t, rendered, "connection refused")
	assert.True(t, strings.Contains(rendered, "TOTAL"))
}

func TestSuiteStatus(t *testing.T) {
	withStatuses := func(statuses ...types.Status) *Summary {
		s := &Summary{}
		for _, status := range statuses {
			s.Tests = append(s.Tests, &types.TestResult{ExecutableItem: types.ExecutableItem{Status: status}})
		}
		return s
	}

	assert.Equal(t, types.StatusNone, suiteStatus(withStatuses()))
	assert.Equal(t, types.StatusPassed, suiteStatus(withStatuses(types.StatusPassed, types.StatusSkipped)))
	assert.Equal(t, types.StatusFailed, suiteStatus(withStatuses(types.StatusPassed, types.StatusFailed)))
	assert.Equal(t, types.StatusBroken, suiteStatus(withStatuses(types.StatusFailed, types.StatusBroken)))
	assert.Equal(t, types.StatusSkipped, suiteStatus(withStatuses(types.StatusSkipped)))
}

func TestRuntimeError(t *testing.T) {
	inner := errors.New("no such directory")
	err := NewRuntimeError(inner)
	assert.True(t, IsRuntimeError(err))
	assert.ErrorIs(t, err, inner)
	assert.False(t, IsRuntimeError(inner))
	assert.False(t, IsTestFailureError(err))
}
