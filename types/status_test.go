package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type assertionError struct{ msg string }

func (e *assertionError) Error() string { return e.msg }

func TestStageCanAdvanceTo(t *testing.T) {
	tests := []struct {
		from, to Stage
		want     bool
	}{
		{StageNone, StageScheduled, true},
		{StageNone, StageRunning, true},
		{StageScheduled, StageRunning, true},
		{StageScheduled, StageFinished, true},
		{StageRunning, StageFinished, true},
		{StageRunning, StageRunning, false},
		{StageFinished, StageRunning, false},
		{StageFinished, StageScheduled, false},
		{StageFinished, StageFinished, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q->%q", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestDetermineStatus(t *testing.T) {
	failTypes := []string{"*types.assertionError"}

	assert.Equal(t, StatusPassed, DetermineStatus(nil, failTypes))
	assert.Equal(t, StatusFailed, DetermineStatus(&assertionError{"expected 1"}, failTypes))
	assert.Equal(t, StatusFailed, DetermineStatus(fmt.Errorf("wrapped: %w", &assertionError{"x"}), failTypes))
	assert.Equal(t, StatusBroken, DetermineStatus(errors.New("boom"), failTypes))
	assert.Equal(t, StatusBroken, DetermineStatus(&assertionError{"x"}, nil))
}

func TestNewStatusDetails(t *testing.T) {
	assert.Nil(t, NewStatusDetails(nil))

	details := NewStatusDetails(errors.New("\x1b[31mred failure\x1b[0m"))
	require.NotNil(t, details)
	assert.Equal(t, "red failure", details.Message)
	assert.Empty(t, details.Trace)

	wrapped := fmt.Errorf("outer: %w", errors.New("inner"))
	details = NewStatusDetails(wrapped)
	assert.Equal(t, "outer: inner", details.Message)
	assert.Contains(t, details.Trace, "inner")
}

func TestTestResultJSONShape(t *testing.T) {
	tr := NewTestResult("adds numbers")
	tr.FullName = "calc.TestAdd"
	tr.Status = StatusPassed
	tr.Stage = StageFinished
	tr.AddLabel(LabelSuite, "calc")
	tr.AddParameter("a", "1")
	tr.Steps = append(tr.Steps, NewStepResult("step one"))

	data, err := json.Marshal(tr)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, tr.UUID, raw["uuid"])
	assert.Equal(t, "adds numbers", raw["name"])
	assert.Equal(t, "passed", raw["status"])
	assert.Equal(t, "finished", raw["stage"])
	assert.Len(t, raw["steps"], 1)
	assert.Len(t, raw["labels"], 1)
	assert.NotContains(t, raw, "statusDetails")
	assert.NotContains(t, raw, "links")
}

func TestContainerHasChild(t *testing.T) {
	c := NewTestResultContainer("suite")
	assert.NotEmpty(t, c.UUID)
	assert.False(t, c.HasChild("a"))
	c.Children = append(c.Children, "a")
	assert.True(t, c.HasChild("a"))
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsArgumentError(fmt.Errorf("x: %w", NewArgumentError("step"))))
	assert.True(t, IsInvalidStateError(NewInvalidStateError("bad nesting")))
	assert.Equal(t, "bad nesting", NewInvalidStateError("bad nesting").Error())
	assert.True(t, IsNotFoundError(NewNotFoundError("id", false)))
	assert.False(t, IsNotFoundError(nil))
	assert.Equal(t, "entity id has already been written", NewNotFoundError("id", true).Error())
}
