package metrics

import (
	"errors"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-allure/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordErrorDetails(t *testing.T) {
	// Test with nil error
	RecordErrorDetails("test", nil)

	before := testutil.ToFloat64(errorsTotal.WithLabelValues("test.sample_error"))
	RecordErrorDetails("test", errors.New("sample error"))
	assert.Equal(t, before+1, testutil.ToFloat64(errorsTotal.WithLabelValues("test.sample_error")))
}

func TestRecordLifecycleEvent(t *testing.T) {
	counter := lifecycleEventsTotal.WithLabelValues(EntityStep, EventStarted)
	before := testutil.ToFloat64(counter)
	RecordLifecycleEvent(EntityStep, EventStarted)
	RecordLifecycleEvent(EntityStep, EventStarted)
	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestRecordWrite(t *testing.T) {
	written := resultsWrittenTotal.WithLabelValues(EntityTest, "passed")
	none := resultsWrittenTotal.WithLabelValues(EntityContainer, "none")
	failed := writeErrorsTotal.WithLabelValues(EntityTest)

	beforeWritten := testutil.ToFloat64(written)
	beforeNone := testutil.ToFloat64(none)
	beforeFailed := testutil.ToFloat64(failed)

	RecordWrite(EntityTest, types.StatusPassed, nil)
	RecordWrite(EntityContainer, types.StatusNone, nil)
	RecordWrite(EntityTest, types.StatusPassed, errors.New("disk full"))

	assert.Equal(t, beforeWritten+1, testutil.ToFloat64(written))
	assert.Equal(t, beforeNone+1, testutil.ToFloat64(none))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestRecordAttachment(t *testing.T) {
	beforeCount := testutil.ToFloat64(attachmentsTotal)
	beforeBytes := testutil.ToFloat64(attachmentBytesTotal)

	RecordAttachment(128)

	assert.Equal(t, beforeCount+1, testutil.ToFloat64(attachmentsTotal))
	assert.Equal(t, beforeBytes+128, testutil.ToFloat64(attachmentBytesTotal))
}
