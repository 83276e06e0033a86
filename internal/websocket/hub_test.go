package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelmuse/api/internal/model"
)

func TestEncodeProgress(t *testing.T) {
	data := encode(model.ProgressEvent{
		JobID:     "job-1",
		Progress:  25,
		Step:      "polling",
		Status:    model.JobStatusPolling,
		Timestamp: time.Now(),
	})
	require.NotNil(t, data)

	var msg model.WSProgressMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, model.WSMessageTypeProgress, msg.Type)
	assert.Equal(t, 25, msg.Progress)
	assert.Equal(t, "polling", msg.CurrentStep)
}

func TestEncodeComplete(t *testing.T) {
	data := encode(model.ProgressEvent{
		JobID:    "job-1",
		Progress: 100,
		Status:   model.JobStatusCompleted,
	})
	require.NotNil(t, data)

	var msg model.WSCompleteMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, model.WSMessageTypeComplete, msg.Type)
	assert.Equal(t, 100, msg.Progress)
}

func TestEncodeTerminalFailure(t *testing.T) {
	data := encode(model.ProgressEvent{
		JobID:  "job-1",
		Status: model.JobStatusFailed,
		Error:  model.NewJobError(model.CodeInsufficientCredits, "balance below the 10 credit cost", false),
	})
	require.NotNil(t, data)

	var msg model.WSErrorMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, model.WSMessageTypeError, msg.Type)
	assert.Equal(t, model.CodeInsufficientCredits, msg.Error.Code)
}

func TestEncodeCancelledWithoutError(t *testing.T) {
	data := encode(model.ProgressEvent{
		JobID:  "job-1",
		Status: model.JobStatusCancelled,
	})
	require.NotNil(t, data)

	var msg model.WSErrorMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, model.WSMessageTypeError, msg.Type)
	assert.NotEmpty(t, msg.Error.Message)
}
