package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobAndDecode(t *testing.T) {
	job, err := NewJob(JobTypeProcess, map[string]string{"video_id": "v1"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobTypeProcess, job.Type)
	assert.JSONEq(t, `{"video_id":"v1"}`, string(job.Payload))

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	got, err := DecodeJob(string(raw))
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Type, got.Type)
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	_, err := DecodeJob("{not json")
	assert.Error(t, err)
	_, err = DecodeJob(`{"payload":{}}`)
	assert.Error(t, err)
}
