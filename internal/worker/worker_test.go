package worker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipreview/backend/pkg/queue"
)

func TestTaskFromJob(t *testing.T) {
	task := Task{Kind: KindTranscribe, VideoID: uuid.New()}
	job, err := queue.NewJob(queue.JobTypeTranscribe, task)
	require.NoError(t, err)

	got, err := TaskFromJob(job)
	require.NoError(t, err)
	assert.Equal(t, task, got)
}

func TestTaskFromJobRejects(t *testing.T) {
	job, err := queue.NewJob(queue.JobTypeProcess, Task{Kind: KindTranscribe, VideoID: uuid.New()})
	require.NoError(t, err)
	_, err = TaskFromJob(job)
	assert.Error(t, err, "type mismatch")

	job, err = queue.NewJob("thumbnail", Task{Kind: "thumbnail", VideoID: uuid.New()})
	require.NoError(t, err)
	_, err = TaskFromJob(job)
	assert.Error(t, err, "unknown kind")

	_, err = TaskFromJob(&queue.Job{ID: "x", Type: queue.JobTypeProcess, Payload: []byte("nope")})
	assert.Error(t, err)
}
