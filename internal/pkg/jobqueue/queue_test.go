package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func offlineClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueueWithClient(offlineClient(t), tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.NotNil(t, queue.workerPool)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.stopCh)
			assert.False(t, queue.running)
			assert.Empty(t, queue.handlers)
		})
	}
}

func TestQueue_Handle(t *testing.T) {
	queue := NewQueueWithClient(offlineClient(t), 1)
	assert.Nil(t, queue.handlerFor(JobTypeSendEmail))

	queue.Handle(JobTypeSendEmail, func(_ context.Context, _ *Job) error { return nil })
	assert.NotNil(t, queue.handlerFor(JobTypeSendEmail))
	assert.Nil(t, queue.handlerFor(JobTypeMediaJobFinished))
}

func TestQueue_StopWithoutStart(t *testing.T) {
	queue := NewQueueWithClient(offlineClient(t), 1)
	queue.Stop()
	assert.False(t, queue.running)
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_stats", JobStatsKey)

	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
}
