package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRegistry(t *testing.T) {
	svc := NewService(nil)
	assert.False(t, svc.HasExecutor("plan_generate"))

	done := make(chan string, 1)
	svc.RegisterExecutor("plan_generate", func(ctx context.Context, task *Task) {
		done <- task.ID
	})
	assert.True(t, svc.HasExecutor("plan_generate"))

	require.NoError(t, svc.Dispatch(&Task{ID: "t1", Type: "plan_generate"}))
	select {
	case id := <-done:
		assert.Equal(t, "t1", id)
	case <-time.After(time.Second):
		t.Fatal("executor was not invoked")
	}

	assert.Error(t, svc.Dispatch(&Task{ID: "t2", Type: "unregistered"}))
	assert.Error(t, svc.Dispatch(nil))
}
