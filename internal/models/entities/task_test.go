package entities

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchDeletionTask_Batches(t *testing.T) {
	tests := []struct {
		name      string
		ids       []int64
		batchSize int
		want      [][]int64
	}{
		{name: "empty", ids: nil, batchSize: 10, want: nil},
		{name: "exact", ids: []int64{1, 2, 3, 4}, batchSize: 2, want: [][]int64{{1, 2}, {3, 4}}},
		{name: "remainder", ids: []int64{1, 2, 3, 4, 5}, batchSize: 2, want: [][]int64{{1, 2}, {3, 4}, {5}}},
		{name: "single batch", ids: []int64{1, 2, 3}, batchSize: 50, want: [][]int64{{1, 2, 3}}},
		{name: "no batch size", ids: []int64{1, 2}, batchSize: 0, want: [][]int64{{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewBatchDeletionTask("t", "r", Selection{EntryIDs: tt.ids}, ChopPlan{Percent: 1}, tt.batchSize)
			got := task.Batches()
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewBatchDeletionTask_CopiesSelection(t *testing.T) {
	ids := []int64{1, 2, 3}
	plan := ChopPlan{Percent: 10, SoftDelete: true, DryRun: true, Statuses: []string{"live"}}
	task := NewBatchDeletionTask("t", "r", Selection{CollectionHandle: "blog", Status: "live", EntryIDs: ids}, plan, 2)
	ids[0] = 99
	plan.Statuses[0] = "disabled"

	assert.Equal(t, []int64{1, 2, 3}, task.EntryIDs)
	assert.Equal(t, []string{"live"}, task.Plan.Statuses)
	assert.True(t, task.SoftDelete)
	assert.True(t, task.DryRun)
	assert.Equal(t, TaskPending, task.State)
	assert.Zero(t, task.Attempts)
	assert.Equal(t, "Simulating chop of 3 entries from section 'blog' (status: live)", task.Description())
}

func TestCanRetry(t *testing.T) {
	assert.True(t, CanRetry(1))
	assert.True(t, CanRetry(2))
	assert.False(t, CanRetry(MaxAttempts))
}

func TestTaskExecutionFailure_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&TaskExecutionFailure{TaskID: "t", EntryID: 5, Attempt: 2, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "task t attempt 2: failed to delete entry 5: connection reset", err.Error())
	assert.True(t, TaskSucceeded.Terminal())
	assert.False(t, TaskRunning.Terminal())
}
