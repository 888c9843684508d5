package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"data-chopper/internal/models/entities"
	"data-chopper/internal/pkg/metrics"
	"data-chopper/internal/repository/memory"
)

type poolFixture struct {
	pool    *WorkerPool
	queue   *memory.Queue
	store   *flakyStore
	metrics *metrics.Metrics
	ids     []int64
}

func newPoolFixture(t *testing.T, entries int) *poolFixture {
	t.Helper()

	store, ids := newFlakyStore(entries)
	queue := memory.NewQueue()
	// Часы очереди впереди, чтобы повторы были доступны сразу
	queue.SetClock(func() time.Time { return time.Now().Add(time.Hour) })

	m := metrics.NewNop()
	logger := zaptest.NewLogger(t)
	executor := NewTaskExecutor(store, 0, m, logger)
	pool := NewWorkerPool(queue, executor, WorkerPoolConfig{
		Concurrency:          2,
		PollInterval:         10 * time.Millisecond,
		TTR:                  time.Minute,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
	}, m, logger)

	return &poolFixture{pool: pool, queue: queue, store: store, metrics: m, ids: ids}
}

func (f *poolFixture) push(t *testing.T, ids []int64) *entities.BatchDeletionTask {
	t.Helper()
	task := newTask(ids, entities.ChopPlan{Percent: 100}, 2)
	require.NoError(t, f.queue.Push(context.Background(), task))
	return task
}

func (f *poolFixture) get(t *testing.T, id string) *entities.BatchDeletionTask {
	t.Helper()
	task, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	return task
}

func TestWorkerPool_ProcessNext_Empty(t *testing.T) {
	f := newPoolFixture(t, 0)

	processed, err := f.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestWorkerPool_ProcessNext_Succeeds(t *testing.T) {
	f := newPoolFixture(t, 5)
	task := f.push(t, f.ids)

	processed, err := f.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	stored := f.get(t, task.ID)
	assert.Equal(t, entities.TaskSucceeded, stored.State)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, entities.TaskOutcome{Deleted: 5}, stored.Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TaskAttempts.WithLabelValues(metrics.ResultSucceeded)))
}

func TestWorkerPool_ProcessNext_RetriesUntilSuccess(t *testing.T) {
	f := newPoolFixture(t, 3)
	f.store.failures = 2
	task := f.push(t, f.ids)

	for attempt := 1; attempt <= 2; attempt++ {
		processed, err := f.pool.ProcessNext(context.Background())
		require.NoError(t, err)
		require.True(t, processed)

		stored := f.get(t, task.ID)
		assert.Equal(t, entities.TaskPending, stored.State)
		assert.Equal(t, attempt, stored.Attempts)
		assert.Contains(t, stored.LastError, errStoreUnavailable.Error())
	}

	processed, err := f.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	stored := f.get(t, task.ID)
	assert.Equal(t, entities.TaskSucceeded, stored.State)
	assert.Equal(t, entities.MaxAttempts, stored.Attempts)
	assert.Equal(t, 3, stored.Outcome.Deleted)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TaskAttempts.WithLabelValues(metrics.ResultRetried)))
}

func TestWorkerPool_ProcessNext_FailsAfterMaxAttempts(t *testing.T) {
	f := newPoolFixture(t, 4)
	f.store.failures = 100
	task := f.push(t, f.ids)

	for range entities.MaxAttempts {
		processed, err := f.pool.ProcessNext(context.Background())
		require.NoError(t, err)
		require.True(t, processed)
	}

	stored := f.get(t, task.ID)
	assert.Equal(t, entities.TaskFailed, stored.State)
	assert.Equal(t, entities.MaxAttempts, stored.Attempts)

	// Четвертой попытки не будет
	processed, err := f.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, entities.MaxAttempts, f.store.deleteCalls())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TaskAttempts.WithLabelValues(metrics.ResultFailed)))
}

func TestWorkerPool_ProcessNext_MissingEntriesAfterPartialAttempt(t *testing.T) {
	f := newPoolFixture(t, 4)
	task := f.push(t, f.ids)

	// Часть записей удалена до повторной попытки
	_, err := f.store.Store.Delete(context.Background(), &entities.Record{ID: f.ids[0]}, true)
	require.NoError(t, err)

	processed, err := f.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	stored := f.get(t, task.ID)
	assert.Equal(t, entities.TaskSucceeded, stored.State)
	assert.Equal(t, entities.TaskOutcome{Deleted: 3, Missing: 1}, stored.Outcome)
}

func TestWorkerPool_ProcessNext_ReapedDuringExecution(t *testing.T) {
	f := newPoolFixture(t, 4)
	task := f.push(t, f.ids)

	// пока идет удаление, TTR истекает и сборщик возвращает задачу в очередь
	var once sync.Once
	f.store.onDelete = func() {
		once.Do(func() {
			f.queue.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
			n, err := f.queue.ReapAbandoned(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}

	processed, err := f.pool.ProcessNext(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	stored := f.get(t, task.ID)
	assert.Equal(t, entities.TaskPending, stored.State, "late result must not overwrite the reaped state")
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "time-to-run exceeded", stored.LastError)
	assert.Zero(t, stored.Outcome.Deleted)
}

func TestWorkerPool_RetryDelay(t *testing.T) {
	f := newPoolFixture(t, 0)

	for attempt := 1; attempt < 6; attempt++ {
		delay := f.pool.retryDelay(attempt)
		assert.GreaterOrEqual(t, delay, 500*time.Millisecond)
		assert.LessOrEqual(t, delay, 90*time.Second)
	}
}

func TestWorkerPool_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newPoolFixture(t, 9)
	tasks := []*entities.BatchDeletionTask{
		f.push(t, f.ids[:3]),
		f.push(t, f.ids[3:6]),
		f.push(t, f.ids[6:]),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.pool.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		for _, task := range tasks {
			stored, err := f.queue.Get(context.Background(), task.ID)
			if err != nil || stored.State != entities.TaskSucceeded {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker pool did not stop")
	}

	for _, id := range f.ids {
		exists, _ := f.store.State(id)
		assert.False(t, exists)
	}
}
