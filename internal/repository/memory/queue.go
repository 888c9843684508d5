package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"data-chopper/internal/models/entities"
)

// Queue - очередь задач в памяти процесса с той же семантикой, что и очередь в PostgreSQL
type Queue struct {
	mu          sync.Mutex
	tasks       map[string]*entities.BatchDeletionTask
	order       []string
	lockedUntil map[string]time.Time
	now         func() time.Time
}

// NewQueue создает пустую очередь
func NewQueue() *Queue {
	return &Queue{
		tasks:       make(map[string]*entities.BatchDeletionTask),
		lockedUntil: make(map[string]time.Time),
		now:         time.Now,
	}
}

// SetClock подменяет источник времени
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *Queue) Push(_ context.Context, task *entities.BatchDeletionTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored := cloneTask(task)
	stored.State = entities.TaskPending
	if stored.RunAfter.IsZero() {
		stored.RunAfter = q.now()
	}

	if _, exists := q.tasks[stored.ID]; !exists {
		q.order = append(q.order, stored.ID)
	}
	q.tasks[stored.ID] = stored
	return nil
}

func (q *Queue) Claim(_ context.Context, ttr time.Duration) (*entities.BatchDeletionTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, id := range q.order {
		task := q.tasks[id]
		if task.State != entities.TaskPending || task.RunAfter.After(now) {
			continue
		}

		task.State = entities.TaskRunning
		task.UpdatedAt = now
		q.lockedUntil[id] = now.Add(ttr)
		return cloneTask(task), nil
	}
	return nil, nil
}

func (q *Queue) Complete(_ context.Context, taskID string, attempts int, outcome entities.TaskOutcome) error {
	return q.update(taskID, attempts, func(task *entities.BatchDeletionTask) {
		task.State = entities.TaskSucceeded
		task.Attempts = attempts
		task.Outcome = outcome
	})
}

func (q *Queue) Retry(_ context.Context, taskID string, attempts int, runAfter time.Time, cause string) error {
	return q.update(taskID, attempts, func(task *entities.BatchDeletionTask) {
		task.State = entities.TaskPending
		task.Attempts = attempts
		task.RunAfter = runAfter
		task.LastError = cause
	})
}

func (q *Queue) Fail(_ context.Context, taskID string, attempts int, cause string) error {
	return q.update(taskID, attempts, func(task *entities.BatchDeletionTask) {
		task.State = entities.TaskFailed
		task.Attempts = attempts
		task.LastError = cause
	})
}

func (q *Queue) ReapAbandoned(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	reaped := 0
	for id, deadline := range q.lockedUntil {
		task := q.tasks[id]
		if task.State != entities.TaskRunning || !deadline.Before(now) {
			continue
		}

		task.Attempts++
		task.LastError = "time-to-run exceeded"
		task.UpdatedAt = now
		if entities.CanRetry(task.Attempts) {
			task.State = entities.TaskPending
			task.RunAfter = now
		} else {
			task.State = entities.TaskFailed
		}
		delete(q.lockedUntil, id)
		reaped++
	}
	return reaped, nil
}

func (q *Queue) Get(_ context.Context, taskID string) (*entities.BatchDeletionTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return nil, entities.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (q *Queue) ListByRun(_ context.Context, runID string) ([]entities.BatchDeletionTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]entities.BatchDeletionTask, 0)
	for _, id := range q.order {
		if task := q.tasks[id]; task.RunID == runID {
			tasks = append(tasks, *cloneTask(task))
		}
	}
	return tasks, nil
}

// update применяет переход, только если задача все еще захвачена попыткой attempts
func (q *Queue) update(taskID string, attempts int, apply func(task *entities.BatchDeletionTask)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return entities.ErrTaskNotFound
	}
	if task.State != entities.TaskRunning || task.Attempts != attempts-1 {
		return fmt.Errorf("task %s: %w", taskID, entities.ErrTaskLost)
	}

	apply(task)
	task.UpdatedAt = q.now()
	delete(q.lockedUntil, taskID)
	return nil
}

func cloneTask(task *entities.BatchDeletionTask) *entities.BatchDeletionTask {
	c := *task
	c.EntryIDs = slices.Clone(task.EntryIDs)
	c.Plan = task.Plan.Clone()
	return &c
}
