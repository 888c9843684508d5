package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"data-chopper/internal/models/entities"
)

const taskColumns = `id, payload, state, attempts, last_error, deleted_count, missing_count, simulated_count, run_after, created_at, updated_at`

// TaskRepository реализует очередь задач удаления поверх таблицы chop_tasks
type TaskRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewTaskRepository создает новый экземпляр очереди задач в PostgreSQL
func NewTaskRepository(db *sqlx.DB, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

type taskRow struct {
	ID        string    `db:"id"`
	Payload   []byte    `db:"payload"`
	State     string    `db:"state"`
	Attempts  int       `db:"attempts"`
	LastError string    `db:"last_error"`
	Deleted   int       `db:"deleted_count"`
	Missing   int       `db:"missing_count"`
	Simulated int       `db:"simulated_count"`
	RunAfter  time.Time `db:"run_after"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row taskRow) toTask() (*entities.BatchDeletionTask, error) {
	var task entities.BatchDeletionTask
	if err := json.Unmarshal(row.Payload, &task); err != nil {
		return nil, fmt.Errorf("decode task %s payload: %w", row.ID, err)
	}

	// Состояние в колонках новее, чем снимок в payload
	task.ID = row.ID
	task.State = entities.TaskState(row.State)
	task.Attempts = row.Attempts
	task.LastError = row.LastError
	task.Outcome = entities.TaskOutcome{Deleted: row.Deleted, Missing: row.Missing, Simulated: row.Simulated}
	task.RunAfter = row.RunAfter
	task.CreatedAt = row.CreatedAt
	task.UpdatedAt = row.UpdatedAt
	return &task, nil
}

// Push сохраняет задачу в очередь
func (r *TaskRepository) Push(ctx context.Context, task *entities.BatchDeletionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task payload: %w", err)
	}

	runAfter := task.RunAfter
	if runAfter.IsZero() {
		runAfter = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO chop_tasks (id, run_id, collection_handle, status, payload, state, attempts, max_attempts, run_after)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8)`,
		task.ID, task.RunID, task.CollectionHandle, task.Status, payload, task.Attempts, entities.MaxAttempts, runAfter)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.ID, err)
	}
	return nil
}

// Claim захватывает самую старую готовую задачу, пропуская строки, заблокированные другими исполнителями
func (r *TaskRepository) Claim(ctx context.Context, ttr time.Duration) (*entities.BatchDeletionTask, error) {
	var row taskRow
	err := r.db.GetContext(ctx, &row, `
		WITH next_task AS (
			SELECT id FROM chop_tasks
			WHERE state = 'pending' AND run_after <= now()
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE chop_tasks t
		SET state = 'running', locked_until = now() + make_interval(secs => $1), updated_at = now()
		FROM next_task
		WHERE t.id = next_task.id
		RETURNING t.id, t.payload, t.state, t.attempts, t.last_error, t.deleted_count,
			t.missing_count, t.simulated_count, t.run_after, t.created_at, t.updated_at`,
		ttr.Seconds())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return row.toTask()
}

// Complete отмечает задачу выполненной.
// Обновления состояния применяются, только пока задача захвачена попыткой attempts.
func (r *TaskRepository) Complete(ctx context.Context, taskID string, attempts int, outcome entities.TaskOutcome) error {
	return r.settle(ctx, taskID, `
		UPDATE chop_tasks
		SET state = 'succeeded', attempts = $2, deleted_count = $3, missing_count = $4,
			simulated_count = $5, locked_until = NULL, updated_at = now()
		WHERE id = $1 AND state = 'running' AND attempts = $2 - 1`,
		taskID, attempts, outcome.Deleted, outcome.Missing, outcome.Simulated)
}

// Retry возвращает задачу в очередь с отложенным запуском
func (r *TaskRepository) Retry(ctx context.Context, taskID string, attempts int, runAfter time.Time, cause string) error {
	return r.settle(ctx, taskID, `
		UPDATE chop_tasks
		SET state = 'pending', attempts = $2, run_after = $3, last_error = $4,
			locked_until = NULL, updated_at = now()
		WHERE id = $1 AND state = 'running' AND attempts = $2 - 1`,
		taskID, attempts, runAfter, cause)
}

// Fail окончательно отмечает задачу проваленной
func (r *TaskRepository) Fail(ctx context.Context, taskID string, attempts int, cause string) error {
	return r.settle(ctx, taskID, `
		UPDATE chop_tasks
		SET state = 'failed', attempts = $2, last_error = $3, locked_until = NULL, updated_at = now()
		WHERE id = $1 AND state = 'running' AND attempts = $2 - 1`,
		taskID, attempts, cause)
}

// ReapAbandoned засчитывает попытку задачам, чей TTR истек, и возвращает их в очередь или проваливает
func (r *TaskRepository) ReapAbandoned(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE chop_tasks
		SET attempts = attempts + 1,
			state = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
			last_error = 'time-to-run exceeded',
			run_after = now(),
			locked_until = NULL,
			updated_at = now()
		WHERE state = 'running' AND locked_until < now()`)
	if err != nil {
		return 0, fmt.Errorf("reap abandoned tasks: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reap abandoned tasks: rows affected: %w", err)
	}
	return int(n), nil
}

// Get возвращает задачу по идентификатору
func (r *TaskRepository) Get(ctx context.Context, taskID string) (*entities.BatchDeletionTask, error) {
	var row taskRow
	err := r.db.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM chop_tasks WHERE id = $1`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select task %s: %w", taskID, err)
	}
	return row.toTask()
}

// ListByRun возвращает задачи запуска в порядке создания
func (r *TaskRepository) ListByRun(ctx context.Context, runID string) ([]entities.BatchDeletionTask, error) {
	var rows []taskRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+taskColumns+` FROM chop_tasks WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("select tasks of run %s: %w", runID, err)
	}

	tasks := make([]entities.BatchDeletionTask, 0, len(rows))
	for _, row := range rows {
		task, err := row.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

// settle выполняет переход состояния. Если строка не обновилась, задача либо не существует,
// либо уже отобрана у этой попытки (истек TTR).
func (r *TaskRepository) settle(ctx context.Context, taskID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: rows affected: %w", taskID, err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM chop_tasks WHERE id = $1)`, taskID); err != nil {
		return fmt.Errorf("check task %s: %w", taskID, err)
	}
	if !exists {
		return entities.ErrTaskNotFound
	}
	return fmt.Errorf("task %s: %w", taskID, entities.ErrTaskLost)
}
