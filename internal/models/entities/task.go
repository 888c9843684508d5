package entities

import (
	"fmt"
	"time"
)

const (
	// MaxAttempts - предельное число попыток выполнения задачи
	MaxAttempts = 3

	// TimeToRun - бюджет времени на одну попытку, после которого задача считается брошенной
	TimeToRun = 5 * time.Minute
)

// TaskState - состояние задачи в очереди
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Terminal сообщает, является ли состояние конечным
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// Selection - результат планирования одного раздела (коллекция, статус)
type Selection struct {
	CollectionHandle string
	Status           string
	EntryIDs         []int64
}

// TaskOutcome - итог успешного выполнения задачи
type TaskOutcome struct {
	Deleted   int `json:"deleted"`
	Missing   int `json:"missing"`
	Simulated int `json:"simulated"`
}

// BatchDeletionTask - единица работы очереди: удаление фиксированного списка записей пачками.
// Неизменяема, кроме счетчика попыток и полей состояния, которыми управляет очередь.
type BatchDeletionTask struct {
	ID               string      `json:"id"`
	RunID            string      `json:"run_id"`
	EntryIDs         []int64     `json:"entry_ids"`
	CollectionHandle string      `json:"collection_handle"`
	Status           string      `json:"status"`
	SoftDelete       bool        `json:"soft_delete"`
	DryRun           bool        `json:"dry_run"`
	BatchSize        int         `json:"batch_size"`
	Plan             ChopPlan    `json:"plan"`
	State            TaskState   `json:"state"`
	Attempts         int         `json:"attempts"`
	LastError        string      `json:"last_error,omitempty"`
	Outcome          TaskOutcome `json:"outcome"`
	RunAfter         time.Time   `json:"run_after"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// NewBatchDeletionTask создает задачу из выборки. Задача владеет копией идентификаторов.
func NewBatchDeletionTask(id, runID string, sel Selection, plan ChopPlan, batchSize int) *BatchDeletionTask {
	now := time.Now().UTC()
	return &BatchDeletionTask{
		ID:               id,
		RunID:            runID,
		EntryIDs:         append([]int64(nil), sel.EntryIDs...),
		CollectionHandle: sel.CollectionHandle,
		Status:           sel.Status,
		SoftDelete:       plan.SoftDelete,
		DryRun:           plan.DryRun,
		BatchSize:        batchSize,
		Plan:             plan.Clone(),
		State:            TaskPending,
		RunAfter:         now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Batches разбивает идентификаторы задачи на пачки размером BatchSize
func (t *BatchDeletionTask) Batches() [][]int64 {
	size := t.BatchSize
	if size <= 0 {
		size = len(t.EntryIDs)
	}
	if size == 0 {
		return nil
	}

	batches := make([][]int64, 0, (len(t.EntryIDs)+size-1)/size)
	for offset := 0; offset < len(t.EntryIDs); offset += size {
		end := min(offset+size, len(t.EntryIDs))
		batches = append(batches, t.EntryIDs[offset:end])
	}
	return batches
}

// Description возвращает описание задачи для логов
func (t *BatchDeletionTask) Description() string {
	mode := "Chopping"
	if t.DryRun {
		mode = "Simulating chop of"
	}
	return fmt.Sprintf("%s %d entries from section '%s' (status: %s)", mode, len(t.EntryIDs), t.CollectionHandle, t.Status)
}

// CanRetry сообщает, можно ли повторить задачу после неудачной попытки с номером attempt
func CanRetry(attempt int) bool {
	return attempt < MaxAttempts
}
