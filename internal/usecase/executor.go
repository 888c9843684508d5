package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"data-chopper/internal/models/entities"
	"data-chopper/internal/models/ports"
	"data-chopper/internal/pkg/metrics"
)

// TaskExecutor выполняет одну попытку задачи удаления: пачки обрабатываются строго по очереди
type TaskExecutor struct {
	store      ports.RecordStore
	batchPause time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewTaskExecutor создает исполнителя задач
func NewTaskExecutor(store ports.RecordStore, batchPause time.Duration, m *metrics.Metrics, logger *zap.Logger) *TaskExecutor {
	return &TaskExecutor{
		store:      store,
		batchPause: batchPause,
		metrics:    m,
		logger:     logger,
	}
}

// Execute выполняет попытку attempt. Отсутствующие записи считаются уже удаленными;
// первая неудача удаления прерывает задачу с *entities.TaskExecutionFailure.
func (e *TaskExecutor) Execute(ctx context.Context, task *entities.BatchDeletionTask, attempt int) (entities.TaskOutcome, error) {
	var outcome entities.TaskOutcome

	log := e.logger.With(
		zap.String("task_id", task.ID),
		zap.String("section", task.CollectionHandle),
		zap.String("status", task.Status),
		zap.Int("attempt", attempt))

	log.Info(task.Description())

	batches := task.Batches()
	for i, batch := range batches {
		if i > 0 && e.batchPause > 0 {
			// Небольшая пауза между пачками, чтобы снизить нагрузку
			select {
			case <-time.After(e.batchPause):
			case <-ctx.Done():
				return outcome, ctx.Err()
			}
		}

		if err := ctx.Err(); err != nil {
			return outcome, err
		}

		for _, entryID := range batch {
			if err := e.processEntry(ctx, task, entryID, attempt, &outcome, log); err != nil {
				return outcome, err
			}
		}

		log.Debug("Batch processed",
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("size", len(batch)))
	}

	log.Info("Task finished",
		zap.Int("deleted", outcome.Deleted),
		zap.Int("missing", outcome.Missing),
		zap.Int("simulated", outcome.Simulated))

	return outcome, nil
}

func (e *TaskExecutor) processEntry(ctx context.Context, task *entities.BatchDeletionTask, entryID int64, attempt int, outcome *entities.TaskOutcome, log *zap.Logger) error {
	fail := func(err error) error {
		return &entities.TaskExecutionFailure{TaskID: task.ID, EntryID: entryID, Attempt: attempt, Err: err}
	}

	record, err := e.store.FindByID(ctx, entryID)
	if err != nil {
		return fail(fmt.Errorf("find entry: %w", err))
	}

	if record == nil {
		// Запись могла быть удалена предыдущей попыткой
		log.Debug("Entry already deleted", zap.Int64("entry_id", entryID))
		outcome.Missing++
		e.metrics.EntriesMissing.Inc()
		return nil
	}

	if task.DryRun {
		log.Info("DRY RUN: would delete entry",
			zap.Int64("entry_id", entryID),
			zap.String("delete_mode", task.Plan.DeleteMode()))
		outcome.Simulated++
		e.metrics.EntriesDeleted.WithLabelValues(metrics.ModeDryRun).Inc()
		return nil
	}

	deleted, err := e.store.Delete(ctx, record, !task.SoftDelete)
	if err != nil {
		return fail(err)
	}
	if !deleted {
		return fail(entities.ErrDeleteRefused)
	}

	outcome.Deleted++
	mode := metrics.ModeSoft
	if !task.SoftDelete {
		mode = metrics.ModeHard
	}
	e.metrics.EntriesDeleted.WithLabelValues(mode).Inc()

	log.Debug("Entry deleted", zap.Int64("entry_id", entryID), zap.String("delete_mode", mode))
	return nil
}
