package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"data-chopper/internal/models/entities"
	"data-chopper/internal/models/ports"
	"data-chopper/internal/pkg/config"
	"data-chopper/internal/pkg/metrics"
)

type chopUseCase struct {
	resolver ports.CollectionResolver
	store    ports.RecordStore
	queue    ports.TaskQueue
	gate     *EnvironmentGate
	sampler  *Sampler
	settings config.Settings
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewChopUseCase создает сервис планирования частичного удаления записей
func NewChopUseCase(
	resolver ports.CollectionResolver,
	store ports.RecordStore,
	queue ports.TaskQueue,
	gate *EnvironmentGate,
	settings config.Settings,
	m *metrics.Metrics,
	logger *zap.Logger,
) ports.ChopUseCase {
	return &chopUseCase{
		resolver: resolver,
		store:    store,
		queue:    queue,
		gate:     gate,
		sampler:  NewSampler(nil),
		settings: settings,
		metrics:  m,
		logger:   logger,
	}
}

// DefaultPlan собирает план из настроек по умолчанию
func (uc *chopUseCase) DefaultPlan(origin string) entities.ChopPlan {
	return entities.ChopPlan{
		CollectionHandles: append([]string{}, uc.settings.DefaultSections...),
		Percent:           uc.settings.DefaultPercent,
		Statuses:          append([]string{}, uc.settings.DefaultStatuses...),
		MinimumRetained:   uc.settings.MinimumEntries,
		SoftDelete:        uc.settings.DeleteMode == entities.DeleteModeSoft,
		Origin:            origin,
	}
}

func (uc *chopUseCase) CheckEnvironment() error {
	return uc.gate.Check()
}

func (uc *chopUseCase) Environment() string {
	return uc.gate.Environment()
}

// ChopEntries собирает план из настроек и аргументов и выполняет PlanChop
func (uc *chopUseCase) ChopEntries(ctx context.Context, collections []string, percent int, opts ...entities.ChopOption) (*entities.ChopReport, error) {
	plan := uc.DefaultPlan(entities.OriginAPI)
	plan.CollectionHandles = collections
	plan.Percent = percent

	for _, opt := range opts {
		opt(&plan)
	}

	return uc.PlanChop(ctx, plan)
}

// PlanChop валидирует план, проверяет окружение, выбирает записи и ставит задачи в очередь
func (uc *chopUseCase) PlanChop(ctx context.Context, plan entities.ChopPlan) (*entities.ChopReport, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	if err := uc.gate.Check(); err != nil {
		return nil, err
	}

	plan = plan.Clone()
	runID := uuid.New().String()
	log := uc.logger.With(zap.String("run_id", runID))

	collections, err := uc.resolveCollections(ctx, plan)
	if err != nil {
		return nil, err
	}

	report := &entities.ChopReport{
		RunID:       runID,
		Mode:        plan.Mode(),
		Collections: make([]string, 0, len(collections)),
	}

	if len(collections) == 0 {
		log.Info("No valid sections found for chop operation")
		return report, nil
	}

	// Блокировки коллекций держим до постановки всех задач в очередь
	unlocks, collections, err := uc.lockCollections(ctx, collections, log)
	defer func() {
		for _, unlock := range unlocks {
			unlock()
		}
	}()
	if err != nil {
		return nil, err
	}

	for _, c := range collections {
		report.Collections = append(report.Collections, c.Handle)
	}

	log.Info("Starting chop operation",
		zap.String("mode", plan.Mode()),
		zap.Strings("sections", report.Collections),
		zap.String("plan", plan.Summary()))

	tasks := make([]*entities.BatchDeletionTask, 0)
	for _, collection := range collections {
		collectionTasks, err := uc.planCollection(ctx, runID, collection, plan, log)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, collectionTasks...)
	}

	for _, task := range tasks {
		if err := uc.queue.Push(ctx, task); err != nil {
			return nil, fmt.Errorf("push task for section %s (status: %s): %w", task.CollectionHandle, task.Status, err)
		}

		report.TasksQueued++
		report.EntriesQueued += len(task.EntryIDs)
		uc.metrics.TasksQueued.Inc()
		uc.metrics.EntriesSelected.Add(float64(len(task.EntryIDs)))

		log.Debug("Queued task",
			zap.String("task_id", task.ID),
			zap.String("description", task.Description()))
	}

	log.Info("Completed chop operation",
		zap.String("mode", plan.Mode()),
		zap.Int("tasks_queued", report.TasksQueued),
		zap.Int("entries_queued", report.EntriesQueued))

	return report, nil
}

// Preview рассчитывает квоты по всем разделам плана, не выбирая записи
func (uc *chopUseCase) Preview(ctx context.Context, plan entities.ChopPlan) ([]entities.PartitionPreview, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	if err := uc.gate.Check(); err != nil {
		return nil, err
	}

	collections, err := uc.resolveCollections(ctx, plan)
	if err != nil {
		return nil, err
	}

	previews := make([]entities.PartitionPreview, 0)
	for _, collection := range collections {
		statuses, err := uc.targetStatuses(ctx, collection, plan)
		if err != nil {
			return nil, err
		}

		for _, status := range statuses {
			total, err := uc.store.CountByPartition(ctx, collection.ID, status)
			if err != nil {
				return nil, fmt.Errorf("count entries in %s (status: %s): %w", collection.Handle, status, err)
			}

			req := requested(total, plan.Percent)
			quota := Quota(total, plan.Percent, plan.MinimumRetained)
			previews = append(previews, entities.PartitionPreview{
				Collection:     collection.Handle,
				Status:         status,
				Total:          total,
				Requested:      req,
				Quota:          quota,
				LimitedByFloor: quota < req,
			})
		}
	}

	return previews, nil
}

func (uc *chopUseCase) GetTask(ctx context.Context, taskID string) (*entities.BatchDeletionTask, error) {
	return uc.queue.Get(ctx, taskID)
}

func (uc *chopUseCase) GetRun(ctx context.Context, runID string) ([]entities.BatchDeletionTask, error) {
	return uc.queue.ListByRun(ctx, runID)
}

// resolveCollections возвращает целевые коллекции; неизвестные handle пропускаются с предупреждением
func (uc *chopUseCase) resolveCollections(ctx context.Context, plan entities.ChopPlan) ([]entities.Collection, error) {
	if len(plan.CollectionHandles) == 0 {
		uc.logger.Debug("No section handles specified, using all sections")
		collections, err := uc.resolver.GetAllCollections(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sections: %w", err)
		}
		return collections, nil
	}

	collections := make([]entities.Collection, 0, len(plan.CollectionHandles))
	seen := make(map[string]struct{}, len(plan.CollectionHandles))

	for _, handle := range plan.CollectionHandles {
		if _, dup := seen[handle]; dup {
			continue
		}
		seen[handle] = struct{}{}

		collection, err := uc.resolver.GetCollectionByHandle(ctx, handle)
		if err != nil {
			return nil, fmt.Errorf("resolve section %s: %w", handle, err)
		}
		if collection == nil {
			uc.logger.Warn("Section not found, skipping", zap.String("section", handle))
			continue
		}

		uc.logger.Debug("Found section",
			zap.String("section", handle),
			zap.String("name", collection.Name))
		collections = append(collections, *collection)
	}

	return collections, nil
}

// lockCollections блокирует коллекции, если хранилище это поддерживает.
// Коллекции, заблокированные другим запуском, пропускаются.
func (uc *chopUseCase) lockCollections(ctx context.Context, collections []entities.Collection, log *zap.Logger) ([]func(), []entities.Collection, error) {
	locker, ok := uc.store.(ports.CollectionLocker)
	if !ok {
		return nil, collections, nil
	}

	unlocks := make([]func(), 0, len(collections))
	locked := make([]entities.Collection, 0, len(collections))

	for _, collection := range collections {
		acquired, unlock, err := locker.TryAcquireLock(ctx, collection.Handle)
		if err != nil {
			return unlocks, nil, fmt.Errorf("lock section %s: %w", collection.Handle, err)
		}
		if !acquired {
			log.Warn("Another run is already chopping section, skipping", zap.String("section", collection.Handle))
			continue
		}
		unlocks = append(unlocks, unlock)
		locked = append(locked, collection)
	}

	return unlocks, locked, nil
}

// targetStatuses возвращает статусы коллекции, пересеченные с фильтром плана
func (uc *chopUseCase) targetStatuses(ctx context.Context, collection entities.Collection, plan entities.ChopPlan) ([]string, error) {
	statuses, err := uc.store.DistinctStatuses(ctx, collection.ID)
	if err != nil {
		return nil, fmt.Errorf("list statuses in %s: %w", collection.Handle, err)
	}

	if len(plan.Statuses) == 0 {
		return statuses, nil
	}

	filtered := make([]string, 0, len(statuses))
	for _, status := range statuses {
		if slices.Contains(plan.Statuses, status) {
			filtered = append(filtered, status)
		}
	}
	return filtered, nil
}

// planCollection создает по одной задаче на каждый непустой раздел коллекции
func (uc *chopUseCase) planCollection(ctx context.Context, runID string, collection entities.Collection, plan entities.ChopPlan, log *zap.Logger) ([]*entities.BatchDeletionTask, error) {
	detail := log.Debug
	if plan.Verbose {
		detail = log.Info
	}

	log = log.With(zap.String("section", collection.Handle))

	statuses, err := uc.targetStatuses(ctx, collection, plan)
	if err != nil {
		return nil, err
	}
	detail("Target statuses", zap.String("section", collection.Handle), zap.Strings("statuses", statuses))

	tasks := make([]*entities.BatchDeletionTask, 0, len(statuses))
	for _, status := range statuses {
		sel, err := uc.selectEntries(ctx, collection, status, plan, detail)
		if err != nil {
			return nil, err
		}

		if len(sel.EntryIDs) == 0 {
			detail("No entries to delete", zap.String("section", collection.Handle), zap.String("status", status))
			continue
		}

		tasks = append(tasks, entities.NewBatchDeletionTask(uuid.New().String(), runID, sel, plan, uc.settings.BatchSize))
	}

	if len(tasks) > 0 {
		log.Info("Planned deletion tasks for section",
			zap.String("mode", plan.Mode()),
			zap.Int("tasks", len(tasks)))
	}

	return tasks, nil
}

// selectEntries рассчитывает квоту раздела и случайно выбирает записи
func (uc *chopUseCase) selectEntries(ctx context.Context, collection entities.Collection, status string, plan entities.ChopPlan, detail func(string, ...zap.Field)) (entities.Selection, error) {
	sel := entities.Selection{CollectionHandle: collection.Handle, Status: status}

	total, err := uc.store.CountByPartition(ctx, collection.ID, status)
	if err != nil {
		return sel, fmt.Errorf("count entries in %s (status: %s): %w", collection.Handle, status, err)
	}

	quota := Quota(total, plan.Percent, plan.MinimumRetained)
	detail("Partition quota",
		zap.String("section", collection.Handle),
		zap.String("status", status),
		zap.Int("total", total),
		zap.Int("quota", quota),
		zap.Int("minimum_retained", plan.MinimumRetained))

	if quota == 0 {
		return sel, nil
	}

	ids, err := uc.store.IDsByPartition(ctx, collection.ID, status)
	if err != nil {
		return sel, fmt.Errorf("list entries in %s (status: %s): %w", collection.Handle, status, err)
	}

	// Раздел мог измениться между подсчетом и выборкой идентификаторов
	if len(ids) != total {
		uc.logger.Warn("Partition changed during planning, recomputing quota",
			zap.String("section", collection.Handle),
			zap.String("status", status),
			zap.Int("counted", total),
			zap.Int("listed", len(ids)))
		quota = Quota(len(ids), plan.Percent, plan.MinimumRetained)
		if quota == 0 {
			return sel, nil
		}
	}

	sel.EntryIDs, err = uc.sampler.Sample(ids, quota)
	if err != nil {
		if errors.Is(err, entities.ErrInvalidSampleSize) {
			return sel, fmt.Errorf("internal invariant violated for %s (status: %s): %w", collection.Handle, status, err)
		}
		return sel, err
	}

	return sel, nil
}
