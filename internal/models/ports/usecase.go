package ports

import (
	"context"

	"data-chopper/internal/models/entities"
)

// ChopUseCase определяет бизнес-логику частичного удаления записей
type ChopUseCase interface {
	// DefaultPlan возвращает план, собранный из настроек по умолчанию
	DefaultPlan(origin string) entities.ChopPlan

	// CheckEnvironment проверяет, разрешен ли запуск в текущем окружении
	CheckEnvironment() error

	// Environment возвращает имя текущего окружения
	Environment() string

	// Preview рассчитывает квоты по разделам без выбора записей
	Preview(ctx context.Context, plan entities.ChopPlan) ([]entities.PartitionPreview, error)

	// PlanChop валидирует план, проверяет окружение и ставит задачи удаления в очередь
	PlanChop(ctx context.Context, plan entities.ChopPlan) (*entities.ChopReport, error)

	// ChopEntries собирает план из настроек и аргументов и выполняет PlanChop
	ChopEntries(ctx context.Context, collections []string, percent int, opts ...entities.ChopOption) (*entities.ChopReport, error)

	// GetTask возвращает состояние задачи
	GetTask(ctx context.Context, taskID string) (*entities.BatchDeletionTask, error)

	// GetRun возвращает задачи запуска
	GetRun(ctx context.Context, runID string) ([]entities.BatchDeletionTask, error)
}
