package ports

import (
	"context"
	"time"

	"data-chopper/internal/models/entities"
)

// CollectionResolver определяет доступ к коллекциям
type CollectionResolver interface {
	// GetAllCollections возвращает все коллекции
	GetAllCollections(ctx context.Context) ([]entities.Collection, error)

	// GetCollectionByHandle возвращает коллекцию по handle или nil, если ее нет
	GetCollectionByHandle(ctx context.Context, handle string) (*entities.Collection, error)
}

// RecordStore определяет интерфейс хранилища записей
type RecordStore interface {
	// CountByPartition возвращает число записей коллекции с данным статусом
	CountByPartition(ctx context.Context, collectionID int64, status string) (int, error)

	// DistinctStatuses возвращает различные статусы записей коллекции
	DistinctStatuses(ctx context.Context, collectionID int64) ([]string, error)

	// IDsByPartition возвращает идентификаторы всех записей коллекции с данным статусом
	IDsByPartition(ctx context.Context, collectionID int64, status string) ([]int64, error)

	// FindByID возвращает запись или nil, если она не найдена
	FindByID(ctx context.Context, id int64) (*entities.Record, error)

	// Delete удаляет запись; hard=false означает мягкое удаление
	Delete(ctx context.Context, record *entities.Record, hard bool) (bool, error)
}

// CollectionLocker - необязательная возможность хранилища заблокировать коллекцию на время планирования
type CollectionLocker interface {
	TryAcquireLock(ctx context.Context, handle string) (bool, func(), error)
}

// WorkQueue принимает задачи на асинхронное выполнение
type WorkQueue interface {
	Push(ctx context.Context, task *entities.BatchDeletionTask) error
}

// TaskQueue - очередь задач со стороны исполнителей
type TaskQueue interface {
	WorkQueue

	// Claim захватывает следующую готовую задачу на ttr; (nil, nil), если задач нет
	Claim(ctx context.Context, ttr time.Duration) (*entities.BatchDeletionTask, error)

	// Complete, Retry и Fail применяются, только если задача в running и захвачена попыткой attempts
	// (сохраненное число попыток равно attempts-1). Иначе возвращается entities.ErrTaskLost.

	// Complete переводит задачу в succeeded
	Complete(ctx context.Context, taskID string, attempts int, outcome entities.TaskOutcome) error

	// Retry возвращает задачу в pending, она станет доступна не раньше runAfter
	Retry(ctx context.Context, taskID string, attempts int, runAfter time.Time, cause string) error

	// Fail переводит задачу в конечное состояние failed
	Fail(ctx context.Context, taskID string, attempts int, cause string) error

	// ReapAbandoned засчитывает неудачную попытку задачам, превысившим ttr
	ReapAbandoned(ctx context.Context) (int, error)

	// Get возвращает задачу по идентификатору
	Get(ctx context.Context, taskID string) (*entities.BatchDeletionTask, error)

	// ListByRun возвращает задачи одного запуска
	ListByRun(ctx context.Context, runID string) ([]entities.BatchDeletionTask, error)
}
